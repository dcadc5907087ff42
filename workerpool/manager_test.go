package workerpool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/autotranslate/config"
	"github.com/pitabwire/autotranslate/workerpool"
)

type ManagerSuite struct {
	suite.Suite
	mgr workerpool.Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	cfg := &config.ConfigurationDefault{
		WorkerPoolCPUFactorForWorkerCount: 1,
		WorkerPoolCapacity:                10,
		WorkerPoolCount:                   2,
		WorkerPoolExpiryDuration:          "1s",
	}

	var err error
	s.mgr, err = workerpool.NewManager(context.Background(), cfg, nil)
	s.Require().NoError(err)
}

func (s *ManagerSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.mgr.Shutdown(ctx))
}

func (s *ManagerSuite) TestSubmitRunsTask() {
	done := make(chan string, 1)
	s.Require().NoError(s.mgr.Submit(context.Background(), "greet", func(context.Context) error {
		done <- "bonjour"
		return nil
	}))

	select {
	case got := <-done:
		s.Equal("bonjour", got)
	case <-time.After(2 * time.Second):
		s.Fail("task did not run")
	}
}

func (s *ManagerSuite) TestTaskOutlivesSubmitterContext() {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	seen := make(chan error, 1)

	s.Require().NoError(s.mgr.Submit(ctx, "detached", func(taskCtx context.Context) error {
		<-release
		seen <- taskCtx.Err()
		return nil
	}))
	cancel()
	close(release)

	s.NoError(<-seen)
}

func (s *ManagerSuite) TestFailedTaskFreesItsSlot() {
	ran := make(chan struct{})
	s.Require().NoError(s.mgr.Submit(context.Background(), "broken", func(context.Context) error {
		close(ran)
		return errors.New("boom")
	}))

	<-ran
	s.Eventually(func() bool { return s.mgr.InFlight() == 0 }, time.Second, 10*time.Millisecond)
}

func (s *ManagerSuite) TestSubmitOnCanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.mgr.Submit(ctx, "late", func(context.Context) error { return nil })
	s.ErrorIs(err, context.Canceled)
}

func (s *ManagerSuite) TestNilTaskIsRejected() {
	s.Error(s.mgr.Submit(context.Background(), "empty", nil))
}

func (s *ManagerSuite) TestShutdownWaitsForInFlight() {
	mgr, err := workerpool.NewManager(context.Background(), nil, nil)
	s.Require().NoError(err)

	release := make(chan struct{})
	var finished atomic.Bool
	s.Require().NoError(mgr.Submit(context.Background(), "slow", func(context.Context) error {
		<-release
		finished.Store(true)
		return nil
	}))
	s.Eventually(func() bool { return mgr.InFlight() == 1 }, time.Second, 10*time.Millisecond)

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Require().ErrorIs(mgr.Shutdown(short), context.DeadlineExceeded)

	close(release)
	s.Eventually(finished.Load, time.Second, 10*time.Millisecond)
	s.NoError(mgr.Shutdown(context.Background()))
	s.ErrorIs(mgr.Submit(context.Background(), "after", func(context.Context) error { return nil }),
		workerpool.ErrShutdown)
}
