package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pitabwire/util"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"gocloud.dev/pubsub"

	"github.com/pitabwire/autotranslate/localization"
	"github.com/pitabwire/autotranslate/workerpool"
)

const defaultSubscriberShutdownTimeout = time.Second

var ErrSubscriberNotInitialized = errors.New("only initialised subscriptions can pull messages")

type subscriber struct {
	reference string
	url       string
	handlers  []SubscribeWorker

	mu           sync.Mutex
	subscription *pubsub.Subscription
	cancel       context.CancelFunc
	done         chan struct{}

	isInit atomic.Bool
	state  atomic.Int32

	workManager workerpool.Manager
}

func (s *subscriber) Ref() string {
	return s.reference
}

func (s *subscriber) URI() string {
	return s.url
}

func (s *subscriber) Initiated() bool {
	return s.isInit.Load()
}

func (s *subscriber) State() SubscriberState {
	return SubscriberState(s.state.Load())
}

func (s *subscriber) receive(ctx context.Context, subscription *pubsub.Subscription) (*pubsub.Message, error) {
	s.state.Store(int32(SubscriberStateWaiting))

	msg, err := subscription.Receive(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.state.Store(int32(SubscriberStateInError))
		}
		return nil, err
	}
	s.state.Store(int32(SubscriberStateProcessing))
	return msg, nil
}

func (s *subscriber) createSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	if strings.TrimSpace(s.url) == "" {
		return nil, errors.New("subscriber URL cannot be empty")
	}

	subs, err := pubsub.OpenSubscription(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("could not open topic subscription: %w", err)
	}
	return subs, nil
}

// Init opens the subscription and starts the listen loop. The loop runs
// until Stop is called, independent of the lifetime of ctx.
func (s *subscriber) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isInit.Load() && s.subscription != nil {
		return nil
	}

	subs, err := s.createSubscription(ctx)
	if err != nil {
		return err
	}
	s.subscription = subs

	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})

	s.isInit.Store(true)

	if len(s.handlers) > 0 {
		go s.listen(listenCtx, subs, s.done)
	} else {
		close(s.done)
	}
	return nil
}

func (s *subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	subs := s.subscription
	cancel := s.cancel
	done := s.done
	s.subscription = nil
	s.cancel = nil
	s.mu.Unlock()

	s.isInit.Store(false)
	s.state.Store(int32(SubscriberStateStopped))

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if subs == nil {
		return nil
	}

	sctx, cancelFunc := context.WithTimeout(context.WithoutCancel(ctx), defaultSubscriberShutdownTimeout)
	defer cancelFunc()

	return subs.Shutdown(sctx)
}

func (s *subscriber) processReceivedMessage(ctx context.Context, msg *pubsub.Message) error {
	task := func(jobCtx context.Context) error {
		var metadata propagation.MapCarrier = msg.Metadata
		if metadata == nil {
			metadata = propagation.MapCarrier{}
		}

		pCtx := otel.GetTextMapPropagator().Extract(jobCtx, metadata)

		languages := localization.FromMap(metadata)
		if len(languages) > 0 {
			pCtx = localization.ToContext(pCtx, languages)
		}

		for _, worker := range s.handlers {
			err := worker.Handle(pCtx, metadata, msg.Body)
			if err != nil {
				util.Log(pCtx).
					WithField("name", s.reference).
					WithField("url", s.url).
					WithError(err).Warn("could not handle message")
				msg.Nack()
				return err
			}
		}
		msg.Ack()
		return nil
	}

	if s.workManager == nil {
		// Handler failures are already nacked and logged by the task.
		_ = task(ctx)
		return nil
	}

	submitErr := s.workManager.Submit(ctx, s.reference, task)
	if submitErr != nil {
		msg.Nack()
		return submitErr
	}

	return nil
}

func (s *subscriber) listen(ctx context.Context, subs *pubsub.Subscription, done chan struct{}) {
	defer close(done)

	logger := util.Log(ctx).
		WithField("name", s.reference).
		WithField("url", s.url)
	logger.Debug("starting to listen for messages")

	for {
		msg, err := s.receive(ctx, subs)
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("exiting due to stopped subscriber")
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.WithError(err).Error("could not pull message, stopping listener")
			s.sendStopError(ctx, err)
			return
		}

		if procErr := s.processReceivedMessage(ctx, msg); procErr != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(procErr).Error("could not submit message for processing, stopping listener")
			s.sendStopError(ctx, procErr)
			return
		}
	}
}

func (s *subscriber) sendStopError(ctx context.Context, err error) {
	if s.workManager != nil {
		s.workManager.StopError(ctx, err)
	}
}

func newSubscriber(
	workPool workerpool.Manager,
	reference string,
	queueURL string,
	handlers ...SubscribeWorker,
) *subscriber {
	return &subscriber{
		reference:   reference,
		url:         queueURL,
		handlers:    handlers,
		workManager: workPool,
	}
}
