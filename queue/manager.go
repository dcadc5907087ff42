package queue

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	_ "github.com/pitabwire/natspubsub" // nats:// driver
	"github.com/pitabwire/util"
	_ "gocloud.dev/pubsub/mempubsub" // mem:// driver

	"github.com/pitabwire/autotranslate/workerpool"
)

var ErrUnknownReference = errors.New("no queue registered under reference")

type manager struct {
	mu          sync.Mutex
	publishers  map[string]*publisher
	subscribers map[string]*subscriber

	work workerpool.Manager
}

// NewQueueManager returns a Manager whose subscribers hand messages to work.
func NewQueueManager(_ context.Context, work workerpool.Manager) Manager {
	return &manager{
		publishers:  map[string]*publisher{},
		subscribers: map[string]*subscriber{},
		work:        work,
	}
}

func (m *manager) AddPublisher(ctx context.Context, reference string, queueURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.publishers[reference]; ok {
		return nil
	}

	pub := newPublisher(reference, queueURL)
	if err := pub.Init(ctx); err != nil {
		return fmt.Errorf("publisher %s: %w", reference, err)
	}
	m.publishers[reference] = pub
	return nil
}

func (m *manager) GetPublisher(reference string) (Publisher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pub, ok := m.publishers[reference]
	if !ok {
		return nil, fmt.Errorf("publisher %s: %w", reference, ErrUnknownReference)
	}
	return pub, nil
}

func (m *manager) DiscardPublisher(ctx context.Context, reference string) error {
	m.mu.Lock()
	pub, ok := m.publishers[reference]
	delete(m.publishers, reference)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return pub.Stop(ctx)
}

func (m *manager) AddSubscriber(
	ctx context.Context,
	reference string,
	queueURL string,
	handlers ...SubscribeWorker,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscribers[reference]; ok {
		return nil
	}

	sub := newSubscriber(m.work, reference, queueURL, handlers...)
	if err := sub.Init(ctx); err != nil {
		return fmt.Errorf("subscriber %s: %w", reference, err)
	}
	m.subscribers[reference] = sub
	return nil
}

func (m *manager) GetSubscriber(reference string) (Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscribers[reference]
	if !ok {
		return nil, fmt.Errorf("subscriber %s: %w", reference, ErrUnknownReference)
	}
	return sub, nil
}

func (m *manager) DiscardSubscriber(ctx context.Context, reference string) error {
	m.mu.Lock()
	sub, ok := m.subscribers[reference]
	delete(m.subscribers, reference)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.Stop(ctx)
}

func (m *manager) Publish(ctx context.Context, reference string, payload any, headers ...map[string]string) error {
	m.mu.Lock()
	pub, ok := m.publishers[reference]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("publisher %s: %w", reference, ErrUnknownReference)
	}
	return pub.Publish(ctx, payload, headers...)
}

func (m *manager) Close(ctx context.Context) error {
	m.mu.Lock()
	subscribers, publishers := m.subscribers, m.publishers
	m.subscribers = map[string]*subscriber{}
	m.publishers = map[string]*publisher{}
	m.mu.Unlock()

	var errs []error
	for _, ref := range slices.Sorted(maps.Keys(subscribers)) {
		if err := subscribers[ref].Stop(ctx); err != nil {
			util.Log(ctx).WithError(err).WithField("subscriber_ref", ref).Warn("could not stop subscriber")
			errs = append(errs, fmt.Errorf("subscriber %s: %w", ref, err))
		}
	}
	for _, ref := range slices.Sorted(maps.Keys(publishers)) {
		if err := publishers[ref].Stop(ctx); err != nil {
			util.Log(ctx).WithError(err).WithField("publisher_ref", ref).Warn("could not stop publisher")
			errs = append(errs, fmt.Errorf("publisher %s: %w", ref, err))
		}
	}
	return errors.Join(errs...)
}
