// Package queue binds named topics of one execution context to gocloud
// pubsub URLs. Each topic has at most one publisher and one subscriber per
// context.
package queue

import (
	"context"
)

type SubscriberState int32

const (
	SubscriberStateWaiting SubscriberState = iota
	SubscriberStateProcessing
	SubscriberStateInError
	SubscriberStateStopped
)

func (s SubscriberState) String() string {
	switch s {
	case SubscriberStateWaiting:
		return "waiting"
	case SubscriberStateProcessing:
		return "processing"
	case SubscriberStateInError:
		return "in_error"
	case SubscriberStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Manager owns the publishers and subscribers of one execution context.
type Manager interface {
	// AddPublisher opens the topic at queueURL under reference. Adding an
	// existing reference is a no-op.
	AddPublisher(ctx context.Context, reference string, queueURL string) error
	GetPublisher(reference string) (Publisher, error)
	DiscardPublisher(ctx context.Context, reference string) error

	// AddSubscriber starts delivering queueURL messages to handlers.
	AddSubscriber(ctx context.Context, reference string, queueURL string, handlers ...SubscribeWorker) error
	GetSubscriber(reference string) (Subscriber, error)
	DiscardSubscriber(ctx context.Context, reference string) error

	Publish(ctx context.Context, reference string, payload any, headers ...map[string]string) error
	// Close stops every subscriber, then every publisher. The manager can be
	// reused afterwards.
	Close(ctx context.Context) error
}

type Publisher interface {
	Ref() string
	URI() string
	Initiated() bool
	Init(ctx context.Context) error
	Publish(ctx context.Context, payload any, headers ...map[string]string) error
	Stop(ctx context.Context) error
}

type Subscriber interface {
	Ref() string
	URI() string
	Initiated() bool
	State() SubscriberState
	Init(ctx context.Context) error
	Stop(ctx context.Context) error
}

// SubscribeWorker handles one inbound message. Returning an error nacks it.
type SubscribeWorker interface {
	Handle(ctx context.Context, metadata map[string]string, message []byte) error
}

type SubscribeWorkerFunc func(ctx context.Context, metadata map[string]string, message []byte) error

func (f SubscribeWorkerFunc) Handle(ctx context.Context, metadata map[string]string, message []byte) error {
	return f(ctx, metadata, message)
}
