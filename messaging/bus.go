package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pitabwire/util"
	"github.com/rs/xid"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/autotranslate/config"
	"github.com/pitabwire/autotranslate/internal"
	"github.com/pitabwire/autotranslate/localization"
	"github.com/pitabwire/autotranslate/queue"
	"github.com/pitabwire/autotranslate/telemetry"
	"github.com/pitabwire/autotranslate/workerpool"
)

//nolint:gochecknoglobals // package tracer shared by every bus
var tracer = telemetry.NewTracer("github.com/pitabwire/autotranslate/messaging")

// Dispatcher executes an inbound request.
type Dispatcher interface {
	Dispatch(ctx context.Context, operation string, payload []byte) (any, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, operation string, payload []byte) (any, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, operation string, payload []byte) (any, error) {
	return f(ctx, operation, payload)
}

// Unsubscribe removes a listener. It is safe to call more than once.
type Unsubscribe func()

type Option func(*Bus)

// WithMessages renders remote error messages from the catalogs of m.
func WithMessages(m localization.Manager) Option {
	return func(b *Bus) {
		b.messages = m
	}
}

// WithRequestTimeout overrides the configured request timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(b *Bus) {
		if timeout > 0 {
			b.timeout = timeout
		}
	}
}

// Bus connects one execution context to the others. Requests are addressed
// to a context id, broadcasts and lifecycle events reach every context.
type Bus struct {
	contextID string
	cfg       config.ConfigurationMessaging
	queues    queue.Manager
	messages  localization.Manager
	timeout   time.Duration

	mu        sync.Mutex
	closed    bool
	pending   map[string]chan Response
	nextID    uint64
	onEvent   map[uint64]func(context.Context, BroadcastEvent)
	onStarted map[uint64]func(context.Context, LifecycleEvent)
}

// NewBus opens the reply, broadcast and lifecycle subscriptions of contextID
// and announces it on the lifecycle topic.
func NewBus(
	ctx context.Context,
	contextID string,
	cfg config.ConfigurationMessaging,
	work workerpool.Manager,
	opts ...Option,
) (*Bus, error) {
	b := &Bus{
		contextID: contextID,
		cfg:       cfg,
		queues:    queue.NewQueueManager(ctx, work),
		timeout:   cfg.RequestTimeout(),
		pending:   map[string]chan Response{},
		onEvent:   map[uint64]func(context.Context, BroadcastEvent){},
		onStarted: map[uint64]func(context.Context, LifecycleEvent){},
	}

	for _, opt := range opts {
		opt(b)
	}

	if err := b.subscribe(ctx, repliesTopic(contextID), queue.SubscribeWorkerFunc(b.handleReply)); err != nil {
		return nil, b.abort(ctx, err)
	}
	if err := b.subscribe(ctx, TopicBroadcast, queue.SubscribeWorkerFunc(b.handleBroadcast)); err != nil {
		return nil, b.abort(ctx, err)
	}
	if err := b.subscribe(ctx, TopicLifecycle, queue.SubscribeWorkerFunc(b.handleLifecycle)); err != nil {
		return nil, b.abort(ctx, err)
	}

	if err := b.queues.Publish(ctx, TopicLifecycle,
		LifecycleEvent{Event: EventContextStarted, Context: contextID}); err != nil {
		return nil, b.abort(ctx, err)
	}

	return b, nil
}

func (b *Bus) abort(ctx context.Context, err error) error {
	if closeErr := b.queues.Close(ctx); closeErr != nil {
		util.Log(ctx).WithError(closeErr).Warn("could not release bus queues")
	}
	return fmt.Errorf("could not open bus for %s: %w", b.contextID, err)
}

// ContextID is the id other contexts use to address this bus.
func (b *Bus) ContextID() string {
	return b.contextID
}

// ensurePublisher opens the topic. A mem:// subscription can only be
// opened once its topic exists.
func (b *Bus) ensurePublisher(ctx context.Context, topic string) error {
	return b.queues.AddPublisher(ctx, topic, b.cfg.QueueURL(topic))
}

func (b *Bus) subscribe(ctx context.Context, topic string, worker queue.SubscribeWorker) error {
	if err := b.ensurePublisher(ctx, topic); err != nil {
		return err
	}
	return b.queues.AddSubscriber(ctx, topic, b.cfg.QueueURL(topic), worker)
}

// Serve starts answering requests addressed to this context.
func (b *Bus) Serve(ctx context.Context, dispatcher Dispatcher) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBusClosed
	}

	worker := queue.SubscribeWorkerFunc(func(ctx context.Context, metadata map[string]string, body []byte) error {
		b.handleRequest(ctx, dispatcher, metadata, body)
		return nil
	})
	return b.subscribe(ctx, requestsTopic(b.contextID), worker)
}

// Call sends operation to target and decodes the successful result into result.
// Failures are *TransportError, *RemoteError or a decoding error wrapping ErrInvalidPayload.
func (b *Bus) Call(ctx context.Context, target string, operation string, payload any, result any) error {
	ctx, span := tracer.Start(ctx, "Call", trace.WithAttributes(
		telemetry.AttrOperationKey.String(operation),
		telemetry.AttrContextKey.String(target),
	))

	err := b.call(ctx, target, operation, payload, result)
	span.EndWith(ctx, err)
	return err
}

func (b *Bus) call(ctx context.Context, target string, operation string, payload any, result any) error {
	transportErr := func(err error) error {
		return &TransportError{Target: target, Operation: operation, Err: err}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return transportErr(ErrBusClosed)
	}
	id := xid.New().String()
	ch := make(chan Response, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	defer b.forget(id)

	topic := requestsTopic(target)
	if err := b.ensurePublisher(ctx, topic); err != nil {
		return transportErr(err)
	}

	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	headers := map[string]string{
		MetaOperation:     operation,
		MetaCorrelationID: id,
		MetaReplyTo:       b.contextID,
		MetaSource:        b.contextID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding %s payload: %w", ErrInvalidPayload, operation, err)
	}

	if err = b.queues.Publish(cctx, topic, body, headers); err != nil {
		return transportErr(err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return transportErr(ErrBusClosed)
		}
		return decodeResponse(operation, resp, result)
	case <-cctx.Done():
		return transportErr(cctx.Err())
	}
}

func (b *Bus) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func decodeResponse(operation string, resp Response, result any) error {
	if !resp.OK {
		remote := &RemoteError{Operation: operation, ErrKind: KindInternal}
		if resp.Error != nil {
			remote.ErrKind = resp.Error.Kind
			remote.Message = resp.Error.Message
			remote.Detail = resp.Error.Detail
		}
		return remote
	}

	if result == nil || len(resp.Result) == 0 {
		return nil
	}

	if err := internal.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("%w: decoding %s result: %w", ErrInvalidPayload, operation, err)
	}
	return nil
}

func (b *Bus) handleRequest(ctx context.Context, dispatcher Dispatcher, metadata map[string]string, body []byte) {
	operation := metadata[MetaOperation]
	replyTo := metadata[MetaReplyTo]
	correlationID := metadata[MetaCorrelationID]

	log := util.Log(ctx).
		WithField("operation", operation).
		WithField("source", metadata[MetaSource]).
		WithField("context", b.contextID)

	if replyTo == "" || correlationID == "" {
		log.Warn("dropping request without reply address")
		return
	}

	result, err := dispatcher.Dispatch(ctx, operation, body)

	resp := Response{OK: err == nil}
	if err == nil && result != nil {
		encoded, encErr := json.Marshal(result)
		if encErr != nil {
			err = fmt.Errorf("encoding %s result: %w", operation, encErr)
			resp.OK = false
		} else {
			resp.Result = encoded
		}
	}

	if err != nil {
		kind := ErrorKind(err)
		log.WithError(err).WithField("kind", kind).Debug("request failed")
		resp.Error = &ErrorBody{
			Kind:    kind,
			Message: b.describe(ctx, kind, operation),
			Detail:  err.Error(),
		}
	}

	topic := repliesTopic(replyTo)
	if pubErr := b.ensurePublisher(ctx, topic); pubErr != nil {
		log.WithError(pubErr).Warn("could not open reply topic")
		return
	}

	if pubErr := b.queues.Publish(ctx, topic, resp, map[string]string{
		MetaOperation:     operation,
		MetaCorrelationID: correlationID,
		MetaSource:        b.contextID,
	}); pubErr != nil {
		log.WithError(pubErr).Warn("could not send reply")
	}
}

func (b *Bus) describe(ctx context.Context, kind string, operation string) string {
	if b.messages == nil {
		return kind
	}
	return b.messages.TranslateWithMap(ctx, localization.FromContext(ctx), kind,
		map[string]any{"Operation": operation})
}

func (b *Bus) handleReply(ctx context.Context, metadata map[string]string, body []byte) error {
	id := metadata[MetaCorrelationID]

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		util.Log(ctx).WithError(err).WithField("correlation_id", id).Warn("malformed reply")
		resp = Response{Error: &ErrorBody{Kind: KindInternal, Message: "malformed reply", Detail: err.Error()}}
	}

	b.mu.Lock()
	ch, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if !ok {
		util.Log(ctx).WithField("correlation_id", id).Debug("reply for unknown or expired call")
		return nil
	}

	ch <- resp
	return nil
}

// Broadcast publishes event to every context. Delivery is fire and forget.
func (b *Bus) Broadcast(ctx context.Context, event BroadcastEvent) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return &TransportError{Target: TopicBroadcast, Operation: event.Event, Err: ErrBusClosed}
	}

	if err := b.queues.Publish(ctx, TopicBroadcast, event, map[string]string{MetaSource: b.contextID}); err != nil {
		return &TransportError{Target: TopicBroadcast, Operation: event.Event, Err: err}
	}
	return nil
}

// OnBroadcast registers fn for every broadcast event received by this context.
func (b *Bus) OnBroadcast(fn func(ctx context.Context, event BroadcastEvent)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.onEvent[id] = fn

	return func() {
		b.mu.Lock()
		delete(b.onEvent, id)
		b.mu.Unlock()
	}
}

// OnLifecycle registers fn for start and stop announcements of other contexts.
func (b *Bus) OnLifecycle(fn func(ctx context.Context, event LifecycleEvent)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.onStarted[id] = fn

	return func() {
		b.mu.Lock()
		delete(b.onStarted, id)
		b.mu.Unlock()
	}
}

func (b *Bus) handleBroadcast(ctx context.Context, _ map[string]string, body []byte) error {
	var event BroadcastEvent
	if err := json.Unmarshal(body, &event); err != nil {
		util.Log(ctx).WithError(err).Warn("dropping malformed broadcast")
		return nil
	}

	b.mu.Lock()
	listeners := make([]func(context.Context, BroadcastEvent), 0, len(b.onEvent))
	for _, fn := range b.onEvent {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, event)
	}
	return nil
}

func (b *Bus) handleLifecycle(ctx context.Context, _ map[string]string, body []byte) error {
	var event LifecycleEvent
	if err := json.Unmarshal(body, &event); err != nil {
		util.Log(ctx).WithError(err).Warn("dropping malformed lifecycle event")
		return nil
	}
	if event.Context == b.contextID {
		return nil
	}

	b.mu.Lock()
	listeners := make([]func(context.Context, LifecycleEvent), 0, len(b.onStarted))
	for _, fn := range b.onStarted {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, event)
	}
	return nil
}

// Close announces the context stopped, rejects pending calls with a
// *TransportError and releases the queues.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pending := b.pending
	b.pending = map[string]chan Response{}
	b.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	var errs []error
	if err := b.queues.Publish(ctx, TopicLifecycle,
		LifecycleEvent{Event: EventContextStopped, Context: b.contextID}); err != nil {
		errs = append(errs, err)
	}
	if err := b.queues.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
