package queue

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"gocloud.dev/pubsub"

	"github.com/pitabwire/autotranslate/internal"
	"github.com/pitabwire/autotranslate/localization"
)

var ErrPublisherNotInitialized = errors.New("publisher is not initialized")

const publisherShutdownTimeout = 30 * time.Second

type publisher struct {
	reference string
	url       string

	mu    sync.RWMutex
	topic *pubsub.Topic
}

func newPublisher(reference string, queueURL string) *publisher {
	return &publisher{reference: reference, url: queueURL}
}

func (p *publisher) Ref() string { return p.reference }

func (p *publisher) URI() string { return p.url }

func (p *publisher) Initiated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.topic != nil
}

func (p *publisher) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.topic != nil {
		return nil
	}

	topic, err := pubsub.OpenTopic(ctx, p.url)
	if err != nil {
		return err
	}
	p.topic = topic
	return nil
}

// outboundMetadata carries the trace context and the caller's preferred
// languages. Explicit headers win over both.
func outboundMetadata(ctx context.Context, headers []map[string]string) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	metadata := map[string]string(carrier)
	if languages := localization.FromContext(ctx); len(languages) > 0 {
		metadata = localization.ToMap(metadata, languages)
	}
	for _, h := range headers {
		maps.Copy(metadata, h)
	}
	return metadata
}

func (p *publisher) Publish(ctx context.Context, payload any, headers ...map[string]string) error {
	body, err := internal.Marshal(payload)
	if err != nil {
		return err
	}

	p.mu.RLock()
	topic := p.topic
	p.mu.RUnlock()
	if topic == nil {
		return ErrPublisherNotInitialized
	}

	return topic.Send(ctx, &pubsub.Message{Body: body, Metadata: outboundMetadata(ctx, headers)})
}

// Stop releases the topic. mem:// topics are shared process wide by URL, so
// they are left open for the other contexts using them.
func (p *publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	topic := p.topic
	p.topic = nil
	p.mu.Unlock()

	if topic == nil || strings.HasPrefix(strings.ToLower(p.url), "mem://") {
		return nil
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publisherShutdownTimeout)
	defer cancel()

	err := topic.Shutdown(sctx)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "has been shutdown") {
		return nil
	}
	return err
}
