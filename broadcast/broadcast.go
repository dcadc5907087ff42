package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pitabwire/util"

	"github.com/pitabwire/autotranslate/messaging"
	"github.com/pitabwire/autotranslate/settings"
)

// Publisher sends an event to every context.
type Publisher interface {
	Broadcast(ctx context.Context, event messaging.BroadcastEvent) error
}

// Broadcaster republishes every committed settings change with the full
// snapshot embedded, so receivers never need to fetch it again.
type Broadcaster struct {
	publisher   Publisher
	unsubscribe settings.Unsubscribe
	once        sync.Once
}

// Attach starts broadcasting the changes of store.
func Attach(store *settings.Store, publisher Publisher) *Broadcaster {
	b := &Broadcaster{publisher: publisher}
	b.unsubscribe = store.OnUpdate(b.onUpdate)
	return b
}

func (b *Broadcaster) onUpdate(ctx context.Context, next settings.Tree, _ settings.Tree) {
	if err := b.Publish(ctx, next); err != nil {
		util.Log(ctx).WithError(err).WithField("revision", next.Revision).Warn("could not broadcast settings")
	}
}

// Publish sends tree as a config-updated event.
func (b *Broadcaster) Publish(ctx context.Context, tree settings.Tree) error {
	event, err := Event(tree)
	if err != nil {
		return err
	}
	return b.publisher.Broadcast(ctx, event)
}

// Detach stops broadcasting.
func (b *Broadcaster) Detach() {
	b.once.Do(b.unsubscribe)
}

// Event encodes tree as a config-updated broadcast.
func Event(tree settings.Tree) (messaging.BroadcastEvent, error) {
	raw, err := json.Marshal(tree)
	if err != nil {
		return messaging.BroadcastEvent{}, fmt.Errorf("could not encode settings snapshot: %w", err)
	}
	return messaging.BroadcastEvent{Event: messaging.EventConfigUpdated, Config: raw}, nil
}

// Decode extracts the snapshot of a config-updated broadcast. ok is false
// for other events and for events without a snapshot.
func Decode(event messaging.BroadcastEvent) (settings.Tree, bool, error) {
	if event.Event != messaging.EventConfigUpdated || len(event.Config) == 0 {
		return settings.Tree{}, false, nil
	}

	var tree settings.Tree
	if err := json.Unmarshal(event.Config, &tree); err != nil {
		return settings.Tree{}, false, fmt.Errorf("%w: settings snapshot: %w", messaging.ErrInvalidPayload, err)
	}
	return tree, true, nil
}

// Receiver filters broadcast snapshots so that out of order deliveries
// never move a context back to an older revision.
type Receiver struct {
	mu       sync.Mutex
	revision uint64
	rebased  bool
	apply    func(ctx context.Context, tree settings.Tree)
}

// NewReceiver applies snapshots newer than revision through apply.
func NewReceiver(revision uint64, apply func(ctx context.Context, tree settings.Tree)) *Receiver {
	return &Receiver{revision: revision, apply: apply}
}

// Handle is suitable for messaging.Bus.OnBroadcast. apply runs with the
// receiver lock held so snapshots are applied one at a time.
func (r *Receiver) Handle(ctx context.Context, event messaging.BroadcastEvent) {
	tree, ok, err := Decode(event)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("dropping unreadable settings broadcast")
		return
	}
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.rebased && tree.Revision <= r.revision {
		util.Log(ctx).
			WithField("revision", tree.Revision).
			WithField("applied", r.revision).
			Debug("ignoring stale settings broadcast")
		return
	}
	r.revision = tree.Revision
	r.rebased = false
	r.apply(ctx, tree)
}

// Rebase accepts the next snapshot whatever its revision. A restarted
// sender on fresh storage counts revisions from the start again.
func (r *Receiver) Rebase() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebased = true
}

// Revision is the last applied revision.
func (r *Receiver) Revision() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revision
}
