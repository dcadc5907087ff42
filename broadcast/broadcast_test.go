package broadcast_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pitabwire/autotranslate/broadcast"
	"github.com/pitabwire/autotranslate/cache"
	"github.com/pitabwire/autotranslate/messaging"
	"github.com/pitabwire/autotranslate/settings"
)

type capture struct {
	mu     sync.Mutex
	events []messaging.BroadcastEvent
	err    error
}

func (c *capture) Broadcast(_ context.Context, event messaging.BroadcastEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func TestEveryCommittedChangeIsBroadcast(t *testing.T) {
	ctx := t.Context()
	store, err := settings.NewStore(ctx, cache.NewInMemoryCache(), settings.Defaults())
	require.NoError(t, err)

	sink := &capture{}
	b := broadcast.Attach(store, sink)

	language := "fr"
	require.NoError(t, store.Update(ctx, settings.Partial{Language: &language}))
	require.NoError(t, store.Update(ctx, settings.Partial{Language: &language}))
	require.NoError(t, store.Update(ctx, settings.Partial{History: &settings.History{Enabled: true}}))

	require.Len(t, sink.events, 2)
	for i, event := range sink.events {
		require.Equal(t, messaging.EventConfigUpdated, event.Event)
		tree, ok, decodeErr := broadcast.Decode(event)
		require.NoError(t, decodeErr)
		require.True(t, ok)
		require.Equal(t, uint64(i+1), tree.Revision)
		require.Equal(t, "fr", tree.Language)
	}

	b.Detach()
	b.Detach()
	require.NoError(t, store.Reset(ctx))
	require.Len(t, sink.events, 2)
}

func TestBroadcastFailureDoesNotFailUpdate(t *testing.T) {
	ctx := t.Context()
	store, err := settings.NewStore(ctx, cache.NewInMemoryCache(), settings.Defaults())
	require.NoError(t, err)

	broadcast.Attach(store, &capture{err: errors.New("no listeners")})

	language := "de"
	require.NoError(t, store.Update(ctx, settings.Partial{Language: &language}))
	require.Equal(t, "de", store.Get().Language)
}

func TestReceiverIgnoresStaleSnapshots(t *testing.T) {
	var applied []uint64
	r := broadcast.NewReceiver(2, func(_ context.Context, tree settings.Tree) {
		applied = append(applied, tree.Revision)
	})

	send := func(revision uint64) {
		tree := settings.Defaults()
		tree.Revision = revision
		event, err := broadcast.Event(tree)
		require.NoError(t, err)
		r.Handle(context.Background(), event)
	}

	send(1)
	send(2)
	send(4)
	send(3)
	send(5)
	r.Handle(context.Background(), messaging.BroadcastEvent{Event: "something-else"})
	r.Handle(context.Background(), messaging.BroadcastEvent{Event: messaging.EventConfigUpdated, Config: []byte("{")})

	require.Equal(t, []uint64{4, 5}, applied)
	require.Equal(t, uint64(5), r.Revision())

}

func TestReceiverRebaseAcceptsRestartedRevisions(t *testing.T) {
	var applied []uint64
	r := broadcast.NewReceiver(0, func(_ context.Context, tree settings.Tree) {
		applied = append(applied, tree.Revision)
	})
	send := func(revision uint64) {
		event, err := broadcast.Event(settings.Tree{Revision: revision})
		require.NoError(t, err)
		r.Handle(context.Background(), event)
	}

	send(6)
	send(1)
	require.Equal(t, []uint64{6}, applied)

	r.Rebase()
	send(1)
	send(1)
	send(2)
	require.Equal(t, []uint64{6, 1, 2}, applied)
	require.Equal(t, uint64(2), r.Revision())
}
