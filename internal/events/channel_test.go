package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/store"
)

func newTestChannel(t *testing.T, dir string) (*Channel, *store.Store) {
	t.Helper()
	s, err := store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewChannel(s, zerolog.Nop()), s
}

func TestPublishWithoutSubscribersWaitsInMailbox(t *testing.T) {
	c, _ := newTestChannel(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, c.Publish(ctx, model.Payload{AlarmID: "a1"}))

	first, err := c.ConsumePending(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, "a1", first.AlarmID)

	second, err := c.ConsumePending(ctx)
	require.NoError(t, err)
	require.Nil(t, second)
}

func TestPublishDeliversToLiveSubscriberOnce(t *testing.T) {
	c, _ := newTestChannel(t, t.TempDir())
	ctx := context.Background()

	var got []model.Payload
	sub := c.OnFired(func(_ context.Context, p model.Payload) { got = append(got, p) })
	defer sub.Close()

	require.NoError(t, c.Publish(ctx, model.Payload{AlarmID: "a1"}))
	require.Len(t, got, 1)

	pending, err := c.ConsumePending(ctx)
	require.NoError(t, err)
	require.Nil(t, pending)

	delivered, err := c.Drain(ctx)
	require.NoError(t, err)
	require.False(t, delivered)
	require.Len(t, got, 1)
}

func TestClosedSubscriptionStopsDelivery(t *testing.T) {
	c, _ := newTestChannel(t, t.TempDir())
	ctx := context.Background()

	calls := 0
	sub := c.OnFired(func(context.Context, model.Payload) { calls++ })
	sub.Close()
	sub.Close()
	require.Zero(t, c.Subscribers())

	require.NoError(t, c.Publish(ctx, model.Payload{AlarmID: "a1"}))
	require.Zero(t, calls)

	pending, err := c.ConsumePending(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
}

func TestDrainOnStartupDeliversPriorFire(t *testing.T) {
	dir := t.TempDir()
	receiver, _ := newTestChannel(t, dir)
	require.NoError(t, receiver.Publish(context.Background(), model.Payload{AlarmID: "offline"}))

	app, _ := newTestChannel(t, dir)
	var got []string
	sub := app.OnFired(func(_ context.Context, p model.Payload) { got = append(got, p.AlarmID) })
	defer sub.Close()

	delivered, err := app.Drain(context.Background())
	require.NoError(t, err)
	require.True(t, delivered)
	require.Equal(t, []string{"offline"}, got)
}

func TestConcurrentDrainsDeliverOnce(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	var deliveries atomic.Int32

	channels := make([]*Channel, 4)
	for i := range channels {
		channels[i], _ = newTestChannel(t, dir)
		sub := channels[i].OnFired(func(context.Context, model.Payload) { deliveries.Add(1) })
		t.Cleanup(sub.Close)
	}

	_, s := newTestChannel(t, dir)
	require.NoError(t, s.PutLastTriggered(ctx, model.Payload{AlarmID: "a1"}))

	var wg sync.WaitGroup
	for _, c := range channels {
		wg.Add(1)
		go func(c *Channel) {
			defer wg.Done()
			_, err := c.Drain(ctx)
			require.NoError(t, err)
		}(c)
	}
	wg.Wait()

	require.Equal(t, int32(1), deliveries.Load())
}

func TestWatchDeliversFireFromAnotherHandle(t *testing.T) {
	dir := t.TempDir()
	app, _ := newTestChannel(t, dir)
	receiver, _ := newTestChannel(t, dir)

	delivered := make(chan string, 1)
	sub := app.OnFired(func(_ context.Context, p model.Payload) { delivered <- p.AlarmID })
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.Watch(ctx) }()

	// Give the watcher time to register before the write lands.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, receiver.store.PutLastTriggered(context.Background(), model.Payload{AlarmID: "remote"}))

	select {
	case id := <-delivered:
		require.Equal(t, "remote", id)
	case <-time.After(3 * time.Second):
		t.Fatal("payload not delivered")
	}

	cancel()
	require.NoError(t, <-done)
}
