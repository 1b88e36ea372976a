package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rbright/wakeproof/internal/metrics"
	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/session"
)

func TestDeliverKeepsEveryPayloadWhileSessionBusy(t *testing.T) {
	d := &daemon{
		deps:      session.Deps{Metrics: metrics.Noop{}},
		logger:    zerolog.Nop(),
		startedAt: fixedNow,
		queue:     newPayloadQueue(),
	}

	// Nothing drains the queue while a session is ringing.
	const fired = 20
	for i := 0; i < fired; i++ {
		d.deliver(context.Background(), model.Payload{AlarmID: fmt.Sprintf("a%d", i), FiredAt: fixedNow})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < fired; i++ {
		payload, ok := d.queue.pop(ctx)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("a%d", i), payload.AlarmID)
	}
}

func TestPayloadQueuePopWaitsForPush(t *testing.T) {
	q := newPayloadQueue()
	got := make(chan model.Payload, 1)
	go func() {
		payload, _ := q.pop(context.Background())
		got <- payload
	}()

	q.push(model.Payload{AlarmID: "late"})
	select {
	case payload := <-got:
		require.Equal(t, "late", payload.AlarmID)
	case <-time.After(time.Second):
		t.Fatal("pop did not observe push")
	}
}

func TestPayloadQueuePopStopsWithContext(t *testing.T) {
	q := newPayloadQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q.push(model.Payload{AlarmID: "a1"})
	_, ok := q.pop(ctx)
	require.False(t, ok)
}
