package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_DeliversToMatchingSubscribersOnly(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var mu sync.Mutex
	got := map[string][]string{}
	record := func(name string) Handler {
		return func(routingKey string, body []byte) {
			mu.Lock()
			got[name] = append(got[name], routingKey)
			mu.Unlock()
		}
	}

	require.NoError(t, b.Subscribe(ctx, record("status"), "Status.*"))
	require.NoError(t, b.Subscribe(ctx, record("grid"), "GridState"))

	require.NoError(t, b.Publish(ctx, "Status.Ready", []byte("{}")))
	require.NoError(t, b.Publish(ctx, "GridState", []byte("{}")))
	require.NoError(t, b.Publish(ctx, "Epoch", []byte("{}")))
	require.NoError(t, b.Close())

	assert.Equal(t, []string{"Status.Ready"}, got["status"])
	assert.Equal(t, []string{"GridState"}, got["grid"])
}

func TestMemoryBus_PerSubscriberFIFO(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	require.NoError(t, b.Subscribe(ctx, func(routingKey string, body []byte) {
		mu.Lock()
		got = append(got, string(body))
		mu.Unlock()
	}, "#"))

	const n = 100
	for i := 0; i < n; i++ {
		require.NoError(t, b.Publish(ctx, "Epoch", []byte(fmt.Sprintf("%03d", i))))
	}
	require.NoError(t, b.Close())

	require.Len(t, got, n)
	for i := 1; i < n; i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("delivery out of order: %s before %s", got[i-1], got[i])
		}
	}
}

func TestMemoryBus_HandlerCanPublish(t *testing.T) {
	// A handler publishing back onto the bus must not deadlock; the reply
	// is queued and delivered by the other subscriber's own goroutine.
	b := NewMemoryBus()
	ctx := context.Background()

	replied := make(chan struct{})
	require.NoError(t, b.Subscribe(ctx, func(string, []byte) {
		_ = b.Publish(ctx, "pong", []byte("{}"))
	}, "ping"))
	require.NoError(t, b.Subscribe(ctx, func(string, []byte) {
		close(replied)
	}, "pong"))

	require.NoError(t, b.Publish(ctx, "ping", []byte("{}")))
	select {
	case <-replied:
	case <-time.After(2 * time.Second):
		t.Fatal("pong never delivered")
	}
	require.NoError(t, b.Close())
}

func TestMemoryBus_PanickingHandlerDoesNotKillDelivery(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	delivered := make(chan string, 2)
	require.NoError(t, b.Subscribe(ctx, func(routingKey string, body []byte) {
		if routingKey == "bad" {
			panic("boom")
		}
		delivered <- routingKey
	}, "#"))

	require.NoError(t, b.Publish(ctx, "bad", []byte("{}")))
	require.NoError(t, b.Publish(ctx, "good", []byte("{}")))

	select {
	case key := <-delivered:
		assert.Equal(t, "good", key)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery stopped after handler panic")
	}
	require.NoError(t, b.Close())
}

func TestMemoryBus_CloseDrainsQueues(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	require.NoError(t, b.Subscribe(ctx, func(string, []byte) {
		mu.Lock()
		count++
		mu.Unlock()
	}, "#"))

	for i := 0; i < 50; i++ {
		require.NoError(t, b.Publish(ctx, "Epoch", []byte("{}")))
	}
	require.NoError(t, b.Close())

	// Close waits for the queues to drain, so every publish was handled.
	assert.Equal(t, 50, count)
}

func TestMemoryBus_MultiPatternSubscriptionKeepsPublishOrder(t *testing.T) {
	// A component subscribes once with several patterns; messages on
	// different topics must still arrive in the order they were published.
	b := NewMemoryBus()
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	require.NoError(t, b.Subscribe(ctx, func(routingKey string, body []byte) {
		mu.Lock()
		got = append(got, routingKey)
		mu.Unlock()
	}, "SimState", "Epoch", "GridState"))

	require.NoError(t, b.Publish(ctx, "SimState", []byte("{}")))
	require.NoError(t, b.Publish(ctx, "Epoch", []byte("{}")))
	require.NoError(t, b.Publish(ctx, "GridState", []byte("{}")))
	require.NoError(t, b.Publish(ctx, "Epoch", []byte("{}")))
	require.NoError(t, b.Close())

	assert.Equal(t, []string{"SimState", "Epoch", "GridState", "Epoch"}, got)
}

func TestMemoryBus_RejectsUseAfterClose(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()
	require.NoError(t, b.Close())

	assert.Error(t, b.Publish(ctx, "Epoch", []byte("{}")))
	assert.Error(t, b.Subscribe(ctx, func(string, []byte) {}, "#"))
	assert.NoError(t, b.Close(), "closing twice is harmless")
}
