package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	b := NewBus(4)
	b.Publish(Event{Name: EventMemoryStored, Payload: map[string]any{"id": "dsam_1"}})

	ev, ok := b.Subscribe(context.Background())
	require.True(t, ok)
	assert.Equal(t, EventMemoryStored, ev.Name)
	assert.Equal(t, "dsam_1", ev.Payload["id"])
	assert.False(t, ev.At.IsZero())
}

func TestBusDropsWhenFull(t *testing.T) {
	b := NewBus(1)
	b.Publish(Event{Name: "a"})
	b.Publish(Event{Name: "b"})

	assert.Equal(t, uint64(1), b.Dropped())
}

func TestBusClose(t *testing.T) {
	b := NewBus(2)
	b.Publish(Event{Name: "a"})
	b.Close()
	b.Close()
	b.Publish(Event{Name: "ignored"})

	ev, ok := b.Subscribe(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", ev.Name)

	_, ok = b.Subscribe(context.Background())
	assert.False(t, ok)
}

func TestBusSubscribeContextDone(t *testing.T) {
	b := NewBus(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok := b.Subscribe(ctx)
	assert.False(t, ok)
}
