package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusHandlersAndChannels(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var seen []int
	unsubscribe := bus.Subscribe(EventHandlerFunc(func(ev DetectionEvent) {
		seen = append(seen, ev.Bucket)
	}))
	ch, unsubscribeCh := bus.SubscribeChannel(0)
	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(DetectionEvent{Bucket: 4})
	assert.Equal(t, []int{4}, seen)
	require.Len(t, ch, 1)
	assert.Equal(t, 4, (<-ch).Bucket)

	unsubscribe()
	bus.Publish(DetectionEvent{Bucket: 5})
	assert.Equal(t, []int{4}, seen)

	unsubscribeCh()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount())
	assert.NotPanics(t, unsubscribeCh)
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch, _ := bus.SubscribeChannel(1)

	bus.Publish(DetectionEvent{Bucket: 1})
	bus.Publish(DetectionEvent{Bucket: 2})
	assert.Equal(t, 1, (<-ch).Bucket)

	bus.Close()
	_, open := <-ch
	assert.False(t, open)
}
