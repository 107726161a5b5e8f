package controller

import (
	"sync"
	"time"
)

// DetectionEvent is emitted once for every hit the cooldown gate admits.
type DetectionEvent struct {
	// Bucket is the zero-based bucket index.
	Bucket int `json:"bucket"`
	// Count is the bucket's count after the hit was recorded.
	Count uint64 `json:"count"`
	// Frame is the sequence number of the frame that produced the hit.
	Frame uint64 `json:"frame"`
	// Timestamp is when the frame was processed.
	Timestamp time.Time `json:"timestamp"`
}

// Position returns the 1-based bucket position shown to users.
func (e DetectionEvent) Position() int {
	return e.Bucket + 1
}

// EventHandler receives detection events synchronously on the processing loop.
// Implementations must return promptly; anything doing I/O hands the event to its own
// goroutine.
type EventHandler interface {
	OnDetection(event DetectionEvent)
}

// ResetHandler is told, on the processing loop, that a histogram reset has just been
// applied. It runs after every event of the previous frames and before any later one.
type ResetHandler interface {
	OnReset()
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(event DetectionEvent)

// OnDetection calls f(event).
func (f EventHandlerFunc) OnDetection(event DetectionEvent) {
	f(event)
}

// EventBus fans detection events out to handlers and channels.
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
}

type eventSubscription struct {
	channel chan DetectionEvent
	handler EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe registers a handler and returns an unsubscribe function.
func (b *EventBus) Subscribe(handler EventHandler) func() {
	sub := &eventSubscription{handler: handler}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// SubscribeChannel returns a channel that receives events and an unsubscribe function
// that closes it. Events are dropped for a subscriber whose buffer is full.
func (b *EventBus) SubscribeChannel(bufferSize int) (<-chan DetectionEvent, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan DetectionEvent, bufferSize)
	sub := &eventSubscription{channel: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// Publish delivers event to every subscriber. Handlers run synchronously so they observe
// events in frame order.
func (b *EventBus) Publish(event DetectionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.handler != nil {
			sub.handler.OnDetection(event)
			continue
		}
		select {
		case sub.channel <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close removes every subscriber and closes their channels.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}
