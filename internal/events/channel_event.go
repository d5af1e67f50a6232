package events

import (
	"sync"
)

// ChannelEvent fans a value out to registered channels.
// Sends never block: a listener whose channel is full misses that value.
type ChannelEvent[T any] struct {
	mu         sync.RWMutex
	channels   map[uint64]chan<- T
	nextID     uint64
	replayLast bool
	lastEvent  *T // nil until the first Notify with replay on
}

// NewChannelEvent creates a ChannelEvent.
// replayLast: when true the most recent Notify value is delivered to each new
// listener as soon as it registers.
func NewChannelEvent[T any](replayLast bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{
		channels:   make(map[uint64]chan<- T),
		replayLast: replayLast,
	}
}

// Listen registers ch and returns a function that removes it again.
// The returned function is safe to call more than once.
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("ChannelEvent: channel cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.channels[id] = ch
	var last T
	replay := e.replayLast && e.lastEvent != nil
	if replay {
		last = *e.lastEvent
	}
	e.mu.Unlock()

	if replay {
		select {
		case ch <- last:
		default:
		}
	}

	return func() {
		e.mu.Lock()
		delete(e.channels, id)
		e.mu.Unlock()
	}
}

// Notify delivers value to every registered channel without blocking.
func (e *ChannelEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.replayLast {
		stored := value
		e.lastEvent = &stored
	}
	targets := make([]chan<- T, 0, len(e.channels))
	for _, ch := range e.channels {
		targets = append(targets, ch)
	}
	e.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- value:
		default:
		}
	}
}

// Last returns the retained value, if replay is enabled and Notify has run.
func (e *ChannelEvent[T]) Last() (T, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastEvent == nil {
		var zero T
		return zero, false
	}
	return *e.lastEvent, true
}

// Reset forgets the retained value. Registered listeners are kept.
func (e *ChannelEvent[T]) Reset() {
	e.mu.Lock()
	e.lastEvent = nil
	e.mu.Unlock()
}

// ListenerCount returns the number of registered channels.
func (e *ChannelEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.channels)
}
