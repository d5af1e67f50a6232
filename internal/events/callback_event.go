package events

import (
	"sync"
)

// CallbackEvent fans a value out to registered callbacks.
// Callbacks run synchronously on the notifying goroutine, after the event's
// own lock has been released, so a callback may register or remove listeners.
type CallbackEvent[T any] struct {
	mu         sync.RWMutex
	listeners  map[uint64]func(T)
	nextID     uint64
	replayLast bool
	lastEvent  *T // nil until the first Notify with replay on
}

// NewCallbackEvent creates a CallbackEvent.
// replayLast: when true a new listener is immediately called with the most
// recent Notify value.
func NewCallbackEvent[T any](replayLast bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{
		listeners:  make(map[uint64]func(T)),
		replayLast: replayLast,
	}
}

// Listen registers callback and returns a function that removes it again.
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("CallbackEvent: callback cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = callback
	var last T
	replay := e.replayLast && e.lastEvent != nil
	if replay {
		last = *e.lastEvent
	}
	e.mu.Unlock()

	if replay {
		callback(last)
	}

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Notify calls every registered callback with value.
func (e *CallbackEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.replayLast {
		stored := value
		e.lastEvent = &stored
	}
	targets := make([]func(T), 0, len(e.listeners))
	for _, cb := range e.listeners {
		targets = append(targets, cb)
	}
	e.mu.Unlock()

	for _, cb := range targets {
		cb(value)
	}
}

// Last returns the retained value, if replay is enabled and Notify has run.
func (e *CallbackEvent[T]) Last() (T, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastEvent == nil {
		var zero T
		return zero, false
	}
	return *e.lastEvent, true
}

// ListenerCount returns the number of registered callbacks.
func (e *CallbackEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
