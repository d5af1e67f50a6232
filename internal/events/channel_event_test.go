package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusSample struct {
	Elapsed  float64
	Distance float64
	History  []float64
}

func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
	var zero T
	return zero
}

func assertNothing[T any](t *testing.T, ch chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Errorf("Unexpected value received: %v", v)
	default:
	}
}

func TestNewChannelEvent(t *testing.T) {
	event := NewChannelEvent[string](false)
	require.NotNil(t, event)
	assert.Equal(t, 0, event.ListenerCount())
	assert.False(t, event.replayLast)

	event2 := NewChannelEvent[int](true)
	require.NotNil(t, event2)
	assert.True(t, event2.replayLast)
}

func TestChannelEvent_Listen_Notify_Basic(t *testing.T) {
	event := NewChannelEvent[string](false)

	ch := make(chan string, 10)
	unregister := event.Listen(ch)
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify("tick-1")
	event.Notify("tick-2")

	assert.Equal(t, "tick-1", receive(t, ch))
	assert.Equal(t, "tick-2", receive(t, ch))

	unregister()
	assert.Equal(t, 0, event.ListenerCount())

	event.Notify("tick-3")
	assertNothing(t, ch)
}

func TestChannelEvent_MultipleListeners(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch1 := make(chan int, 10)
	ch2 := make(chan int, 10)
	unregister1 := event.Listen(ch1)
	unregister2 := event.Listen(ch2)
	assert.Equal(t, 2, event.ListenerCount())

	event.Notify(42)

	assert.Equal(t, 42, receive(t, ch1))
	assert.Equal(t, 42, receive(t, ch2))

	unregister1()
	unregister2()
	assert.Equal(t, 0, event.ListenerCount())
}

func TestChannelEvent_ReplayLast_NoNotifyYet(t *testing.T) {
	event := NewChannelEvent[string](true)

	ch := make(chan string, 10)
	unregister := event.Listen(ch)
	defer unregister()

	assertNothing(t, ch)
	_, ok := event.Last()
	assert.False(t, ok)
}

func TestChannelEvent_ReplayLast_AfterNotify(t *testing.T) {
	event := NewChannelEvent[string](true)

	ch1 := make(chan string, 10)
	unregister1 := event.Listen(ch1)
	defer unregister1()

	event.Notify("raised")
	assert.Equal(t, "raised", receive(t, ch1))

	ch2 := make(chan string, 10)
	unregister2 := event.Listen(ch2)
	defer unregister2()
	assert.Equal(t, "raised", receive(t, ch2))

	event.Notify("awaiting")
	assert.Equal(t, "awaiting", receive(t, ch1))
	assert.Equal(t, "awaiting", receive(t, ch2))

	last, ok := event.Last()
	require.True(t, ok)
	assert.Equal(t, "awaiting", last)
}

func TestChannelEvent_ReplayLast_False(t *testing.T) {
	event := NewChannelEvent[string](false)
	event.Notify("ignored")

	ch := make(chan string, 10)
	unregister := event.Listen(ch)
	defer unregister()

	assertNothing(t, ch)
	_, ok := event.Last()
	assert.False(t, ok)
}

func TestChannelEvent_Reset(t *testing.T) {
	event := NewChannelEvent[statusSample](true)
	event.Notify(statusSample{Elapsed: 10})

	event.Reset()
	_, ok := event.Last()
	assert.False(t, ok)

	ch := make(chan statusSample, 1)
	unregister := event.Listen(ch)
	defer unregister()
	assertNothing(t, ch)
}

func TestChannelEvent_Listen_NilChannel(t *testing.T) {
	event := NewChannelEvent[string](false)
	assert.Panics(t, func() {
		event.Listen(nil)
	})
}

func TestChannelEvent_FullChannelDoesNotBlock(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch := make(chan int, 1)
	unregister := event.Listen(ch)
	defer unregister()

	done := make(chan struct{})
	go func() {
		event.Notify(1)
		event.Notify(2)
		event.Notify(3)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Notify blocked on a full channel")
	}

	assert.Equal(t, 1, receive(t, ch))
	assertNothing(t, ch)
}

func TestChannelEvent_StructValue(t *testing.T) {
	event := NewChannelEvent[statusSample](true)

	ch := make(chan statusSample, 1)
	unregister := event.Listen(ch)
	defer unregister()

	event.Notify(statusSample{Elapsed: 2700, Distance: 8100, History: []float64{1800}})
	got := receive(t, ch)
	assert.Equal(t, 2700.0, got.Elapsed)
	assert.Equal(t, []float64{1800}, got.History)
}

func TestChannelEvent_ConcurrentAccess(t *testing.T) {
	event := NewChannelEvent[int](true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ch := make(chan int, 100)
			unregister := event.Listen(ch)
			for j := 0; j < 10; j++ {
				event.Notify(n*10 + j)
			}
			unregister()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, event.ListenerCount())
	_, ok := event.Last()
	assert.True(t, ok)
}

func TestChannelEvent_LastWithoutReplay(t *testing.T) {
	event := NewChannelEvent[int](false)
	event.Notify(7)

	_, ok := event.Last()
	assert.False(t, ok)
}
