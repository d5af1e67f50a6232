package tracker

import (
	"sync"
	"time"
)

// HoldGesture turns a press and release into a completed action only when
// the press lasts the full hold duration. Releasing early cancels it.
type HoldGesture struct {
	clock    Clock
	duration time.Duration

	mu        sync.Mutex
	pressed   bool
	token     uint64
	pressedAt time.Time
	timer     Timer
}

func NewHoldGesture(clock Clock, duration time.Duration) *HoldGesture {
	if clock == nil {
		panic("HoldGesture: clock cannot be nil")
	}
	if duration <= 0 {
		duration = DefaultHoldDuration
	}
	return &HoldGesture{clock: clock, duration: duration}
}

// Press starts a hold. onComplete runs on the clock's timer goroutine once the
// hold has lasted the full duration. A press while already pressed is ignored
// and reports false.
func (h *HoldGesture) Press(onComplete func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pressed {
		return false
	}
	h.pressed = true
	h.token++
	token := h.token
	h.pressedAt = h.clock.Now()
	h.timer = h.clock.AfterFunc(h.duration, func() { h.complete(token, onComplete) })
	return true
}

// Release ends the hold. It reports true if a hold was in progress and has
// now been cancelled.
func (h *HoldGesture) Release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.pressed {
		return false
	}
	h.pressed = false
	h.token++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	return true
}

func (h *HoldGesture) IsPressed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pressed
}

// Progress is the fraction of the hold completed, 0 when not pressed.
func (h *HoldGesture) Progress() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.pressed {
		return 0
	}
	p := float64(h.clock.Now().Sub(h.pressedAt)) / float64(h.duration)
	if p > 1 {
		return 1
	}
	return p
}

func (h *HoldGesture) complete(token uint64, onComplete func()) {
	h.mu.Lock()
	if !h.pressed || token != h.token {
		h.mu.Unlock()
		return
	}
	h.pressed = false
	h.timer = nil
	h.mu.Unlock()

	onComplete()
}
