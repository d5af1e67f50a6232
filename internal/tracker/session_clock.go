package tracker

import (
	"log"
	"sync"
	"time"
)

// Tick is delivered once per interval while the session clock runs.
type Tick struct {
	Generation uint64
	Sequence   uint64
	Elapsed    time.Duration
}

// SessionClock drives the once-per-interval session tick.
//
// Tick n is scheduled for start + n*interval rather than relative to the
// previous tick, and Elapsed is always recomputed from the start timestamp, so
// late callbacks never accumulate drift. Every Start begins a new generation;
// callbacks scheduled by an older generation are dropped under the clock's
// lock. The tick callback itself runs outside the lock, so consumers that
// must not act on a tick after Stop compare Tick.Generation with the value
// Start returned.
type SessionClock struct {
	clock    Clock
	interval time.Duration
	onTick   func(Tick)
	logger   *log.Logger

	mu         sync.Mutex
	running    bool
	generation uint64
	start      time.Time
	sequence   uint64
	timer      Timer
}

func NewSessionClock(clock Clock, interval time.Duration, onTick func(Tick), logger *log.Logger) *SessionClock {
	if clock == nil {
		panic("SessionClock: clock cannot be nil")
	}
	if onTick == nil {
		panic("SessionClock: onTick cannot be nil")
	}
	if logger == nil {
		panic("SessionClock: logger cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &SessionClock{
		clock:    clock,
		interval: interval,
		onTick:   onTick,
		logger:   logger,
	}
}

// Start begins a new generation from the current time and returns it.
// Calling Start on a running clock restarts it.
func (c *SessionClock) Start() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	c.generation++
	c.running = true
	c.start = c.clock.Now()
	c.sequence = 0
	c.scheduleLocked()

	c.logger.Printf("SessionClock: Started generation %d (interval %v)", c.generation, c.interval)
	return c.generation
}

// Stop halts ticking. Safe to call more than once.
func (c *SessionClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.stopTimerLocked()
	c.running = false
	c.generation++
	c.logger.Printf("SessionClock: Stopped after %d ticks", c.sequence)
}

// Elapsed returns the time since Start, or zero when stopped.
func (c *SessionClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0
	}
	return c.clock.Now().Sub(c.start)
}

func (c *SessionClock) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Generation returns the current generation number.
func (c *SessionClock) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// scheduleLocked arms the timer for the next tick.
// MUST be called with mu held.
func (c *SessionClock) scheduleLocked() {
	generation := c.generation
	sequence := c.sequence + 1
	due := c.start.Add(time.Duration(sequence) * c.interval)
	wait := due.Sub(c.clock.Now())
	if wait < 0 {
		wait = 0
	}
	c.timer = c.clock.AfterFunc(wait, func() { c.fire(generation, sequence) })
}

// MUST be called with mu held.
func (c *SessionClock) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *SessionClock) fire(generation, sequence uint64) {
	c.mu.Lock()
	if !c.running || generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.sequence = sequence
	tick := Tick{
		Generation: generation,
		Sequence:   sequence,
		Elapsed:    c.clock.Now().Sub(c.start),
	}
	c.scheduleLocked()
	c.mu.Unlock()

	c.onTick(tick)
}
