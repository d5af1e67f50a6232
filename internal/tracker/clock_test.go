package tracker

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 4, 12, 7, 0, 0, 0, time.UTC)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestManualClock_FiresInOrder(t *testing.T) {
	clock := NewManualClock(testEpoch)

	var fired []string
	clock.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })
	clock.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	clock.AfterFunc(1*time.Second, func() { fired = append(fired, "b") })

	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, testEpoch.Add(2*time.Second), clock.Now())

	clock.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, clock.PendingTimers())
}

func TestManualClock_StopPreventsFire(t *testing.T) {
	clock := NewManualClock(testEpoch)

	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clock.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestManualClock_CallbackSeesDeadline(t *testing.T) {
	clock := NewManualClock(testEpoch)

	var seen time.Time
	clock.AfterFunc(1500*time.Millisecond, func() { seen = clock.Now() })
	clock.Advance(5 * time.Second)
	assert.Equal(t, testEpoch.Add(1500*time.Millisecond), seen)
}

func TestManualClock_CallbackCanReschedule(t *testing.T) {
	clock := NewManualClock(testEpoch)

	count := 0
	var schedule func()
	schedule = func() {
		clock.AfterFunc(time.Second, func() {
			count++
			schedule()
		})
	}
	schedule()

	clock.Advance(5 * time.Second)
	assert.Equal(t, 5, count)
}

type tickRecorder struct {
	mu    sync.Mutex
	ticks []Tick
}

func (r *tickRecorder) record(t Tick) {
	r.mu.Lock()
	r.ticks = append(r.ticks, t)
	r.mu.Unlock()
}

func (r *tickRecorder) all() []Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tick(nil), r.ticks...)
}

func TestSessionClock_TicksOncePerInterval(t *testing.T) {
	clock := NewManualClock(testEpoch)
	rec := &tickRecorder{}
	sc := NewSessionClock(clock, time.Second, rec.record, discardLogger())

	gen := sc.Start()
	clock.Advance(5 * time.Second)

	ticks := rec.all()
	require.Len(t, ticks, 5)
	for i, tick := range ticks {
		assert.Equal(t, gen, tick.Generation)
		assert.Equal(t, uint64(i+1), tick.Sequence)
		assert.Equal(t, time.Duration(i+1)*time.Second, tick.Elapsed)
	}
	assert.Equal(t, 5*time.Second, sc.Elapsed())
}

func TestSessionClock_NoDriftWithUnevenAdvances(t *testing.T) {
	clock := NewManualClock(testEpoch)
	rec := &tickRecorder{}
	sc := NewSessionClock(clock, time.Second, rec.record, discardLogger())

	sc.Start()
	for i := 0; i < 10; i++ {
		clock.Advance(700 * time.Millisecond)
	}

	ticks := rec.all()
	require.Len(t, ticks, 7)
	assert.Equal(t, 7*time.Second, ticks[6].Elapsed)
	assert.Equal(t, 7*time.Second, sc.Elapsed())
}

func TestSessionClock_StopHaltsTicks(t *testing.T) {
	clock := NewManualClock(testEpoch)
	rec := &tickRecorder{}
	sc := NewSessionClock(clock, time.Second, rec.record, discardLogger())

	sc.Start()
	clock.Advance(2 * time.Second)
	sc.Stop()
	sc.Stop()
	clock.Advance(5 * time.Second)

	assert.Len(t, rec.all(), 2)
	assert.False(t, sc.IsRunning())
	assert.Equal(t, time.Duration(0), sc.Elapsed())
	assert.Equal(t, 0, clock.PendingTimers())
}

func TestSessionClock_RestartStartsNewGeneration(t *testing.T) {
	clock := NewManualClock(testEpoch)
	rec := &tickRecorder{}
	sc := NewSessionClock(clock, time.Second, rec.record, discardLogger())

	first := sc.Start()
	clock.Advance(1500 * time.Millisecond)
	second := sc.Start()
	assert.Greater(t, second, first)

	clock.Advance(time.Second)
	ticks := rec.all()
	require.Len(t, ticks, 2)
	assert.Equal(t, first, ticks[0].Generation)
	assert.Equal(t, second, ticks[1].Generation)
	assert.Equal(t, time.Second, ticks[1].Elapsed)
}

func TestSessionClock_StaleCallbackDropped(t *testing.T) {
	clock := NewManualClock(testEpoch)
	rec := &tickRecorder{}
	sc := NewSessionClock(clock, time.Second, rec.record, discardLogger())

	gen := sc.Start()
	sc.Stop()
	sc.fire(gen, 1)
	assert.Empty(t, rec.all())
}
