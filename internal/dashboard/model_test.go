package dashboard

import (
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/nrg-watch/internal/tracker"
)

var testEpoch = time.Date(2026, 4, 12, 7, 0, 0, 0, time.UTC)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestModel(t *testing.T, clock tracker.Clock) (*Model, chan string) {
	t.Helper()
	logChan := make(chan string, 16)
	m := NewModel(discardLogger(), clock, 5*time.Second, logChan)
	t.Cleanup(m.Shutdown)
	return m, logChan
}

func TestModel_PageSelection(t *testing.T) {
	m, _ := newTestModel(t, tracker.NewManualClock(testEpoch))
	assert.Equal(t, PageHome, m.ViewState().Page)

	m.NextPage()
	assert.Equal(t, PageMetrics, m.ViewState().Page)
	m.NextPage()
	assert.Equal(t, PageHome, m.ViewState().Page)

	reason := tracker.ReasonLowHeartRateVariability
	m.SetStatus(tracker.Status{SessionID: "a", Running: true, Lifecycle: tracker.LifecycleRaised, LastReason: &reason})
	assert.Equal(t, PageSupplement, m.ViewState().Page)

	m.SetStatus(tracker.Status{SessionID: "a", Running: true, Lifecycle: tracker.LifecycleAwaitingConfirmation})
	assert.Equal(t, PageUndo, m.ViewState().Page)

	m.SetStatus(tracker.Status{SessionID: "a", Running: true, Lifecycle: tracker.LifecycleIdle})
	assert.Equal(t, PageHome, m.ViewState().Page)

	m.SetStatus(tracker.Status{SessionID: "a"})
	m.SetSummary(tracker.RunSummary{SessionID: "a", ElapsedSeconds: 60})
	state := m.ViewState()
	assert.Equal(t, PageStop, state.Page)
	require.NotNil(t, state.Summary)
	assert.Equal(t, 60.0, state.Summary.ElapsedSeconds)

	// a new run clears the summary
	m.SetStatus(tracker.Status{SessionID: "b", Running: true})
	assert.Equal(t, PageHome, m.ViewState().Page)
	assert.Nil(t, m.ViewState().Summary)
}

func TestModel_UndoCountdown(t *testing.T) {
	clock := tracker.NewManualClock(testEpoch)
	m, _ := newTestModel(t, clock)

	awaiting := tracker.Status{SessionID: "a", Running: true, Lifecycle: tracker.LifecycleAwaitingConfirmation}
	m.SetStatus(awaiting)
	assert.Equal(t, 5*time.Second, m.ViewState().UndoRemaining)

	clock.Advance(2 * time.Second)
	// later statuses in the same countdown keep its start
	m.SetStatus(awaiting)
	assert.Equal(t, 3*time.Second, m.ViewState().UndoRemaining)

	clock.Advance(10 * time.Second)
	assert.Equal(t, time.Duration(0), m.ViewState().UndoRemaining)
}

func TestModel_HoldProgressNotifiesOnChange(t *testing.T) {
	m, _ := newTestModel(t, tracker.NewManualClock(testEpoch))

	changed := make(chan struct{}, 4)
	defer m.ListenToChanges(changed)()
	drain(changed)

	m.SetHoldProgress(0.5)
	assert.Len(t, changed, 1)
	assert.Equal(t, 0.5, m.ViewState().HoldProgress)

	drain(changed)
	m.SetHoldProgress(0.5)
	assert.Empty(t, changed)
}

func TestModel_LogTail(t *testing.T) {
	m, logChan := newTestModel(t, tracker.NewManualClock(testEpoch))

	lines := make(chan string, 16)
	defer m.ListenToLog(lines)()

	for i := 0; i < 3; i++ {
		logChan <- fmt.Sprintf("line %d", i)
	}
	assert.Eventually(t, func() bool { return len(m.GetLogTail(10)) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"line 1", "line 2"}, m.GetLogTail(2))
	assert.Empty(t, m.GetLogTail(0))
	assert.Eventually(t, func() bool { return len(lines) == 3 }, time.Second, 5*time.Millisecond)
}

func TestModel_LogTailIsBounded(t *testing.T) {
	m, logChan := newTestModel(t, tracker.NewManualClock(testEpoch))

	go func() {
		for i := 0; i < maxLogLines+10; i++ {
			logChan <- fmt.Sprintf("line %d", i)
		}
	}()
	assert.Eventually(t, func() bool {
		tail := m.GetLogTail(1)
		return len(tail) == 1 && tail[0] == fmt.Sprintf("line %d", maxLogLines+9)
	}, 2*time.Second, 5*time.Millisecond)

	tail := m.GetLogTail(maxLogLines + 100)
	require.Len(t, tail, maxLogLines)
	assert.Equal(t, "line 10", tail[0])
}

func TestModel_CloseApplication(t *testing.T) {
	m, _ := newTestModel(t, tracker.NewManualClock(testEpoch))

	closeChan := make(chan struct{}, 1)
	defer m.ListenToCloseApplication(closeChan)()

	m.RequestCloseApplication()
	select {
	case <-closeChan:
	case <-time.After(time.Second):
		t.Fatal("expected close request")
	}
}

func TestNewModel_Panics(t *testing.T) {
	assert.PanicsWithValue(t, "DashboardModel: logger cannot be nil", func() {
		NewModel(nil, nil, 0, make(chan string))
	})
	assert.PanicsWithValue(t, "DashboardModel: uiLogChan cannot be nil", func() {
		NewModel(discardLogger(), nil, 0, nil)
	})
}

func TestPage_String(t *testing.T) {
	assert.Equal(t, "home", PageHome.String())
	assert.Equal(t, "undo", PageUndo.String())
	assert.Equal(t, "unknown", Page(42).String())
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
