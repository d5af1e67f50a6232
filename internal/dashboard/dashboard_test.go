package dashboard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/nrg-watch/internal/tracker"
)

type fakeView struct {
	mu        sync.Mutex
	states    []ViewState
	logLines  []string
	stopped   bool
	draws     int
	logHeight int
}

func (v *fakeView) Initialize(*Controller) {}
func (v *fakeView) Run() error             { return nil }

func (v *fakeView) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
}

func (v *fakeView) Draw() error {
	v.mu.Lock()
	v.draws++
	v.mu.Unlock()
	return nil
}

func (v *fakeView) Render(state ViewState) {
	v.mu.Lock()
	v.states = append(v.states, state)
	v.mu.Unlock()
}

func (v *fakeView) GetLogViewHeight() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.logHeight
}

func (v *fakeView) ClearLogView() {
	v.mu.Lock()
	v.logLines = nil
	v.mu.Unlock()
}

func (v *fakeView) WriteLogLine(line string) error {
	v.mu.Lock()
	v.logLines = append(v.logLines, line)
	v.mu.Unlock()
	return nil
}

func (v *fakeView) lastPage() (Page, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.states) == 0 {
		return 0, false
	}
	return v.states[len(v.states)-1].Page, true
}

func (v *fakeView) lines() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.logLines...)
}

func (v *fakeView) isStopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

func newTestDashboard(t *testing.T) (*Dashboard, *fakeView, *Model, chan string) {
	t.Helper()
	clock := tracker.NewManualClock(testEpoch)
	session := tracker.NewController(tracker.ControllerConfig{Clock: clock}, discardLogger())
	t.Cleanup(session.Shutdown)

	model, logChan := newTestModel(t, clock)
	ctrl := NewController(model, session, tracker.StartOptions{}, discardLogger())
	t.Cleanup(ctrl.Shutdown)

	view := &fakeView{logHeight: 2}
	d := NewDashboard(NewDashboardArg{View: view, Model: model, Controller: ctrl, Logger: discardLogger()})
	t.Cleanup(d.Shutdown)
	return d, view, model, logChan
}

func TestDashboard_RendersModelChanges(t *testing.T) {
	_, view, model, _ := newTestDashboard(t)

	page, ok := view.lastPage()
	require.True(t, ok, "initial render")
	assert.Equal(t, PageHome, page)

	model.NextPage()
	assert.Eventually(t, func() bool {
		p, _ := view.lastPage()
		return p == PageMetrics
	}, time.Second, 5*time.Millisecond)
}

func TestDashboard_LogTailFollowsHeight(t *testing.T) {
	_, view, _, logChan := newTestDashboard(t)

	logChan <- "one"
	logChan <- "two"
	logChan <- "three"
	assert.Eventually(t, func() bool {
		lines := view.lines()
		return len(lines) == 2 && lines[0] == "two" && lines[1] == "three"
	}, time.Second, 5*time.Millisecond)
}

func TestDashboard_CloseStopsView(t *testing.T) {
	d, view, model, _ := newTestDashboard(t)

	model.RequestCloseApplication()
	assert.Eventually(t, view.isStopped, time.Second, 5*time.Millisecond)

	d.Shutdown()
	d.Shutdown()
}

func TestNewDashboard_Panics(t *testing.T) {
	assert.PanicsWithValue(t, "Dashboard: logger cannot be nil", func() {
		NewDashboard(NewDashboardArg{View: &fakeView{}})
	})
	assert.PanicsWithValue(t, "Dashboard: view cannot be nil", func() {
		NewDashboard(NewDashboardArg{Logger: discardLogger()})
	})
	assert.PanicsWithValue(t, "Dashboard: model cannot be nil", func() {
		NewDashboard(NewDashboardArg{Logger: discardLogger(), View: &fakeView{}})
	})
}
