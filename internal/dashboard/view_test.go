package dashboard

import (
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/nrg-watch/internal/tracker"
)

type viewFixture struct {
	clock   *tracker.ManualClock
	session *tracker.Controller
	model   *Model
	ctrl    *Controller
	view    *TviewView
}

func newViewFixture(t *testing.T, policy tracker.PolicyConfig) *viewFixture {
	t.Helper()
	clock := tracker.NewManualClock(testEpoch)
	session := tracker.NewController(tracker.ControllerConfig{
		Clock:        clock,
		Policy:       policy,
		NewSessionID: func() string { return "run-1" },
	}, discardLogger())
	t.Cleanup(session.Shutdown)

	model, _ := newTestModel(t, clock)
	ctrl := NewController(model, session, tracker.StartOptions{}, discardLogger())
	t.Cleanup(ctrl.Shutdown)

	view := NewTviewView(discardLogger(), tview.NewApplication())
	view.Initialize(ctrl)
	return &viewFixture{clock: clock, session: session, model: model, ctrl: ctrl, view: view}
}

func (f *viewFixture) press(r rune) *tcell.EventKey {
	return f.view.handleKey(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
}

func (f *viewFixture) waitForPage(t *testing.T, page Page) {
	t.Helper()
	require.Eventually(t, func() bool { return f.model.ViewState().Page == page }, time.Second, 5*time.Millisecond,
		"expected page %s", page)
}

func TestView_StartAndManualGelFlow(t *testing.T) {
	f := newViewFixture(t, tracker.DefaultPolicyConfig())

	assert.Nil(t, f.press('s'))
	require.True(t, f.session.IsRunning())
	require.Eventually(t, func() bool { return f.model.ViewState().Status.Running }, time.Second, 5*time.Millisecond)

	f.clock.Advance(10 * time.Second)
	assert.Nil(t, f.press('g'))
	f.clock.Advance(tracker.DefaultHoldDuration)
	f.waitForPage(t, PageUndo)

	f.view.Render(f.model.ViewState())
	assert.Contains(t, f.view.panels[PageUndo].GetText(true), "Gel recorded in 5s")

	assert.Nil(t, f.press('u'))
	assert.Equal(t, tracker.LifecycleIdle, f.session.LifecycleState())
	f.waitForPage(t, PageHome)
	assert.Empty(t, f.session.SupplementHistory())
}

func TestView_ConfirmAlertThenFinish(t *testing.T) {
	f := newViewFixture(t, tracker.PolicyConfig{TimeSinceGelThreshold: 30 * time.Second})

	f.press('s')
	f.clock.Advance(30 * time.Second)
	f.waitForPage(t, PageSupplement)

	f.view.Render(f.model.ViewState())
	assert.Contains(t, f.view.panels[PageSupplement].GetText(true), "Time for a gel")

	f.press('c')
	f.clock.Advance(tracker.DefaultHoldDuration)
	f.waitForPage(t, PageUndo)
	f.clock.Advance(tracker.DefaultUndoWindow)
	f.waitForPage(t, PageHome)
	require.Len(t, f.session.GelSplits(), 1)

	assert.Nil(t, f.press('f'))
	assert.False(t, f.session.IsRunning())
	f.waitForPage(t, PageStop)

	state := f.model.ViewState()
	require.NotNil(t, state.Summary)
	require.Len(t, state.Summary.Splits, 1)
	f.view.Render(state)
	text := f.view.panels[PageStop].GetText(true)
	assert.Contains(t, text, "Run complete")
	assert.Contains(t, text, "Gels       1")
}

func TestView_ReleaseHoldEarly(t *testing.T) {
	f := newViewFixture(t, tracker.DefaultPolicyConfig())

	f.press('s')
	f.press('g')
	f.clock.Advance(time.Second)
	f.ctrl.RefreshHold()
	assert.InDelta(t, 1.0/3.0, f.model.ViewState().HoldProgress, 1e-9)

	assert.Nil(t, f.press(' '))
	assert.Equal(t, 0.0, f.model.ViewState().HoldProgress)
	f.clock.Advance(10 * time.Second)
	assert.Equal(t, tracker.LifecycleIdle, f.session.LifecycleState())
}

func TestView_CommandsWithoutRunAreIgnored(t *testing.T) {
	f := newViewFixture(t, tracker.DefaultPolicyConfig())

	for _, r := range []rune{'g', 'c', 'u', 'f', ' '} {
		assert.Nil(t, f.press(r), "key %q is consumed", r)
	}
	assert.False(t, f.session.IsRunning())
	assert.Nil(t, f.model.ViewState().Summary)
}

func TestView_NavigationKeys(t *testing.T) {
	f := newViewFixture(t, tracker.DefaultPolicyConfig())

	closeChan := make(chan struct{}, 1)
	defer f.model.ListenToCloseApplication(closeChan)()

	assert.Nil(t, f.view.handleKey(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone)))
	assert.Equal(t, PageMetrics, f.model.ViewState().Page)

	assert.Nil(t, f.view.handleKey(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)))
	assert.Len(t, closeChan, 1)

	unhandled := tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)
	assert.Same(t, unhandled, f.view.handleKey(unhandled))
	enter := tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone)
	assert.Same(t, enter, f.view.handleKey(enter))
}

func TestView_RenderSwitchesPage(t *testing.T) {
	f := newViewFixture(t, tracker.DefaultPolicyConfig())

	f.view.Render(ViewState{Page: PageMetrics})
	name, _ := f.view.pages.GetFrontPage()
	assert.Equal(t, pageNameMetrics, name)
	assert.Contains(t, f.view.panels[PageMetrics].GetText(true), "Elapsed")

	f.view.Render(ViewState{Page: PageHome})
	name, _ = f.view.pages.GetFrontPage()
	assert.Equal(t, pageNameHome, name)
}

func TestView_LogPane(t *testing.T) {
	f := newViewFixture(t, tracker.DefaultPolicyConfig())

	require.NoError(t, f.view.WriteLogLine("first"))
	require.NoError(t, f.view.WriteLogLine("second"))
	text := f.view.logView.GetText(false)
	assert.Contains(t, text, "first\n")
	assert.Contains(t, text, "second")
	f.view.ClearLogView()
	assert.Empty(t, f.view.logView.GetText(false))
}

func TestNewController_Panics(t *testing.T) {
	model, _ := newTestModel(t, nil)
	session := tracker.NewController(tracker.ControllerConfig{}, discardLogger())
	t.Cleanup(session.Shutdown)

	assert.PanicsWithValue(t, "DashboardController: model cannot be nil", func() {
		NewController(nil, session, tracker.StartOptions{}, discardLogger())
	})
	assert.PanicsWithValue(t, "DashboardController: session cannot be nil", func() {
		NewController(model, nil, tracker.StartOptions{}, discardLogger())
	})
	assert.PanicsWithValue(t, "DashboardController: logger cannot be nil", func() {
		NewController(model, session, tracker.StartOptions{}, nil)
	})
}
