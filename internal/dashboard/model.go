// Package dashboard is the terminal UI of the watch: a model fed by the
// session controller, a controller for key commands and a tview view.
package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lowaak/nrg-watch/internal/events"
	"github.com/lowaak/nrg-watch/internal/go_func_utils"
	"github.com/lowaak/nrg-watch/internal/tracker"
)

type Page int

const (
	PageHome Page = iota
	PageMetrics
	PageSupplement
	PageUndo
	PageStop
)

func (p Page) String() string {
	switch p {
	case PageHome:
		return "home"
	case PageMetrics:
		return "metrics"
	case PageSupplement:
		return "supplement"
	case PageUndo:
		return "undo"
	case PageStop:
		return "stop"
	default:
		return "unknown"
	}
}

// ViewState is everything the view needs for one render.
type ViewState struct {
	Page          Page
	Status        tracker.Status
	Summary       *tracker.RunSummary
	HoldProgress  float64
	UndoRemaining time.Duration
}

const maxLogLines = 1000

type Model struct {
	logger     *log.Logger
	clock      tracker.Clock
	undoWindow time.Duration

	mu            sync.RWMutex
	status        tracker.Status
	browsePage    Page
	summary       *tracker.RunSummary
	awaitingSince time.Time
	holdProgress  float64

	logLines []string
	logMu    sync.RWMutex

	logEvent              *events.ChannelEvent[string]
	changedEvent          *events.ChannelEvent[struct{}]
	closeApplicationEvent *events.ChannelEvent[struct{}]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewModel(logger *log.Logger, clock tracker.Clock, undoWindow time.Duration, uiLogChan <-chan string) *Model {
	if logger == nil {
		panic("DashboardModel: logger cannot be nil")
	}
	if uiLogChan == nil {
		panic("DashboardModel: uiLogChan cannot be nil")
	}
	if clock == nil {
		clock = tracker.RealClock()
	}
	if undoWindow <= 0 {
		undoWindow = tracker.DefaultUndoWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		logger:                logger,
		clock:                 clock,
		undoWindow:            undoWindow,
		browsePage:            PageHome,
		logLines:              make([]string, 0, maxLogLines),
		logEvent:              events.NewChannelEvent[string](false),
		changedEvent:          events.NewChannelEvent[struct{}](true),
		closeApplicationEvent: events.NewChannelEvent[struct{}](true),
		ctx:                   ctx,
		cancel:                cancel,
	}

	go_func_utils.SafeGoGroup(logger, &m.wg, func() { m.readFromLogChannel(ctx, uiLogChan) })
	return m
}

// Shutdown stops all goroutines and waits for them to finish
func (m *Model) Shutdown() {
	m.logger.Println("DashboardModel: Shutting down")
	m.cancel()
	m.wg.Wait()
}

// ListenToLog registers a channel to receive log lines
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToLog(ch chan<- string) func() {
	return m.logEvent.Listen(ch)
}

// ListenToChanges registers a channel that is signalled whenever the view
// state changes
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToChanges(ch chan<- struct{}) func() {
	return m.changedEvent.Listen(ch)
}

// ListenToCloseApplication registers a channel to receive close requests
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToCloseApplication(ch chan<- struct{}) func() {
	return m.closeApplicationEvent.Listen(ch)
}

func (m *Model) RequestCloseApplication() {
	m.closeApplicationEvent.Notify(struct{}{})
}

// SetStatus records the latest session status. The undo countdown starts
// when the lifecycle enters awaiting confirmation.
func (m *Model) SetStatus(status tracker.Status) {
	m.mu.Lock()
	if status.Lifecycle == tracker.LifecycleAwaitingConfirmation &&
		(m.status.Lifecycle != tracker.LifecycleAwaitingConfirmation || m.status.SessionID != status.SessionID) {
		m.awaitingSince = m.clock.Now()
	}
	if status.Running {
		m.summary = nil
	}
	m.status = status
	m.mu.Unlock()

	m.changedEvent.Notify(struct{}{})
}

func (m *Model) SetSummary(summary tracker.RunSummary) {
	m.mu.Lock()
	m.summary = &summary
	m.mu.Unlock()

	m.changedEvent.Notify(struct{}{})
}

func (m *Model) SetHoldProgress(progress float64) {
	m.mu.Lock()
	changed := m.holdProgress != progress
	m.holdProgress = progress
	m.mu.Unlock()

	if changed {
		m.changedEvent.Notify(struct{}{})
	}
}

// NextPage flips between the home and metrics pages.
func (m *Model) NextPage() {
	m.mu.Lock()
	if m.browsePage == PageHome {
		m.browsePage = PageMetrics
	} else {
		m.browsePage = PageHome
	}
	m.mu.Unlock()

	m.changedEvent.Notify(struct{}{})
}

// ViewState picks the page: a finished run shows its summary, an alert
// shows the prompt, a pending intake shows the undo countdown, anything
// else the page the athlete browsed to.
func (m *Model) ViewState() ViewState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state := ViewState{
		Page:         m.browsePage,
		Status:       m.status,
		Summary:      m.summary,
		HoldProgress: m.holdProgress,
	}
	switch {
	case m.summary != nil && !m.status.Running:
		state.Page = PageStop
	case m.status.Lifecycle == tracker.LifecycleRaised:
		state.Page = PageSupplement
	case m.status.Lifecycle == tracker.LifecycleAwaitingConfirmation:
		state.Page = PageUndo
		state.UndoRemaining = max(m.undoWindow-m.clock.Now().Sub(m.awaitingSince), 0)
	}
	return state
}

func (m *Model) readFromLogChannel(ctx context.Context, logChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-logChan:
			if !ok {
				return
			}
			m.logMu.Lock()
			m.logLines = append(m.logLines, line)
			if len(m.logLines) > maxLogLines {
				m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
			}
			m.logMu.Unlock()

			m.logEvent.Notify(line)
		}
	}
}

// GetLogTail returns the last n lines of logs
func (m *Model) GetLogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if n <= 0 {
		return []string{}
	}
	if n > len(m.logLines) {
		n = len(m.logLines)
	}
	result := make([]string, n)
	copy(result, m.logLines[len(m.logLines)-n:])
	return result
}
