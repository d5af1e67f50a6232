package tracker

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lowaak/nrg-watch/internal/events"
)

var (
	ErrSessionNotRunning = errors.New("session not running")
	ErrSessionRunning    = errors.New("session already running")
)

// SessionState is the cumulative state of the current run.
type SessionState struct {
	ElapsedSeconds               float64
	TotalDistanceMeters          float64
	CurrentSpeedMetersPerSecond  *float64
	CurrentGrade                 float64
	TotalCaloriesBurnedKcal      float64 // since the last recorded gel
	LastSupplementElapsedSeconds float64 // 0 means none yet
	SupplementHistory            []float64
}

func (s SessionState) clone() SessionState {
	out := s
	out.CurrentSpeedMetersPerSecond = cloneFloat(s.CurrentSpeedMetersPerSecond)
	out.SupplementHistory = append([]float64(nil), s.SupplementHistory...)
	return out
}

// GelSplit records where in the run a gel was taken.
type GelSplit struct {
	Number         int
	ElapsedSeconds float64
	DistanceMeters float64
	Source         SupplementSource
}

// Alert is emitted once each time the policy raises a new supplement alert.
type Alert struct {
	SessionID              string
	Reason                 TriggerReason
	RaisedAtElapsedSeconds float64
}

// Transition describes a lifecycle change.
type Transition struct {
	SessionID      string
	Kind           TransitionKind
	Source         SupplementSource
	ElapsedSeconds float64
}

// Status is a point-in-time copy of everything the UI renders.
type Status struct {
	SessionID       string
	Running         bool
	State           SessionState
	Sensors         SensorSnapshot
	Profile         AthleteProfile
	Lifecycle       LifecycleState
	Event           *SupplementEvent
	LastReason      *TriggerReason
	Splits          []GelSplit
	RunCaloriesKcal float64
}

// Pace returns average speed in m/s. ok is false before any time has elapsed.
func (s Status) Pace() (float64, bool) {
	return averagePace(s.State.TotalDistanceMeters, s.State.ElapsedSeconds)
}

// RunSummary is returned when a session stops.
type RunSummary struct {
	SessionID         string
	ElapsedSeconds    float64
	DistanceMeters    float64
	AveragePace       float64
	HasPace           bool
	RunCaloriesKcal   float64
	SupplementHistory []float64
	Splits            []GelSplit
}

// StartOptions tunes StartSession.
type StartOptions struct {
	// KeepLastSupplement carries the previous session's raw
	// LastSupplementElapsedSeconds into the new session instead of zeroing it.
	KeepLastSupplement bool
}

// ControllerConfig configures a Controller. Zero values take defaults.
type ControllerConfig struct {
	Clock        Clock
	Policy       PolicyConfig
	TickInterval time.Duration
	HoldDuration time.Duration
	UndoWindow   time.Duration
	Profile      AthleteProfile
	NewSessionID func() string
}

// Controller owns the session state and is the only writer to it. Every
// mutation happens under mu; listeners are notified after mu is released
// through non-blocking events, so a listener may call straight back in.
type Controller struct {
	logger       *log.Logger
	clock        Clock
	policy       *PolicyEngine
	undoWindow   time.Duration
	newSessionID func() string

	sessionClock *SessionClock
	hold         *HoldGesture
	aggregator   *Aggregator

	mu              sync.Mutex
	running         bool
	sessionID       string
	clockGeneration uint64
	state           SessionState
	profile         AthleteProfile
	lifecycle       Lifecycle
	countdown       Timer
	splits          []GelSplit
	prevElapsed     float64
	runCalories     float64
	lastReason      *TriggerReason

	// Sources report cumulative counters from their own start, which may be
	// long before the session. Counters are rebased to the raw values last
	// seen when the session started.
	rawDistance      float64
	rawFloors        float64
	distanceBaseline float64
	floorsBaseline   float64

	// LastSupplementElapsedSeconds of the stopped session, for KeepLastSupplement.
	keptLastSupplement float64

	statusEvent     *events.ChannelEvent[Status]
	alertEvent      *events.ChannelEvent[Alert]
	transitionEvent *events.ChannelEvent[Transition]

	shutdownOnce sync.Once
}

// NewController creates a Controller with no running session.
func NewController(cfg ControllerConfig, logger *log.Logger) *Controller {
	if logger == nil {
		panic("SessionController: logger cannot be nil")
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.UndoWindow <= 0 {
		cfg.UndoWindow = DefaultUndoWindow
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = uuid.NewString
	}

	c := &Controller{
		logger:          logger,
		clock:           cfg.Clock,
		policy:          NewPolicyEngine(cfg.Policy),
		undoWindow:      cfg.UndoWindow,
		newSessionID:    cfg.NewSessionID,
		hold:            NewHoldGesture(cfg.Clock, cfg.HoldDuration),
		aggregator:      NewAggregator(),
		profile:         cfg.Profile.WithFallbacks(),
		statusEvent:     events.NewChannelEvent[Status](true),
		alertEvent:      events.NewChannelEvent[Alert](false),
		transitionEvent: events.NewChannelEvent[Transition](false),
	}
	c.sessionClock = NewSessionClock(cfg.Clock, cfg.TickInterval, c.onTick, logger)
	return c
}

// --- Commands ---

// StartSession resets the session state and starts the clock. The given
// profile replaces the current one; zero fields fall back to defaults.
func (c *Controller) StartSession(profile AthleteProfile, opts StartOptions) (string, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Printf("SessionController: Cannot start - session %s already running", c.SessionID())
		return "", ErrSessionRunning
	}

	lastSupplement := 0.0
	if opts.KeepLastSupplement {
		lastSupplement = c.keptLastSupplement
	}

	c.sessionID = c.newSessionID()
	c.profile = profile.WithFallbacks()
	c.state = SessionState{LastSupplementElapsedSeconds: lastSupplement}
	c.splits = nil
	c.prevElapsed = 0
	c.runCalories = 0
	c.lastReason = nil
	c.lifecycle.Reset()
	c.stopCountdownLocked()
	c.aggregator.Reset()
	c.distanceBaseline = c.rawDistance
	c.floorsBaseline = c.rawFloors
	c.running = true
	c.clockGeneration = c.sessionClock.Start()

	sessionID := c.sessionID
	status := c.statusLocked()
	c.mu.Unlock()

	c.hold.Release()
	c.logger.Printf("SessionController: Session %s started (mass %.1f kg, VO2 %.1f, gel serving %d kcal)",
		sessionID, status.Profile.BodyMassKg, status.Profile.RestingVO2MlPerKgPerMin, status.Profile.GelCalorieThresholdKcal)
	c.statusEvent.Notify(status)
	return sessionID, nil
}

// StopSession stops the clock, discards any pending intake and returns the
// run summary. Live state and sensor values are cleared; supplement history
// stays readable until the next start.
func (c *Controller) StopSession() (RunSummary, error) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return RunSummary{}, ErrSessionNotRunning
	}

	c.sessionClock.Stop()
	c.running = false
	discarded := c.lifecycle.State() != LifecycleIdle
	c.lifecycle.Reset()
	c.stopCountdownLocked()
	c.lastReason = nil

	pace, hasPace := averagePace(c.state.TotalDistanceMeters, c.state.ElapsedSeconds)
	summary := RunSummary{
		SessionID:         c.sessionID,
		ElapsedSeconds:    c.state.ElapsedSeconds,
		DistanceMeters:    c.state.TotalDistanceMeters,
		AveragePace:       pace,
		HasPace:           hasPace,
		RunCaloriesKcal:   c.runCalories,
		SupplementHistory: append([]float64(nil), c.state.SupplementHistory...),
		Splits:            append([]GelSplit(nil), c.splits...),
	}
	var transition *Transition
	if discarded {
		transition = &Transition{SessionID: c.sessionID, Kind: TransitionDiscarded, ElapsedSeconds: c.state.ElapsedSeconds}
	}
	c.keptLastSupplement = c.state.LastSupplementElapsedSeconds
	c.state = SessionState{SupplementHistory: c.state.SupplementHistory}
	c.prevElapsed = 0
	c.aggregator.Reset()
	status := c.statusLocked()
	c.mu.Unlock()

	c.hold.Release()
	c.logger.Printf("SessionController: Session %s stopped at %s, %.0f m, %d gels",
		summary.SessionID, FormatElapsed(summary.ElapsedSeconds), summary.DistanceMeters, len(summary.SupplementHistory))
	if transition != nil {
		c.transitionEvent.Notify(*transition)
	}
	c.statusEvent.Notify(status)
	return summary, nil
}

// OnSensorUpdate merges a partial sample. Cumulative distance and floors are
// reported relative to the values seen when the session started. Updates
// while no session runs only move that starting point.
func (c *Controller) OnSensorUpdate(partial SensorSnapshot) {
	if partial.IsEmpty() {
		return
	}

	c.mu.Lock()
	if partial.DistanceMeters != nil {
		c.rawDistance = *partial.DistanceMeters
	}
	if partial.ElevationDeltaFloors != nil {
		c.rawFloors = *partial.ElevationDeltaFloors
	}
	if !c.running {
		c.mu.Unlock()
		return
	}
	partial = c.rebaseLocked(partial)
	snapshot := c.aggregator.ApplyUpdate(partial)
	if partial.DistanceMeters != nil {
		c.state.TotalDistanceMeters = *partial.DistanceMeters
	}
	if partial.SpeedMetersPerSecond != nil {
		c.state.CurrentSpeedMetersPerSecond = cloneFloat(partial.SpeedMetersPerSecond)
	}
	if partial.DistanceMeters != nil || partial.ElevationDeltaFloors != nil {
		c.state.CurrentGrade = ConvertFloorsToGrade(snapshot.ElevationDeltaFloors, c.state.TotalDistanceMeters)
	}
	status := c.statusLocked()
	c.mu.Unlock()

	c.statusEvent.Notify(status)
}

// ConfirmManual records that the athlete is taking a gel unprompted. The
// intake is recorded when the undo window expires.
func (c *Controller) ConfirmManual() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrSessionNotRunning
	}
	elapsed := c.sessionClock.Elapsed().Seconds()
	token, err := c.lifecycle.ConfirmManual(elapsed)
	if err != nil {
		c.mu.Unlock()
		c.logger.Printf("SessionController: Ignoring manual confirm: %v", err)
		return err
	}
	c.armCountdownLocked(token)
	transition := Transition{SessionID: c.sessionID, Kind: TransitionAwaiting, Source: SourceManual, ElapsedSeconds: elapsed}
	status := c.statusLocked()
	c.mu.Unlock()

	c.logger.Printf("SessionController: Manual gel at %s, recording in %v unless undone", FormatElapsed(elapsed), c.undoWindow)
	c.transitionEvent.Notify(transition)
	c.statusEvent.Notify(status)
	return nil
}

// ConfirmAutomatic accepts the raised alert.
func (c *Controller) ConfirmAutomatic() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrSessionNotRunning
	}
	token, err := c.lifecycle.ConfirmAutomatic()
	if err != nil {
		c.mu.Unlock()
		c.logger.Printf("SessionController: Ignoring automatic confirm: %v", err)
		return err
	}
	c.armCountdownLocked(token)
	elapsed := c.sessionClock.Elapsed().Seconds()
	transition := Transition{SessionID: c.sessionID, Kind: TransitionAwaiting, Source: SourceAutomatic, ElapsedSeconds: elapsed}
	status := c.statusLocked()
	c.mu.Unlock()

	c.logger.Printf("SessionController: Alert accepted at %s, recording in %v unless undone", FormatElapsed(elapsed), c.undoWindow)
	c.transitionEvent.Notify(transition)
	c.statusEvent.Notify(status)
	return nil
}

// Undo cancels a pending intake. An automatic intake returns to the raised
// alert, a manual one returns to idle. After the intake has been recorded
// Undo changes nothing and returns ErrInvalidTransition.
func (c *Controller) Undo() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrSessionNotRunning
	}
	source, err := c.lifecycle.Undo()
	if err != nil {
		c.mu.Unlock()
		c.logger.Printf("SessionController: Nothing to undo: %v", err)
		return err
	}
	c.stopCountdownLocked()
	elapsed := c.sessionClock.Elapsed().Seconds()
	transition := Transition{SessionID: c.sessionID, Kind: TransitionUndone, Source: source, ElapsedSeconds: elapsed}
	status := c.statusLocked()
	c.mu.Unlock()

	c.logger.Printf("SessionController: %s gel undone at %s", source, FormatElapsed(elapsed))
	c.transitionEvent.Notify(transition)
	c.statusEvent.Notify(status)
	return nil
}

// UpdateAthleteProfile applies a partial profile from the companion device.
// Late and duplicate updates are accepted, last write wins.
func (c *Controller) UpdateAthleteProfile(update ProfileUpdate) {
	c.mu.Lock()
	profile, changed := c.profile.Apply(update)
	c.profile = profile
	status := c.statusLocked()
	c.mu.Unlock()

	if !changed {
		return
	}
	c.logger.Printf("SessionController: Profile updated (mass %.1f kg, gel serving %d kcal)",
		profile.BodyMassKg, profile.GelCalorieThresholdKcal)
	c.statusEvent.Notify(status)
}

// BeginManualHold starts the hold that leads to ConfirmManual.
func (c *Controller) BeginManualHold() error {
	return c.beginHold(LifecycleIdle, func() {
		_ = c.ConfirmManual()
	})
}

// BeginConfirmHold starts the hold that accepts a raised alert.
func (c *Controller) BeginConfirmHold() error {
	return c.beginHold(LifecycleRaised, func() {
		_ = c.ConfirmAutomatic()
	})
}

// ReleaseHold ends a hold. It reports true if a hold was cut short.
func (c *Controller) ReleaseHold() bool {
	return c.hold.Release()
}

// HoldProgress is the completed fraction of the current hold.
func (c *Controller) HoldProgress() float64 {
	return c.hold.Progress()
}

// Shutdown stops the session clock and any pending timers.
// Safe to call multiple times - only the first call has effect.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.logger.Printf("SessionController: Shutting down")
		c.hold.Release()
		c.mu.Lock()
		c.sessionClock.Stop()
		c.running = false
		c.lifecycle.Reset()
		c.stopCountdownLocked()
		c.mu.Unlock()
		c.logger.Printf("SessionController: Shutdown complete")
	})
}

// --- Queries ---

func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) ElapsedSeconds() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ElapsedSeconds
}

// Pace returns average speed in m/s; ok is false while elapsed is zero.
func (c *Controller) Pace() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return averagePace(c.state.TotalDistanceMeters, c.state.ElapsedSeconds)
}

func (c *Controller) TotalDistanceMeters() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TotalDistanceMeters
}

func (c *Controller) CurrentGrade() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CurrentGrade
}

func (c *Controller) TotalCaloriesBurnedKcal() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TotalCaloriesBurnedKcal
}

func (c *Controller) LastSupplementElapsedSeconds() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.LastSupplementElapsedSeconds
}

func (c *Controller) LifecycleState() LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifecycle.State()
}

func (c *Controller) SupplementHistory() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.state.SupplementHistory...)
}

func (c *Controller) GelSplits() []GelSplit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]GelSplit(nil), c.splits...)
}

func (c *Controller) Profile() AthleteProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// --- Events ---

// ListenToStatus registers a channel to receive a Status after every change.
// The latest Status is replayed on registration.
// Returns a deregistration function that can be called to remove the listener
func (c *Controller) ListenToStatus(ch chan<- Status) func() {
	return c.statusEvent.Listen(ch)
}

// ListenToAlerts registers a channel to receive each newly raised alert.
// Returns a deregistration function that can be called to remove the listener
func (c *Controller) ListenToAlerts(ch chan<- Alert) func() {
	return c.alertEvent.Listen(ch)
}

// ListenToTransitions registers a channel to receive lifecycle transitions,
// including recorded intakes.
// Returns a deregistration function that can be called to remove the listener
func (c *Controller) ListenToTransitions(ch chan<- Transition) func() {
	return c.transitionEvent.Listen(ch)
}

// --- Private Methods ---

func (c *Controller) beginHold(required LifecycleState, onComplete func()) error {
	c.mu.Lock()
	running := c.running
	state := c.lifecycle.State()
	c.mu.Unlock()

	if !running {
		return ErrSessionNotRunning
	}
	if state != required {
		return ErrInvalidTransition
	}
	c.hold.Press(onComplete)
	return nil
}

// onTick advances elapsed time, accrues calories and evaluates the policy.
func (c *Controller) onTick(tick Tick) {
	c.mu.Lock()
	if !c.running || tick.Generation != c.clockGeneration {
		c.mu.Unlock()
		return
	}

	elapsed := tick.Elapsed.Seconds()
	dt := elapsed - c.prevElapsed
	if dt < 0 {
		dt = 0
	}
	c.prevElapsed = elapsed
	c.state.ElapsedSeconds = elapsed

	snapshot := c.aggregator.Snapshot()
	c.state.CurrentGrade = ConvertFloorsToGrade(snapshot.ElevationDeltaFloors, c.state.TotalDistanceMeters)
	kcal := EstimateIncrementalKcal(c.state.CurrentSpeedMetersPerSecond, c.state.CurrentGrade,
		c.profile.RestingVO2MlPerKgPerMin, c.profile.BodyMassKg, dt)
	c.state.TotalCaloriesBurnedKcal += kcal
	c.runCalories += kcal

	var alert *Alert
	if !c.lifecycle.EvaluationSuspended() {
		if reason, ok := c.policy.Evaluate(c.state, snapshot, c.profile); ok {
			if err := c.lifecycle.Raise(elapsed); err == nil {
				r := reason
				c.lastReason = &r
				alert = &Alert{SessionID: c.sessionID, Reason: reason, RaisedAtElapsedSeconds: elapsed}
			}
		}
	}
	status := c.statusLocked()
	c.mu.Unlock()

	if alert != nil {
		c.logger.Printf("SessionController: Gel alert at %s (%s)", FormatElapsed(alert.RaisedAtElapsedSeconds), alert.Reason)
		c.alertEvent.Notify(*alert)
		c.transitionEvent.Notify(Transition{
			SessionID:      alert.SessionID,
			Kind:           TransitionRaised,
			Source:         SourceAutomatic,
			ElapsedSeconds: alert.RaisedAtElapsedSeconds,
		})
	}
	c.statusEvent.Notify(status)
}

// onCountdownExpired is the single place an intake gets recorded.
func (c *Controller) onCountdownExpired(token uint64) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	event, ok := c.lifecycle.Expire(token)
	if !ok {
		c.mu.Unlock()
		return
	}
	c.countdown = nil
	elapsed := c.sessionClock.Elapsed().Seconds()
	split := c.finalizeLocked(event, elapsed)
	transition := Transition{SessionID: c.sessionID, Kind: TransitionRecorded, Source: event.Source, ElapsedSeconds: elapsed}
	status := c.statusLocked()
	c.mu.Unlock()

	c.logger.Printf("SessionController: Gel #%d (%s) recorded at %s, %.0f m", split.Number, split.Source,
		FormatElapsed(split.ElapsedSeconds), split.DistanceMeters)
	c.transitionEvent.Notify(transition)
	c.statusEvent.Notify(status)
}

// rebaseLocked makes cumulative counters relative to the session start. A
// distance below the baseline means the source restarted its counter.
// MUST be called with mu held.
func (c *Controller) rebaseLocked(partial SensorSnapshot) SensorSnapshot {
	out := partial.Clone()
	if out.DistanceMeters != nil {
		if *out.DistanceMeters < c.distanceBaseline {
			c.logger.Printf("SessionController: Distance counter went back from %.0f to %.0f m, rebasing",
				c.distanceBaseline, *out.DistanceMeters)
			c.distanceBaseline = 0
		}
		d := *out.DistanceMeters - c.distanceBaseline
		out.DistanceMeters = &d
	}
	if out.ElevationDeltaFloors != nil {
		f := *out.ElevationDeltaFloors - c.floorsBaseline
		out.ElevationDeltaFloors = &f
	}
	return out
}

// finalizeLocked records an intake and resets the calorie counter. Calories
// since the last tick count toward the run total only.
// MUST be called with mu held.
func (c *Controller) finalizeLocked(event SupplementEvent, elapsed float64) GelSplit {
	if dt := elapsed - c.prevElapsed; dt > 0 {
		c.runCalories += EstimateIncrementalKcal(c.state.CurrentSpeedMetersPerSecond, c.state.CurrentGrade,
			c.profile.RestingVO2MlPerKgPerMin, c.profile.BodyMassKg, dt)
		c.prevElapsed = elapsed
	}
	if elapsed > c.state.ElapsedSeconds {
		c.state.ElapsedSeconds = elapsed
	}
	c.state.SupplementHistory = append(c.state.SupplementHistory, elapsed)
	c.state.LastSupplementElapsedSeconds = elapsed
	c.state.TotalCaloriesBurnedKcal = 0
	c.lastReason = nil

	split := GelSplit{
		Number:         len(c.state.SupplementHistory),
		ElapsedSeconds: elapsed,
		DistanceMeters: c.state.TotalDistanceMeters,
		Source:         event.Source,
	}
	c.splits = append(c.splits, split)
	return split
}

// MUST be called with mu held.
func (c *Controller) armCountdownLocked(token uint64) {
	c.stopCountdownLocked()
	c.countdown = c.clock.AfterFunc(c.undoWindow, func() { c.onCountdownExpired(token) })
}

// MUST be called with mu held.
func (c *Controller) stopCountdownLocked() {
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
}

// MUST be called with mu held.
func (c *Controller) statusLocked() Status {
	var reason *TriggerReason
	if c.lastReason != nil {
		r := *c.lastReason
		reason = &r
	}
	return Status{
		SessionID:       c.sessionID,
		Running:         c.running,
		State:           c.state.clone(),
		Sensors:         c.aggregator.Snapshot(),
		Profile:         c.profile,
		Lifecycle:       c.lifecycle.State(),
		Event:           c.lifecycle.Event(),
		LastReason:      reason,
		Splits:          append([]GelSplit(nil), c.splits...),
		RunCaloriesKcal: c.runCalories,
	}
}

func averagePace(distanceMeters, elapsedSeconds float64) (float64, bool) {
	if elapsedSeconds <= 0 {
		return 0, false
	}
	return distanceMeters / elapsedSeconds, true
}
