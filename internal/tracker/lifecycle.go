package tracker

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid supplement lifecycle transition")

// SupplementEvent is the single outstanding intake, if any.
type SupplementEvent struct {
	Source                 SupplementSource
	RaisedAtElapsedSeconds float64
}

// Lifecycle is the supplement intake state machine:
//
//	Idle --Raise--> Raised(automatic) --ConfirmAutomatic--> Awaiting(automatic)
//	Idle --ConfirmManual--> Awaiting(manual)
//	Awaiting --Expire(token)--> Idle (intake recorded)
//	Awaiting(automatic) --Undo--> Raised(automatic)
//	Awaiting(manual) --Undo--> Idle
//
// Each entry into Awaiting mints a countdown token. Expire only succeeds with
// the current token, so an undo or reset that races a countdown callback
// leaves that callback powerless.
//
// Lifecycle is not safe for concurrent use; the controller guards it.
type Lifecycle struct {
	state LifecycleState
	event *SupplementEvent
	token uint64
}

func (l *Lifecycle) State() LifecycleState {
	return l.state
}

// Event returns a copy of the outstanding event, or nil when idle.
func (l *Lifecycle) Event() *SupplementEvent {
	if l.event == nil {
		return nil
	}
	ev := *l.event
	return &ev
}

// EvaluationSuspended reports whether policy evaluation must be skipped.
func (l *Lifecycle) EvaluationSuspended() bool {
	return l.state != LifecycleIdle
}

// Raise records an automatic alert.
func (l *Lifecycle) Raise(elapsedSeconds float64) error {
	if l.state != LifecycleIdle {
		return fmt.Errorf("raise from %s: %w", l.state, ErrInvalidTransition)
	}
	l.state = LifecycleRaised
	l.event = &SupplementEvent{Source: SourceAutomatic, RaisedAtElapsedSeconds: elapsedSeconds}
	return nil
}

// ConfirmManual starts a manual intake and returns its countdown token.
func (l *Lifecycle) ConfirmManual(elapsedSeconds float64) (uint64, error) {
	if l.state != LifecycleIdle {
		return 0, fmt.Errorf("manual confirm from %s: %w", l.state, ErrInvalidTransition)
	}
	l.event = &SupplementEvent{Source: SourceManual, RaisedAtElapsedSeconds: elapsedSeconds}
	return l.enterAwaiting(), nil
}

// ConfirmAutomatic accepts a raised alert and returns its countdown token.
func (l *Lifecycle) ConfirmAutomatic() (uint64, error) {
	if l.state != LifecycleRaised {
		return 0, fmt.Errorf("automatic confirm from %s: %w", l.state, ErrInvalidTransition)
	}
	return l.enterAwaiting(), nil
}

// Undo cancels a pending intake before its countdown expires and returns the
// source of the cancelled event.
func (l *Lifecycle) Undo() (SupplementSource, error) {
	if l.state != LifecycleAwaitingConfirmation || l.event == nil {
		return 0, fmt.Errorf("undo from %s: %w", l.state, ErrInvalidTransition)
	}
	l.token++
	source := l.event.Source
	if source == SourceAutomatic {
		l.state = LifecycleRaised
	} else {
		l.state = LifecycleIdle
		l.event = nil
	}
	return source, nil
}

// Expire completes the intake if token is still current. The returned event
// is the one to record.
func (l *Lifecycle) Expire(token uint64) (SupplementEvent, bool) {
	if l.state != LifecycleAwaitingConfirmation || l.event == nil || token != l.token {
		return SupplementEvent{}, false
	}
	ev := *l.event
	l.token++
	l.state = LifecycleIdle
	l.event = nil
	return ev, true
}

// Reset discards any outstanding event and invalidates pending countdowns.
func (l *Lifecycle) Reset() {
	l.token++
	l.state = LifecycleIdle
	l.event = nil
}

func (l *Lifecycle) enterAwaiting() uint64 {
	l.token++
	l.state = LifecycleAwaitingConfirmation
	return l.token
}
