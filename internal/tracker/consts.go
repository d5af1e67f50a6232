package tracker

import "time"

// Session timing
const (
	DefaultTickInterval = 1 * time.Second
	DefaultHoldDuration = 3 * time.Second
	DefaultUndoWindow   = 5 * time.Second
)

// Supplement policy thresholds
const (
	DefaultTimeSinceGelThreshold  = 45 * time.Minute
	TestModeTimeSinceGelThreshold = 30 * time.Second
	DefaultHRVLowThresholdMs      = 65.0
	DefaultMinGelInterval         = 30 * time.Minute
)

// Athlete profile defaults. The body mass range matches the onboarding picker.
const (
	DefaultGelCalorieThresholdKcal = 75
	FallbackRestingVO2             = 3.5
	DefaultBodyMassKg              = 70.0
	MinBodyMassKg                  = 40.0
	MaxBodyMassKg                  = 140.0
)

// ACSM running equation constants
const (
	MetersPerFloor        = 3.0
	KcalPerLiterO2        = 4.9
	horizontalVO2PerMeter = 0.2
	verticalVO2PerMeter   = 0.9
)

// SupplementSource records who initiated a supplement intake.
type SupplementSource int

const (
	SourceManual SupplementSource = iota
	SourceAutomatic
)

func (s SupplementSource) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourceAutomatic:
		return "automatic"
	default:
		return "unknown"
	}
}

// LifecycleState is the state of the supplement intake state machine.
type LifecycleState int

const (
	LifecycleIdle LifecycleState = iota
	LifecycleRaised
	LifecycleAwaitingConfirmation
)

func (s LifecycleState) String() string {
	switch s {
	case LifecycleIdle:
		return "idle"
	case LifecycleRaised:
		return "raised"
	case LifecycleAwaitingConfirmation:
		return "awaiting-confirmation"
	default:
		return "unknown"
	}
}

// TriggerReason names the policy rule that raised an alert.
type TriggerReason int

const (
	ReasonTimeSinceLastGel TriggerReason = iota
	ReasonLowHeartRateVariability
	ReasonCalorieBurn
)

func (r TriggerReason) String() string {
	switch r {
	case ReasonTimeSinceLastGel:
		return "time-since-last-gel"
	case ReasonLowHeartRateVariability:
		return "low-hrv"
	case ReasonCalorieBurn:
		return "calorie-burn"
	default:
		return "unknown"
	}
}

// Description is the athlete facing text for the reason.
func (r TriggerReason) Description() string {
	switch r {
	case ReasonTimeSinceLastGel:
		return "Time for a gel"
	case ReasonLowHeartRateVariability:
		return "HRV is low, take a gel"
	case ReasonCalorieBurn:
		return "Calorie burn reached your gel serving"
	default:
		return "Take a gel"
	}
}

// TransitionKind identifies a lifecycle change reported to listeners.
type TransitionKind int

const (
	TransitionRaised TransitionKind = iota
	TransitionAwaiting
	TransitionRecorded
	TransitionUndone
	TransitionDiscarded
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionRaised:
		return "raised"
	case TransitionAwaiting:
		return "awaiting"
	case TransitionRecorded:
		return "recorded"
	case TransitionUndone:
		return "undone"
	case TransitionDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}
