package tracker

import "time"

// PolicyConfig holds the thresholds of the supplement rules.
type PolicyConfig struct {
	// TimeSinceGelThreshold raises an alert once this long has passed since
	// the last gel (or since the session started).
	TimeSinceGelThreshold time.Duration
	// HRVLowThresholdMs raises an alert when HRV drops strictly below it.
	HRVLowThresholdMs float64
	// MinGelInterval is the minimum gap since the last gel before the
	// calorie-burn rule may fire.
	MinGelInterval time.Duration
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		TimeSinceGelThreshold: DefaultTimeSinceGelThreshold,
		HRVLowThresholdMs:     DefaultHRVLowThresholdMs,
		MinGelInterval:        DefaultMinGelInterval,
	}
}

// TestModePolicyConfig shortens the time rule so the alert flow can be
// exercised in a short run.
func TestModePolicyConfig() PolicyConfig {
	cfg := DefaultPolicyConfig()
	cfg.TimeSinceGelThreshold = TestModeTimeSinceGelThreshold
	return cfg
}

// PolicyEngine decides whether the athlete should take a gel.
// It is stateless; the caller suspends evaluation while an intake is pending.
type PolicyEngine struct {
	config PolicyConfig
}

func NewPolicyEngine(config PolicyConfig) *PolicyEngine {
	def := DefaultPolicyConfig()
	if config.TimeSinceGelThreshold <= 0 {
		config.TimeSinceGelThreshold = def.TimeSinceGelThreshold
	}
	if config.HRVLowThresholdMs <= 0 {
		config.HRVLowThresholdMs = def.HRVLowThresholdMs
	}
	if config.MinGelInterval <= 0 {
		config.MinGelInterval = def.MinGelInterval
	}
	return &PolicyEngine{config: config}
}

func (e *PolicyEngine) Config() PolicyConfig {
	return e.config
}

// Evaluate applies the rules in priority order and returns the first match:
// time since last gel, then low HRV, then calorie burn.
func (e *PolicyEngine) Evaluate(state SessionState, snapshot SensorSnapshot, profile AthleteProfile) (TriggerReason, bool) {
	sinceLast := state.ElapsedSeconds - state.LastSupplementElapsedSeconds

	if sinceLast >= e.config.TimeSinceGelThreshold.Seconds() {
		return ReasonTimeSinceLastGel, true
	}

	if hrv := snapshot.HeartRateVariabilityMs; hrv != nil && *hrv < e.config.HRVLowThresholdMs {
		return ReasonLowHeartRateVariability, true
	}

	if state.TotalCaloriesBurnedKcal >= float64(profile.GelCalorieThresholdKcal) &&
		sinceLast >= e.config.MinGelInterval.Seconds() {
		return ReasonCalorieBurn, true
	}

	return 0, false
}
