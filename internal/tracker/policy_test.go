package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyEngine_RulePriority(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicyConfig())
	profile := DefaultProfile()

	// every rule matches; the time rule wins
	state := SessionState{ElapsedSeconds: 2700, LastSupplementElapsedSeconds: 0, TotalCaloriesBurnedKcal: 80}
	reason, ok := engine.Evaluate(state, SensorSnapshot{HeartRateVariabilityMs: Float(50)}, profile)
	assert.True(t, ok)
	assert.Equal(t, ReasonTimeSinceLastGel, reason)
}

func TestPolicyEngine_TimeSinceLastGel(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicyConfig())
	profile := DefaultProfile()

	_, ok := engine.Evaluate(SessionState{ElapsedSeconds: 2699}, SensorSnapshot{}, profile)
	assert.False(t, ok)

	reason, ok := engine.Evaluate(SessionState{ElapsedSeconds: 2700}, SensorSnapshot{}, profile)
	assert.True(t, ok)
	assert.Equal(t, ReasonTimeSinceLastGel, reason)

	_, ok = engine.Evaluate(SessionState{ElapsedSeconds: 4000, LastSupplementElapsedSeconds: 1500}, SensorSnapshot{}, profile)
	assert.False(t, ok, "measured from the last gel, not from the start")
}

func TestPolicyEngine_LowHRV(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicyConfig())
	profile := DefaultProfile()
	state := SessionState{ElapsedSeconds: 600}

	reason, ok := engine.Evaluate(state, SensorSnapshot{HeartRateVariabilityMs: Float(64.9)}, profile)
	assert.True(t, ok)
	assert.Equal(t, ReasonLowHeartRateVariability, reason)

	_, ok = engine.Evaluate(state, SensorSnapshot{HeartRateVariabilityMs: Float(65)}, profile)
	assert.False(t, ok, "threshold itself is not low")

	_, ok = engine.Evaluate(state, SensorSnapshot{HeartRateVariabilityMs: Float(90)}, profile)
	assert.False(t, ok)

	_, ok = engine.Evaluate(state, SensorSnapshot{}, profile)
	assert.False(t, ok, "missing HRV never fires")
}

func TestPolicyEngine_CalorieBurn(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicyConfig())
	profile := DefaultProfile()

	reason, ok := engine.Evaluate(SessionState{ElapsedSeconds: 1800, TotalCaloriesBurnedKcal: 75}, SensorSnapshot{}, profile)
	assert.True(t, ok)
	assert.Equal(t, ReasonCalorieBurn, reason)

	_, ok = engine.Evaluate(SessionState{ElapsedSeconds: 1799, TotalCaloriesBurnedKcal: 500}, SensorSnapshot{}, profile)
	assert.False(t, ok, "minimum interval not reached")

	_, ok = engine.Evaluate(SessionState{ElapsedSeconds: 2000, TotalCaloriesBurnedKcal: 74.9}, SensorSnapshot{}, profile)
	assert.False(t, ok, "below the gel serving")

	profile.GelCalorieThresholdKcal = 120
	_, ok = engine.Evaluate(SessionState{ElapsedSeconds: 2000, TotalCaloriesBurnedKcal: 100}, SensorSnapshot{}, profile)
	assert.False(t, ok, "threshold comes from the profile")
}

func TestPolicyEngine_ScenarioA(t *testing.T) {
	engine := NewPolicyEngine(DefaultPolicyConfig())
	state := SessionState{ElapsedSeconds: 2700, LastSupplementElapsedSeconds: 0, TotalCaloriesBurnedKcal: 70}
	reason, ok := engine.Evaluate(state, SensorSnapshot{HeartRateVariabilityMs: Float(50)}, DefaultProfile())
	assert.True(t, ok)
	assert.Equal(t, ReasonTimeSinceLastGel, reason)
}

func TestPolicyEngine_TestMode(t *testing.T) {
	engine := NewPolicyEngine(TestModePolicyConfig())
	reason, ok := engine.Evaluate(SessionState{ElapsedSeconds: 30}, SensorSnapshot{}, DefaultProfile())
	assert.True(t, ok)
	assert.Equal(t, ReasonTimeSinceLastGel, reason)
}

func TestNewPolicyEngine_FillsDefaults(t *testing.T) {
	engine := NewPolicyEngine(PolicyConfig{TimeSinceGelThreshold: time.Hour})
	cfg := engine.Config()
	assert.Equal(t, time.Hour, cfg.TimeSinceGelThreshold)
	assert.Equal(t, DefaultHRVLowThresholdMs, cfg.HRVLowThresholdMs)
	assert.Equal(t, DefaultMinGelInterval, cfg.MinGelInterval)
}
