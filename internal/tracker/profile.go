package tracker

// AthleteProfile holds the per-athlete parameters used by the calorie
// estimator and the calorie-burn rule.
type AthleteProfile struct {
	RestingVO2MlPerKgPerMin float64
	BodyMassKg              float64
	GelCalorieThresholdKcal int
}

// ProfileUpdate is a partial profile delivered by the companion channel.
// Nil fields leave the current value untouched.
type ProfileUpdate struct {
	RestingVO2MlPerKgPerMin *float64
	BodyMassKg              *float64
	GelCalorieThresholdKcal *int
}

// DefaultProfile is the profile used before onboarding has chosen a body mass.
func DefaultProfile() AthleteProfile {
	return AthleteProfile{
		RestingVO2MlPerKgPerMin: FallbackRestingVO2,
		BodyMassKg:              DefaultBodyMassKg,
		GelCalorieThresholdKcal: DefaultGelCalorieThresholdKcal,
	}
}

// WithFallbacks replaces every non-positive field with its default.
func (p AthleteProfile) WithFallbacks() AthleteProfile {
	def := DefaultProfile()
	if p.RestingVO2MlPerKgPerMin <= 0 {
		p.RestingVO2MlPerKgPerMin = def.RestingVO2MlPerKgPerMin
	}
	if p.BodyMassKg <= 0 {
		p.BodyMassKg = def.BodyMassKg
	}
	if p.GelCalorieThresholdKcal <= 0 {
		p.GelCalorieThresholdKcal = def.GelCalorieThresholdKcal
	}
	return p
}

// Apply merges u into p, last write wins. Non-positive values are ignored.
// The returned bool reports whether anything changed.
func (p AthleteProfile) Apply(u ProfileUpdate) (AthleteProfile, bool) {
	changed := false
	if u.RestingVO2MlPerKgPerMin != nil && *u.RestingVO2MlPerKgPerMin > 0 && *u.RestingVO2MlPerKgPerMin != p.RestingVO2MlPerKgPerMin {
		p.RestingVO2MlPerKgPerMin = *u.RestingVO2MlPerKgPerMin
		changed = true
	}
	if u.BodyMassKg != nil && *u.BodyMassKg > 0 && *u.BodyMassKg != p.BodyMassKg {
		p.BodyMassKg = *u.BodyMassKg
		changed = true
	}
	if u.GelCalorieThresholdKcal != nil && *u.GelCalorieThresholdKcal > 0 && *u.GelCalorieThresholdKcal != p.GelCalorieThresholdKcal {
		p.GelCalorieThresholdKcal = *u.GelCalorieThresholdKcal
		changed = true
	}
	return p, changed
}

// IsEmpty reports whether the update carries no fields.
func (u ProfileUpdate) IsEmpty() bool {
	return u.RestingVO2MlPerKgPerMin == nil && u.BodyMassKg == nil && u.GelCalorieThresholdKcal == nil
}

// ClampBodyMass limits an onboarding body mass to the picker range.
func ClampBodyMass(kg float64) float64 {
	if kg < MinBodyMassKg {
		return MinBodyMassKg
	}
	if kg > MaxBodyMassKg {
		return MaxBodyMassKg
	}
	return kg
}
