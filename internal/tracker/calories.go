package tracker

import "math"

// EstimateIncrementalKcal returns the energy spent over tickSeconds using the
// ACSM running equation:
//
//	VO2 = 0.2*v + 0.9*v*grade + restingVO2   (v in m/min, VO2 in ml/kg/min)
//	kcal/min = VO2 * mass / 1000 * 4.9
//
// An unknown speed counts as standing still. The result is never negative,
// so a steep enough descent contributes nothing rather than subtracting.
func EstimateIncrementalKcal(speedMetersPerSecond *float64, grade, restingVO2, bodyMassKg, tickSeconds float64) float64 {
	if bodyMassKg <= 0 || tickSeconds <= 0 {
		return 0
	}
	speed := 0.0
	if speedMetersPerSecond != nil {
		speed = *speedMetersPerSecond
	}
	speedMetersPerMin := speed * 60
	vo2 := horizontalVO2PerMeter*speedMetersPerMin + verticalVO2PerMeter*speedMetersPerMin*grade + restingVO2
	litersPerMin := vo2 * bodyMassKg / 1000
	kcal := litersPerMin * KcalPerLiterO2 * tickSeconds / 60
	if kcal < 0 || math.IsNaN(kcal) {
		return 0
	}
	return kcal
}

// ConvertFloorsToGrade turns a floors-ascended count into a grade ratio,
// assuming 3 m per floor. Distances under one metre are treated as one metre.
func ConvertFloorsToGrade(floors *float64, totalDistanceMeters float64) float64 {
	if floors == nil {
		return 0
	}
	return *floors * MetersPerFloor / math.Max(totalDistanceMeters, 1)
}
