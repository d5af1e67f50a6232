package tracker

import (
	"fmt"
	"math"
)

const placeholder = "--"

func wholeSeconds(seconds float64) int {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return int(seconds)
}

// FormatElapsed renders seconds as MM:SS. Minutes keep counting past 59.
func FormatElapsed(seconds float64) string {
	s := wholeSeconds(seconds)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// FormatGelTime renders seconds as HH:MM:SS.
func FormatGelTime(seconds float64) string {
	s := wholeSeconds(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// FormatPaceKmh renders an m/s pace as km/h, or a placeholder when unknown.
func FormatPaceKmh(metersPerSecond float64, ok bool) string {
	if !ok {
		return placeholder
	}
	return fmt.Sprintf("%.2f km/h", metersPerSecond*3.6)
}

func FormatDistanceKm(meters float64) string {
	return fmt.Sprintf("%.2f km", meters/1000)
}

// FormatOptional renders v with format, or a placeholder when v is nil.
func FormatOptional(v *float64, format string) string {
	if v == nil {
		return placeholder
	}
	return fmt.Sprintf(format, *v)
}

// MetricRow is one labelled line of the metrics page.
type MetricRow struct {
	Title string
	Value string
}

// MetricRows lists every metric shown on the metrics page, in display order.
func MetricRows(s Status) []MetricRow {
	pace, ok := s.Pace()
	lastGel := "00:00:00"
	if s.State.LastSupplementElapsedSeconds > 0 {
		lastGel = FormatGelTime(s.State.LastSupplementElapsedSeconds)
	}
	return []MetricRow{
		{Title: "Elapsed Time", Value: FormatElapsed(s.State.ElapsedSeconds)},
		{Title: "Distance", Value: FormatDistanceKm(s.State.TotalDistanceMeters)},
		{Title: "Pace", Value: FormatPaceKmh(pace, ok)},
		{Title: "Running Speed", Value: FormatOptional(s.State.CurrentSpeedMetersPerSecond, "%.2f m/s")},
		{Title: "HRV", Value: FormatOptional(s.Sensors.HeartRateVariabilityMs, "%.0f ms")},
		{Title: "Heart Rate", Value: FormatOptional(s.Sensors.HeartRateBpm, "%.0f BPM")},
		{Title: "VO2 Max", Value: FormatOptional(s.Sensors.VO2MaxMlPerKgPerMin, "%.1f ml/kg/min")},
		{Title: "Grade", Value: fmt.Sprintf("%.2f", s.State.CurrentGrade)},
		{Title: "Last Gel", Value: lastGel},
		{Title: "Calories Burned", Value: fmt.Sprintf("%.0f kcal", s.State.TotalCaloriesBurnedKcal)},
		{Title: "Gel Serving", Value: fmt.Sprintf("%d kcal", s.Profile.GelCalorieThresholdKcal)},
	}
}
