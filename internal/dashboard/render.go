package dashboard

import (
	"fmt"
	"math"
	"strings"

	"github.com/lowaak/nrg-watch/internal/tracker"
)

const progressBarWidth = 20

const instructionsText = "[yellow]s[white] Start  |  [yellow]g[white] Gel (hold)  |  [yellow]c[white] Confirm (hold)  |  [yellow]Space[white] Release  |  [yellow]u[white] Undo  |  [yellow]f[white] Finish\n[yellow]Tab[white] Home/Metrics  |  [yellow]Esc[white] Quit"

func progressBar(fraction float64, width int) string {
	fraction = math.Max(0, math.Min(1, fraction))
	filled := int(math.Round(fraction * float64(width)))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func lastGelText(status tracker.Status) string {
	if status.State.LastSupplementElapsedSeconds <= 0 {
		return "00:00:00"
	}
	return tracker.FormatGelTime(status.State.LastSupplementElapsedSeconds)
}

func renderHome(state ViewState) string {
	status := state.Status
	pace, ok := status.Pace()

	var b strings.Builder
	fmt.Fprintf(&b, "\n  [::b]%s[::-]\n\n", tracker.FormatElapsed(status.State.ElapsedSeconds))
	fmt.Fprintf(&b, "  Avg Pace   %s\n", tracker.FormatPaceKmh(pace, ok))
	fmt.Fprintf(&b, "  Last Gel   %s\n", lastGelText(status))
	fmt.Fprintf(&b, "  Distance   %s\n", tracker.FormatDistanceKm(status.State.TotalDistanceMeters))
	fmt.Fprintf(&b, "  HR         %s\n", tracker.FormatOptional(status.Sensors.HeartRateBpm, "%.0f BPM"))

	if !status.Running {
		b.WriteString("\n  [gray]Press s to start a run[white]\n")
	}
	if state.HoldProgress > 0 {
		fmt.Fprintf(&b, "\n  Recording gel %s\n", progressBar(state.HoldProgress, progressBarWidth))
	}
	return b.String()
}

func renderMetrics(state ViewState) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, row := range tracker.MetricRows(state.Status) {
		fmt.Fprintf(&b, "  %-16s [green]%s[white]\n", row.Title, row.Value)
	}
	return b.String()
}

func renderSupplement(state ViewState) string {
	reason := "Take a gel"
	if state.Status.LastReason != nil {
		reason = state.Status.LastReason.Description()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n  [yellow::b]%s[-::-]\n\n", reason)
	fmt.Fprintf(&b, "  Elapsed    %s\n", tracker.FormatElapsed(state.Status.State.ElapsedSeconds))
	fmt.Fprintf(&b, "  Last Gel   %s\n\n", lastGelText(state.Status))
	fmt.Fprintf(&b, "  Hold c to confirm %s\n", progressBar(state.HoldProgress, progressBarWidth))
	return b.String()
}

func renderUndo(state ViewState) string {
	remaining := int(math.Ceil(state.UndoRemaining.Seconds()))
	source := "Gel"
	if state.Status.Event != nil && state.Status.Event.Source == tracker.SourceAutomatic {
		source = "Alert gel"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n  [green::b]%s recorded in %ds[-::-]\n\n", source, remaining)
	b.WriteString("  Press u to undo\n")
	return b.String()
}

func renderStop(state ViewState) string {
	if state.Summary == nil {
		return "\n  [gray]No run yet[white]\n"
	}
	s := state.Summary

	var b strings.Builder
	b.WriteString("\n  [::b]Run complete[::-]\n\n")
	fmt.Fprintf(&b, "  Time       %s\n", tracker.FormatElapsed(s.ElapsedSeconds))
	fmt.Fprintf(&b, "  Distance   %s\n", tracker.FormatDistanceKm(s.DistanceMeters))
	fmt.Fprintf(&b, "  Avg Pace   %s\n", tracker.FormatPaceKmh(s.AveragePace, s.HasPace))
	fmt.Fprintf(&b, "  Calories   %.0f kcal\n", s.RunCaloriesKcal)
	fmt.Fprintf(&b, "  Gels       %d\n", len(s.Splits))
	for _, split := range s.Splits {
		fmt.Fprintf(&b, "    #%d  %s  %s  (%s)\n", split.Number,
			tracker.FormatGelTime(split.ElapsedSeconds), tracker.FormatDistanceKm(split.DistanceMeters), split.Source)
	}
	b.WriteString("\n  [gray]Press s to start another run[white]\n")
	return b.String()
}

func renderPage(state ViewState) string {
	switch state.Page {
	case PageMetrics:
		return renderMetrics(state)
	case PageSupplement:
		return renderSupplement(state)
	case PageUndo:
		return renderUndo(state)
	case PageStop:
		return renderStop(state)
	default:
		return renderHome(state)
	}
}

func pageTitle(page Page) string {
	switch page {
	case PageMetrics:
		return " Metrics "
	case PageSupplement:
		return " Gel Alert "
	case PageUndo:
		return " Gel Recorded "
	case PageStop:
		return " Summary "
	default:
		return " Run "
	}
}
