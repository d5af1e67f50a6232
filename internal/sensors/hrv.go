package sensors

import "math"

// HRVWindow keeps the most recent RR intervals and reports their RMSSD, the
// root mean square of successive differences.
type HRVWindow struct {
	size      int
	intervals []float64
}

// NewHRVWindow keeps up to size intervals. size is raised to 2, the least
// that yields one difference.
func NewHRVWindow(size int) *HRVWindow {
	if size < 2 {
		size = 2
	}
	return &HRVWindow{size: size, intervals: make([]float64, 0, size)}
}

// Add appends RR intervals in milliseconds. Non-positive values are dropped.
func (w *HRVWindow) Add(rrMs ...float64) {
	for _, rr := range rrMs {
		if rr <= 0 || math.IsNaN(rr) {
			continue
		}
		if len(w.intervals) == w.size {
			copy(w.intervals, w.intervals[1:])
			w.intervals = w.intervals[:w.size-1]
		}
		w.intervals = append(w.intervals, rr)
	}
}

func (w *HRVWindow) Len() int {
	return len(w.intervals)
}

// RMSSD is false until two intervals are known.
func (w *HRVWindow) RMSSD() (float64, bool) {
	if len(w.intervals) < 2 {
		return 0, false
	}
	var sum float64
	for i := 1; i < len(w.intervals); i++ {
		d := w.intervals[i] - w.intervals[i-1]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(w.intervals)-1)), true
}

func (w *HRVWindow) Reset() {
	w.intervals = w.intervals[:0]
}
