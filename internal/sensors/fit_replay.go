package sensors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/tormoder/fit"

	"github.com/lowaak/nrg-watch/internal/go_func_utils"
	"github.com/lowaak/nrg-watch/internal/tracker"
)

var ErrNoFitRecords = errors.New("fit activity has no usable records")

// FIT timestamps count from this instant; anything at or before it is unset.
var fitEpoch = time.Date(1989, time.December, 31, 0, 0, 0, 0, time.UTC)

// FitPoint is one recorded sample, offset from the first record.
type FitPoint struct {
	Offset time.Duration
	Sample tracker.SensorSnapshot
}

// LoadFitFile reads and decodes a .fit activity file.
func LoadFitFile(path string) ([]FitPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fit file: %w", err)
	}
	return DecodeFitActivity(data)
}

func DecodeFitActivity(data []byte) ([]FitPoint, error) {
	decoded, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode fit: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("fit file is not an activity: %w", err)
	}
	points := fitRecordPoints(activity.Records)
	if len(points) == 0 {
		return nil, ErrNoFitRecords
	}
	return points, nil
}

// fitRecordPoints converts record messages to samples. Altitude becomes the
// cumulative ascent in floors. Records without a timestamp are skipped.
func fitRecordPoints(records []*fit.RecordMsg) []FitPoint {
	points := make([]FitPoint, 0, len(records))
	var start time.Time
	var lastAltitude, ascent float64
	haveAltitude := false

	for _, rec := range records {
		if rec == nil || !rec.Timestamp.After(fitEpoch) {
			continue
		}
		if start.IsZero() {
			start = rec.Timestamp
		}

		var sample tracker.SensorSnapshot
		if d := rec.GetDistanceScaled(); !math.IsNaN(d) {
			sample.DistanceMeters = tracker.Float(d)
		}
		if v := firstValid(rec.GetEnhancedSpeedScaled(), rec.GetSpeedScaled()); !math.IsNaN(v) {
			sample.SpeedMetersPerSecond = tracker.Float(v)
		}
		if alt := firstValid(rec.GetEnhancedAltitudeScaled(), rec.GetAltitudeScaled()); !math.IsNaN(alt) {
			if haveAltitude && alt > lastAltitude {
				ascent += alt - lastAltitude
			}
			lastAltitude, haveAltitude = alt, true
			sample.ElevationDeltaFloors = tracker.Float(ascent / tracker.MetersPerFloor)
		}
		if rec.HeartRate != 0xFF {
			sample.HeartRateBpm = tracker.Float(float64(rec.HeartRate))
		}
		if sample.IsEmpty() {
			continue
		}

		offset := rec.Timestamp.Sub(start)
		if offset < 0 {
			offset = 0
		}
		points = append(points, FitPoint{Offset: offset, Sample: sample})
	}
	return points
}

func firstValid(values ...float64) float64 {
	for _, v := range values {
		if !math.IsNaN(v) {
			return v
		}
	}
	return math.NaN()
}

type FitReplayConfig struct {
	Clock tracker.Clock
	// Speedup divides the recorded gaps between samples. Values <= 0 mean 1.
	Speedup float64
}

// FitReplay plays a recorded activity back as if it were live.
type FitReplay struct {
	sampleFeed
	logger  *log.Logger
	clock   tracker.Clock
	speedup float64
	points  []FitPoint

	mu         sync.Mutex
	running    bool
	started    bool
	generation uint64
	next       int
	timer      tracker.Timer

	doneChan chan struct{}
	finished chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ Source = (*FitReplay)(nil)

func NewFitReplay(logger *log.Logger, points []FitPoint, config FitReplayConfig) *FitReplay {
	if logger == nil {
		panic("FitReplay: logger cannot be nil")
	}
	if config.Clock == nil {
		config.Clock = tracker.RealClock()
	}
	if config.Speedup <= 0 {
		config.Speedup = 1
	}
	return &FitReplay{
		sampleFeed: newSampleFeed(),
		logger:     logger,
		clock:      config.Clock,
		speedup:    config.Speedup,
		points:     points,
		doneChan:   make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

func (r *FitReplay) Name() string {
	return "fit"
}

// Finished is closed after the last point has been emitted.
func (r *FitReplay) Finished() <-chan struct{} {
	return r.finished
}

func (r *FitReplay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("fit replay already started")
	}
	r.started = true
	r.running = true
	r.generation++
	r.scheduleLocked(0)
	r.mu.Unlock()

	r.logger.Printf("FitReplay: Replaying %d points at %.1fx", len(r.points), r.speedup)

	go_func_utils.SafeGoGroup(r.logger, &r.wg, func() {
		select {
		case <-ctx.Done():
			r.halt()
		case <-r.doneChan:
		}
	})
	return nil
}

// Stop halts the replay.
// Safe to call multiple times.
func (r *FitReplay) Stop() {
	r.stopOnce.Do(func() {
		close(r.doneChan)
		r.halt()
		r.wg.Wait()
	})
}

func (r *FitReplay) halt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	r.generation++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Position returns how many points have been emitted.
func (r *FitReplay) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// scheduleLocked arms the timer for the next point, measured from the point
// at prev. MUST be called with mu held.
func (r *FitReplay) scheduleLocked(prev time.Duration) {
	if r.next >= len(r.points) {
		r.running = false
		r.timer = nil
		close(r.finished)
		r.logger.Printf("FitReplay: Replay finished")
		return
	}
	gap := r.points[r.next].Offset - prev
	if gap < 0 {
		gap = 0
	}
	delay := time.Duration(float64(gap) / r.speedup)
	generation := r.generation
	r.timer = r.clock.AfterFunc(delay, func() { r.step(generation) })
}

func (r *FitReplay) step(generation uint64) {
	r.mu.Lock()
	if !r.running || generation != r.generation {
		r.mu.Unlock()
		return
	}
	point := r.points[r.next]
	r.next++
	r.scheduleLocked(point.Offset)
	r.mu.Unlock()

	r.emit(point.Sample)
}
