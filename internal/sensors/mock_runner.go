package sensors

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/lowaak/nrg-watch/internal/go_func_utils"
	"github.com/lowaak/nrg-watch/internal/tracker"
)

// Channel cadences of the simulated runner, in samples. Distance, speed and
// heart rate go out on every sample.
const (
	mockHRVEvery    = 5
	mockFloorsEvery = 10
	mockVO2Every    = 60
)

// MockRunnerConfig holds configuration for creating a mock runner
type MockRunnerConfig struct {
	Clock tracker.Clock
	// Port of the control API. 0 disables it.
	Port           int
	SampleInterval time.Duration
}

// MockRunnerState is the simulated runner as reported by the control API.
type MockRunnerState struct {
	Running        bool    `json:"running"`
	Samples        uint64  `json:"samples"`
	DistanceMeters float64 `json:"distanceMeters"`
	SpeedMps       float64 `json:"speed"`
	SpeedKmh       float64 `json:"speedKmh"`
	HeartRateBpm   float64 `json:"heartRate"`
	HRVMs          float64 `json:"hrv"`
	Floors         float64 `json:"floors"`
	VO2Max         float64 `json:"vo2Max"`
}

// MockRunner simulates the watch sensors of a runner so the tracker can be
// driven without hardware. Values are adjusted through the HTTP control API.
type MockRunner struct {
	sampleFeed
	logger   *log.Logger
	clock    tracker.Clock
	interval time.Duration
	port     int

	mu         sync.Mutex
	running    bool
	generation uint64
	timer      tracker.Timer
	samples    uint64
	distance   float64
	speed      float64
	heartRate  float64
	hrv        float64
	floors     float64
	vo2Max     float64

	server   *http.Server
	stopOnce sync.Once
	doneChan chan struct{}
	wg       sync.WaitGroup
}

var _ Source = (*MockRunner)(nil)

func NewMockRunner(logger *log.Logger, config MockRunnerConfig) *MockRunner {
	if logger == nil {
		panic("MockRunner: logger cannot be nil")
	}
	if config.Clock == nil {
		config.Clock = tracker.RealClock()
	}
	if config.SampleInterval <= 0 {
		config.SampleInterval = time.Second
	}
	return &MockRunner{
		sampleFeed: newSampleFeed(),
		logger:     logger,
		clock:      config.Clock,
		interval:   config.SampleInterval,
		port:       config.Port,
		speed:      3.0, // 10.8 km/h
		heartRate:  145,
		hrv:        72,
		vo2Max:     52,
		doneChan:   make(chan struct{}),
	}
}

func (m *MockRunner) Name() string {
	return "mock"
}

// Start starts sampling and, when a port is configured, the control API.
func (m *MockRunner) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("mock runner already started")
	}
	m.running = true
	m.generation++
	m.scheduleLocked()
	m.mu.Unlock()

	m.logger.Printf("MockRunner: Started (sample every %v)", m.interval)

	if m.port > 0 {
		m.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", m.port),
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go_func_utils.SafeGoGroup(m.logger, &m.wg, func() {
			m.logger.Printf("MockRunner: Control API on http://localhost:%d", m.port)
			if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Printf("MockRunner: Control API error: %v", err)
			}
		})
	}

	go_func_utils.SafeGoGroup(m.logger, &m.wg, func() {
		select {
		case <-ctx.Done():
			m.halt()
		case <-m.doneChan:
		}
	})
	return nil
}

// Stop halts sampling and shuts the control API down.
// Safe to call multiple times.
func (m *MockRunner) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Printf("MockRunner: Shutting down")
		close(m.doneChan)
		m.halt()
		if m.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.server.Shutdown(ctx); err != nil {
				m.logger.Printf("MockRunner: Error shutting down control API: %v", err)
			}
		}
		m.wg.Wait()
		m.logger.Printf("MockRunner: Shutdown complete")
	})
}

func (m *MockRunner) halt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// State returns the current simulated values.
func (m *MockRunner) State() MockRunnerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// MockRunnerUpdate changes simulated values. Nil fields are left alone.
type MockRunnerUpdate struct {
	SpeedMps     *float64
	HeartRateBpm *float64
	HRVMs        *float64
	Floors       *float64
	VO2Max       *float64
}

// Set applies u and immediately emits the changed channels.
func (m *MockRunner) Set(u MockRunnerUpdate) {
	var sample tracker.SensorSnapshot
	m.mu.Lock()
	if u.SpeedMps != nil {
		m.speed = *u.SpeedMps
		sample.SpeedMetersPerSecond = tracker.Float(m.speed)
	}
	if u.HeartRateBpm != nil {
		m.heartRate = *u.HeartRateBpm
		sample.HeartRateBpm = tracker.Float(m.heartRate)
	}
	if u.HRVMs != nil {
		m.hrv = *u.HRVMs
		sample.HeartRateVariabilityMs = tracker.Float(m.hrv)
	}
	if u.Floors != nil {
		m.floors = *u.Floors
		sample.ElevationDeltaFloors = tracker.Float(m.floors)
	}
	if u.VO2Max != nil {
		m.vo2Max = *u.VO2Max
		sample.VO2MaxMlPerKgPerMin = tracker.Float(m.vo2Max)
	}
	m.mu.Unlock()

	m.logger.Printf("MockRunner: Values updated")
	m.emit(sample)
}

// Trigger emits every channel at once.
func (m *MockRunner) Trigger() {
	m.mu.Lock()
	sample := tracker.SensorSnapshot{
		DistanceMeters:         tracker.Float(m.distance),
		SpeedMetersPerSecond:   tracker.Float(m.speed),
		ElevationDeltaFloors:   tracker.Float(m.floors),
		HeartRateVariabilityMs: tracker.Float(m.hrv),
		HeartRateBpm:           tracker.Float(m.heartRate),
		VO2MaxMlPerKgPerMin:    tracker.Float(m.vo2Max),
	}
	m.mu.Unlock()

	m.emit(sample)
}

// MUST be called with mu held.
func (m *MockRunner) scheduleLocked() {
	generation := m.generation
	m.timer = m.clock.AfterFunc(m.interval, func() { m.step(generation) })
}

func (m *MockRunner) step(generation uint64) {
	m.mu.Lock()
	if !m.running || generation != m.generation {
		m.mu.Unlock()
		return
	}
	m.samples++
	m.distance += m.speed * m.interval.Seconds()

	sample := tracker.SensorSnapshot{
		DistanceMeters:       tracker.Float(m.distance),
		SpeedMetersPerSecond: tracker.Float(m.speed),
		HeartRateBpm:         tracker.Float(m.heartRate),
	}
	if m.samples%mockHRVEvery == 0 {
		sample.HeartRateVariabilityMs = tracker.Float(m.hrv)
	}
	if m.samples%mockFloorsEvery == 0 {
		sample.ElevationDeltaFloors = tracker.Float(m.floors)
	}
	if m.samples == 1 || m.samples%mockVO2Every == 0 {
		sample.VO2MaxMlPerKgPerMin = tracker.Float(m.vo2Max)
	}
	m.scheduleLocked()
	m.mu.Unlock()

	m.emit(sample)
}

// MUST be called with mu held.
func (m *MockRunner) stateLocked() MockRunnerState {
	return MockRunnerState{
		Running:        m.running,
		Samples:        m.samples,
		DistanceMeters: m.distance,
		SpeedMps:       m.speed,
		SpeedKmh:       m.speed * 3.6,
		HeartRateBpm:   m.heartRate,
		HRVMs:          m.hrv,
		Floors:         m.floors,
		VO2Max:         m.vo2Max,
	}
}
