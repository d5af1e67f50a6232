package sensors

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lowaak/nrg-watch/internal/bt"
	"github.com/lowaak/nrg-watch/internal/go_func_utils"
	"github.com/lowaak/nrg-watch/internal/tracker"
)

const (
	defaultStrapScanTimeout    = 30 * time.Second
	defaultStrapConnectTimeout = 10 * time.Second
	defaultHRVWindow           = 30
)

var ErrStrapNotFound = errors.New("heart rate strap not found")

type HeartRateStrapConfig struct {
	// Address of the strap to use. Empty picks the first strap found.
	Address        string
	HRVWindow      int
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	// OnConnected is called once notifications are flowing, e.g. to remember
	// the strap as the preferred one.
	OnConnected func(address, name string)
}

// HeartRateStrap reads a BLE Heart Rate Service strap. Heart rate goes out
// with every notification; HRV (RMSSD over the RR intervals) once enough
// intervals are known.
type HeartRateStrap struct {
	sampleFeed
	logger  *log.Logger
	manager bt.BTManagerInterface
	config  HeartRateStrapConfig

	mu      sync.Mutex
	started bool
	hrv     *HRVWindow
	device  bt.BTDevice
	cancel  context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ Source = (*HeartRateStrap)(nil)

func NewHeartRateStrap(manager bt.BTManagerInterface, logger *log.Logger, config HeartRateStrapConfig) *HeartRateStrap {
	if manager == nil {
		panic("HeartRateStrap: manager cannot be nil")
	}
	if logger == nil {
		panic("HeartRateStrap: logger cannot be nil")
	}
	if config.HRVWindow <= 0 {
		config.HRVWindow = defaultHRVWindow
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = defaultStrapScanTimeout
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultStrapConnectTimeout
	}
	return &HeartRateStrap{
		sampleFeed: newSampleFeed(),
		logger:     logger,
		manager:    manager,
		config:     config,
		hrv:        NewHRVWindow(config.HRVWindow),
	}
}

func (s *HeartRateStrap) Name() string {
	return "ble"
}

// Start scans for the strap and subscribes to it in the background. Failures
// are logged; the session runs on without heart rate.
func (s *HeartRateStrap) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("heart rate strap already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go_func_utils.SafeGoGroup(s.logger, &s.wg, func() {
		if err := s.connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("HeartRateStrap: %v", err)
		}
	})
	return nil
}

// Stop cancels a pending connect and releases the strap.
// Safe to call multiple times.
func (s *HeartRateStrap) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.wg.Wait()

		s.mu.Lock()
		device := s.device
		s.device = nil
		s.mu.Unlock()
		if device == nil || !device.IsConnected() {
			return
		}
		if err := device.DisableNotifications(bt.ServiceUUIDHeartRate, bt.CharUUIDHeartRateMeasurement); err != nil {
			s.logger.Printf("HeartRateStrap: Failed to disable notifications: %v", err)
		}
		if err := s.manager.Disconnect(device); err != nil {
			s.logger.Printf("HeartRateStrap: Error disconnecting: %v", err)
		}
	})
}

func (s *HeartRateStrap) connect(ctx context.Context) error {
	device, err := s.findStrap(ctx)
	if err != nil {
		return err
	}
	deviceName := fmt.Sprintf("%s (%s)", device.GetLocalName(), device.GetAddressString())

	if !device.IsConnected() {
		s.logger.Printf("HeartRateStrap: Connecting to %s", deviceName)
		if err := s.manager.Connect(device); err != nil {
			return fmt.Errorf("failed to initiate connection: %w", err)
		}
		if err := device.WaitForConnection(ctx, s.config.ConnectTimeout); err != nil {
			return fmt.Errorf("connection timeout: %w", err)
		}
	}

	if err := device.EnableNotifications(bt.ServiceUUIDHeartRate, bt.CharUUIDHeartRateMeasurement, s.handleNotification); err != nil {
		return fmt.Errorf("failed to enable heart rate notifications: %w", err)
	}

	s.mu.Lock()
	s.device = device
	s.mu.Unlock()
	s.logger.Printf("HeartRateStrap: Subscribed to %s", deviceName)

	if s.config.OnConnected != nil {
		s.config.OnConnected(device.GetAddressString(), device.GetLocalName())
	}
	return nil
}

// findStrap scans until a suitable strap shows up in the device list.
func (s *HeartRateStrap) findStrap(ctx context.Context) (bt.BTDevice, error) {
	deviceListChan := make(chan []bt.BTDevice, 4)
	unregister := s.manager.ListenToDeviceList(deviceListChan)
	defer unregister()

	s.logger.Printf("HeartRateStrap: Scanning for heart rate straps")
	s.manager.StartScan([]string{bt.ServiceUUIDHeartRate})
	defer func() {
		if err := s.manager.StopScan(); err != nil {
			s.logger.Printf("HeartRateStrap: Error stopping scan: %v", err)
		}
	}()

	timeout := time.NewTimer(s.config.ScanTimeout)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			if s.config.Address != "" {
				return nil, fmt.Errorf("%w: %s", ErrStrapNotFound, s.config.Address)
			}
			return nil, ErrStrapNotFound
		case devices := <-deviceListChan:
			if device := pickStrap(devices, s.config.Address); device != nil {
				return device, nil
			}
		}
	}
}

// pickStrap returns the device with the given address, or with no address
// the strongest heart rate strap.
func pickStrap(devices []bt.BTDevice, address string) bt.BTDevice {
	var best bt.BTDevice
	var bestRSSI int16
	for _, device := range devices {
		if address != "" {
			if strings.EqualFold(device.GetAddressString(), address) {
				return device
			}
			continue
		}
		if !device.HasServiceUUID(bt.ServiceUUIDHeartRate) {
			continue
		}
		rssi, err := device.GetScanRSSI()
		if err != nil {
			rssi = -127
		}
		if best == nil || rssi > bestRSSI {
			best, bestRSSI = device, rssi
		}
	}
	return best
}

func (s *HeartRateStrap) handleNotification(buf []byte) {
	m, err := ParseHeartRateMeasurement(buf)
	if err != nil {
		s.logger.Printf("HeartRateStrap: Parse error: %v (raw: %v)", err, buf)
		return
	}

	sample := tracker.SensorSnapshot{HeartRateBpm: tracker.Float(float64(m.HeartRateBpm))}
	if len(m.RRIntervalsMs) > 0 {
		s.mu.Lock()
		s.hrv.Add(m.RRIntervalsMs...)
		rmssd, ok := s.hrv.RMSSD()
		s.mu.Unlock()
		if ok {
			sample.HeartRateVariabilityMs = tracker.Float(rmssd)
		}
	}
	s.emit(sample)
}
