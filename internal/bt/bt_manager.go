package bt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/nrg-watch/internal/events"
	"github.com/lowaak/nrg-watch/internal/go_func_utils"

	"tinygo.org/x/bluetooth"
)

const defaultScanTimeout = 10 * time.Second

// BTManagerInterface defines the interface for Bluetooth manager implementations
type BTManagerInterface interface {
	Enable() error
	GetBTDeviceByAddressString(addressString string) BTDevice
	StartScan(serviceUuidFilter []string)
	StopScan() error
	IsScanning() bool
	Connect(device BTDevice) error
	Disconnect(device BTDevice) error
	GetConnectedDevices() []BTDevice
	GetScanDevices() []BTDevice
	ListenToDeviceList(ch chan<- []BTDevice) func()
	ListenToConnectedDevices(ch chan<- []BTDevice) func()
	Shutdown()
}

// Verify BTManager implements BTManagerInterface
var _ BTManagerInterface = (*BTManager)(nil)

type BTManager struct {
	adapter               *bluetooth.Adapter
	logger                *log.Logger
	scanTimeout           time.Duration
	scanDeviceListEvent   *events.ChannelEvent[[]BTDevice]
	connectedDevicesEvent *events.ChannelEvent[[]BTDevice]

	mu                sync.RWMutex
	devicesByAddress  map[string]*btDeviceImpl
	scanning          bool
	scanContextCancel context.CancelFunc

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

func NewBTManager(adapter *bluetooth.Adapter, logger *log.Logger, scanTimeout ...time.Duration) *BTManager {
	if logger == nil {
		panic("BTManager: logger cannot be nil")
	}
	timeout := defaultScanTimeout
	if len(scanTimeout) > 0 && scanTimeout[0] > 0 {
		timeout = scanTimeout[0]
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BTManager{
		adapter:               adapter,
		logger:                logger,
		scanTimeout:           timeout,
		devicesByAddress:      make(map[string]*btDeviceImpl),
		scanDeviceListEvent:   events.NewChannelEvent[[]BTDevice](true),
		connectedDevicesEvent: events.NewChannelEvent[[]BTDevice](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

// GetBTDeviceByAddressString returns a BTDevice by its address string, or nil if not found
func (m *BTManager) GetBTDeviceByAddressString(addressString string) BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if device, ok := m.devicesByAddress[addressString]; ok {
		return device
	}
	return nil
}

func (m *BTManager) lookupBTDeviceImpl(addressString string) (*btDeviceImpl, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	device, ok := m.devicesByAddress[addressString]
	if !ok || device == nil {
		return nil, fmt.Errorf("no scanned device with address %s", addressString)
	}
	return device, nil
}

// getOrCreateBTDeviceImpl reports whether the device was new.
func (m *BTManager) getOrCreateBTDeviceImpl(address bluetooth.Address) (*btDeviceImpl, bool) {
	addressStr := address.String()

	m.mu.Lock()
	defer m.mu.Unlock()
	if device, ok := m.devicesByAddress[addressStr]; ok {
		return device, false
	}
	device := newBtDeviceImpl(m.logger, address, m.scanTimeout)
	m.devicesByAddress[addressStr] = device
	return device, true
}

func (m *BTManager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addressStr := device.Address.String()
		d, _ := m.getOrCreateBTDeviceImpl(device.Address)
		if connected {
			m.logger.Printf("BTManager: Device connected: %s", addressStr)
			d.setConnectedDevice(&device)
		} else {
			m.logger.Printf("BTManager: Device disconnected: %s", addressStr)
			d.setConnectedDevice(nil)
		}
		m.emitConnectedDevicesChange()
	})

	return m.adapter.Enable()
}

// StartScan scans for advertising devices. With a non-nil filter only
// devices advertising one of the listed service UUIDs are kept. A running
// scan is replaced.
func (m *BTManager) StartScan(serviceUuidFilter []string) {
	filterSet := newServiceFilter(serviceUuidFilter)
	m.logger.Printf("BTManager: Starting scan, filter=%v", serviceUuidFilter)

	m.mu.Lock()
	if m.scanning && m.scanContextCancel != nil {
		m.logger.Printf("BTManager: A scan is already running, replacing it")
		m.scanContextCancel()
	}
	scanCtx, scanCancel := context.WithCancel(m.ctx)
	m.scanning = true
	m.scanContextCancel = scanCancel
	m.mu.Unlock()

	go_func_utils.SafeGoGroup(m.logger, &m.wg, func() {
		m.cleanupStaleDevices(scanCtx)
	})

	go_func_utils.SafeGoGroup(m.logger, &m.wg, func() {
		defer m.logger.Printf("BTManager: exiting scan handling loop")

		err := m.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if scanCtx.Err() != nil {
				// ignore the result, StopScan still has to reach the adapter
				return
			}
			serviceUuids := result.ServiceUUIDs()
			if !matchesServiceFilter(filterSet, uuidStrings(serviceUuids)) {
				return
			}

			d, isNew := m.getOrCreateBTDeviceImpl(result.Address)
			d.markScanned(&result, time.Now())
			if len(serviceUuids) > 0 {
				d.setServiceUUIDs(serviceUuids)
			}
			if isNew {
				m.logger.Printf("BTManager: Found device: %s (%s) [RSSI: %d]", d.GetLocalName(), result.Address.String(), result.RSSI)
			}
		})
		if err != nil {
			m.logger.Printf("BTManager: Scan error: %v", err)
		}
	})

	// Emit current scan results every second
	go_func_utils.SafeGoGroup(m.logger, &m.wg, func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-scanCtx.Done():
				return
			case <-ticker.C:
				m.scanDeviceListEvent.Notify(m.GetScanDevices())
			}
		}
	})
}

// Shutdown disconnects every device, stops scanning and waits for the scan
// goroutines to finish.
func (m *BTManager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.logger.Println("BTManager: Shutting down")
		for _, dev := range m.GetConnectedDevices() {
			if err := m.Disconnect(dev); err != nil {
				m.logger.Printf("BTManager: Error disconnecting from %v: %v", dev.GetAddressString(), err)
			} else {
				m.logger.Printf("BTManager: Disconnected from %v", dev.GetAddressString())
			}
		}
		if m.IsScanning() {
			if err := m.StopScan(); err != nil {
				m.logger.Printf("BTManager: Error stopping scan: %v", err)
			}
		}
		m.cancel()
		m.wg.Wait()
		m.logger.Println("BTManager: Shutdown complete")
	})
}

func (m *BTManager) cleanupStaleDevices(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, addr := range m.removeStaleDevices(now) {
				m.logger.Printf("BTManager: Device timeout: %s (not seen for %v)", addr, m.scanTimeout)
			}
		}
	}
}

// removeStaleDevices drops devices not seen for longer than the scan timeout.
// Connected devices are kept.
func (m *BTManager) removeStaleDevices(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for addr, device := range m.devicesByAddress {
		if device.IsConnected() {
			continue
		}
		if now.Sub(device.lastSeen()) > m.scanTimeout {
			delete(m.devicesByAddress, addr)
			removed = append(removed, addr)
		}
	}
	return removed
}

func (m *BTManager) StopScan() error {
	m.mu.Lock()
	m.scanning = false
	if m.scanContextCancel != nil {
		m.scanContextCancel()
		m.scanContextCancel = nil
	}
	m.mu.Unlock()
	return m.adapter.StopScan()
}

// IsScanning returns whether the BTManager is currently scanning
func (m *BTManager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

// Connect connects to a scanned device. Connection state changes are
// reported through the adapter's connect handler.
func (m *BTManager) Connect(device BTDevice) error {
	addressStr := device.GetAddressString()
	m.logger.Printf("BTManager: Attempting to connect to device: %s", addressStr)

	impl, err := m.lookupBTDeviceImpl(addressStr)
	if err != nil {
		return err
	}
	impl.setState(Connecting)
	if _, err := m.adapter.Connect(impl.getAddress(), bluetooth.ConnectionParams{}); err != nil {
		impl.setState(Disconnected)
		m.logger.Printf("BTManager: Connection error: %v", err)
		return fmt.Errorf("connect %s: %w", addressStr, err)
	}

	m.logger.Printf("BTManager: Connection initiated to device: %s", addressStr)
	return nil
}

func (m *BTManager) Disconnect(device BTDevice) error {
	addressStr := device.GetAddressString()
	m.logger.Printf("BTManager: Attempting to disconnect from device: %s", addressStr)

	impl, err := m.lookupBTDeviceImpl(addressStr)
	if err != nil {
		return err
	}
	inner := impl.getConnectedDevice()
	if inner == nil {
		m.logger.Printf("BTManager: %s is not connected", addressStr)
		return nil
	}
	return inner.Disconnect()
}

// GetConnectedDevices returns all currently connected devices
func (m *BTManager) GetConnectedDevices() []BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getConnectedDevices()
}

// MUST be called with mu held.
func (m *BTManager) getConnectedDevices() []BTDevice {
	result := make([]BTDevice, 0)
	for _, device := range m.devicesByAddress {
		if device.IsConnected() {
			result = append(result, device)
		}
	}
	return result
}

func (m *BTManager) GetScanDevices() []BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]BTDevice, 0)
	for _, device := range m.devicesByAddress {
		if device.IsRecentlyScanned() {
			result = append(result, device)
		}
	}
	return result
}

// ListenToDeviceList registers a channel to receive device list changes
// Events are debounced to at most once per second.
// Returns a deregistration function that can be called to remove the listener
func (m *BTManager) ListenToDeviceList(ch chan<- []BTDevice) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

// ListenToConnectedDevices registers a channel to receive connected devices list changes
// Returns a deregistration function that can be called to remove the listener
func (m *BTManager) ListenToConnectedDevices(ch chan<- []BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *BTManager) emitConnectedDevicesChange() {
	m.mu.RLock()
	devices := m.getConnectedDevices()
	m.mu.RUnlock()
	m.connectedDevicesEvent.Notify(devices)
}

// newServiceFilter returns nil for "no filter".
func newServiceFilter(serviceUuids []string) map[string]struct{} {
	if serviceUuids == nil {
		return nil
	}
	filterSet := make(map[string]struct{}, len(serviceUuids))
	for _, uuid := range serviceUuids {
		filterSet[uuid] = struct{}{}
	}
	return filterSet
}

func matchesServiceFilter(filterSet map[string]struct{}, advertised []string) bool {
	if filterSet == nil {
		return true
	}
	for _, uuid := range advertised {
		if _, ok := filterSet[uuid]; ok {
			return true
		}
	}
	return false
}

func uuidStrings(uuids []bluetooth.UUID) []string {
	strs := make([]string, 0, len(uuids))
	for _, uuid := range uuids {
		strs = append(strs, uuid.String())
	}
	return strs
}
