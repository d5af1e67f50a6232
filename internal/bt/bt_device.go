package bt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

var ErrNotConnected = errors.New("device not connected")

type BTDeviceState int

const (
	Disconnected BTDeviceState = iota
	Connecting
	Connected
)

func (s BTDeviceState) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	default:
		return "Unknown"
	}
}

// BTDevice is a scanned or connected peripheral.
type BTDevice interface {
	GetAddressString() string
	GetLocalName() string
	GetScanRSSI() (int16, error)
	IsConnected() bool
	GetState() BTDeviceState
	IsRecentlyScanned() bool
	WaitForConnection(ctx context.Context, timeout time.Duration) error
	EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error
	DisableNotifications(serviceUuid string, characteristicUuid string) error
	GetServiceUUIDs() []string
	HasServiceUUID(uuid string) bool
}

type btDeviceImpl struct {
	address         bluetooth.Address
	localName       string
	scanTimeout     time.Duration
	logger          *log.Logger
	mu              sync.RWMutex
	scanLastSeen    time.Time
	scanResult      *bluetooth.ScanResult
	connectedDevice *bluetooth.Device // nil when not connected
	state           BTDeviceState
	serviceUuidStrs []string

	// Serializes GATT operations (discovery, notifications)
	bleMu                  sync.Mutex
	serviceByUuid          *lockedMap[string, *bluetooth.DeviceService]
	characteristicByUuid   *lockedMap[string, *bluetooth.DeviceCharacteristic]
	serviceCharsDiscovered *lockedMap[string, bool]
	allServicesDiscovered  bool
}

func newBtDeviceImpl(logger *log.Logger, address bluetooth.Address, scanTimeout time.Duration) *btDeviceImpl {
	if logger == nil {
		panic("BTDevice: logger cannot be nil")
	}
	if scanTimeout <= 0 {
		panic("BTDevice: scanTimeout must be > 0")
	}
	return &btDeviceImpl{
		logger:                 logger,
		address:                address,
		localName:              "Unknown",
		scanTimeout:            scanTimeout,
		scanLastSeen:           time.Unix(0, 0),
		state:                  Disconnected,
		serviceByUuid:          newLockedMap[string, *bluetooth.DeviceService](),
		characteristicByUuid:   newLockedMap[string, *bluetooth.DeviceCharacteristic](),
		serviceCharsDiscovered: newLockedMap[string, bool](),
	}
}

func (b *btDeviceImpl) GetAddressString() string {
	return b.address.String()
}

func (b *btDeviceImpl) GetLocalName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.scanResult != nil {
		if name := b.scanResult.LocalName(); name != "" {
			return name
		}
	}
	return b.localName
}

func (b *btDeviceImpl) GetScanRSSI() (int16, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.scanResult == nil {
		return 0, errors.New("no rssi available")
	}
	return b.scanResult.RSSI, nil
}

func (b *btDeviceImpl) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice != nil
}

func (b *btDeviceImpl) GetState() BTDeviceState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *btDeviceImpl) IsRecentlyScanned() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scanResult != nil && time.Since(b.scanLastSeen) <= b.scanTimeout
}

func (b *btDeviceImpl) GetServiceUUIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.serviceUuidStrs)
}

func (b *btDeviceImpl) HasServiceUUID(uuid string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Contains(b.serviceUuidStrs, uuid)
}

// WaitForConnection polls until the connect handler has reported the device
// connected, the timeout passes or ctx is done.
func (b *btDeviceImpl) WaitForConnection(ctx context.Context, timeout time.Duration) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	timeoutChan := time.After(timeout)

	for {
		if b.IsConnected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeoutChan:
			return fmt.Errorf("timeout after %v waiting for connection to %s", timeout, b.GetAddressString())
		case <-ticker.C:
		}
	}
}

func (b *btDeviceImpl) EnableNotifications(serviceUuidStr, characteristicUuidStr string, callbackFunc func(buf []byte)) error {
	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	b.logger.Printf("BTDevice: EnableNotifications service=%s char=%s", serviceUuidStr, characteristicUuidStr)
	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return err
	}
	if err := characteristic.EnableNotifications(callbackFunc); err != nil {
		return fmt.Errorf("enable notifications on %s: %w", characteristicUuidStr, err)
	}
	b.logger.Printf("BTDevice: Notifications enabled for %s", characteristicUuidStr)
	return nil
}

func (b *btDeviceImpl) DisableNotifications(serviceUuidStr, characteristicUuidStr string) error {
	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return err
	}
	// a nil callback disables notifications
	if err := characteristic.EnableNotifications(nil); err != nil {
		return fmt.Errorf("disable notifications on %s: %w", characteristicUuidStr, err)
	}
	b.logger.Printf("BTDevice: Notifications disabled for %s", characteristicUuidStr)
	return nil
}

func (b *btDeviceImpl) getAddress() bluetooth.Address {
	return b.address
}

func (b *btDeviceImpl) setServiceUUIDs(serviceUuids []bluetooth.UUID) {
	strs := uuidStrings(serviceUuids)
	b.mu.Lock()
	b.serviceUuidStrs = strs
	b.mu.Unlock()
}

func (b *btDeviceImpl) markScanned(scanResult *bluetooth.ScanResult, seen time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scanResult = scanResult
	b.scanLastSeen = seen
}

func (b *btDeviceImpl) lastSeen() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scanLastSeen
}

// setConnectedDevice records the connection reported by the adapter. A
// reconnect must rediscover the GATT table, so the caches are dropped.
func (b *btDeviceImpl) setConnectedDevice(device *bluetooth.Device) {
	b.mu.Lock()
	b.connectedDevice = device
	if device != nil {
		b.state = Connected
	} else {
		b.state = Disconnected
	}
	b.mu.Unlock()

	b.bleMu.Lock()
	b.serviceByUuid.Clear()
	b.characteristicByUuid.Clear()
	b.serviceCharsDiscovered.Clear()
	b.allServicesDiscovered = false
	b.bleMu.Unlock()
}

func (b *btDeviceImpl) getConnectedDevice() *bluetooth.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice
}

func (b *btDeviceImpl) setState(state BTDeviceState) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

// lookupCharacteristic resolves a characteristic, discovering and caching
// the whole GATT table of its service on first use. Discovering a single
// service at a time interrupts notifications on services found earlier.
// MUST be called with bleMu held.
func (b *btDeviceImpl) lookupCharacteristic(serviceUuidStr, characteristicUuidStr string) (*bluetooth.DeviceCharacteristic, error) {
	serviceUuid, err := bluetooth.ParseUUID(serviceUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", serviceUuidStr, err)
	}
	charUuid, err := bluetooth.ParseUUID(characteristicUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", characteristicUuidStr, err)
	}

	svcKey := serviceUuid.String()
	comboKey := svcKey + "_" + charUuid.String()
	if characteristic, ok := b.characteristicByUuid.Load(comboKey); ok {
		return characteristic, nil
	}

	if discovered, _ := b.serviceCharsDiscovered.Load(svcKey); !discovered {
		service, err := b.lookupService(svcKey)
		if err != nil {
			return nil, err
		}
		b.logger.Printf("BTDevice: Discovering characteristics for service %s", svcKey)
		chars, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics for service %s: %w", svcKey, err)
		}
		for i := range chars {
			char := &chars[i]
			b.characteristicByUuid.Store(svcKey+"_"+char.UUID().String(), char)
		}
		b.serviceCharsDiscovered.Store(svcKey, true)
	}

	characteristic, ok := b.characteristicByUuid.Load(comboKey)
	if !ok {
		return nil, fmt.Errorf("characteristic %s not found in service %s", characteristicUuidStr, svcKey)
	}
	return characteristic, nil
}

// MUST be called with bleMu held.
func (b *btDeviceImpl) lookupService(svcKey string) (*bluetooth.DeviceService, error) {
	if service, ok := b.serviceByUuid.Load(svcKey); ok {
		return service, nil
	}

	connected := b.getConnectedDevice()
	if connected == nil {
		return nil, ErrNotConnected
	}
	if !b.allServicesDiscovered {
		b.logger.Printf("BTDevice: Discovering all services on %s", b.GetAddressString())
		services, err := connected.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("discover services: %w", err)
		}
		for i := range services {
			svc := &services[i]
			b.serviceByUuid.Store(svc.UUID().String(), svc)
		}
		b.allServicesDiscovered = true
	}

	service, ok := b.serviceByUuid.Load(svcKey)
	if !ok {
		return nil, fmt.Errorf("service %s not found on device", svcKey)
	}
	return service, nil
}
