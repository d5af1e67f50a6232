package bt

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinygo.org/x/bluetooth"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestLockedMap(t *testing.T) {
	m := newLockedMap[string, int]()
	_, ok := m.Load("a")
	assert.False(t, ok)

	m.Store("a", 1)
	m.Store("b", 2)
	v, ok := m.Load("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, m.Len())

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestServiceFilter(t *testing.T) {
	tests := []struct {
		name       string
		filter     []string
		advertised []string
		want       bool
	}{
		{"no filter accepts all", nil, nil, true},
		{"no filter accepts anything advertised", nil, []string{"x"}, true},
		{"heart rate advertised", []string{ServiceUUIDHeartRate}, []string{"0000180f-0000-1000-8000-00805f9b34fb", ServiceUUIDHeartRate}, true},
		{"other service only", []string{ServiceUUIDHeartRate}, []string{"0000180f-0000-1000-8000-00805f9b34fb"}, false},
		{"nothing advertised", []string{ServiceUUIDHeartRate}, nil, false},
		{"empty filter rejects all", []string{}, []string{ServiceUUIDHeartRate}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesServiceFilter(newServiceFilter(tt.filter), tt.advertised))
		})
	}
}

func TestBTDeviceState_String(t *testing.T) {
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Connecting", Connecting.String())
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Unknown", BTDeviceState(42).String())
}

func TestBTDevice_Defaults(t *testing.T) {
	d := newBtDeviceImpl(discardLogger(), bluetooth.Address{}, time.Second)
	assert.Equal(t, "Unknown", d.GetLocalName())
	assert.False(t, d.IsConnected())
	assert.False(t, d.IsRecentlyScanned())
	assert.Equal(t, Disconnected, d.GetState())
	_, err := d.GetScanRSSI()
	assert.Error(t, err)
}

func TestBTDevice_ServiceUUIDs(t *testing.T) {
	d := newBtDeviceImpl(discardLogger(), bluetooth.Address{}, time.Second)
	hr, err := bluetooth.ParseUUID(ServiceUUIDHeartRate)
	require.NoError(t, err)

	d.setServiceUUIDs([]bluetooth.UUID{hr})
	assert.True(t, d.HasServiceUUID(ServiceUUIDHeartRate))
	assert.False(t, d.HasServiceUUID(CharUUIDHeartRateMeasurement))

	uuids := d.GetServiceUUIDs()
	uuids[0] = "changed"
	assert.Equal(t, []string{ServiceUUIDHeartRate}, d.GetServiceUUIDs())
}

func TestBTDevice_ConnectedStateAndCacheReset(t *testing.T) {
	d := newBtDeviceImpl(discardLogger(), bluetooth.Address{}, time.Second)
	d.serviceCharsDiscovered.Store(ServiceUUIDHeartRate, true)
	d.allServicesDiscovered = true

	d.setConnectedDevice(&bluetooth.Device{})
	assert.True(t, d.IsConnected())
	assert.Equal(t, Connected, d.GetState())
	assert.Equal(t, 0, d.serviceCharsDiscovered.Len())
	assert.False(t, d.allServicesDiscovered)

	d.setConnectedDevice(nil)
	assert.False(t, d.IsConnected())
	assert.Equal(t, Disconnected, d.GetState())
}

func TestBTDevice_NotificationsRequireConnection(t *testing.T) {
	d := newBtDeviceImpl(discardLogger(), bluetooth.Address{}, time.Second)
	err := d.EnableNotifications(ServiceUUIDHeartRate, CharUUIDHeartRateMeasurement, func([]byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)

	err = d.EnableNotifications("not-a-uuid", CharUUIDHeartRateMeasurement, func([]byte) {})
	assert.Error(t, err)
}

func TestBTDevice_WaitForConnection(t *testing.T) {
	d := newBtDeviceImpl(discardLogger(), bluetooth.Address{}, time.Second)

	err := d.WaitForConnection(context.Background(), 50*time.Millisecond)
	assert.ErrorContains(t, err, "timeout")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.WaitForConnection(ctx, time.Minute), context.Canceled)

	d.setConnectedDevice(&bluetooth.Device{})
	assert.NoError(t, d.WaitForConnection(context.Background(), time.Minute))
}

func TestNewBtDeviceImpl_Panics(t *testing.T) {
	assert.PanicsWithValue(t, "BTDevice: logger cannot be nil", func() {
		newBtDeviceImpl(nil, bluetooth.Address{}, time.Second)
	})
	assert.PanicsWithValue(t, "BTDevice: scanTimeout must be > 0", func() {
		newBtDeviceImpl(discardLogger(), bluetooth.Address{}, 0)
	})
}

func newTestManager() *BTManager {
	return NewBTManager(nil, discardLogger(), 10*time.Second)
}

func TestBTManager_RemoveStaleDevices(t *testing.T) {
	m := newTestManager()
	now := time.Now()

	fresh := newBtDeviceImpl(discardLogger(), bluetooth.Address{}, m.scanTimeout)
	fresh.markScanned(nil, now.Add(-time.Second))
	stale := newBtDeviceImpl(discardLogger(), bluetooth.Address{}, m.scanTimeout)
	stale.markScanned(nil, now.Add(-time.Minute))
	connected := newBtDeviceImpl(discardLogger(), bluetooth.Address{}, m.scanTimeout)
	connected.setConnectedDevice(&bluetooth.Device{})

	m.devicesByAddress["fresh"] = fresh
	m.devicesByAddress["stale"] = stale
	m.devicesByAddress["connected"] = connected

	removed := m.removeStaleDevices(now)
	assert.Equal(t, []string{"stale"}, removed)
	assert.Nil(t, m.GetBTDeviceByAddressString("stale"))
	assert.NotNil(t, m.GetBTDeviceByAddressString("fresh"))

	connectedDevices := m.GetConnectedDevices()
	require.Len(t, connectedDevices, 1)
}

func TestBTManager_ConnectUnknownDevice(t *testing.T) {
	m := newTestManager()
	d := newBtDeviceImpl(discardLogger(), bluetooth.Address{}, time.Second)

	assert.ErrorContains(t, m.Connect(d), "no scanned device")
	assert.ErrorContains(t, m.Disconnect(d), "no scanned device")
}

func TestBTManager_ConnectedDevicesEvent(t *testing.T) {
	m := newTestManager()
	d := newBtDeviceImpl(discardLogger(), bluetooth.Address{}, time.Second)
	d.setConnectedDevice(&bluetooth.Device{})
	m.devicesByAddress["a"] = d
	m.devicesByAddress["b"] = newBtDeviceImpl(discardLogger(), bluetooth.Address{}, time.Second)

	ch := make(chan []BTDevice, 1)
	unregister := m.ListenToConnectedDevices(ch)
	defer unregister()

	m.emitConnectedDevicesChange()
	select {
	case devices := <-ch:
		assert.Len(t, devices, 1)
	case <-time.After(time.Second):
		t.Fatal("no connected devices event")
	}
}

func TestBTManager_GetScanDevices(t *testing.T) {
	m := newTestManager()
	seen := newBtDeviceImpl(discardLogger(), bluetooth.Address{}, time.Minute)
	seen.markScanned(&bluetooth.ScanResult{}, time.Now())
	m.devicesByAddress["seen"] = seen
	m.devicesByAddress["never"] = newBtDeviceImpl(discardLogger(), bluetooth.Address{}, time.Minute)

	devices := m.GetScanDevices()
	require.Len(t, devices, 1)
	assert.Same(t, seen, devices[0].(*btDeviceImpl))
}
