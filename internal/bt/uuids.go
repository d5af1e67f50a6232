package bt

// Heart Rate Service, see https://www.bluetooth.com/specifications/specs/heart-rate-service-1-0/
const (
	ServiceUUIDHeartRate         = "0000180d-0000-1000-8000-00805f9b34fb"
	CharUUIDHeartRateMeasurement = "00002a37-0000-1000-8000-00805f9b34fb"
	CharUUIDBodySensorLocation   = "00002a38-0000-1000-8000-00805f9b34fb"
)
