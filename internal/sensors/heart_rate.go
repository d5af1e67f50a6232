package sensors

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Heart Rate Measurement flag bits
const (
	hrFlagUint16         = 0x01
	hrFlagEnergyExpended = 0x08
	hrFlagRRIntervals    = 0x10
)

var ErrShortMeasurement = errors.New("heart rate measurement too short")

// HeartRateMeasurement is one decoded Heart Rate Measurement notification.
type HeartRateMeasurement struct {
	HeartRateBpm uint16
	// RR intervals in milliseconds, oldest first.
	RRIntervalsMs []float64
}

// ParseHeartRateMeasurement decodes the Heart Rate Measurement
// characteristic (0x2A37).
func ParseHeartRateMeasurement(data []byte) (HeartRateMeasurement, error) {
	if len(data) < 2 {
		return HeartRateMeasurement{}, fmt.Errorf("%w: %d bytes", ErrShortMeasurement, len(data))
	}

	flags := data[0]
	offset := 1
	var m HeartRateMeasurement

	if flags&hrFlagUint16 != 0 {
		if len(data) < offset+2 {
			return HeartRateMeasurement{}, fmt.Errorf("%w: UINT16 heart rate in %d bytes", ErrShortMeasurement, len(data))
		}
		m.HeartRateBpm = binary.LittleEndian.Uint16(data[offset:])
		offset += 2
	} else {
		m.HeartRateBpm = uint16(data[offset])
		offset++
	}

	if flags&hrFlagEnergyExpended != 0 {
		offset += 2
	}

	if flags&hrFlagRRIntervals != 0 {
		// each interval is a UINT16 in 1/1024 s; a trailing odd byte is ignored
		for offset+2 <= len(data) {
			raw := binary.LittleEndian.Uint16(data[offset:])
			m.RRIntervalsMs = append(m.RRIntervalsMs, float64(raw)*1000/1024)
			offset += 2
		}
	}
	return m, nil
}
