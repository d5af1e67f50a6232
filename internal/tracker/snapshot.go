package tracker

import "sync"

// SensorSnapshot is the latest known value of every sensor channel.
// A nil field means the channel has not reported yet; as a partial update it
// means "no change".
type SensorSnapshot struct {
	DistanceMeters         *float64
	SpeedMetersPerSecond   *float64
	ElevationDeltaFloors   *float64
	HeartRateVariabilityMs *float64
	HeartRateBpm           *float64
	VO2MaxMlPerKgPerMin    *float64
}

// Float returns a pointer to v, for building partial snapshots.
func Float(v float64) *float64 {
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone returns a deep copy so the receiver's values cannot be changed
// through the result.
func (s SensorSnapshot) Clone() SensorSnapshot {
	return SensorSnapshot{
		DistanceMeters:         cloneFloat(s.DistanceMeters),
		SpeedMetersPerSecond:   cloneFloat(s.SpeedMetersPerSecond),
		ElevationDeltaFloors:   cloneFloat(s.ElevationDeltaFloors),
		HeartRateVariabilityMs: cloneFloat(s.HeartRateVariabilityMs),
		HeartRateBpm:           cloneFloat(s.HeartRateBpm),
		VO2MaxMlPerKgPerMin:    cloneFloat(s.VO2MaxMlPerKgPerMin),
	}
}

// Merge overlays every non-nil field of partial onto s.
func (s SensorSnapshot) Merge(partial SensorSnapshot) SensorSnapshot {
	out := s.Clone()
	if partial.DistanceMeters != nil {
		out.DistanceMeters = cloneFloat(partial.DistanceMeters)
	}
	if partial.SpeedMetersPerSecond != nil {
		out.SpeedMetersPerSecond = cloneFloat(partial.SpeedMetersPerSecond)
	}
	if partial.ElevationDeltaFloors != nil {
		out.ElevationDeltaFloors = cloneFloat(partial.ElevationDeltaFloors)
	}
	if partial.HeartRateVariabilityMs != nil {
		out.HeartRateVariabilityMs = cloneFloat(partial.HeartRateVariabilityMs)
	}
	if partial.HeartRateBpm != nil {
		out.HeartRateBpm = cloneFloat(partial.HeartRateBpm)
	}
	if partial.VO2MaxMlPerKgPerMin != nil {
		out.VO2MaxMlPerKgPerMin = cloneFloat(partial.VO2MaxMlPerKgPerMin)
	}
	return out
}

// IsEmpty reports whether no channel is set.
func (s SensorSnapshot) IsEmpty() bool {
	return s.DistanceMeters == nil &&
		s.SpeedMetersPerSecond == nil &&
		s.ElevationDeltaFloors == nil &&
		s.HeartRateVariabilityMs == nil &&
		s.HeartRateBpm == nil &&
		s.VO2MaxMlPerKgPerMin == nil
}

// Aggregator merges partial samples from independent sources into one
// snapshot. Safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	current SensorSnapshot
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// ApplyUpdate merges partial, last write wins per field, and returns a copy
// of the resulting snapshot.
func (a *Aggregator) ApplyUpdate(partial SensorSnapshot) SensorSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = a.current.Merge(partial)
	return a.current.Clone()
}

// Snapshot returns a copy of the current snapshot.
func (a *Aggregator) Snapshot() SensorSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.Clone()
}

// Reset forgets every channel.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.current = SensorSnapshot{}
	a.mu.Unlock()
}
