// Package sensors produces partial sensor samples for the session
// controller: a simulated runner, a BLE heart rate strap and a FIT file
// replay.
package sensors

import (
	"context"

	"github.com/lowaak/nrg-watch/internal/events"
	"github.com/lowaak/nrg-watch/internal/tracker"
)

// Source is a producer of partial sensor samples. Each sample carries only
// the channels that changed.
type Source interface {
	Name() string
	// Start begins producing samples. The source stops when ctx is done or
	// Stop is called.
	Start(ctx context.Context) error
	Stop()
	// ListenToSamples registers a callback for every sample.
	// Returns a deregistration function that can be called to remove the listener
	ListenToSamples(callback func(tracker.SensorSnapshot)) func()
}

// SampleSink is what a source feeds. *tracker.Controller satisfies it.
type SampleSink interface {
	OnSensorUpdate(partial tracker.SensorSnapshot)
}

// Attach forwards every sample of src to sink and returns the detach function.
func Attach(src Source, sink SampleSink) func() {
	return src.ListenToSamples(sink.OnSensorUpdate)
}

// sampleFeed is the fan-out shared by every source.
type sampleFeed struct {
	samples *events.CallbackEvent[tracker.SensorSnapshot]
}

func newSampleFeed() sampleFeed {
	return sampleFeed{samples: events.NewCallbackEvent[tracker.SensorSnapshot](false)}
}

func (f sampleFeed) ListenToSamples(callback func(tracker.SensorSnapshot)) func() {
	return f.samples.Listen(callback)
}

func (f sampleFeed) emit(sample tracker.SensorSnapshot) {
	if sample.IsEmpty() {
		return
	}
	f.samples.Notify(sample)
}
