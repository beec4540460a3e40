// Package stats counts receive-path events and serves them as JSON.
package stats

import (
	"encoding/json"
	"net/http"

	metrics "github.com/rcrowley/go-metrics"
)

// Tracker counts what the receive loop sees. A nil Tracker is a valid
// no-op, so callers can thread one through unconditionally.
type Tracker struct {
	registry metrics.Registry

	datagrams    metrics.Counter
	bytes        metrics.Counter
	frames       metrics.Counter
	rigidBodies  metrics.Counter
	decodeErrors metrics.Counter
	unsupported  metrics.Counter
	duplicates   metrics.Counter
	lastFrame    metrics.Gauge
}

func New() *Tracker {
	r := metrics.NewRegistry()
	return &Tracker{
		registry:     r,
		datagrams:    metrics.NewRegisteredCounter("datagrams", r),
		bytes:        metrics.NewRegisteredCounter("bytes", r),
		frames:       metrics.NewRegisteredCounter("frames", r),
		rigidBodies:  metrics.NewRegisteredCounter("rigid_bodies", r),
		decodeErrors: metrics.NewRegisteredCounter("decode_errors", r),
		unsupported:  metrics.NewRegisteredCounter("unsupported", r),
		duplicates:   metrics.NewRegisteredCounter("duplicates", r),
		lastFrame:    metrics.NewRegisteredGauge("last_frame", r),
	}
}

// Datagram records one received datagram of the given size.
func (t *Tracker) Datagram(size int) {
	if t == nil {
		return
	}
	t.datagrams.Inc(1)
	t.bytes.Inc(int64(size))
}

// Frame records one decoded frame and how many rigid bodies it carried.
func (t *Tracker) Frame(frameNumber int32, rigidBodies int) {
	if t == nil {
		return
	}
	t.frames.Inc(1)
	t.rigidBodies.Inc(int64(rigidBodies))
	t.lastFrame.Update(int64(frameNumber))
}

func (t *Tracker) DecodeError() {
	if t == nil {
		return
	}
	t.decodeErrors.Inc(1)
}

func (t *Tracker) Unsupported() {
	if t == nil {
		return
	}
	t.unsupported.Inc(1)
}

func (t *Tracker) Duplicate() {
	if t == nil {
		return
	}
	t.duplicates.Inc(1)
}

// Snapshot returns the current value of every metric.
func (t *Tracker) Snapshot() map[string]int64 {
	data := make(map[string]int64)
	if t == nil {
		return data
	}
	t.registry.Each(func(name string, m interface{}) {
		switch m := m.(type) {
		case metrics.Counter:
			data[name] = m.Count()
		case metrics.Gauge:
			data[name] = m.Value()
		}
	})
	return data
}

func (t *Tracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	out, err := json.Marshal(t.Snapshot())
	if err != nil {
		w.WriteHeader(500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
	w.Write(out)
}
