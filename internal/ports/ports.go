// Package ports declares the seams the core control plane is driven
// through and consults, plus the reference adapters shipped with gridctl:
// a synthetic sensor source, an in-memory audit sink, a system clock, and
// a moving-average predictor. Generalized from spec.md §6's port
// contracts and the reference IoT/ML modules.
package ports

import "time"

// Reading is one sensor sample.
type Reading struct {
	NodeID    string
	Load      float64
	Timestamp time.Time
}

// SensorSource is a pull- or push-style feed of Readings. The core uses
// whichever method an adapter provides; adapters that don't support one
// style return ok=false / do nothing on OnBatch.
type SensorSource interface {
	// Next returns the next available reading, if any.
	Next() (Reading, bool)
	// OnBatch delivers a batch of readings to a push-style adapter.
	OnBatch(readings []Reading)
}

// PersistenceSink records audit trail entries. Every method accepts
// partial failure: the core discards a non-nil error and never fails the
// triggering operation because of it.
type PersistenceSink interface {
	RecordNode(id string, kind string, capacity, efficiency float64) error
	RecordEdge(u, v string, distance, resistance, lineCapacity float64) error
	RecordReading(r Reading) error
	RecordEvent(kind, nodeID string, severity int, payload map[string]float64, resolved bool) error
	RecordBalancing(overloaded, balanced int, successRate float64) error
	Reset() error
}

// Clock abstracts wall-clock time so tests can substitute a monotonic
// counter.
type Clock interface {
	Now() time.Time
}

// Predictor forecasts future load from a history of readings. Optional;
// used only by auxiliary endpoints.
type Predictor interface {
	Predict(history []float64, horizon int) []float64
}
