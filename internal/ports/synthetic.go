package ports

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// sensorState tracks one simulated smart meter.
type sensorState struct {
	nodeID     string
	baseLoad   float64
	failRate   float64
	lastStatus string
}

// SyntheticSensorSource is a pull-style SensorSource that fabricates
// load readings: an hour-of-day factor (see hourlyFactor), a
// weekday/weekend dip, a seasonal multiplier, random noise, occasional
// load spikes, and a small per-tick sensor-failure chance. Generalized
// from the reference IoT simulator's generate_reading.
type SyntheticSensorSource struct {
	mu      sync.Mutex
	rng     *rand.Rand
	clock   Clock
	sensors map[string]*sensorState
	pending []Reading
}

// NewSyntheticSensorSource builds a source whose readings are timestamped
// by clock and seeded for deterministic replay.
func NewSyntheticSensorSource(clock Clock, seed int64) *SyntheticSensorSource {
	return &SyntheticSensorSource{
		rng:     rand.New(rand.NewSource(seed)),
		clock:   clock,
		sensors: make(map[string]*sensorState),
	}
}

// CreateSensor registers a virtual smart meter for nodeID with the given
// base load and per-tick failure probability.
func (s *SyntheticSensorSource) CreateSensor(nodeID string, baseLoad, failRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensors[nodeID] = &sensorState{nodeID: nodeID, baseLoad: baseLoad, failRate: failRate, lastStatus: "active"}
}

// Generate produces one synthetic reading for nodeID, or ok=false if no
// sensor was created for it.
func (s *SyntheticSensorSource) Generate(nodeID string) (Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateLocked(nodeID)
}

func (s *SyntheticSensorSource) generateLocked(nodeID string) (Reading, bool) {
	sensor, ok := s.sensors[nodeID]
	if !ok {
		return Reading{}, false
	}

	now := s.clock.Now()
	hourFactor := hourlyFactor(now.Hour())
	weekdayFactor := 1.0
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		weekdayFactor = 0.85
	}
	seasonalFactor := seasonalFactor(now.Month())
	noise := 0.95 + s.rng.Float64()*0.10
	eventFactor := 1.0
	if s.rng.Float64() < 0.05 {
		eventFactor = 1.2 + s.rng.Float64()*0.3
	}

	load := sensor.baseLoad * hourFactor * weekdayFactor * seasonalFactor * noise * eventFactor

	if s.rng.Float64() < sensor.failRate {
		sensor.lastStatus = "failed"
		load = 0
	} else {
		sensor.lastStatus = "active"
	}

	return Reading{NodeID: nodeID, Load: round2(load), Timestamp: now}, true
}

// hourlyFactor adds two sine terms (amplitude 0.3 phased at 8h, amplitude
// 0.4 phased at 20h) to a 0.6 base. The terms are 12h apart and so partly
// cancel: the factor has a single maximum of 0.7 at 02:00 and a minimum of
// 0.5 at 14:00, and never reaches the 0.4/1.3 clamps. It has no separate
// morning and evening peaks.
func hourlyFactor(hour int) float64 {
	morningPeak := math.Sin(float64(hour-8)*math.Pi/12) * 0.3
	eveningPeak := math.Sin(float64(hour-20)*math.Pi/12) * 0.4
	v := 0.6 + morningPeak + eveningPeak
	if v < 0.4 {
		return 0.4
	}
	if v > 1.3 {
		return 1.3
	}
	return v
}

// seasonalFactor boosts summer (AC load) and winter (heating load).
func seasonalFactor(month time.Month) float64 {
	switch month {
	case time.December, time.January, time.February:
		return 1.2
	case time.June, time.July, time.August:
		return 1.15
	default:
		return 1.0
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Next implements SensorSource by returning the oldest reading buffered by
// a prior Tick call, or ok=false when none is pending. It does not
// generate readings itself.
func (s *SyntheticSensorSource) Next() (Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return Reading{}, false
	}
	r := s.pending[0]
	s.pending = s.pending[1:]
	return r, true
}

// OnBatch is not supported by this pull-style adapter; it is a no-op.
func (s *SyntheticSensorSource) OnBatch(readings []Reading) {}

// Tick generates one reading for every registered sensor and buffers them
// for subsequent Next calls.
func (s *SyntheticSensorSource) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.sensors {
		if r, ok := s.generateLocked(id); ok {
			s.pending = append(s.pending, r)
		}
	}
}
