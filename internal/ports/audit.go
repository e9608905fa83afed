package ports

import "sync"

// nodeRecord, edgeRecord, Reading, eventRecord, and balancingRecord
// mirror the reference SQLAlchemy tables (Node, Edge, SensorReading,
// Event, BalancingOperation) as in-memory rows, since relational
// persistence is out of scope (spec.md Non-goals).
type nodeRecord struct {
	ID         string
	Kind       string
	Capacity   float64
	Efficiency float64
}

type edgeRecord struct {
	U, V                     string
	Distance, Resistance, LineCapacity float64
}

type eventRecord struct {
	Kind, NodeID string
	Severity     int
	Payload      map[string]float64
	Resolved     bool
}

type balancingRecord struct {
	Overloaded  int
	Balanced    int
	SuccessRate float64
}

// AuditSink is an in-memory PersistenceSink recording every write for
// inspection by tests or a /stats endpoint. It never fails.
type AuditSink struct {
	mu         sync.Mutex
	nodes      []nodeRecord
	edges      []edgeRecord
	readings   []Reading
	events     []eventRecord
	balancings []balancingRecord
}

// NewAuditSink returns an empty AuditSink.
func NewAuditSink() *AuditSink { return &AuditSink{} }

func (s *AuditSink) RecordNode(id, kind string, capacity, efficiency float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, nodeRecord{ID: id, Kind: kind, Capacity: capacity, Efficiency: efficiency})
	return nil
}

func (s *AuditSink) RecordEdge(u, v string, distance, resistance, lineCapacity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, edgeRecord{U: u, V: v, Distance: distance, Resistance: resistance, LineCapacity: lineCapacity})
	return nil
}

func (s *AuditSink) RecordReading(r Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
	return nil
}

func (s *AuditSink) RecordEvent(kind, nodeID string, severity int, payload map[string]float64, resolved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventRecord{Kind: kind, NodeID: nodeID, Severity: severity, Payload: payload, Resolved: resolved})
	return nil
}

func (s *AuditSink) RecordBalancing(overloaded, balanced int, successRate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balancings = append(s.balancings, balancingRecord{Overloaded: overloaded, Balanced: balanced, SuccessRate: successRate})
	return nil
}

func (s *AuditSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = nil
	s.edges = nil
	s.readings = nil
	s.events = nil
	s.balancings = nil
	return nil
}

// Counts reports how many rows of each kind have been recorded since the
// last Reset, for diagnostics.
func (s *AuditSink) Counts() (nodes, edges, readings, events, balancings int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes), len(s.edges), len(s.readings), len(s.events), len(s.balancings)
}
