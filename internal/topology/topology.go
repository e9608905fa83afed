// Package topology holds the undirected weighted adjacency of the
// electrical distribution grid: nodes carry load/capacity/efficiency,
// edges carry distance/resistance/line capacity and an active/disabled
// status. All mutations are symmetric and bump a generation counter the
// router uses to invalidate its result cache.
package topology

import (
	"sync"

	"github.com/ecogrid/gridctl/internal/gridctlerr"
)

// NodeKind is informational; it does not change algorithmic behaviour.
type NodeKind string

const (
	Substation  NodeKind = "substation"
	Transformer NodeKind = "transformer"
	Consumer    NodeKind = "consumer"
)

// EdgeStatus marks whether an edge currently participates in routing.
type EdgeStatus string

const (
	Active       EdgeStatus = "active"
	TempDisabled EdgeStatus = "temp_disabled"
)

// NodeState is the per-node operating point of the grid.
type NodeState struct {
	Kind        NodeKind
	Capacity    float64
	CurrentLoad float64
	Efficiency  float64
}

// Utilization is current_load / capacity.
func (n NodeState) Utilization() float64 {
	if n.Capacity <= 0 {
		return 0
	}
	return n.CurrentLoad / n.Capacity
}

// Overloaded reports utilization > 0.9 (see GLOSSARY).
func (n NodeState) Overloaded() bool { return n.Utilization() > 0.9 }

// Warning reports utilization in (0.8, 0.9].
func (n NodeState) Warning() bool {
	u := n.Utilization()
	return u > 0.8 && u <= 0.9
}

// EdgeAttr describes a transmission line. Both endpoints of an edge share
// the same *EdgeAttr so that SetEdgeStatus is naturally symmetric (per
// spec.md §9's design note: "an implementer may share the attribute by
// reference/index").
type EdgeAttr struct {
	Distance     float64
	Resistance   float64
	LineCapacity float64
	Status       EdgeStatus
}

// Weight is the routing cost of traversing this edge.
func (e EdgeAttr) Weight() float64 { return e.Distance * (1 + e.Resistance) }

// Neighbour is one entry of an adjacency list.
type Neighbour struct {
	ID   string
	Attr *EdgeAttr
}

type adjEntry struct {
	to   string
	attr *EdgeAttr
}

// Stats is the aggregate snapshot returned by Topology.Stats.
type Stats struct {
	NodeCount       int
	EdgeCount       int
	TotalCapacity   float64
	TotalLoad       float64
	Utilization     float64
	OverloadedCount int
	IsolatedCount   int
}

// Topology is the mutable undirected weighted grid. Safe for concurrent
// use; every mutation bumps Generation so a result cache elsewhere can
// invalidate wholesale.
type Topology struct {
	mu         sync.RWMutex
	nodes      map[string]NodeState
	adjacency  map[string][]adjEntry
	generation uint64
}

// New constructs an empty Topology.
func New() *Topology {
	return &Topology{
		nodes:     make(map[string]NodeState),
		adjacency: make(map[string][]adjEntry),
	}
}

// Generation returns the current mutation counter. Any mutation increments
// it; callers (the router's cache) use it to detect staleness.
func (t *Topology) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}

// Reset empties the topology in place, bumping Generation so any cache
// keyed on it invalidates.
func (t *Topology) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = make(map[string]NodeState)
	t.adjacency = make(map[string][]adjEntry)
	t.generation++
}

// AddNode registers a new node. Fails with Conflict if id already exists,
// InvalidArgument if capacity <= 0 or efficiency is outside (0, 1].
func (t *Topology) AddNode(id string, kind NodeKind, capacity, efficiency, initialLoad float64) error {
	const op = "topology.AddNode"
	if capacity <= 0 {
		return gridctlerr.New(op, gridctlerr.InvalidArgument, "capacity must be > 0")
	}
	if efficiency <= 0 || efficiency > 1 {
		return gridctlerr.New(op, gridctlerr.InvalidArgument, "efficiency must be in (0, 1]")
	}
	if initialLoad < 0 {
		return gridctlerr.New(op, gridctlerr.InvalidArgument, "initial load must be >= 0")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodes[id]; exists {
		return gridctlerr.New(op, gridctlerr.Conflict, "node already exists: "+id)
	}

	t.nodes[id] = NodeState{Kind: kind, Capacity: capacity, Efficiency: efficiency, CurrentLoad: initialLoad}
	t.adjacency[id] = nil
	t.generation++
	return nil
}

// AddEdge creates a symmetric, active edge between u and v. Fails if u==v,
// either endpoint is missing, or the edge already exists in either
// direction.
func (t *Topology) AddEdge(u, v string, distance, resistance, lineCapacity float64) error {
	const op = "topology.AddEdge"
	if u == v {
		return gridctlerr.New(op, gridctlerr.InvalidArgument, "edge endpoints must differ")
	}
	if distance <= 0 {
		return gridctlerr.New(op, gridctlerr.InvalidArgument, "distance must be > 0")
	}
	if resistance < 0 {
		return gridctlerr.New(op, gridctlerr.InvalidArgument, "resistance must be >= 0")
	}
	if lineCapacity <= 0 {
		return gridctlerr.New(op, gridctlerr.InvalidArgument, "line capacity must be > 0")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[u]; !ok {
		return gridctlerr.New(op, gridctlerr.NotFound, "node not found: "+u)
	}
	if _, ok := t.nodes[v]; !ok {
		return gridctlerr.New(op, gridctlerr.NotFound, "node not found: "+v)
	}
	for _, e := range t.adjacency[u] {
		if e.to == v {
			return gridctlerr.New(op, gridctlerr.Conflict, "edge already exists: "+u+"-"+v)
		}
	}

	attr := &EdgeAttr{Distance: distance, Resistance: resistance, LineCapacity: lineCapacity, Status: Active}
	t.adjacency[u] = append(t.adjacency[u], adjEntry{to: v, attr: attr})
	t.adjacency[v] = append(t.adjacency[v], adjEntry{to: u, attr: attr})
	t.generation++
	return nil
}

// UpdateLoad sets current_load. Does not raise events; the Controller
// evaluates overload conditions.
func (t *Topology) UpdateLoad(id string, load float64) error {
	const op = "topology.UpdateLoad"
	if load < 0 {
		return gridctlerr.New(op, gridctlerr.InvalidArgument, "load must be >= 0")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return gridctlerr.New(op, gridctlerr.NotFound, "node not found: "+id)
	}
	n.CurrentLoad = load
	t.nodes[id] = n
	t.generation++
	return nil
}

// Get returns a node's current state.
func (t *Topology) Get(id string) (NodeState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// NodeIDs returns every node id, unordered.
func (t *Topology) NodeIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	return ids
}

// Neighbours returns the adjacency list of id, including disabled edges.
func (t *Topology) Neighbours(id string) ([]Neighbour, error) {
	const op = "topology.Neighbours"
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.nodes[id]; !ok {
		return nil, gridctlerr.New(op, gridctlerr.NotFound, "node not found: "+id)
	}
	out := make([]Neighbour, 0, len(t.adjacency[id]))
	for _, e := range t.adjacency[id] {
		out = append(out, Neighbour{ID: e.to, Attr: e.attr})
	}
	return out, nil
}

// ActiveDegree counts active edges incident to id.
func (t *Topology) ActiveDegree(id string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.adjacency[id] {
		if e.attr.Status == Active {
			n++
		}
	}
	return n
}

// SetEdgeStatus mutates the shared EdgeAttr, so both directions observe the
// change simultaneously.
func (t *Topology) SetEdgeStatus(u, v string, status EdgeStatus) error {
	const op = "topology.SetEdgeStatus"
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.adjacency[u] {
		if e.to == v {
			e.attr.Status = status
			t.generation++
			return nil
		}
	}
	return gridctlerr.New(op, gridctlerr.NotFound, "edge not found: "+u+"-"+v)
}

// EdgeAttrOf returns the shared attribute of edge u-v, if present.
func (t *Topology) EdgeAttrOf(u, v string) (*EdgeAttr, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.adjacency[u] {
		if e.to == v {
			return e.attr, true
		}
	}
	return nil, false
}

// Stats aggregates the whole topology.
func (t *Topology) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var s Stats
	s.NodeCount = len(t.nodes)

	seen := make(map[string]bool)
	for id, n := range t.nodes {
		s.TotalCapacity += n.Capacity
		s.TotalLoad += n.CurrentLoad
		if n.Overloaded() {
			s.OverloadedCount++
		}
		active := 0
		for _, e := range t.adjacency[id] {
			if e.attr.Status == Active {
				active++
			}
			key := edgeKey(id, e.to)
			if !seen[key] {
				seen[key] = true
				s.EdgeCount++
			}
		}
		if active == 0 {
			s.IsolatedCount++
		}
	}
	if s.TotalCapacity > 0 {
		s.Utilization = s.TotalLoad / s.TotalCapacity
	}
	return s
}

func edgeKey(u, v string) string {
	if u < v {
		return u + "\x00" + v
	}
	return v + "\x00" + u
}
