// Package controller implements the reactive control loop described in
// spec.md §4.8: detect an overload, enqueue it in both event planes,
// service it through Balancer/Optimizer, coalesce resolved events, and
// answer ad-hoc route queries. Every mutating method runs under the
// System's single coarse lock, realizing the "single logical critical
// section over (OrderedIndex, Topology) plus both queues" required by
// spec.md §5.
//
// Grounded on the control flow implied by the reference app.py (one set
// of structures instantiated once, algorithms invoked against them) and
// styled on the teacher's Topology method shapes (validate, lock, mutate,
// bump generation).
package controller

import (
	"strconv"
	"sync"
	"time"

	"github.com/ecogrid/gridctl/internal/eventqueue"
	"github.com/ecogrid/gridctl/internal/gridctlerr"
	"github.com/ecogrid/gridctl/internal/optimizer"
	"github.com/ecogrid/gridctl/internal/ordering"
	"github.com/ecogrid/gridctl/internal/pqueue"
	"github.com/ecogrid/gridctl/internal/ports"
	"github.com/ecogrid/gridctl/internal/router"
	"github.com/ecogrid/gridctl/internal/system"
	"github.com/ecogrid/gridctl/internal/topology"
)

const overloadUtilizationThreshold = 0.9

// Reading is the input to OnReading.
type Reading struct {
	NodeID string
	Load   float64
}

// BalanceOutcome is the result of BalanceNow.
type BalanceOutcome struct {
	Overloaded     int
	Balanced       int
	SuccessRate    float64
	EventsCleared  int
	ExecMS         float64
}

// opKind names an operation for the benchmark-summary rolling averages.
type opKind string

const (
	opOnReading opKind = "on_reading"
	opBalance   opKind = "balance_now"
	opOptimize  opKind = "optimize_now"
	opRoute     opKind = "route_query"
)

// historyCapacity bounds the per-node reading history kept for Predict;
// old samples are dropped once a node exceeds it.
const historyCapacity = 500

// Controller drives the reactive loop over a System. Stateless beyond the
// counters spec.md §4.8 asks for; all durable state lives in System.
type Controller struct {
	sys       *system.System
	sink      ports.PersistenceSink
	clock     ports.Clock
	predictor ports.Predictor

	overloadsDetected uint64
	overloadsResolved uint64
	overloadActions   uint64
	sumResponseMS     float64

	benchMu sync.Mutex
	bench   map[opKind]*benchAccum

	history map[string][]float64
}

type benchAccum struct {
	count uint64
	sumMS float64
}

// New builds a Controller over sys. sink may be nil (no persistence).
// clock defaults to ports.SystemClock{} if nil.
func New(sys *system.System, sink ports.PersistenceSink, clock ports.Clock) *Controller {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Controller{
		sys:       sys,
		sink:      sink,
		clock:     clock,
		predictor: ports.NewMovingAveragePredictor(0),
		bench:     make(map[opKind]*benchAccum),
		history:   make(map[string][]float64),
	}
}

func (c *Controller) record(op opKind, start time.Time) {
	ms := float64(time.Since(start).Microseconds()) / 1000.0
	c.benchMu.Lock()
	defer c.benchMu.Unlock()
	a, ok := c.bench[op]
	if !ok {
		a = &benchAccum{}
		c.bench[op] = a
	}
	a.count++
	a.sumMS += ms
}

// AddNode validates and registers a new node in both Topology and the
// OrderedIndex, atomically.
func (c *Controller) AddNode(id string, kind topology.NodeKind, capacity, efficiency float64) error {
	c.sys.Mu.Lock()
	defer c.sys.Mu.Unlock()

	if err := c.sys.Topology.AddNode(id, kind, capacity, efficiency, 0); err != nil {
		return err
	}
	state, _ := c.sys.Topology.Get(id)
	c.sys.Index.Upsert(id, state)

	if c.sink != nil {
		if err := c.sink.RecordNode(id, string(kind), capacity, efficiency); err != nil {
			_ = err // best-effort, never propagated
		}
	}
	return nil
}

// AddEdge validates and registers a symmetric edge.
func (c *Controller) AddEdge(u, v string, distance, resistance, lineCapacity float64) error {
	c.sys.Mu.Lock()
	defer c.sys.Mu.Unlock()

	if err := c.sys.Topology.AddEdge(u, v, distance, resistance, lineCapacity); err != nil {
		return err
	}
	if c.sink != nil {
		_ = c.sink.RecordEdge(u, v, distance, resistance, lineCapacity)
	}
	return nil
}

// OnReading validates r, upserts current_load into both OrderedIndex and
// Topology, and whenever the new load exceeds 0.9·capacity pushes one
// Overload event to both EventLog and PriorityQueue at severity 2 (a node
// that stays overloaded raises one event per reading).
func (c *Controller) OnReading(r Reading) error {
	const op = "controller.OnReading"
	start := time.Now()
	defer c.record(opOnReading, start)

	if r.Load < 0 {
		return gridctlerr.New(op, gridctlerr.InvalidArgument, "load must be >= 0")
	}

	c.sys.Mu.Lock()
	defer c.sys.Mu.Unlock()

	state, ok := c.sys.Topology.Get(r.NodeID)
	if !ok {
		return gridctlerr.New(op, gridctlerr.NotFound, "node not found: "+r.NodeID)
	}

	overload := r.Load > overloadUtilizationThreshold*state.Capacity

	if err := c.sys.Topology.UpdateLoad(r.NodeID, r.Load); err != nil {
		return err
	}
	state.CurrentLoad = r.Load
	c.sys.Index.Upsert(r.NodeID, state)
	c.appendHistory(r.NodeID, r.Load)

	if c.sink != nil {
		_ = c.sink.RecordReading(ports.Reading{NodeID: r.NodeID, Load: r.Load, Timestamp: c.clock.Now()})
	}

	if overload {
		c.overloadsDetected++
		payload := map[string]float64{"load": r.Load, "capacity": state.Capacity}
		c.sys.EventLog.Enqueue(eventqueue.Overload, r.NodeID, "node crossed overload threshold", payload)
		c.sys.Queue.Push(pqueue.Item{Severity: pqueue.High, NodeID: r.NodeID, Message: "overload", Data: payload})
		if c.sink != nil {
			_ = c.sink.RecordEvent(string(eventqueue.Overload), r.NodeID, int(pqueue.High), payload, false)
		}
	}
	return nil
}

// OnFailure records a line/node failure event in both queues at severity
// 1 (most critical).
func (c *Controller) OnFailure(nodeID string, duration time.Duration) {
	c.sys.Mu.Lock()
	defer c.sys.Mu.Unlock()

	payload := map[string]float64{"duration_s": duration.Seconds()}
	c.sys.EventLog.Enqueue(eventqueue.LineFailure, nodeID, "failure reported", payload)
	c.sys.Queue.Push(pqueue.Item{Severity: pqueue.Critical, NodeID: nodeID, Message: "failure", Data: payload})
	if c.sink != nil {
		_ = c.sink.RecordEvent(string(eventqueue.LineFailure), nodeID, int(pqueue.Critical), payload, false)
	}
}

// appendHistory records load into nodeID's trailing reading history,
// dropping the oldest sample once historyCapacity is exceeded. Callers
// must hold c.sys.Mu.
func (c *Controller) appendHistory(nodeID string, load float64) {
	h := append(c.history[nodeID], load)
	if len(h) > historyCapacity {
		h = h[len(h)-historyCapacity:]
	}
	c.history[nodeID] = h
}

// Predict forecasts horizon future load points for nodeID from its
// recorded reading history, delegating to the configured ports.Predictor
// (see spec.md §6's predict command).
func (c *Controller) Predict(nodeID string, horizon int) ([]float64, error) {
	const op = "controller.Predict"
	c.sys.Mu.Lock()
	defer c.sys.Mu.Unlock()

	if _, ok := c.sys.Topology.Get(nodeID); !ok {
		return nil, gridctlerr.New(op, gridctlerr.NotFound, "node not found: "+nodeID)
	}
	out := c.predictor.Predict(c.history[nodeID], horizon)
	if out == nil {
		return nil, gridctlerr.New(op, gridctlerr.InvalidArgument, "no reading history for node: "+nodeID)
	}
	return out, nil
}

// BalanceNow invokes the Balancer then coalesces every pending overload
// event out of both queues, regardless of which node they reference.
func (c *Controller) BalanceNow() BalanceOutcome {
	start := time.Now()
	defer c.record(opBalance, start)

	c.sys.Mu.Lock()
	defer c.sys.Mu.Unlock()

	report := c.sys.Balancer.Balance()

	cleared := c.coalesce(eventqueue.Overload)

	c.overloadsResolved += uint64(cleared)
	c.overloadActions++
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	c.sumResponseMS += elapsed

	if c.sink != nil {
		_ = c.sink.RecordBalancing(report.Overloaded, report.Balanced, report.SuccessRate)
	}

	return BalanceOutcome{
		Overloaded:    report.Overloaded,
		Balanced:      report.Balanced,
		SuccessRate:   report.SuccessRate,
		EventsCleared: cleared,
		ExecMS:        elapsed,
	}
}

// coalesce removes every buffered EventLog entry and every PriorityQueue
// item of kind/message matching the given eventqueue.Kind, returning the
// count removed. Non-matching events are preserved in original relative
// order.
func (c *Controller) coalesce(kind eventqueue.Kind) int {
	cleared := 0

	kept := make([]eventqueue.Event, 0, c.sys.EventLog.Size())
	for {
		ev, ok := c.sys.EventLog.Dequeue()
		if !ok {
			break
		}
		if ev.Kind == kind {
			cleared++
			continue
		}
		kept = append(kept, ev)
	}
	for _, ev := range kept {
		c.sys.EventLog.Enqueue(ev.Kind, ev.NodeID, ev.Message, ev.Data)
	}

	queueLen := c.sys.Queue.Len()
	keptItems := make([]pqueue.Item, 0, queueLen)
	for i := 0; i < queueLen; i++ {
		item, ok := c.sys.Queue.Pop()
		if !ok {
			break
		}
		if messageMatchesKind(item.Message, kind) {
			cleared++
			continue
		}
		keptItems = append(keptItems, item)
	}
	for _, item := range keptItems {
		c.sys.Queue.Push(item)
	}

	return cleared
}

func messageMatchesKind(message string, kind eventqueue.Kind) bool {
	return message == "overload" && kind == eventqueue.Overload
}

// OptimizationOutcome bundles one Optimize pass with the carbon and
// renewable-siting reports spec.md §6 lists alongside it.
type OptimizationOutcome struct {
	Report     optimizer.Report
	Carbon     optimizer.CarbonReport
	Renewables []optimizer.RenewableCandidate
}

// OptimizeNow runs one Optimizer pass, then attaches the resulting
// carbon footprint and renewable-siting suggestions computed over the
// post-migration state (see spec.md §6: "optimize -> optimization
// report, carbon, renewables").
func (c *Controller) OptimizeNow() OptimizationOutcome {
	start := time.Now()
	defer c.record(opOptimize, start)

	c.sys.Mu.Lock()
	defer c.sys.Mu.Unlock()

	report := c.sys.Optimizer.Optimize()
	return OptimizationOutcome{
		Report:     report,
		Carbon:     c.sys.Optimizer.CarbonFootprint(),
		Renewables: c.sys.Optimizer.SuggestRenewables(),
	}
}

// RouteUpgrades is a thin delegation to the Router's line-upgrade
// advisory (see spec.md §4.5's suggest_line_upgrades supplement).
func (c *Controller) RouteUpgrades(threshold float64) []router.UpgradeSuggestion {
	return c.sys.Router.LineUpgradeSuggestions(threshold)
}

// RouteQuery is a thin delegation to the Router.
func (c *Controller) RouteQuery(src, dst string, algo router.Algorithm) (router.RouteResult, error) {
	start := time.Now()
	defer c.record(opRoute, start)
	return c.sys.Router.FindOptimal(src, dst, algo)
}

// Reset clears every in-memory component and the persistence sink, and
// zeros every counter.
func (c *Controller) Reset() {
	c.sys.Reset()
	if c.sink != nil {
		_ = c.sink.Reset()
	}

	c.benchMu.Lock()
	c.bench = make(map[opKind]*benchAccum)
	c.benchMu.Unlock()

	c.sys.Mu.Lock()
	c.history = make(map[string][]float64)
	c.sys.Mu.Unlock()

	c.overloadsDetected = 0
	c.overloadsResolved = 0
	c.overloadActions = 0
	c.sumResponseMS = 0
}

// Counters reports the controller's running totals.
type Counters struct {
	OverloadsDetected    uint64
	OverloadsResolved    uint64
	OverloadActions      uint64
	AvgResponseMS        float64
}

// Counters reports overload/action totals and the rolling average
// response time of BalanceNow.
func (c *Controller) Counters() Counters {
	var avg float64
	if c.overloadActions > 0 {
		avg = c.sumResponseMS / float64(c.overloadActions)
	}
	return Counters{
		OverloadsDetected: c.overloadsDetected,
		OverloadsResolved: c.overloadsResolved,
		OverloadActions:   c.overloadActions,
		AvgResponseMS:     avg,
	}
}

// BenchmarkEntry is one row of BenchmarkSummary.
type BenchmarkEntry struct {
	Op       string
	Count    uint64
	AvgMS    float64
}

// BenchmarkSummary reports the rolling average exec_ms per operation
// kind.
func (c *Controller) BenchmarkSummary() []BenchmarkEntry {
	c.benchMu.Lock()
	defer c.benchMu.Unlock()

	out := make([]BenchmarkEntry, 0, len(c.bench))
	for op, a := range c.bench {
		avg := 0.0
		if a.count > 0 {
			avg = a.sumMS / float64(a.count)
		}
		out = append(out, BenchmarkEntry{Op: string(op), Count: a.count, AvgMS: avg})
	}
	return out
}

// RouteRedundant is a thin delegation to the Router's k-redundant search.
// It holds the System lock because the search temporarily disables edges.
func (c *Controller) RouteRedundant(src, dst string, k int) ([]router.RedundantResult, error) {
	c.sys.Mu.Lock()
	defer c.sys.Mu.Unlock()
	return c.sys.Router.FindRedundant(src, dst, k)
}

// SimulateOverload pushes n synthetic overload events, cycling through the
// topology's nodes round-robin; when n exceeds the node count, nodes are
// revisited and receive more than one event.
func (c *Controller) SimulateOverload(n int) int {
	c.sys.Mu.Lock()
	defer c.sys.Mu.Unlock()

	ids := c.sys.Topology.NodeIDs()
	if len(ids) == 0 || n <= 0 {
		return 0
	}

	pushed := 0
	for i := 0; i < n; i++ {
		id := ids[i%len(ids)]
		state, ok := c.sys.Topology.Get(id)
		if !ok {
			continue
		}
		payload := map[string]float64{"load": state.CurrentLoad, "capacity": state.Capacity}
		c.sys.EventLog.Enqueue(eventqueue.Overload, id, "simulated overload", payload)
		c.sys.Queue.Push(pqueue.Item{Severity: pqueue.High, NodeID: id, Message: "overload", Data: payload})
		pushed++
	}
	c.overloadsDetected += uint64(pushed)
	return pushed
}

// NodeIDs lists every registered node, for read-only external drivers
// (e.g. a sensor poll loop) that need to know what to feed without
// reaching into System directly.
func (c *Controller) NodeIDs() []string {
	c.sys.Mu.Lock()
	defer c.sys.Mu.Unlock()
	return c.sys.Topology.NodeIDs()
}

// EventsSnapshot returns the FIFO EventLog snapshot, optionally filtered
// by kind, plus current stats.
func (c *Controller) EventsSnapshot(kind eventqueue.Kind, filter bool) ([]eventqueue.Event, eventqueue.Stats) {
	if filter {
		return c.sys.EventLog.ByKind(kind), c.sys.EventLog.Stats()
	}
	return c.sys.EventLog.Snapshot(), c.sys.EventLog.Stats()
}

// EventsCritical returns every queued PriorityQueue item at or more severe
// than threshold.
func (c *Controller) EventsCritical(threshold pqueue.Severity) []pqueue.Item {
	return c.sys.Queue.Critical(threshold)
}

// Stats aggregates every component's Stats into one snapshot.
type Stats struct {
	Topology  topology.Stats
	Index     ordering.Stats
	EventLog  eventqueue.Stats
	QueueSize int
	Router    router.Stats
	Counters  Counters
}

// Init bootstraps a small synthetic ring topology of numNodes substations,
// each linked to its two ring neighbours, for demo/benchmark purposes.
// trainML is accepted for command-surface parity with spec.md §6 but is a
// no-op: the core never depends on predictor training.
func (c *Controller) Init(numNodes int, trainML bool) (topology.Stats, ordering.Stats, error) {
	_ = trainML
	for i := 0; i < numNodes; i++ {
		id := ringNodeID(i)
		if err := c.AddNode(id, topology.Substation, 100, 0.9); err != nil {
			return topology.Stats{}, ordering.Stats{}, err
		}
	}
	for i := 0; i < numNodes; i++ {
		u := ringNodeID(i)
		v := ringNodeID((i + 1) % numNodes)
		if u == v || (numNodes == 2 && i == 1) {
			continue // two nodes share a single edge
		}
		if err := c.AddEdge(u, v, 1, 0.01, 100); err != nil {
			return topology.Stats{}, ordering.Stats{}, err
		}
	}
	return c.sys.Topology.Stats(), c.sys.Index.Stats(), nil
}

func ringNodeID(i int) string {
	return "n" + strconv.Itoa(i)
}

// Stats reports the aggregate of all component stats.
func (c *Controller) Stats() Stats {
	return Stats{
		Topology:  c.sys.Topology.Stats(),
		Index:     c.sys.Index.Stats(),
		EventLog:  c.sys.EventLog.Stats(),
		QueueSize: c.sys.Queue.Len(),
		Router:    c.sys.Router.Stats(),
		Counters:  c.Counters(),
	}
}
