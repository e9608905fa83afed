package controller

import (
	"testing"
	"time"

	"github.com/ecogrid/gridctl/internal/eventqueue"
	"github.com/ecogrid/gridctl/internal/pqueue"
	"github.com/ecogrid/gridctl/internal/router"
	"github.com/ecogrid/gridctl/internal/system"
	"github.com/ecogrid/gridctl/internal/topology"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	sys := system.New(system.Config{})
	return New(sys, nil, nil)
}

func TestAddNode_AndGet(t *testing.T) {
	c := newTestController(t)
	if err := c.AddNode("n1", topology.Substation, 100, 0.9); err != nil {
		t.Fatalf("AddNode error: %v", err)
	}
	stats := c.Stats()
	if stats.Topology.NodeCount != 1 {
		t.Errorf("NodeCount = %d, want 1", stats.Topology.NodeCount)
	}
	if stats.Index.Size != 1 {
		t.Errorf("Index.Size = %d, want 1", stats.Index.Size)
	}
}

func TestAddNode_PropagatesConflict(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))
	if err := c.AddNode("n1", topology.Substation, 100, 0.9); err == nil {
		t.Fatal("expected conflict error on duplicate AddNode")
	}
}

func TestAddEdge_PropagatesNotFound(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))
	if err := c.AddEdge("n1", "missing", 1, 0.01, 50); err == nil {
		t.Fatal("expected not-found error referencing an unknown endpoint")
	}
}

func TestOnReading_NoOverloadDoesNotPush(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))

	if err := c.OnReading(Reading{NodeID: "n1", Load: 10}); err != nil {
		t.Fatalf("OnReading error: %v", err)
	}
	if c.Counters().OverloadsDetected != 0 {
		t.Errorf("expected no overload detected for a load well under threshold")
	}
	if !c.sys.EventLog.IsEmpty() {
		t.Error("expected no event pushed on a non-overload reading")
	}
	if c.sys.Queue.Len() != 0 {
		t.Error("expected no priority item pushed on a non-overload reading")
	}
}

func TestOnReading_OverloadPushesBothQueues(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))

	// threshold = 0.9 * 100 = 90; 95 > 90 triggers an overload.
	if err := c.OnReading(Reading{NodeID: "n1", Load: 95}); err != nil {
		t.Fatalf("OnReading error: %v", err)
	}
	if c.Counters().OverloadsDetected != 1 {
		t.Errorf("OverloadsDetected = %d, want 1", c.Counters().OverloadsDetected)
	}

	events := c.sys.EventLog.Snapshot()
	if len(events) != 1 || events[0].Kind != eventqueue.Overload || events[0].NodeID != "n1" {
		t.Fatalf("unexpected EventLog state: %+v", events)
	}
	if c.sys.Queue.Len() != 1 {
		t.Fatalf("Queue.Len() = %d, want 1", c.sys.Queue.Len())
	}
	item, ok := c.sys.Queue.Peek()
	if !ok || item.Severity != pqueue.High || item.NodeID != "n1" {
		t.Errorf("unexpected queued item: %+v, ok=%v", item, ok)
	}

	state, _ := c.sys.Topology.Get("n1")
	if state.CurrentLoad != 95 {
		t.Errorf("CurrentLoad = %f, want 95", state.CurrentLoad)
	}
}

func TestOnReading_NegativeLoadRejected(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))
	if err := c.OnReading(Reading{NodeID: "n1", Load: -1}); err == nil {
		t.Fatal("expected InvalidArgument error for a negative load")
	}
}

func TestOnReading_UnknownNode(t *testing.T) {
	c := newTestController(t)
	if err := c.OnReading(Reading{NodeID: "missing", Load: 10}); err == nil {
		t.Fatal("expected not-found error for an unregistered node")
	}
}

func TestOnFailure_PushesCriticalToBothQueues(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))

	c.OnFailure("n1", 5*time.Second)

	events := c.sys.EventLog.Snapshot()
	if len(events) != 1 || events[0].Kind != eventqueue.LineFailure {
		t.Fatalf("unexpected EventLog state: %+v", events)
	}
	item, ok := c.sys.Queue.Peek()
	if !ok || item.Severity != pqueue.Critical || item.Message != "failure" {
		t.Errorf("unexpected queued item: %+v, ok=%v", item, ok)
	}
}

func TestBalanceNow_CoalescesOverloadEvents(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("overloaded", topology.Substation, 100, 0.9))
	must(t, c.AddNode("spare", topology.Substation, 100, 0.95))
	must(t, c.AddEdge("overloaded", "spare", 1, 0.01, 50))

	must(t, c.OnReading(Reading{NodeID: "spare", Load: 10}))
	must(t, c.OnReading(Reading{NodeID: "overloaded", Load: 95}))

	if c.sys.EventLog.IsEmpty() {
		t.Fatal("expected the overload reading to have queued an event")
	}

	outcome := c.BalanceNow()
	if outcome.Overloaded != 1 {
		t.Errorf("Overloaded = %d, want 1", outcome.Overloaded)
	}
	if outcome.Balanced != 1 {
		t.Errorf("Balanced = %d, want 1", outcome.Balanced)
	}
	if outcome.EventsCleared != 2 {
		t.Fatalf("EventsCleared = %d, want 2 (one EventLog entry, one queue item)", outcome.EventsCleared)
	}
	if !c.sys.EventLog.IsEmpty() {
		t.Error("expected the overload EventLog entry to be coalesced away")
	}
	if c.sys.Queue.Len() != 0 {
		t.Error("expected the overload queue item to be coalesced away")
	}

	counters := c.Counters()
	if counters.OverloadsResolved != 2 {
		t.Errorf("OverloadsResolved = %d, want 2", counters.OverloadsResolved)
	}
	if counters.OverloadActions != 1 {
		t.Errorf("OverloadActions = %d, want 1", counters.OverloadActions)
	}
}

func TestBalanceNow_PreservesUnrelatedEvents(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))

	c.OnFailure("n1", time.Second)
	outcome := c.BalanceNow()
	if outcome.EventsCleared != 0 {
		t.Errorf("EventsCleared = %d, want 0 (failure events are not coalesced by BalanceNow)", outcome.EventsCleared)
	}
	if c.sys.EventLog.IsEmpty() {
		t.Error("expected the unrelated failure event to survive BalanceNow")
	}
}

func TestOptimizeNow_Delegates(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("efficient", topology.Substation, 100, 0.95))
	must(t, c.AddNode("lossy", topology.Substation, 100, 0.6))
	must(t, c.AddEdge("efficient", "lossy", 1, 0.01, 50))
	must(t, c.OnReading(Reading{NodeID: "efficient", Load: 30}))
	must(t, c.OnReading(Reading{NodeID: "lossy", Load: 50}))

	outcome := c.OptimizeNow()
	if outcome.Report.OptimizationsPerformed != 1 {
		t.Errorf("OptimizationsPerformed = %d, want 1", outcome.Report.OptimizationsPerformed)
	}
	// lossy starts at 50*(1-0.6)*0.5=10, efficient at 30*(1-0.95)*0.5=0.75;
	// Optimize migrates 10 from lossy to efficient, so the carbon report
	// reflects the post-migration loads, not the pre-migration ones.
	if outcome.Carbon.KgCO2 <= 0 {
		t.Errorf("Carbon.KgCO2 = %f, want > 0", outcome.Carbon.KgCO2)
	}
}

func TestOptimizeNow_IncludesRenewableSuggestions(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.2))
	must(t, c.OnReading(Reading{NodeID: "n1", Load: 95}))

	outcome := c.OptimizeNow()
	if len(outcome.Renewables) != 1 || outcome.Renewables[0].NodeID != "n1" {
		t.Errorf("unexpected renewable suggestions: %+v", outcome.Renewables)
	}
}

func TestRouteQuery_Delegates(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("A", topology.Substation, 100, 0.9))
	must(t, c.AddNode("B", topology.Substation, 100, 0.9))
	must(t, c.AddEdge("A", "B", 1, 0.01, 50))

	result, err := c.RouteQuery("A", "B", router.Dijkstra)
	if err != nil {
		t.Fatalf("RouteQuery error: %v", err)
	}
	if !result.Found || len(result.Path) != 2 {
		t.Errorf("unexpected route result: %+v", result)
	}
}

func TestPredict_UsesReadingHistory(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))
	for _, load := range []float64{10, 20, 30, 40, 50} {
		must(t, c.OnReading(Reading{NodeID: "n1", Load: load}))
	}

	out, err := c.Predict("n1", 3)
	if err != nil {
		t.Fatalf("Predict error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len(Predict) = %d, want 3", len(out))
	}
	// MovingAveragePredictor with the default 24-wide window averages the
	// entire 5-sample history: (10+20+30+40+50)/5 = 30.
	for _, v := range out {
		if v != 30 {
			t.Errorf("predicted value = %f, want 30", v)
		}
	}
}

func TestPredict_UnknownNode(t *testing.T) {
	c := newTestController(t)
	if _, err := c.Predict("missing", 3); err == nil {
		t.Fatal("expected not-found error for an unregistered node")
	}
}

func TestPredict_NoHistoryYet(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))
	if _, err := c.Predict("n1", 3); err == nil {
		t.Fatal("expected an error when no reading has ever been recorded")
	}
}

func TestRouteUpgrades_Delegates(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("A", topology.Substation, 100, 0.9))
	must(t, c.AddNode("B", topology.Substation, 100, 0.9))
	must(t, c.AddEdge("A", "B", 100, 0.5, 50))
	must(t, c.OnReading(Reading{NodeID: "A", Load: 90}))

	suggestions := c.RouteUpgrades(0)
	if len(suggestions) != 1 || suggestions[0].From != "A" || suggestions[0].To != "B" {
		t.Fatalf("unexpected upgrade suggestions: %+v", suggestions)
	}
}

func TestRouteRedundant_Delegates(t *testing.T) {
	c := newTestController(t)
	for _, id := range []string{"A", "B", "C", "D"} {
		must(t, c.AddNode(id, topology.Substation, 100, 0.9))
	}
	must(t, c.AddEdge("A", "B", 1, 0.01, 50))
	must(t, c.AddEdge("B", "D", 1, 0.01, 50))
	must(t, c.AddEdge("A", "C", 1, 0.01, 50))
	must(t, c.AddEdge("C", "D", 1, 0.01, 50))

	results, err := c.RouteRedundant("A", "D", 2)
	if err != nil {
		t.Fatalf("RouteRedundant error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
}

func TestSimulateOverload_RoundRobinsAcrossNodes(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))
	must(t, c.AddNode("n2", topology.Substation, 100, 0.9))

	pushed := c.SimulateOverload(3)
	if pushed != 3 {
		t.Fatalf("pushed = %d, want 3", pushed)
	}
	if c.sys.EventLog.Size() != 3 {
		t.Errorf("EventLog.Size() = %d, want 3", c.sys.EventLog.Size())
	}
	if c.sys.Queue.Len() != 3 {
		t.Errorf("Queue.Len() = %d, want 3", c.sys.Queue.Len())
	}
	if c.Counters().OverloadsDetected != 3 {
		t.Errorf("OverloadsDetected = %d, want 3", c.Counters().OverloadsDetected)
	}
}

func TestSimulateOverload_EmptyTopology(t *testing.T) {
	c := newTestController(t)
	if pushed := c.SimulateOverload(5); pushed != 0 {
		t.Errorf("pushed = %d, want 0 on an empty topology", pushed)
	}
}

func TestEventsSnapshot_FilterByKind(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))

	c.OnFailure("n1", time.Second)
	must(t, c.OnReading(Reading{NodeID: "n1", Load: 95}))

	all, stats := c.EventsSnapshot(eventqueue.Overload, false)
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	if stats.CurrentSize != 2 {
		t.Errorf("CurrentSize = %d, want 2", stats.CurrentSize)
	}

	overloadOnly, _ := c.EventsSnapshot(eventqueue.Overload, true)
	if len(overloadOnly) != 1 || overloadOnly[0].Kind != eventqueue.Overload {
		t.Fatalf("unexpected filtered snapshot: %+v", overloadOnly)
	}
}

func TestEventsCritical_FiltersByThreshold(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))

	c.OnFailure("n1", time.Second)          // Critical
	must(t, c.OnReading(Reading{NodeID: "n1", Load: 95})) // High

	critical := c.EventsCritical(pqueue.Critical)
	if len(critical) != 1 || critical[0].Severity != pqueue.Critical {
		t.Fatalf("unexpected critical events: %+v", critical)
	}
}

func TestReset_ZeroesCountersAndClearsComponents(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))
	must(t, c.OnReading(Reading{NodeID: "n1", Load: 95}))
	c.BalanceNow()

	c.Reset()

	if c.Counters() != (Counters{}) {
		t.Errorf("expected zeroed counters after Reset, got %+v", c.Counters())
	}
	if len(c.BenchmarkSummary()) != 0 {
		t.Error("expected empty benchmark summary after Reset")
	}
	if _, ok := c.sys.Topology.Get("n1"); ok {
		t.Error("expected Topology cleared after Reset")
	}
}

func TestBenchmarkSummary_AccumulatesPerOp(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("A", topology.Substation, 100, 0.9))
	must(t, c.AddNode("B", topology.Substation, 100, 0.9))
	must(t, c.AddEdge("A", "B", 1, 0.01, 50))

	must(t, c.OnReading(Reading{NodeID: "A", Load: 10}))
	must(t, c.OnReading(Reading{NodeID: "A", Load: 20}))
	if _, err := c.RouteQuery("A", "B", router.Dijkstra); err != nil {
		t.Fatalf("RouteQuery error: %v", err)
	}

	summary := c.BenchmarkSummary()
	counts := map[string]uint64{}
	for _, e := range summary {
		counts[e.Op] = e.Count
	}
	if counts["on_reading"] != 2 {
		t.Errorf("on_reading count = %d, want 2", counts["on_reading"])
	}
	if counts["route_query"] != 1 {
		t.Errorf("route_query count = %d, want 1", counts["route_query"])
	}
}

func TestInit_BootstrapsRingTopology(t *testing.T) {
	c := newTestController(t)
	topoStats, idxStats, err := c.Init(5, false)
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if topoStats.NodeCount != 5 {
		t.Errorf("NodeCount = %d, want 5", topoStats.NodeCount)
	}
	if idxStats.Size != 5 {
		t.Errorf("Index.Size = %d, want 5", idxStats.Size)
	}
	// Each node in a 5-node ring has exactly two active neighbours.
	for i := 0; i < 5; i++ {
		id := ringNodeID(i)
		if _, ok := c.sys.Topology.Get(id); !ok {
			t.Fatalf("expected node %s to exist", id)
		}
		if got := c.sys.Topology.ActiveDegree(id); got != 2 {
			t.Errorf("node %s ActiveDegree = %d, want 2", id, got)
		}
	}
}

func TestInit_SingleNodeSkipsSelfLoop(t *testing.T) {
	c := newTestController(t)
	topoStats, _, err := c.Init(1, false)
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if topoStats.NodeCount != 1 {
		t.Errorf("NodeCount = %d, want 1", topoStats.NodeCount)
	}
	// neighbour(0) wraps to itself; the u==v guard must skip it rather
	// than attempt a rejected self-loop edge.
	if got := c.sys.Topology.ActiveDegree(ringNodeID(0)); got != 0 {
		t.Errorf("ActiveDegree = %d, want 0", got)
	}
}

func TestStats_AggregatesComponents(t *testing.T) {
	c := newTestController(t)
	must(t, c.AddNode("n1", topology.Substation, 100, 0.9))

	stats := c.Stats()
	if stats.Topology.NodeCount != 1 {
		t.Errorf("Topology.NodeCount = %d, want 1", stats.Topology.NodeCount)
	}
	if stats.QueueSize != 0 {
		t.Errorf("QueueSize = %d, want 0", stats.QueueSize)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
