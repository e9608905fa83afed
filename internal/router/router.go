// Package router implements Router: path queries (Dijkstra and a heuristic
// best-first search exposed under the AStar algorithm name), k-redundant
// path discovery, power-loss estimation, and a generation-counter
// invalidated result cache.
//
// Generalized from the teacher's single-shortest-path dijkstra.go onto
// spec.md's richer Router surface, and from the reference routing.py
// (caching, k-redundant via temporary edge disable/restore, reliability
// scoring, power-loss formula).
package router

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/ecogrid/gridctl/internal/gridctlerr"
	"github.com/ecogrid/gridctl/internal/topology"
)

// Algorithm selects the search strategy for FindOptimal.
type Algorithm string

const (
	Dijkstra Algorithm = "dijkstra"
	// AStar is a heuristic best-first search. The heuristic used is not
	// admissible in general (see heuristic below); the name is kept for API
	// parity with callers that expect an "astar" algorithm choice.
	AStar Algorithm = "astar"
)

const nominalVoltage = 220.0

// RouteResult is the outcome of a single path query.
type RouteResult struct {
	Path      []string
	Cost      float64
	Unreachable bool
	Algorithm Algorithm
	ExecMS    float64
	Hops      int
	Found     bool
}

// RedundantResult additionally carries a reliability score in (0, 1].
type RedundantResult struct {
	RouteResult
	Reliability float64
}

// Stats summarizes router activity since the last ClearCache/Reset.
type Stats struct {
	TotalRoutes    uint64
	CacheSize      int
	AvgExecMS      float64
	AvgHops        float64
	AlgorithmsSeen map[Algorithm]uint64
}

type cacheKey struct {
	src, dst string
	algo     Algorithm
}

type cacheEntry struct {
	result RouteResult
}

// Router answers path queries over a Topology. Safe for concurrent use.
type Router struct {
	topo *topology.Topology

	mu           sync.Mutex
	cache        map[cacheKey]cacheEntry
	cacheGen     uint64
	totalRoutes  uint64
	sumExecMS    float64
	sumHops      float64
	algosSeen    map[Algorithm]uint64
}

// New builds a Router over topo.
func New(topo *topology.Topology) *Router {
	return &Router{
		topo:      topo,
		cache:     make(map[cacheKey]cacheEntry),
		algosSeen: make(map[Algorithm]uint64),
	}
}

func (r *Router) invalidateIfStale() {
	gen := r.topo.Generation()
	if gen != r.cacheGen {
		r.cache = make(map[cacheKey]cacheEntry)
		r.cacheGen = gen
	}
}

// FindOptimal computes the best path from src to dst under algo. Only
// active edges participate. src == dst short-circuits to a trivial found
// path. Results are cached by (src, dst, algo) until the topology mutates.
func (r *Router) FindOptimal(src, dst string, algo Algorithm) (RouteResult, error) {
	const op = "router.FindOptimal"
	if _, ok := r.topo.Get(src); !ok {
		return RouteResult{}, gridctlerr.New(op, gridctlerr.NotFound, "node not found: "+src)
	}
	if _, ok := r.topo.Get(dst); !ok {
		return RouteResult{}, gridctlerr.New(op, gridctlerr.NotFound, "node not found: "+dst)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateIfStale()

	key := cacheKey{src: src, dst: dst, algo: algo}
	if e, ok := r.cache[key]; ok {
		return e.result, nil
	}

	start := time.Now()
	result := r.search(src, dst, algo)
	result.ExecMS = float64(time.Since(start).Microseconds()) / 1000.0

	r.totalRoutes++
	r.algosSeen[algo]++
	r.sumExecMS += result.ExecMS
	r.sumHops += float64(result.Hops)

	if result.Found {
		r.cache[key] = cacheEntry{result: result}
	}
	return result, nil
}

// search runs Dijkstra or the heuristic best-first variant. Holding r.mu is
// not required by search itself (it only reads the topology), but callers
// invoke it under the lock to keep stats/cache updates atomic.
func (r *Router) search(src, dst string, algo Algorithm) RouteResult {
	if src == dst {
		return RouteResult{Path: []string{src}, Cost: 0, Algorithm: algo, Hops: 0, Found: true}
	}

	dist := map[string]float64{src: 0}
	prev := map[string]string{}
	visited := map[string]bool{}

	pq := &searchHeap{}
	heap.Init(pq)
	heap.Push(pq, &searchItem{id: src, priority: r.heuristicPriority(algo, src, 0)})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*searchItem)
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true

		if cur.id == dst {
			break
		}

		neighbours, err := r.topo.Neighbours(cur.id)
		if err != nil {
			continue
		}
		base := dist[cur.id]
		for _, nb := range neighbours {
			if nb.Attr.Status != topology.Active {
				continue
			}
			alt := base + nb.Attr.Weight()
			if existing, ok := dist[nb.ID]; !ok || alt < existing {
				dist[nb.ID] = alt
				prev[nb.ID] = cur.id
				heap.Push(pq, &searchItem{id: nb.ID, priority: r.heuristicPriority(algo, nb.ID, alt)})
			}
		}
	}

	finalCost, ok := dist[dst]
	if !ok {
		return RouteResult{Path: nil, Unreachable: true, Algorithm: algo, Found: false}
	}

	path := []string{dst}
	for at := dst; at != src; {
		p, ok := prev[at]
		if !ok {
			return RouteResult{Path: nil, Unreachable: true, Algorithm: algo, Found: false}
		}
		path = append(path, p)
		at = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return RouteResult{Path: path, Cost: finalCost, Algorithm: algo, Hops: len(path) - 1, Found: true}
}

// heuristicPriority returns the priority used to order the frontier. For
// Dijkstra it is the plain cumulative distance. For AStar it additionally
// weighs in a non-admissible efficiency/utilization penalty, per the
// reference design's h(n).
func (r *Router) heuristicPriority(algo Algorithm, node string, dist float64) float64 {
	if algo != AStar {
		return dist
	}
	n, ok := r.topo.Get(node)
	if !ok {
		return dist
	}
	effPenalty := 1.0
	if n.Efficiency < 0.85 {
		effPenalty = 1.2
	}
	utilPenalty := 1.0
	if n.Utilization() > 0.8 {
		utilPenalty = 1.5
	}
	h := 1.0 * effPenalty * utilPenalty
	return dist + h
}

type searchItem struct {
	id       string
	priority float64
	index    int
}

type searchHeap []*searchItem

func (h searchHeap) Len() int            { return len(h) }
func (h searchHeap) Less(i, j int) bool  { return h[i].priority < h[j].priority }
func (h searchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *searchHeap) Push(x any) {
	item := x.(*searchItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *searchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// FindRedundant computes up to k paths between src and dst by repeatedly
// finding the best remaining path and temporarily disabling its edges. All
// disabled edges are restored before returning, success or failure.
func (r *Router) FindRedundant(src, dst string, k int) ([]RedundantResult, error) {
	const op = "router.FindRedundant"
	if k <= 0 {
		return nil, gridctlerr.New(op, gridctlerr.InvalidArgument, "k must be > 0")
	}

	var disabled [][2]string
	restore := func() {
		for _, e := range disabled {
			r.topo.SetEdgeStatus(e[0], e[1], topology.Active)
		}
	}
	defer restore()

	var out []RedundantResult
	for i := 0; i < k; i++ {
		rr, err := r.FindOptimal(src, dst, Dijkstra)
		if err != nil {
			return nil, err
		}
		if !rr.Found {
			break
		}
		out = append(out, RedundantResult{RouteResult: rr, Reliability: r.reliability(rr.Path)})

		for j := 0; j+1 < len(rr.Path); j++ {
			u, v := rr.Path[j], rr.Path[j+1]
			if err := r.topo.SetEdgeStatus(u, v, topology.TempDisabled); err == nil {
				disabled = append(disabled, [2]string{u, v})
			}
		}
	}
	return out, nil
}

// reliability multiplies efficiency(n) * status_penalty(n) over every
// intermediate node of path (excluding the two endpoints).
func (r *Router) reliability(path []string) float64 {
	if len(path) <= 2 {
		return 1.0
	}
	rel := 1.0
	for _, id := range path[1 : len(path)-1] {
		n, ok := r.topo.Get(id)
		if !ok {
			continue
		}
		penalty := 1.0
		switch {
		case n.Overloaded():
			penalty = 0.5
		case n.Warning():
			penalty = 0.8
		}
		rel *= n.Efficiency * penalty
	}
	return rel
}

// PowerLoss sums (load(u)/V)^2 * resistance(u,v) * distance(u,v) over
// consecutive pairs of path, using the fixed nominal voltage of 220.
// Returns 0 for paths of length <= 1.
func (r *Router) PowerLoss(path []string) float64 {
	if len(path) <= 1 {
		return 0
	}
	var loss float64
	for i := 0; i+1 < len(path); i++ {
		u, v := path[i], path[i+1]
		nu, ok := r.topo.Get(u)
		if !ok {
			continue
		}
		attr, ok := r.topo.EdgeAttrOf(u, v)
		if !ok {
			continue
		}
		current := nu.CurrentLoad / nominalVoltage
		loss += current * current * attr.Resistance * attr.Distance
	}
	return loss
}

// ClearCache discards every cached route.
func (r *Router) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]cacheEntry)
}

// Stats reports router activity.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[Algorithm]uint64, len(r.algosSeen))
	for k, v := range r.algosSeen {
		seen[k] = v
	}

	s := Stats{
		TotalRoutes:    r.totalRoutes,
		CacheSize:      len(r.cache),
		AlgorithmsSeen: seen,
	}
	if r.totalRoutes > 0 {
		s.AvgExecMS = r.sumExecMS / float64(r.totalRoutes)
		s.AvgHops = r.sumHops / float64(r.totalRoutes)
	}
	return s
}

// LineUpgradeSuggestions flags edges whose estimated power loss exceeds
// threshold, recommending conductor replacement above 100 and routine
// maintenance otherwise. Grounded on routing.py's suggest_line_upgrades.
// Each edge is reported once, oriented from the endpoint whose load gives
// the larger loss estimate (the lower id on a tie).
func (r *Router) LineUpgradeSuggestions(threshold float64) []UpgradeSuggestion {
	var out []UpgradeSuggestion
	seen := make(map[string]bool)
	ids := r.topo.NodeIDs()
	sort.Strings(ids)
	for _, id := range ids {
		neighbours, err := r.topo.Neighbours(id)
		if err != nil {
			continue
		}
		for _, nb := range neighbours {
			key := edgePairKey(id, nb.ID)
			if seen[key] {
				continue
			}
			seen[key] = true

			loss, from, to := r.PowerLoss([]string{id, nb.ID}), id, nb.ID
			if rev := r.PowerLoss([]string{nb.ID, id}); rev > loss {
				loss, from, to = rev, nb.ID, id
			}
			if loss <= threshold {
				continue
			}
			action := "maintenance"
			if loss > 100 {
				action = "upgrade_conductor"
			}
			out = append(out, UpgradeSuggestion{From: from, To: to, EstimatedLoss: loss, Action: action})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EstimatedLoss > out[j].EstimatedLoss })
	return out
}

// UpgradeSuggestion is one entry of LineUpgradeSuggestions.
type UpgradeSuggestion struct {
	From, To      string
	EstimatedLoss float64
	Action        string
}

func edgePairKey(u, v string) string {
	if u < v {
		return u + "\x00" + v
	}
	return v + "\x00" + u
}
