// Package balancer implements Balance: greedy redistribution of load from
// overloaded nodes onto efficient, under-capacity neighbours. Generalized
// from the reference balancing.py's LoadBalancer.
package balancer

import (
	"sort"

	"github.com/ecogrid/gridctl/internal/ordering"
	"github.com/ecogrid/gridctl/internal/topology"
)

const (
	overloadThreshold = 0.9
	targetUtilization = 0.8
)

// Transfer is one load movement applied during Balance.
type Transfer struct {
	From   string
	To     string
	Amount float64
}

// Report is the outcome of a Balance call.
type Report struct {
	Overloaded  int
	Balanced    int
	SuccessRate float64
	Transfers   []Transfer
}

// Balancer redistributes load across a Topology, keeping an OrderedIndex
// mirror of node state in sync with every mutation it applies.
type Balancer struct {
	topo  *topology.Topology
	index *ordering.OrderedIndex
}

// New builds a Balancer over topo and index. Both must be kept in sync by
// the same Controller that owns this Balancer.
func New(topo *topology.Topology, index *ordering.OrderedIndex) *Balancer {
	return &Balancer{topo: topo, index: index}
}

// Balance runs one pass of the greedy redistribution algorithm.
func (b *Balancer) Balance() Report {
	overloaded := b.index.Overloaded(overloadThreshold)
	sort.Slice(overloaded, func(i, j int) bool { return overloaded[i].ID < overloaded[j].ID })

	report := Report{Overloaded: len(overloaded)}
	if len(overloaded) == 0 {
		report.SuccessRate = 1.0
		return report
	}

	for _, entry := range overloaded {
		s := entry.ID
		state, ok := b.topo.Get(s)
		if !ok {
			continue
		}
		excess := state.CurrentLoad - targetUtilization*state.Capacity
		if excess <= 0 {
			continue
		}
		originalExcess := excess

		candidates := b.candidates(s)
		remaining := excess
		for _, c := range candidates {
			if remaining <= 0 {
				break
			}
			amount := remaining
			if c.available < amount {
				amount = c.available
			}
			if amount <= 0 {
				continue
			}
			b.applyTransfer(s, c.id, amount)
			report.Transfers = append(report.Transfers, Transfer{From: s, To: c.id, Amount: amount})
			remaining -= amount
		}

		if remaining < 0.1*originalExcess {
			report.Balanced++
		}
	}

	report.SuccessRate = float64(report.Balanced) / float64(report.Overloaded)
	return report
}

type candidate struct {
	id         string
	efficiency float64
	available  float64
}

// candidates enumerates active neighbours of s with spare capacity, sorted
// by efficiency descending then NodeId ascending.
func (b *Balancer) candidates(s string) []candidate {
	neighbours, err := b.topo.Neighbours(s)
	if err != nil {
		return nil
	}

	var out []candidate
	for _, nb := range neighbours {
		if nb.Attr.Status != topology.Active {
			continue
		}
		n, ok := b.topo.Get(nb.ID)
		if !ok {
			continue
		}
		available := n.Capacity - n.CurrentLoad
		if available <= 0 {
			continue
		}
		out = append(out, candidate{id: nb.ID, efficiency: n.Efficiency, available: available})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].efficiency != out[j].efficiency {
			return out[i].efficiency > out[j].efficiency
		}
		return out[i].id < out[j].id
	})
	return out
}

// applyTransfer moves amount of load from `from` to `to`, updating both
// Topology and the OrderedIndex mirror for both endpoints.
func (b *Balancer) applyTransfer(from, to string, amount float64) {
	fromState, ok := b.topo.Get(from)
	if !ok {
		return
	}
	toState, ok := b.topo.Get(to)
	if !ok {
		return
	}

	newFromLoad := fromState.CurrentLoad - amount
	newToLoad := toState.CurrentLoad + amount

	_ = b.topo.UpdateLoad(from, newFromLoad)
	_ = b.topo.UpdateLoad(to, newToLoad)

	fromState.CurrentLoad = newFromLoad
	toState.CurrentLoad = newToLoad
	b.index.Upsert(from, fromState)
	b.index.Upsert(to, toState)
}
