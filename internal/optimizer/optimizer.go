// Package optimizer implements Optimize plus the adjacent efficiency
// reports (CarbonFootprint, SuggestRenewables), generalized from the
// reference efficiency.py's EfficiencyOptimizer.
package optimizer

import (
	"sort"

	"github.com/ecogrid/gridctl/internal/ordering"
	"github.com/ecogrid/gridctl/internal/topology"
)

const (
	candidateUtilizationCeiling = 0.6
	candidateEfficiencyFloor    = 0.85
	emissionFactor              = 0.5
)

// Transfer is one load movement applied during Optimize.
type Transfer struct {
	From   string
	To     string
	Amount float64
	Gain   float64
}

// Report is the outcome of an Optimize call.
type Report struct {
	OptimizationsPerformed int
	TotalEfficiencyGain    float64
	Details                []Transfer
}

// Optimizer migrates load toward efficient, under-utilized nodes.
type Optimizer struct {
	topo  *topology.Topology
	index *ordering.OrderedIndex
}

// New builds an Optimizer over topo and index, kept in sync by the owning
// Controller.
func New(topo *topology.Topology, index *ordering.OrderedIndex) *Optimizer {
	return &Optimizer{topo: topo, index: index}
}

// Optimize runs one pass of the efficiency-directed migration algorithm.
func (o *Optimizer) Optimize() Report {
	entries := o.index.InOrder()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].State.Efficiency != entries[j].State.Efficiency {
			return entries[i].State.Efficiency > entries[j].State.Efficiency
		}
		return entries[i].ID < entries[j].ID
	})

	var report Report
	for _, cand := range entries {
		t, ok := o.topo.Get(cand.ID)
		if !ok {
			continue
		}
		if !(t.Utilization() < candidateUtilizationCeiling && t.Efficiency > candidateEfficiencyFloor) {
			continue
		}

		neighbours, err := o.topo.Neighbours(cand.ID)
		if err != nil {
			continue
		}
		sort.Slice(neighbours, func(i, j int) bool { return neighbours[i].ID < neighbours[j].ID })

		headroom := t.Capacity - t.CurrentLoad
		for _, nb := range neighbours {
			if headroom <= 0 {
				break
			}
			if nb.Attr.Status != topology.Active {
				continue
			}
			n, ok := o.topo.Get(nb.ID)
			if !ok {
				continue
			}
			if !(n.Efficiency < t.Efficiency) {
				continue
			}

			amount := 0.2 * n.CurrentLoad
			if amount > headroom {
				amount = headroom
			}
			if amount <= 0 {
				continue
			}

			gain := amount * (t.Efficiency - n.Efficiency)

			newTargetLoad := t.CurrentLoad + amount
			newSourceLoad := n.CurrentLoad - amount
			_ = o.topo.UpdateLoad(cand.ID, newTargetLoad)
			_ = o.topo.UpdateLoad(nb.ID, newSourceLoad)
			t.CurrentLoad = newTargetLoad
			n.CurrentLoad = newSourceLoad
			o.index.Upsert(cand.ID, t)
			o.index.Upsert(nb.ID, n)

			headroom -= amount
			report.OptimizationsPerformed++
			report.TotalEfficiencyGain += gain
			report.Details = append(report.Details, Transfer{From: nb.ID, To: cand.ID, Amount: amount, Gain: gain})
		}
	}

	return report
}

// EfficiencyClass buckets a carbon footprint into a letter grade.
type EfficiencyClass string

const (
	ClassA EfficiencyClass = "A"
	ClassB EfficiencyClass = "B"
	ClassC EfficiencyClass = "C"
	ClassD EfficiencyClass = "D"
	ClassE EfficiencyClass = "E"
)

// CarbonReport is the result of CarbonFootprint.
type CarbonReport struct {
	KgCO2 float64
	Class EfficiencyClass
}

// CarbonFootprint sums current_load(n) * (1 - efficiency(n)) * 0.5 across
// every node, then grades the total A-E by thresholds {100, 250, 500,
// 1000}.
func (o *Optimizer) CarbonFootprint() CarbonReport {
	var total float64
	for _, e := range o.index.InOrder() {
		total += e.State.CurrentLoad * (1 - e.State.Efficiency) * emissionFactor
	}
	return CarbonReport{KgCO2: total, Class: classify(total)}
}

func classify(kgCO2 float64) EfficiencyClass {
	switch {
	case kgCO2 <= 100:
		return ClassA
	case kgCO2 <= 250:
		return ClassB
	case kgCO2 <= 500:
		return ClassC
	case kgCO2 <= 1000:
		return ClassD
	default:
		return ClassE
	}
}

// RenewableCandidate is one entry of SuggestRenewables.
type RenewableCandidate struct {
	NodeID string
	Score  float64
}

// SuggestRenewables scores every node by
// 0.4*utilization + 0.4*(1-efficiency) + 0.2*(degree/10), keeps those
// scoring above 0.5, and returns the top 5 descending by score.
func (o *Optimizer) SuggestRenewables() []RenewableCandidate {
	var out []RenewableCandidate
	for _, e := range o.index.InOrder() {
		degree := o.topo.ActiveDegree(e.ID)
		score := 0.4*e.State.Utilization() + 0.4*(1-e.State.Efficiency) + 0.2*(float64(degree)/10.0)
		if score > 0.5 {
			out = append(out, RenewableCandidate{NodeID: e.ID, Score: score})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].NodeID < out[j].NodeID
	})
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
