// Package system owns the process-lifetime aggregate of every core
// component. A System is constructed once per process (tests construct
// fresh ones); every mutation flows through a single logical critical
// section realized here as one coarse sync.Mutex guarding the pair
// (OrderedIndex, Topology) plus both event queues, per spec.md §5.
//
// Generalized from the teacher's single Topology struct (which itself
// held one sync.RWMutex over its own graph) into an aggregate of several
// sibling components sharing one lock, since spec.md's critical section
// spans all of them together, not just one.
package system

import (
	"sync"

	"github.com/ecogrid/gridctl/internal/balancer"
	"github.com/ecogrid/gridctl/internal/eventqueue"
	"github.com/ecogrid/gridctl/internal/optimizer"
	"github.com/ecogrid/gridctl/internal/ordering"
	"github.com/ecogrid/gridctl/internal/pqueue"
	"github.com/ecogrid/gridctl/internal/router"
	"github.com/ecogrid/gridctl/internal/topology"
)

// Config bounds the sizes of the bounded components.
type Config struct {
	// EventLogCapacity bounds EventLog; defaults to 10,000 if <= 0.
	EventLogCapacity int
}

// System aggregates every core component. Mu serializes all mutating core
// operations; the Controller in package controller is the only intended
// caller of methods that acquire it.
type System struct {
	Mu sync.Mutex

	Index     *ordering.OrderedIndex
	Topology  *topology.Topology
	EventLog  *eventqueue.EventLog
	Queue     *pqueue.PriorityQueue
	Router    *router.Router
	Balancer  *balancer.Balancer
	Optimizer *optimizer.Optimizer
}

// New constructs a fresh System with all components wired together.
func New(cfg Config) *System {
	cap := cfg.EventLogCapacity
	if cap <= 0 {
		cap = 10000
	}

	topo := topology.New()
	index := ordering.New()

	return &System{
		Index:     index,
		Topology:  topo,
		EventLog:  eventqueue.New(cap),
		Queue:     pqueue.New(),
		Router:    router.New(topo),
		Balancer:  balancer.New(topo, index),
		Optimizer: optimizer.New(topo, index),
	}
}

// Reset empties every component in place, preserving identity so existing
// references (e.g. a held *Router) stay valid.
func (s *System) Reset() {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	s.Index.Reset()
	s.Topology.Reset()
	s.EventLog.Reset()
	s.Queue.Clear()
	s.Router.ClearCache()
}
