package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	nodesGauge prometheus.Gauge

	readingsTotal   *prometheus.CounterVec
	cacheHitsTotal  *prometheus.CounterVec
	cacheMissTotal  *prometheus.CounterVec
	backlogGauge    *prometheus.GaugeVec
	neighboursGauge *prometheus.GaugeVec
	balanceDuration *prometheus.HistogramVec
	balanceResolved *prometheus.CounterVec
	opLatency       *prometheus.HistogramVec
)

func registerMetrics() {
	metricsOnce.Do(func() {
		nodesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridctl",
			Name:      "nodes_active",
			Help:      "Number of nodes currently registered in the topology.",
		})
		readingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridctl",
			Name:      "sensor_readings_total",
			Help:      "Sensor readings ingested per node.",
		}, []string{"node"})
		cacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridctl",
			Name:      "router_cache_hits_total",
			Help:      "Route cache hits per node.",
		}, []string{"node"})
		cacheMissTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridctl",
			Name:      "router_cache_misses_total",
			Help:      "Route cache misses per node.",
		}, []string{"node"})
		backlogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gridctl",
			Name:      "event_backlog",
			Help:      "Pending event count observed at a node.",
		}, []string{"node"})
		neighboursGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gridctl",
			Name:      "active_neighbours",
			Help:      "Active-edge degree of a node.",
		}, []string{"node"})
		balanceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gridctl",
			Name:      "balance_duration_seconds",
			Help:      "Duration of Balance passes triggered from a node's context.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"})
		balanceResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridctl",
			Name:      "balance_resolved_total",
			Help:      "Overloaded/balanced node counts from Balance passes.",
		}, []string{"node", "outcome"})
		opLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gridctl",
			Name:      "op_latency_seconds",
			Help:      "Latency of a named core operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node", "op"})

		prometheus.MustRegister(
			nodesGauge,
			readingsTotal,
			cacheHitsTotal,
			cacheMissTotal,
			backlogGauge,
			neighboursGauge,
			balanceDuration,
			balanceResolved,
			opLatency,
		)
	})
}

// IncNodes increments the active-node gauge. Safe to call when metrics
// are disabled (no-op).
func IncNodes() {
	if !MetricsEnabled() {
		return
	}
	registerMetrics()
	nodesGauge.Inc()
}

// DecNodes decrements the active-node gauge.
func DecNodes() {
	if !MetricsEnabled() {
		return
	}
	registerMetrics()
	nodesGauge.Dec()
}

// Recorder scopes a set of per-node Prometheus instruments, mirroring the
// teacher's per-track metrics recorder.
type Recorder struct {
	node string
}

// NewRecorder returns a Recorder scoped to node. Safe to use whether or
// not metrics are enabled; every method becomes a no-op when disabled.
func NewRecorder(node string) *Recorder {
	return &Recorder{node: node}
}

// ReadingReceived increments the per-node sensor-reading counter.
func (r *Recorder) ReadingReceived() {
	if !MetricsEnabled() {
		return
	}
	registerMetrics()
	readingsTotal.WithLabelValues(r.node).Inc()
}

// CacheHit increments the per-node route-cache hit counter.
func (r *Recorder) CacheHit() {
	if !MetricsEnabled() {
		return
	}
	registerMetrics()
	cacheHitsTotal.WithLabelValues(r.node).Inc()
}

// CacheMiss increments the per-node route-cache miss counter.
func (r *Recorder) CacheMiss() {
	if !MetricsEnabled() {
		return
	}
	registerMetrics()
	cacheMissTotal.WithLabelValues(r.node).Inc()
}

// Backlog sets the observed pending-event count for this node.
func (r *Recorder) Backlog(n int) {
	if !MetricsEnabled() {
		return
	}
	registerMetrics()
	backlogGauge.WithLabelValues(r.node).Set(float64(n))
}

// IncNeighbours increments this node's active-degree gauge.
func (r *Recorder) IncNeighbours() {
	if !MetricsEnabled() {
		return
	}
	registerMetrics()
	neighboursGauge.WithLabelValues(r.node).Inc()
}

// DecNeighbours decrements this node's active-degree gauge.
func (r *Recorder) DecNeighbours() {
	if !MetricsEnabled() {
		return
	}
	registerMetrics()
	neighboursGauge.WithLabelValues(r.node).Dec()
}

// SetNeighbours sets this node's active-degree gauge directly.
func (r *Recorder) SetNeighbours(n int) {
	if !MetricsEnabled() {
		return
	}
	registerMetrics()
	neighboursGauge.WithLabelValues(r.node).Set(float64(n))
}

// Balance records one Balance pass's duration and overloaded/balanced
// counts.
func (r *Recorder) Balance(d time.Duration, overloaded, balanced int) {
	if !MetricsEnabled() {
		return
	}
	registerMetrics()
	balanceDuration.WithLabelValues(r.node).Observe(d.Seconds())
	balanceResolved.WithLabelValues(r.node, "overloaded").Add(float64(overloaded))
	balanceResolved.WithLabelValues(r.node, "balanced").Add(float64(balanced))
}

// LatencyObs returns a Prometheus observer for the named operation,
// scoped to this node, or nil when metrics are disabled.
func (r *Recorder) LatencyObs(op string) prometheus.Observer {
	if !MetricsEnabled() {
		return nil
	}
	registerMetrics()
	return opLatency.WithLabelValues(r.node, op)
}
