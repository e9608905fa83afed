// Package observability wires OpenTelemetry tracing and Prometheus
// metrics for gridctl. Tracing stays on the noop tracer unless a Service
// name is supplied, and metrics stay off unless Metrics is set, so unit
// tests and short-lived tools can call Setup with a zero Config safely.
package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config selects which observability features are active. The zero value
// disables everything.
type Config struct {
	// Service names the process in emitted spans and metrics.
	Service string
	// TraceAddr, if set, is informational only in this build: traces are
	// always written via the stdouttrace exporter (gridctl runs
	// single-process, single-host, with no remote collector to ship OTLP
	// to). Kept so callers migrating a multi-host deployment have a place
	// to put a future collector address.
	TraceAddr string
	// LogAddr is likewise informational; gridctl logs via log/slog to
	// stdout/stderr, not to a remote log sink.
	LogAddr string
	// Metrics enables Prometheus instrument registration.
	Metrics bool
}

var (
	mu       sync.Mutex
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
	metOn    bool
)

// Setup initializes tracing (if cfg.Service is set) and metrics (if
// cfg.Metrics is set). Safe to call with a zero Config; everything stays
// disabled and Start returns noop spans.
func Setup(ctx context.Context, cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	metOn = cfg.Metrics

	if cfg.Service == "" {
		tracer = otel.Tracer("gridctl")
		enabled = false
		return nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("observability: build stdouttrace exporter: %w", err)
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
	)
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(cfg.Service)
	enabled = true
	return nil
}

// Shutdown flushes and stops the tracer provider, if one was started.
func Shutdown(ctx context.Context) {
	mu.Lock()
	p := provider
	provider = nil
	enabled = false
	mu.Unlock()

	if p != nil {
		_ = p.Shutdown(ctx)
	}
}

// Enabled reports whether tracing is active.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// MetricsEnabled reports whether Prometheus metrics are active.
func MetricsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return metOn
}

// Span wraps an otel trace.Span with gridctl's error/event helpers.
type Span struct {
	s     trace.Span
	onEnd func()
}

// Start begins a span named name, or a noop span if tracing is disabled.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	mu.Lock()
	t := tracer
	mu.Unlock()
	if t == nil {
		t = otel.Tracer("gridctl")
	}
	ctx, s := t.Start(ctx, name)
	return ctx, &Span{s: s}
}

// Option configures StartWith.
type Option func(*startOpts)

type startOpts struct {
	attrs   []attribute.KeyValue
	onStart func()
	onEnd   func()
}

// Attrs attaches attributes to the span at start time.
func Attrs(attrs ...attribute.KeyValue) Option {
	return func(o *startOpts) { o.attrs = append(o.attrs, attrs...) }
}

// OnStart registers a callback invoked synchronously after the span
// starts.
func OnStart(fn func()) Option {
	return func(o *startOpts) { o.onStart = fn }
}

// OnEnd registers a callback invoked synchronously when the returned
// Span's End is called.
func OnEnd(fn func()) Option {
	return func(o *startOpts) { o.onEnd = fn }
}

// StartWith begins a span with the given options applied.
func StartWith(ctx context.Context, name string, opts ...Option) (context.Context, *Span) {
	var o startOpts
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := Start(ctx, name)
	if len(o.attrs) > 0 {
		span.s.SetAttributes(o.attrs...)
	}
	if o.onStart != nil {
		o.onStart()
	}
	if o.onEnd != nil {
		span.onEnd = o.onEnd
	}
	return ctx, span
}

// End closes the span, running any OnEnd callback first.
func (s *Span) End() {
	if s.onEnd != nil {
		s.onEnd()
	}
	s.s.End()
}

// Error records err on the span and marks it failed. A nil err is a
// no-op beyond the message.
func (s *Span) Error(err error, msg string) {
	if err != nil {
		s.s.RecordError(err)
		s.s.SetStatus(codes.Error, msg)
	}
	s.s.AddEvent(msg)
}

// Event records a named event with the given attributes.
func (s *Span) Event(name string, attrs ...attribute.KeyValue) {
	s.s.AddEvent(name, trace.WithAttributes(attrs...))
}

// Set attaches attributes to the span.
func (s *Span) Set(attrs ...attribute.KeyValue) {
	s.s.SetAttributes(attrs...)
}

// --- attribute helpers, grid-domain vocabulary ---

// Str builds a string attribute.
func Str(key, value string) attribute.KeyValue { return attribute.String(key, value) }

// Num builds an int64 attribute.
func Num(key string, value int64) attribute.KeyValue { return attribute.Int64(key, value) }

// Node tags a span/event with the node id under operation.
func Node(id string) attribute.KeyValue { return attribute.String("gridctl.node", id) }

// Algorithm tags a routing span with the algorithm used.
func Algorithm(name string) attribute.KeyValue { return attribute.String("gridctl.algorithm", name) }

// Severity tags an event span with its numeric severity.
func Severity(sev int) attribute.KeyValue { return attribute.Int64("gridctl.severity", int64(sev)) }

// Hops tags a route span with its hop count.
func Hops(n int) attribute.KeyValue { return attribute.Int64("gridctl.hops", int64(n)) }

// NodeCount tags a topology-wide span with a node count.
func NodeCount(n int) attribute.KeyValue { return attribute.Int64("gridctl.node_count", int64(n)) }
