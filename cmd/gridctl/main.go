// Command gridctl runs the grid control-plane HTTP server: it bootstraps
// a System/Controller pair, exposes spec.md §6's command surface, and
// serves health/metrics endpoints, following the teacher's
// cmd/qumo-relay/main.go structure (flag-selected config file, signal-
// driven graceful shutdown, a Prometheus-backed metrics mux).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecogrid/gridctl/internal/config"
	"github.com/ecogrid/gridctl/internal/controller"
	"github.com/ecogrid/gridctl/internal/httpapi"
	"github.com/ecogrid/gridctl/internal/ports"
	"github.com/ecogrid/gridctl/internal/system"
	"github.com/ecogrid/gridctl/observability"
)

func main() {
	configFile := flag.String("config", "configs/config.gridctl.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := observability.Setup(ctx, observability.Config{
		Service: cfg.Observability.Service,
		Metrics: cfg.Observability.Metrics,
	}); err != nil {
		log.Fatalf("failed to setup observability: %v", err)
	}
	defer observability.Shutdown(context.Background())

	sys := system.New(system.Config{EventLogCapacity: cfg.EventLog.Capacity})
	sink := ports.NewAuditSink()
	ctrl := controller.New(sys, sink, ports.SystemClock{})

	sensors := ports.NewSyntheticSensorSource(ports.SystemClock{}, cfg.Sensors.Seed)
	go pollSensors(ctx, ctrl, sensors, cfg.Sensors.PollInterval)

	mux := http.NewServeMux()
	httpapi.RegisterHandlers(mux, ctrl)
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}

	go func() {
		log.Printf("gridctl listening on %s", cfg.Server.Address)
		log.Println("  /init              - bootstrap a synthetic topology")
		log.Println("  /reset             - clear all in-memory state")
		log.Println("  /add_node          - register a node")
		log.Println("  /update_load       - ingest a sensor reading")
		log.Println("  /balance           - run one Balancer pass")
		log.Println("  /optimize          - run one Optimizer pass")
		log.Println("  /route             - find a route between two nodes")
		log.Println("  /route_redundant   - find k edge-disjoint routes")
		log.Println("  /route/upgrades    - flag high-loss lines for upgrade")
		log.Println("  /predict           - forecast a node's future load")
		log.Println("  /simulate_overload - inject synthetic overload events")
		log.Println("  /events            - snapshot the bounded event log")
		log.Println("  /events_critical   - severity-filtered priority queue view")
		log.Println("  /stats             - aggregate component statistics")
		log.Println("  /benchmark_summary - rolling per-operation latency")
		log.Println("  /health            - liveness probe")
		log.Println("  /metrics           - Prometheus metrics")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down gridctl...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down http server: %v", err)
	}

	slog.Info("gridctl stopped")
}

// pollSensors drives a synthetic smart-meter feed into ctrl: each tick it
// registers any newly-added topology node with the sensor source, then
// ingests one reading per sensor exactly as a real telemetry push would.
// This is the only non-test caller of ports.SyntheticSensorSource.
func pollSensors(ctx context.Context, ctrl *controller.Controller, src *ports.SyntheticSensorSource, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	registered := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range ctrl.NodeIDs() {
				if !registered[id] {
					src.CreateSensor(id, 50, 0.02)
					registered[id] = true
				}
			}
			src.Tick()
			for {
				reading, ok := src.Next()
				if !ok {
					break
				}
				if err := ctrl.OnReading(controller.Reading{NodeID: reading.NodeID, Load: reading.Load}); err != nil {
					slog.Warn("sensor poll: OnReading failed", "node", reading.NodeID, "err", err)
				}
			}
		}
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}
