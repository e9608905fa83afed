// Package httpapi exposes the Controller's command surface over plain
// net/http, following the teacher's handler style in
// internal/topology/handler.go (bare handler funcs, a jsonError helper,
// one RegisterHandlers entry point).
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ecogrid/gridctl/internal/controller"
	"github.com/ecogrid/gridctl/internal/eventqueue"
	"github.com/ecogrid/gridctl/internal/gridctlerr"
	"github.com/ecogrid/gridctl/internal/pqueue"
	"github.com/ecogrid/gridctl/internal/router"
	"github.com/ecogrid/gridctl/internal/topology"
)

// RegisterHandlers wires every command in spec.md §6's surface table onto
// mux.
func RegisterHandlers(mux *http.ServeMux, c *controller.Controller) {
	mux.HandleFunc("/init", initHandler(c))
	mux.HandleFunc("/reset", resetHandler(c))
	mux.HandleFunc("/add_node", addNodeHandler(c))
	mux.HandleFunc("/update_load", updateLoadHandler(c))
	mux.HandleFunc("/balance", balanceHandler(c))
	mux.HandleFunc("/route", routeHandler(c))
	mux.HandleFunc("/route_redundant", routeRedundantHandler(c))
	mux.HandleFunc("/route/upgrades", routeUpgradesHandler(c))
	mux.HandleFunc("/optimize", optimizeHandler(c))
	mux.HandleFunc("/predict", predictHandler(c))
	mux.HandleFunc("/simulate_overload", simulateOverloadHandler(c))
	mux.HandleFunc("/events", eventsHandler(c))
	mux.HandleFunc("/events_critical", eventsCriticalHandler(c))
	mux.HandleFunc("/stats", statsHandler(c))
	mux.HandleFunc("/benchmark_summary", benchmarkSummaryHandler(c))
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func jsonOK(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps a gridctlerr.Kind to an HTTP status code.
func statusFor(err error) int {
	switch gridctlerr.KindOf(err) {
	case gridctlerr.NotFound:
		return http.StatusNotFound
	case gridctlerr.InvalidArgument:
		return http.StatusBadRequest
	case gridctlerr.Conflict:
		return http.StatusConflict
	case gridctlerr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func initHandler(c *controller.Controller) http.HandlerFunc {
	type request struct {
		NumNodes int  `json:"num_nodes"`
		TrainML  bool `json:"train_ml"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}

		topoStats, indexStats, err := c.Init(req.NumNodes, req.TrainML)
		if err != nil {
			jsonError(w, statusFor(err), err.Error())
			return
		}
		jsonOK(w, map[string]any{"topology": topoStats, "index": indexStats})
	}
}

func resetHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		c.Reset()
		jsonOK(w, map[string]string{"status": "reset"})
	}
}

func addNodeHandler(c *controller.Controller) http.HandlerFunc {
	type request struct {
		ID         string            `json:"id"`
		Kind       topology.NodeKind `json:"kind"`
		Capacity   float64           `json:"capacity"`
		Efficiency float64           `json:"efficiency"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if err := c.AddNode(req.ID, req.Kind, req.Capacity, req.Efficiency); err != nil {
			jsonError(w, statusFor(err), err.Error())
			return
		}
		jsonOK(w, map[string]string{"status": "created", "id": req.ID})
	}
}

func updateLoadHandler(c *controller.Controller) http.HandlerFunc {
	type request struct {
		ID   string  `json:"id"`
		Load float64 `json:"load"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if err := c.OnReading(controller.Reading{NodeID: req.ID, Load: req.Load}); err != nil {
			jsonError(w, statusFor(err), err.Error())
			return
		}
		jsonOK(w, map[string]string{"status": "updated", "id": req.ID})
	}
}

func balanceHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		jsonOK(w, c.BalanceNow())
	}
}

func routeHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		src := r.URL.Query().Get("src")
		dst := r.URL.Query().Get("dst")
		algo := router.Algorithm(r.URL.Query().Get("algo"))
		if algo == "" {
			algo = router.Dijkstra
		}
		if src == "" || dst == "" {
			jsonError(w, http.StatusBadRequest, "'src' and 'dst' query parameters are required")
			return
		}

		result, err := c.RouteQuery(src, dst, algo)
		if err != nil {
			jsonError(w, statusFor(err), err.Error())
			return
		}

		other := router.Dijkstra
		if algo == router.Dijkstra {
			other = router.AStar
		}
		comparison, _ := c.RouteQuery(src, dst, other)

		jsonOK(w, map[string]any{"result": result, "comparison": comparison})
	}
}

func routeRedundantHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		src := r.URL.Query().Get("src")
		dst := r.URL.Query().Get("dst")
		k := parseIntDefault(r.URL.Query().Get("k"), 2)
		if src == "" || dst == "" {
			jsonError(w, http.StatusBadRequest, "'src' and 'dst' query parameters are required")
			return
		}

		results, err := c.RouteRedundant(src, dst, k)
		if err != nil {
			jsonError(w, statusFor(err), err.Error())
			return
		}
		jsonOK(w, map[string]any{"paths": results})
	}
}

func routeUpgradesHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		threshold, err := strconv.ParseFloat(r.URL.Query().Get("threshold"), 64)
		if err != nil {
			threshold = 0
		}
		jsonOK(w, map[string]any{"suggestions": c.RouteUpgrades(threshold)})
	}
}

func predictHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		node := r.URL.Query().Get("node")
		if node == "" {
			jsonError(w, http.StatusBadRequest, "'node' query parameter is required")
			return
		}
		horizon := parseIntDefault(r.URL.Query().Get("horizon"), 1)

		forecast, err := c.Predict(node, horizon)
		if err != nil {
			jsonError(w, statusFor(err), err.Error())
			return
		}
		jsonOK(w, map[string]any{"node": node, "forecast": forecast})
	}
}

func optimizeHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		jsonOK(w, c.OptimizeNow())
	}
}

func simulateOverloadHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		n := parseIntDefault(r.URL.Query().Get("n"), 1)
		pushed := c.SimulateOverload(n)
		jsonOK(w, map[string]int{"pushed": pushed})
	}
}

func eventsHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		kindParam := r.URL.Query().Get("kind")
		events, stats := c.EventsSnapshot(eventqueue.Kind(kindParam), kindParam != "")
		jsonOK(w, map[string]any{"events": events, "stats": stats})
	}
}

func eventsCriticalHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		threshold := pqueue.Severity(parseIntDefault(r.URL.Query().Get("threshold"), int(pqueue.Medium)))
		jsonOK(w, map[string]any{"events": c.EventsCritical(threshold)})
	}
}

func statsHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		jsonOK(w, c.Stats())
	}
}

func benchmarkSummaryHandler(c *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		jsonOK(w, map[string]any{"ops": c.BenchmarkSummary()})
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
