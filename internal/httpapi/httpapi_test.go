package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecogrid/gridctl/internal/controller"
	"github.com/ecogrid/gridctl/internal/system"
)

func newTestController(t *testing.T) *controller.Controller {
	t.Helper()
	sys := system.New(system.Config{})
	c := controller.New(sys, nil, nil)
	_, _, err := c.Init(4, false)
	require.NoError(t, err)
	return c
}

func doRequest(mux *http.ServeMux, method, target string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, target, bytes.NewReader(b))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAddNodeAndUpdateLoad(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodPost, "/add_node", map[string]any{
		"id": "nX", "kind": "substation", "capacity": 100.0, "efficiency": 0.9,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(mux, http.MethodPost, "/update_load", map[string]any{
		"id": "nX", "load": 95.0,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateLoad_NotFound(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodPost, "/update_load", map[string]any{
		"id": "missing", "load": 1.0,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp["error"])
}

func TestUpdateLoad_InvalidJSON(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	req := httptest.NewRequest(http.MethodPost, "/update_load", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalanceAndOptimize(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodPost, "/balance", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(mux, http.MethodPost, "/optimize", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp, "Report")
	assert.Contains(t, resp, "Carbon")
	assert.Contains(t, resp, "Renewables")
}

func TestRouteUpgrades(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodGet, "/route/upgrades?threshold=0", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp, "suggestions")
}

func TestPredict(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	doRequest(mux, http.MethodPost, "/update_load", map[string]any{"id": "n0", "load": 40.0})

	rec := doRequest(mux, http.MethodGet, "/predict?node=n0&horizon=2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	forecast, ok := resp["forecast"].([]any)
	require.True(t, ok)
	assert.Len(t, forecast, 2)
}

func TestPredict_MissingNodeParam(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodGet, "/predict?horizon=2", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredict_UnknownNode(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodGet, "/predict?node=zzz&horizon=2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoute(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodGet, "/route?src=n0&dst=n2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp, "result")
	assert.Contains(t, resp, "comparison")
}

func TestRoute_MissingParams(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodGet, "/route?src=n0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp["error"], "'src' and 'dst'")
}

func TestRoute_NotFound(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodGet, "/route?src=zzz&dst=n2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouteRedundant(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodGet, "/route_redundant?src=n0&dst=n2&k=2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSimulateOverloadAndEvents(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodPost, "/simulate_overload?n=3", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(mux, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	events, ok := resp["events"].([]any)
	require.True(t, ok)
	assert.Len(t, events, 3)

	rec = doRequest(mux, http.MethodGet, "/events_critical?threshold=2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatsAndBenchmarkSummary(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	doRequest(mux, http.MethodGet, "/route?src=n0&dst=n2", nil)

	rec := doRequest(mux, http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(mux, http.MethodGet, "/benchmark_summary", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp, "ops")
}

func TestResetHandler(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodPost, "/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInitHandler(t *testing.T) {
	sys := system.New(system.Config{})
	c := controller.New(sys, nil, nil)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodPost, "/init", map[string]any{"num_nodes": 5, "train_ml": false})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidMethod(t *testing.T) {
	c := newTestController(t)
	mux := http.NewServeMux()
	RegisterHandlers(mux, c)

	rec := doRequest(mux, http.MethodGet, "/balance", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestJsonError(t *testing.T) {
	rec := httptest.NewRecorder()

	jsonError(rec, http.StatusNotFound, "test error message")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "test error message", resp["error"])
}
