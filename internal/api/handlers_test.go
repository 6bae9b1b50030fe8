package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-ops/fieldlog/internal/analytics"
	"github.com/skywatch-ops/fieldlog/internal/api"
	"github.com/skywatch-ops/fieldlog/internal/config"
	"github.com/skywatch-ops/fieldlog/internal/exchange"
	"github.com/skywatch-ops/fieldlog/internal/ops"
	"github.com/skywatch-ops/fieldlog/internal/storage/memory"
	"github.com/skywatch-ops/fieldlog/pkg/logger"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Station: config.StationConfig{
			Name:     "test-station",
			Areas:    []string{"Perimeter", "Parking"},
			Timezone: "UTC",
		},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}

	log := logger.Nop()
	store := memory.New()
	tracker := ops.NewTracker(store, cfg.Station.Areas, time.UTC, log)
	engine := analytics.NewEngine(time.UTC, log)
	exporter := exchange.NewExporter(time.UTC, log)
	importer := exchange.NewImporter(tracker, time.UTC, log)

	router := api.NewRouter(tracker, engine, store, exporter, importer, cfg, log)
	srv := httptest.NewServer(router.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func postEvent(t *testing.T, srv *httptest.Server, ev ops.ActionEvent) *http.Response {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/v1/events", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func eventAt(kind ops.EventKind, hour, min int) ops.ActionEvent {
	return ops.ActionEvent{
		OperatorID: "op-1",
		Kind:       kind,
		Timestamp:  time.Date(2026, 3, 14, hour, min, 0, 0, time.UTC),
	}
}

func TestApplyEventEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postEvent(t, srv, eventAt(ops.FlightStart, 9, 0))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var delta ops.RecordDelta
	decodeBody(t, resp, &delta)
	require.NotNil(t, delta.Flight)
	assert.Equal(t, 1, delta.Flight.FlightNumber)
}

func TestApplyEventErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	// Malformed payload.
	resp, err := http.Post(srv.URL+"/api/v1/events", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Rejected transition: no open flight to end.
	resp = postEvent(t, srv, eventAt(ops.FlightEnd, 9, 0))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, string(ops.KindIllegalTransition), body.Kind)
	assert.NotEmpty(t, body.Error)

	// Unknown area.
	ev := eventAt(ops.RoundStart, 9, 5)
	ev.Area = "Runway"
	resp = postEvent(t, srv, eventAt(ops.FlightStart, 9, 1))
	resp.Body.Close()
	resp = postEvent(t, srv, ev)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	decodeBody(t, resp, &body)
	assert.Equal(t, string(ops.KindInvalidArea), body.Kind)
}

func TestOperatorStateEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postEvent(t, srv, eventAt(ops.FlightStart, 9, 0))
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/v1/operators/op-1/state")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap ops.Snapshot
	decodeBody(t, resp, &snap)
	assert.Equal(t, "op-1", snap.OperatorID)
	require.NotNil(t, snap.OpenFlight)
	assert.Nil(t, snap.OpenRound)
}

func TestRecordsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	for _, ev := range []ops.ActionEvent{
		eventAt(ops.FlightStart, 9, 0),
		{OperatorID: "op-1", Kind: ops.RoundStart, Area: "Perimeter", Timestamp: time.Date(2026, 3, 14, 9, 1, 0, 0, time.UTC)},
		eventAt(ops.RoundEnd, 9, 20),
		eventAt(ops.FlightEnd, 9, 25),
	} {
		resp := postEvent(t, srv, ev)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/v1/records")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var corpus ops.Corpus
	decodeBody(t, resp, &corpus)
	assert.Len(t, corpus.Flights, 1)
	assert.Len(t, corpus.Rounds, 1)

	// Malformed time bound.
	resp, err = http.Get(srv.URL + "/api/v1/records?from=yesterday")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Clear, then verify empty.
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/records", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/records")
	require.NoError(t, err)
	decodeBody(t, resp, &corpus)
	assert.Empty(t, corpus.Flights)
}

func TestAnalyticsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{
		"/api/v1/analytics/kpi",
		"/api/v1/analytics/rollup",
		"/api/v1/analytics/heatmap",
		"/api/v1/analytics/efficiency",
		"/api/v1/analytics/variability",
		"/api/v1/analytics/status",
		"/api/v1/analytics/areas",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	// Bad enum parameters.
	for _, path := range []string{
		"/api/v1/analytics/rollup?granularity=week",
		"/api/v1/analytics/variability?group=pilot",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestExportImportEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, ev := range []ops.ActionEvent{
		eventAt(ops.FlightStart, 9, 0),
		{OperatorID: "op-1", Kind: ops.RoundStart, Area: "Perimeter", Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
		eventAt(ops.RoundEnd, 9, 20),
		eventAt(ops.FlightEnd, 9, 25),
	} {
		resp := postEvent(t, srv, ev)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/v1/export")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	exported, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(exported), strings.Join(exchange.Header, ",")))

	// Replace mode clears before replaying the upload.
	resp, err = http.Post(srv.URL+"/api/v1/import?mode=replace", "text/csv", bytes.NewReader(exported))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result exchange.Result
	decodeBody(t, resp, &result)
	assert.Equal(t, 1, result.Imported)
	assert.Empty(t, result.Rejected)
	assert.NotEmpty(t, result.BatchID)

	// Unknown mode.
	resp, err = http.Post(srv.URL+"/api/v1/import?mode=append", "text/csv", bytes.NewReader(exported))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Garbage upload.
	resp, err = http.Post(srv.URL+"/api/v1/import", "text/csv", strings.NewReader("a,b\n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetaEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	decodeBody(t, resp, &health)
	assert.Equal(t, "ok", health["status"])

	resp, err = http.Get(srv.URL + "/api/v1/areas")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var areas map[string][]string
	decodeBody(t, resp, &areas)
	assert.Equal(t, []string{"Parking", "Perimeter"}, areas["areas"])

	resp, err = http.Get(srv.URL + "/api/v1/config")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var station config.StationConfig
	decodeBody(t, resp, &station)
	assert.Equal(t, "test-station", station.Name)
}
