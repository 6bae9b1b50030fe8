package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skywatch-ops/fieldlog/internal/analytics"
	"github.com/skywatch-ops/fieldlog/internal/config"
	"github.com/skywatch-ops/fieldlog/internal/exchange"
	"github.com/skywatch-ops/fieldlog/internal/ops"
	"github.com/skywatch-ops/fieldlog/pkg/logger"
)

// Handler holds the API handlers and their collaborators
type Handler struct {
	tracker  *ops.Tracker
	engine   *analytics.Engine
	store    ops.Store
	exporter *exchange.Exporter
	importer *exchange.Importer
	config   *config.Config
	logger   *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	tracker *ops.Tracker,
	engine *analytics.Engine,
	store ops.Store,
	exporter *exchange.Exporter,
	importer *exchange.Importer,
	config *config.Config,
	logger *logger.Logger,
) *Handler {
	return &Handler{
		tracker:  tracker,
		engine:   engine,
		store:    store,
		exporter: exporter,
		importer: importer,
		config:   config,
		logger:   logger.Named("api-handler"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

// respondError maps session error kinds to HTTP statuses: rejected
// actions are 422 so the client can tie the message to the action,
// persistence failures are 502 (the store is an external collaborator).
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	kind := ops.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case ops.KindIllegalTransition, ops.KindInvalidArea, ops.KindNonMonotonicTime, ops.KindDanglingRound:
		status = http.StatusUnprocessableEntity
	case ops.KindPersistenceFailure:
		status = http.StatusBadGateway
	case ops.KindDataIntegrity:
		status = http.StatusInternalServerError
	}
	h.respondJSON(w, status, errorResponse{Error: err.Error(), Kind: string(kind)})
}

// ApplyEvent applies one operator action event
func (h *Handler) ApplyEvent(w http.ResponseWriter, r *http.Request) {
	var ev ops.ActionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid event payload: " + err.Error()})
		return
	}

	delta, err := h.tracker.Apply(ev)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, delta)
}

// GetOperatorState returns the operator's current session snapshot
func (h *Handler) GetOperatorState(w http.ResponseWriter, r *http.Request) {
	operatorID := chi.URLParam(r, "id")
	snap, err := h.tracker.State(operatorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, snap)
}

// GetRecords returns the record corpus matching the query filter
func (h *Handler) GetRecords(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	corpus, err := h.store.QueryRecords(filter)
	if err != nil {
		h.respondError(w, err)
		return
	}

	// limit keeps only the most recent N rounds and justifications,
	// for the recent-activity listing
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		if len(corpus.Rounds) > limit {
			corpus.Rounds = corpus.Rounds[len(corpus.Rounds)-limit:]
		}
		if len(corpus.Justifications) > limit {
			corpus.Justifications = corpus.Justifications[len(corpus.Justifications)-limit:]
		}
	}

	h.respondJSON(w, http.StatusOK, corpus)
}

// GetKPISummary returns the headline dashboard metrics
func (h *Handler) GetKPISummary(w http.ResponseWriter, r *http.Request) {
	h.analyticsHandler(w, r, func(corpus *ops.Corpus, window analytics.Window) any {
		return h.engine.KPISummary(corpus, window)
	})
}

// GetRollup returns the temporal rollup
func (h *Handler) GetRollup(w http.ResponseWriter, r *http.Request) {
	granularity := analytics.GranularityDay
	switch r.URL.Query().Get("granularity") {
	case "", "day":
	case "month":
		granularity = analytics.GranularityMonth
	default:
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "granularity must be day or month"})
		return
	}
	zeroFill := r.URL.Query().Get("fill") == "1"

	h.analyticsHandler(w, r, func(corpus *ops.Corpus, window analytics.Window) any {
		return h.engine.TemporalRollup(corpus, window, granularity, zeroFill)
	})
}

// GetHeatmap returns the weekday/hour activity matrix
func (h *Handler) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	h.analyticsHandler(w, r, func(corpus *ops.Corpus, window analytics.Window) any {
		return h.engine.Heatmap(corpus, window)
	})
}

// GetEfficiency returns the operator efficiency matrix
func (h *Handler) GetEfficiency(w http.ResponseWriter, r *http.Request) {
	h.analyticsHandler(w, r, func(corpus *ops.Corpus, window analytics.Window) any {
		return h.engine.OperatorEfficiency(corpus, window)
	})
}

// GetVariability returns grouped duration spread statistics
func (h *Handler) GetVariability(w http.ResponseWriter, r *http.Request) {
	groupBy := analytics.GroupByOperator
	switch r.URL.Query().Get("group") {
	case "", "operator":
	case "area":
		groupBy = analytics.GroupByArea
	default:
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "group must be operator or area"})
		return
	}

	h.analyticsHandler(w, r, func(corpus *ops.Corpus, window analytics.Window) any {
		return h.engine.VariabilityStats(corpus, window, groupBy)
	})
}

// GetStatusBreakdown returns completion vs justification counts
func (h *Handler) GetStatusBreakdown(w http.ResponseWriter, r *http.Request) {
	h.analyticsHandler(w, r, func(corpus *ops.Corpus, window analytics.Window) any {
		return h.engine.StatusBreakdown(corpus, window)
	})
}

// GetAreaFrequency returns per-area activity volume
func (h *Handler) GetAreaFrequency(w http.ResponseWriter, r *http.Request) {
	h.analyticsHandler(w, r, func(corpus *ops.Corpus, window analytics.Window) any {
		return h.engine.AreaFrequency(corpus, window)
	})
}

func (h *Handler) analyticsHandler(w http.ResponseWriter, r *http.Request, compute func(*ops.Corpus, analytics.Window) any) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	corpus, err := h.store.QueryRecords(filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, compute(corpus, analytics.Window{From: filter.From, To: filter.To}))
}

// ExportCSV streams the flat tabular projection of the corpus
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}

	corpus, err := h.store.QueryRecords(filter)
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="fieldlog_export.csv"`)
	if err := h.exporter.WriteCSV(w, corpus); err != nil {
		h.logger.Error("Export failed", logger.Error(err))
	}
}

// ImportCSV replays a flat tabular upload through the state machine.
// mode=replace clears the store first; the default merges.
func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	switch mode {
	case "", "merge":
	case "replace":
		if err := h.store.ClearAll(); err != nil {
			h.respondError(w, err)
			return
		}
		h.tracker.Reset()
	default:
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "mode must be merge or replace"})
		return
	}

	result, err := h.importer.ImportCSV(r.Body)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// ClearRecords is the administrative bulk clear
func (h *Handler) ClearRecords(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearAll(); err != nil {
		h.respondError(w, err)
		return
	}
	h.tracker.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth returns a health check response
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetConfig returns the station configuration
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.config.Station)
}

// GetAreas returns the patrol-area vocabulary
func (h *Handler) GetAreas(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string][]string{"areas": h.tracker.Areas()})
}

// parseFilter reads the from/to/operator query parameters. Reports
// false after writing a 400 when a time bound is malformed.
func (h *Handler) parseFilter(w http.ResponseWriter, r *http.Request) (ops.Filter, bool) {
	var filter ops.Filter
	filter.OperatorID = r.URL.Query().Get("operator")

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{
		{"from", &filter.From},
		{"to", &filter.To},
	} {
		value := r.URL.Query().Get(bound.name)
		if value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + bound.name + " timestamp"})
			return filter, false
		}
		*bound.dst = &t
	}
	return filter, true
}
