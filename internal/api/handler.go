package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openbioscience/finch/internal/dispatch"
	"github.com/openbioscience/finch/internal/domain"
	"github.com/openbioscience/finch/internal/enrich"
	"github.com/openbioscience/finch/internal/filter"
	"github.com/openbioscience/finch/internal/registry"
	"github.com/openbioscience/finch/internal/repository"
	"github.com/openbioscience/finch/internal/resolver"
	"github.com/openbioscience/finch/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	registry   *registry.Registry
	executor   dispatch.Executor
	dispatcher *dispatch.Dispatcher
	resolver   *resolver.Resolver
	engine     *enrich.Engine
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	version    string
	started    time.Time
}

// NewHandler creates a new API handler.
func NewHandler(reg *registry.Registry, executor dispatch.Executor, dispatcher *dispatch.Dispatcher, res *resolver.Resolver, engine *enrich.Engine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		registry:   reg,
		executor:   executor,
		dispatcher: dispatcher,
		resolver:   res,
		engine:     engine,
		repo:       repo,
		cache:      cache,
		bus:        bus,
		version:    version,
		started:    time.Now(),
	}
}

// Query handles POST /v1/query requests. The body is one query
// descriptor; the response is its normalized result.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var q domain.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if q.Database == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "database is required",
		})
		return
	}
	if q.Endpoint == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "endpoint is required",
		})
		return
	}

	if h.executor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "query execution not available",
		})
		return
	}

	result, err := h.executor.Execute(r.Context(), &q)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishQueryExecuted(r.Context(), &q, result)

	writeJSON(w, http.StatusOK, result)
}

// QueryExecutedEvent is the payload announced on the query-executed
// subject after a successful query.
type QueryExecutedEvent struct {
	Database domain.Database `json:"database"`
	Endpoint string          `json:"endpoint"`
	Shape    domain.Shape    `json:"shape"`
}

func (h *Handler) publishQueryExecuted(ctx context.Context, q *domain.Query, result *domain.Result) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(QueryExecutedEvent{
		Database: q.Database,
		Endpoint: q.Endpoint,
		Shape:    result.Shape,
	})
	if err != nil {
		slog.Error("failed to encode query execution event",
			"database", q.Database,
			"error", err)
		return
	}
	if err := h.bus.Publish(ctx, domain.SubjectQueryExecuted, &domain.Event{Payload: payload}); err != nil {
		slog.Warn("failed to publish query execution",
			"database", q.Database,
			"endpoint", q.Endpoint,
			"error", err)
	}
}

// BatchRequest is the request body for POST /v1/batch.
type BatchRequest struct {
	Queries []domain.Query `json:"queries"`
}

// BatchEntry is one slot of a batch response, in input order. Exactly
// one of Result and Error is set.
type BatchEntry struct {
	Result *domain.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// BatchResponse is the response for POST /v1/batch.
type BatchResponse struct {
	Results []BatchEntry `json:"results"`
	Count   int          `json:"count"`
}

// Batch handles POST /v1/batch requests. Queries run concurrently; the
// response preserves input order and a failing query fills its own slot
// without disturbing the others.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Queries) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "queries are required",
		})
		return
	}
	for i, q := range req.Queries {
		if q.Database == "" || q.Endpoint == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("queries[%d]: database and endpoint are required", i),
			})
			return
		}
	}

	if h.dispatcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "batch execution not available",
		})
		return
	}

	queries := make([]*domain.Query, len(req.Queries))
	for i := range req.Queries {
		queries[i] = &req.Queries[i]
	}

	outcomes := h.dispatcher.ExecuteBatch(r.Context(), queries)

	entries := make([]BatchEntry, len(outcomes))
	for i, out := range outcomes {
		if out.Err != nil {
			entries[i] = BatchEntry{Error: out.Err.Error()}
			continue
		}
		entries[i] = BatchEntry{Result: out.Result}
	}

	writeJSON(w, http.StatusOK, BatchResponse{
		Results: entries,
		Count:   len(entries),
	})
}

// ResolveRequest is the request body for POST /v1/resolve.
type ResolveRequest struct {
	Identifiers []string `json:"identifiers"`

	// Organism requests conversion into that organism's KEGG identifier
	// space. When empty only format detection is performed.
	Organism string `json:"organism,omitempty"`
}

// ResolveResponse is the response for POST /v1/resolve.
type ResolveResponse struct {
	Formats map[string]string `json:"formats"`
	Mapped  map[string]string `json:"mapped,omitempty"`
}

// Resolve handles POST /v1/resolve requests.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Identifiers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "identifiers are required",
		})
		return
	}

	formats := make(map[string]string, len(req.Identifiers))
	for _, id := range req.Identifiers {
		formats[id] = string(resolver.DetectFormat(id))
	}

	resp := ResolveResponse{Formats: formats}

	if req.Organism != "" {
		org, ok := h.registry.Organism(req.Organism)
		if !ok {
			writeError(w, domain.ConfigErrorf("unknown organism %q", req.Organism))
			return
		}
		orgID, ok := org.ID(domain.DatabaseKEGG)
		if !ok {
			writeError(w, domain.ConfigErrorf("organism %q has no kegg identifier", org.Name))
			return
		}
		if h.resolver == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "identifier conversion not available",
			})
			return
		}

		mapped := make(map[string]string, len(req.Identifiers))
		groups := make(map[domain.IDFormat][]string)
		for _, id := range req.Identifiers {
			if strings.Contains(id, ":") {
				mapped[id] = id
				continue
			}
			format := resolver.DetectFormat(id)
			groups[format] = append(groups[format], id)
		}
		for format, ids := range groups {
			converted, err := h.resolver.Convert(r.Context(), ids, orgID, format)
			if err != nil {
				writeError(w, err)
				return
			}
			for src, dst := range converted {
				mapped[src] = dst
			}
		}
		resp.Mapped = mapped
	}

	writeJSON(w, http.StatusOK, resp)
}

// EnrichRequest is the request body for POST /v1/enrich.
type EnrichRequest struct {
	domain.EnrichmentRequest

	// Filter is an optional CEL predicate (or named preset) applied to
	// the report rows before they are returned.
	Filter string `json:"filter,omitempty"`
}

// Enrich handles POST /v1/enrich requests synchronously.
func (h *Handler) Enrich(w http.ResponseWriter, r *http.Request) {
	var req EnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "enrichment not available",
		})
		return
	}

	// Compile before running the pipeline so a bad expression fails
	// without touching any upstream.
	var flt *filter.Filter
	if req.Filter != "" {
		var err error
		flt, err = filter.Compile(req.Filter)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	report, err := h.engine.Enrich(r.Context(), &req.EnrichmentRequest)
	if err != nil {
		writeError(w, err)
		return
	}

	// The run persists unfiltered; the filter shapes this response only.
	if h.repo != nil {
		if err := h.repo.SaveRun(r.Context(), report.ToRun()); err != nil {
			slog.Error("failed to save enrichment run",
				"run_id", report.Meta.RunID,
				"error", err,
			)
		}
	}

	if flt != nil {
		rows, err := flt.Apply(report.Rows)
		if err != nil {
			writeError(w, err)
			return
		}
		report.Rows = rows
	}

	writeJSON(w, http.StatusOK, report)
}

// AsyncResponse is the response for POST /v1/enrich/async.
type AsyncResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// EnrichAsync handles POST /v1/enrich/async requests. The request is
// validated, a pending run is recorded under a fresh ID, and the work
// is handed to the worker via the event bus.
func (h *Handler) EnrichAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.EnrichmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Genes) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "genes are required",
		})
		return
	}
	if _, ok := h.registry.Organism(req.Organism); !ok {
		writeError(w, domain.ConfigErrorf("unknown organism %q", req.Organism))
		return
	}
	for _, db := range req.Databases {
		if !h.registry.Has(db) {
			writeError(w, domain.ConfigErrorf("unknown database %q", db))
			return
		}
	}

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	runID := uuid.New().String()

	if h.repo != nil {
		stub := &domain.Run{
			ID:        runID,
			Organism:  req.Organism,
			Databases: req.Databases,
			GeneCount: len(req.Genes),
			Status:    domain.RunStatusPending,
			CreatedAt: time.Now().UTC(),
			Rows:      []domain.EnrichmentRow{},
		}
		if err := h.repo.SaveRun(ctx, stub); err != nil {
			slog.Error("failed to save pending run",
				"run_id", runID,
				"error", err,
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to create run",
			})
			return
		}
	}

	payload, err := json.Marshal(worker.RunRequest{RunID: runID, Request: req})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode enrichment request",
		})
		return
	}

	if err := h.bus.Publish(ctx, domain.SubjectEnrichRequested, &domain.Event{Payload: payload}); err != nil {
		slog.Error("failed to publish enrichment request",
			"run_id", runID,
			"error", err,
		)
		if h.repo != nil {
			if uerr := h.repo.UpdateRunStatus(ctx, runID, domain.RunStatusFailed); uerr != nil {
				slog.Error("failed to mark run failed",
					"run_id", runID,
					"error", uerr,
				)
			}
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to publish enrichment request",
		})
		return
	}

	slog.Info("enrichment request accepted",
		"run_id", runID,
		"organism", req.Organism,
		"genes", len(req.Genes),
		"trace_id", GetTraceID(ctx),
	)

	writeJSON(w, http.StatusAccepted, AsyncResponse{
		RunID:  runID,
		Status: domain.RunStatusPending,
	})
}

// GetRun handles GET /v1/runs/{id} requests.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	run, err := h.repo.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListRuns handles GET /v1/runs requests. Runs carry no rows here;
// fetch a run by ID for its rows.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	runs, err := h.repo.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// ListDatabases handles GET /v1/databases requests.
func (h *Handler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	dbs := h.registry.Databases()
	writeJSON(w, http.StatusOK, map[string]any{
		"databases": dbs,
		"count":     len(dbs),
	})
}

// ListOrganisms handles GET /v1/organisms requests.
func (h *Handler) ListOrganisms(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Organisms()
	organisms := make([]domain.Organism, 0, len(names))
	for _, name := range names {
		if org, ok := h.registry.Organism(name); ok {
			organisms = append(organisms, org)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"organisms": organisms,
		"count":     len(organisms),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check event bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// StatsResponse is the response for GET /v1/stats.
type StatsResponse struct {
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Databases     int               `json:"databases"`
	Organisms     int               `json:"organisms"`
	FilterPresets []string          `json:"filterPresets"`
	Components    map[string]string `json:"components"`
}

// Stats handles GET /v1/stats requests.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	components := make(map[string]string, 3)
	components["repository"] = componentStatus(ctx, h.repo != nil, h.repo)
	components["cache"] = componentStatus(ctx, h.cache != nil, h.cache)
	components["eventBus"] = componentStatus(ctx, h.bus != nil, h.bus)

	writeJSON(w, http.StatusOK, StatsResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Databases:     len(h.registry.Databases()),
		Organisms:     len(h.registry.Organisms()),
		FilterPresets: filter.Presets(),
		Components:    components,
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

func componentStatus(ctx context.Context, present bool, p pinger) string {
	if !present {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "degraded"
	}
	return "ok"
}

// writeError maps a pipeline error onto its HTTP status: malformed
// calls are the caller's fault, upstream rejections and exhausted
// retries point at the gateway path.
func writeError(w http.ResponseWriter, err error) {
	var reqErr *domain.RequestError
	var transErr *domain.TransportError

	switch {
	case domain.IsConfigError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &reqErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":          err.Error(),
			"upstreamStatus": reqErr.Status,
		})
	case errors.As(err, &transErr):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
