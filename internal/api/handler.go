package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensegment/magpie/internal/audience"
	"github.com/opensegment/magpie/internal/domain"
	"github.com/opensegment/magpie/internal/journeys"
	"github.com/opensegment/magpie/internal/repository"
	"github.com/opensegment/magpie/internal/segments"
)

// previewSampleSize caps the customer IDs echoed back by a preview so
// large segments do not blow up the response body.
const previewSampleSize = 100

// Handler handles HTTP requests for the segmentation API.
type Handler struct {
	svc     *segments.Service
	repo    domain.Repository
	cache   domain.Cache
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc *segments.Service, repo domain.Repository, cache domain.Cache, version string) *Handler {
	return &Handler{
		svc:     svc,
		repo:    repo,
		cache:   cache,
		version: version,
	}
}

// DatasetRequest is a batch of customers and events to load.
type DatasetRequest struct {
	Customers []domain.Customer `json:"customers"`
	Events    []domain.Event    `json:"events"`
}

// DatasetResponse reports how many rows a load accepted.
type DatasetResponse struct {
	CustomersAccepted int `json:"customers_accepted"`
	EventsAccepted    int `json:"events_accepted"`
}

// PreviewRequest selects customers without running a simulation.
type PreviewRequest struct {
	Persona string `json:"persona,omitempty"`
	Filter  string `json:"filter,omitempty"`
}

// PreviewResponse lists the matched customers, capped at a sample.
type PreviewResponse struct {
	MatchedCount int      `json:"matched_count"`
	CustomerIDs  []string `json:"customer_ids"`
	Truncated    bool     `json:"truncated"`
}

// LoadDataset handles POST /datasets.
func (h *Handler) LoadDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}

	if len(req.Customers) == 0 && len(req.Events) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one customer or event is required",
		})
		return
	}

	for i := range req.Customers {
		c := &req.Customers[i]
		if c.ID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("customers[%d]: customer_id is required", i),
			})
			return
		}
		if c.JoinDate.IsZero() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("customers[%d]: join_date is required", i),
			})
			return
		}
	}

	for i := range req.Events {
		ev := &req.Events[i]
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		if ev.CustomerID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("events[%d]: customer_id is required", i),
			})
			return
		}
		if ev.EventDT.IsZero() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("events[%d]: event_dt is required", i),
			})
			return
		}
		if ev.EventType == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("events[%d]: event_type is required", i),
			})
			return
		}
	}

	if err := h.svc.LoadDataset(ctx, req.Customers, req.Events); err != nil {
		slog.Error("dataset load failed", "error", err, "trace_id", GetTraceID(ctx))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load dataset",
		})
		return
	}

	writeJSON(w, http.StatusCreated, DatasetResponse{
		CustomersAccepted: len(req.Customers),
		EventsAccepted:    len(req.Events),
	})
}

// Refresh handles POST /segmentation/refresh. With ?async=true the
// rebuild is queued on the event bus instead of running inline.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.Query().Get("async") == "true" {
		if err := h.svc.RequestRefresh(ctx, "api"); err != nil {
			slog.Error("refresh request failed", "error", err, "trace_id", GetTraceID(ctx))
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to queue refresh",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	snap, err := h.svc.Refresh(ctx)
	if err != nil {
		slog.Error("refresh failed", "error", err, "trace_id", GetTraceID(ctx))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "segmentation refresh failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// ListSnapshots handles GET /snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	snaps, err := h.repo.ListSnapshots(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list snapshots", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list snapshots",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

// LatestSnapshot handles GET /snapshots/latest.
func (h *Handler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.repo.LatestSnapshot(r.Context())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no segmentation run recorded yet",
			})
			return
		}
		slog.Error("failed to load latest snapshot", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load latest snapshot",
		})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// GetSnapshot handles GET /snapshots/{id}.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := h.repo.GetSnapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "snapshot not found",
			})
			return
		}
		slog.Error("failed to load snapshot", "error", err, "snapshot_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load snapshot",
		})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// GetCustomer handles GET /customers/{id}.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	customer, err := h.repo.GetCustomer(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "customer not found",
			})
			return
		}
		slog.Error("failed to load customer", "error", err, "customer_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load customer",
		})
		return
	}

	writeJSON(w, http.StatusOK, customer)
}

// GetCustomerEvents handles GET /customers/{id}/events.
func (h *Handler) GetCustomerEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, err := h.repo.ListEventsByCustomer(r.Context(), id)
	if err != nil {
		slog.Error("failed to list customer events", "error", err, "customer_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list customer events",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customer_id": id,
		"events":      events,
		"count":       len(events),
	})
}

// ListFeatures handles GET /features.
func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	features, err := h.repo.ListFeatures(r.Context())
	if err != nil {
		slog.Error("failed to list features", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list features",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"features": features,
		"count":    len(features),
	})
}

// GetFeatures handles GET /features/{id}.
func (h *Handler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	fv, err := h.svc.Features(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "features not computed for customer",
			})
			return
		}
		slog.Error("failed to load features", "error", err, "customer_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load features",
		})
		return
	}

	writeJSON(w, http.StatusOK, fv)
}

// ListPersonas handles GET /personas. An optional ?persona= query
// narrows the list to one label or slug.
func (h *Handler) ListPersonas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		assignments []domain.PersonaAssignment
		err         error
	)
	if q := r.URL.Query().Get("persona"); q != "" {
		label, ok := domain.PersonaFromSlug(q)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown persona: " + q,
			})
			return
		}
		assignments, err = h.repo.ListPersonasByLabel(ctx, label)
	} else {
		assignments, err = h.repo.ListPersonas(ctx)
	}
	if err != nil {
		slog.Error("failed to list personas", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list personas",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"personas": assignments,
		"count":    len(assignments),
	})
}

// GetPersona handles GET /personas/{id}. The id is a customer ID.
func (h *Handler) GetPersona(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	assignment, err := h.repo.GetPersona(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no persona assigned to customer",
			})
			return
		}
		slog.Error("failed to load persona", "error", err, "customer_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load persona",
		})
		return
	}

	writeJSON(w, http.StatusOK, assignment)
}

// ListSegments handles GET /segments.
func (h *Handler) ListSegments(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		slog.Error("failed to compute segment stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute segment stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"segments": stats,
		"count":    len(stats),
	})
}

// GetSegment handles GET /segments/{slug}.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	label, ok := domain.PersonaFromSlug(slug)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "unknown persona: " + slug,
		})
		return
	}

	stats, err := h.svc.StatsFor(r.Context(), label)
	if err != nil {
		slog.Error("failed to compute segment stats", "error", err, "persona", label)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute segment stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// PreviewSegment handles POST /segments/preview.
func (h *Handler) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}

	if req.Persona == "" && req.Filter == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "persona or filter is required",
		})
		return
	}

	label := ""
	if req.Persona != "" {
		var ok bool
		label, ok = domain.PersonaFromSlug(req.Persona)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown persona: " + req.Persona,
			})
			return
		}
	}

	rows, err := h.svc.Rows(ctx, label, req.Filter)
	if err != nil {
		if errors.Is(err, audience.ErrInvalidFilter) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("segment preview failed", "error", err, "trace_id", GetTraceID(ctx))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "segment preview failed",
		})
		return
	}

	resp := PreviewResponse{
		MatchedCount: len(rows),
		CustomerIDs:  make([]string, 0, len(rows)),
	}
	for _, row := range rows {
		if len(resp.CustomerIDs) == previewSampleSize {
			resp.Truncated = true
			break
		}
		resp.CustomerIDs = append(resp.CustomerIDs, row.Customer.ID)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Simulate handles POST /simulate.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sc domain.Scenario
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}

	if err := validateScenario(&sc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.svc.Simulate(ctx, sc)
	if err != nil {
		if errors.Is(err, audience.ErrInvalidFilter) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("simulation failed", "error", err, "trace_id", GetTraceID(ctx))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "simulation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Sweep handles POST /simulate/sweep.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}

	if len(req.Scenarios) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one scenario is required",
		})
		return
	}

	if req.Persona != "" {
		label, ok := domain.PersonaFromSlug(req.Persona)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown persona: " + req.Persona,
			})
			return
		}
		req.Persona = label
	}

	for i := range req.Scenarios {
		if err := validateScenario(&req.Scenarios[i]); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("scenarios[%d]: %s", i, err),
			})
			return
		}
	}

	outcomes, err := h.svc.Sweep(ctx, req)
	if err != nil {
		if errors.Is(err, audience.ErrInvalidFilter) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("sweep failed", "error", err, "trace_id", GetTraceID(ctx))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "sweep failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"outcomes": outcomes,
		"count":    len(outcomes),
	})
}

// ListJourneys handles GET /journeys.
func (h *Handler) ListJourneys(w http.ResponseWriter, r *http.Request) {
	templates := journeys.Catalog()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"journeys": templates,
		"count":    len(templates),
	})
}

// GetJourney handles GET /journeys/{slug}.
func (h *Handler) GetJourney(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	label, ok := domain.PersonaFromSlug(slug)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "unknown persona: " + slug,
		})
		return
	}

	tpl, ok := journeys.Lookup(label)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no journey template for persona: " + label,
		})
		return
	}

	writeJSON(w, http.StatusOK, tpl)
}

// GetBrief handles GET /briefs/{slug}. The brief is rendered as
// markdown, not JSON.
func (h *Handler) GetBrief(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := chi.URLParam(r, "slug")

	label, ok := domain.PersonaFromSlug(slug)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "unknown persona: " + slug,
		})
		return
	}

	tpl, ok := journeys.Lookup(label)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no journey template for persona: " + label,
		})
		return
	}

	stats, err := h.svc.StatsFor(ctx, label)
	if err != nil {
		slog.Error("failed to compute segment stats for brief", "error", err, "persona", label)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to build brief",
		})
		return
	}

	brief := journeys.BuildBrief(tpl, *stats)

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(brief)); err != nil {
		slog.Error("failed to write brief", "error", err)
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := "healthy"
	checks := map[string]string{}

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			status = "degraded"
			checks["repository"] = "unhealthy: " + err.Error()
		} else {
			checks["repository"] = "healthy"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			status = "degraded"
			checks["cache"] = "unhealthy: " + err.Error()
		} else {
			checks["cache"] = "healthy"
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"version":   h.version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// validateScenario rejects levels the simulator would otherwise have
// to clamp silently.
func validateScenario(sc *domain.Scenario) error {
	if sc.TouchesPerWeek < 0 {
		return errors.New("touches_per_week must be >= 0")
	}
	if sc.IncentiveLevel < 0 || sc.IncentiveLevel > 1 {
		return errors.New("incentive_level must be between 0 and 1")
	}
	if sc.PersonalizationLevel < 0 || sc.PersonalizationLevel > 1 {
		return errors.New("personalization_level must be between 0 and 1")
	}
	if sc.Persona != "" {
		label, ok := domain.PersonaFromSlug(sc.Persona)
		if !ok {
			return errors.New("unknown persona: " + sc.Persona)
		}
		sc.Persona = label
	}
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
