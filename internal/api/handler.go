package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-utility/dipper/internal/domain"
	"github.com/opensource-utility/dipper/internal/highlight"
	"github.com/opensource-utility/dipper/internal/session"
	"github.com/opensource-utility/dipper/internal/view"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	registry  *session.Registry
	newSource func(tenantID string) domain.AnomalySource
	journal   domain.Journal
	cache     domain.Cache
	engine    *highlight.Engine
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(registry *session.Registry, newSource func(tenantID string) domain.AnomalySource, journal domain.Journal, cache domain.Cache, engine *highlight.Engine, version string) *Handler {
	return &Handler{
		registry:  registry,
		newSource: newSource,
		journal:   journal,
		cache:     cache,
		engine:    engine,
		version:   version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check journal health
	if h.journal != nil {
		if err := h.journal.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
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

// ListAnomalies returns the current worklist from the billing backend.
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	src := h.newSource(tenantID)

	anomalies, err := src.FetchAnomalies(ctx)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

// AnomalyListView returns the worklist as renderable rows with
// highlight flags applied.
func (h *Handler) AnomalyListView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	src := h.newSource(tenantID)

	anomalies, err := src.FetchAnomalies(ctx)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	rows := view.BuildList(anomalies, h.engine)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rows":  rows,
		"count": len(rows),
	})
}

// CreateSession starts a new idle review session for the tenant.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	s := h.registry.Create(tenantID)

	slog.Info("session created",
		"session_id", s.ID(),
		"tenant_id", tenantID,
	)
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// GetSession returns a session snapshot.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// DeleteSession removes a session from the registry.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	if !h.registry.Remove(tenantID, id) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "session not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "session removed",
	})
}

// SessionView returns the detective-mode view model for a session.
func (h *Handler) SessionView(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view.BuildDetail(s.Snapshot(), h.engine))
}

// SelectRequest is the request body for POST /sessions/{id}/select.
type SelectRequest struct {
	Nomen string `json:"nomen"`
}

// SelectAnomaly opens an anomaly from the worklist for review.
func (h *Handler) SelectAnomaly(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Nomen == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "nomen is required",
		})
		return
	}

	// The anomaly must be on the current worklist.
	src := h.newSource(tenantID)

	anomalies, err := src.FetchAnomalies(ctx)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	var anom *domain.Anomaly
	for i := range anomalies {
		if anomalies[i].Nomen == req.Nomen {
			anom = &anomalies[i]
			break
		}
	}
	if anom == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "nomen not on the anomaly worklist",
		})
		return
	}

	if err := s.Select(ctx, *anom); err != nil {
		writeReviewError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.Snapshot())
}

// StatusRequest is the request body for POST /sessions/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// SetStatus updates the draft audit status.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := s.SetStatus(req.Status); err != nil {
		writeReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// RemarkRequest is the request body for POST /sessions/{id}/remark.
type RemarkRequest struct {
	Remark string `json:"remark"`
}

// SetRemark updates the draft remark.
func (h *Handler) SetRemark(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req RemarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := s.SetRemark(req.Remark); err != nil {
		writeReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// Submit sends the drafted audit decision to the billing backend.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := s.Submit(r.Context()); err != nil {
		writeReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// Clear abandons the current selection and returns the session to idle.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	s.Clear(r.Context())
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// ListAudits returns recorded decisions from the journal, newest first.
// Supports ?nomen= and ?limit= filters.
func (h *Handler) ListAudits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "journal not available",
		})
		return
	}

	nomen := r.URL.Query().Get("nomen")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	records, err := h.journal.ListAudits(ctx, tenantID, nomen, limit)
	if err != nil {
		slog.Error("failed to list audits", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list audits",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"audits": records,
		"count":  len(records),
	})
}

// session resolves the {id} path param against the registry.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	tenantID := GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "session id is required",
		})
		return nil, false
	}

	s, ok := h.registry.Get(tenantID, id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "session not found",
		})
		return nil, false
	}
	return s, true
}

// writeReviewError maps review error kinds to HTTP statuses.
func writeReviewError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindNetwork, domain.KindRejected, domain.KindDecode:
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
