/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       REST handler for dashboard creation and rollback,
             wrapping the Dashboard Factory's state machine.
             Creation failures return no URL and no partial
             state; the previous active version stays reachable.
Context:     Backs the create_dashboard endpoint (spec.md §6.2).
Suitability: L3 — thin wrapper, all orchestration lives in
             dashboard.Factory.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/riverreach/ledgerview/dashboard"
	"github.com/riverreach/ledgerview/middleware"
)

// DashboardHandler serves dashboard creation and rollback endpoints.
type DashboardHandler struct {
	logger  zerolog.Logger
	factory *dashboard.Factory
}

// NewDashboardHandler builds a DashboardHandler over a running Factory.
func NewDashboardHandler(logger zerolog.Logger, factory *dashboard.Factory) *DashboardHandler {
	return &DashboardHandler{
		logger:  logger.With().Str("handler", "dashboard").Logger(),
		factory: factory,
	}
}

type createDashboardRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Owner       string            `json:"owner,omitempty"`
	Freshness   string            `json:"freshness,omitempty"`
	Panels      []dashboard.Panel `json:"panels"`
	SessionID   string            `json:"session_id,omitempty"`
}

// CreateDashboard handles POST /v1/dashboards (create_dashboard).
func (h *DashboardHandler) CreateDashboard(w http.ResponseWriter, r *http.Request) {
	var req createDashboardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "malformed dashboard request")
		return
	}
	if req.Title == "" || len(req.Panels) == 0 {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "title and at least one panel are required")
		return
	}

	spec := dashboard.Spec{
		Name:        req.Title,
		Description: req.Description,
		Owner:       req.Owner,
		Freshness:   req.Freshness,
		Panels:      req.Panels,
	}

	callerID := middleware.GetUserID(r.Context())
	if callerID == "" {
		callerID = "anonymous"
	}

	result := h.factory.Create(r.Context(), callerID, req.SessionID, spec)
	if result.Err != nil {
		writeErrorWithRemediation(w, http.StatusUnprocessableEntity, "E_ENGINE_PERMANENT",
			result.Err.Error(), "check the panel plans against list_sources and retry create_dashboard")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dashboard_id":      result.DashboardName,
		"artifacts_created": true,
		"app_url":           "@DASH_APPS/" + result.DashboardName + "/" + result.SpecHash,
		"spec_hash":         result.SpecHash,
		"reused":            result.Reused,
	})
}

// RollbackDashboard handles POST /v1/dashboards/{name}/rollback.
func (h *DashboardHandler) RollbackDashboard(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		TargetSpecHash string `json:"target_spec_hash"`
		SessionID      string `json:"session_id,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "malformed rollback request")
		return
	}
	if req.TargetSpecHash == "" {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "target_spec_hash is required")
		return
	}

	if err := h.factory.Rollback(r.Context(), req.SessionID, name, req.TargetSpecHash); err != nil {
		writeErrorWithRemediation(w, http.StatusUnprocessableEntity, "E_ENGINE_PERMANENT", err.Error(), "verify target_spec_hash names a previously published version")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"dashboard_id": name, "active_spec_hash": req.TargetSpecHash})
}

// GetActiveDashboard handles GET /v1/dashboards/{name}.
func (h *DashboardHandler) GetActiveDashboard(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	hash, ok := h.factory.ActiveSpecHash(name)
	if !ok {
		writeError(w, http.StatusNotFound, "E_VALIDATION", "no active version for that dashboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"dashboard_id": name, "active_spec_hash": hash})
}
