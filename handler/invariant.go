/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L2
Logic:       Read-only introspection endpoints for the Two-Table
             Invariant Gate: current enforcement mode and the
             recent evaluation log, the way a policy-decision
             engine exposes its audit trail.
Context:     Operators use this to confirm the gate is enforcing
             (not just logging) before trusting the two-table
             guarantee in production.
Suitability: L2 — read-only wrapper over invariant.Gate.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/riverreach/ledgerview/invariant"
)

// GateHandler exposes the Two-Table Invariant Gate's status and evaluation
// log for operational visibility.
type GateHandler struct {
	logger zerolog.Logger
	gate   *invariant.Gate
	strict bool
}

// NewGateHandler builds a GateHandler. strict mirrors the gate's own
// enforcement mode so /v1/invariant/status can report it without the gate
// needing to expose internal config.
func NewGateHandler(logger zerolog.Logger, gate *invariant.Gate, strict bool) *GateHandler {
	return &GateHandler{
		logger: logger.With().Str("handler", "invariant").Logger(),
		gate:   gate,
		strict: strict,
	}
}

// Status handles GET /v1/invariant/status.
func (h *GateHandler) Status(w http.ResponseWriter, r *http.Request) {
	log := h.gate.Log()
	violations := 0
	for _, rec := range log {
		if !rec.Allowed {
			violations++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strict":           h.strict,
		"evaluations":      len(log),
		"violation_count":  violations,
	})
}

// EvaluationLog handles GET /v1/invariant/log.
func (h *GateHandler) EvaluationLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"evaluations": h.gate.Log()})
}
