/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L2
Logic:       REST handler exposing the Contract Sentinel's last
             schema-check report and a way to force an immediate
             re-check, the way the routing engine's evaluate
             endpoint exposed a decision on demand.
Context:     Operators and dashboards poll this before trusting
             that the execution engine's visible schema still
             matches the catalog contract.
Suitability: L2 — read-only wrapper plus one on-demand trigger.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/riverreach/ledgerview/contract"
)

// ContractHandler exposes Contract Sentinel (C6) status.
type ContractHandler struct {
	logger   zerolog.Logger
	sentinel *contract.Sentinel
}

// NewContractHandler builds a ContractHandler over a running Sentinel.
func NewContractHandler(logger zerolog.Logger, sentinel *contract.Sentinel) *ContractHandler {
	return &ContractHandler{
		logger:   logger.With().Str("handler", "contract").Logger(),
		sentinel: sentinel,
	}
}

// Status handles GET /v1/contract/status — the last recorded report.
func (h *ContractHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sentinel.Last())
}

// Recheck handles POST /v1/contract/recheck — forces an immediate check
// rather than waiting for the periodic interval.
func (h *ContractHandler) Recheck(w http.ResponseWriter, r *http.Request) {
	report := h.sentinel.Check(r.Context())
	status := http.StatusOK
	if report.State == "blocked" {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}
