package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/riverreach/ledgerview/invariant"
)

func TestGateHandlerStatusReportsStrictMode(t *testing.T) {
	gate := invariant.New("CLAUDE_BI.ACTIVITY.EVENTS", true)
	_ = gate.Check("INSERT INTO CLAUDE_BI.ACTIVITY.EVENTS VALUES (1)")
	_ = gate.Check("CREATE TABLE shadow_copy (id INT)")

	h := NewGateHandler(zerolog.Nop(), gate, true)

	req := httptest.NewRequest(http.MethodGet, "/v1/invariant/status", nil)
	rw := httptest.NewRecorder()
	h.Status(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), `"strict":true`)
	require.Contains(t, rw.Body.String(), `"violation_count":1`)
}

func TestGateHandlerEvaluationLogIncludesViolations(t *testing.T) {
	gate := invariant.New("CLAUDE_BI.ACTIVITY.EVENTS", false)
	_ = gate.Check("CREATE TABLE shadow_copy (id INT)")

	h := NewGateHandler(zerolog.Nop(), gate, false)

	req := httptest.NewRequest(http.MethodGet, "/v1/invariant/log", nil)
	rw := httptest.NewRecorder()
	h.EvaluationLog(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), "extra_table")
}
