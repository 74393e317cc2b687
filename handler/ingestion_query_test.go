package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/riverreach/ledgerview/config"
	"github.com/riverreach/ledgerview/engine"
	"github.com/riverreach/ledgerview/eventlog"
	"github.com/riverreach/ledgerview/executor"
	"github.com/riverreach/ledgerview/invariant"
	"github.com/riverreach/ledgerview/planner"
)

type discardSink struct{}

func (discardSink) WriteEvents(_ context.Context, _ []eventlog.Event) error { return nil }

func newTestIngestionHandler(t *testing.T) *IngestionHandler {
	t.Helper()
	cfg := &config.Config{
		BatchSize:             500,
		BufferCapacityEvents:  2000,
		FlushInterval:         time.Minute,
		CircuitThreshold:      1000,
		GlobalBreakerFailRate: 0.5,
		SpoolDir:              t.TempDir(),
		EventMaxBytes:         100 * 1024,
	}
	events, err := eventlog.New(zerolog.New(io.Discard), cfg, discardSink{})
	require.NoError(t, err)
	return NewIngestionHandler(zerolog.Nop(), events)
}

func TestLogEventAlwaysReturns200(t *testing.T) {
	h := newTestIngestionHandler(t)

	body, _ := json.Marshal(map[string]interface{}{
		"action":     "dashboard.viewed",
		"session_id": "sess_1",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.LogEvent(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Accepted)
}

func TestLogEventBatchAcceptsMultiple(t *testing.T) {
	h := newTestIngestionHandler(t)

	batch := []map[string]interface{}{
		{"action": "dashboard.viewed", "session_id": "s"},
		{"action": "dashboard.panel_clicked", "session_id": "s"},
	}
	body, _ := json.Marshal(batch)
	req := httptest.NewRequest(http.MethodPost, "/v1/events/batch", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.LogEventBatch(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Accepted)
}

func TestStartAndEndSessionAndGetStats(t *testing.T) {
	h := newTestIngestionHandler(t)

	startBody, _ := json.Marshal(map[string]interface{}{"session_id": "sess_1"})
	startReq := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(startBody))
	startRW := httptest.NewRecorder()
	h.StartSession(startRW, startReq)
	require.Equal(t, http.StatusOK, startRW.Code)

	logBody, _ := json.Marshal(map[string]interface{}{"action": "dashboard.viewed", "session_id": "sess_1"})
	logReq := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(logBody))
	logRW := httptest.NewRecorder()
	h.LogEvent(logRW, logReq)
	require.Equal(t, http.StatusOK, logRW.Code)

	statsReq := requestWithURLParam(httptest.NewRequest(http.MethodGet, "/v1/sessions/sess_1/stats", nil), "sessionId", "sess_1")
	statsRW := httptest.NewRecorder()
	h.GetSessionStats(statsRW, statsReq)
	require.Equal(t, http.StatusOK, statsRW.Code)

	endBody, _ := json.Marshal(map[string]interface{}{"session_id": "sess_1"})
	endReq := httptest.NewRequest(http.MethodPost, "/v1/sessions/end", bytes.NewReader(endBody))
	endRW := httptest.NewRecorder()
	h.EndSession(endRW, endReq)
	require.Equal(t, http.StatusOK, endRW.Code)
}

func TestGetSessionStatsReturns404ForUnknownSession(t *testing.T) {
	h := newTestIngestionHandler(t)

	req := requestWithURLParam(httptest.NewRequest(http.MethodGet, "/v1/sessions/ghost/stats", nil), "sessionId", "ghost")
	rw := httptest.NewRecorder()
	h.GetSessionStats(rw, req)

	require.Equal(t, http.StatusNotFound, rw.Code)
}

func newTestQueryHandler(t *testing.T) *QueryHandler {
	t.Helper()
	catalog := &planner.Catalog{
		Sources: []planner.SourceDef{
			{Name: "activity", Table: "CLAUDE_BI.ACTIVITY.EVENTS", Dimensions: []string{"action"}, Measures: []string{"event_count"}},
		},
	}
	compiler := planner.NewCompiler(catalog, 10000, nil)
	gate := invariant.New("CLAUDE_BI.ACTIVITY.EVENTS", true)
	cfg := &config.Config{
		DefaultMaxRows:    1000,
		DefaultMaxRuntime: 30 * time.Second,
		DefaultMaxBytes:   256 * 1024 * 1024,
	}
	resolver := executor.NewBudgetResolver(cfg, nil)
	events, err := eventlog.New(zerolog.New(io.Discard), &config.Config{
		BatchSize:             500,
		BufferCapacityEvents:  2000,
		FlushInterval:         time.Minute,
		CircuitThreshold:      1000,
		GlobalBreakerFailRate: 0.5,
		SpoolDir:              t.TempDir(),
		EventMaxBytes:         100 * 1024,
	}, discardSink{})
	require.NoError(t, err)
	ex := executor.New(zerolog.Nop(), cfg, fakeAdapter{}, gate, resolver, "CLAUDE_BI.ACTIVITY.EVENTS", events)
	return NewQueryHandler(zerolog.Nop(), catalog, compiler, gate, ex, "CLAUDE_BI.ACTIVITY.EVENTS", 10000, engine.Session{})
}

func TestListSources(t *testing.T) {
	h := newTestQueryHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	rw := httptest.NewRecorder()
	h.ListSources(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), "activity")
}

func TestValidatePlanRejectsUnknownSource(t *testing.T) {
	h := newTestQueryHandler(t)

	plan := planner.QueryPlan{Source: "does_not_exist", Template: "describe_source"}
	body, _ := json.Marshal(map[string]interface{}{"plan": plan})
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/validate", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.ValidatePlan(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)

	var resp validateResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.False(t, resp.Valid)
}

func TestValidatePlanAcceptsKnownSource(t *testing.T) {
	h := newTestQueryHandler(t)

	plan := planner.QueryPlan{Source: "activity", Template: "describe_source"}
	body, _ := json.Marshal(map[string]interface{}{"plan": plan})
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/validate", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.ValidatePlan(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)

	var resp validateResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.True(t, resp.Valid)
}

func TestExecuteQueryPlanRejectsInvalidPlan(t *testing.T) {
	h := newTestQueryHandler(t)

	plan := planner.QueryPlan{Source: "does_not_exist", Template: "describe_source"}
	body, _ := json.Marshal(map[string]interface{}{"plan": plan, "caller_id": "caller_1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/plans/execute", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.ExecuteQueryPlan(rw, req)

	require.Equal(t, http.StatusUnprocessableEntity, rw.Code)
}
