package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/riverreach/ledgerview/config"
	"github.com/riverreach/ledgerview/dashboard"
	"github.com/riverreach/ledgerview/invariant"
)

func requestWithURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func newTestDashboardHandler(t *testing.T) *DashboardHandler {
	t.Helper()
	cfg := &config.Config{DashStageRoot: "@DASH_APPS", CreateTimeout: 5 * time.Second}
	gate := invariant.New("CLAUDE_BI.ACTIVITY.EVENTS", true)
	factory := dashboard.New(zerolog.Nop(), cfg, fakeAdapter{}, gate, nil)
	return NewDashboardHandler(zerolog.Nop(), factory)
}

func TestCreateDashboardRejectsMissingPanels(t *testing.T) {
	h := newTestDashboardHandler(t)

	body, _ := json.Marshal(map[string]interface{}{"title": "signups"})
	req := httptest.NewRequest(http.MethodPost, "/v1/dashboards", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.CreateDashboard(rw, req)

	require.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestCreateDashboardSucceedsAndGetActiveDashboardReflectsIt(t *testing.T) {
	h := newTestDashboardHandler(t)

	payload := map[string]interface{}{
		"title": "signups",
		"owner": "analytics-team",
		"panels": []map[string]interface{}{
			{"id": "p1", "title": "Signups", "plan": map[string]interface{}{"source": "activity"}},
		},
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/v1/dashboards", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	h.CreateDashboard(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &created))
	require.Equal(t, "signups", created["dashboard_id"])

	getReq := requestWithURLParam(httptest.NewRequest(http.MethodGet, "/v1/dashboards/signups", nil), "name", "signups")
	getRW := httptest.NewRecorder()
	h.GetActiveDashboard(getRW, getReq)

	require.Equal(t, http.StatusOK, getRW.Code)
}

func TestGetActiveDashboardReturns404WhenUnpublished(t *testing.T) {
	h := newTestDashboardHandler(t)

	req := requestWithURLParam(httptest.NewRequest(http.MethodGet, "/v1/dashboards/ghost", nil), "name", "ghost")
	rw := httptest.NewRecorder()
	h.GetActiveDashboard(rw, req)

	require.Equal(t, http.StatusNotFound, rw.Code)
}
