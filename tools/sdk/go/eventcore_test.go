package eventcore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL))
}

func TestLogEvent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/events" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Fatalf("missing bearer auth header")
		}
		var in EventInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if in.Action != "dashboard.viewed" {
			t.Fatalf("unexpected action: %s", in.Action)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(LogEventResponse{Accepted: true, EventID: "evt_1"})
	})

	out, err := c.LogEvent(context.Background(), EventInput{Action: "dashboard.viewed", SessionID: "sess_1"})
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if !out.Accepted || out.EventID != "evt_1" {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestLogEventBatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Events []EventInput `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(payload.Events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(payload.Events))
		}
		_ = json.NewEncoder(w).Encode(LogEventBatchResponse{Accepted: 2})
	})

	out, err := c.LogEventBatch(context.Background(), []EventInput{
		{Action: "a", SessionID: "s"},
		{Action: "b", SessionID: "s"},
	})
	if err != nil {
		t.Fatalf("LogEventBatch: %v", err)
	}
	if out.Accepted != 2 {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestStartAndEndSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions":
			_ = json.NewEncoder(w).Encode(StartSessionResponse{SessionID: "sess_1"})
		case "/sessions/end":
			_ = json.NewEncoder(w).Encode(EndSessionResponse{SessionID: "sess_1"})
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	})

	started, err := c.StartSession(context.Background(), StartSessionRequest{SessionID: "sess_1"})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if started.SessionID != "sess_1" {
		t.Fatalf("unexpected session id: %s", started.SessionID)
	}

	ended, err := c.EndSession(context.Background(), "sess_1")
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ended.SessionID != "sess_1" {
		t.Fatalf("unexpected session id: %s", ended.SessionID)
	}
}

func TestGetSessionStats(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/sess_1/stats" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(SessionStats{SessionID: "sess_1", EventCount: 5, Active: true})
	})

	stats, err := c.GetSessionStats(context.Background(), "sess_1")
	if err != nil {
		t.Fatalf("GetSessionStats: %v", err)
	}
	if stats.EventCount != 5 || !stats.Active {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestErrorHierarchy(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusUnauthorized, func(err error) bool { _, ok := err.(*AuthenticationError); return ok }},
		{http.StatusForbidden, func(err error) bool { _, ok := err.(*AuthorizationError); return ok }},
		{http.StatusNotFound, func(err error) bool { _, ok := err.(*NotFoundError); return ok }},
		{http.StatusUnprocessableEntity, func(err error) bool { _, ok := err.(*ValidationError); return ok }},
		{http.StatusTooManyRequests, func(err error) bool { _, ok := err.(*BackpressureError); return ok }},
	}

	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(Error{Kind: "test_kind", Message: "test message"})
		})
		_, err := c.LogEvent(context.Background(), EventInput{Action: "a", SessionID: "s"})
		if err == nil {
			t.Fatalf("expected error for status %d", tc.status)
		}
		if !tc.check(err) {
			t.Fatalf("unexpected error type for status %d: %#v", tc.status, err)
		}
	}
}
