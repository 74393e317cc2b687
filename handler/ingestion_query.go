/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       HTTP surface for the Ingestion API (logEvent,
             logEventBatch, startSession, endSession,
             getSessionStats) and the Query API (list_sources,
             compose_query_plan, validate_plan,
             execute_query_plan). The event endpoints (logEvent,
             logEventBatch) always reply 200 with per-event
             acceptance status; query
             endpoints return a classified error kind plus a
             single remediation string on failure.
Context:     The only two request surfaces callers use to reach
             the Event Log Client, Planner, and Guarded Executor.
Suitability: L3 — orchestrates several components per request.
──────────────────────────────────────────────────────────────
*/

package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riverreach/ledgerview/engine"
	"github.com/riverreach/ledgerview/eventlog"
	"github.com/riverreach/ledgerview/executor"
	"github.com/riverreach/ledgerview/invariant"
	"github.com/riverreach/ledgerview/planner"
)

// ─── Ingestion API (spec.md §6.1) ───────────────────────────

// wireEvent mirrors eventlog.Event on the wire; unknown top-level fields
// are ignored by the decoder and are not copied into Attributes.
type wireEvent struct {
	EventID        string                 `json:"event_id"`
	OccurredAt     time.Time              `json:"occurred_at"`
	ActorID        string                 `json:"actor_id"`
	Action         string                 `json:"action"`
	Object         *eventlog.ObjectRef    `json:"object,omitempty"`
	Source         eventlog.Source        `json:"source"`
	SessionID      string                 `json:"session_id"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
}

func (w wireEvent) toEvent() eventlog.Event {
	return eventlog.Event{
		EventID:        w.EventID,
		OccurredAt:     w.OccurredAt,
		ActorID:        w.ActorID,
		Action:         w.Action,
		Object:         w.Object,
		Source:         w.Source,
		SessionID:      w.SessionID,
		IdempotencyKey: w.IdempotencyKey,
		Attributes:     w.Attributes,
	}
}

// rejectedEvent reports why one event in a batch was not accepted.
type rejectedEvent struct {
	EventID string `json:"event_id,omitempty"`
	Reason  string `json:"reason"`
}

// ingestResponse is the uniform shape for logEvent/logEventBatch (§6.1):
// the server always replies 200 with per-event acceptance status.
type ingestResponse struct {
	Accepted int             `json:"accepted"`
	Rejected []rejectedEvent `json:"rejected"`
	Buffered int             `json:"buffered"`
}

// sessionStats is the in-process rollup kept by the tracker; it is pure
// request-serving bookkeeping, not a second base table — session
// correlation lives in the event attributes, this is just a cache over it.
type sessionStats struct {
	SessionID    string           `json:"session_id"`
	StartedAt    time.Time        `json:"started_at"`
	EndedAt      *time.Time       `json:"ended_at,omitempty"`
	EventCount   int64            `json:"event_count"`
	ActionCounts map[string]int64 `json:"action_counts"`
	LastSeenAt   time.Time        `json:"last_seen_at"`
}

// sessionTracker maintains an in-memory view of session activity for
// getSessionStats; entries are never evicted. The event projection remains
// the durable record.
type sessionTracker struct {
	mu       sync.Mutex
	sessions map[string]*sessionStats
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{sessions: make(map[string]*sessionStats)}
}

func (t *sessionTracker) start(sessionID string) *sessionStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		s = &sessionStats{SessionID: sessionID, StartedAt: time.Now().UTC(), ActionCounts: map[string]int64{}}
		t.sessions[sessionID] = s
	}
	s.LastSeenAt = time.Now().UTC()
	return s
}

func (t *sessionTracker) end(sessionID string) (*sessionStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return nil, false
	}
	now := time.Now().UTC()
	s.EndedAt = &now
	s.LastSeenAt = now
	return s, true
}

func (t *sessionTracker) record(sessionID, action string) {
	if sessionID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		s = &sessionStats{SessionID: sessionID, StartedAt: time.Now().UTC(), ActionCounts: map[string]int64{}}
		t.sessions[sessionID] = s
	}
	s.EventCount++
	s.ActionCounts[action]++
	s.LastSeenAt = time.Now().UTC()
}

func (t *sessionTracker) get(sessionID string) (sessionStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return sessionStats{}, false
	}
	cp := *s
	cp.ActionCounts = make(map[string]int64, len(s.ActionCounts))
	for k, v := range s.ActionCounts {
		cp.ActionCounts[k] = v
	}
	return cp, true
}

// IngestionHandler serves the Ingestion API (§6.1).
type IngestionHandler struct {
	logger  zerolog.Logger
	events  *eventlog.Client
	tracker *sessionTracker
}

// NewIngestionHandler builds an IngestionHandler over a running eventlog.Client.
func NewIngestionHandler(logger zerolog.Logger, events *eventlog.Client) *IngestionHandler {
	return &IngestionHandler{
		logger:  logger.With().Str("handler", "ingestion").Logger(),
		events:  events,
		tracker: newSessionTracker(),
	}
}

func (h *IngestionHandler) emitOne(we wireEvent) rejectedEvent {
	e := we.toEvent()
	if err := h.events.Emit(e); err != nil {
		return rejectedEvent{EventID: we.EventID, Reason: err.Error()}
	}
	h.tracker.record(e.SessionID, e.Action)
	return rejectedEvent{}
}

// LogEvent handles POST /v1/events (logEvent).
func (h *IngestionHandler) LogEvent(w http.ResponseWriter, r *http.Request) {
	var we wireEvent
	if err := decodeJSON(r, &we); err != nil {
		writeJSON(w, http.StatusOK, ingestResponse{Rejected: []rejectedEvent{{Reason: "malformed event body"}}, Buffered: h.events.Stats().Buffered})
		return
	}

	resp := ingestResponse{Rejected: []rejectedEvent{}}
	if rej := h.emitOne(we); rej.Reason != "" {
		resp.Rejected = append(resp.Rejected, rej)
	} else {
		resp.Accepted = 1
	}
	resp.Buffered = h.events.Stats().Buffered
	writeJSON(w, http.StatusOK, resp)
}

// LogEventBatch handles POST /v1/events/batch (logEventBatch).
func (h *IngestionHandler) LogEventBatch(w http.ResponseWriter, r *http.Request) {
	var batch []wireEvent
	if err := decodeJSON(r, &batch); err != nil {
		writeJSON(w, http.StatusOK, ingestResponse{Rejected: []rejectedEvent{{Reason: "malformed event batch body"}}, Buffered: h.events.Stats().Buffered})
		return
	}

	resp := ingestResponse{Rejected: []rejectedEvent{}}
	for _, we := range batch {
		if rej := h.emitOne(we); rej.Reason != "" {
			resp.Rejected = append(resp.Rejected, rej)
		} else {
			resp.Accepted++
		}
	}
	resp.Buffered = h.events.Stats().Buffered
	writeJSON(w, http.StatusOK, resp)
}

type sessionRequest struct {
	SessionID string                 `json:"session_id"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	ActorID   string                 `json:"actor_id,omitempty"`
}

// StartSession handles POST /v1/sessions (startSession).
func (h *IngestionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "malformed session body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	h.tracker.start(req.SessionID)

	we := wireEvent{
		ActorID:    req.ActorID,
		Action:     "ccode.session.started",
		Source:     eventlog.SourceClaudeCode,
		SessionID:  req.SessionID,
		Attributes: req.Meta,
	}
	_ = h.emitOne(we)

	writeJSON(w, http.StatusOK, map[string]string{"session_id": req.SessionID})
}

// EndSession handles POST /v1/sessions/end (endSession).
func (h *IngestionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "malformed session body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "session_id is required")
		return
	}

	stats, _ := h.tracker.end(req.SessionID)

	we := wireEvent{
		ActorID:    req.ActorID,
		Action:     "ccode.session.ended",
		Source:     eventlog.SourceClaudeCode,
		SessionID:  req.SessionID,
		Attributes: req.Meta,
	}
	_ = h.emitOne(we)

	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": req.SessionID, "stats": stats})
}

// GetSessionStats handles GET /v1/sessions/{sessionId}/stats (getSessionStats).
func (h *IngestionHandler) GetSessionStats(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	stats, ok := h.tracker.get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "E_VALIDATION", "unknown session_id")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ─── Query API (spec.md §6.2) ───────────────────────────────

// sourceDescriptor is one row of list_sources' response.
type sourceDescriptor struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Schema  string   `json:"schema"`
	Columns []string `json:"columns,omitempty"`
}

// QueryHandler serves the Query API (§6.2): list_sources, compose_query_plan,
// validate_plan, execute_query_plan.
type QueryHandler struct {
	logger   zerolog.Logger
	catalog  *planner.Catalog
	compiler *planner.Compiler
	gate     *invariant.Gate
	executor *executor.Executor
	table    string
	maxRows  int
	session  engine.Session
}

// NewQueryHandler builds a QueryHandler over the planner's catalog/compiler
// and the guarded executor.
func NewQueryHandler(logger zerolog.Logger, catalog *planner.Catalog, compiler *planner.Compiler, gate *invariant.Gate, ex *executor.Executor, table string, maxRows int, sess engine.Session) *QueryHandler {
	return &QueryHandler{
		logger:   logger.With().Str("handler", "query").Logger(),
		catalog:  catalog,
		compiler: compiler,
		gate:     gate,
		executor: ex,
		table:    table,
		maxRows:  maxRows,
		session:  sess,
	}
}

// ListSources handles GET /v1/sources (list_sources).
func (h *QueryHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	includeColumns := r.URL.Query().Get("include_columns") == "true"

	out := make([]sourceDescriptor, 0, len(h.catalog.Sources))
	for _, s := range h.catalog.Sources {
		d := sourceDescriptor{Name: s.Name, Type: "view", Schema: s.Table}
		if includeColumns {
			d.Columns = append(append([]string{}, s.Dimensions...), s.Measures...)
		}
		out = append(out, d)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": out})
}

type composeRequest struct {
	IntentText string                 `json:"intent_text"`
	Hints      map[string]interface{} `json:"hints,omitempty"`
}

// ComposeQueryPlan handles POST /v1/plans/compose (compose_query_plan).
func (h *QueryHandler) ComposeQueryPlan(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "malformed compose request")
		return
	}

	plan, clarify, err := h.compiler.Compile(r.Context(), req.IntentText)
	if err != nil {
		remediation := "rephrase the question in terms of a known source, dimension, or measure"
		if verr, ok := err.(*planner.ValidationError); ok {
			writeErrorWithRemediation(w, http.StatusUnprocessableEntity, "E_PLAN", string(verr.Kind)+": "+verr.Detail, remediation)
			return
		}
		writeErrorWithRemediation(w, http.StatusUnprocessableEntity, "E_PLAN", err.Error(), remediation)
		return
	}
	if clarify != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"needs_clarification": clarify})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"plan": plan})
}

type validateRequest struct {
	Plan    *planner.QueryPlan `json:"plan"`
	DryRun  bool               `json:"dry_run"`
}

type validateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
	SQL    string   `json:"sql,omitempty"`
}

// ValidatePlan handles POST /v1/plans/validate (validate_plan).
func (h *QueryHandler) ValidatePlan(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "malformed validate request")
		return
	}
	if req.Plan == nil {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "plan is required")
		return
	}

	if err := planner.Validate(req.Plan, h.catalog, h.maxRows); err != nil {
		resp := validateResponse{Valid: false, Errors: []string{err.Error()}}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp := validateResponse{Valid: true}
	if req.DryRun {
		sql, _, err := executor.Render(req.Plan, h.table)
		if err != nil {
			resp.Valid = false
			resp.Errors = []string{err.Error()}
			writeJSON(w, http.StatusOK, resp)
			return
		}
		if verr := h.gate.Check(sql); verr != nil {
			resp.Valid = false
			resp.Errors = []string{verr.Error()}
			writeJSON(w, http.StatusOK, resp)
			return
		}
		resp.SQL = sql
	}
	writeJSON(w, http.StatusOK, resp)
}

type executeRequest struct {
	Plan      *planner.QueryPlan `json:"plan"`
	CallerID  string             `json:"caller_id"`
	SessionID string             `json:"session_id"`
}

// ExecuteQueryPlan handles POST /v1/plans/execute (execute_query_plan).
func (h *QueryHandler) ExecuteQueryPlan(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "malformed execute request")
		return
	}
	if req.Plan == nil {
		writeError(w, http.StatusBadRequest, "E_VALIDATION", "plan is required")
		return
	}

	callerID := req.CallerID
	if callerID == "" {
		callerID = "anonymous"
	}

	if err := planner.Validate(req.Plan, h.catalog, h.maxRows); err != nil {
		remediation := "fix the plan's source/column/template references and retry"
		if verr, ok := err.(*planner.ValidationError); ok {
			writeErrorWithRemediation(w, http.StatusUnprocessableEntity, "E_PLAN", string(verr.Kind)+": "+verr.Detail, remediation)
			return
		}
		writeErrorWithRemediation(w, http.StatusUnprocessableEntity, "E_PLAN", err.Error(), remediation)
		return
	}

	result, err := h.executor.Execute(r.Context(), h.session, callerID, req.SessionID, req.Plan)
	if err != nil {
		h.writeExecutorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"row_count":          result.RowCount,
		"sample":             result.Rows,
		"execution_time_ms":  result.RuntimeMS,
		"query_id":           result.QueryID,
	})
}

func (h *QueryHandler) writeExecutorError(w http.ResponseWriter, err error) {
	execErr, ok := err.(*executor.Error)
	if !ok {
		writeErrorWithRemediation(w, http.StatusInternalServerError, "E_ENGINE_PERMANENT", err.Error(), "retry later")
		return
	}
	status := http.StatusInternalServerError
	kind := "E_ENGINE_PERMANENT"
	switch execErr.Kind {
	case executor.KindBudget:
		status = http.StatusUnprocessableEntity
		kind = "E_BUDGET"
	case executor.KindInvariant:
		status = http.StatusUnprocessableEntity
		kind = "E_INVARIANT"
	case executor.KindEngine:
		status = http.StatusBadGateway
		kind = "E_ENGINE_TRANSIENT"
	case executor.KindPermission:
		status = http.StatusForbidden
		kind = "E_PERMISSION"
	}
	writeErrorWithRemediation(w, status, kind, execErr.Error(), execErr.Remediation)
}
