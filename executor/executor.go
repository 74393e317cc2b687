/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       Guarded Executor (C4): resolves a caller's budget,
             renders a validated plan into SafeSQL, tags the
             session, runs it through the invariant gate, executes
             once with a single retry on a transient engine error,
             and settles the reservation against actual usage —
             aborting (not truncating) when usage exceeds budget.
Context:     The only path a QueryPlan takes to the warehouse.
Suitability: L3 — orchestration across planner/engine/invariant.
──────────────────────────────────────────────────────────────
*/

package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riverreach/ledgerview/config"
	"github.com/riverreach/ledgerview/engine"
	"github.com/riverreach/ledgerview/eventlog"
	"github.com/riverreach/ledgerview/invariant"
	"github.com/riverreach/ledgerview/observability"
	"github.com/riverreach/ledgerview/planner"
)

// Kind classifies a guarded-executor failure for the HTTP layer.
type Kind string

const (
	KindBudget     Kind = "budget"
	KindInvariant  Kind = "invariant"
	KindEngine     Kind = "engine"
	KindPermission Kind = "permission"
)

// Error is the typed error the executor returns; HTTP handlers map Kind to
// a status code and Remediation to the response body (spec.md §7).
type Error struct {
	Kind        Kind
	Remediation string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("executor: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Executor runs validated plans against the warehouse under budget and
// invariant enforcement.
type Executor struct {
	logger    zerolog.Logger
	cfg       *config.Config
	adapter   engine.Adapter
	gate      *invariant.Gate
	resolver  *BudgetResolver
	reserves  *ReservationStore
	events    *eventlog.Client
	table     string
	serviceID string
}

// New builds an Executor. events may be nil (e.g. in tests exercising
// rendering/budget logic in isolation); a nil events client makes emit a
// no-op, same as dashboard.Factory's emit.
func New(logger zerolog.Logger, cfg *config.Config, adapter engine.Adapter, gate *invariant.Gate, resolver *BudgetResolver, table string, events *eventlog.Client) *Executor {
	return &Executor{
		logger:    logger.With().Str("component", "executor").Logger(),
		cfg:       cfg,
		adapter:   adapter,
		gate:      gate,
		resolver:  resolver,
		reserves:  NewReservationStore(),
		events:    events,
		table:     table,
		serviceID: cfg.ServiceName,
	}
}

// emit records a query-lifecycle event (spec.md §3.3, §4.4 steps 6-7, §6.7)
// under the ccode.mcp.* namespace.
func (ex *Executor) emit(sessionID, callerID, action string, attrs map[string]interface{}) {
	if ex.events == nil {
		return
	}
	if sessionID == "" {
		sessionID = "system"
	}
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	_ = ex.events.Emit(eventlog.Event{
		Action:     action,
		ActorID:    callerID,
		SessionID:  sessionID,
		Source:     eventlog.SourceSystem,
		Attributes: attrs,
	})
}

// Execute renders plan, reserves the caller's budget, runs the statement
// (retrying once on a transient engine failure), and settles usage against
// the reservation before returning rows.
func (ex *Executor) Execute(ctx context.Context, sess engine.Session, callerID, sessionID string, plan *planner.QueryPlan) (*engine.Result, error) {
	planHash := PlanHash(plan.Template, nil)
	observability.TagQuerySpan(ctx, callerID, sessionID, planHash, plan.Template)

	budget, err := ex.resolver.Resolve(ctx, callerID)
	if err != nil {
		ex.emit(sessionID, callerID, "ccode.mcp.query_denied", map[string]interface{}{"plan_hash": planHash, "reason": err.Error()})
		return nil, &Error{Kind: KindPermission, Remediation: "retry after permission resolution recovers", Err: err}
	}

	sql, binds, err := Render(plan, ex.table)
	if err != nil {
		ex.emit(sessionID, callerID, "ccode.mcp.query_rejected", map[string]interface{}{"template": plan.Template, "reason": err.Error()})
		return nil, &Error{Kind: KindEngine, Remediation: "fix the plan's template shape", Err: err}
	}

	if err := ex.gate.Check(sql); err != nil {
		ex.emit(sessionID, callerID, "ccode.mcp.query_rejected", map[string]interface{}{"template": plan.Template, "reason": err.Error()})
		return nil, &Error{Kind: KindInvariant, Remediation: "only the landing table may be created or written to", Err: err}
	}

	reservationID := uuid.NewString()
	ex.reserves.Reserve(reservationID, callerID, budget)

	planHash = PlanHash(plan.Template, binds)
	observability.TagQuerySpan(ctx, callerID, sessionID, planHash, plan.Template)
	sess.QueryTag = Tag{
		Service:   ex.serviceID,
		Env:       ex.cfg.Env,
		GitSHA:    ex.cfg.GitSHA,
		Caller:    callerID,
		SessionID: sessionID,
		PlanHash:  planHash,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}.String()

	runCtx, cancel := context.WithTimeout(ctx, budget.MaxRuntime)
	defer cancel()

	result, err := ex.adapter.Exec(runCtx, sess, sql, binds...)
	if err != nil {
		var engErr *engine.Error
		if asEngineError(err, &engErr) && engErr.Retryable() {
			ex.logger.Warn().Err(err).Msg("transient engine error, retrying once")
			result, err = ex.adapter.Exec(runCtx, sess, sql, binds...)
		}
	}
	if err != nil {
		ex.emit(sessionID, callerID, "ccode.mcp.query_failed", map[string]interface{}{"plan_hash": planHash, "template": plan.Template, "reason": err.Error()})
		return nil, &Error{Kind: KindEngine, Remediation: "check warehouse health and retry", Err: err}
	}

	usage := Usage{Rows: result.RowCount, Bytes: result.BytesUsed, RuntimeMS: result.RuntimeMS}
	if usage.Rows == 0 {
		usage.Rows = len(result.Rows)
	}
	if err := ex.reserves.Settle(reservationID, usage); err != nil {
		ex.emit(sessionID, callerID, "ccode.mcp.query_over_budget", map[string]interface{}{
			"plan_hash": planHash,
			"template":  plan.Template,
			"rows":      usage.Rows,
			"bytes":     usage.Bytes,
		})
		return nil, &Error{Kind: KindBudget, Remediation: "narrow the query (fewer rows, shorter window) and retry", Err: err}
	}

	ex.emit(sessionID, callerID, "ccode.mcp.query_executed", map[string]interface{}{
		"plan_hash":  planHash,
		"rows":       usage.Rows,
		"bytes":      usage.Bytes,
		"elapsed_ms": result.RuntimeMS,
		"template":   plan.Template,
	})

	return result, nil
}

func asEngineError(err error, target **engine.Error) bool {
	e, ok := err.(*engine.Error)
	if ok {
		*target = e
	}
	return ok
}
