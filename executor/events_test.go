package executor

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/riverreach/ledgerview/config"
	"github.com/riverreach/ledgerview/engine"
	"github.com/riverreach/ledgerview/eventlog"
	"github.com/riverreach/ledgerview/invariant"
	"github.com/riverreach/ledgerview/planner"
)

// recordingSink captures every batch an eventlog.Client flushes to it, so
// tests can assert on which ccode.mcp.* actions were recorded.
type recordingSink struct {
	mu     sync.Mutex
	events []eventlog.Event
}

func (s *recordingSink) WriteEvents(_ context.Context, events []eventlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}

func newTestEmitter(t *testing.T) (*eventlog.Client, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	cfg := &config.Config{
		BatchSize:             1,
		BufferCapacityEvents:  100,
		FlushInterval:         10 * time.Millisecond,
		CircuitThreshold:      1000,
		GlobalBreakerFailRate: 0.5,
		SpoolDir:              t.TempDir(),
		EventMaxBytes:         100 * 1024,
	}
	events, err := eventlog.New(zerolog.New(io.Discard), cfg, sink)
	require.NoError(t, err)
	events.Start(context.Background())
	t.Cleanup(events.Stop)
	return events, sink
}

type stubAdapter struct {
	result *engine.Result
	err    error
}

func (a stubAdapter) Exec(_ context.Context, _ engine.Session, _ string, _ ...interface{}) (*engine.Result, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}
func (a stubAdapter) Call(_ context.Context, _ engine.Session, _ string, _ ...interface{}) (*engine.Result, error) {
	return &engine.Result{}, nil
}
func (a stubAdapter) PutStage(_ context.Context, _ engine.Session, _ string, _ []byte) error {
	return nil
}
func (a stubAdapter) ListStage(_ context.Context, _ engine.Session, _ string) ([]engine.StageObject, error) {
	return nil, nil
}
func (a stubAdapter) GetStage(_ context.Context, _ engine.Session, _ string) ([]byte, error) {
	return nil, nil
}
func (a stubAdapter) CreateOrReplaceApp(_ context.Context, _ engine.Session, _, _ string) error {
	return nil
}
func (a stubAdapter) Ping(_ context.Context) error { return nil }

func newTestExecutor(t *testing.T, adapter engine.Adapter, events *eventlog.Client) *Executor {
	t.Helper()
	cfg := &config.Config{
		DefaultMaxRows:    1000,
		DefaultMaxRuntime: 30 * time.Second,
		DefaultMaxBytes:   256 * 1024 * 1024,
	}
	gate := invariant.New("CLAUDE_BI.ACTIVITY.EVENTS", true)
	resolver := NewBudgetResolver(cfg, nil)
	return New(zerolog.Nop(), cfg, adapter, gate, resolver, "CLAUDE_BI.ACTIVITY.EVENTS", events)
}

func testPlan() *planner.QueryPlan {
	return &planner.QueryPlan{Source: "activity", Template: "describe_source"}
}

func waitForAction(t *testing.T, sink *recordingSink, action string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, a := range sink.actions() {
			if a == action {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestExecuteEmitsQueryExecutedOnSuccess(t *testing.T) {
	events, sink := newTestEmitter(t)
	ex := newTestExecutor(t, stubAdapter{result: &engine.Result{RowCount: 3}}, events)

	_, err := ex.Execute(context.Background(), engine.Session{}, "caller-1", "sess-1", testPlan())
	require.NoError(t, err)

	waitForAction(t, sink, "ccode.mcp.query_executed")
}

func TestExecuteEmitsQueryFailedAfterRetryExhausted(t *testing.T) {
	events, sink := newTestEmitter(t)
	transientErr := &engine.Error{Kind: engine.KindTransient, Op: "exec"}
	ex := newTestExecutor(t, stubAdapter{err: transientErr}, events)

	_, err := ex.Execute(context.Background(), engine.Session{}, "caller-1", "sess-1", testPlan())
	require.Error(t, err)

	waitForAction(t, sink, "ccode.mcp.query_failed")
}

func TestExecuteEmitsQueryOverBudget(t *testing.T) {
	events, sink := newTestEmitter(t)
	ex := newTestExecutor(t, stubAdapter{result: &engine.Result{RowCount: 10_000_000}}, events)

	_, err := ex.Execute(context.Background(), engine.Session{}, "caller-1", "sess-1", testPlan())
	require.Error(t, err)
	var over *Error
	require.ErrorAs(t, err, &over)
	require.Equal(t, KindBudget, over.Kind)

	waitForAction(t, sink, "ccode.mcp.query_over_budget")
}

func TestExecuteEmitsQueryDeniedOnResolverFailure(t *testing.T) {
	events, sink := newTestEmitter(t)
	cfg := &config.Config{DefaultMaxRows: 1000, DefaultMaxRuntime: 30 * time.Second, DefaultMaxBytes: 256 * 1024 * 1024}
	gate := invariant.New("CLAUDE_BI.ACTIVITY.EVENTS", true)
	resolver := NewBudgetResolver(cfg, func(ctx context.Context, callerID string) (Budget, bool, error) {
		return Budget{}, false, errPermissionLookup
	})
	ex := New(zerolog.Nop(), cfg, stubAdapter{result: &engine.Result{}}, gate, resolver, "CLAUDE_BI.ACTIVITY.EVENTS", events)

	_, err := ex.Execute(context.Background(), engine.Session{}, "caller-1", "sess-1", testPlan())
	require.Error(t, err)
	var execErr *Error
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, KindPermission, execErr.Kind)

	waitForAction(t, sink, "ccode.mcp.query_denied")
}

var errPermissionLookup = &engine.Error{Kind: engine.KindPermission, Op: "permission_lookup"}
