/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       Execution-engine abstraction layer. Defines the Go
             interface every warehouse connector must implement:
             exec, call, stage put/list/get, app create-or-replace,
             and session-scoped role/warehouse/query-tag binding.
Context:     Interface design affects the guarded executor, the
             dashboard factory's staging writes, and the invariant
             gate's DDL interception — all call through Adapter.
Suitability: L3 — interface shape affects every downstream caller.
──────────────────────────────────────────────────────────────
*/

package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Kind classifies an engine-level failure for retry and alerting policy.
type Kind string

const (
	KindTransient  Kind = "transient"
	KindPermanent  Kind = "permanent"
	KindPermission Kind = "permission"
	KindTimeout    Kind = "timeout"
	KindNotFound   Kind = "not_found"
)

// Error wraps an underlying engine driver error with a classified Kind.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: %s (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("engine: %s (%s): %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Retryable reports whether the failure is worth a single retry (§4.1, §4.4).
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

// Row is one result row, column name to value.
type Row map[string]interface{}

// Result is the outcome of exec/call.
type Result struct {
	Rows       []Row
	RowCount   int
	BytesUsed  int64
	RuntimeMS  int64
	QueryID    string
}

// Session carries the role/warehouse/database/schema/query-tag binding that
// every exec/call must run under (spec.md §4.1 set_session).
type Session struct {
	Role      string
	Warehouse string
	Database  string
	Schema    string
	QueryTag  string
}

// Adapter is the full surface the rest of the system drives the warehouse
// through. No caller is permitted to hold a raw driver connection.
type Adapter interface {
	// Exec runs a single parameterized statement and returns its result set.
	Exec(ctx context.Context, sess Session, sql string, binds ...interface{}) (*Result, error)

	// Call invokes a stored procedure by name with positional arguments.
	Call(ctx context.Context, sess Session, proc string, args ...interface{}) (*Result, error)

	// PutStage uploads local bytes to a named stage path.
	PutStage(ctx context.Context, sess Session, stagePath string, data []byte) error

	// ListStage enumerates objects under a stage prefix.
	ListStage(ctx context.Context, sess Session, stagePrefix string) ([]StageObject, error)

	// GetStage downloads a single staged object.
	GetStage(ctx context.Context, sess Session, stagePath string) ([]byte, error)

	// CreateOrReplaceApp registers or replaces a native-app-style object
	// backed by a stage directory (used by the dashboard factory's
	// materialize/publish steps).
	CreateOrReplaceApp(ctx context.Context, sess Session, appName, stageRoot string) error

	// Ping verifies connectivity; used by boot-time contract checks.
	Ping(ctx context.Context) error
}

// StageObject describes one object returned by ListStage.
type StageObject struct {
	Path     string
	SizeBytes int64
	Modified time.Time
}

// Connector is a minimal driver seam an Adapter implementation sits on top
// of — kept separate from Adapter so Pool (pool.go) can manage
// reconnection without knowing about sessions or SQL shape.
type Connector interface {
	Query(ctx context.Context, sql string, binds []interface{}) (*Result, error)
	Exec(ctx context.Context, sql string, binds []interface{}) (*Result, error)
	Upload(ctx context.Context, path string, data []byte) error
	List(ctx context.Context, prefix string) ([]StageObject, error)
	Download(ctx context.Context, path string) ([]byte, error)
	Close() error
}

// adapter is the default Adapter implementation backed by a pooled
// Connector. Session binding is applied via a SET-style preamble before the
// underlying statement executes; that preamble is cheap enough to run on
// every call rather than caching session state on the connection.
type adapter struct {
	mu   sync.RWMutex
	pool *Pool
}

// New wraps a connection pool as an Adapter.
func New(pool *Pool) Adapter {
	return &adapter{pool: pool}
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "not authorized"):
		return newError(KindPermission, op, err)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "does not exist"):
		return newError(KindNotFound, op, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return newError(KindTimeout, op, err)
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "eof"), strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "temporarily unavailable"):
		return newError(KindTransient, op, err)
	default:
		return newError(KindPermanent, op, err)
	}
}

func sessionPreamble(sess Session) string {
	var b strings.Builder
	if sess.Role != "" {
		fmt.Fprintf(&b, "USE ROLE %s; ", sess.Role)
	}
	if sess.Warehouse != "" {
		fmt.Fprintf(&b, "USE WAREHOUSE %s; ", sess.Warehouse)
	}
	if sess.Database != "" && sess.Schema != "" {
		fmt.Fprintf(&b, "USE SCHEMA %s.%s; ", sess.Database, sess.Schema)
	}
	if sess.QueryTag != "" {
		fmt.Fprintf(&b, "ALTER SESSION SET QUERY_TAG = '%s'; ", strings.ReplaceAll(sess.QueryTag, "'", "''"))
	}
	return b.String()
}

func (a *adapter) Exec(ctx context.Context, sess Session, sql string, binds ...interface{}) (*Result, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, classify("exec.acquire", err)
	}
	defer a.pool.Release(conn)

	if pre := sessionPreamble(sess); pre != "" {
		if _, err := conn.Exec(ctx, pre, nil); err != nil {
			return nil, classify("exec.session", err)
		}
	}
	start := time.Now()
	res, err := conn.Query(ctx, sql, binds)
	if err != nil {
		return nil, classify("exec", err)
	}
	res.RuntimeMS = time.Since(start).Milliseconds()
	return res, nil
}

func (a *adapter) Call(ctx context.Context, sess Session, proc string, args ...interface{}) (*Result, error) {
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = "?"
	}
	sql := fmt.Sprintf("CALL %s(%s)", proc, strings.Join(placeholders, ", "))
	return a.Exec(ctx, sess, sql, args...)
}

func (a *adapter) PutStage(ctx context.Context, sess Session, stagePath string, data []byte) error {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return classify("put_stage.acquire", err)
	}
	defer a.pool.Release(conn)
	if err := conn.Upload(ctx, stagePath, data); err != nil {
		return classify("put_stage", err)
	}
	return nil
}

func (a *adapter) ListStage(ctx context.Context, sess Session, stagePrefix string) ([]StageObject, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, classify("list_stage.acquire", err)
	}
	defer a.pool.Release(conn)
	objs, err := conn.List(ctx, stagePrefix)
	if err != nil {
		return nil, classify("list_stage", err)
	}
	return objs, nil
}

func (a *adapter) GetStage(ctx context.Context, sess Session, stagePath string) ([]byte, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, classify("get_stage.acquire", err)
	}
	defer a.pool.Release(conn)
	data, err := conn.Download(ctx, stagePath)
	if err != nil {
		return nil, classify("get_stage", err)
	}
	return data, nil
}

func (a *adapter) CreateOrReplaceApp(ctx context.Context, sess Session, appName, stageRoot string) error {
	sql := fmt.Sprintf("CREATE OR REPLACE STREAMLIT %s ROOT_LOCATION = '%s' MAIN_FILE = 'app.entry'", appName, stageRoot)
	_, err := a.Exec(ctx, sess, sql)
	return err
}

func (a *adapter) Ping(ctx context.Context) error {
	_, err := a.Exec(ctx, Session{}, "SELECT 1")
	return err
}
