package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/riverreach/ledgerview/config"
	"github.com/riverreach/ledgerview/engine"
	"github.com/riverreach/ledgerview/invariant"
)

type fakeAdapter struct {
	pingErr      error
	putStageErr  error
	uploadedKeys []string
}

func (a *fakeAdapter) Exec(ctx context.Context, sess engine.Session, sql string, binds ...interface{}) (*engine.Result, error) {
	return &engine.Result{}, nil
}
func (a *fakeAdapter) Call(ctx context.Context, sess engine.Session, proc string, args ...interface{}) (*engine.Result, error) {
	return &engine.Result{}, nil
}
func (a *fakeAdapter) PutStage(ctx context.Context, sess engine.Session, stagePath string, data []byte) error {
	if a.putStageErr != nil {
		return a.putStageErr
	}
	a.uploadedKeys = append(a.uploadedKeys, stagePath)
	return nil
}
func (a *fakeAdapter) ListStage(ctx context.Context, sess engine.Session, stagePrefix string) ([]engine.StageObject, error) {
	return nil, nil
}
func (a *fakeAdapter) GetStage(ctx context.Context, sess engine.Session, stagePath string) ([]byte, error) {
	return nil, nil
}
func (a *fakeAdapter) CreateOrReplaceApp(ctx context.Context, sess engine.Session, appName, stageRoot string) error {
	return nil
}
func (a *fakeAdapter) Ping(ctx context.Context) error { return a.pingErr }

func testSpec(name string) Spec {
	return Spec{
		Name:      name,
		Owner:     "analytics-team",
		Freshness: "1h",
		Panels: []Panel{
			{ID: "p1", Title: "Signups", Plan: map[string]interface{}{"source": "activity"}, Width: 4, Height: 2},
		},
	}
}

func newTestFactory(t *testing.T, adapter engine.Adapter) *Factory {
	t.Helper()
	cfg := &config.Config{DashStageRoot: "@DASH_APPS", CreateTimeout: 5 * time.Second}
	gate := invariant.New("CLAUDE_BI.ACTIVITY.EVENTS", true)
	return New(zerolog.Nop(), cfg, adapter, gate, nil)
}

func TestCreatePublishesAndActivates(t *testing.T) {
	a := &fakeAdapter{}
	f := newTestFactory(t, a)

	result := f.Create(context.Background(), "caller_1", "sess_1", testSpec("signups"))
	require.NoError(t, result.Err)
	require.Equal(t, StageActive, result.Stage)
	require.False(t, result.Reused)
	require.NotEmpty(t, a.uploadedKeys)

	hash, ok := f.ActiveSpecHash("signups")
	require.True(t, ok)
	require.Equal(t, result.SpecHash, hash)
}

func TestCreateIsReusedForIdenticalSpec(t *testing.T) {
	a := &fakeAdapter{}
	f := newTestFactory(t, a)

	first := f.Create(context.Background(), "caller_1", "sess_1", testSpec("signups"))
	require.NoError(t, first.Err)
	require.False(t, first.Reused)

	uploadsAfterFirst := len(a.uploadedKeys)

	second := f.Create(context.Background(), "caller_1", "sess_2", testSpec("signups"))
	require.NoError(t, second.Err)
	require.True(t, second.Reused)
	require.Equal(t, first.SpecHash, second.SpecHash)
	require.Equal(t, uploadsAfterFirst, len(a.uploadedKeys), "reused spec must not re-upload stage artifacts")
}

func TestCreateFailsValidationOnNoPanels(t *testing.T) {
	a := &fakeAdapter{}
	f := newTestFactory(t, a)

	spec := testSpec("empty")
	spec.Panels = nil

	result := f.Create(context.Background(), "caller_1", "sess_1", spec)
	require.Error(t, result.Err)
	require.Equal(t, StageFallback, result.Stage)
}

func TestCreateFallsBackWhenEngineUnreachable(t *testing.T) {
	a := &fakeAdapter{pingErr: context.DeadlineExceeded}
	f := newTestFactory(t, a)

	result := f.Create(context.Background(), "caller_1", "sess_1", testSpec("signups"))
	require.Error(t, result.Err)
	require.Equal(t, StageFallback, result.Stage)
}

func TestRollbackRestoresPreviouslyCachedVersion(t *testing.T) {
	a := &fakeAdapter{}
	f := newTestFactory(t, a)

	v1 := testSpec("signups")
	first := f.Create(context.Background(), "caller_1", "sess_1", v1)
	require.NoError(t, first.Err)

	v2 := testSpec("signups")
	v2.Panels = append(v2.Panels, Panel{ID: "p2", Title: "Retention"})
	second := f.Create(context.Background(), "caller_1", "sess_1", v2)
	require.NoError(t, second.Err)
	require.NotEqual(t, first.SpecHash, second.SpecHash)

	err := f.Rollback(context.Background(), "sess_1", "signups", first.SpecHash)
	require.NoError(t, err)

	active, ok := f.ActiveSpecHash("signups")
	require.True(t, ok)
	require.Equal(t, first.SpecHash, active)
}

func TestRollbackFailsWithoutCachedArtifact(t *testing.T) {
	a := &fakeAdapter{}
	f := newTestFactory(t, a)

	err := f.Rollback(context.Background(), "sess_1", "signups", "does-not-exist")
	require.Error(t, err)
}
