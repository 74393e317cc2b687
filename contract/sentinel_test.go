package contract

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/riverreach/ledgerview/engine"
)

type fakeAdapter struct {
	describeOK bool
	sampleRows int
}

func (a *fakeAdapter) Exec(ctx context.Context, sess engine.Session, sql string, binds ...interface{}) (*engine.Result, error) {
	switch {
	case sql == "SELECT CURRENT_ROLE(), CURRENT_WAREHOUSE(), CURRENT_DATABASE(), CURRENT_SCHEMA()":
		return &engine.Result{Rows: []engine.Row{{"role": "SYSTEM"}}, RowCount: 1}, nil
	case len(sql) > 13 && sql[:13] == "DESCRIBE TABL":
		if !a.describeOK {
			return nil, &engine.Error{Kind: engine.KindNotFound, Message: "table not found"}
		}
		return describeRows(), nil
	case len(sql) > 12 && sql[:12] == "DESCRIBE VIE":
		if !a.describeOK {
			return nil, &engine.Error{Kind: engine.KindNotFound, Message: "view not found"}
		}
		return describeRows(), nil
	case len(sql) > 11 && sql[:11] == "SELECT * FR":
		return &engine.Result{RowCount: a.sampleRows}, nil
	case len(sql) > 6 && sql[:6] == "CREATE":
		return &engine.Result{}, nil
	}
	return &engine.Result{}, nil
}

func describeRows() *engine.Result {
	doc := DefaultDocument()
	var rows []engine.Row
	for _, col := range doc.LandingTable.Columns {
		rows = append(rows, engine.Row{"name": col.Name, "type": col.Type})
	}
	for _, col := range doc.Projection.Columns {
		rows = append(rows, engine.Row{"name": col.Name, "type": col.Type})
	}
	for _, col := range doc.ActivityView.Columns {
		rows = append(rows, engine.Row{"name": col.Name, "type": col.Type})
	}
	return &engine.Result{Rows: rows, RowCount: len(rows)}
}

func (a *fakeAdapter) Call(ctx context.Context, sess engine.Session, proc string, args ...interface{}) (*engine.Result, error) {
	return &engine.Result{}, nil
}
func (a *fakeAdapter) PutStage(ctx context.Context, sess engine.Session, stagePath string, data []byte) error {
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
func (a *fakeAdapter) Ping(ctx context.Context) error { return nil }

func TestCheckPassesWhenSchemaMatches(t *testing.T) {
	a := &fakeAdapter{describeOK: true, sampleRows: 1}
	s := New(zerolog.Nop(), a, DefaultDocument(), 0, false, nil)
	report := s.Check(context.Background())
	require.True(t, report.Passed)
	require.Equal(t, "ok", report.State)
}

func TestCheckFailsAndEmitsOnMissingTable(t *testing.T) {
	a := &fakeAdapter{describeOK: false, sampleRows: 1}
	var emittedAction string
	s := New(zerolog.Nop(), a, DefaultDocument(), 0, true, func(action string, attrs map[string]interface{}) {
		emittedAction = action
	})
	report := s.Check(context.Background())
	require.False(t, report.Passed)
	require.Equal(t, "blocked", report.State)
	require.Equal(t, "ccode.schema_violation", emittedAction)
}

func TestCheckNonStrictDegradesInsteadOfBlocking(t *testing.T) {
	a := &fakeAdapter{describeOK: false, sampleRows: 1}
	s := New(zerolog.Nop(), a, DefaultDocument(), 0, false, nil)
	report := s.Check(context.Background())
	require.False(t, report.Passed)
	require.Equal(t, "degraded", report.State)
}
