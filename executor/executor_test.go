package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riverreach/ledgerview/planner"
)

func TestSettleRejectsOverBudgetUsage(t *testing.T) {
	store := NewReservationStore()
	budget := Budget{Role: "VIEWER", MaxRows: 100, MaxRuntime: 1000, MaxBytes: 1000}
	store.Reserve("r1", "caller-1", budget)

	err := store.Settle("r1", Usage{Rows: 500})
	var over *ErrOverBudget
	require.ErrorAs(t, err, &over)
}

func TestSettleAllowsWithinBudgetUsage(t *testing.T) {
	store := NewReservationStore()
	budget := Budget{Role: "VIEWER", MaxRows: 100, MaxRuntime: 1000, MaxBytes: 1000}
	store.Reserve("r2", "caller-1", budget)

	err := store.Settle("r2", Usage{Rows: 50, Bytes: 10})
	require.NoError(t, err)
}

func TestRenderTopNAppliesTieBreakSuffixes(t *testing.T) {
	plan := &planner.QueryPlan{
		Source:   "events",
		Template: "top_n",
		TopN:     10,
		Measures: []string{"count", "count"},
	}
	sql, binds, err := Render(plan, "event_projection")
	require.NoError(t, err)
	require.Contains(t, sql, "count AS count_2")
	require.Equal(t, []interface{}{10}, binds)
}

func TestRenderBreakdownGroupsByDimension(t *testing.T) {
	plan := &planner.QueryPlan{
		Source:   "events",
		Template: "breakdown",
		GroupBy:  []string{"action"},
		Measures: []string{"count"},
	}
	sql, _, err := Render(plan, "event_projection")
	require.NoError(t, err)
	require.Contains(t, sql, "GROUP BY action")
}
