package invariant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGateAllowsLandingTableWrites(t *testing.T) {
	g := New("event_log", true)
	require.NoError(t, g.Check("INSERT INTO event_log (event_id) VALUES (?)"))
	require.NoError(t, g.Check(`CREATE OR REPLACE TABLE "EVENT_LOG" (event_id STRING)`))
}

func TestGateRejectsExtraTable(t *testing.T) {
	g := New("event_log", true)
	err := g.Check("CREATE TABLE shadow_copy (event_id STRING)")
	var v *Violation
	require.ErrorAs(t, err, &v)
	require.Equal(t, ViolationExtraTable, v.Kind)
}

func TestGateRejectsWriteOutsideLanding(t *testing.T) {
	g := New("event_log", true)
	err := g.Check("INSERT INTO some_other_table (x) VALUES (1)")
	var v *Violation
	require.ErrorAs(t, err, &v)
	require.Equal(t, ViolationWriteOutsideLanding, v.Kind)
}

func TestGateAllowsViewsAndTasks(t *testing.T) {
	g := New("event_log", true)
	require.NoError(t, g.Check("CREATE OR REPLACE VIEW event_projection AS SELECT * FROM event_log"))
	require.NoError(t, g.Check("CREATE OR REPLACE DYNAMIC TABLE event_projection TARGET_LAG = '1 minute' AS SELECT * FROM event_log"))
	require.NoError(t, g.Check("CREATE OR REPLACE TASK refresh_projection SCHEDULE = '5 MINUTE' AS CALL refresh()"))
}

func TestGateNonStrictModeLogsButAllows(t *testing.T) {
	g := New("event_log", false)
	err := g.Check("CREATE TABLE shadow_copy (x STRING)")
	require.NoError(t, err)
	log := g.Log()
	require.Len(t, log, 1)
	require.False(t, log[0].Allowed)
}
