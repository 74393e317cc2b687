/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       Two-Table Invariant Gate: a lexical scanner that
             rejects any statement creating a table outside the
             landing table, or writing outside it, while allowing
             views, dynamic tables, tasks, stages, and stored
             procedures. Keeps an evaluation log the way a
             policy-decision engine would, with an optional
             dry-run mode for rollout.
Context:     Invoked by the guarded executor and the dashboard
             factory before any DDL-shaped engine call (C4/C5).
Suitability: L3 — statement classification with enforcement mode.
──────────────────────────────────────────────────────────────
*/

package invariant

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// ViolationKind classifies why a statement was rejected.
type ViolationKind string

const (
	ViolationExtraTable         ViolationKind = "extra_table"
	ViolationWriteOutsideLanding ViolationKind = "write_outside_landing"
)

// Violation is returned when Check rejects a statement.
type Violation struct {
	Kind      ViolationKind
	Statement string
}

func (v *Violation) Error() string {
	return "invariant: " + string(v.Kind) + ": " + v.Statement
}

// EvaluationRecord is one entry in the gate's evaluation log, mirroring the
// decision-logging shape a policy engine keeps for audit.
type EvaluationRecord struct {
	Statement string
	Allowed   bool
	Violation *Violation
	At        time.Time
}

var (
	createTablePattern = regexp.MustCompile(`(?is)^\s*CREATE\s+(OR\s+REPLACE\s+)?TABLE\s+([a-zA-Z0-9_."]+)`)
	writePattern       = regexp.MustCompile(`(?is)^\s*(INSERT\s+INTO|UPDATE|DELETE\s+FROM|MERGE\s+INTO|TRUNCATE\s+TABLE|COPY\s+INTO)\s+([a-zA-Z0-9_."]+)`)
	allowedDDLPattern  = regexp.MustCompile(`(?is)^\s*CREATE\s+(OR\s+REPLACE\s+)?(SECURE\s+)?(VIEW|DYNAMIC\s+TABLE|TASK|STAGE|PROCEDURE|FUNCTION|STREAMLIT)\b`)
)

// Gate enforces the two-table invariant: the landing table is the only
// table any statement may create or write to (I1). Everything else —
// views, dynamic tables, tasks, stages, stored procedures — passes through
// untouched, since those are derivations, not additional first-class
// writable state.
type Gate struct {
	landingTable string
	strict       bool

	mu  sync.Mutex
	log []EvaluationRecord
}

// New builds a Gate bound to the single landing table name. When strict is
// false the gate records violations but still allows the statement through
// (useful for a rollout / dry-run period before enforcement flips on).
func New(landingTable string, strict bool) *Gate {
	return &Gate{landingTable: landingTable, strict: strict}
}

// Check classifies sql and, in strict mode, returns a *Violation if it
// would create a table other than the landing table or write outside it.
func (g *Gate) Check(sql string) error {
	trimmed := strings.TrimSpace(sql)

	var violation *Violation
	switch {
	case allowedDDLPattern.MatchString(trimmed):
		// views/dynamic tables/tasks/stages/procs/functions/apps: always fine.
	case createTablePattern.MatchString(trimmed):
		if m := createTablePattern.FindStringSubmatch(trimmed); m != nil && !g.isLanding(m[2]) {
			violation = &Violation{Kind: ViolationExtraTable, Statement: trimmed}
		}
	case writePattern.MatchString(trimmed):
		if m := writePattern.FindStringSubmatch(trimmed); m != nil && !g.isLanding(m[2]) {
			violation = &Violation{Kind: ViolationWriteOutsideLanding, Statement: trimmed}
		}
	}

	g.record(trimmed, violation)

	if violation != nil && g.strict {
		return violation
	}
	return nil
}

func (g *Gate) isLanding(table string) bool {
	table = strings.Trim(table, `"`)
	target := strings.Trim(g.landingTable, `"`)
	return strings.EqualFold(lastSegment(table), lastSegment(target))
}

func lastSegment(qualified string) string {
	parts := strings.Split(qualified, ".")
	return parts[len(parts)-1]
}

func (g *Gate) record(statement string, violation *Violation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log = append(g.log, EvaluationRecord{
		Statement: statement,
		Allowed:   violation == nil,
		Violation: violation,
		At:        time.Now().UTC(),
	})
	if len(g.log) > 1000 {
		g.log = g.log[len(g.log)-1000:]
	}
}

// Log returns a copy of the recent evaluation log.
func (g *Gate) Log() []EvaluationRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]EvaluationRecord, len(g.log))
	copy(out, g.log)
	return out
}
