package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoadDocument reads a YAML catalog document from path, falling back to
// DefaultDocument if path is empty or the file does not exist.
func LoadDocument(path string) (Document, error) {
	if path == "" {
		return DefaultDocument(), nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultDocument(), nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("contract: read catalog %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("contract: parse catalog %s: %w", path, err)
	}
	return doc, nil
}

// ColumnDef names one expected column and its declared warehouse type.
type ColumnDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// TableContract is the expected shape of one table or view the sentinel
// verifies against the live warehouse.
type TableContract struct {
	Name    string      `yaml:"name"`
	Columns []ColumnDef `yaml:"columns"`
}

// Document is the full catalog document the Contract Sentinel loads at
// boot: the landing table, the derived projection, and the Activity view
// the dashboard layer reads from. It holds no budget or role data.
type Document struct {
	LandingTable   TableContract `yaml:"landing_table"`
	Projection     TableContract `yaml:"projection"`
	ActivityView   TableContract `yaml:"activity_view"`
}

// Hash computes a contract_hash over the three table contracts, with each
// table's columns sorted by name so column order does not change it.
// Sentinel.Check neither computes nor compares it.
func (d Document) Hash() string {
	h := sha256.New()
	writeTable := func(t TableContract) {
		fmt.Fprintf(h, "table:%s\n", t.Name)
		cols := make([]ColumnDef, len(t.Columns))
		copy(cols, t.Columns)
		sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
		for _, c := range cols {
			fmt.Fprintf(h, "col:%s:%s\n", c.Name, c.Type)
		}
	}
	writeTable(d.LandingTable)
	writeTable(d.Projection)
	writeTable(d.ActivityView)
	return hex.EncodeToString(h.Sum(nil))
}

// DefaultDocument returns the built-in contract for the two-table event
// model (the landing table, its derived projection, and the Activity view
// dashboards query) used when no external catalog file is configured.
func DefaultDocument() Document {
	return Document{
		LandingTable: TableContract{
			Name: "EVENT",
			Columns: []ColumnDef{
				{Name: "event_id", Type: "STRING"},
				{Name: "occurred_at", Type: "TIMESTAMP_NTZ"},
				{Name: "ingested_at", Type: "TIMESTAMP_NTZ"},
				{Name: "actor_id", Type: "STRING"},
				{Name: "action", Type: "STRING"},
				{Name: "object_type", Type: "STRING"},
				{Name: "object_id", Type: "STRING"},
				{Name: "source", Type: "STRING"},
				{Name: "session_id", Type: "STRING"},
				{Name: "idempotency_key", Type: "STRING"},
				{Name: "attributes", Type: "VARIANT"},
				{Name: "lane", Type: "STRING"},
			},
		},
		Projection: TableContract{
			Name: "EVENT_PROJECTION",
			Columns: []ColumnDef{
				{Name: "event_id", Type: "STRING"},
				{Name: "occurred_at", Type: "TIMESTAMP_NTZ"},
				{Name: "actor_id", Type: "STRING"},
				{Name: "action", Type: "STRING"},
				{Name: "session_id", Type: "STRING"},
				{Name: "attributes", Type: "VARIANT"},
			},
		},
		ActivityView: TableContract{
			Name: "ACTIVITY",
			Columns: []ColumnDef{
				{Name: "event_id", Type: "STRING"},
				{Name: "occurred_at", Type: "TIMESTAMP_NTZ"},
				{Name: "action", Type: "STRING"},
				{Name: "session_id", Type: "STRING"},
			},
		},
	}
}

// LandingTableDDL is the reference DDL for the single append-only landing
// table the Two-Table Invariant Gate permits writes against.
const LandingTableDDL = `
CREATE TABLE IF NOT EXISTS EVENT (
    event_id         STRING NOT NULL,
    occurred_at      TIMESTAMP_NTZ NOT NULL,
    ingested_at      TIMESTAMP_NTZ NOT NULL,
    actor_id         STRING,
    action           STRING NOT NULL,
    object_type      STRING,
    object_id        STRING,
    source           STRING NOT NULL,
    session_id       STRING,
    idempotency_key  STRING,
    attributes       VARIANT,
    lane             STRING
)
CLUSTER BY (DATE_TRUNC('day', occurred_at));
`

// ProjectionViewDDL derives EVENT_PROJECTION from EVENT, deduplicating on
// idempotency_key so a replayed or retried insert never double-counts.
const ProjectionViewDDL = `
CREATE OR REPLACE VIEW EVENT_PROJECTION AS
SELECT
    event_id,
    occurred_at,
    actor_id,
    action,
    session_id,
    attributes
FROM EVENT
QUALIFY ROW_NUMBER() OVER (
    PARTITION BY COALESCE(idempotency_key, event_id) ORDER BY ingested_at
) = 1;
`

// ActivityViewDDL is the narrower view dashboards query, intentionally
// exposing fewer columns than the full projection.
const ActivityViewDDL = `
CREATE OR REPLACE VIEW ACTIVITY AS
SELECT event_id, occurred_at, action, session_id
FROM EVENT_PROJECTION;
`
