package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/riverreach/ledgerview/engine"
)

// LogSink writes events as structured JSON logs; useful in development or
// as a last-resort fallback when the landing table is unreachable.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("sink", "log").Logger()}
}

func (s *LogSink) WriteEvents(_ context.Context, events []Event) error {
	for _, e := range events {
		data, _ := json.Marshal(e)
		s.logger.Debug().RawJSON("event", data).Msg("event")
	}
	return nil
}

// LandingTableSink appends events to the single append-only landing table
// (I1) via the Execution-Engine Adapter.
type LandingTableSink struct {
	adapter engine.Adapter
	session engine.Session
	table   string
}

// NewLandingTableSink builds a sink that writes through adapter using sess
// as the bound role/warehouse/schema.
func NewLandingTableSink(adapter engine.Adapter, sess engine.Session, table string) *LandingTableSink {
	return &LandingTableSink{adapter: adapter, session: sess, table: table}
}

const insertEventSQL = `
INSERT INTO %s
  (event_id, occurred_at, ingested_at, actor_id, action, object_type, object_id,
   source, session_id, idempotency_key, attributes, lane)
SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, PARSE_JSON(?), ?
WHERE NOT EXISTS (
  SELECT 1 FROM %s WHERE idempotency_key = ?
)`

// WriteEvents inserts each event idempotently: a row is skipped outright if
// its idempotency_key is already present, which is what makes at-least-once
// redelivery safe (I3).
func (s *LandingTableSink) WriteEvents(ctx context.Context, events []Event) error {
	for _, e := range events {
		var objType, objID string
		if e.Object != nil {
			objType, objID = e.Object.Type, e.Object.ID
		}
		attrsJSON, err := json.Marshal(e.Attributes)
		if err != nil {
			return err
		}
		sql := fmt.Sprintf(insertEventSQL, s.table, s.table)
		if _, err := s.adapter.Exec(ctx, s.session, sql,
			e.EventID, e.OccurredAt, e.IngestedAt, e.ActorID, e.Action, objType, objID,
			string(e.Source), e.SessionID, e.IdempotencyKey, string(attrsJSON), string(e.Lane),
			e.IdempotencyKey,
		); err != nil {
			return err
		}
	}
	return nil
}
