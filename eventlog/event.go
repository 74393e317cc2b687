// Package eventlog implements the Event Log Client (C2): idempotent event
// emission with validation, compression, a circuit breaker, a disk spool
// fallback, and timed/size-based flush.
package eventlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source enumerates where an event originated.
type Source string

const (
	SourceClaudeCode Source = "CLAUDE_CODE"
	SourceSystem     Source = "SYSTEM"
	SourceApplication Source = "APPLICATION"
	SourceTest       Source = "TEST"
)

// Lane is the ingestion lane used for fan-out accounting.
type Lane string

const (
	LaneDev  Lane = "dev"
	LaneTest Lane = "test"
	LaneProd Lane = "prod"
)

// approvedPrefixes is the namespace whitelist enforced at validation (I4, §6.7).
var approvedPrefixes = []string{"ccode.", "system.", "quality.", "dashboard."}

// ObjectRef is an optional pointer to the event's subject.
type ObjectRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Event is the only first-class write in the system (§3.1).
type Event struct {
	EventID        string                 `json:"event_id"`
	OccurredAt     time.Time              `json:"occurred_at"`
	IngestedAt     time.Time              `json:"ingested_at,omitempty"`
	ActorID        string                 `json:"actor_id"`
	Action         string                 `json:"action"`
	Object         *ObjectRef             `json:"object,omitempty"`
	Source         Source                 `json:"source"`
	SessionID      string                 `json:"session_id"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
	Lane           Lane                   `json:"_lane,omitempty"`

	// Meta carries redaction counts and other pipeline-added bookkeeping (§4.2 PII redaction).
	Meta map[string]interface{} `json:"_meta,omitempty"`
}

// RejectReason explains why the validator dropped an event.
type RejectReason string

const (
	RejectMissingAction     RejectReason = "missing_action"
	RejectMissingSession    RejectReason = "missing_session_id"
	RejectTooLarge          RejectReason = "event_too_large"
	RejectUnknownNamespace  RejectReason = "unknown_action_namespace"
)

// Validate checks an event against the boundary rules in §4.2.
// It returns "" (ok) or the rejection reason.
func Validate(e *Event, maxBytes int) RejectReason {
	if strings.TrimSpace(e.Action) == "" {
		return RejectMissingAction
	}
	if strings.TrimSpace(e.SessionID) == "" {
		return RejectMissingSession
	}
	if !hasApprovedPrefix(e.Action) {
		return RejectUnknownNamespace
	}
	if size(e) > maxBytes {
		return RejectTooLarge
	}
	return ""
}

func hasApprovedPrefix(action string) bool {
	for _, p := range approvedPrefixes {
		if strings.HasPrefix(action, p) {
			return true
		}
	}
	return false
}

func size(e *Event) int {
	b, err := json.Marshal(e)
	if err != nil {
		return 0
	}
	return len(b)
}

// EnsureIdentity fills EventID and IdempotencyKey when the caller omitted them.
func EnsureIdentity(e *Event) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if e.IdempotencyKey == "" {
		e.IdempotencyKey = IdempotencyKey(e.Action, e.SessionID, e.OccurredAt, e.Attributes)
	}
}

// IdempotencyKey computes a stable hash over (action, session_id, occurred_at,
// canonicalized(attributes)) per I3 / §4.2.
func IdempotencyKey(action, sessionID string, occurredAt time.Time, attrs map[string]interface{}) string {
	h := sha256.New()
	h.Write([]byte(action))
	h.Write([]byte{0})
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(occurredAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})
	h.Write(canonicalize(attrs))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalize produces a deterministic byte representation of a semi-structured
// attribute bag: keys sorted, nested maps recursively canonicalized.
func canonicalize(v interface{}) []byte {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			b.Write(canonicalize(t[k]))
		}
		b.WriteByte('}')
		return []byte(b.String())
	case []interface{}:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			b.Write(canonicalize(item))
		}
		b.WriteByte(']')
		return []byte(b.String())
	default:
		b, _ := json.Marshal(t)
		return b
	}
}
