package dashboard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Panel is one tile of a dashboard: a rendered query plan plus layout.
type Panel struct {
	ID     string                 `json:"id"`
	Title  string                 `json:"title"`
	Plan   map[string]interface{} `json:"plan"`
	Row    int                    `json:"row"`
	Col    int                    `json:"col"`
	Width  int                    `json:"width"`
	Height int                    `json:"height"`
}

// Spec is the full declarative description of one dashboard (§3 DashboardSpec).
type Spec struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Owner       string  `json:"owner"`
	Freshness   string  `json:"freshness"` // e.g. "15min", "1h", "1day", or a cron expression
	Panels      []Panel `json:"panels"`
}

// Hash computes a stable content address for spec: panels are sorted by ID,
// each panel's plan map keys are sorted, runs of whitespace in the
// description and panel titles are collapsed, and name, owner and
// freshness are trimmed — so two specs that differ only in panel ordering
// or in that whitespace hash identically (I6). Panel IDs and plan values
// are hashed as given.
func (s Spec) Hash() string {
	canon := canonicalSpec{
		Name:        strings.TrimSpace(s.Name),
		Description: normalizeWhitespace(s.Description),
		Owner:       strings.TrimSpace(s.Owner),
		Freshness:   strings.TrimSpace(s.Freshness),
	}
	panels := make([]Panel, len(s.Panels))
	copy(panels, s.Panels)
	sort.Slice(panels, func(i, j int) bool { return panels[i].ID < panels[j].ID })
	for _, p := range panels {
		canon.Panels = append(canon.Panels, canonicalPanel{
			ID:     p.ID,
			Title:  normalizeWhitespace(p.Title),
			Plan:   canonicalizeMap(p.Plan),
			Row:    p.Row,
			Col:    p.Col,
			Width:  p.Width,
			Height: p.Height,
		})
	}

	b, _ := json.Marshal(canon)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type canonicalSpec struct {
	Name        string
	Description string
	Owner       string
	Freshness   string
	Panels      []canonicalPanel
}

type canonicalPanel struct {
	ID     string
	Title  string
	Plan   string
	Row    int
	Col    int
	Width  int
	Height int
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// canonicalizeMap renders a plan map with sorted keys so field order never
// affects the hash.
func canonicalizeMap(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
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
		v, _ := json.Marshal(m[k])
		b.Write(v)
	}
	b.WriteByte('}')
	return b.String()
}
