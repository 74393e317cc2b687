/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L3
Logic:       Deterministic regex fallback for NL→QueryPlan
             compilation: a priority-ordered keyphrase table,
             evaluated top-down, first match wins — the same
             evaluation shape as a routing-rule engine.
Context:     Used when no LLM compiler is configured, or when the
             LLM path errors; always available so compose_query_plan
             never depends solely on an external model being up.
Suitability: L3 — pattern table plus source/measure inference.
──────────────────────────────────────────────────────────────
*/

package planner

import (
	"regexp"
	"strconv"
	"strings"
)

// keyphraseRule is one entry in the regex fallback table. Evaluated in
// order; the first rule whose pattern matches nl wins.
type keyphraseRule struct {
	pattern  *regexp.Regexp
	template string
	build    func(m []string, catalog *Catalog) *QueryPlan
}

var keyphraseTable = []keyphraseRule{
	{
		pattern:  regexp.MustCompile(`(?i)^describe\s+(\w+)$`),
		template: "describe_source",
		build: func(m []string, catalog *Catalog) *QueryPlan {
			return &QueryPlan{Source: m[1], Template: "describe_source"}
		},
	},
	{
		pattern:  regexp.MustCompile(`(?i)^(?:show|sample)\s+(?:a\s+)?sample\s+(?:of\s+)?(\w+)$`),
		template: "sample_top",
		build: func(m []string, catalog *Catalog) *QueryPlan {
			return &QueryPlan{Source: m[1], Template: "sample_top", TopN: 10}
		},
	},
	{
		pattern:  regexp.MustCompile(`(?i)^top\s+(\d+)\s+(\w+)\s+by\s+(\w+)$`),
		template: "top_n",
		build: func(m []string, catalog *Catalog) *QueryPlan {
			n, _ := strconv.Atoi(m[1])
			return &QueryPlan{
				Source:   m[2],
				Template: "top_n",
				TopN:     n,
				Measures: []string{m[3]},
				OrderBy:  []OrderTerm{{Column: m[3], Desc: true}},
			}
		},
	},
	{
		pattern:  regexp.MustCompile(`(?i)^(\w+)\s+(?:over\s+time|trend|time\s+series)(?:\s+for\s+the\s+last\s+(\d+[a-z]+))?$`),
		template: "time_series",
		build: func(m []string, catalog *Catalog) *QueryPlan {
			last := "7d"
			if len(m) > 2 && m[2] != "" {
				last = m[2]
			}
			return &QueryPlan{
				Source:   m[1],
				Template: "time_series",
				Measures: []string{"count"},
				Window:   &Window{Last: last, Bucket: "day"},
			}
		},
	},
	{
		pattern:  regexp.MustCompile(`(?i)^(\w+)\s+by\s+(\w+)$`),
		template: "breakdown",
		build: func(m []string, catalog *Catalog) *QueryPlan {
			return &QueryPlan{
				Source:   m[1],
				Template: "breakdown",
				GroupBy:  []string{m[2]},
				Measures: []string{"count"},
			}
		},
	},
	{
		pattern:  regexp.MustCompile(`(?i)^compare\s+(\w+)\s+between\s+(\S+)\s+and\s+(\S+)\s+on\s+(\w+)$`),
		template: "comparison",
		build: func(m []string, catalog *Catalog) *QueryPlan {
			return &QueryPlan{
				Source:   m[1],
				Template: "comparison",
				Measures: []string{"count"},
				Filters: []Filter{
					{Column: m[4], Operator: "eq", Value: m[2]},
					{Column: m[4], Operator: "eq", Value: m[3]},
				},
			}
		},
	},
}

// compileWithRegexFallback evaluates nl against keyphraseTable top-down.
// Returns (nil, clarification) when the input loosely matches a source name
// but no shape, so the caller gets candidates instead of a guess.
func compileWithRegexFallback(nl string, catalog *Catalog) (*QueryPlan, *NeedsClarification) {
	trimmed := strings.TrimSpace(nl)
	for _, rule := range keyphraseTable {
		if m := rule.pattern.FindStringSubmatch(trimmed); m != nil {
			return rule.build(m, catalog), nil
		}
	}

	if mentioned := mentionedSources(trimmed, catalog); len(mentioned) > 0 {
		return nil, &NeedsClarification{
			Question:   "Which view of " + strings.Join(mentioned, ", ") + " did you want — a sample, a trend, or a breakdown?",
			Candidates: mentioned,
		}
	}
	return nil, nil
}

func mentionedSources(nl string, catalog *Catalog) []string {
	lower := strings.ToLower(nl)
	var found []string
	for _, s := range catalog.Sources {
		if strings.Contains(lower, strings.ToLower(s.Name)) {
			found = append(found, s.Name)
		}
	}
	return found
}
