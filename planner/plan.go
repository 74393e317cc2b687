package planner

import "time"

// Filter is a single equality/range predicate bound to a known dimension.
type Filter struct {
	Column   string      `json:"column"`
	Operator string      `json:"operator"` // eq, neq, gt, gte, lt, lte, in
	Value    interface{} `json:"value"`
}

// OrderTerm is one ORDER BY clause entry.
type OrderTerm struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc"`
}

// Window bounds a time-series template to a relative or absolute range.
type Window struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
	Last string    `json:"last,omitempty"` // e.g. "7d", "24h"
	Bucket string  `json:"bucket,omitempty"` // e.g. "hour", "day"
}

// QueryPlan is the validated, fully-resolved intent that the guarded
// executor renders into a SafeSQL template. It never carries raw SQL text.
type QueryPlan struct {
	Source     string                 `json:"source"`
	Template   string                 `json:"template"`
	Dimensions []string               `json:"dimensions,omitempty"`
	Measures   []string               `json:"measures,omitempty"`
	Filters    []Filter               `json:"filters,omitempty"`
	GroupBy    []string               `json:"group_by,omitempty"`
	OrderBy    []OrderTerm            `json:"order_by,omitempty"`
	TopN       int                    `json:"top_n,omitempty"`
	Window     *Window                `json:"window,omitempty"`
	Params     map[string]interface{} `json:"params,omitempty"`
}

// NeedsClarification is returned instead of a plan when the compiled intent
// is ambiguous enough that the caller should be asked to pick among
// Candidates rather than having the planner guess.
type NeedsClarification struct {
	Question   string   `json:"question"`
	Candidates []string `json:"candidates"`
}

func (n *NeedsClarification) Error() string {
	return "planner: needs clarification: " + n.Question
}
