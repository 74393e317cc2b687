package executor

import (
	"fmt"
	"strings"

	"github.com/riverreach/ledgerview/planner"
)

// Render turns a validated plan into a SafeSQL statement and its bound
// parameters. This is the only place in the system that builds SQL text,
// and every identifier it interpolates has already been checked against the
// catalog by planner.Validate — user-authored text never reaches here,
// only bound values do.
func Render(plan *planner.QueryPlan, table string) (string, []interface{}, error) {
	switch plan.Template {
	case "describe_source":
		return renderDescribeSource(table), nil, nil
	case "sample_top":
		return renderSampleTop(plan, table)
	case "top_n":
		return renderTopN(plan, table)
	case "time_series":
		return renderTimeSeries(plan, table)
	case "breakdown":
		return renderBreakdown(plan, table)
	case "comparison":
		return renderComparison(plan, table)
	default:
		return "", nil, fmt.Errorf("executor: unknown template %q", plan.Template)
	}
}

func renderDescribeSource(table string) string {
	return fmt.Sprintf("DESCRIBE TABLE %s", table)
}

func renderSampleTop(plan *planner.QueryPlan, table string) (string, []interface{}, error) {
	n := plan.TopN
	if n <= 0 {
		n = 10
	}
	cols := selectList(plan.Dimensions, plan.Measures)
	where, binds := renderFilters(plan.Filters)
	sql := fmt.Sprintf("SELECT %s FROM %s%s LIMIT ?", cols, table, where)
	binds = append(binds, n)
	return sql, binds, nil
}

func renderTopN(plan *planner.QueryPlan, table string) (string, []interface{}, error) {
	cols := selectList(plan.Dimensions, plan.Measures)
	where, binds := renderFilters(plan.Filters)
	order := renderOrderBy(plan.OrderBy, plan.Measures)
	sql := fmt.Sprintf("SELECT %s FROM %s%s%s LIMIT ?", cols, table, where, order)
	binds = append(binds, plan.TopN)
	return sql, binds, nil
}

func renderTimeSeries(plan *planner.QueryPlan, table string) (string, []interface{}, error) {
	bucket := "day"
	if plan.Window != nil && plan.Window.Bucket != "" {
		bucket = plan.Window.Bucket
	}
	cols := selectList(nil, plan.Measures)
	where, binds := renderFilters(plan.Filters)
	timeFilter := ""
	if plan.Window != nil && plan.Window.Last != "" {
		timeFilter = fmt.Sprintf("DATE_TRUNC('%s', occurred_at) >= DATEADD(%s, ?, CURRENT_TIMESTAMP())", bucket, bucketUnit(plan.Window.Last))
		if where == "" {
			where = " WHERE " + timeFilter
		} else {
			where += " AND " + timeFilter
		}
		binds = append(binds, -windowMagnitude(plan.Window.Last))
	}
	sql := fmt.Sprintf(
		"SELECT DATE_TRUNC('%s', occurred_at) AS bucket, %s FROM %s%s GROUP BY bucket ORDER BY bucket",
		bucket, cols, table, where,
	)
	return sql, binds, nil
}

func renderBreakdown(plan *planner.QueryPlan, table string) (string, []interface{}, error) {
	group := strings.Join(plan.GroupBy, ", ")
	cols := selectList(plan.GroupBy, plan.Measures)
	where, binds := renderFilters(plan.Filters)
	order := renderOrderBy(plan.OrderBy, plan.Measures)
	sql := fmt.Sprintf("SELECT %s FROM %s%s GROUP BY %s%s", cols, table, where, group, order)
	return sql, binds, nil
}

func renderComparison(plan *planner.QueryPlan, table string) (string, []interface{}, error) {
	cols := selectList(plan.Dimensions, plan.Measures)
	where, binds := renderFilters(plan.Filters)
	sql := fmt.Sprintf("SELECT %s FROM %s%s", cols, table, where)
	return sql, binds, nil
}

// selectList builds the SELECT column list, applying the tie-break suffix
// rule when a measure name would otherwise collide with a dimension name or
// another measure already in the list: the Nth duplicate gets _2, _3, ...
func selectList(dims, measures []string) string {
	seen := map[string]int{}
	cols := make([]string, 0, len(dims)+len(measures))
	add := func(name string) {
		seen[name]++
		if seen[name] == 1 {
			cols = append(cols, name)
			return
		}
		cols = append(cols, fmt.Sprintf("%s AS %s_%d", name, name, seen[name]))
	}
	for _, d := range dims {
		add(d)
	}
	for _, m := range measures {
		add(m)
	}
	if len(cols) == 0 {
		return "*"
	}
	return strings.Join(cols, ", ")
}

func renderFilters(filters []planner.Filter) (string, []interface{}) {
	if len(filters) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filters))
	binds := make([]interface{}, 0, len(filters))
	for _, f := range filters {
		op, ok := sqlOperator(f.Operator)
		if !ok {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", f.Column, op))
		binds = append(binds, f.Value)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), binds
}

func sqlOperator(op string) (string, bool) {
	switch op {
	case "eq":
		return "=", true
	case "neq":
		return "!=", true
	case "gt":
		return ">", true
	case "gte":
		return ">=", true
	case "lt":
		return "<", true
	case "lte":
		return "<=", true
	case "in":
		return "IN", true
	default:
		return "", false
	}
}

// renderOrderBy emits the caller's ORDER BY, or a deterministic default
// (first measure, descending) when none was specified — the tie-break rule
// that keeps top_n/breakdown output stable across identical plans.
func renderOrderBy(order []planner.OrderTerm, measures []string) string {
	if len(order) > 0 {
		terms := make([]string, len(order))
		for i, o := range order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms[i] = fmt.Sprintf("%s %s", o.Column, dir)
		}
		return " ORDER BY " + strings.Join(terms, ", ")
	}
	if len(measures) > 0 {
		return fmt.Sprintf(" ORDER BY %s DESC", measures[0])
	}
	return ""
}

func bucketUnit(last string) string {
	switch {
	case strings.HasSuffix(last, "h"):
		return "hour"
	case strings.HasSuffix(last, "d"):
		return "day"
	case strings.HasSuffix(last, "w"):
		return "week"
	default:
		return "day"
	}
}

func windowMagnitude(last string) int {
	n := 0
	for _, r := range last {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 7
	}
	return n
}
