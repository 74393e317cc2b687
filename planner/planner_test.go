package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	c := &Catalog{
		Sources: []SourceDef{
			{Name: "events", Table: "event_projection", Dimensions: []string{"action", "actor_id"}, Measures: []string{"count"}},
		},
		Templates: DefaultTemplates,
	}
	c.index()
	return c
}

func TestRegexFallbackTopN(t *testing.T) {
	plan, clarify := compileWithRegexFallback("top 5 events by count", testCatalog())
	require.Nil(t, clarify)
	require.NotNil(t, plan)
	require.Equal(t, "top_n", plan.Template)
	require.Equal(t, 5, plan.TopN)
	require.Equal(t, "events", plan.Source)
}

func TestRegexFallbackBreakdown(t *testing.T) {
	plan, clarify := compileWithRegexFallback("events by action", testCatalog())
	require.Nil(t, clarify)
	require.Equal(t, "breakdown", plan.Template)
	require.Equal(t, []string{"action"}, plan.GroupBy)
}

func TestValidateRejectsUnknownSource(t *testing.T) {
	err := Validate(&QueryPlan{Source: "nope", Template: "describe_source"}, testCatalog(), 1000)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ViolationUnknownSource, verr.Kind)
}

func TestValidateRejectsUnknownColumn(t *testing.T) {
	plan := &QueryPlan{Source: "events", Template: "breakdown", GroupBy: []string{"nonexistent"}}
	err := Validate(plan, testCatalog(), 1000)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ViolationUnknownColumn, verr.Kind)
}

func TestValidateRejectsOutOfBudget(t *testing.T) {
	plan := &QueryPlan{Source: "events", Template: "top_n", TopN: 50000, Measures: []string{"count"}}
	err := Validate(plan, testCatalog(), 1000)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ViolationOutOfBudget, verr.Kind)
}

func TestCompilerFallsBackWhenLLMErrors(t *testing.T) {
	catalog := testCatalog()
	failingLLM := func(ctx context.Context, nl string, c *Catalog) (*QueryPlan, *NeedsClarification, error) {
		return nil, nil, assertErr
	}
	comp := NewCompiler(catalog, 1000, failingLLM)
	plan, clarify, err := comp.Compile(context.Background(), "top 3 events by count")
	require.NoError(t, err)
	require.Nil(t, clarify)
	require.Equal(t, "top_n", plan.Template)
}

var assertErr = &ValidationError{Kind: ViolationTemplateMismatch, Detail: "forced failure"}
