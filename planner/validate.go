package planner

import "fmt"

// ViolationKind classifies why a plan failed validation against the catalog.
type ViolationKind string

const (
	ViolationUnknownSource    ViolationKind = "unknown_source"
	ViolationUnknownColumn    ViolationKind = "unknown_column"
	ViolationTemplateMismatch ViolationKind = "template_mismatch"
	ViolationOutOfBudget      ViolationKind = "out_of_budget"
)

// ValidationError reports a single whitelist violation.
type ValidationError struct {
	Kind   ViolationKind
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("planner: %s: %s", e.Kind, e.Detail)
}

// Validate checks plan against the catalog's whitelist: the source must
// exist, every referenced dimension/measure must belong to it, the template
// must be one of the enumerated SafeSQL templates, and top_n must respect
// the maxRows ceiling.
func Validate(plan *QueryPlan, catalog *Catalog, maxRows int) error {
	src, ok := catalog.Source(plan.Source)
	if !ok {
		return &ValidationError{Kind: ViolationUnknownSource, Detail: plan.Source}
	}

	if !catalog.HasTemplate(plan.Template) {
		return &ValidationError{Kind: ViolationTemplateMismatch, Detail: plan.Template}
	}

	for _, d := range plan.Dimensions {
		if !src.HasDimension(d) {
			return &ValidationError{Kind: ViolationUnknownColumn, Detail: d}
		}
	}
	for _, d := range plan.GroupBy {
		if !src.HasDimension(d) {
			return &ValidationError{Kind: ViolationUnknownColumn, Detail: d}
		}
	}
	for _, o := range plan.OrderBy {
		if !src.HasDimension(o.Column) && !src.HasMeasure(o.Column) {
			return &ValidationError{Kind: ViolationUnknownColumn, Detail: o.Column}
		}
	}
	for _, m := range plan.Measures {
		if !src.HasMeasure(m) {
			return &ValidationError{Kind: ViolationUnknownColumn, Detail: m}
		}
	}
	for _, f := range plan.Filters {
		if !src.HasDimension(f.Column) && !src.HasMeasure(f.Column) {
			return &ValidationError{Kind: ViolationUnknownColumn, Detail: f.Column}
		}
	}

	if err := validateTemplateShape(plan); err != nil {
		return err
	}

	if plan.TopN > maxRows {
		return &ValidationError{Kind: ViolationOutOfBudget, Detail: fmt.Sprintf("top_n %d exceeds max_rows %d", plan.TopN, maxRows)}
	}

	return nil
}

// validateTemplateShape enforces the minimum fields each SafeSQL template
// requires so the executor never has to guess at render time.
func validateTemplateShape(plan *QueryPlan) error {
	switch plan.Template {
	case "top_n":
		if plan.TopN <= 0 {
			return &ValidationError{Kind: ViolationTemplateMismatch, Detail: "top_n requires a positive top_n"}
		}
		if len(plan.Measures) == 0 {
			return &ValidationError{Kind: ViolationTemplateMismatch, Detail: "top_n requires at least one measure"}
		}
	case "time_series":
		if plan.Window == nil {
			return &ValidationError{Kind: ViolationTemplateMismatch, Detail: "time_series requires a window"}
		}
		if len(plan.Measures) == 0 {
			return &ValidationError{Kind: ViolationTemplateMismatch, Detail: "time_series requires at least one measure"}
		}
	case "breakdown":
		if len(plan.GroupBy) == 0 {
			return &ValidationError{Kind: ViolationTemplateMismatch, Detail: "breakdown requires group_by"}
		}
	case "comparison":
		if len(plan.Filters) < 2 {
			return &ValidationError{Kind: ViolationTemplateMismatch, Detail: "comparison requires at least two filters to compare across"}
		}
	case "sample_top", "describe_source":
		// no additional shape requirements
	default:
		return &ValidationError{Kind: ViolationTemplateMismatch, Detail: plan.Template}
	}
	return nil
}
