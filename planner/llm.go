package planner

import "context"

// CompileFunc is the pluggable NL→QueryPlan compiler. A production instance
// wraps an LLM call; tests and the fallback path supply deterministic
// stand-ins. Returning (nil, clarification, nil) means the question was
// ambiguous enough that the caller should be asked to disambiguate among
// clarification.Candidates instead of guessing.
type CompileFunc func(ctx context.Context, nl string, catalog *Catalog) (*QueryPlan, *NeedsClarification, error)

// Compiler resolves a natural-language question into a validated QueryPlan,
// preferring an LLM-backed CompileFunc and falling back to the deterministic
// regex table when none is configured or the LLM call errors.
type Compiler struct {
	catalog *Catalog
	llm     CompileFunc
	maxRows int
}

// NewCompiler builds a Compiler. llm may be nil, in which case every
// question resolves through the regex fallback only.
func NewCompiler(catalog *Catalog, maxRows int, llm CompileFunc) *Compiler {
	return &Compiler{catalog: catalog, llm: llm, maxRows: maxRows}
}

// Compile resolves nl into a validated plan, or a NeedsClarification, or an
// error. The LLM path is tried first; any error from it (including a
// context timeout) falls through to the regex table rather than failing the
// whole request, since the regex table is always available.
func (c *Compiler) Compile(ctx context.Context, nl string) (*QueryPlan, *NeedsClarification, error) {
	if c.llm != nil {
		plan, clarify, err := c.llm(ctx, nl, c.catalog)
		if err == nil {
			if clarify != nil {
				return nil, clarify, nil
			}
			if verr := Validate(plan, c.catalog, c.maxRows); verr != nil {
				return nil, nil, verr
			}
			return plan, nil, nil
		}
	}

	plan, clarify := compileWithRegexFallback(nl, c.catalog)
	if clarify != nil {
		return nil, clarify, nil
	}
	if plan == nil {
		return nil, &NeedsClarification{
			Question:   "I could not determine what to query from that phrasing.",
			Candidates: sourceNames(c.catalog),
		}, nil
	}
	if err := Validate(plan, c.catalog, c.maxRows); err != nil {
		return nil, nil, err
	}
	return plan, nil, nil
}

func sourceNames(catalog *Catalog) []string {
	names := make([]string, 0, len(catalog.Sources))
	for _, s := range catalog.Sources {
		names = append(names, s.Name)
	}
	return names
}
