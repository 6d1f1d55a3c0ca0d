package expressions

import (
	"github.com/rendis/blockflow/internal/labels"
	"github.com/rendis/blockflow/pkg/schema"
)

// CriteriaChecker dispatches branch criteria to the checker of their dialect.
// An empty criteria type is treated as jinja2_template. Prompt criteria are
// natural language and never checked.
type CriteriaChecker struct {
	template *TemplateChecker
	cel      *CELChecker
}

// NewCriteriaChecker builds a checker whose CEL environment declares vars.
func NewCriteriaChecker(vars []string) (*CriteriaChecker, error) {
	celChecker, err := NewCELChecker(vars)
	if err != nil {
		return nil, err
	}
	return &CriteriaChecker{
		template: NewTemplateChecker(),
		cel:      celChecker,
	}, nil
}

// Check validates one criteria. A nil criteria passes; whether a branch may
// omit its criteria is decided by the caller.
func (c *CriteriaChecker) Check(criteria *schema.BranchCriteria) error {
	if criteria == nil {
		return nil
	}
	switch criteria.CriteriaType {
	case "", schema.CriteriaJinja:
		return c.template.Check(criteria.Expression)
	case schema.CriteriaCEL:
		return c.cel.Check(criteria.Expression)
	case schema.CriteriaPrompt:
		return nil
	default:
		return schema.NewErrorf(schema.ErrCodeValidation,
			"unknown criteria type %q", criteria.CriteriaType).
			WithDetails(map[string]any{"criteria_type": string(criteria.CriteriaType)})
	}
}

// DefinitionVariables lists the names a criteria of def may reference: every
// parameter key and every block's output key.
func DefinitionVariables(def *schema.Definition) []string {
	if def == nil {
		return nil
	}
	vars := make([]string, 0, len(def.Parameters))
	for _, p := range def.Parameters {
		vars = append(vars, p.Key)
	}
	schema.Walk(def.Blocks, func(b schema.Block, _ int) bool {
		vars = append(vars, labels.OutputKey(b.Base().Label))
		return true
	})
	return vars
}
