package expressions

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rendis/blockflow/internal/labels"
	"github.com/rendis/blockflow/pkg/schema"
)

// celReserved lists identifiers CEL refuses as variable names.
var celReserved = map[string]bool{
	"as": true, "break": true, "const": true, "continue": true, "else": true,
	"false": true, "for": true, "function": true, "if": true, "import": true,
	"in": true, "let": true, "loop": true, "package": true, "namespace": true,
	"null": true, "return": true, "true": true, "var": true, "void": true,
	"while": true,
}

// CELChecker type-checks cel criteria against a fixed set of dyn variables,
// usually the parameter keys and block output keys of one definition.
// References to anything else fail the check.
type CELChecker struct {
	env  *cel.Env
	vars []string

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELChecker declares every usable name in vars as a dyn variable. Names
// that are not identifiers, or that CEL reserves, are skipped.
func NewCELChecker(vars []string) (*CELChecker, error) {
	declared := make([]string, 0, len(vars))
	for _, v := range vars {
		if labels.IsValid(v) && !celReserved[v] {
			declared = append(declared, v)
		}
	}
	slices.Sort(declared)
	declared = slices.Compact(declared)

	opts := make([]cel.EnvOption, 0, len(declared))
	for _, v := range declared {
		opts = append(opts, cel.Variable(v, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELChecker{
		env:   env,
		vars:  declared,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the criteria type this checker handles.
func (c *CELChecker) Name() string {
	return string(schema.CriteriaCEL)
}

// Variables returns the declared variable names, sorted.
func (c *CELChecker) Variables() []string {
	return slices.Clone(c.vars)
}

// Check parses, type-checks and plans expression.
func (c *CELChecker) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}
	_, err := c.getOrCompile(expression)
	return err
}

func (c *CELChecker) getOrCompile(expression string) (cel.Program, error) {
	c.mu.RLock()
	if prg, ok := c.cache[expression]; ok {
		c.mu.RUnlock()
		return prg, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := c.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	c.cache[expression] = prg
	return prg, nil
}

var _ Checker = (*CELChecker)(nil)
