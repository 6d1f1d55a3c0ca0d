package expressions

import (
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/blockflow/pkg/schema"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// TemplateChecker validates jinja2_template criteria. Every {{ ... }} body is
// compiled with expr-lang; text outside the delimiters is left alone.
// Compiled programs are cached and shared across goroutines.
type TemplateChecker struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewTemplateChecker creates a template checker with an empty cache.
func NewTemplateChecker() *TemplateChecker {
	return &TemplateChecker{
		cache: make(map[string]*vm.Program),
	}
}

// Name returns the criteria type this checker handles.
func (c *TemplateChecker) Name() string {
	return string(schema.CriteriaJinja)
}

// Check compiles every placeholder body of expression. A template without
// placeholders is plain text and always passes.
func (c *TemplateChecker) Check(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty template expression")
	}
	bodies, err := TemplateBodies(expression)
	if err != nil {
		return err
	}
	for _, body := range bodies {
		if _, err := c.getOrCompile(body); err != nil {
			return err
		}
	}
	return nil
}

// TemplateBodies returns the trimmed bodies of every {{ ... }} placeholder in
// order. An unterminated or empty placeholder is a VALIDATION_ERROR.
func TemplateBodies(template string) ([]string, error) {
	var bodies []string
	rest := template
	for {
		open := strings.Index(rest, openDelim)
		if open < 0 {
			return bodies, nil
		}
		rest = rest[open+len(openDelim):]
		end := strings.Index(rest, closeDelim)
		if end < 0 {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"unterminated placeholder in %q", template).
				WithDetails(map[string]any{"expression": template})
		}
		body := strings.TrimSpace(rest[:end])
		if body == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"empty placeholder in %q", template).
				WithDetails(map[string]any{"expression": template})
		}
		bodies = append(bodies, body)
		rest = rest[end+len(closeDelim):]
	}
}

func (c *TemplateChecker) getOrCompile(body string) (*vm.Program, error) {
	c.mu.RLock()
	if prg, ok := c.cache[body]; ok {
		c.mu.RUnlock()
		return prg, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := c.cache[body]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(body,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"template compile error in %q: %s", body, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": body})
	}

	c.cache[body] = prg
	return prg, nil
}

var _ Checker = (*TemplateChecker)(nil)
