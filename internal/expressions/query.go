package expressions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/blockflow/pkg/schema"
)

// QueryEngine runs jq queries over definitions and graphs, for example
// `[.blocks[] | select(.block_type == "for_loop") | .label]`.
// Compiled *gojq.Code values are cached and reused across goroutines.
type QueryEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewQueryEngine creates a jq query engine.
func NewQueryEngine() *QueryEngine {
	return &QueryEngine{
		cache: make(map[string]*gojq.Code),
	}
}

// Name returns the engine identifier.
func (e *QueryEngine) Name() string {
	return "jq"
}

// Check compiles query without running it.
func (e *QueryEngine) Check(query string) error {
	if query == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty jq query")
	}
	_, err := e.getOrCompile(query)
	return err
}

// Definition runs query against the JSON form of def.
func (e *QueryEngine) Definition(ctx context.Context, def *schema.Definition, query string) ([]any, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "definition is nil")
	}
	input, err := toJQValue(def)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, query, input)
}

// Value runs query against any JSON-encodable value, such as a canvas.Graph.
func (e *QueryEngine) Value(ctx context.Context, v any, query string) ([]any, error) {
	input, err := toJQValue(v)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, query, input)
}

// Run evaluates query against input, which must already be made of jq values
// (maps, slices, strings, float64, bool, nil). Every output is collected.
func (e *QueryEngine) Run(ctx context.Context, query string, input any) ([]any, error) {
	if query == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq query")
	}

	code, err := e.getOrCompile(query)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, input)

	results := []any{}
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"jq evaluation failed for %q: %s", query, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"query": query})
		}
		results = append(results, val)
	}
	return results, nil
}

func (e *QueryEngine) getOrCompile(query string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[query]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := e.cache[query]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"query": query})
	}

	code, err := gojq.Compile(parsed,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"query": query})
	}

	e.cache[query] = code
	return code, nil
}

func toJQValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode query input: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode query input: %w", err)
	}
	return out, nil
}

var _ Checker = (*QueryEngine)(nil)
