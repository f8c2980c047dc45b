package expressions

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"
	"github.com/rendis/nodeflow/pkg/schema"
)

// GoJQEngine implements the Engine interface using GoJQ. The operand
// environment is the input object, so formulas read ".a" and ".b".
// A formula must produce exactly one numeric output.
// Thread-safe: compiled *Code objects are cached and reused.
type GoJQEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewGoJQEngine creates a new GoJQ formula engine.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{
		cache: make(map[string]*gojq.Code),
	}
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string {
	return "jq"
}

// Evaluate compiles (or retrieves from cache) a jq expression and runs it
// with the operand environment as the input object. The first output must
// be numeric; zero outputs or an error output fail the evaluation.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, env map[string]any) (float64, error) {
	if expression == "" {
		return 0, schema.NewError(schema.ErrCodeValidation, "empty jq formula")
	}

	code, err := e.getOrCompile(expression)
	if err != nil {
		return 0, err
	}

	if env == nil {
		env = map[string]any{}
	}

	iter := code.RunWithContext(ctx, env)

	val, ok := iter.Next()
	if !ok {
		return 0, schema.NewErrorf(schema.ErrCodeExecution,
			"jq formula %q produced no output", expression).
			WithDetails(map[string]any{"expression": expression})
	}
	if jqErr, isErr := val.(error); isErr {
		return 0, schema.NewErrorf(schema.ErrCodeExecution,
			"jq evaluation failed for %q: %s", expression, jqErr.Error()).
			WithCause(jqErr).
			WithDetails(map[string]any{"expression": expression})
	}

	return toNumber(expression, val)
}

// getOrCompile returns a cached compiled code or compiles and caches a new one.
func (e *GoJQEngine) getOrCompile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := e.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	code, err := gojq.Compile(query,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = code
	return code, nil
}

var _ Engine = (*GoJQEngine)(nil)
