package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/rendis/nodeflow/pkg/schema"
)

// CELEngine implements the Engine interface using Google's Common
// Expression Language. Useful for formulas that want CEL's strict typing
// and conditional expressions.
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a new CEL formula engine with a sandboxed
// environment exposing the two operand variables:
//   - a: double — the value wired into port a
//   - b: double — the value wired into port b
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("a", cel.DoubleType),
		cel.Variable("b", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL expression and
// evaluates it against the operand environment, coercing to float64.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, env map[string]any) (float64, error) {
	if expression == "" {
		return 0, schema.NewError(schema.ErrCodeValidation, "empty CEL formula")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return 0, err
	}

	activation := buildActivation(env)

	out, _, err := prg.Eval(activation)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeExecution,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return toNumber(expression, out.Value())
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

// buildActivation fills missing operand keys with zero so CEL never sees
// an unbound variable at runtime.
func buildActivation(env map[string]any) map[string]any {
	activation := make(map[string]any, 2)
	for _, key := range []string{"a", "b"} {
		if v, ok := env[key]; ok && v != nil {
			activation[key] = v
		} else {
			activation[key] = float64(0)
		}
	}
	return activation
}

var _ Engine = (*CELEngine)(nil)
