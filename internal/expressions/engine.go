package expressions

import (
	"context"
	"fmt"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Engine evaluates a formula expression over the numeric operands of a
// formula operator node. The environment always carries the two operand
// values under the keys "a" and "b".
// Three implementations: Expr (default), CEL, and GoJQ.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, env map[string]any) (float64, error)
}

// Registry resolves a formula language name to its engine.
type Registry struct {
	engines map[string]Engine
}

// NewRegistry creates a registry from the given engines, keyed by Name().
func NewRegistry(engines ...Engine) *Registry {
	m := make(map[string]Engine, len(engines))
	for _, e := range engines {
		m[e.Name()] = e
	}
	return &Registry{engines: m}
}

// Default builds a registry with all three engines registered.
func Default() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, fmt.Errorf("build cel engine: %w", err)
	}
	return NewRegistry(NewExprEngine(), celEngine, NewGoJQEngine()), nil
}

// Get returns the engine for the given language. An empty language
// resolves to the expr engine.
func (r *Registry) Get(lang string) (Engine, bool) {
	if lang == "" {
		lang = "expr"
	}
	e, ok := r.engines[lang]
	return e, ok
}

// Languages lists the registered language names.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.engines))
	for name := range r.engines {
		out = append(out, name)
	}
	return out
}

// toNumber coerces an engine result to float64. Formula nodes are numeric
// only; anything else is an execution error the evaluator turns into taint.
func toNumber(expression string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, schema.NewErrorf(schema.ErrCodeExecution,
			"formula %q produced non-numeric result of type %T", expression, v)
	}
}
