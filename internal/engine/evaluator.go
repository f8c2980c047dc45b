package engine

import (
	"context"
	"log/slog"
	"math"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/pkg/schema"
)

// MaxPasses is the hard iteration ceiling for fixed-point evaluation.
// A cycle can never fully resolve, so the ceiling is what guarantees
// termination on malformed wiring — no cycle detection needed here.
const MaxPasses = 50

// Result is the outcome of one evaluation run. The engine always returns
// a best-effort snapshot: unresolved inputs, multi-edge ports, and
// divide-by-zero are in-band values, never errors.
type Result struct {
	// Nodes is the evaluated node collection, same order as the input.
	Nodes []schema.Node
	// Passes is how many full passes ran before stability or the ceiling.
	Passes int
	// Converged is false only when the pass ceiling was hit (cyclic wiring).
	Converged bool
	// Changed reports whether any computed value differs from the input
	// snapshot, so callers can skip redundant downstream updates.
	Changed bool
}

// Evaluator derives a consistent assignment of values to every operator
// and output node by iterating full passes over the graph to a fixed
// point. It holds no graph state between calls.
type Evaluator struct {
	engines *expressions.Registry
	logger  *slog.Logger
}

// New creates an Evaluator. The registry may be nil when formula
// operators are not in use; formula nodes then evaluate to taint.
func New(engines *expressions.Registry, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{engines: engines, logger: logger}
}

// Evaluate recomputes every non-input node from the given snapshot and
// returns a new snapshot. Input nodes pass through untouched; wiring
// order does not matter, and cyclic graphs terminate at the pass ceiling
// with whatever values stabilized.
//
// Each pass reads the previous pass's values, so a chain of length n
// settles in at most n+1 passes.
func (e *Evaluator) Evaluate(ctx context.Context, nodes []schema.Node, edges []schema.Edge) Result {
	out := make([]schema.Node, len(nodes))
	copy(out, nodes)

	passes := 0
	converged := false

	for passes < MaxPasses {
		passes++

		prev := make([]schema.Node, len(out))
		copy(prev, out)

		stable := true
		for i := range out {
			if out[i].Kind == schema.NodeKindInput {
				continue
			}
			next := e.compute(ctx, out[i], prev, edges)
			if !next.Equal(out[i].Computed) {
				out[i].Computed = next
				stable = false
			}
		}

		if stable {
			converged = true
			break
		}
	}

	changed := false
	for i := range out {
		if !out[i].Computed.Equal(nodes[i].Computed) {
			changed = true
			break
		}
	}

	if !converged {
		e.logger.DebugContext(ctx, "evaluation hit pass ceiling",
			slog.Int("passes", passes),
			slog.Int("nodes", len(nodes)),
		)
	}

	return Result{Nodes: out, Passes: passes, Converged: converged, Changed: changed}
}

// compute derives the value of a single non-input node from the snapshot.
func (e *Evaluator) compute(ctx context.Context, node schema.Node, snapshot []schema.Node, edges []schema.Edge) schema.Value {
	switch node.Kind {
	case schema.NodeKindOutput:
		// An output mirrors its single inbound value.
		return resolve(snapshot, edges, node.ID, schema.PortNone)
	case schema.NodeKindOperator:
		a := resolve(snapshot, edges, node.ID, schema.PortA)
		b := resolve(snapshot, edges, node.ID, schema.PortB)
		return e.apply(ctx, node, a, b)
	default:
		return node.Computed
	}
}

// resolve follows the first edge (in edge order) terminating at the given
// target and port to its source value. A port-less target matches any
// inbound edge. No matching edge means unresolved, not zero.
func resolve(snapshot []schema.Node, edges []schema.Edge, targetID string, port schema.Port) schema.Value {
	for _, edge := range edges {
		if edge.Target != targetID {
			continue
		}
		if port != schema.PortNone && edge.Port != port {
			continue
		}
		return sourceValue(snapshot, edge.Source)
	}
	return schema.Unresolved()
}

// sourceValue reads the current value of the source node: entered value
// for inputs, the (possibly still unresolved) computed value otherwise.
// Edges referencing a nonexistent node resolve to unresolved; rejecting
// them is the edit layer's job.
func sourceValue(snapshot []schema.Node, sourceID string) schema.Value {
	for i := range snapshot {
		if snapshot[i].ID != sourceID {
			continue
		}
		if snapshot[i].Kind == schema.NodeKindInput {
			return schema.Number(snapshot[i].EnteredValue)
		}
		return snapshot[i].Computed
	}
	return schema.Unresolved()
}

// apply executes an operator over its two operands. Both operands must
// be present to proceed; taint on either side propagates.
func (e *Evaluator) apply(ctx context.Context, node schema.Node, a, b schema.Value) schema.Value {
	if !a.Present() || !b.Present() {
		return schema.Unresolved()
	}
	if a.IsTainted() || b.IsTainted() {
		return schema.Tainted()
	}

	switch node.Op {
	case schema.OpAdd:
		return schema.Number(a.Num + b.Num)
	case schema.OpSubtract:
		return schema.Number(a.Num - b.Num)
	case schema.OpMultiply:
		return schema.Number(a.Num * b.Num)
	case schema.OpDivide:
		if b.Num == 0 {
			return schema.Tainted()
		}
		return schema.Number(a.Num / b.Num)
	case schema.OpFormula:
		return e.applyFormula(ctx, node, a, b)
	default:
		return schema.Unresolved()
	}
}

// applyFormula evaluates a formula operator through the configured
// expression engine. Any failure — unknown language, compile or runtime
// error, non-numeric or NaN result — taints the node instead of erroring,
// keeping the no-hard-error evaluation contract.
func (e *Evaluator) applyFormula(ctx context.Context, node schema.Node, a, b schema.Value) schema.Value {
	if e.engines == nil {
		return schema.Tainted()
	}
	eng, ok := e.engines.Get(node.Lang)
	if !ok {
		return schema.Tainted()
	}

	out, err := eng.Evaluate(ctx, node.Expression, map[string]any{"a": a.Num, "b": b.Num})
	if err != nil {
		e.logger.DebugContext(ctx, "formula evaluation failed",
			slog.String("node_id", node.ID),
			slog.String("lang", eng.Name()),
			slog.String("error", err.Error()),
		)
		return schema.Tainted()
	}
	if math.IsNaN(out) {
		return schema.Tainted()
	}
	return schema.Number(out)
}
