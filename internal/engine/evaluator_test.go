package engine

import (
	"context"
	"testing"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/pkg/schema"
)

// --- helpers ---

func inputNode(id string, value float64) schema.Node {
	return schema.Node{ID: id, Kind: schema.NodeKindInput, EnteredValue: value}
}

func operatorNode(id string, op schema.Operation) schema.Node {
	return schema.Node{ID: id, Kind: schema.NodeKindOperator, Op: op}
}

func outputNode(id string) schema.Node {
	return schema.Node{ID: id, Kind: schema.NodeKindOutput}
}

func edge(id, source, target string, port schema.Port) schema.Edge {
	return schema.Edge{ID: id, Source: source, Target: target, Port: port}
}

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	reg, err := expressions.Default()
	if err != nil {
		t.Fatalf("build expression registry: %v", err)
	}
	return New(reg, nil)
}

func valueOf(t *testing.T, nodes []schema.Node, id string) schema.Value {
	t.Helper()
	for _, n := range nodes {
		if n.ID == id {
			return n.Computed
		}
	}
	t.Fatalf("node %s not found", id)
	return schema.Value{}
}

// --- the canonical scenario ---

func TestEvaluate_AddChain(t *testing.T) {
	// Input(10) -> op.a, Input(5) -> op.b, op -> out
	nodes := []schema.Node{
		inputNode("1", 10),
		inputNode("2", 5),
		operatorNode("3", schema.OpAdd),
		outputNode("4"),
	}
	edges := []schema.Edge{
		edge("e1", "1", "3", schema.PortA),
		edge("e2", "2", "3", schema.PortB),
		edge("e3", "3", "4", schema.PortNone),
	}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if !res.Converged {
		t.Fatal("expected convergence")
	}
	if got := valueOf(t, res.Nodes, "3"); !got.Equal(schema.Number(15)) {
		t.Errorf("operator: expected 15, got %+v", got)
	}
	if got := valueOf(t, res.Nodes, "4"); !got.Equal(schema.Number(15)) {
		t.Errorf("output: expected 15, got %+v", got)
	}
	if !res.Changed {
		t.Error("first evaluation should report change")
	}
}

func TestEvaluate_OperatorSemantics(t *testing.T) {
	tests := []struct {
		op   schema.Operation
		a, b float64
		want schema.Value
	}{
		{schema.OpAdd, 4, 3, schema.Number(7)},
		{schema.OpSubtract, 4, 3, schema.Number(1)},
		{schema.OpMultiply, 4, 3, schema.Number(12)},
		{schema.OpDivide, 12, 3, schema.Number(4)},
		{schema.OpDivide, 4, 0, schema.Tainted()},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			nodes := []schema.Node{
				inputNode("a", tt.a),
				inputNode("b", tt.b),
				operatorNode("op", tt.op),
			}
			edges := []schema.Edge{
				edge("e1", "a", "op", schema.PortA),
				edge("e2", "b", "op", schema.PortB),
			}
			res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)
			if got := valueOf(t, res.Nodes, "op"); !got.Equal(tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

// --- taint propagation ---

func TestEvaluate_TaintPropagation(t *testing.T) {
	// divide(4, 0) -> add(taint, 3) must be taint, not 3.
	nodes := []schema.Node{
		inputNode("four", 4),
		inputNode("zero", 0),
		inputNode("three", 3),
		operatorNode("div", schema.OpDivide),
		operatorNode("add", schema.OpAdd),
	}
	edges := []schema.Edge{
		edge("e1", "four", "div", schema.PortA),
		edge("e2", "zero", "div", schema.PortB),
		edge("e3", "div", "add", schema.PortA),
		edge("e4", "three", "add", schema.PortB),
	}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if got := valueOf(t, res.Nodes, "div"); !got.IsTainted() {
		t.Errorf("divide by zero should taint, got %+v", got)
	}
	if got := valueOf(t, res.Nodes, "add"); !got.IsTainted() {
		t.Errorf("taint should propagate through add, got %+v", got)
	}
}

// --- unresolved handling ---

func TestEvaluate_MissingOperandIsUnresolved(t *testing.T) {
	nodes := []schema.Node{
		inputNode("a", 1),
		operatorNode("op", schema.OpAdd),
	}
	edges := []schema.Edge{edge("e1", "a", "op", schema.PortA)} // port b missing

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if got := valueOf(t, res.Nodes, "op"); got.Present() {
		t.Errorf("operator with missing operand must stay unresolved, got %+v", got)
	}
}

func TestEvaluate_DisconnectedOutputStaysUnresolved(t *testing.T) {
	nodes := []schema.Node{inputNode("a", 1), outputNode("out")}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, nil)

	if got := valueOf(t, res.Nodes, "out"); got.Present() {
		t.Errorf("disconnected output must not default to a value, got %+v", got)
	}
	if !res.Converged {
		t.Error("disconnected graph should converge")
	}
}

func TestEvaluate_DanglingEdgeIsUnresolved(t *testing.T) {
	nodes := []schema.Node{outputNode("out")}
	edges := []schema.Edge{edge("e1", "ghost", "out", schema.PortNone)}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if got := valueOf(t, res.Nodes, "out"); got.Present() {
		t.Errorf("edge from nonexistent node must resolve to absent, got %+v", got)
	}
}

// --- iteration behavior ---

func TestEvaluate_OutOfOrderWiringConverges(t *testing.T) {
	// Nodes listed downstream-first so a single pass cannot settle them.
	nodes := []schema.Node{
		outputNode("out"),
		operatorNode("op2", schema.OpMultiply),
		operatorNode("op1", schema.OpAdd),
		inputNode("a", 2),
		inputNode("b", 3),
	}
	edges := []schema.Edge{
		edge("e1", "a", "op1", schema.PortA),
		edge("e2", "b", "op1", schema.PortB),
		edge("e3", "op1", "op2", schema.PortA),
		edge("e4", "b", "op2", schema.PortB),
		edge("e5", "op2", "out", schema.PortNone),
	}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if !res.Converged {
		t.Fatalf("expected convergence, ran %d passes", res.Passes)
	}
	if res.Passes >= MaxPasses {
		t.Errorf("acyclic graph must converge well under the ceiling, got %d", res.Passes)
	}
	if got := valueOf(t, res.Nodes, "out"); !got.Equal(schema.Number(15)) {
		t.Errorf("expected 15, got %+v", got)
	}
}

func TestEvaluate_CycleTerminatesAtCeiling(t *testing.T) {
	// Two operators feeding each other: can never resolve, must not hang.
	nodes := []schema.Node{
		inputNode("a", 1),
		operatorNode("x", schema.OpAdd),
		operatorNode("y", schema.OpAdd),
	}
	edges := []schema.Edge{
		edge("e1", "a", "x", schema.PortA),
		edge("e2", "y", "x", schema.PortB),
		edge("e3", "a", "y", schema.PortA),
		edge("e4", "x", "y", schema.PortB),
	}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if res.Passes > MaxPasses {
		t.Errorf("passes %d exceeded ceiling %d", res.Passes, MaxPasses)
	}
	// Both cycle participants stay unresolved; that is a valid terminal state.
	if got := valueOf(t, res.Nodes, "x"); got.Present() {
		t.Errorf("cycle participant resolved unexpectedly: %+v", got)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	nodes := []schema.Node{
		inputNode("1", 10),
		inputNode("2", 5),
		operatorNode("3", schema.OpDivide),
		outputNode("4"),
	}
	edges := []schema.Edge{
		edge("e1", "1", "3", schema.PortA),
		edge("e2", "2", "3", schema.PortB),
		edge("e3", "3", "4", schema.PortNone),
	}

	ev := newEvaluator(t)
	first := ev.Evaluate(context.Background(), nodes, edges)
	second := ev.Evaluate(context.Background(), first.Nodes, edges)

	if second.Changed {
		t.Error("re-evaluating a fixed point must not change anything")
	}
	for i := range first.Nodes {
		if !first.Nodes[i].Equal(second.Nodes[i]) {
			t.Errorf("node %s differs across runs", first.Nodes[i].ID)
		}
	}
}

func TestEvaluate_InputImmutability(t *testing.T) {
	nodes := []schema.Node{
		inputNode("a", 7),
		operatorNode("op", schema.OpAdd),
	}
	edges := []schema.Edge{
		edge("e1", "a", "op", schema.PortA),
		edge("e2", "a", "op", schema.PortB),
	}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if nodes[0].EnteredValue != 7 {
		t.Error("input slice mutated in place")
	}
	if res.Nodes[0].EnteredValue != 7 {
		t.Error("entered value changed by evaluation")
	}
	if got := valueOf(t, res.Nodes, "op"); !got.Equal(schema.Number(14)) {
		t.Errorf("expected 14, got %+v", got)
	}
}

// --- port matching policy ---

func TestEvaluate_FirstMatchWinsOnDuplicatePort(t *testing.T) {
	nodes := []schema.Node{
		inputNode("first", 1),
		inputNode("second", 2),
		outputNode("out"),
	}
	edges := []schema.Edge{
		edge("e1", "first", "out", schema.PortNone),
		edge("e2", "second", "out", schema.PortNone),
	}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if got := valueOf(t, res.Nodes, "out"); !got.Equal(schema.Number(1)) {
		t.Errorf("first edge in order must win, got %+v", got)
	}
}

func TestEvaluate_PortlessTargetMatchesAnyPort(t *testing.T) {
	// An output accepts an edge even if the edge carries a port label.
	nodes := []schema.Node{
		inputNode("a", 9),
		outputNode("out"),
	}
	edges := []schema.Edge{edge("e1", "a", "out", schema.PortA)}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if got := valueOf(t, res.Nodes, "out"); !got.Equal(schema.Number(9)) {
		t.Errorf("port-less target should match any inbound edge, got %+v", got)
	}
}

// --- formula operators ---

func TestEvaluate_FormulaOperator(t *testing.T) {
	nodes := []schema.Node{
		inputNode("a", 10),
		inputNode("b", 4),
		{ID: "f", Kind: schema.NodeKindOperator, Op: schema.OpFormula, Expression: "(a + b) / 2", Lang: "expr"},
	}
	edges := []schema.Edge{
		edge("e1", "a", "f", schema.PortA),
		edge("e2", "b", "f", schema.PortB),
	}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if got := valueOf(t, res.Nodes, "f"); !got.Equal(schema.Number(7)) {
		t.Errorf("expected 7, got %+v", got)
	}
}

func TestEvaluate_FormulaErrorTaints(t *testing.T) {
	nodes := []schema.Node{
		inputNode("a", 1),
		inputNode("b", 2),
		{ID: "f", Kind: schema.NodeKindOperator, Op: schema.OpFormula, Expression: "a +* b", Lang: "expr"},
	}
	edges := []schema.Edge{
		edge("e1", "a", "f", schema.PortA),
		edge("e2", "b", "f", schema.PortB),
	}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if got := valueOf(t, res.Nodes, "f"); !got.IsTainted() {
		t.Errorf("formula error must taint, got %+v", got)
	}
	if !res.Converged {
		t.Error("taint is stable; evaluation should converge")
	}
}

func TestEvaluate_FormulaUnknownLangTaints(t *testing.T) {
	nodes := []schema.Node{
		inputNode("a", 1),
		inputNode("b", 2),
		{ID: "f", Kind: schema.NodeKindOperator, Op: schema.OpFormula, Expression: "a + b", Lang: "lua"},
	}
	edges := []schema.Edge{
		edge("e1", "a", "f", schema.PortA),
		edge("e2", "b", "f", schema.PortB),
	}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, edges)

	if got := valueOf(t, res.Nodes, "f"); !got.IsTainted() {
		t.Errorf("unknown formula language must taint, got %+v", got)
	}
}

// --- change reporting ---

func TestEvaluate_NoChangeOnStableGraph(t *testing.T) {
	nodes := []schema.Node{inputNode("a", 1)}

	res := newEvaluator(t).Evaluate(context.Background(), nodes, nil)

	if res.Changed {
		t.Error("inputs-only graph has nothing to change")
	}
	if !res.Converged {
		t.Error("inputs-only graph should converge immediately")
	}
}
