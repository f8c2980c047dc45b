package schema

import "math"

// NodeKind enumerates the kinds of nodes in a computation graph.
type NodeKind string

const (
	NodeKindInput    NodeKind = "input"
	NodeKindOperator NodeKind = "operator"
	NodeKindOutput   NodeKind = "output"
)

// Operation enumerates operator node operations.
// Formula operators evaluate a user expression over operands a and b.
type Operation string

const (
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
	OpMultiply Operation = "multiply"
	OpDivide   Operation = "divide"
	OpFormula  Operation = "formula"
)

// ValidOperations is the set of recognized operator operations.
var ValidOperations = map[Operation]bool{
	OpAdd:      true,
	OpSubtract: true,
	OpMultiply: true,
	OpDivide:   true,
	OpFormula:  true,
}

// Port names an operand slot on a multi-input node.
// Operator nodes take ports "a" and "b"; single-input nodes use PortNone.
type Port string

const (
	PortNone Port = ""
	PortA    Port = "a"
	PortB    Port = "b"
)

// ValueState describes whether a computed value is present and usable.
type ValueState string

const (
	// ValueUnresolved means no value could be derived (missing wiring,
	// unreachable node, or an operand that never resolved).
	ValueUnresolved ValueState = "unresolved"
	// ValueResolved means Num holds a usable number.
	ValueResolved ValueState = "resolved"
	// ValueTainted is the divide-by-zero sentinel: present but invalid,
	// and it propagates through downstream arithmetic.
	ValueTainted ValueState = "tainted"
)

// Value is the result slot of an operator or output node.
// The zero Value is unresolved.
type Value struct {
	State ValueState `json:"state,omitempty"`
	Num   float64    `json:"num,omitempty"`
}

// Unresolved returns the absent value.
func Unresolved() Value {
	return Value{State: ValueUnresolved}
}

// Number returns a resolved numeric value. NaN inputs collapse to the
// taint sentinel so there is exactly one canonical invalid value.
func Number(n float64) Value {
	if math.IsNaN(n) {
		return Tainted()
	}
	return Value{State: ValueResolved, Num: n}
}

// Tainted returns the canonical divide-by-zero sentinel.
func Tainted() Value {
	return Value{State: ValueTainted}
}

// Resolved reports whether the value holds a usable number.
func (v Value) Resolved() bool {
	return v.State == ValueResolved
}

// IsTainted reports whether the value is the taint sentinel.
func (v Value) IsTainted() bool {
	return v.State == ValueTainted
}

// Present reports whether the value exists at all: resolved or tainted.
// An operator proceeds when both operands are present.
func (v Value) Present() bool {
	return v.State == ValueResolved || v.State == ValueTainted
}

// Equal compares two values. The taint sentinel compares equal to itself
// (one canonical taint value), and all non-present states compare equal,
// so repeated taint or repeated absence never counts as a change.
func (v Value) Equal(other Value) bool {
	switch {
	case v.State == ValueResolved && other.State == ValueResolved:
		return v.Num == other.Num
	case v.State == ValueTainted && other.State == ValueTainted:
		return true
	default:
		return !v.Present() && !other.Present()
	}
}

// Position is the presentation-only canvas placement of a node.
// The evaluator ignores it entirely.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single typed node in the computation graph.
// Payload fields are meaningful per kind: EnteredValue only on inputs,
// Op/Expression/Lang only on operators, Computed only on operators and
// outputs.
type Node struct {
	ID           string    `json:"id"`
	Kind         NodeKind  `json:"kind"`
	Position     Position  `json:"position,omitzero"`
	EnteredValue float64   `json:"entered_value,omitempty"`
	Op           Operation `json:"operation,omitempty"`
	Expression   string    `json:"expression,omitempty"`
	Lang         string    `json:"lang,omitempty"`
	Computed     Value     `json:"computed_value,omitzero"`
}

// Equal compares two nodes by value, taint-aware on the computed slot.
func (n Node) Equal(other Node) bool {
	return n.ID == other.ID &&
		n.Kind == other.Kind &&
		n.Position == other.Position &&
		n.EnteredValue == other.EnteredValue &&
		n.Op == other.Op &&
		n.Expression == other.Expression &&
		n.Lang == other.Lang &&
		n.Computed.Equal(other.Computed)
}

// Edge is a directed connection from a source node to a target node,
// optionally into a named operand port.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Port   Port   `json:"port,omitempty"`
}

// Graph pairs the full node and edge collections at one instant.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a deep copy. Nodes and edges are value types, so copying
// the slices severs all aliasing with the receiver.
func (g Graph) Clone() Graph {
	out := Graph{}
	if g.Nodes != nil {
		out.Nodes = make([]Node, len(g.Nodes))
		copy(out.Nodes, g.Nodes)
	}
	if g.Edges != nil {
		out.Edges = make([]Edge, len(g.Edges))
		copy(out.Edges, g.Edges)
	}
	return out
}

// Equal compares two graphs by value, including element order.
func (g Graph) Equal(other Graph) bool {
	if len(g.Nodes) != len(other.Nodes) || len(g.Edges) != len(other.Edges) {
		return false
	}
	for i := range g.Nodes {
		if !g.Nodes[i].Equal(other.Nodes[i]) {
			return false
		}
	}
	for i := range g.Edges {
		if g.Edges[i] != other.Edges[i] {
			return false
		}
	}
	return true
}

// Node returns a pointer to the node with the given ID, or nil.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Edge returns a pointer to the edge with the given ID, or nil.
func (g *Graph) Edge(id string) *Edge {
	for i := range g.Edges {
		if g.Edges[i].ID == id {
			return &g.Edges[i]
		}
	}
	return nil
}
