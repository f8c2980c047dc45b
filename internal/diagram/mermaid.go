package diagram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rendis/nodeflow/pkg/schema"
)

// RenderMermaid renders a graph as a Mermaid flowchart string. Inputs are
// stadiums, operators rectangles, outputs double circles; computed state
// drives the node class.
func RenderMermaid(g *schema.Graph) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	for i := range g.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(&g.Nodes[i])))
	}

	for _, edge := range g.Edges {
		label := ""
		if edge.Port != schema.PortNone {
			label = fmt.Sprintf("|%s|", edge.Port)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.Source), label, mermaidSafeID(edge.Target)))
	}

	// Value state class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef resolved fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef tainted fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef unresolved fill:#6b6b6b,stroke:#4a4a4a,color:#aaa,stroke-dasharray:5 5\n")

	for i := range g.Nodes {
		node := &g.Nodes[i]
		if node.Kind == schema.NodeKindInput {
			continue // inputs always hold their entered value
		}
		b.WriteString(fmt.Sprintf("    class %s %s\n",
			mermaidSafeID(node.ID), mermaidStateClass(node.Computed)))
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the shape and
// label for the node's kind.
func mermaidNodeDef(node *schema.Node) string {
	id := mermaidSafeID(node.ID)

	switch node.Kind {
	case schema.NodeKindInput:
		return fmt.Sprintf("%s([%q])", id, formatNumber(node.EnteredValue))
	case schema.NodeKindOperator:
		label := fmt.Sprintf("%s = %s", operatorLabel(node), formatValue(node.Computed))
		return fmt.Sprintf("%s[%q]", id, label)
	case schema.NodeKindOutput:
		return fmt.Sprintf("%s(((%q)))", id, formatValue(node.Computed))
	default:
		return fmt.Sprintf("%s[%q]", id, node.ID)
	}
}

// operatorLabel picks the display symbol for an operator node. Formula
// nodes show their expression.
func operatorLabel(node *schema.Node) string {
	switch node.Op {
	case schema.OpAdd:
		return "a + b"
	case schema.OpSubtract:
		return "a - b"
	case schema.OpMultiply:
		return "a × b"
	case schema.OpDivide:
		return "a ÷ b"
	case schema.OpFormula:
		return node.Expression
	default:
		return string(node.Op)
	}
}

// formatValue renders a computed value for a label: the number when
// resolved, ERR for taint, ? while unresolved.
func formatValue(v schema.Value) string {
	switch v.State {
	case schema.ValueResolved:
		return formatNumber(v.Num)
	case schema.ValueTainted:
		return "ERR"
	default:
		return "?"
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots, dashes, and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidStateClass maps a computed value to a Mermaid class name.
func mermaidStateClass(v schema.Value) string {
	switch v.State {
	case schema.ValueResolved:
		return "resolved"
	case schema.ValueTainted:
		return "tainted"
	default:
		return "unresolved"
	}
}
