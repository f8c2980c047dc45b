package validation

import (
	"fmt"

	"github.com/rendis/nodeflow/pkg/schema"
)

// knownLangs enumerates the formula languages the expression registry
// ships with. An unknown language is a warning: the evaluator taints the
// node rather than failing the graph.
var knownLangs = map[string]bool{
	"":     true, // defaults to expr
	"expr": true,
	"cel":  true,
	"jq":   true,
}

// validateSemantic checks the decoded graph for rule violations JSON
// Schema cannot see: per-kind field usage, edge endpoint existence, port
// legality, and operand slot occupancy.
func validateSemantic(g *schema.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodes := make(map[string]*schema.Node, len(g.Nodes))
	for i := range g.Nodes {
		nodes[g.Nodes[i].ID] = &g.Nodes[i]
	}

	for i := range g.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		validateNodeFields(&g.Nodes[i], path, result)
	}

	// occupied tracks (target, port) slots so duplicates can be flagged.
	type slot struct {
		target string
		port   schema.Port
	}
	occupied := make(map[slot]string, len(g.Edges))

	for i, e := range g.Edges {
		path := fmt.Sprintf("edges[%d]", i)

		source, sourceOK := nodes[e.Source]
		if !sourceOK {
			result.AddError(path+".source", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", e.Source))
		}
		target, targetOK := nodes[e.Target]
		if !targetOK {
			result.AddError(path+".target", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", e.Target))
		}
		if !sourceOK || !targetOK {
			continue
		}

		if source.Kind == schema.NodeKindOutput {
			result.AddWarning(path+".source", schema.ErrCodeValidation,
				fmt.Sprintf("output node %q feeds another node; outputs are normally terminal", e.Source))
		}

		switch target.Kind {
		case schema.NodeKindInput:
			result.AddError(path+".target", schema.ErrCodeValidation,
				fmt.Sprintf("input node %q accepts no inbound connections", e.Target))
		case schema.NodeKindOperator:
			if e.Port != schema.PortA && e.Port != schema.PortB {
				result.AddError(path+".port", schema.ErrCodeValidation,
					fmt.Sprintf("operator connections require port a or b, got %q", e.Port))
			}
		case schema.NodeKindOutput:
			if e.Port != schema.PortNone {
				result.AddError(path+".port", schema.ErrCodeValidation,
					fmt.Sprintf("output connections take no port, got %q", e.Port))
			}
		}

		// Slot occupancy: resolution is first-match-wins, so later edges
		// into the same slot are dead weight.
		key := slot{target: e.Target, port: e.Port}
		if prior, exists := occupied[key]; exists {
			result.AddWarning(path, schema.ErrCodeConflict,
				fmt.Sprintf("slot (%s, %q) already fed by edge %q; this edge never takes effect", e.Target, e.Port, prior))
			continue
		}
		occupied[key] = e.ID
	}

	return result
}

// validateNodeFields checks that a node only carries the payload fields
// its kind supports.
func validateNodeFields(n *schema.Node, path string, result *schema.ValidationResult) {
	switch n.Kind {
	case schema.NodeKindInput:
		if n.Op != "" || n.Expression != "" {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("input node %q carries no operation or expression", n.ID))
		}
	case schema.NodeKindOperator:
		if n.Op == "" {
			result.AddError(path+".operation", schema.ErrCodeValidation,
				fmt.Sprintf("operator node %q has no operation", n.ID))
			return
		}
		if !schema.ValidOperations[n.Op] {
			result.AddError(path+".operation", schema.ErrCodeValidation,
				fmt.Sprintf("unknown operation %q", n.Op))
		}
		if n.Op == schema.OpFormula {
			if n.Expression == "" {
				result.AddError(path+".expression", schema.ErrCodeValidation,
					fmt.Sprintf("formula node %q has an empty expression", n.ID))
			}
			if !knownLangs[n.Lang] {
				result.AddWarning(path+".lang", schema.ErrCodeValidation,
					fmt.Sprintf("unknown formula language %q; the node will evaluate as tainted", n.Lang))
			}
		}
	case schema.NodeKindOutput:
		if n.Op != "" || n.Expression != "" || n.EnteredValue != 0 {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("output node %q carries no operation, expression, or entered value", n.ID))
		}
	}
}
