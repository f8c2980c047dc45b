package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/pkg/schema"
)

func newValidator(t *testing.T) *GraphValidator {
	t.Helper()
	gv, err := NewGraphValidator()
	require.NoError(t, err)
	return gv
}

// chainGraph is the well-formed reference graph: in1 + in2 -> out.
func chainGraph() schema.Graph {
	return schema.Graph{
		Nodes: []schema.Node{
			{ID: "in1", Kind: schema.NodeKindInput, EnteredValue: 10},
			{ID: "in2", Kind: schema.NodeKindInput, EnteredValue: 5},
			{ID: "op", Kind: schema.NodeKindOperator, Op: schema.OpAdd},
			{ID: "out", Kind: schema.NodeKindOutput},
		},
		Edges: []schema.Edge{
			{ID: "e1", Source: "in1", Target: "op", Port: schema.PortA},
			{ID: "e2", Source: "in2", Target: "op", Port: schema.PortB},
			{ID: "e3", Source: "op", Target: "out"},
		},
	}
}

func TestValidateWellFormedGraph(t *testing.T) {
	gv := newValidator(t)
	g := chainGraph()

	result := gv.Validate(&g)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestValidateNilGraph(t *testing.T) {
	gv := newValidator(t)
	result := gv.Validate(nil)
	assert.False(t, result.Valid())
}

func TestStructuralViolations(t *testing.T) {
	gv := newValidator(t)

	tests := []struct {
		name   string
		mutate func(*schema.Graph)
	}{
		{"empty node id", func(g *schema.Graph) { g.Nodes[0].ID = "" }},
		{"unknown kind", func(g *schema.Graph) { g.Nodes[0].Kind = "comment" }},
		{"unknown operation", func(g *schema.Graph) { g.Nodes[2].Op = "modulo" }},
		{"unknown port", func(g *schema.Graph) { g.Edges[0].Port = "c" }},
		{"unknown lang", func(g *schema.Graph) {
			g.Nodes[2].Op = schema.OpFormula
			g.Nodes[2].Expression = "a + b"
			g.Nodes[2].Lang = "lua"
		}},
		{"duplicate node id", func(g *schema.Graph) { g.Nodes[1].ID = "in1" }},
		{"duplicate edge id", func(g *schema.Graph) { g.Edges[1].ID = "e1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := chainGraph()
			tt.mutate(&g)
			result := gv.Validate(&g)
			assert.False(t, result.Valid())
		})
	}
}

func TestSemanticViolations(t *testing.T) {
	gv := newValidator(t)

	tests := []struct {
		name   string
		mutate func(*schema.Graph)
	}{
		{"dangling edge source", func(g *schema.Graph) { g.Edges[0].Source = "ghost" }},
		{"dangling edge target", func(g *schema.Graph) { g.Edges[0].Target = "ghost" }},
		{"inbound edge into input", func(g *schema.Graph) { g.Edges[2].Target = "in1" }},
		{"operator edge without port", func(g *schema.Graph) { g.Edges[0].Port = schema.PortNone }},
		{"output edge with port", func(g *schema.Graph) { g.Edges[2].Port = schema.PortA }},
		{"input with operation", func(g *schema.Graph) { g.Nodes[0].Op = schema.OpAdd }},
		{"output with entered value", func(g *schema.Graph) { g.Nodes[3].EnteredValue = 4 }},
		{"operator without operation", func(g *schema.Graph) { g.Nodes[2].Op = "" }},
		{"formula without expression", func(g *schema.Graph) {
			g.Nodes[2].Op = schema.OpFormula
			g.Nodes[2].Expression = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := chainGraph()
			tt.mutate(&g)
			result := gv.Validate(&g)
			assert.False(t, result.Valid())
		})
	}
}

func TestDuplicateSlotIsWarning(t *testing.T) {
	gv := newValidator(t)
	g := chainGraph()
	g.Edges = append(g.Edges, schema.Edge{ID: "e4", Source: "in2", Target: "op", Port: schema.PortA})

	result := gv.Validate(&g)
	assert.True(t, result.Valid(), "resolution is first-match-wins, so a duplicate slot still evaluates")
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, schema.ErrCodeConflict, result.Warnings[0].Code)
}

func TestOutputAsSourceIsWarning(t *testing.T) {
	gv := newValidator(t)
	g := chainGraph()
	g.Nodes = append(g.Nodes, schema.Node{ID: "out2", Kind: schema.NodeKindOutput})
	g.Edges = append(g.Edges, schema.Edge{ID: "e4", Source: "out", Target: "out2"})

	result := gv.Validate(&g)
	assert.True(t, result.Valid())
	assert.NotEmpty(t, result.Warnings)
}

func TestCycleIsWarning(t *testing.T) {
	gv := newValidator(t)
	g := schema.Graph{
		Nodes: []schema.Node{
			{ID: "x", Kind: schema.NodeKindOperator, Op: schema.OpAdd},
			{ID: "y", Kind: schema.NodeKindOperator, Op: schema.OpAdd},
		},
		Edges: []schema.Edge{
			{ID: "e1", Source: "x", Target: "y", Port: schema.PortA},
			{ID: "e2", Source: "y", Target: "x", Port: schema.PortA},
		},
	}

	result := gv.Validate(&g)
	assert.True(t, result.Valid(), "cycles terminate as unresolved, not as corruption")
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0].Message, "cycle")
}

func TestUnreachableNodeIsWarning(t *testing.T) {
	gv := newValidator(t)
	g := chainGraph()
	g.Nodes = append(g.Nodes, schema.Node{ID: "orphan", Kind: schema.NodeKindOutput})

	result := gv.Validate(&g)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "orphan")
}

func TestStructuralErrorsShortCircuit(t *testing.T) {
	gv := newValidator(t)
	g := chainGraph()
	g.Nodes[0].Kind = "comment" // structural
	g.Edges[0].Source = "ghost" // semantic, must not be reached

	result := gv.Validate(&g)
	assert.False(t, result.Valid())
	for _, issue := range result.Errors {
		assert.NotContains(t, issue.Message, "ghost")
	}
}

func TestValidateDocument(t *testing.T) {
	gv := newValidator(t)

	t.Run("well-formed document", func(t *testing.T) {
		raw := []byte(`{
			"nodes": [
				{"id": "in1", "kind": "input", "entered_value": 10},
				{"id": "in2", "kind": "input", "entered_value": 5},
				{"id": "op", "kind": "operator", "operation": "add"},
				{"id": "out", "kind": "output"}
			],
			"edges": [
				{"id": "e1", "source": "in1", "target": "op", "port": "a"},
				{"id": "e2", "source": "in2", "target": "op", "port": "b"},
				{"id": "e3", "source": "op", "target": "out"}
			]
		}`)

		g, result := gv.ValidateDocument(raw)
		require.True(t, result.Valid())
		assert.Len(t, g.Nodes, 4)
		assert.Len(t, g.Edges, 3)
		assert.Equal(t, 10.0, g.Node("in1").EnteredValue)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, result := gv.ValidateDocument([]byte(`{"nodes": [`))
		assert.False(t, result.Valid())
	})

	t.Run("unknown field", func(t *testing.T) {
		_, result := gv.ValidateDocument([]byte(`{"nodes": [], "steps": []}`))
		assert.False(t, result.Valid())
	})

	t.Run("missing nodes", func(t *testing.T) {
		_, result := gv.ValidateDocument([]byte(`{"edges": []}`))
		assert.False(t, result.Valid())
	})

	t.Run("semantic issue in document", func(t *testing.T) {
		raw := []byte(`{
			"nodes": [{"id": "out", "kind": "output"}],
			"edges": [{"id": "e1", "source": "ghost", "target": "out"}]
		}`)
		_, result := gv.ValidateDocument(raw)
		assert.False(t, result.Valid())
	})
}
