package editor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/rendis/nodeflow/internal/engine"
	"github.com/rendis/nodeflow/internal/history"
	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

// IDGenerator mints identifiers for new nodes and edges. Injected so the
// graph model stays free of hidden global state and tests can use
// deterministic IDs.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator is the default IDGenerator, backed by random UUIDs.
type UUIDGenerator struct{}

// NewID returns a fresh random UUID string.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// Deps holds the collaborators for creating an Editor.
type Deps struct {
	Evaluator *engine.Evaluator
	History   *history.Manager
	Hub       streaming.EventHub
	IDs       IDGenerator
	Logger    *slog.Logger
}

// Editor owns the live graph and translates edit commands into the
// snapshot-then-mutate-then-evaluate cycle. Edits are serialized under a
// mutex: one user-driven mutation at a time, evaluation running as an
// atomic step of each edit.
type Editor struct {
	mu      sync.Mutex
	live    schema.Graph
	eval    *engine.Evaluator
	history *history.Manager
	hub     streaming.EventHub
	ids     IDGenerator
	logger  *slog.Logger
}

// New creates an Editor with an empty graph. Nil dependencies fall back
// to sane defaults.
func New(deps Deps) *Editor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ev := deps.Evaluator
	if ev == nil {
		ev = engine.New(nil, logger)
	}
	hist := deps.History
	if hist == nil {
		hist = history.NewManager(0)
	}
	hub := deps.Hub
	if hub == nil {
		hub = streaming.NewMemoryHub()
	}
	ids := deps.IDs
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &Editor{
		eval:    ev,
		history: hist,
		hub:     hub,
		ids:     ids,
		logger:  logger,
	}
}

// AddNodeParams describes a node to create. Fields outside the node's
// kind are rejected; a fresh node's numeric fields default to zero and
// its wiring to none.
type AddNodeParams struct {
	Kind         schema.NodeKind
	Position     schema.Position
	EnteredValue float64
	Op           schema.Operation
	Expression   string
	Lang         string
}

// AddNode creates a node and re-evaluates the graph.
// Operator nodes default to the add operation when none is given.
func (ed *Editor) AddNode(ctx context.Context, p AddNodeParams) (schema.Node, error) {
	node := schema.Node{
		ID:       ed.ids.NewID(),
		Kind:     p.Kind,
		Position: p.Position,
	}

	switch p.Kind {
	case schema.NodeKindInput:
		if p.Op != "" || p.Expression != "" {
			return schema.Node{}, schema.NewError(schema.ErrCodeValidation,
				"input nodes carry no operation or expression")
		}
		node.EnteredValue = p.EnteredValue
	case schema.NodeKindOperator:
		op := p.Op
		if op == "" {
			op = schema.OpAdd
		}
		if !schema.ValidOperations[op] {
			return schema.Node{}, schema.NewErrorf(schema.ErrCodeValidation,
				"unknown operation: %s", op)
		}
		node.Op = op
		node.Expression = p.Expression
		node.Lang = p.Lang
	case schema.NodeKindOutput:
		if p.Op != "" || p.Expression != "" || p.EnteredValue != 0 {
			return schema.Node{}, schema.NewError(schema.ErrCodeValidation,
				"output nodes carry no operation, expression, or entered value")
		}
	default:
		return schema.Node{}, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown node kind: %s", p.Kind)
	}

	err := ed.mutate(ctx, schema.MutationAddNode, func(g *schema.Graph) error {
		g.Nodes = append(g.Nodes, node)
		return nil
	})
	if err != nil {
		return schema.Node{}, err
	}
	return node, nil
}

// RemoveNode deletes a node and every edge touching it.
func (ed *Editor) RemoveNode(ctx context.Context, nodeID string) error {
	return ed.mutate(logging.WithNodeID(ctx, nodeID), schema.MutationRemoveNode, func(g *schema.Graph) error {
		if g.Node(nodeID) == nil {
			return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", nodeID).WithNode(nodeID)
		}

		nodes := g.Nodes[:0]
		for _, n := range g.Nodes {
			if n.ID != nodeID {
				nodes = append(nodes, n)
			}
		}
		g.Nodes = nodes

		edges := g.Edges[:0]
		for _, e := range g.Edges {
			if e.Source != nodeID && e.Target != nodeID {
				edges = append(edges, e)
			}
		}
		g.Edges = edges
		return nil
	})
}

// Connect wires source into target at the given port. A port already
// occupied is replaced rather than doubled up: the evaluator stays
// first-match-wins for compatibility, but the editor keeps the structural
// invariant of at most one edge per (target, port).
func (ed *Editor) Connect(ctx context.Context, sourceID, targetID string, port schema.Port) (schema.Edge, error) {
	edge := schema.Edge{
		ID:     ed.ids.NewID(),
		Source: sourceID,
		Target: targetID,
		Port:   port,
	}

	err := ed.mutate(ctx, schema.MutationConnect, func(g *schema.Graph) error {
		source := g.Node(sourceID)
		if source == nil {
			return schema.NewErrorf(schema.ErrCodeNotFound, "source node %s not found", sourceID)
		}
		target := g.Node(targetID)
		if target == nil {
			return schema.NewErrorf(schema.ErrCodeNotFound, "target node %s not found", targetID)
		}

		switch target.Kind {
		case schema.NodeKindInput:
			return schema.NewError(schema.ErrCodeValidation,
				"input nodes accept no inbound connections").WithNode(targetID)
		case schema.NodeKindOperator:
			if port != schema.PortA && port != schema.PortB {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"operator connections require port a or b, got %q", port).WithNode(targetID)
			}
		case schema.NodeKindOutput:
			if port != schema.PortNone {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"output connections take no port, got %q", port).WithNode(targetID)
			}
		}

		// Replace any edge already occupying this slot. Outputs are
		// single-input, so any inbound edge counts as occupying.
		edges := g.Edges[:0]
		for _, e := range g.Edges {
			if e.Target == targetID && (target.Kind == schema.NodeKindOutput || e.Port == port) {
				continue
			}
			edges = append(edges, e)
		}
		g.Edges = append(edges, edge)
		return nil
	})
	if err != nil {
		return schema.Edge{}, err
	}
	return edge, nil
}

// Disconnect removes an edge by ID.
func (ed *Editor) Disconnect(ctx context.Context, edgeID string) error {
	return ed.mutate(ctx, schema.MutationDisconnect, func(g *schema.Graph) error {
		if g.Edge(edgeID) == nil {
			return schema.NewErrorf(schema.ErrCodeNotFound, "edge %s not found", edgeID)
		}
		edges := g.Edges[:0]
		for _, e := range g.Edges {
			if e.ID != edgeID {
				edges = append(edges, e)
			}
		}
		g.Edges = edges
		return nil
	})
}

// SetValue updates an input node's entered value.
func (ed *Editor) SetValue(ctx context.Context, nodeID string, value float64) error {
	return ed.mutate(logging.WithNodeID(ctx, nodeID), schema.MutationSetValue, func(g *schema.Graph) error {
		node := g.Node(nodeID)
		if node == nil {
			return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", nodeID).WithNode(nodeID)
		}
		if node.Kind != schema.NodeKindInput {
			return schema.NewError(schema.ErrCodeValidation,
				"entered values exist only on input nodes").WithNode(nodeID)
		}
		node.EnteredValue = value
		return nil
	})
}

// SetOperation updates an operator node's operation.
func (ed *Editor) SetOperation(ctx context.Context, nodeID string, op schema.Operation) error {
	return ed.mutate(logging.WithNodeID(ctx, nodeID), schema.MutationSetOperation, func(g *schema.Graph) error {
		node := g.Node(nodeID)
		if node == nil {
			return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", nodeID).WithNode(nodeID)
		}
		if node.Kind != schema.NodeKindOperator {
			return schema.NewError(schema.ErrCodeValidation,
				"operations exist only on operator nodes").WithNode(nodeID)
		}
		if !schema.ValidOperations[op] {
			return schema.NewErrorf(schema.ErrCodeValidation, "unknown operation: %s", op).WithNode(nodeID)
		}
		node.Op = op
		return nil
	})
}

// SetFormula switches an operator node to the formula operation with the
// given expression and language. The expression is evaluated eagerly over
// operands a and b on every pass; a broken formula taints rather than
// errors, so no compile check happens here.
func (ed *Editor) SetFormula(ctx context.Context, nodeID, expression, lang string) error {
	return ed.mutate(logging.WithNodeID(ctx, nodeID), schema.MutationSetFormula, func(g *schema.Graph) error {
		node := g.Node(nodeID)
		if node == nil {
			return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", nodeID).WithNode(nodeID)
		}
		if node.Kind != schema.NodeKindOperator {
			return schema.NewError(schema.ErrCodeValidation,
				"formulas exist only on operator nodes").WithNode(nodeID)
		}
		if expression == "" {
			return schema.NewError(schema.ErrCodeValidation, "formula expression is empty").WithNode(nodeID)
		}
		node.Op = schema.OpFormula
		node.Expression = expression
		node.Lang = lang
		return nil
	})
}

// MoveNode updates a node's canvas position. Position is presentation
// only: no history snapshot is taken and no re-evaluation runs.
func (ed *Editor) MoveNode(ctx context.Context, nodeID string, pos schema.Position) error {
	ed.mu.Lock()
	defer ed.mu.Unlock()

	node := ed.live.Node(nodeID)
	if node == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", nodeID).WithNode(nodeID)
	}
	node.Position = pos
	return nil
}

// Load replaces the whole graph with a new one, snapshotting the prior
// state. The caller is responsible for validating the graph first; the
// editor only clones it to sever aliasing.
func (ed *Editor) Load(ctx context.Context, g schema.Graph) error {
	return ed.mutate(ctx, schema.MutationLoad, func(live *schema.Graph) error {
		*live = g.Clone()
		return nil
	})
}

// Undo restores the most recent past snapshot as the live graph and
// re-evaluates it (idempotent on a fixed point). Returns false when there
// is nothing to undo.
func (ed *Editor) Undo(ctx context.Context) (schema.Graph, bool) {
	ed.mu.Lock()
	defer ed.mu.Unlock()

	restored, ok := ed.history.Undo(ed.live)
	if !ok {
		return schema.Graph{}, false
	}
	ed.live = restored
	ed.reevaluate(ctx)
	ed.publish(ctx, streaming.StreamEvent{EventType: schema.EventHistoryUndone})
	return ed.live.Clone(), true
}

// Redo restores the earliest future snapshot as the live graph and
// re-evaluates it. Returns false when there is nothing to redo.
func (ed *Editor) Redo(ctx context.Context) (schema.Graph, bool) {
	ed.mu.Lock()
	defer ed.mu.Unlock()

	restored, ok := ed.history.Redo(ed.live)
	if !ok {
		return schema.Graph{}, false
	}
	ed.live = restored
	ed.reevaluate(ctx)
	ed.publish(ctx, streaming.StreamEvent{EventType: schema.EventHistoryRedone})
	return ed.live.Clone(), true
}

// Graph returns a snapshot of the live graph.
func (ed *Editor) Graph() schema.Graph {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	return ed.live.Clone()
}

// HistoryDepth returns the current undo/redo stack sizes.
func (ed *Editor) HistoryDepth() (past, future int) {
	ed.mu.Lock()
	defer ed.mu.Unlock()
	return ed.history.Depth()
}

// mutate runs an edit command through the full cycle: clone the
// pre-mutation state, apply the mutation, archive the pre-state, then
// re-evaluate. A failed mutation restores the pre-state and archives
// nothing.
func (ed *Editor) mutate(ctx context.Context, mutation string, fn func(*schema.Graph) error) error {
	ed.mu.Lock()
	defer ed.mu.Unlock()

	ctx = logging.WithCommand(ctx, mutation)

	before := ed.live.Clone()
	if err := fn(&ed.live); err != nil {
		ed.live = before
		ed.logger.DebugContext(ctx, "edit rejected", slog.String("error", err.Error()))
		return err
	}

	ed.history.Snapshot(before)
	ed.publish(ctx, streaming.StreamEvent{
		EventType: schema.EventGraphMutated,
		Payload:   map[string]any{"mutation": mutation},
	})
	ed.reevaluate(ctx)
	return nil
}

// reevaluate runs the evaluator over the live graph and adopts the result
// only when a computed value actually changed, publishing per-node change
// events for subscribers.
func (ed *Editor) reevaluate(ctx context.Context) {
	res := ed.eval.Evaluate(ctx, ed.live.Nodes, ed.live.Edges)

	if res.Changed {
		for i := range res.Nodes {
			if res.Nodes[i].Computed.Equal(ed.live.Nodes[i].Computed) {
				continue
			}
			ed.publish(ctx, streaming.StreamEvent{
				NodeID:    res.Nodes[i].ID,
				EventType: schema.EventNodeValueChanged,
				Payload:   res.Nodes[i].Computed,
			})
		}
		ed.live.Nodes = res.Nodes
	}

	ed.publish(ctx, streaming.StreamEvent{
		EventType: schema.EventGraphEvaluated,
		Payload: map[string]any{
			"passes":    res.Passes,
			"converged": res.Converged,
			"changed":   res.Changed,
		},
	})

	ed.logger.DebugContext(ctx, "graph evaluated",
		slog.Int("passes", res.Passes),
		slog.Bool("converged", res.Converged),
		slog.Bool("changed", res.Changed),
	)
}

// publish sends a stream event best-effort; delivery failures never block
// or fail an edit.
func (ed *Editor) publish(ctx context.Context, event streaming.StreamEvent) {
	_ = ed.hub.Publish(ctx, event)
}
