package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/nodeflow/internal/diagram"
	"github.com/rendis/nodeflow/internal/editor"
	"github.com/rendis/nodeflow/internal/feeds"
	"github.com/rendis/nodeflow/pkg/schema"
)

// handleEdit dispatches one edit command to the editor.
func (s *FlowServer) handleEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := req.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError("command is required"), nil
	}

	switch command {
	case schema.MutationAddNode:
		return s.editAddNode(ctx, req)
	case schema.MutationRemoveNode:
		nodeID, err := req.RequireString("node_id")
		if err != nil {
			return mcp.NewToolResultError("remove_node requires node_id"), nil
		}
		if err := s.editor.RemoveNode(ctx, nodeID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return marshalResult(s.stateSnapshot())
	case schema.MutationConnect:
		return s.editConnect(ctx, req)
	case schema.MutationDisconnect:
		edgeID, err := req.RequireString("edge_id")
		if err != nil {
			return mcp.NewToolResultError("disconnect requires edge_id"), nil
		}
		if err := s.editor.Disconnect(ctx, edgeID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return marshalResult(s.stateSnapshot())
	case schema.MutationSetValue:
		nodeID, err := req.RequireString("node_id")
		if err != nil {
			return mcp.NewToolResultError("set_value requires node_id"), nil
		}
		value, err := req.RequireFloat("value")
		if err != nil {
			return mcp.NewToolResultError("set_value requires value"), nil
		}
		if err := s.editor.SetValue(ctx, nodeID, value); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return marshalResult(s.stateSnapshot())
	case schema.MutationSetOperation:
		nodeID, err := req.RequireString("node_id")
		if err != nil {
			return mcp.NewToolResultError("set_operation requires node_id"), nil
		}
		op, err := req.RequireString("operation")
		if err != nil {
			return mcp.NewToolResultError("set_operation requires operation"), nil
		}
		if err := s.editor.SetOperation(ctx, nodeID, schema.Operation(op)); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return marshalResult(s.stateSnapshot())
	case schema.MutationSetFormula:
		nodeID, err := req.RequireString("node_id")
		if err != nil {
			return mcp.NewToolResultError("set_formula requires node_id"), nil
		}
		expression, err := req.RequireString("expression")
		if err != nil {
			return mcp.NewToolResultError("set_formula requires expression"), nil
		}
		lang := req.GetString("lang", "")
		if err := s.editor.SetFormula(ctx, nodeID, expression, lang); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return marshalResult(s.stateSnapshot())
	case "move_node":
		nodeID, err := req.RequireString("node_id")
		if err != nil {
			return mcp.NewToolResultError("move_node requires node_id"), nil
		}
		pos := schema.Position{X: req.GetFloat("x", 0), Y: req.GetFloat("y", 0)}
		if err := s.editor.MoveNode(ctx, nodeID, pos); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return marshalResult(s.stateSnapshot())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown command: %s", command)), nil
	}
}

func (s *FlowServer) editAddNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError("add_node requires kind"), nil
	}

	node, err := s.editor.AddNode(ctx, editor.AddNodeParams{
		Kind:         schema.NodeKind(kind),
		Position:     schema.Position{X: req.GetFloat("x", 0), Y: req.GetFloat("y", 0)},
		EnteredValue: req.GetFloat("value", 0),
		Op:           schema.Operation(req.GetString("operation", "")),
		Expression:   req.GetString("expression", ""),
		Lang:         req.GetString("lang", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.stateSnapshot()
	result["node"] = node
	return marshalResult(result)
}

func (s *FlowServer) editConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("connect requires source"), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError("connect requires target"), nil
	}
	port := schema.Port(req.GetString("port", ""))

	edge, err := s.editor.Connect(ctx, source, target, port)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.stateSnapshot()
	result["edge"] = edge
	return marshalResult(result)
}

// handleLoad validates a graph document and replaces the live graph.
func (s *FlowServer) handleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc := mcp.ParseStringMap(req, "document", nil)
	if doc == nil {
		return mcp.NewToolResultError("document is required"), nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
	}

	g, validation := s.validator.ValidateDocument(raw)
	if !validation.Valid() {
		detail, _ := json.Marshal(validation)
		return mcp.NewToolResultError(fmt.Sprintf("document rejected: %s", detail)), nil
	}

	if err := s.editor.Load(ctx, g); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.stateSnapshot()
	result["warnings"] = validation.Warnings
	return marshalResult(result)
}

// handleState returns the live graph and history depths.
func (s *FlowServer) handleState(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(s.stateSnapshot())
}

// handleUndo steps back one graph state. An empty undo stack is a no-op,
// not an error.
func (s *FlowServer) handleUndo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, ok := s.editor.Undo(ctx)
	result := s.stateSnapshot()
	result["undone"] = ok
	return marshalResult(result)
}

// handleRedo steps forward one graph state. An empty redo stack is a
// no-op, not an error.
func (s *FlowServer) handleRedo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, ok := s.editor.Redo(ctx)
	result := s.stateSnapshot()
	result["redone"] = ok
	return marshalResult(result)
}

// handleValidate checks a graph document without touching the live graph.
func (s *FlowServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc := mcp.ParseStringMap(req, "document", nil)
	if doc == nil {
		return mcp.NewToolResultError("document is required"), nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
	}

	_, validation := s.validator.ValidateDocument(raw)
	return marshalResult(map[string]any{
		"valid":    validation.Valid(),
		"errors":   validation.Errors,
		"warnings": validation.Warnings,
	})
}

// handleDiagram renders the live graph as Mermaid flowchart syntax.
func (s *FlowServer) handleDiagram(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g := s.editor.Graph()
	return mcp.NewToolResultText(diagram.RenderMermaid(&g)), nil
}

// handleFeedAdd attaches a scheduled value source to an input node.
func (s *FlowServer) handleFeedAdd(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	schedule, err := req.RequireString("schedule")
	if err != nil {
		return mcp.NewToolResultError("schedule is required"), nil
	}
	sourceType, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}

	// Feeds only make sense on input nodes, and only on ones that exist.
	g := s.editor.Graph()
	node := g.Node(nodeID)
	if node == nil {
		return mcp.NewToolResultError(fmt.Sprintf("node %s not found", nodeID)), nil
	}
	if node.Kind != schema.NodeKindInput {
		return mcp.NewToolResultError(fmt.Sprintf("node %s is not an input node", nodeID)), nil
	}

	spec := feeds.SourceSpec{Type: sourceType}
	if params := mcp.ParseStringMap(req, "params", nil); params != nil {
		raw, marshalErr := json.Marshal(params)
		if marshalErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid params: %v", marshalErr)), nil
		}
		if unmarshalErr := json.Unmarshal(raw, &spec); unmarshalErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid params: %v", unmarshalErr)), nil
		}
		spec.Type = sourceType
	}

	feed, err := s.feeds.Add(nodeID, schedule, spec)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(map[string]any{"feed": feed})
}

// handleFeedRemove detaches a feed.
func (s *FlowServer) handleFeedRemove(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	feedID, err := req.RequireString("feed_id")
	if err != nil {
		return mcp.NewToolResultError("feed_id is required"), nil
	}
	if err := s.feeds.Remove(feedID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(map[string]any{"removed": feedID})
}

// handleFeedList lists registered feeds.
func (s *FlowServer) handleFeedList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{"feeds": s.feeds.List()})
}

// stateSnapshot packages the live graph with the history depths.
func (s *FlowServer) stateSnapshot() map[string]any {
	past, future := s.editor.HistoryDepth()
	return map[string]any{
		"graph":      s.editor.Graph(),
		"undo_depth": past,
		"redo_depth": future,
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
