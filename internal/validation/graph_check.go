package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/nodeflow/pkg/schema"
)

// validateShape performs whole-graph analysis: cycle detection (Kahn's
// algorithm) and reachability from input nodes (BFS). Both produce
// warnings, not errors: the evaluator terminates on cycles and leaves
// unreachable nodes unresolved, so neither corrupts editor state.
func validateShape(g *schema.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		nodeIDs[n.ID] = true
	}

	// deps[id] = nodes feeding id, feeds[id] = nodes fed by id.
	deps := make(map[string][]string, len(g.Nodes))
	feeds := make(map[string][]string, len(g.Nodes))

	for _, e := range g.Edges {
		if !nodeIDs[e.Source] || !nodeIDs[e.Target] {
			continue // dangling refs already caught by semantic
		}
		deps[e.Target] = append(deps[e.Target], e.Source)
		feeds[e.Source] = append(feeds[e.Source], e.Target)
	}

	// Kahn's algorithm for cycle detection.
	inDegree := make(map[string]int, len(g.Nodes))
	for id := range nodeIDs {
		inDegree[id] = len(deps[id])
	}

	queue := make([]string, 0, len(g.Nodes))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	// Sort roots for deterministic output.
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range feeds[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(nodeIDs) {
		cyclic := make([]string, 0)
		for id, deg := range inDegree {
			if deg > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		result.AddWarning("edges", schema.ErrCodeValidation,
			fmt.Sprintf("graph contains a cycle through %v; nodes on the cycle never resolve", cyclic))
	}

	// Reachability: BFS from input nodes through forward edges. Operators
	// and outputs off every input path stay unresolved forever.
	reachable := make(map[string]bool, len(nodeIDs))
	bfsQueue := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Kind == schema.NodeKindInput {
			reachable[n.ID] = true
			bfsQueue = append(bfsQueue, n.ID)
		}
	}

	for len(bfsQueue) > 0 {
		node := bfsQueue[0]
		bfsQueue = bfsQueue[1:]
		for _, next := range feeds[node] {
			if !reachable[next] {
				reachable[next] = true
				bfsQueue = append(bfsQueue, next)
			}
		}
	}

	for _, n := range g.Nodes {
		if n.Kind == schema.NodeKindInput || reachable[n.ID] {
			continue
		}
		result.AddWarning(fmt.Sprintf("nodes[%s]", n.ID),
			schema.ErrCodeValidation,
			fmt.Sprintf("node %q is not fed by any input node and never resolves", n.ID))
	}

	return result
}
