package history

import "github.com/rendis/nodeflow/pkg/schema"

// DefaultLimit is the retained depth of the past stack: 20 prior states
// plus the state the current working graph was edited from.
const DefaultLimit = 21

// Manager keeps a bounded linear undo/redo history of graph snapshots.
// Every stored snapshot is a deep copy, so later mutation of the live
// graph can never corrupt archived entries. Not safe for concurrent use;
// the editor serializes access.
type Manager struct {
	limit  int
	past   []schema.Graph
	future []schema.Graph
}

// NewManager creates a Manager retaining at most limit past snapshots.
// Non-positive limits fall back to DefaultLimit.
func NewManager(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{limit: limit}
}

// Snapshot archives the pre-mutation graph onto the past stack and
// discards any redo branch. A graph equal by value to the current top is
// not recorded again, so no-op interactions never pile up entries; the
// future stack is cleared either way. Returns whether a new entry was
// recorded. Oldest entries are evicted first once the limit is reached.
func (m *Manager) Snapshot(g schema.Graph) bool {
	m.future = m.future[:0]

	if len(m.past) > 0 && m.past[len(m.past)-1].Equal(g) {
		return false
	}

	m.past = append(m.past, g.Clone())
	if len(m.past) > m.limit {
		m.past = append(m.past[:0], m.past[1:]...)
	}
	return true
}

// Undo pops the most recent past snapshot and returns it as the new live
// graph, pushing the pre-undo live graph onto the front of the future
// stack. Returns false (and leaves both stacks untouched) when there is
// nothing to undo.
func (m *Manager) Undo(live schema.Graph) (schema.Graph, bool) {
	if len(m.past) == 0 {
		return schema.Graph{}, false
	}

	restored := m.past[len(m.past)-1]
	m.past = m.past[:len(m.past)-1]
	m.future = append([]schema.Graph{live.Clone()}, m.future...)
	return restored, true
}

// Redo pops the earliest future snapshot and returns it as the new live
// graph, pushing the pre-redo live graph back onto the past stack.
// Returns false when there is nothing to redo.
func (m *Manager) Redo(live schema.Graph) (schema.Graph, bool) {
	if len(m.future) == 0 {
		return schema.Graph{}, false
	}

	restored := m.future[0]
	m.future = m.future[1:]
	m.past = append(m.past, live.Clone())
	if len(m.past) > m.limit {
		m.past = append(m.past[:0], m.past[1:]...)
	}
	return restored, true
}

// CanUndo reports whether the past stack is non-empty.
func (m *Manager) CanUndo() bool {
	return len(m.past) > 0
}

// CanRedo reports whether the future stack is non-empty.
func (m *Manager) CanRedo() bool {
	return len(m.future) > 0
}

// Depth returns the current sizes of the past and future stacks.
func (m *Manager) Depth() (past, future int) {
	return len(m.past), len(m.future)
}
