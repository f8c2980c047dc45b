package schema

// Event type constants for the editor's change stream.
const (
	EventNodeValueChanged = "node_value_changed"
	EventGraphEvaluated   = "graph_evaluated"
	EventGraphMutated     = "graph_mutated"
	EventHistoryUndone    = "history_undone"
	EventHistoryRedone    = "history_redone"
	EventFeedTicked       = "feed_ticked"
)

// Mutation kinds carried in graph_mutated event payloads.
const (
	MutationAddNode       = "add_node"
	MutationRemoveNode    = "remove_node"
	MutationConnect       = "connect"
	MutationDisconnect    = "disconnect"
	MutationSetValue      = "set_value"
	MutationSetOperation  = "set_operation"
	MutationSetFormula    = "set_formula"
	MutationLoad          = "load"
)
