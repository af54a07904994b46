package engine

// Stats summarizes one transform pass.
type Stats struct {
	ClassifyStats

	BuiltNodes int `json:"built_nodes"` // before pruning
	BuiltEdges int `json:"built_edges"` // before pruning
	Nodes      int `json:"nodes"`
	Edges      int `json:"edges"`
	Sequences  int `json:"sequences"`
}

// PrunedNodes returns how many nodes the threshold filter removed.
func (s Stats) PrunedNodes() int {
	return s.BuiltNodes - s.Nodes
}

// PrunedEdges returns how many edges the threshold filter removed.
func (s Stats) PrunedEdges() int {
	return s.BuiltEdges - s.Edges
}
