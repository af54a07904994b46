package model

import "strconv"

// TransactionPrefix marks statements that share a transaction id with
// another statement when transaction view is enabled.
const TransactionPrefix = "T:"

// Node is a distinct statement in the graph.
type Node struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
	Label  string  `json:"label"`
}

// Edge is an aggregated transition between two statements of one session.
// Source is the later statement and Target the earlier one.
type Edge struct {
	ID            string  `json:"id"`
	Source        string  `json:"source"`
	Target        string  `json:"target"`
	Weight        float64 `json:"weight"`
	Label         string  `json:"label"`
	IsTransaction bool    `json:"isTransaction"`
}

// Graph is the result of one transform pass. It is never mutated after it
// has been built; recomputation produces a new Graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// EdgeID returns the identity of the edge from source to target as
// "<len(source)>:<source><target>". Statements may contain any byte, so the
// length prefix is what keeps distinct pairs apart.
func EdgeID(source, target string) string {
	return strconv.Itoa(len(source)) + ":" + source + target
}

// Empty reports whether the graph has nothing to render.
func (g *Graph) Empty() bool {
	return g == nil || (len(g.Nodes) == 0 && len(g.Edges) == 0)
}

// Edge looks up an edge by its id.
func (g *Graph) Edge(id string) (Edge, bool) {
	if g == nil {
		return Edge{}, false
	}
	for _, e := range g.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return Edge{}, false
}

// Node looks up a node by its id.
func (g *Graph) Node(id string) (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// SequenceSet holds the distinct per-session statement sequences, in order
// of first appearance.
type SequenceSet [][]string
