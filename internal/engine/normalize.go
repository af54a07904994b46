package engine

import "github.com/coffersTech/nanoflow/internal/model"

// Display ranges of normalized weights.
const (
	edgeWeightOffset = 0.5
	nodeWeightOffset = 10
)

// Normalize rescales weights in place: edges into (0.5, 1.5] relative to
// the heaviest edge, nodes into [10, 10+multiplier] relative to the
// heaviest node. Empty sets are left untouched.
func Normalize(g *model.Graph, multiplier float64) {
	if maxEdge := maxEdgeWeight(g.Edges); maxEdge > 0 {
		for i := range g.Edges {
			g.Edges[i].Weight = g.Edges[i].Weight/maxEdge + edgeWeightOffset
		}
	}

	if maxNode := maxNodeWeight(g.Nodes); maxNode > 0 {
		for i := range g.Nodes {
			g.Nodes[i].Weight = (g.Nodes[i].Weight/maxNode)*multiplier + nodeWeightOffset
		}
	}
}

func maxEdgeWeight(edges []model.Edge) float64 {
	var m float64
	for _, e := range edges {
		if e.Weight > m {
			m = e.Weight
		}
	}
	return m
}

func maxNodeWeight(nodes []model.Node) float64 {
	var m float64
	for _, n := range nodes {
		if n.Weight > m {
			m = n.Weight
		}
	}
	return m
}
