package engine

import "github.com/coffersTech/nanoflow/internal/model"

// Prune drops edges lighter than threshold, then every node no surviving
// edge refers to. A threshold of 0 keeps all edges; orphaned nodes are
// removed either way.
//
// Prune works on raw occurrence weights and must run before Normalize.
func Prune(g *model.Graph, threshold float64) *model.Graph {
	edges := make([]model.Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if threshold != 0 && e.Weight < threshold {
			continue
		}
		edges = append(edges, e)
	}

	referenced := make(map[string]struct{}, len(edges)*2)
	for _, e := range edges {
		referenced[e.Source] = struct{}{}
		referenced[e.Target] = struct{}{}
	}

	nodes := make([]model.Node, 0, len(referenced))
	for _, n := range g.Nodes {
		if _, ok := referenced[n.ID]; ok {
			nodes = append(nodes, n)
		}
	}

	return &model.Graph{Nodes: nodes, Edges: edges}
}
