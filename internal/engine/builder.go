package engine

import (
	"strconv"

	"github.com/coffersTech/nanoflow/internal/model"
)

// maxLabelLen is the number of characters of a statement shown in a node label.
const maxLabelLen = 50

// edgeKey is the aggregation key for edges.
type edgeKey struct {
	Source, Target string
}

// Builder accumulates nodes and edges in first-seen order, aggregating
// repeated occurrences into weights.
type Builder struct {
	transactionView bool

	nodes   []model.Node
	edges   []model.Edge
	nodeIdx map[string]int
	edgeIdx map[edgeKey]int
}

// NewBuilder creates an empty Builder.
func NewBuilder(transactionView bool) *Builder {
	return &Builder{
		transactionView: transactionView,
		nodeIdx:         make(map[string]int),
		edgeIdx:         make(map[edgeKey]int),
	}
}

// Build folds the table into the builder in a single left-to-right pass.
// Consecutive entries of the same session produce an edge pointing from the
// later statement back to the earlier one.
func (b *Builder) Build(t *EntryTable) {
	for i := 0; i < t.Len(); i++ {
		b.addNode(t.StmtCol[i])

		if i == 0 || t.SessCol[i] != t.SessCol[i-1] {
			continue
		}
		isTx := b.transactionView && t.TxCol[i] == t.TxCol[i-1]
		b.addEdge(t.StmtCol[i], t.StmtCol[i-1], isTx)
	}
}

// Graph returns the accumulated graph. The builder must not be used
// afterwards.
func (b *Builder) Graph() *model.Graph {
	nodes := b.nodes
	if nodes == nil {
		nodes = []model.Node{}
	}
	edges := b.edges
	if edges == nil {
		edges = []model.Edge{}
	}
	return &model.Graph{Nodes: nodes, Edges: edges}
}

func (b *Builder) addNode(statement string) {
	if i, ok := b.nodeIdx[statement]; ok {
		b.nodes[i].Weight++
		return
	}
	b.nodeIdx[statement] = len(b.nodes)
	b.nodes = append(b.nodes, model.Node{
		ID:     statement,
		Weight: 1,
		Label:  truncateLabel(statement),
	})
}

// addEdge upserts the edge source->target. The transaction flag is decided
// by the first occurrence.
func (b *Builder) addEdge(source, target string, isTx bool) {
	k := edgeKey{source, target}
	if i, ok := b.edgeIdx[k]; ok {
		e := &b.edges[i]
		e.Weight++
		e.Label = strconv.FormatFloat(e.Weight, 'f', -1, 64)
		return
	}
	b.edgeIdx[k] = len(b.edges)
	b.edges = append(b.edges, model.Edge{
		ID:            model.EdgeID(source, target),
		Source:        source,
		Target:        target,
		Weight:        1,
		Label:         "1",
		IsTransaction: isTx,
	})
}

func truncateLabel(s string) string {
	r := []rune(s)
	if len(r) <= maxLabelLen {
		return s
	}
	return string(r[:maxLabelLen]) + " ..."
}
