package engine

import (
	"fmt"
	"strings"

	"github.com/coffersTech/nanoflow/internal/model"
)

// Ordering selects which entry counts as "previous" when building edges.
type Ordering int

const (
	// OrderArrival keeps entries in log order. This is the default.
	OrderArrival Ordering = iota
	// OrderBySession stably sorts entries by session id before building,
	// so each session's statements are contiguous regardless of how the
	// log interleaved them.
	OrderBySession
)

// String returns the settings name of the ordering.
func (o Ordering) String() string {
	switch o {
	case OrderBySession:
		return "session"
	default:
		return "arrival"
	}
}

// ParseOrdering converts a settings name into an Ordering.
// The empty string selects OrderArrival.
func ParseOrdering(s string) (Ordering, error) {
	switch strings.ToLower(s) {
	case "", "arrival":
		return OrderArrival, nil
	case "session":
		return OrderBySession, nil
	default:
		return OrderArrival, fmt.Errorf("unknown ordering %q", s)
	}
}

// Options are the settings a transform pass reads.
type Options struct {
	TransactionView bool
	Threshold       float64 // 0 disables edge pruning
	NodeMultiplier  float64
	ExcludedPhrases []string
	Ordering        Ordering
}

// Result is the output of one transform pass.
type Result struct {
	Graph     *model.Graph
	Sequences model.SequenceSet
	Stats     Stats
}

// Transform turns fully materialized log rows into a graph and the set of
// session sequences. It performs no I/O and never modifies rows; calling it
// twice with the same arguments yields identical results.
func Transform(rows []model.LogRow, opts Options) *Result {
	table := NewEntryTable(len(rows))

	classifier := NewClassifier(opts.ExcludedPhrases)
	classifier.Classify(rows, table)

	if opts.TransactionView {
		TagTransactions(table)
	}
	if opts.Ordering == OrderBySession {
		table.SortBySession()
	}

	builder := NewBuilder(opts.TransactionView)
	builder.Build(table)
	built := builder.Graph()

	graph := Prune(built, opts.Threshold)
	Normalize(graph, opts.NodeMultiplier)

	sequences := ExtractSequences(table)

	return &Result{
		Graph:     graph,
		Sequences: sequences,
		Stats: Stats{
			ClassifyStats: classifier.Stats(),
			BuiltNodes:    len(built.Nodes),
			BuiltEdges:    len(built.Edges),
			Nodes:         len(graph.Nodes),
			Edges:         len(graph.Edges),
			Sequences:     len(sequences),
		},
	}
}
