// Package nav resolves how graph edges are emphasised while a user explores
// the graph, and tracks the selection that drives it.
package nav

import "github.com/coffersTech/nanoflow/internal/model"

// ColorTag is the display emphasis of an edge.
type ColorTag string

const (
	Highlight   ColorTag = "HIGHLIGHT"
	Path        ColorTag = "PATH"
	Transaction ColorTag = "TRANSACTION"
	Default     ColorTag = "DEFAULT"
)

var tagColors = map[ColorTag]string{
	Highlight:   "#FF8C00",
	Path:        "#002aff",
	Transaction: "#7fb3dd",
	Default:     "#b3b3b3",
}

// Color returns the display color of the tag. Unknown tags get the default
// color.
func (t ColorTag) Color() string {
	if c, ok := tagColors[t]; ok {
		return c
	}
	return tagColors[Default]
}

// ResolveEdgeColor picks the emphasis for edge. A nil activeSequence and an
// empty highlightedEdgeID mean nothing is selected.
//
// Edges point from the later statement to the earlier one, so a step
// seq[k] -> seq[k+1] of the active sequence matches an edge whose target is
// seq[k] and whose source is seq[k+1].
func ResolveEdgeColor(edge model.Edge, activeSequence []string, highlightedEdgeID string) ColorTag {
	if highlightedEdgeID != "" && highlightedEdgeID == edge.ID {
		return Highlight
	}
	for k := 0; k+1 < len(activeSequence); k++ {
		if activeSequence[k] == edge.Target && activeSequence[k+1] == edge.Source {
			return Path
		}
	}
	if edge.IsTransaction {
		return Transaction
	}
	return Default
}

// NoSequence is the index reported when no sequence is active.
const NoSequence = -1

// AdvanceSequenceContaining returns the index of the first sequence after
// current that contains nodeID, or NoSequence once the set is exhausted.
// Passing NoSequence as current searches from the start.
func AdvanceSequenceContaining(sequences model.SequenceSet, nodeID string, current int) int {
	start := current + 1
	if start < 0 {
		start = 0
	}
	for i := start; i < len(sequences); i++ {
		for _, stmt := range sequences[i] {
			if stmt == nodeID {
				return i
			}
		}
	}
	return NoSequence
}
