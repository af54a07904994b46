package nav

import "github.com/coffersTech/nanoflow/internal/model"

// State is the user's current selection on a graph. The zero value has
// nothing selected. State never modifies the graph it describes.
type State struct {
	HighlightedEdgeID   string `json:"highlightedEdgeId,omitempty"`
	ActiveSequenceIndex int    `json:"activeSequenceIndex"`
}

// NewState returns a State with nothing selected.
func NewState() State {
	return State{ActiveSequenceIndex: NoSequence}
}

// SelectEdge highlights the edge with the given id.
func (s *State) SelectEdge(id string) {
	s.HighlightedEdgeID = id
}

// SelectNode moves playback to the next sequence containing id. Repeated
// selections of the same node step through every sequence it appears in,
// then fall back to no active sequence.
func (s *State) SelectNode(sequences model.SequenceSet, id string) int {
	s.ActiveSequenceIndex = AdvanceSequenceContaining(sequences, id, s.ActiveSequenceIndex)
	return s.ActiveSequenceIndex
}

// ClearSelection drops both the highlighted edge and the active sequence.
func (s *State) ClearSelection() {
	*s = NewState()
}

// ActiveSequence returns the sequence being played back, or nil.
func (s State) ActiveSequence(sequences model.SequenceSet) []string {
	if s.ActiveSequenceIndex < 0 || s.ActiveSequenceIndex >= len(sequences) {
		return nil
	}
	return sequences[s.ActiveSequenceIndex]
}

// Colors resolves every edge of g against the selection, keyed by edge id.
func (s State) Colors(g *model.Graph, sequences model.SequenceSet) map[string]ColorTag {
	colors := make(map[string]ColorTag)
	if g == nil {
		return colors
	}
	active := s.ActiveSequence(sequences)
	for _, e := range g.Edges {
		colors[e.ID] = ResolveEdgeColor(e, active, s.HighlightedEdgeID)
	}
	return colors
}

// EdgeDetail is what the detail panel shows for a highlighted edge.
type EdgeDetail struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Occurrences   string `json:"occurrences"`
	InTransaction bool   `json:"inTransaction"`
}

// Describe explains edge in execution order: the target ran first and the
// source followed it.
func Describe(edge model.Edge) EdgeDetail {
	return EdgeDetail{
		From:          edge.Target,
		To:            edge.Source,
		Occurrences:   edge.Label,
		InTransaction: edge.IsTransaction,
	}
}
