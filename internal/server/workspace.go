package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coffersTech/nanoflow/internal/engine"
	"github.com/coffersTech/nanoflow/internal/model"
	"github.com/coffersTech/nanoflow/internal/nav"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

// GraphView is the current graph together with what produced it.
type GraphView struct {
	Revision  string            `json:"revision"`
	ReadOnly  bool              `json:"readOnly"`
	BuiltAt   time.Time         `json:"builtAt"`
	Sources   []string          `json:"sources,omitempty"`
	Stats     *engine.Stats     `json:"stats,omitempty"`
	Graph     *model.Graph      `json:"graph"`
	Sequences model.SequenceSet `json:"-"`
}

// NavView is the navigation state resolved against the current graph.
type NavView struct {
	Revision       string                  `json:"revision"`
	State          nav.State               `json:"state"`
	ActiveSequence []string                `json:"activeSequence"`
	Colors         map[string]string       `json:"colors"`
	Tags           map[string]nav.ColorTag `json:"tags"`
	Edge           *nav.EdgeDetail         `json:"edge,omitempty"`
}

// Workspace holds the rows of the last upload and the graph built from
// them. A rebuild always starts again from the retained rows and replaces
// the graph wholesale; navigation state is reset whenever the graph changes.
type Workspace struct {
	mu      sync.RWMutex
	rows    []model.LogRow
	current *GraphView

	navMu    sync.Mutex
	navState nav.State
}

func NewWorkspace() *Workspace {
	return &Workspace{navState: nav.NewState()}
}

// Build transforms rows with opts and makes the result current. The rows
// are retained for later refreshes.
func (w *Workspace) Build(rows []model.LogRow, sources []string, opts engine.Options, now time.Time) GraphView {
	res := engine.Transform(rows, opts)

	view := &GraphView{
		Revision:  uuid.NewString(),
		BuiltAt:   now,
		Sources:   append([]string(nil), sources...),
		Stats:     &res.Stats,
		Graph:     res.Graph,
		Sequences: res.Sequences,
	}

	w.swap(rows, view)
	return *view
}

// Refresh rebuilds the graph from the retained rows with new options.
func (w *Workspace) Refresh(opts engine.Options, now time.Time) (GraphView, error) {
	w.mu.RLock()
	rows, current := w.rows, w.current
	w.mu.RUnlock()

	if current == nil {
		return GraphView{}, flowerr.New(flowerr.CodeServerGraphNotFound, "no graph has been built")
	}
	if current.ReadOnly {
		return GraphView{}, flowerr.New(flowerr.CodeServerGraphReadOnly, "imported graphs cannot be rebuilt",
			flowerr.Field("revision", current.Revision))
	}
	return w.Build(rows, current.Sources, opts, now), nil
}

// Import makes g current as a read-only graph. Imported graphs carry no
// rows, so they have no sequences and cannot be refreshed.
func (w *Workspace) Import(g *model.Graph, source string, builtAt time.Time) GraphView {
	view := &GraphView{
		Revision:  uuid.NewString(),
		ReadOnly:  true,
		BuiltAt:   builtAt,
		Graph:     g,
		Sequences: model.SequenceSet{},
	}
	if source != "" {
		view.Sources = []string{source}
	}

	w.swap(nil, view)
	return *view
}

// Current returns the current graph.
func (w *Workspace) Current() (GraphView, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentLocked()
}

func (w *Workspace) currentLocked() (GraphView, error) {
	if w.current == nil {
		return GraphView{}, flowerr.New(flowerr.CodeServerGraphNotFound, "no graph has been built")
	}
	return *w.current, nil
}

// swap replaces the graph and resets navigation in one critical section.
// Lock order is mu, then navMu.
func (w *Workspace) swap(rows []model.LogRow, view *GraphView) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = rows
	w.current = view

	w.navMu.Lock()
	w.navState = nav.NewState()
	w.navMu.Unlock()
}

// withNav runs fn on the navigation state while the graph it refers to is
// held current.
func (w *Workspace) withNav(fn func(view GraphView) error) (NavView, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	view, err := w.currentLocked()
	if err != nil {
		return NavView{}, err
	}

	w.navMu.Lock()
	defer w.navMu.Unlock()
	if err := fn(view); err != nil {
		return NavView{}, err
	}
	return w.navViewLocked(view), nil
}

// SelectEdge highlights an edge of the current graph.
func (w *Workspace) SelectEdge(id string) (NavView, error) {
	return w.withNav(func(view GraphView) error {
		if _, ok := view.Graph.Edge(id); !ok {
			return flowerr.New(flowerr.CodeServerGraphNotFound, "no such edge", flowerr.Field("edge", id))
		}
		w.navState.SelectEdge(id)
		return nil
	})
}

// SelectNode advances playback to the next sequence containing the node.
func (w *Workspace) SelectNode(id string) (NavView, error) {
	return w.withNav(func(view GraphView) error {
		if _, ok := view.Graph.Node(id); !ok {
			return flowerr.New(flowerr.CodeServerGraphNotFound, "no such node", flowerr.Field("node", id))
		}
		w.navState.SelectNode(view.Sequences, id)
		return nil
	})
}

func (w *Workspace) ClearSelection() (NavView, error) {
	return w.withNav(func(GraphView) error {
		w.navState.ClearSelection()
		return nil
	})
}

func (w *Workspace) Nav() (NavView, error) {
	return w.withNav(func(GraphView) error { return nil })
}

func (w *Workspace) navViewLocked(view GraphView) NavView {
	tags := w.navState.Colors(view.Graph, view.Sequences)
	colors := make(map[string]string, len(tags))
	for id, tag := range tags {
		colors[id] = tag.Color()
	}

	nv := NavView{
		Revision:       view.Revision,
		State:          w.navState,
		ActiveSequence: w.navState.ActiveSequence(view.Sequences),
		Colors:         colors,
		Tags:           tags,
	}
	if e, ok := view.Graph.Edge(w.navState.HighlightedEdgeID); ok {
		detail := nav.Describe(e)
		nv.Edge = &detail
	}
	return nv
}
