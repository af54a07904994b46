// Package storage encodes graphs as JSON snapshots, optionally compressed,
// and keeps an archive of built graphs on disk.
package storage

import (
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/nanoflow/internal/model"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

var parserPool fastjson.ParserPool

// Marshal encodes g as {"nodes":[...],"edges":[...]}. Keys are written in a
// fixed order and numbers in their shortest form, so decoding and encoding
// again yields the same bytes.
//
// Statements may carry control characters, which encoding/json escapes as
// \u00XX; fastjson's writer would emit Go escapes instead.
func Marshal(g *model.Graph) ([]byte, error) {
	out := model.Graph{Nodes: []model.Node{}, Edges: []model.Edge{}}
	if g != nil {
		if g.Nodes != nil {
			out.Nodes = g.Nodes
		}
		if g.Edges != nil {
			out.Edges = g.Edges
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, flowerr.Wrap(err, flowerr.CodeSnapshotWriteFailure, "encoding snapshot")
	}
	return data, nil
}

// Export writes the JSON snapshot of g to w.
func Export(w io.Writer, g *model.Graph) error {
	data, err := Marshal(g)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return flowerr.Wrap(err, flowerr.CodeSnapshotWriteFailure, "writing snapshot")
	}
	return nil
}

// Unmarshal decodes a snapshot. Besides the {"nodes","edges"} object it
// accepts a flat list of elements, each either bare or wrapped in "data";
// elements with a "source" are edges. Any malformed element rejects the whole
// snapshot.
func Unmarshal(data []byte) (*model.Graph, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, invalid("malformed json: %v", err)
	}

	g := &model.Graph{Nodes: []model.Node{}, Edges: []model.Edge{}}
	switch v.Type() {
	case fastjson.TypeObject:
		nodes, err := arrayField(v, "nodes")
		if err != nil {
			return nil, err
		}
		edges, err := arrayField(v, "edges")
		if err != nil {
			return nil, err
		}
		for i, nv := range nodes {
			n, err := decodeNode(nv)
			if err != nil {
				return nil, invalid("nodes[%d]: %v", i, err)
			}
			g.Nodes = append(g.Nodes, n)
		}
		for i, ev := range edges {
			e, err := decodeEdge(ev)
			if err != nil {
				return nil, invalid("edges[%d]: %v", i, err)
			}
			g.Edges = append(g.Edges, e)
		}
	case fastjson.TypeArray:
		elements, _ := v.Array()
		for i, el := range elements {
			if el.Type() != fastjson.TypeObject {
				return nil, invalid("elements[%d]: not an object", i)
			}
			if data := el.Get("data"); data != nil {
				el = data
			}
			if el.Exists("source") {
				e, err := decodeEdge(el)
				if err != nil {
					return nil, invalid("elements[%d]: %v", i, err)
				}
				g.Edges = append(g.Edges, e)
				continue
			}
			n, err := decodeNode(el)
			if err != nil {
				return nil, invalid("elements[%d]: %v", i, err)
			}
			g.Nodes = append(g.Nodes, n)
		}
	default:
		return nil, invalid("snapshot must be an object or an array, got %s", v.Type())
	}

	if err := checkGraph(g); err != nil {
		return nil, err
	}
	return g, nil
}

func decodeNode(v *fastjson.Value) (model.Node, error) {
	if v.Type() != fastjson.TypeObject {
		return model.Node{}, errNotObject
	}
	id, err := requiredString(v, "id")
	if err != nil {
		return model.Node{}, err
	}
	weight, err := number(v, "weight")
	if err != nil {
		return model.Node{}, err
	}
	label, err := optionalString(v, "label")
	if err != nil {
		return model.Node{}, err
	}
	return model.Node{ID: id, Weight: weight, Label: label}, nil
}

func decodeEdge(v *fastjson.Value) (model.Edge, error) {
	if v.Type() != fastjson.TypeObject {
		return model.Edge{}, errNotObject
	}
	source, err := requiredString(v, "source")
	if err != nil {
		return model.Edge{}, err
	}
	target, err := requiredString(v, "target")
	if err != nil {
		return model.Edge{}, err
	}
	weight, err := number(v, "weight")
	if err != nil {
		return model.Edge{}, err
	}
	label, err := optionalString(v, "label")
	if err != nil {
		return model.Edge{}, err
	}
	id, err := optionalString(v, "id")
	if err != nil {
		return model.Edge{}, err
	}
	if id == "" {
		id = model.EdgeID(source, target)
	}

	e := model.Edge{ID: id, Source: source, Target: target, Weight: weight, Label: label}
	if tx := v.Get("isTransaction"); tx != nil {
		switch tx.Type() {
		case fastjson.TypeTrue:
			e.IsTransaction = true
		case fastjson.TypeFalse:
		default:
			return model.Edge{}, fieldError("isTransaction", "boolean")
		}
	}
	return e, nil
}

// checkGraph enforces the graph invariants a loaded snapshot must satisfy:
// unique ids and edges whose endpoints are nodes.
func checkGraph(g *model.Graph) error {
	nodes := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return invalid("duplicate node %q", n.ID)
		}
		nodes[n.ID] = struct{}{}
	}
	edges := make(map[string]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if _, dup := edges[e.ID]; dup {
			return invalid("duplicate edge %q", e.ID)
		}
		edges[e.ID] = struct{}{}
		if _, ok := nodes[e.Source]; !ok {
			return invalid("edge %q: unknown source node", e.ID)
		}
		if _, ok := nodes[e.Target]; !ok {
			return invalid("edge %q: unknown target node", e.ID)
		}
	}
	return nil
}

func arrayField(v *fastjson.Value, key string) ([]*fastjson.Value, error) {
	f := v.Get(key)
	if f == nil {
		return nil, invalid("missing %q", key)
	}
	arr, err := f.Array()
	if err != nil {
		return nil, invalid("%q must be an array", key)
	}
	return arr, nil
}

func requiredString(v *fastjson.Value, key string) (string, error) {
	f := v.Get(key)
	if f == nil {
		return "", fieldError(key, "present")
	}
	b, err := f.StringBytes()
	if err != nil {
		return "", fieldError(key, "a string")
	}
	return string(b), nil
}

func optionalString(v *fastjson.Value, key string) (string, error) {
	if v.Get(key) == nil {
		return "", nil
	}
	return requiredString(v, key)
}

// number parses the raw number text with strconv so the value survives an
// encode/decode cycle bit for bit.
func number(v *fastjson.Value, key string) (float64, error) {
	f := v.Get(key)
	if f == nil || f.Type() != fastjson.TypeNumber {
		return 0, fieldError(key, "a number")
	}
	n, err := strconv.ParseFloat(string(f.MarshalTo(nil)), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fieldError(key, "a finite number")
	}
	return n, nil
}
