package storage

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/nanoflow/internal/engine"
	"github.com/coffersTech/nanoflow/internal/model"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

func sampleGraph() *model.Graph {
	return &model.Graph{
		Nodes: []model.Node{
			{ID: "SELECT a FROM t WHERE id = ?", Weight: 30, Label: "SELECT a FROM t WHERE id = ?"},
			{ID: "T:UPDATE t SET <x> = ?", Weight: 23.333333333333332, Label: "T:UPDATE t SET <x> = ?"},
		},
		Edges: []model.Edge{
			{
				ID:     model.EdgeID("T:UPDATE t SET <x> = ?", "SELECT a FROM t WHERE id = ?"),
				Source: "T:UPDATE t SET <x> = ?", Target: "SELECT a FROM t WHERE id = ?",
				Weight: 1.5, Label: "2", IsTransaction: true,
			},
			{
				ID:     model.EdgeID("SELECT a FROM t WHERE id = ?", "T:UPDATE t SET <x> = ?"),
				Source: "SELECT a FROM t WHERE id = ?", Target: "T:UPDATE t SET <x> = ?",
				Weight: 1.0000000000000002, Label: "1",
			},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	g := sampleGraph()

	var first bytes.Buffer
	require.NoError(t, Export(&first, g))

	loaded, err := Unmarshal(first.Bytes())
	require.NoError(t, err)
	assert.Equal(t, g, loaded)

	var second bytes.Buffer
	require.NoError(t, Export(&second, loaded))
	assert.Equal(t, first.String(), second.String())
}

func statementRow(session, stmt string) model.LogRow {
	row := make(model.LogRow, model.ColStatement+1)
	row[model.ColSession] = session
	row[model.ColTransaction] = session
	row[model.ColStatement] = "statement: " + stmt
	return row
}

func TestSnapshotRoundTripStatementsWithSeparators(t *testing.T) {
	// Without a length prefix both edges would join to "a\x1fb\x1fc".
	rows := []model.LogRow{
		statementRow("s1", "c"),
		statementRow("s1", "a\x1fb"),
		statementRow("s2", "b\x1fc"),
		statementRow("s2", "a"),
	}
	g := engine.Transform(rows, engine.Options{Threshold: 1, NodeMultiplier: 20}).Graph
	require.Len(t, g.Edges, 2)
	assert.NotEqual(t, g.Edges[0].ID, g.Edges[1].ID)

	data, err := Marshal(g)
	require.NoError(t, err)
	loaded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, g, loaded)

	e, ok := loaded.Edge(model.EdgeID("a", "b\x1fc"))
	require.True(t, ok)
	assert.Equal(t, "a", e.Source)
	assert.Equal(t, "b\x1fc", e.Target)
}

func TestSnapshotEmptyGraph(t *testing.T) {
	for _, g := range []*model.Graph{nil, {}} {
		data, err := Marshal(g)
		require.NoError(t, err)
		assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(data))

		loaded, err := Unmarshal(data)
		require.NoError(t, err)
		assert.True(t, loaded.Empty())
		assert.NotNil(t, loaded.Nodes)
		assert.NotNil(t, loaded.Edges)
	}
}

func TestUnmarshalElementList(t *testing.T) {
	data := `[
		{"data":{"id":"A","weight":30,"label":"A"}},
		{"id":"B","weight":10,"label":"B"},
		{"data":{"source":"B","target":"A","weight":1.5,"label":"2","isTransaction":true}}
	]`

	g, err := Unmarshal([]byte(data))
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)

	e := g.Edges[0]
	assert.Equal(t, model.EdgeID("B", "A"), e.ID)
	assert.Equal(t, 1.5, e.Weight)
	assert.True(t, e.IsTransaction)
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"nodes":`},
		{"scalar", `42`},
		{"missing edges", `{"nodes":[]}`},
		{"nodes not array", `{"nodes":{},"edges":[]}`},
		{"node without id", `{"nodes":[{"weight":1}],"edges":[]}`},
		{"node id not string", `{"nodes":[{"id":1,"weight":1}],"edges":[]}`},
		{"weight as string", `{"nodes":[{"id":"A","weight":"1"}],"edges":[]}`},
		{"weight nan", `{"nodes":[{"id":"A","weight":NaN}],"edges":[]}`},
		{"bad tx flag", `{"nodes":[{"id":"A","weight":1},{"id":"B","weight":1}],"edges":[{"source":"B","target":"A","weight":1,"isTransaction":"yes"}]}`},
		{"dangling edge", `{"nodes":[{"id":"A","weight":1}],"edges":[{"source":"B","target":"A","weight":1}]}`},
		{"duplicate node", `{"nodes":[{"id":"A","weight":1},{"id":"A","weight":2}],"edges":[]}`},
		{"element not object", `[{"id":"A","weight":1}, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Unmarshal([]byte(tt.data))
			require.Error(t, err)
			assert.Nil(t, g)
			assert.Equal(t, flowerr.CodeSnapshotInvalid, flowerr.CodeOf(err))
		})
	}
}

func TestCompressedSnapshotRoundTrip(t *testing.T) {
	w, err := NewSnapshotWriter()
	require.NoError(t, err)
	r, err := NewSnapshotReader()
	require.NoError(t, err)

	builtAt := time.Unix(1700000000, 42)
	var buf bytes.Buffer
	require.NoError(t, w.WriteSnapshot(&buf, sampleGraph(), builtAt))
	assert.True(t, IsCompressed(buf.Bytes()))

	snap, err := r.ReadSnapshot(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, sampleGraph(), snap.Graph)
	assert.True(t, builtAt.Equal(snap.CreatedAt))

	g, err := r.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, sampleGraph(), g)
}

func TestDecodePlainJSON(t *testing.T) {
	r, err := NewSnapshotReader()
	require.NoError(t, err)

	data, err := Marshal(sampleGraph())
	require.NoError(t, err)
	g, err := r.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, sampleGraph(), g)
}

func TestCompressedSnapshotCorruption(t *testing.T) {
	w, err := NewSnapshotWriter()
	require.NoError(t, err)
	r, err := NewSnapshotReader()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, w.WriteSnapshot(&buf, sampleGraph(), time.Now()))
	good := buf.Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"wrong magic", append([]byte("NANOLOG1"), good[8:]...)},
		{"truncated", good[:len(good)-5]},
		{"too small", good[:12]},
		{"bad footer count", func() []byte {
			b := bytes.Clone(good)
			b[len(b)-footerSize]++
			return b
		}()},
		{"flipped payload", func() []byte {
			b := bytes.Clone(good)
			b[len(MagicHeader)+6] ^= 0xff
			return b
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := r.ReadSnapshot(tt.data)
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.True(t, flowerr.IsInvalidInput(err))
		})
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveSaveAndLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "graphs")
	a, err := NewArchive(dir, 0, discardLogger())
	require.NoError(t, err)

	_, err = a.Latest()
	require.Error(t, err)
	assert.True(t, flowerr.IsNotFound(err))

	older := &model.Graph{Nodes: []model.Node{{ID: "A", Weight: 10, Label: "A"}}, Edges: []model.Edge{}}
	_, err = a.Save(older, time.Unix(100, 0))
	require.NoError(t, err)
	_, err = a.Save(sampleGraph(), time.Unix(200, 0))
	require.NoError(t, err)

	// stray files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	paths, err := a.List()
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.True(t, strings.HasSuffix(paths[0], "graph_100000000000.nfg"))

	snap, err := a.Latest()
	require.NoError(t, err)
	assert.Equal(t, sampleGraph(), snap.Graph)
}

func TestArchivePurgeExpired(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArchive(dir, time.Hour, discardLogger())
	require.NoError(t, err)

	now := time.Unix(10_000, 0)
	for _, at := range []time.Time{now.Add(-3 * time.Hour), now.Add(-2 * time.Hour), now.Add(-time.Minute)} {
		_, err := a.Save(sampleGraph(), at)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, a.purgeExpired(now))

	paths, err := a.List()
	require.NoError(t, err)
	assert.Len(t, paths, 1)

	// the newest snapshot survives even when it has expired
	assert.Equal(t, 0, a.purgeExpired(now.Add(24*time.Hour)))
}
