package server

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/coffersTech/nanoflow/internal/model"
	"github.com/coffersTech/nanoflow/internal/nav"
	"github.com/coffersTech/nanoflow/internal/settings"
	"github.com/coffersTech/nanoflow/internal/storage"
)

const (
	stmtA = "SELECT a FROM t"
	stmtB = "SELECT b FROM t"
)

type testEnv struct {
	srv     *Server
	http    *httptest.Server
	archive *storage.Archive
	token   string
}

func newTestEnv(t *testing.T, withAuth bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := settings.NewStore(filepath.Join(dir, "settings.json"))
	require.NoError(t, store.Load())
	archive, err := storage.NewArchive(filepath.Join(dir, "graphs"), 0, logger)
	require.NoError(t, err)

	env := &testEnv{archive: archive}
	opts := Options{Settings: store, Archive: archive, Logger: logger}
	if withAuth {
		env.token = "s3cret"
		hash, err := HashAPIKey(env.token, bcrypt.MinCost)
		require.NoError(t, err)
		opts.APIKeyHash = hash
	}

	env.srv, err = New(opts)
	require.NoError(t, err)
	env.http = httptest.NewServer(env.srv.Handler())
	t.Cleanup(env.http.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) upload(t *testing.T, files map[string]string, order ...string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		fw, err := mw.CreateFormFile(uploadField, name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, files[name])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return e.do(t, http.MethodPost, "/api/graph", &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// csvLog renders rows of (session, transaction, message) as csvlog lines.
func csvLog(t *testing.T, rows ...[3]string) string {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, r := range rows {
		fields := make([]string, 23)
		fields[model.ColSession] = r[0]
		fields[model.ColTransaction] = r[1]
		fields[model.ColStatement] = r[2]
		require.NoError(t, w.Write(fields))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return buf.String()
}

func scenarioFiles(t *testing.T) map[string]string {
	return map[string]string{
		"s1.csv": csvLog(t,
			[3]string{"s1", "10", "statement: " + stmtA},
			[3]string{"s1", "10", "statement: " + stmtB},
			[3]string{"s1", "11", "statement: " + stmtA},
		),
		"s2.csv": csvLog(t,
			[3]string{"s2", "12", "statement: " + stmtA},
			[3]string{"s2", "13", "statement: " + stmtB},
			[3]string{"s2", "13", "statement: BEGIN"},
		),
	}
}

func (e *testEnv) buildScenario(t *testing.T) GraphView {
	t.Helper()
	resp := e.upload(t, scenarioFiles(t), "s1.csv", "s2.csv")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[GraphView](t, resp)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, true)
	resp, err := http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, true)

	resp, err := http.Get(env.http.URL + "/api/settings")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	req, _ := http.NewRequest(http.MethodGet, env.http.URL+"/api/settings", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(env.http.URL + "/api/settings?token=" + env.token)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/settings", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGraphNotBuiltYet(t *testing.T) {
	env := newTestEnv(t, false)

	for _, path := range []string{"/api/graph", "/api/sequences", "/api/nav", "/api/graph/export"} {
		resp := env.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	resp := env.do(t, http.MethodPost, "/api/graph/refresh", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBuildGraphFromUpload(t *testing.T) {
	env := newTestEnv(t, false)
	view := env.buildScenario(t)

	assert.False(t, view.ReadOnly)
	assert.NotEmpty(t, view.Revision)
	assert.Equal(t, []string{"s1.csv", "s2.csv"}, view.Sources)
	require.NotNil(t, view.Stats)
	assert.Equal(t, 6, view.Stats.Rows)
	assert.Equal(t, 1, view.Stats.Excluded)

	g := view.Graph
	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 2)

	a, _ := g.Node(stmtA)
	b, _ := g.Node(stmtB)
	assert.Equal(t, 30.0, a.Weight)
	assert.InDelta(t, 23.333, b.Weight, 0.001)

	ba, ok := g.Edge(model.EdgeID(stmtB, stmtA))
	require.True(t, ok)
	assert.Equal(t, 1.5, ba.Weight)
	assert.Equal(t, "2", ba.Label)
	ab, ok := g.Edge(model.EdgeID(stmtA, stmtB))
	require.True(t, ok)
	assert.Equal(t, 1.0, ab.Weight)

	resp := env.do(t, http.MethodGet, "/api/sequences", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	seqs := decode[struct {
		Revision  string            `json:"revision"`
		Sequences model.SequenceSet `json:"sequences"`
	}](t, resp)
	assert.Equal(t, view.Revision, seqs.Revision)
	assert.Equal(t, model.SequenceSet{{stmtA, stmtB, stmtA}, {stmtA, stmtB}}, seqs.Sequences)

	paths, err := env.archive.List()
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestBuildGraphRejectsBadUploads(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.do(t, http.MethodPost, "/api/graph", strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.upload(t, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.upload(t, map[string]string{"bad.csv.zst": "not compressed"}, "bad.csv.zst")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "ingest.parse.failure", body.Code)

	resp = env.do(t, http.MethodGet, "/api/graph", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSettingsChangeRebuildsGraph(t *testing.T) {
	env := newTestEnv(t, false)
	first := env.buildScenario(t)

	resp := env.do(t, http.MethodPut, "/api/settings", strings.NewReader(`{"threshold": 2}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[settingsResponse](t, resp)
	assert.Equal(t, 2.0, updated.Threshold)
	assert.Equal(t, 20.0, updated.NodeMultiplier)
	assert.True(t, updated.Rebuilt)
	assert.Empty(t, updated.RebuildError)

	resp = env.do(t, http.MethodGet, "/api/graph", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[GraphView](t, resp)
	assert.NotEqual(t, first.Revision, view.Revision)
	assert.Equal(t, updated.Revision, view.Revision)
	require.Len(t, view.Graph.Edges, 1)
	assert.Equal(t, model.EdgeID(stmtB, stmtA), view.Graph.Edges[0].ID)

	resp = env.do(t, http.MethodPost, "/api/graph/refresh", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSettingsSavedWithoutRebuild(t *testing.T) {
	env := newTestEnv(t, false)

	// empty workspace
	resp := env.do(t, http.MethodPut, "/api/settings", strings.NewReader(`{"threshold": 3}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[settingsResponse](t, resp)
	assert.Equal(t, 3.0, updated.Threshold)
	assert.False(t, updated.Rebuilt)

	// imported graphs refuse a refresh, the settings still stick
	built := env.buildScenario(t)
	exported, err := storage.Marshal(built.Graph)
	require.NoError(t, err)
	resp = env.do(t, http.MethodPost, "/api/graph/import", bytes.NewReader(exported), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	imported := decode[GraphView](t, resp)

	resp = env.do(t, http.MethodPut, "/api/settings", strings.NewReader(`{"nodeMultiplier": 5}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated = decode[settingsResponse](t, resp)
	assert.False(t, updated.Rebuilt)
	assert.Empty(t, updated.RebuildError)
	assert.Equal(t, 5.0, updated.NodeMultiplier)

	resp = env.do(t, http.MethodGet, "/api/settings", nil, "")
	assert.Equal(t, 5.0, decode[settings.Settings](t, resp).NodeMultiplier)

	resp = env.do(t, http.MethodGet, "/api/graph", nil, "")
	assert.Equal(t, imported.Revision, decode[GraphView](t, resp).Revision)
}

func TestSettingsRejectsInvalid(t *testing.T) {
	env := newTestEnv(t, false)

	for _, body := range []string{`{"fontSize": 42}`, `{"colour": "red"}`, `{"threshold": "high"}`, `not json`} {
		resp := env.do(t, http.MethodPut, "/api/settings", strings.NewReader(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	resp := env.do(t, http.MethodGet, "/api/settings", nil, "")
	assert.Equal(t, settings.Default(), decode[settings.Settings](t, resp))
}

func TestExportImportRoundTrip(t *testing.T) {
	env := newTestEnv(t, false)
	built := env.buildScenario(t)

	for _, format := range []string{"json", "nfg"} {
		t.Run(format, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, "/api/graph/export?format="+format, nil, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Disposition"), "graph.")
			exported, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			resp = env.do(t, http.MethodPost, "/api/graph/import?name=shared", bytes.NewReader(exported), "application/octet-stream")
			require.Equal(t, http.StatusCreated, resp.StatusCode)
			imported := decode[GraphView](t, resp)
			assert.True(t, imported.ReadOnly)
			assert.Equal(t, built.Graph, imported.Graph)

			resp = env.do(t, http.MethodPost, "/api/graph/refresh", nil, "")
			assert.Equal(t, http.StatusConflict, resp.StatusCode)
		})
	}

	resp := env.do(t, http.MethodGet, "/api/graph/export?format=xml", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportRejectsMalformedSnapshot(t *testing.T) {
	env := newTestEnv(t, false)
	env.buildScenario(t)

	resp := env.do(t, http.MethodPost, "/api/graph/import", strings.NewReader(`{"nodes":[{"id":"A"}],"edges":[]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// the previous graph is still current
	resp = env.do(t, http.MethodGet, "/api/graph", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[GraphView](t, resp).ReadOnly)

	metrics := env.do(t, http.MethodGet, "/metrics", nil, "")
	body, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `nanoflow_snapshot_loads_total{result="failure"} 1`)
	assert.Contains(t, string(body), `nanoflow_transforms_total{result="success"} 1`)
}

func TestNavigation(t *testing.T) {
	env := newTestEnv(t, false)
	env.buildScenario(t)
	ba := model.EdgeID(stmtB, stmtA)
	ab := model.EdgeID(stmtA, stmtB)

	post := func(path, id string) *http.Response {
		body, _ := json.Marshal(map[string]string{"id": id})
		return env.do(t, http.MethodPost, path, bytes.NewReader(body), "application/json")
	}

	resp := env.do(t, http.MethodGet, "/api/nav", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	nv := decode[NavView](t, resp)
	assert.Equal(t, nav.NoSequence, nv.State.ActiveSequenceIndex)
	assert.Equal(t, nav.Default.Color(), nv.Colors[ba])

	resp = post("/api/nav/edge", ba)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	nv = decode[NavView](t, resp)
	assert.Equal(t, nav.Highlight, nv.Tags[ba])
	assert.Equal(t, "#FF8C00", nv.Colors[ba])
	require.NotNil(t, nv.Edge)
	assert.Equal(t, stmtA, nv.Edge.From)
	assert.Equal(t, stmtB, nv.Edge.To)
	assert.Equal(t, "2", nv.Edge.Occurrences)

	resp = post("/api/nav/node", stmtB)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	nv = decode[NavView](t, resp)
	assert.Equal(t, 0, nv.State.ActiveSequenceIndex)
	assert.Equal(t, []string{stmtA, stmtB, stmtA}, nv.ActiveSequence)
	assert.Equal(t, nav.Path, nv.Tags[ab])

	nv = decode[NavView](t, post("/api/nav/node", stmtB))
	assert.Equal(t, 1, nv.State.ActiveSequenceIndex)
	nv = decode[NavView](t, post("/api/nav/node", stmtB))
	assert.Equal(t, nav.NoSequence, nv.State.ActiveSequenceIndex)
	assert.Nil(t, nv.ActiveSequence)

	resp = env.do(t, http.MethodDelete, "/api/nav", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	nv = decode[NavView](t, resp)
	assert.Empty(t, nv.State.HighlightedEdgeID)
	assert.Nil(t, nv.Edge)

	assert.Equal(t, http.StatusNotFound, post("/api/nav/edge", "nope").StatusCode)
	assert.Equal(t, http.StatusNotFound, post("/api/nav/node", "nope").StatusCode)
	resp = env.do(t, http.MethodPost, "/api/nav/edge", strings.NewReader(`{"id": 7}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/api/nav/node", strings.NewReader(`{`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNavigationResetsOnRebuild(t *testing.T) {
	env := newTestEnv(t, false)
	env.buildScenario(t)

	body := `{"id":"` + stmtA + `"}`
	resp := env.do(t, http.MethodPost, "/api/nav/node", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/graph/refresh", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	nv := decode[NavView](t, env.do(t, http.MethodGet, "/api/nav", nil, ""))
	assert.Equal(t, nav.NoSequence, nv.State.ActiveSequenceIndex)
}

func TestRestoreFromArchive(t *testing.T) {
	env := newTestEnv(t, false)

	restored, err := env.srv.Restore()
	require.NoError(t, err)
	assert.False(t, restored)

	built := env.buildScenario(t)

	fresh, err := New(Options{Settings: env.srv.settings, Archive: env.archive, Logger: env.srv.logger})
	require.NoError(t, err)
	restored, err = fresh.Restore()
	require.NoError(t, err)
	require.True(t, restored)

	view, err := fresh.ws.Current()
	require.NoError(t, err)
	assert.True(t, view.ReadOnly)
	assert.Equal(t, built.Graph, view.Graph)
}
