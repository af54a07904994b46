package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/coffersTech/nanoflow/internal/ingest"
	"github.com/coffersTech/nanoflow/internal/model"
	"github.com/coffersTech/nanoflow/internal/settings"
	"github.com/coffersTech/nanoflow/internal/storage"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

// uploadField is the multipart field carrying log files.
const uploadField = "files"

const maxNavBody = 64 << 10

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	view, err := s.ws.Current()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleBuildGraph parses every uploaded file and builds a graph from their
// concatenated rows. One unparsable file fails the whole upload.
func (s *Server) handleBuildGraph(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, s.logger, flowerr.Wrap(err, flowerr.CodeServerRequestInvalid, "expected a multipart upload"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[uploadField]
	sources := make([]ingest.Source, len(files))
	names := make([]string, len(files))
	for i, fh := range files {
		sources[i] = multipartSource(fh)
		names[i] = fh.Filename
	}

	rows, err := ingest.Load(r.Context(), sources)
	if err != nil {
		s.metrics.RecordTransformFailure()
		writeError(w, s.logger, err)
		return
	}

	view := s.build(rows, names)
	writeJSON(w, http.StatusCreated, view)
}

func multipartSource(fh *multipart.FileHeader) ingest.Source {
	return ingest.Source{
		Name: fh.Filename,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

func (s *Server) build(rows []model.LogRow, sources []string) GraphView {
	start := time.Now()
	view := s.ws.Build(rows, sources, s.settings.Get().EngineOptions(), s.now())
	s.afterBuild(view, time.Since(start))
	return view
}

func (s *Server) afterBuild(view GraphView, took time.Duration) {
	s.metrics.RecordTransform(*view.Stats, took)
	s.logger.Info("graph built",
		"revision", view.Revision,
		"rows", view.Stats.Rows,
		"entries", view.Stats.Entries,
		"nodes", view.Stats.Nodes,
		"edges", view.Stats.Edges,
		"pruned_edges", view.Stats.PrunedEdges(),
		"sequences", view.Stats.Sequences,
		"duration", took)

	if s.archive == nil {
		return
	}
	if _, err := s.archive.Save(view.Graph, view.BuiltAt); err != nil {
		s.logger.Error("archiving graph failed", "revision", view.Revision, "error", err)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	view, err := s.refresh()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) refresh() (GraphView, error) {
	start := time.Now()
	view, err := s.ws.Refresh(s.settings.Get().EngineOptions(), s.now())
	if err != nil {
		return GraphView{}, err
	}
	s.afterBuild(view, time.Since(start))
	return view, nil
}

// handleExport downloads the current graph as JSON, or as a compressed
// snapshot with ?format=nfg.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	view, err := s.ws.Current()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var buf bytes.Buffer
	filename := "graph.json"
	contentType := "application/json"
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		err = storage.Export(&buf, view.Graph)
	case "nfg":
		filename = "graph" + storage.SnapshotExt
		contentType = "application/octet-stream"
		err = s.writer.WriteSnapshot(&buf, view.Graph, view.BuiltAt)
	default:
		err = flowerr.Errorf(flowerr.CodeServerRequestInvalid, "unknown export format %q", format)
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// handleImport loads a previously exported graph, JSON or compressed, as
// the current read-only graph.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxUpload)
	g, err := s.reader.Decode(body)
	s.metrics.RecordSnapshotLoad(err)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	view := s.ws.Import(g, r.URL.Query().Get("name"), s.now())
	s.metrics.SetGraph(len(g.Nodes), len(g.Edges))
	s.logger.Info("graph imported", "revision", view.Revision, "nodes", len(g.Nodes), "edges", len(g.Edges))
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleSequences(w http.ResponseWriter, r *http.Request) {
	view, err := s.ws.Current()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"revision":  view.Revision,
		"sequences": view.Sequences,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Get())
}

// settingsResponse is the stored settings plus what became of the rebuild
// they triggered. The settings are saved even when the rebuild fails.
type settingsResponse struct {
	settings.Settings
	Rebuilt      bool   `json:"rebuilt"`
	Revision     string `json:"revision,omitempty"`
	RebuildError string `json:"rebuildError,omitempty"`
}

// handlePutSettings merges the body into the current settings. A graph
// built from uploaded rows is rebuilt with the new settings; imported graphs
// and an empty workspace are left alone.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNavBody))
	if err != nil {
		writeError(w, s.logger, flowerr.Wrap(err, flowerr.CodeServerRequestInvalid, "reading body"))
		return
	}

	updated, err := s.settings.Update(func(st *settings.Settings) error {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(st); err != nil {
			return flowerr.Wrap(err, flowerr.CodeSettingsInvalidValue, "decoding settings")
		}
		return nil
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.logger.Info("settings updated", "threshold", updated.Threshold, "transaction_view", updated.IsTransactionView)

	resp := settingsResponse{Settings: updated}
	view, err := s.refresh()
	switch {
	case err == nil:
		resp.Rebuilt = true
		resp.Revision = view.Revision
	case flowerr.IsNotFound(err), flowerr.IsConflict(err):
		// no graph, or an imported one
	default:
		s.logger.Error("rebuild after settings change failed", "error", err)
		resp.RebuildError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetNav(w http.ResponseWriter, r *http.Request) {
	nv, err := s.ws.Nav()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nv)
}

func (s *Server) handleSelectEdge(w http.ResponseWriter, r *http.Request) {
	id, err := s.readID(w, r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	nv, err := s.ws.SelectEdge(id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nv)
}

func (s *Server) handleSelectNode(w http.ResponseWriter, r *http.Request) {
	id, err := s.readID(w, r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	nv, err := s.ws.SelectNode(id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nv)
}

func (s *Server) handleClearNav(w http.ResponseWriter, r *http.Request) {
	nv, err := s.ws.ClearSelection()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, nv)
}

// readID extracts {"id": "..."} from a navigation request body.
func (s *Server) readID(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNavBody))
	if err != nil {
		return "", flowerr.Wrap(err, flowerr.CodeServerRequestInvalid, "reading body")
	}

	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return "", flowerr.Wrap(err, flowerr.CodeServerRequestInvalid, "invalid json")
	}
	id := v.GetStringBytes("id")
	if len(id) == 0 {
		return "", flowerr.New(flowerr.CodeServerRequestInvalid, `"id" must be a non-empty string`)
	}
	return string(id), nil
}
