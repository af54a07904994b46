// Package server exposes the graph workspace over HTTP to a renderer.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/nanoflow/internal/metrics"
	"github.com/coffersTech/nanoflow/internal/settings"
	"github.com/coffersTech/nanoflow/internal/storage"
	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

// Options wires a Server to its collaborators. Archive and APIKeyHash are
// optional.
type Options struct {
	Workspace  *Workspace
	Settings   *settings.Store
	Archive    *storage.Archive
	Metrics    *metrics.Registry
	Logger     *slog.Logger
	APIKeyHash string // bcrypt hash of the API key; empty disables auth

	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

type Server struct {
	ws         *Workspace
	settings   *settings.Store
	archive    *storage.Archive
	metrics    *metrics.Registry
	logger     *slog.Logger
	apiKeyHash []byte

	reader    *storage.SnapshotReader
	writer    *storage.SnapshotWriter
	parser    fastjson.ParserPool
	maxUpload int64

	router       chi.Router
	readTimeout  time.Duration
	writeTimeout time.Duration
	now          func() time.Time
}

func New(opts Options) (*Server, error) {
	if opts.Settings == nil {
		return nil, errors.New("server: settings store is required")
	}
	if opts.Workspace == nil {
		opts.Workspace = NewWorkspace()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 256 << 20
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Minute
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Minute
	}

	reader, err := storage.NewSnapshotReader()
	if err != nil {
		return nil, err
	}
	writer, err := storage.NewSnapshotWriter()
	if err != nil {
		return nil, err
	}

	s := &Server{
		ws:           opts.Workspace,
		settings:     opts.Settings,
		archive:      opts.Archive,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		reader:       reader,
		writer:       writer,
		maxUpload:    opts.MaxUploadBytes,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		now:          time.Now,
	}
	if opts.APIKeyHash != "" {
		s.apiKeyHash = []byte(opts.APIKeyHash)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.AuthMiddleware)

		r.Get("/graph", s.handleGetGraph)
		r.Post("/graph", s.handleBuildGraph)
		r.Post("/graph/refresh", s.handleRefresh)
		r.Get("/graph/export", s.handleExport)
		r.Post("/graph/import", s.handleImport)
		r.Get("/sequences", s.handleSequences)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		r.Get("/nav", s.handleGetNav)
		r.Post("/nav/edge", s.handleSelectEdge)
		r.Post("/nav/node", s.handleSelectNode)
		r.Delete("/nav", s.handleClearNav)
	})
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-errCh
}

// Restore makes the newest archived graph current, read-only. It returns
// false when the archive is empty.
func (s *Server) Restore() (bool, error) {
	if s.archive == nil {
		return false, nil
	}
	snap, err := s.archive.Latest()
	if err != nil {
		if flowerr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	view := s.ws.Import(snap.Graph, "archive", snap.CreatedAt)
	s.metrics.SetGraph(len(view.Graph.Nodes), len(view.Graph.Edges))
	s.logger.Info("restored archived graph", "revision", view.Revision, "built_at", snap.CreatedAt)
	return true, nil
}

// instrument counts requests by route pattern and logs them.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status))
		s.logger.Debug("http request",
			"method", r.Method, "route", route, "status", status, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
