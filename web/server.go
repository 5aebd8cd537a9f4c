package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"nightly-price/metrics"
	"nightly-price/models"
	"nightly-price/services"
	"nightly-price/storage"
	"nightly-price/utils"
)

//go:embed static
var staticFiles embed.FS

// DataFetcher loads the source dataset. *storage.Fetcher implements it.
type DataFetcher interface {
	Fetch(ctx context.Context, entityIDs []string, opts storage.FetchOptions) (*models.Dataset, storage.Source, error)
}

// Deps are the collaborators of the dashboard server.
type Deps struct {
	Fetcher   DataFetcher
	Pipeline  *services.Pipeline
	Exporter  *storage.CSVReportWriter
	Metrics   *metrics.Recorder
	EntityIDs []string
	RunLimit  int
	Logger    *utils.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	deps    Deps
	logger  *utils.Logger
	session *Session
	runs    *RunStore
	router  chi.Router
}

// NewServer wires the routes.
func NewServer(deps Deps) (*Server, error) {
	runs, err := NewRunStore(deps.RunLimit)
	if err != nil {
		return nil, err
	}
	s := &Server{deps: deps, logger: deps.Logger, session: NewSession(), runs: runs}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	static, _ := fs.Sub(staticFiles, "static")
	r.Handle("/*", http.FileServer(http.FS(static)))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/status", s.handleStatus)
		r.Post("/data/load", s.handleLoad)
		r.Post("/data/upload", s.handleUpload)
		r.Post("/steps/{step}", s.handleStep)
		r.Get("/datasets/{name}", s.handleDataset)
		r.Post("/export", s.handleExport)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[web] Dashboard listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web: serve: %w", err)
	case <-ctx.Done():
		s.logger.Info("[web] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("[web] %s %s %d %v", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
