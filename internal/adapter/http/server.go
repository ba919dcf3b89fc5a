package http

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/earth-layers-service/internal/domain"
	"github.com/couchcryptid/earth-layers-service/internal/pipeline"
)

//go:embed templates/index.html
var templates embed.FS

var indexTmpl = template.Must(template.ParseFS(templates, "templates/index.html"))

// Generator reports the outcome of layer generation.
type Generator interface {
	sharedobs.ReadinessChecker
	Results() []pipeline.Result
}

// Server serves the layer page, the generated images, and the health,
// readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	generator  Generator
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /, /static/, /healthz, /readyz, and /metrics routes.
// Files under outputDir are served at /static/.
func NewServer(addr, outputDir string, gen Generator, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		generator: gen,
		logger:    logger,
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(outputDir))))
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(gen))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type layerView struct {
	Name        string
	Title       string
	Image       string
	GeneratedAt string
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	results := s.generator.Results()
	views := make([]layerView, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		v := layerView{
			Name:  res.Layer,
			Title: res.Title,
			Image: "static/" + domain.ArtifactFilename(res.Layer),
		}
		if v.Title == "" {
			v.Title = res.Layer
		}
		if !res.GeneratedAt.IsZero() {
			v.GeneratedAt = res.GeneratedAt.Format(time.RFC3339)
		}
		views = append(views, v)
	}

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, views); err != nil {
		s.logger.Error("render index", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
