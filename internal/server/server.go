// Package server exposes the investigation service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/report"
)

// Version is reported by the index and health endpoints.
const Version = "2.0"

// maxBodyBytes bounds request bodies. Report requests carry a full profile.
const maxBodyBytes = 4 << 20

// Jobs starts investigations and answers progress polls.
type Jobs interface {
	StartJob(ctx context.Context, req model.SearchRequest) (string, error)
	GetProgress(ctx context.Context, id string) (model.Progress, error)
	Stats(ctx context.Context) (map[model.JobStatus]int, error)
}

// Reports builds and serves report files.
type Reports interface {
	BuildAs(ctx context.Context, profile *model.PersonProfile, f report.Format) (*report.Artifact, error)
	Open(name string) (*os.File, error)
}

// Readiness describes the configured providers for the health endpoint.
type Readiness struct {
	StoreDriver    string `json:"store"`
	SearchProvider string `json:"search_provider"`
	LLMProvider    string `json:"llm_provider"`
	Recognizer     string `json:"recognizer"`
	NLPLoaded      bool   `json:"nlp_loaded"`
	GoogleKeys     int    `json:"google_keys"`
	GeminiKeys     int    `json:"gemini_keys"`
}

// Config holds the server dependencies.
type Config struct {
	Jobs        Jobs
	Reports     Reports
	Readiness   Readiness
	CORSOrigins []string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server routes API requests to the job manager and report builder.
type Server struct {
	jobs      Jobs
	reports   Reports
	readiness Readiness
	router    chi.Router
	now       func() time.Time
}

// New builds the server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Jobs == nil {
		return nil, eris.New("server: jobs is required")
	}
	if cfg.Reports == nil {
		return nil, eris.New("server: reports is required")
	}
	s := &Server{
		jobs:      cfg.Jobs,
		reports:   cfg.Reports,
		readiness: cfg.Readiness,
		now:       time.Now,
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Post("/osint", s.handleStartSearch)
	r.Get("/progress/{id}", s.handleProgress)
	r.Post("/generate-report", s.handleGenerateReport)
	r.Get("/download-report/{filename}", s.handleDownloadReport)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}
