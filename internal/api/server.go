// Package api exposes the HTTP interface: search, stats, crawl control and
// result feedback.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Nova-Search/api/internal/config"
	"github.com/Nova-Search/api/internal/metrics"
	"github.com/Nova-Search/api/internal/search"
	"github.com/Nova-Search/api/internal/store"
)

// Searcher answers ranked queries
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]search.Result, error)
}

// Store is the part of the store the handlers read and write
type Store interface {
	Stats(ctx context.Context) (store.Stats, error)
	GetRun(ctx context.Context, id string) (store.CrawlRun, error)
	AdjustPriority(ctx context.Context, url string, delta int) error
}

// Server wires HTTP handlers to the query engine, the store and the crawl
// job manager.
type Server struct {
	router   chi.Router
	engine   Searcher
	store    Store
	jobs     *Jobs
	cfg      config.ServerConfig
	maxDepth int
	logger   *slog.Logger
}

const maxBodyBytes = 1 << 20

// NewServer constructs a Server with middleware and routes
func NewServer(engine Searcher, st Store, jobs *Jobs, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:   engine,
		store:    st,
		jobs:     jobs,
		cfg:      cfg.Server,
		maxDepth: cfg.Crawl.MaxDepth,
		logger:   logger,
	}
	limiter := NewRateLimiter(cfg.Server.RateLimitGet, cfg.Server.RateLimitPost)
	limiter.TrustProxyHeaders = cfg.Server.TrustProxyHeaders

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.Server.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)

		r.Get("/", s.root)
		r.Get("/search", s.search)
		r.Get("/stats", s.stats)

		r.Route("/crawl", func(r chi.Router) {
			r.Post("/", s.startCrawl)
			r.Get("/{id}", s.getCrawl)
		})

		r.Route("/quality/rateresult", func(r chi.Router) {
			r.Post("/pageclick", s.rateResult(1, "Priority updated"))
			r.Post("/good", s.rateResult(2, "Thank you for your feedback!"))
			r.Post("/bad", s.rateResult(-2, "Thank you for your feedback!"))
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully and cancels running crawls.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if s.jobs != nil {
		if err := s.jobs.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("stop crawls: %w", err)
		}
	}
	return nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			w.Header().Set("X-Request-Id", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"remote_ip", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("write JSON failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
