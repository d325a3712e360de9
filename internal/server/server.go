// Package server provides the HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/noveldesk/kioku/internal/config"
	"github.com/noveldesk/kioku/internal/embedding"
	"github.com/noveldesk/kioku/internal/indexing"
	"github.com/noveldesk/kioku/internal/search"
	"github.com/noveldesk/kioku/internal/vectorstore"
)

// Server is the HTTP API server.
type Server struct {
	engine      *search.Engine
	coordinator *indexing.Coordinator
	provider    *embedding.Provider
	store       vectorstore.Store
	cache       *vectorstore.Cache
	cfg         *config.Config
	logger      *zap.Logger
	httpServer  *http.Server
}

// New creates a Server wired to the given components.
func New(
	engine *search.Engine,
	coordinator *indexing.Coordinator,
	provider *embedding.Provider,
	store vectorstore.Store,
	cache *vectorstore.Cache,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:      engine,
		coordinator: coordinator,
		provider:    provider,
		store:       store,
		cache:       cache,
		cfg:         cfg,
		logger:      logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/search", s.handleSearch)
			r.Post("/similar/{entityType}/{entityID}", s.handleFindSimilar)
			r.Post("/reindex", s.handleReindex)
			r.Delete("/index/{entityType}/{entityID}", s.handleRemoveIndex)
			r.Get("/status", s.handleStatus)
		})
		r.Post("/knowledge/{id}/index", s.handleIndexKnowledge)
		r.Post("/chapters/{id}/index", s.handleIndexChapter)
		r.Post("/similarity", s.handleTextSimilarity)
	})

	return r
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
