package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"imageforge/internal/services"
)

// Server exposes the generation and gallery services over a JSON API.
type Server struct {
	svc *services.Services
	log *zap.Logger
	srv *http.Server
}

func New(addr string, svc *services.Services, logger *zap.Logger) *Server {
	s := &Server{svc: svc, log: logger}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleJobCancel)

	mux.HandleFunc("GET /api/styles", s.handleStyles)

	mux.HandleFunc("GET /api/gallery", s.handleGalleryList)
	mux.HandleFunc("GET /api/gallery/archive", s.handleGalleryArchive)
	mux.HandleFunc("GET /api/gallery/{id}", s.handleGalleryGet)
	mux.HandleFunc("GET /api/gallery/{id}/image", s.handleGalleryImage)
	mux.HandleFunc("GET /api/gallery/{id}/thumbnail", s.handleGalleryThumbnail)
	mux.HandleFunc("DELETE /api/gallery/{id}", s.handleGalleryDelete)

	mux.HandleFunc("PUT /api/key", s.handleKeyStore)
	mux.HandleFunc("DELETE /api/key", s.handleKeyDelete)
	mux.HandleFunc("GET /api/key", s.handleKeyStatus)

	mux.HandleFunc("GET /api/health", s.handleHealth)

	return s.withLogging(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully and
// stops any background generation jobs.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("graceful shutdown failed", zap.Error(err))
		_ = s.srv.Close()
	}
	s.svc.Generation.Shutdown()
	s.log.Info("server stopped")
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}
