package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opsboard/issue-calendar/internal/db"
	"github.com/opsboard/issue-calendar/internal/model"
	"github.com/opsboard/issue-calendar/internal/session"
)

// Filters is the filter lookup part of the issue API.
type Filters interface {
	Sites(ctx context.Context) ([]model.NamedItem, error)
	SubSites(ctx context.Context, siteIndex int) ([]model.NamedItem, error)
	Products(ctx context.Context, subSite string) ([]model.NamedItem, error)
	ProductsForSubSites(ctx context.Context, subSites []string) ([]model.NamedItem, error)
}

// ReportFetcher reads exported reports back from object storage.
type ReportFetcher interface {
	GetReport(ctx context.Context, key string) ([]byte, error)
}

// Config carries the server's collaborators. Exporter and Reports are
// nil when no bucket is configured.
type Config struct {
	Addr     string
	DB       *db.DB
	Sessions *session.Registry
	Filters  Filters
	Exporter session.Exporter
	Reports  ReportFetcher
}

type Server struct {
	db       *db.DB
	sessions *session.Registry
	filters  Filters
	exporter session.Exporter
	reports  ReportFetcher
	http     *http.Server
	logger   *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Server {
	s := &Server{
		db:       cfg.DB,
		sessions: cfg.Sessions,
		filters:  cfg.Filters,
		exporter: cfg.Exporter,
		reports:  cfg.Reports,
		logger:   logger,
	}
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	handler = loggingMiddleware(logger, handler)
	handler = recoveryMiddleware(logger, handler)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}
	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
