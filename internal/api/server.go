// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apihandler "github.com/newthinker/tradewatch/internal/api/handler/api"
	"github.com/newthinker/tradewatch/internal/api/handler/web"
	"github.com/newthinker/tradewatch/internal/chart"
	"github.com/newthinker/tradewatch/internal/control"
	"github.com/newthinker/tradewatch/internal/metrics"
	"github.com/newthinker/tradewatch/internal/session"
	"github.com/newthinker/tradewatch/internal/view"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for the dashboard
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	TemplatesDir   string
	MetricsPath    string
	RefreshSeconds int
	Location       *time.Location
}

// Dependencies are the components the handlers read from and drive
type Dependencies struct {
	Session *session.Session
	Control *control.Channel
	Latest  *view.Latest
	Chart   *chart.SVG
	// Metrics is optional; nil disables /metrics and request metrics
	Metrics *metrics.Registry
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
	}

	if err := s.setupRoutes(cfg, deps); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	var handler http.Handler = mux
	if deps.Metrics != nil {
		handler = metrics.HTTPMiddleware(deps.Metrics)(handler)
	}
	s.httpServer.Handler = metrics.LoggingMiddleware(logger)(handler)

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) error {
	webHandler, err := web.NewHandler(cfg.TemplatesDir, web.Deps{
		State:          deps.Latest,
		Selector:       deps.Session,
		Toggler:        deps.Control,
		Chart:          deps.Chart,
		Location:       cfg.Location,
		RefreshSeconds: cfg.RefreshSeconds,
	})
	if err != nil {
		return fmt.Errorf("creating web handler: %w", err)
	}

	// Web UI routes
	s.mux.HandleFunc("GET /", webHandler.Dashboard)
	s.mux.HandleFunc("POST /select", webHandler.Select)
	s.mux.HandleFunc("POST /toggle", webHandler.Toggle)

	// JSON API
	stateHandler := apihandler.NewStateHandler(deps.Latest, deps.Session, deps.Control)
	s.mux.HandleFunc("GET /api/v1/state", stateHandler.Get)
	s.mux.HandleFunc("POST /api/v1/select", stateHandler.Select)
	s.mux.HandleFunc("POST /api/v1/control", stateHandler.Control)

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if deps.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	return nil
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
