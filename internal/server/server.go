// Package server provides the HTTP server for the dispatch board API.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/devrev/dispatchboard/internal/config"
	apperrors "github.com/devrev/dispatchboard/internal/errors"
	"github.com/devrev/dispatchboard/internal/handler"
	"github.com/devrev/dispatchboard/internal/health"
	"github.com/devrev/dispatchboard/internal/metrics"
	"github.com/devrev/dispatchboard/internal/middleware"
	"github.com/devrev/dispatchboard/internal/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	handler      http.Handler
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthCheck
	metrics      *metrics.Metrics
	errorHandler *apperrors.Handler
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server with its routes installed.
func NewServer(
	cfg *config.Config,
	engine *service.AssignmentService,
	healthCheck *health.HealthCheck,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	errorHandler := apperrors.NewHandler(logger)

	s := &Server{
		router:       mux.NewRouter(),
		handlers:     handler.NewHandlers(engine, errorHandler, cfg.Operator, logger),
		healthCheck:  healthCheck,
		metrics:      m,
		errorHandler: errorHandler,
		logger:       logger,
		cfg:          cfg,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      s.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupRoutes configures all HTTP routes. The middleware chain wraps the
// router itself so unmatched routes also get request IDs and access logs.
func (s *Server) setupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Recovery(s.errorHandler, s.logger),
		middleware.Logging(s.logger),
		middleware.CORS(s.cfg.Server.AllowedOrigins),
	}

	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.errorHandler,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}
	middlewareChain = append(middlewareChain, middleware.Timeout(s.cfg.Server.RequestTimeout))

	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}

	// Health check endpoints
	s.router.HandleFunc("/health/live", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	// Dispatcher profile
	s.router.HandleFunc("/user", s.handlers.User).Methods(http.MethodGet)

	// Technicians
	s.router.HandleFunc("/technicians", s.handlers.ListTechnicians).Methods(http.MethodGet)
	s.router.HandleFunc("/technicians", s.handlers.CreateTechnician).Methods(http.MethodPost)
	s.router.HandleFunc("/technicians", s.handlers.MoveRequest).Methods(http.MethodPatch)
	s.router.HandleFunc("/technicians/{technicianID}", s.handlers.UpdateTechnician).Methods(http.MethodPatch)
	s.router.HandleFunc("/technicians/{technicianID}", s.handlers.DeleteTechnician).Methods(http.MethodDelete)
	s.router.HandleFunc("/technicians/{technicianID}/capacity", s.handlers.TechnicianCapacity).Methods(http.MethodGet)

	// Requests
	s.router.HandleFunc("/requests", s.handlers.CreateRequest).Methods(http.MethodPost)
	s.router.HandleFunc("/requests/{requestID}", s.handlers.UpdateRequest).Methods(http.MethodPatch)
	s.router.HandleFunc("/requests/{requestID}", s.handlers.DeleteRequest).Methods(http.MethodDelete)

	// Static board UI, registered last so API routes win
	if dir := s.cfg.Server.StaticDir; dir != "" {
		s.logger.Info("serving static assets", zap.String("dir", dir))
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(dir))).Methods(http.MethodGet, http.MethodHead)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.WriteNotFound(w, r.Header.Get(middleware.RequestIDHeader))
	})

	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorHandler.WriteMethodNotAllowed(w, r.Header.Get(middleware.RequestIDHeader))
	})

	s.handler = middleware.Chain(middlewareChain...)(s.router)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the fully wrapped http.Handler for the server.
func (s *Server) GetHandler() http.Handler {
	return s.handler
}
