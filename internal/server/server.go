// Package server provides the HTTP server for the edit coordination service.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/AdirGamil/animeedit/internal/config"
	apierrors "github.com/AdirGamil/animeedit/internal/errors"
	"github.com/AdirGamil/animeedit/internal/handler"
	"github.com/AdirGamil/animeedit/internal/health"
	"github.com/AdirGamil/animeedit/internal/metrics"
	"github.com/AdirGamil/animeedit/internal/middleware"
	"github.com/AdirGamil/animeedit/internal/notify"
	"github.com/AdirGamil/animeedit/internal/service"
	"github.com/AdirGamil/animeedit/internal/store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	hub          *notify.Hub
	healthCheck  *health.HealthCheck
	errorHandler *apierrors.Handler
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server wired to the coordination tables and
// the notification hub.
func NewServer(
	cfg *config.Config,
	records store.RecordStore,
	locks *service.LockTable,
	pending *service.PendingEditTable,
	review *service.ReviewService,
	hub *notify.Hub,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()
	errorHandler := apierrors.NewHandler(logger)
	handlers := handler.NewHandlers(records, locks, pending, review, errorHandler, logger, cfg.Admin, cfg.Server.RequestTimeout)
	healthCheck := health.NewHealthCheck(records, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handlers,
		hub:          hub,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	// Setup middleware chain
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS([]string{"*"}),
	}

	// Add rate limiter if enabled
	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	if s.metrics != nil {
		middlewareChain = append(middlewareChain, metrics.MetricsMiddleware(s.metrics))
	}

	// Apply middleware to router
	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Health check endpoints
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	// Realtime notification channel
	s.router.HandleFunc("/ws", s.hub.HandleWebSocket).Methods(http.MethodGet)

	// API routes
	api := s.router.PathPrefix("/api").Subrouter()

	// Catalog listing
	api.HandleFunc("/records", s.handlers.ListRecords).Methods(http.MethodGet)

	// Lock operations
	api.HandleFunc("/locks/{recordId}", s.handlers.AcquireLock).Methods(http.MethodPost)
	api.HandleFunc("/unlock/{recordId}", s.handlers.ReleaseLock).Methods(http.MethodPost)

	// Edit staging and review. Resolving a review is an admin capability even
	// though the paths live outside the /admin prefix.
	adminAuth := middleware.AdminAuth(s.cfg.Admin.Token, s.errorHandler)
	api.HandleFunc("/edits", s.handlers.SubmitEdit).Methods(http.MethodPost)
	api.HandleFunc("/edits", s.handlers.ListEdits).Methods(http.MethodGet)
	api.Handle("/edits/{editId}/approve", adminAuth(http.HandlerFunc(s.handlers.ApproveEdit))).Methods(http.MethodPost)
	api.Handle("/edits/{editId}/reject", adminAuth(http.HandlerFunc(s.handlers.RejectEdit))).Methods(http.MethodPost)

	// Admin login is the one admin route outside the auth guard
	api.HandleFunc("/admin/login", s.handlers.AdminLogin).Methods(http.MethodPost)

	// Admin routes behind the bearer token
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(adminAuth)
	admin.HandleFunc("/locks", s.handlers.AdminLocks).Methods(http.MethodGet)
	admin.HandleFunc("/edits", s.handlers.AdminEdits).Methods(http.MethodGet)
	admin.HandleFunc("/unlock/{recordId}", s.handlers.AdminForceUnlock).Methods(http.MethodPost)
	admin.HandleFunc("/stats", s.handlers.AdminStats).Methods(http.MethodGet)

	// Not found handler
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeInvalidRequest, "endpoint not found", requestID)
	})

	// Method not allowed handler
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.Int("port", s.cfg.Server.Port),
	)

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

// GetRouter returns the router for testing purposes.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetHandler returns the http.Handler for the server.
func (s *Server) GetHandler() http.Handler {
	return s.router
}
