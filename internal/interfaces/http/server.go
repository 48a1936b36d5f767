// Package http exposes the permit workflow over a JSON API.
// Handlers only translate requests into application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nasmusic-ai/permit-pro/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Metrics records request outcomes and serves the scrape endpoint
type Metrics interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
	Handler() http.Handler
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Services bundles the application services behind the API
type Services struct {
	Applications  service.ApplicationService
	Payments      service.PaymentService
	Permits       service.PermitService
	Notifications service.NotificationService
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	limiter    *KeyedLimiter
	metrics    Metrics
	logger     Logger
}

// Option configures optional server features
type Option func(*Server)

// WithRateLimiter throttles API calls per actor
func WithRateLimiter(l *KeyedLimiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithMetrics records request metrics and mounts /metrics
func WithMetrics(m Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	if s.metrics != nil {
		s.router.Use(s.metricsMiddleware())
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api/v1", actorMiddleware())
	if s.limiter != nil {
		api.Use(rateLimitMiddleware(s.limiter))
	}

	apps := api.Group("/applications")
	{
		apps.POST("", h.CreateApplication)
		apps.GET("", h.ListMyApplications)
		apps.GET("/:id", h.GetApplication)
		apps.PUT("/:id", h.UpdateDraft)
		apps.GET("/:id/history", h.GetHistory)
		apps.GET("/:id/actions", h.GetPermittedActions)
		apps.POST("/:id/transitions", h.Transition)
		apps.PUT("/:id/fee-exemption", h.SetFeeExempt)
		apps.GET("/:id/payments", h.ListApplicationPayments)
		apps.POST("/:id/payments", h.RecordPayment)
		apps.GET("/:id/permit", h.GetApplicationPermit)
		apps.POST("/:id/permit", h.IssuePermit)
	}

	api.GET("/queue", h.ListQueue)
	api.GET("/dashboard/stats", h.GetStats)
	api.GET("/fees", h.GetFees)

	payments := api.Group("/payments")
	{
		payments.GET("", h.ListPayments)
		payments.GET("/ledger.xlsx", h.ExportLedger)
		payments.POST("/:id/confirm", h.ConfirmPayment)
		payments.POST("/:id/verify", h.VerifyPayment)
	}

	permits := api.Group("/permits")
	{
		permits.GET("/:number", h.GetPermitByNumber)
		permits.POST("/:number/revoke", h.RevokePermit)
	}

	inbox := api.Group("/notifications")
	{
		inbox.GET("", h.ListNotifications)
		inbox.GET("/unread-count", h.UnreadCount)
		inbox.POST("/read-all", h.MarkAllRead)
		inbox.POST("/:id/read", h.MarkRead)
	}
}

// Start serves until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
