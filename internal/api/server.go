package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yuanqi-assessment-server/internal/domain"
	"github.com/yuanqi-assessment-server/internal/metrics"
	"github.com/yuanqi-assessment-server/internal/middleware"
	"github.com/yuanqi-assessment-server/internal/service"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	limiterCleanupInterval = time.Minute
)

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	assessments   *service.AssessmentService
	catalog       *service.CatalogService
	events        *EventHub
	metrics       *metrics.Metrics
	limiter       *middleware.RateLimiter
	logger        *logrus.Logger
	version       string
	router        *gin.Engine
	server        *http.Server
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithEventHub serves hub at /api/admin/events.
func WithEventHub(hub *EventHub) ServerOption {
	return func(s *Server) { s.events = hub }
}

// WithMetrics instruments requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(version string) ServerOption {
	return func(s *Server) { s.version = version }
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, assessments *service.AssessmentService, catalog *service.CatalogService, logger *logrus.Logger, opts ...ServerOption) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		configManager: configManager,
		assessments:   assessments,
		catalog:       catalog,
		logger:        logger,
		version:       "1.0.0",
		router:        gin.New(),
		limiter:       middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CorrelationID())
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.AuditLogger(s.logger, "/metrics", "/api/health"))
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware())
	}
	s.router.Use(middleware.RateLimit(s.limiter))

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Envelope{Code: http.StatusNotFound, Message: "接口不存在"})
	})
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/analyze", s.handleAnalyze)

		api.POST("/assessments", s.handleCreateAssessment)
		api.GET("/assessments", s.handleListAssessments)
		api.POST("/assessments/compare", s.handleCompare)
		api.GET("/assessments/:id", s.handleGetAssessment)
		api.POST("/assessments/:id/analyze", s.handleReanalyze)
		api.POST("/assessments/:id/complete", s.handleComplete)

		api.GET("/symptoms", s.handleListSymptoms)
		api.GET("/symptoms/:id", s.handleGetSymptom)
	}

	admin := api.Group("/admin", middleware.AdminToken(s.configManager.GetConfig().Admin.Token))
	{
		admin.GET("/assessments", s.handleAdminListAssessments)
		if s.events != nil {
			admin.GET("/events", s.events.ServeWS)
		}
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go s.limiter.Run(ctx, limiterCleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.WithField("timeout", timeout.String()).Info("Shutting down HTTP server")
	if s.events != nil {
		s.events.Close()
	}
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
