// Package http provides the local HTTP API server and its middleware.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	assistantHTTP "github.com/allisson/capvault/internal/assistant/http"
	capabilityHTTP "github.com/allisson/capvault/internal/capability/http"
	"github.com/allisson/capvault/internal/config"
	"github.com/allisson/capvault/internal/metrics"
	vaultHTTP "github.com/allisson/capvault/internal/vault/http"
)

// ReadinessCheck reports whether one component can serve requests.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
	checks []ReadinessCheck
}

// NewServer creates a new HTTP server
func NewServer(
	host string,
	port int,
	logger *slog.Logger,
	checks ...ReadinessCheck,
) *Server {
	return &Server{
		logger: logger,
		checks: checks,
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Dispatches may run up to the dispatch timeout.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter registers middleware and the /v1 routes.
func (s *Server) SetupRouter(
	cfg *config.Config,
	vaultHandler *vaultHTTP.VaultHandler,
	capabilityHandler *capabilityHTTP.CapabilityHandler,
	assistantHandler *assistantHTTP.AssistantHandler,
	metricsProvider *metrics.Provider,
) {
	gin.SetMode(cfg.GetGinMode())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}
	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	v1.Use(LocalOnlyMiddleware(allowedOrigins(cfg), s.logger))
	if cfg.RateLimitEnabled {
		v1.Use(RateLimitMiddleware(cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger))
	}

	v1.POST("/unlock", vaultHandler.UnlockHandler)
	v1.POST("/lock", vaultHandler.LockHandler)

	credentials := v1.Group("/credentials")
	credentials.GET("", vaultHandler.ListCredentialsHandler)
	credentials.PUT("/:provider", vaultHandler.StoreCredentialHandler)
	credentials.DELETE("/:provider", vaultHandler.DeleteCredentialHandler)

	capabilities := v1.Group("/capabilities")
	capabilities.GET("", capabilityHandler.ListHandler)
	capabilities.POST("/refresh", capabilityHandler.RefreshHandler)

	v1.POST("/ask", assistantHandler.AskHandler)
	v1.GET("/status", assistantHandler.StatusHandler)
	v1.GET("/health", assistantHandler.HealthHandler)

	s.router = router
}

// GetHandler returns the router for testing purposes. It is nil before SetupRouter.
func (s *Server) GetHandler() http.Handler {
	if s.router == nil {
		return nil
	}
	return s.router
}

// Start starts the HTTP server. It returns when the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports that the process is alive.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler runs every readiness check.
func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	ready := true
	components := make(map[string]string, len(s.checks))
	for _, check := range s.checks {
		if err := check.Check(ctx); err != nil {
			s.logger.Warn("readiness check failed", slog.String("component", check.Name), slog.Any("error", err))
			components[check.Name] = "error"
			ready = false
			continue
		}
		components[check.Name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
