package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"PingTower/internal/scheduler/dependencies"
	"PingTower/internal/scheduler/handlers"
	"PingTower/pkg/uuidutil"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether the engine can reach its ready queue.
type HealthChecker interface {
	Healthy() (bool, error)
}

type Server struct {
	router     *gin.Engine
	config     *Config
	handlers   *handlers.Handlers
	health     HealthChecker
	logger     *slog.Logger
	httpServer *http.Server
}

type Config struct {
	Port    int
	Mode    string
	Service string
	Version string
}

// New builds the diagnostics and lifecycle HTTP server for the container.
func New(config *Config, container *dependencies.Container) *Server {
	return NewWithHandlers(config, handlers.NewHandlers(container), container.Scheduler, container.Logger)
}

func NewWithHandlers(config *Config, h *handlers.Handlers, health HealthChecker, logger *slog.Logger) *Server {
	if config.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		router:   gin.New(),
		config:   config,
		handlers: h,
		health:   health,
		logger:   logger,
	}

	server.setupMiddlewares()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddlewares() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggerMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ready", s.readyCheck)

	api := s.router.Group("/api/v1")
	{
		api.GET("/stats", s.handlers.GetStats)

		// lifecycle hooks called by the monitor service
		monitors := api.Group("/monitors/:id")
		{
			monitors.GET("/status", s.handlers.GetMonitor)
			monitors.PUT("/config", s.handlers.PutConfig)
			monitors.POST("/created", s.handlers.MonitorCreated)
			monitors.POST("/updated", s.handlers.MonitorUpdated)
			monitors.POST("/deleted", s.handlers.MonitorDeleted)
			monitors.POST("/enable", s.handlers.EnableMonitor)
			monitors.POST("/disable", s.handlers.DisableMonitor)
		}
	}

	s.router.NoRoute(s.notFoundHandler)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   s.config.Service,
		"version":   s.config.Version,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) readyCheck(c *gin.Context) {
	healthy, err := s.health.Healthy()
	if !healthy {
		message := "ready queue unreachable"
		if err != nil {
			message = err.Error()
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"error":  message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"queue":     "connected",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) notFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "not_found",
		"message": "Endpoint not found",
		"path":    c.Request.URL.Path,
	})
}

func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if query != "" {
			path = path + "?" + query
		}

		status := c.Writer.Status()
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		case c.Request.Method != http.MethodGet:
			level = slog.LevelInfo
		}

		s.logger.Log(c.Request.Context(), level, "HTTP request",
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"ip", c.ClientIP(),
			"latency", time.Since(start),
			"request_id", c.GetString("request_id"),
			"error", c.Errors.ByType(gin.ErrorTypePrivate).String(),
		)
	}
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuidutil.New()
		}

		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server",
		"port", s.config.Port,
		"mode", s.config.Mode,
		"address", addr,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
	}
	return nil
}

// GetRouter exposes the router for tests.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
