// Package http is the thin HTTP adapter in front of the approval engine.
// Authentication is the session layer's job; this adapter trusts the identity
// headers injected by the upstream gateway.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edrees2022/log-and-ledger-sub005/internal/workflow"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     *zap.Logger
}

// NewServer creates a new HTTP server wired to the approval engine
func NewServer(config ServerConfig, engine *workflow.Engine, definitions *workflow.DefinitionService, logger *zap.Logger) *Server {
	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		handlers: NewHandlers(engine, definitions, logger),
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(corsMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)

	api := s.router.Group("/api/v1")
	api.Use(identityMiddleware())
	{
		workflows := api.Group("/workflows")
		workflows.Use(requireRole("admin", "owner"))
		{
			workflows.POST("", s.handlers.CreateWorkflow)
			workflows.GET("", s.handlers.ListWorkflows)
			workflows.GET("/:id", s.handlers.GetWorkflow)
			workflows.POST("/:id/deactivate", s.handlers.DeactivateWorkflow)
		}

		requests := api.Group("/approval-requests")
		{
			requests.POST("", s.handlers.OpenRequest)
			requests.GET("", s.handlers.ListRequests)
			requests.GET("/:id", s.handlers.GetRequest)
			requests.POST("/:id/actions", s.handlers.SubmitAction)
			requests.POST("/:id/cancel", s.handlers.CancelRequest)
		}

		// The caller's personal approval queue. Lives outside the
		// approval-requests group because the router cannot mix a static
		// segment with the :id parameter.
		api.GET("/pending-approvals", s.handlers.ListPendingRequests)
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Company-ID, X-Actor-ID, X-Actor-Role")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Router exposes the router for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server (non-blocking)
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
