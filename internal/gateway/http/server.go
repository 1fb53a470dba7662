package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/internal/chat"
	"github.com/openflux/openflux/internal/metrics"
	"github.com/openflux/openflux/internal/research"
	"github.com/openflux/openflux/internal/supervisor"
	"github.com/openflux/openflux/internal/version"
	"github.com/openflux/openflux/pkg/types"
)

// Server represents the HTTP API server
type Server struct {
	app       *fiber.App
	collector *metrics.Collector
	config    *types.ServerConfig
	handlers  *Handler
	port      int
}

// NewServer creates a new HTTP server
func NewServer(svc *research.Service, sup *supervisor.Supervisor, orchestrator *chat.Orchestrator, collector *metrics.Collector, config *types.ServerConfig) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader: "OpenFlux",
		AppName:      "OpenFlux v" + version.Version,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	s := &Server{
		app:       app,
		collector: collector,
		config:    config,
		port:      config.Port,
	}

	s.handlers = NewHandler(svc, sup, orchestrator)

	app.Use(RequestIDMiddleware())
	app.Use(LoggingMiddleware())
	app.Use(RecoveryMiddleware())
	app.Use(CORSMiddleware())

	s.setupRoutes()

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Root
	s.app.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"name":    "OpenFlux",
			"version": version.Version,
			"status":  "running",
		})
	})

	// Metrics endpoint (Prometheus)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Usage stats endpoint
	s.app.Get("/stats", func(c fiber.Ctx) error {
		if s.collector == nil {
			return c.Status(503).JSON(fiber.Map{
				"error": "Metrics not enabled",
			})
		}
		return c.JSON(s.collector.GetStats())
	})

	// API v1 routes
	api := s.app.Group("/api/v1")

	// Connection lifecycle
	api.Post("/connect", s.handlers.Connect)
	api.Post("/disconnect", s.handlers.Disconnect)
	api.Get("/health", s.handlers.HealthCheck)
	api.Get("/alive", s.handlers.LivenessProbe)
	api.Get("/ready", s.handlers.ReadinessProbe)

	// Research operations
	api.Post("/index", s.handlers.IndexRepository)
	api.Post("/search", s.handlers.Search)
	api.Post("/file", s.handlers.FetchFile)
	api.Post("/structure", s.handlers.ListStructure)
	api.Post("/code-search", s.handlers.SearchCode)
	api.Get("/tools", s.handlers.ListTools)

	// Chat sessions
	api.Post("/chat/sessions", s.handlers.OpenChatSession)
	api.Get("/chat/sessions/:id", s.handlers.GetChatSession)
	api.Post("/chat/sessions/:id/messages", s.handlers.PostChatMessage)
	api.Delete("/chat/sessions/:id", s.handlers.CloseChatSession)

	log.Info().Msg("HTTP routes configured")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.port)

	log.Info().
		Str("addr", addr).
		Msg("Starting HTTP API server")

	// Start in goroutine to not block
	go func() {
		if err := s.app.Listen(addr); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping HTTP server")

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}

	log.Info().Msg("HTTP server stopped")
	return nil
}
