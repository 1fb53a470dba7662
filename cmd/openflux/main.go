package main

// Package main provides the main entry point for OpenFlux.
import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/internal/answer"
	"github.com/openflux/openflux/internal/chat"
	"github.com/openflux/openflux/internal/config"
	"github.com/openflux/openflux/internal/gateway/cli"
	"github.com/openflux/openflux/internal/gateway/http"
	"github.com/openflux/openflux/internal/metrics"
	"github.com/openflux/openflux/internal/research"
	"github.com/openflux/openflux/internal/supervisor"
	"github.com/openflux/openflux/internal/version"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Everything except server mode is a one-shot CLI command
	if len(os.Args) > 1 && os.Args[1] != "server" {
		if err := cli.Execute(); err != nil {
			log.Fatal().Err(err).Msg("Command failed")
		}
		return
	}

	// Server mode
	log.Info().Str("version", version.Version).Msg("Starting OpenFlux")

	configPath := ""
	if len(os.Args) > 2 {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.Validate(cfg)

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Observability.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Metrics collector
	collector := metrics.NewCollector(cfg.Observability.Metrics.Enabled)

	// Connection supervisor for the research tool server
	sup := supervisor.New(cfg.ToolServer, collector)
	if err := sup.Connect(context.Background()); err != nil {
		// The server can come up later; the supervisor reconnects on
		// the first operation that needs it.
		log.Warn().Err(err).Msg("Initial tool server connect failed, will retry on demand")
	}
	sup.StartHealthSweep()

	// Research facade
	svc := research.NewService(sup)

	// Answer generation
	generator := answer.FromConfig(cfg.LLM)
	if generator != nil {
		log.Info().Str("model", generator.Model()).Msg("Answer provider initialized")
	} else {
		log.Info().Msg("No answer provider configured, chat degrades to raw excerpts")
	}

	orchestrator := chat.New(svc, generator, collector)

	// HTTP API server
	httpServer := http.NewServer(svc, sup, orchestrator, collector, &cfg.Server)
	if err := httpServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start HTTP server")
	}

	log.Info().Msg("OpenFlux server is running")
	log.Info().Msgf("HTTP API: http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().Msg("Press Ctrl+C to stop")

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	sup.StopHealthSweep()
	svc.Close()
	sup.Disconnect()

	log.Info().Msg("OpenFlux server stopped")
}
