package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nicuwatch/nicuwatch/internal/api"
	"github.com/nicuwatch/nicuwatch/internal/config"
	"github.com/nicuwatch/nicuwatch/internal/logging"
	"github.com/nicuwatch/nicuwatch/internal/notifier"
	"github.com/nicuwatch/nicuwatch/internal/pipeline"
	"github.com/nicuwatch/nicuwatch/internal/relay"
	"github.com/nicuwatch/nicuwatch/internal/version"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "/config/nicuwatch.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Captures the last 1000 log entries for /api/logs
	logBuffer := logging.NewBuffer(1000)

	logger := logging.New(*logLevel, logBuffer).With().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Logger()

	logger.Info().Msg("Starting nicuwatch")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("config_path", *configPath).
			Msg("Failed to load configuration")
	}

	logger.Info().
		Int("unit_count", len(cfg.Units)).
		Str("push_endpoint", cfg.Push.Endpoint).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional credential-injecting relay in front of the push provider
	var relaySrv *http.Server
	if cfg.Relay.Enabled {
		relaySrv = &http.Server{
			Addr:              cfg.Relay.Listen,
			Handler:           relay.NewHandler(cfg.Relay, logger).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("address", cfg.Relay.Listen).Msg("Starting push relay")
			if err := relaySrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Push relay error")
			}
		}()
	}

	pusher := notifier.NewAlertzyClient(cfg.Push.Endpoint, cfg.Push.Timeout)

	units := make([]*pipeline.Pipeline, 0, len(cfg.Units))
	for _, name := range cfg.UnitNames() {
		p, err := pipeline.New(name, cfg.Units[name], cfg.Push, pusher, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("unit", name).Msg("Failed to create pipeline")
		}
		units = append(units, p)
	}

	// Health service registers its connection callbacks before sources start
	var healthSvc *api.HealthService
	if cfg.Server.GRPCPort > 0 {
		ln, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Server.GRPCPort))
		if err != nil {
			logger.Fatal().Err(err).Int("port", cfg.Server.GRPCPort).Msg("Failed to bind gRPC health port")
		}
		healthSvc = api.NewHealthService(units, logger)
		go func() {
			if err := healthSvc.Serve(ln); err != nil {
				logger.Error().Err(err).Msg("gRPC health service error")
			}
		}()
	}

	for _, p := range units {
		if err := p.Start(ctx); err != nil {
			logger.Fatal().Err(err).Str("unit", p.Name()).Msg("Failed to start pipeline")
		}
	}

	apiPort := os.Getenv("API_PORT")
	if apiPort == "" {
		apiPort = cfg.Server.APIPort
	}
	apiServer := api.NewServer(units, logger, apiPort)
	apiServer.SetLogBuffer(logBuffer)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal().
				Err(err).
				Msg("API server error")
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().
		Str("api_port", apiPort).
		Int("grpc_port", cfg.Server.GRPCPort).
		Msg("nicuwatch running, press Ctrl+C to stop")

	<-sigChan
	logger.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	cancel()
	for _, p := range units {
		if err := p.Stop(shutdownCtx); err != nil {
			logger.Error().
				Err(err).
				Str("unit", p.Name()).
				Msg("Error stopping pipeline")
		}
	}

	if healthSvc != nil {
		healthSvc.Stop()
	}
	if relaySrv != nil {
		if err := relaySrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error stopping push relay")
		}
	}

	logger.Info().Msg("nicuwatch stopped")
}
