package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"wialon-connector/internal/api"
	"wialon-connector/internal/config"
	"wialon-connector/internal/modules/actions"
	"wialon-connector/internal/observability"
	"wialon-connector/internal/platform/activity"
	"wialon-connector/internal/platform/sensors"
	"wialon-connector/internal/platform/state"
	"wialon-connector/internal/wialon"
	"wialon-connector/pkg/email"
)

// vendorTimeout bounds every HTTP exchange with the vendor API. Wialon can
// be slow on large accounts; scheduler timeouts upstream are longer.
const vendorTimeout = 120 * time.Second

func main() {
	// 1. --- Configuration ---
	// Load settings from .env and the environment: server port, JWT secret,
	// state store backend, downstream endpoints.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. --- Logging ---
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "wialon-connector").
		Logger()

	ctx := context.Background()

	// 3. --- State store ---
	// Session cache and per-device watermarks live here. Redis is the
	// default; Postgres is available where a Redis is not worth operating.
	var states state.Store
	switch cfg.StateBackend {
	case config.StateBackendPostgres:
		dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse database configuration")
		}
		dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("create database pool")
		}
		defer dbPool.Close()
		if err := dbPool.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("ping database")
		}
		states = state.NewPostgresStore(dbPool)
		logger.Info().Msg("using postgres state store")
	default:
		redisStore, err := state.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect to redis")
		}
		defer redisStore.Close()
		states = redisStore
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis state store")
	}

	// 4. --- Activity trail ---
	var audit activity.Logger
	if cfg.AMQPURL != "" {
		publisher := activity.NewPublisher(cfg.AMQPURL, cfg.ActivityExchange, cfg.ActivityQueue, logger)
		defer publisher.Close()
		audit = publisher
	} else {
		audit = activity.NewLogEmitter(logger)
	}

	// 5. --- Outbound clients ---
	vendorHTTP := &http.Client{Timeout: vendorTimeout}
	sessions := wialon.NewSessionManager(states, vendorHTTP, logger)
	vendorClient := wialon.NewClient(sessions, vendorHTTP, logger)

	var senderOpts []sensors.Option
	if cfg.SensorsOAuthConfigured() {
		senderOpts = append(senderOpts, sensors.WithClientCredentials(ctx,
			cfg.SensorsTokenURL, cfg.SensorsClientID, cfg.SensorsClientSecret))
	}
	sender := sensors.NewClient(cfg.SensorsAPIURL, logger, senderOpts...)

	// 6. --- Actions Module ---
	actionService := actions.NewService(vendorClient, sender, states, audit, logger)
	if cfg.AlertsConfigured() {
		alertSender, err := email.NewSESV2Sender(ctx, cfg.AWSRegion, cfg.AlertFromEmail, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialize ses sender")
		}
		templates, err := email.NewTemplateManager()
		if err != nil {
			logger.Fatal().Err(err).Msg("parse alert templates")
		}
		actionService.EnableAlerts(alertSender, templates, cfg.AlertToEmail)
		logger.Info().Str("to", cfg.AlertToEmail).Msg("operator alerts enabled")
	}
	actionHandler := actions.NewHandler(actionService)

	// 7. --- HTTP Server ---
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	api.SetupRoutes(e, actionHandler, cfg.JWTSecret)

	// 8. --- Metrics ---
	go func() {
		if err := observability.StartMetricsServer(cfg.MetricsAddr, logger); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	// 9. --- Start Server with graceful shutdown logic ---
	go func() {
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("shutting down the server, an error occurred")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server exiting")
}
