package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	revoker "go.pilab.hu/revoker"
	apiecho "go.pilab.hu/revoker/api/echo"
	rediscache "go.pilab.hu/revoker/cache/redis"
	"go.pilab.hu/revoker/config"
	"go.pilab.hu/revoker/internal/audit"
	"go.pilab.hu/revoker/internal/fedsync"
	"go.pilab.hu/revoker/internal/metrics"
	"go.pilab.hu/revoker/middleware"
	"go.pilab.hu/revoker/mongodb"
	"go.pilab.hu/revoker/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		log.Warn().
			Str("configured_log_level", cfg.LogLevel).
			Str("fallback_log_level", logLevel.String()).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	zerolog.SetGlobalLevel(logLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Msg("Starting revoker server...")

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracer provider")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MongoDB")
	}
	db := mongodb.GetDB()

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to ping Redis")
	}

	clients := mongodb.NewClientRepositoryMongo(db)
	sessions, err := mongodb.NewSessionRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session repository")
	}
	tokens, err := mongodb.NewTokenRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token repository")
	}
	jobs, err := mongodb.NewBatchJobRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize batch job repository")
	}
	auditLogs, err := mongodb.NewAuditLogRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audit log repository")
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	revocations := rediscache.NewRevocationCache(redisClient, cfg.RedisPrefix)
	auditor := audit.NewRecorder(auditLogs)

	// The group directory is an external identity collaborator; the Mongo
	// adapter is the default for deployments that co-locate identity data.
	directory := mongodb.NewGroupDirectoryMongo(db)

	resolver := revoker.NewResolver(clients, sessions, tokens, directory)
	estimator := revoker.NewEstimator(resolver)
	engine := revoker.NewEngine(resolver, jobs, tokens,
		revoker.WithBatchSize(cfg.RevokeBatchSize),
		revoker.WithPollInterval(time.Duration(cfg.EnginePollIntervalMS)*time.Millisecond),
		revoker.WithRevocationCache(revocations),
		revoker.WithAuditRecorder(auditor),
	)

	syncCfg := fedsync.Config{
		TrustedOrigins:   cfg.TrustedOrigins,
		FederatedOrigins: cfg.FederatedOrigins,
		AckTimeout:       time.Duration(cfg.SyncAckTimeoutMS) * time.Millisecond,
		MaxRetries:       cfg.SyncMaxRetries,
		RetryBackoff:     time.Duration(cfg.SyncBackoffMS) * time.Millisecond,
		OverallTimeout:   time.Duration(cfg.SyncOverallSec) * time.Second,
	}
	transport := fedsync.NewHTTPTransport(syncCfg.AckTimeout)
	broadcaster := fedsync.NewRedisBroadcaster(redisClient, cfg.LogoutPubSubTopic)
	logoutSvc := revoker.NewLogoutService(tokens, revocations, syncCfg, transport, broadcaster)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	guard := middleware.SessionGuard([]byte(cfg.JWTSecretKey), revocations)
	batchAPI := apiecho.NewBatchLogoutAPI(engine, estimator, logoutSvc, sessions, auditLogs, auditor, cfg.OtelServiceName)
	batchAPI.RegisterRoutes(e, guard)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		if err := mongodb.Ping(c.Request().Context()); err != nil {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})

	go func() {
		if err := engine.Run(ctx, cfg.EngineWorkers); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Job engine stopped unexpectedly")
		}
	}()

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := revocations.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close revocation cache")
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down tracer provider")
	}
	mongodb.CloseMongoDB(shutdownCtx)
	log.Info().Msg("Shutdown complete.")
}
