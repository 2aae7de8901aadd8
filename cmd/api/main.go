package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trackwise/api/internal/cache"
	"trackwise/api/internal/config"
	"trackwise/api/internal/database"
	"trackwise/api/internal/handlers"
	"trackwise/api/internal/jobs"
	"trackwise/api/internal/log"
	"trackwise/api/internal/ratelimit"
	"trackwise/api/internal/repository"
	"trackwise/api/internal/server"
	"trackwise/api/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	var sweeper jobs.LimiterSweeper
	var limitStore ratelimit.Store
	switch cfg.RateLimit.Store {
	case "redis":
		limitStore = ratelimit.NewRedisStore(redisClient, cfg.RateLimit.Window)
	default:
		mem := ratelimit.NewMemoryStore(cfg.RateLimit.Window)
		limitStore = mem
		sweeper = mem
	}
	limiter := ratelimit.New(limitStore, cfg.RateLimit.MaxAttempts)

	handlerSet := handlers.NewHandlerSet(logger, dbPool, redisClient, objectStore, cfg, limiter)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	userRepo := repository.NewUserRepository(dbPool)
	scheduler := jobs.NewScheduler(userRepo, sweeper, cfg.RateLimit.SweepInterval, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	if scheduler != nil {
		cancel := scheduler.Stop()
		cancel()
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
