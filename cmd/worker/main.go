package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-insights/internal/app"
	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/jobs/redisqueue"
	"github.com/dvloznov/finance-insights/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		redisURL = flag.String("redis-url", cfg.RedisURL, "Redis URL (or set REDIS_URL env)")
		prefix   = flag.String("prefix", redisqueue.DefaultPrefix, "Redis key prefix shared with the API")
		workers  = flag.Int("workers", redisqueue.DefaultWorkers, "Number of concurrent analyses")
	)
	flag.Parse()

	log := logger.NewWithOptions(cfg.LoggerOptions())

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer application.Close()

	client, err := redisqueue.Connect(ctx, *redisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer client.Close()

	store := redisqueue.NewStore(client, *prefix)
	queue := redisqueue.NewQueue(client, store, *prefix)
	queue.Workers = *workers

	log.Info().Str("prefix", *prefix).Int("workers", *workers).Msg("Starting worker service")

	if err := queue.Start(ctx, application.JobHandler()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Cancel context to stop workers
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if err := queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}
