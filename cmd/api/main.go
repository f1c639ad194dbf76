package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/finance-insights/internal/api/handlers"
	"github.com/dvloznov/finance-insights/internal/api/middleware"
	"github.com/dvloznov/finance-insights/internal/app"
	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/dvloznov/finance-insights/internal/jobs/inmemory"
	"github.com/dvloznov/finance-insights/internal/jobs/redisqueue"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Parse command-line flags
	var (
		port     = flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
		useRedis = flag.Bool("redis", false, "Publish jobs to Redis for cmd/worker instead of running them in process")
	)
	flag.Parse()

	log := logger.NewWithOptions(cfg.LoggerOptions())
	ctx := logger.WithContext(context.Background(), log)

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer application.Close()

	// Job infrastructure: Redis when a separate worker runs, otherwise an
	// in-process queue with its own workers.
	var (
		jobStore  jobs.JobStore
		publisher jobs.Publisher
	)
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if *useRedis {
		client, err := redisqueue.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer client.Close()

		store := redisqueue.NewStore(client, redisqueue.DefaultPrefix)
		jobStore = store
		publisher = redisqueue.NewQueue(client, store, redisqueue.DefaultPrefix)
		log.Info().Msg("Publishing analysis jobs to Redis")
	} else {
		store := inmemory.NewStore()
		queue := inmemory.NewQueue(100, store)
		jobStore, publisher = store, queue

		if err := queue.Start(workerCtx, application.JobHandler()); err != nil {
			log.Fatal().Err(err).Msg("Failed to start job worker")
		}
		log.Info().Msg("Started in-process job worker")
	}

	// Initialize handlers
	streamTimeout := pipeline.DefaultTimeout
	if cfg.AnalysisTimeout > 0 {
		streamTimeout = cfg.AnalysisTimeout
	}
	insightsHandler := handlers.NewInsightsHandler(application.Analyzer, application.Latest, streamTimeout+5*time.Second, log)
	jobsHandler := handlers.NewJobsHandler(publisher, jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Insights endpoints
	for _, kind := range []domain.AnalysisKind{domain.KindPatterns, domain.KindTrends, domain.KindRecommendations} {
		analyze := insightsHandler.Analyze(kind)
		mux.HandleFunc("/api/insights/"+string(kind), func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				analyze(w, r)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})
	}

	mux.HandleFunc("/api/insights/stream", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			insightsHandler.Stream(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/insights/latest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			insightsHandler.Latest(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			jobsHandler.ListJobs(w, r)
		case http.MethodPost:
			jobsHandler.CreateJob(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	// Analyses may run up to the analysis timeout before the first byte is written.
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: streamTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if consumer, ok := publisher.(jobs.Consumer); ok {
		if err := consumer.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
		}
	}

	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
