package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/cache"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/handler"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/router"
	"github.com/stemsi/exstem-session/internal/scoring"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
	"github.com/stemsi/exstem-session/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("scoring_url", cfg.ScoringBaseURL).
		Msg("Starting ExStem Session")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Caches ─────────────────────────────────────────────
	backend := cache.NewRedisBackend(rdb, cfg.CacheRetention)
	catalogCache := cache.New[[]model.ExamSummary](backend, cfg.CatalogCacheTTL, logger.Component(log, "catalog_cache"))
	questionCache := cache.New[model.QuestionSet](backend, cfg.QuestionCacheTTL, logger.Component(log, "question_cache"))

	// ─── Initialize Repositories ───────────────────────────────────────
	markerRepo := repository.NewSessionMarkerRepository(rdb)
	receiptRepo := repository.NewAttemptReceiptRepository(pool)
	receiptQueue := worker.NewReceiptQueue(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	scoringClient := scoring.NewClient(cfg.ScoringBaseURL, cfg.ScoringAPIKey, cfg.ScoringTimeout, log)
	authService := service.NewAuthService(cfg)
	catalogService := service.NewCatalogService(scoringClient, catalogCache, questionCache, service.CatalogOptions{
		CatalogRetries: cfg.CatalogFetchRetries,
		RetryDelay:     cfg.CatalogRetryDelay,
	}, log)
	sessionService := service.NewExamSessionService(catalogService, markerRepo, scoringClient, receiptQueue, receiptRepo, service.SessionOptions{
		NoticeTTL: cfg.NoticeTTL,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(catalogService, sessionService),
		WS:            handler.NewWSHandler(sessionService, cfg.TimerTick, log, cfg.AllowedOrigins),
		System:        handler.NewSystemHandler(rdb, pool, sessionService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	receiptWorker := worker.NewReceiptWorker(receiptRepo, rdb, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		receiptWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	limiter := middleware.NewRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, log)
	r := router.SetupRouter(authService, limiter, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close open visits and cancel background cache refreshes.
	sessionService.Shutdown()
	catalogService.Close()

	// 3. Stop background workers and wait for the receipt queue to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
