// Package main is the entrypoint for the scrape-and-analyze API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TariqKichawele/BrightData/internal/ai"
	"github.com/TariqKichawele/BrightData/internal/analysis"
	"github.com/TariqKichawele/BrightData/internal/api"
	"github.com/TariqKichawele/BrightData/internal/api/handler"
	mw "github.com/TariqKichawele/BrightData/internal/api/middleware"
	"github.com/TariqKichawele/BrightData/internal/cache"
	"github.com/TariqKichawele/BrightData/internal/config"
	"github.com/TariqKichawele/BrightData/internal/dispatch"
	"github.com/TariqKichawele/BrightData/internal/jobs"
	"github.com/TariqKichawele/BrightData/internal/report"
	"github.com/TariqKichawele/BrightData/internal/scraper"
	"github.com/TariqKichawele/BrightData/internal/store"
	"github.com/TariqKichawele/BrightData/internal/webhook"
	"github.com/hibiken/asynq"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"env", cfg.Server.Env,
		"dispatch_mode", cfg.Dispatch.Mode,
		"scraper_enabled", cfg.Scraper.Enabled())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Store with report validation on both read and write
	validator, err := report.NewValidator()
	if err != nil {
		return fmt.Errorf("compile report schema: %w", err)
	}
	pgStore := store.NewPostgresStore(pool, validator)

	// 5. Redis for rate limiting and job events
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 6. AI provider and analysis engine
	aiProvider, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	engine := analysis.NewEngine(pgStore, aiProvider, validator, redisCache, cfg.AI.InferenceTimeout)

	// 7. Analysis dispatch
	d, err := buildDispatcher(cfg, engine, pgStore)
	if err != nil {
		return err
	}

	// 8. Job lifecycle
	ctrl := jobs.NewController(pgStore, engine, d, newScraper(cfg), redisCache)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(cfg.Auth.APIKeyHashes),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Auth.RateLimitPerMin),

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),
		Webhook:       webhook.NewHandler(ctrl, cfg.Scraper.WebhookSecret),
		CreateJob:     handler.NewCreateJobHandler(ctrl),
		ListJobs:      handler.NewListJobsHandler(ctrl),
		GetJob:        handler.NewGetJobHandler(ctrl),
		GetBySnapshot: handler.NewGetBySnapshotHandler(ctrl),
		JobEvents:     handler.NewJobEventsHandler(ctrl, redisCache),
		Eligibility:   handler.NewEligibilityHandler(ctrl),
		StartScrape:   handler.NewStartScrapeHandler(ctrl),
		RetryFull:     handler.NewRetryHandler(ctrl),
		RetryAnalysis: handler.NewRetryAnalysisHandler(ctrl),
		DeleteJob:     handler.NewDeleteJobHandler(ctrl),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Smart retry runs the AI call inline; the event stream clears its own deadline.
		WriteTimeout: cfg.AI.InferenceTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := d.Stop(shutdownCtx); err != nil {
		slog.Warn("analysis runs still in flight at shutdown", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// analysisDispatcher pairs a jobs.Dispatcher with its shutdown hook.
type analysisDispatcher struct {
	jobs.Dispatcher
	Stop func(ctx context.Context) error
}

// buildDispatcher picks in-process goroutines or the asynq queue.
func buildDispatcher(cfg *config.Config, runner dispatch.Runner, st store.Store) (*analysisDispatcher, error) {
	switch cfg.Dispatch.Mode {
	case config.DispatchAsynq:
		redisOpt, err := asynq.ParseRedisURI(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url for asynq: %w", err)
		}
		client := asynq.NewClient(redisOpt)
		worker := dispatch.NewWorker(redisOpt, cfg.Dispatch, runner, st)
		if err := worker.Start(); err != nil {
			client.Close()
			return nil, fmt.Errorf("start analysis worker: %w", err)
		}
		slog.Info("analysis worker started", "queue", cfg.Dispatch.Queue, "concurrency", cfg.Dispatch.Concurrency)
		return &analysisDispatcher{
			Dispatcher: dispatch.NewAsynqDispatcher(client, cfg.Dispatch.Queue),
			Stop: func(context.Context) error {
				worker.Shutdown()
				return client.Close()
			},
		}, nil
	default:
		g := dispatch.NewGoroutineDispatcher(runner, st)
		return &analysisDispatcher{Dispatcher: g, Stop: g.Wait}, nil
	}
}

// newScraper returns nil when no Bright Data token is configured, so the
// controller sees a nil interface rather than a nil *HTTPClient.
func newScraper(cfg *config.Config) scraper.Client {
	if !cfg.Scraper.Enabled() {
		return nil
	}
	return scraper.NewHTTPClient(cfg.Scraper, cfg.Server.PublicURL)
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
