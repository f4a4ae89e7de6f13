// Package main is the entrypoint for the RapidResolve API server.
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

	"github.com/joho/godotenv"

	"github.com/rapidresolve/engine/internal/ai"
	"github.com/rapidresolve/engine/internal/api"
	"github.com/rapidresolve/engine/internal/api/handler"
	mw "github.com/rapidresolve/engine/internal/api/middleware"
	"github.com/rapidresolve/engine/internal/cache"
	"github.com/rapidresolve/engine/internal/config"
	"github.com/rapidresolve/engine/internal/engine"
	"github.com/rapidresolve/engine/internal/events"
	"github.com/rapidresolve/engine/internal/storage"
	"github.com/rapidresolve/engine/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"storage_backend", cfg.Storage.Backend,
		"env", cfg.Server.Env)

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

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create blob storage backend
	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("create storage backend: %w", err)
	}
	slog.Info("storage backend ready", "backend", cfg.Storage.Backend)

	// 6. Create AI provider
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	// 7. Create event publisher
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka, logger)
		defer kp.Close()
		publisher = kp
		slog.Info("kafka publisher ready", "topic", cfg.Kafka.Topic)
	}

	// 8. Wire the engine
	pgStore := store.NewPostgresStore(pool)
	eng := engine.New(pgStore, redisCache, blobs, aiProvider, publisher,
		cfg.Engine, cfg.AI.InferenceTimeout, logger)

	// 9. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler:            handler.NewHealthHandler(pgStore, redisCache),
		CreateTicketHandler:      handler.NewCreateTicketHandler(eng),
		GetTicketHandler:         handler.NewGetTicketHandler(pgStore),
		ListTicketsHandler:       handler.NewListTicketsHandler(pgStore),
		CloseTicketHandler:       handler.NewCloseTicketHandler(eng),
		SubmitInteractionHandler: handler.NewSubmitInteractionHandler(eng),
		RequestSolutionHandler:   handler.NewRequestSolutionHandler(eng),
		FeedbackHandler:          handler.NewFeedbackHandler(eng),
		UploadAttachmentHandler:  handler.NewUploadAttachmentHandler(eng),
	}
	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
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
	// Let in-flight summary refreshes finish writing.
	eng.Wait()

	slog.Info("server stopped gracefully")
	return nil
}
