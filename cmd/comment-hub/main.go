package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"comment-hub/auth"
	"comment-hub/gateway"
	"comment-hub/hub"
	"comment-hub/moderation"
	"comment-hub/observability"
	"comment-hub/projection"
	"comment-hub/query"
	"comment-hub/repositories"
	"comment-hub/runtime"
	"comment-hub/search"
	"comment-hub/services"
	"comment-hub/store"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "comment-hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes every component and owns the server lifecycle, so that
// deferred cleanup (database close, index flush) always executes before the
// process exits.
func run() (int, error) {
	// 1. Configuration & logger
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Persistence (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	repo := repositories.NewCommentRepository(db, logger)

	// 3. Search index (Bluge)
	indexer, err := search.NewIndexer(logger, config.BlugeFilepath)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open search index: %w", err)
	}
	defer func() {
		logger.Info("Closing search index...")
		_ = indexer.Close()
	}()

	// 4. Core wiring: store, hub, screener, engine, view, projections
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	threadStore := store.New(logger, repo, store.Options{
		MaxDepth:      config.MaxDepth,
		MaxBodyLength: config.MaxBodyLength,
		LockTimeout:   config.LockTimeout,
	})

	stored, err := repo.LoadAll()
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to load persisted threads: %w", err)
	}
	threadStore.Seed(stored)
	logger.Info("Seeded store from disk", "threads", len(stored))

	eventHub := hub.New(logger, config.QueueSize, hub.NewMetrics(registry))

	screener, err := moderation.NewScreener(moderation.DefaultBlocklist(), config.AutoApprove, logger)
	if err != nil {
		return exitConfig, fmt.Errorf("failed to build screener: %w", err)
	}

	engine := moderation.NewEngine(logger, threadStore, eventHub, screener, config.BufferSize)
	view := query.NewView(logger, threadStore, config.PageSizeCap)

	stats := projection.NewStatsProjection()
	stats.Seed(stored)

	// 5. Supervised background workers
	fanout := runtime.NewFanoutWorker(logger, engine.Feed(), config.SinkTimeout, indexer, stats)
	reporter := observability.NewReporter(logger, config.MetricInterval, func() map[string]any {
		return map[string]any{
			"threads":     threadStore.ThreadCount(),
			"subscribers": eventHub.TotalSubscribers(),
		}
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor := runtime.NewSupervisor(logger, config.RestartInterval)
	supervisorDone := make(chan struct{})
	go func() {
		supervisor.Add(fanout, reporter).Run(ctx)
		close(supervisorDone)
	}()

	// 6. HTTP gateway
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	service := services.NewCommentService(threadStore, engine, view, eventHub, indexer, stats)
	server := gateway.NewServer(logger, service, tokens, []gateway.ModeratorAccount{{
		ID:           config.ModeratorID,
		Name:         config.ModeratorName,
		PasswordHash: config.ModeratorHash,
		Roles:        []string{"moderator"},
	}}, config.RateRPS, config.RateBurst, registry)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for stop or error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Graceful shutdown: stop accepting requests, then drain workers.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	supervisor.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
