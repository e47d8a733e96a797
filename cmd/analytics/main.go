// Command analytics runs the event analytics HTTP service: ingestion,
// paged reads, retention deletes, and the statistics endpoint over
// PostgreSQL with an optional Redis statistics cache.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"userlytics/core/events"
	"userlytics/internal/api"
	"userlytics/pkg/cache"
	"userlytics/pkg/config"
	"userlytics/pkg/database"
	"userlytics/pkg/observability"
	"userlytics/pkg/structlog"
)

func main() {
	logger := structlog.NewLogger("analytics", structlog.ParseLevel(config.Get("LOG_LEVEL", "info")), os.Stdout)
	structlog.SetDefaultLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDatabase(database.ConfigFromEnv())
	if err != nil {
		logger.Fatal("database connection failed", structlog.Fields{"error": err.Error()})
	}
	defer db.Close()

	migrationsFS, migrationsPath := events.Migrations()
	mm, err := database.NewMigrationManager(db, migrationsFS, migrationsPath)
	if err != nil {
		logger.Fatal("migration setup failed", structlog.Fields{"error": err.Error()})
	}
	if err := mm.Up(); err != nil {
		logger.Fatal("migration failed", structlog.Fields{"error": err.Error()})
	}

	statsCache, err := cache.Connect(ctx, config.Get("REDIS_ADDR", ""))
	if err != nil {
		logger.Warn("statistics cache unavailable", structlog.Fields{"error": err.Error()})
		statsCache = cache.New(nil)
	}
	defer statsCache.Close()

	shutdownTracer := observability.InitTracer("analytics")
	defer shutdownTracer(context.Background())

	store := events.NewPostgresStore(db)
	aggregator := events.NewAggregator(store, statsCache)
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return db.Ping(pingCtx)
	}
	server := api.NewServer(store, aggregator, ping, logger)

	addr := ":" + config.Get("ANALYTICS_PORT", "8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(server.Routes(), "analytics"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", structlog.Fields{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", structlog.Fields{"error": err.Error()})
		}
	case <-ctx.Done():
		logger.Info("shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown incomplete", structlog.Fields{"error": err.Error()})
		}
	}
}
