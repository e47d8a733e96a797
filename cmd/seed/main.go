// Command seed fills the events table with a large synthetic workload
// through the bulk loader: applies migrations, ensures the base actor
// population and kind dictionary exist, then streams partitions in
// parallel over the COPY path.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"userlytics/core/events"
	"userlytics/pkg/config"
	"userlytics/pkg/database"
	"userlytics/pkg/structlog"
)

const baseActorCount = 100

func main() {
	var (
		total    = flag.Int64("total", 10_000_000, "number of events to load")
		batch    = flag.Int64("batch", 100_000, "rows per partition (one COPY transaction each)")
		workers  = flag.Int("workers", 0, "parallel load workers (0 = host parallelism)")
		seed     = flag.Int64("seed", 1, "base seed; same seed reproduces the same dataset")
		truncate = flag.Bool("truncate", false, "empty the events table before loading")
	)
	flag.Parse()

	logger := structlog.NewLogger("seed", structlog.ParseLevel(config.Get("LOG_LEVEL", "info")), os.Stdout)
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

	store := events.NewPostgresStore(db)
	actorIDs, kinds, err := events.EnsureBaseData(ctx, store, baseActorCount, *seed)
	if err != nil {
		logger.Fatal("base data seeding failed", structlog.Fields{"error": err.Error()})
	}
	logger.Info("base data ready", structlog.Fields{"actors": len(actorIDs), "kinds": len(kinds)})

	loader := events.NewLoader(
		store,
		events.SyntheticGenerator(actorIDs, kinds, time.Now().UTC()),
		events.LoaderConfig{
			TotalRows: *total,
			BatchSize: *batch,
			Workers:   *workers,
			Seed:      *seed,
			Truncate:  *truncate,
		},
		logger,
	)

	report, err := loader.Run(ctx)
	if err != nil {
		fields := structlog.Fields{"error": err.Error()}
		if report != nil {
			fields["succeeded"] = report.Succeeded
			fields["failed"] = report.Failed
		}
		var partial *events.PartialLoadError
		switch {
		case errors.Is(err, events.ErrAlreadyLoaded):
			logger.Error("events already present, rerun with -truncate to replace them", fields)
		case errors.As(err, &partial):
			logger.Error("load completed partially", fields)
		default:
			logger.Error("load failed", fields)
		}
		os.Exit(1)
	}

	fields := structlog.Fields{
		"rows":       report.RowsLoaded,
		"partitions": report.Partitions,
		"elapsed":    report.Elapsed.String(),
	}
	if report.Elapsed > 0 {
		fields["rows_per_s"] = int64(float64(report.RowsLoaded) / report.Elapsed.Seconds())
	}
	logger.Info("load complete", fields)
}
