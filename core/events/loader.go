package events

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"userlytics/pkg/metrics"
	"userlytics/pkg/structlog"
)

// LoaderConfig drives one bulk load.
type LoaderConfig struct {
	// TotalRows is the number of events to load.
	TotalRows int64
	// BatchSize is the partition size; each partition is one COPY
	// transaction on one connection.
	BatchSize int64
	// Workers bounds the pool; zero means host parallelism.
	Workers int
	// Seed is the base of each partition's rng seed, making the whole
	// load reproducible.
	Seed int64
	// Truncate empties the table during pre-load maintenance instead of
	// refusing a double load. Explicitly destructive, never the default.
	Truncate bool
}

// LoadReport summarizes one bulk load.
type LoadReport struct {
	Partitions int
	Succeeded  int
	Failed     int
	RowsLoaded int64
	Elapsed    time.Duration
}

// partition is a contiguous range [Start, End) of global row indices
// owned by exactly one worker claim.
type partition struct {
	Index int64
	Start int64
	End   int64
}

// Loader streams a large synthetic or supplied workload into the events
// table through the COPY bulk path, bracketed by storage-engine
// maintenance: durability relaxed and the actor index dropped for the
// duration of the load, both restored afterward on a best-effort basis
// even when partitions fail or the load is cancelled.
type Loader struct {
	store LoaderStore
	gen   Generator
	cfg   LoaderConfig
	log   *structlog.Logger
}

// NewLoader creates a loader. log may be nil.
func NewLoader(store LoaderStore, gen Generator, cfg LoaderConfig, log *structlog.Logger) *Loader {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = structlog.NewLogger("bulkload", structlog.LevelInfo, nil)
	}
	return &Loader{store: store, gen: gen, cfg: cfg, log: log}
}

// Run executes the load. Partition ranges are pulled from a shared
// queue so workers finishing early pick up more work; a failing
// partition aborts only itself, and the first failure is surfaced after
// every in-flight partition has finished, together with the failure
// count. Cancelling ctx stops workers from claiming new partitions but
// still restores maintenance state.
func (l *Loader) Run(ctx context.Context) (*LoadReport, error) {
	if l.cfg.TotalRows <= 0 || l.cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("total rows %d, batch size %d: both must be positive", l.cfg.TotalRows, l.cfg.BatchSize)
	}

	existing, err := l.store.CountEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("check existing rows: %w", err)
	}
	if existing > 0 && !l.cfg.Truncate {
		return nil, fmt.Errorf("%d rows present: %w", existing, ErrAlreadyLoaded)
	}

	start := time.Now()
	if err := l.prepare(ctx); err != nil {
		l.restore(context.WithoutCancel(ctx))
		return nil, err
	}

	report, loadErr := l.runPartitions(ctx)
	report.Elapsed = time.Since(start)

	// Restoration is not optional: the table must never be left
	// unlogged or without its index, even after failure or cancel.
	restoreErr := l.restore(context.WithoutCancel(ctx))

	l.log.Info("bulk load finished", structlog.Fields{
		"partitions": report.Partitions,
		"succeeded":  report.Succeeded,
		"failed":     report.Failed,
		"rows":       report.RowsLoaded,
		"elapsed":    report.Elapsed.String(),
	})

	if loadErr != nil {
		if restoreErr != nil {
			l.log.Error("post-load maintenance failed", structlog.Fields{"error": restoreErr.Error()})
		}
		return report, loadErr
	}
	if restoreErr != nil {
		return report, restoreErr
	}
	return report, nil
}

// prepare relaxes durability and per-row index maintenance before the
// flood of inserts. Safe because the load is re-runnable at table level
// and the index is rebuilt afterward.
func (l *Loader) prepare(ctx context.Context) error {
	if err := l.store.SetEventsUnlogged(ctx); err != nil {
		return fmt.Errorf("pre-load maintenance: %w", err)
	}
	if err := l.store.DropActorIndex(ctx); err != nil {
		return fmt.Errorf("pre-load maintenance: %w", err)
	}
	if err := l.store.DisableEventTriggers(ctx); err != nil {
		return fmt.Errorf("pre-load maintenance: %w", err)
	}
	if l.cfg.Truncate {
		if err := l.store.TruncateEvents(ctx); err != nil {
			return fmt.Errorf("pre-load truncate: %w", err)
		}
	}
	return nil
}

// restore undoes prepare. Every step is attempted regardless of earlier
// step failures; the first error is returned.
func (l *Loader) restore(ctx context.Context) error {
	var first error
	record := func(err error) {
		if err != nil {
			l.log.Error("maintenance restore step failed", structlog.Fields{"error": err.Error()})
			if first == nil {
				first = err
			}
		}
	}
	record(l.store.EnableEventTriggers(ctx))
	record(l.store.SetEventsLogged(ctx))
	record(l.store.RebuildActorIndex(ctx))
	return first
}

func (l *Loader) runPartitions(ctx context.Context) (*LoadReport, error) {
	parts := partitions(l.cfg.TotalRows, l.cfg.BatchSize)
	report := &LoadReport{Partitions: len(parts)}

	// Shared dynamic queue: workers that finish early claim more ranges.
	queue := make(chan partition)
	go func() {
		defer close(queue)
		for _, p := range parts {
			select {
			case queue <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		mu       sync.Mutex
		firstErr error
	)

	var wg sync.WaitGroup
	for w := 0; w < l.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range queue {
				if ctx.Err() != nil {
					return
				}
				rows := l.generate(p)
				if err := l.store.CopyEvents(ctx, rows); err != nil {
					metrics.LoadPartitions.WithLabelValues("failed").Inc()
					l.log.Error("partition failed", structlog.Fields{
						"partition": p.Index,
						"start":     p.Start,
						"end":       p.End,
						"error":     err.Error(),
					})
					mu.Lock()
					report.Failed++
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					continue
				}
				metrics.LoadPartitions.WithLabelValues("succeeded").Inc()
				metrics.EventsLoaded.Add(float64(len(rows)))
				mu.Lock()
				report.Succeeded++
				report.RowsLoaded += int64(len(rows))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if report.Failed > 0 {
		return report, &PartialLoadError{
			Failed:    report.Failed,
			Succeeded: report.Succeeded,
			First:     firstErr,
		}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// generate materializes one partition with its own deterministic rng.
func (l *Loader) generate(p partition) []ActivityEvent {
	rng := rand.New(rand.NewSource(l.cfg.Seed + p.Index))
	rows := make([]ActivityEvent, 0, p.End-p.Start)
	for i := p.Start; i < p.End; i++ {
		rows = append(rows, l.gen(i, rng))
	}
	return rows
}

// partitions divides [0, total) into contiguous ranges of batch size;
// the last range may be short.
func partitions(total, batch int64) []partition {
	parts := make([]partition, 0, (total+batch-1)/batch)
	for start := int64(0); start < total; start += batch {
		end := start + batch
		if end > total {
			end = total
		}
		parts = append(parts, partition{Index: int64(len(parts)), Start: start, End: end})
	}
	return parts
}

// BaseDataStore is the storage surface needed to seed the synthetic
// actor population and kind dictionary before a load.
type BaseDataStore interface {
	ListActorIDs(ctx context.Context) ([]uuid.UUID, error)
	RegisterActor(ctx context.Context, a *Actor) error
	FindOrCreateKind(ctx context.Context, name string) (*EventKind, error)
}

// EnsureBaseData makes sure actors and kinds exist, and returns the
// read-only arrays the generator partitions over. They are loaded once
// here and never mutated during a load.
func EnsureBaseData(ctx context.Context, store BaseDataStore, actorCount int, seed int64) ([]uuid.UUID, []EventKind, error) {
	ids, err := store.ListActorIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list actors: %w", err)
	}
	if len(ids) == 0 {
		for _, a := range SyntheticActors(actorCount, seed, time.Now()) {
			if err := store.RegisterActor(ctx, &a); err != nil {
				return nil, nil, fmt.Errorf("seed actor: %w", err)
			}
			ids = append(ids, a.ID)
		}
	}

	kinds := make([]EventKind, 0, len(DefaultKindNames))
	for _, name := range DefaultKindNames {
		k, err := store.FindOrCreateKind(ctx, name)
		if err != nil {
			return nil, nil, fmt.Errorf("seed kind %q: %w", name, err)
		}
		kinds = append(kinds, *k)
	}
	return ids, kinds, nil
}
