package events

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// indexGenerator tags every row with its global index so coverage can be
// checked after a load.
func indexGenerator(actorID uuid.UUID) Generator {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return func(i int64, _ *rand.Rand) ActivityEvent {
		return ActivityEvent{
			ActorID:   actorID,
			KindID:    1,
			Timestamp: base,
			Metadata:  Metadata{"i": i},
		}
	}
}

// loadedIndices returns the set of global indices present in the store.
func loadedIndices(t *testing.T, store *MemStore) map[int64]int {
	t.Helper()
	seen := make(map[int64]int)
	total, err := store.CountEvents(context.Background())
	require.NoError(t, err)
	list, err := store.ListEvents(context.Background(), int(total), 0)
	require.NoError(t, err)
	for _, ev := range list {
		i, ok := ev.Metadata["i"].(int64)
		require.True(t, ok)
		seen[i]++
	}
	return seen
}

func TestLoaderLoadsEveryRowExactlyOnce(t *testing.T) {
	store := NewMemStore()
	actorID := registerActor(t, store, "bulk")
	cfg := LoaderConfig{TotalRows: 1050, BatchSize: 100, Workers: 4, Seed: 7}
	loader := NewLoader(store, indexGenerator(actorID), cfg, nil)

	report, err := loader.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, report.Partitions)
	assert.Equal(t, 11, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.EqualValues(t, 1050, report.RowsLoaded)

	seen := loadedIndices(t, store)
	require.Len(t, seen, 1050)
	for i := int64(0); i < 1050; i++ {
		assert.Equal(t, 1, seen[i], "index %d", i)
	}
}

func TestLoaderRestoresMaintenanceState(t *testing.T) {
	store := NewMemStore()
	actorID := registerActor(t, store, "bulk")
	loader := NewLoader(store, indexGenerator(actorID), LoaderConfig{TotalRows: 10, BatchSize: 5}, nil)

	_, err := loader.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, store.Unlogged)
	assert.False(t, store.IndexDropped)
	assert.False(t, store.TriggersDisabled)
}

// flakyStore fails every Nth copy call.
type flakyStore struct {
	*MemStore
	mu        sync.Mutex
	calls     int
	failEvery int
}

func (f *flakyStore) CopyEvents(ctx context.Context, rows []ActivityEvent) error {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.failEvery > 0 && n%f.failEvery == 0 {
		return errors.New("connection reset")
	}
	return f.MemStore.CopyEvents(ctx, rows)
}

func TestLoaderPartialFailure(t *testing.T) {
	mem := NewMemStore()
	actorID := registerActor(t, mem, "bulk")
	store := &flakyStore{MemStore: mem, failEvery: 3}
	loader := NewLoader(store, indexGenerator(actorID), LoaderConfig{TotalRows: 900, BatchSize: 100, Workers: 2}, nil)

	report, err := loader.Run(context.Background())
	require.Error(t, err)

	var partial *PartialLoadError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 3, partial.Failed)
	assert.Equal(t, 6, partial.Succeeded)
	assert.EqualError(t, partial.First, "connection reset")

	// The barrier held: every partition ran to completion despite the
	// failures, and maintenance was still restored.
	assert.Equal(t, 9, report.Succeeded+report.Failed)
	assert.EqualValues(t, 600, report.RowsLoaded)
	assert.False(t, mem.Unlogged)
	assert.False(t, mem.IndexDropped)
	assert.False(t, mem.TriggersDisabled)
}

func TestLoaderRefusesDoubleLoad(t *testing.T) {
	store := NewMemStore()
	actorID := registerActor(t, store, "bulk")
	ev := ActivityEvent{ActorID: actorID, KindID: 1, Timestamp: time.Now().UTC()}
	require.NoError(t, store.AppendEvent(context.Background(), &ev))

	loader := NewLoader(store, indexGenerator(actorID), LoaderConfig{TotalRows: 10, BatchSize: 5}, nil)
	_, err := loader.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyLoaded)

	// Nothing was touched: no maintenance, no new rows.
	assert.False(t, store.Unlogged)
	n, err := store.CountEvents(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLoaderTruncateReplacesExistingRows(t *testing.T) {
	store := NewMemStore()
	actorID := registerActor(t, store, "bulk")
	ev := ActivityEvent{ActorID: actorID, KindID: 1, Timestamp: time.Now().UTC()}
	require.NoError(t, store.AppendEvent(context.Background(), &ev))

	loader := NewLoader(store, indexGenerator(actorID), LoaderConfig{TotalRows: 20, BatchSize: 5, Truncate: true}, nil)
	report, err := loader.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 20, report.RowsLoaded)

	n, err := store.CountEvents(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 20, n)
}

// cancellingStore cancels the load after the first successful copy.
type cancellingStore struct {
	*MemStore
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancellingStore) CopyEvents(ctx context.Context, rows []ActivityEvent) error {
	err := c.MemStore.CopyEvents(ctx, rows)
	c.once.Do(c.cancel)
	return err
}

func TestLoaderCancellationStopsNewPartitions(t *testing.T) {
	mem := NewMemStore()
	actorID := registerActor(t, mem, "bulk")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{MemStore: mem, cancel: cancel}

	loader := NewLoader(store, indexGenerator(actorID), LoaderConfig{TotalRows: 1000, BatchSize: 10, Workers: 1}, nil)
	report, err := loader.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, report.Succeeded, report.Partitions)

	// Cancellation still restores maintenance state.
	assert.False(t, mem.Unlogged)
	assert.False(t, mem.IndexDropped)
	assert.False(t, mem.TriggersDisabled)
}

func TestLoaderRejectsNonPositiveConfig(t *testing.T) {
	store := NewMemStore()
	loader := NewLoader(store, indexGenerator(uuid.New()), LoaderConfig{TotalRows: 0, BatchSize: 100}, nil)
	_, err := loader.Run(context.Background())
	assert.Error(t, err)

	loader = NewLoader(store, indexGenerator(uuid.New()), LoaderConfig{TotalRows: 100, BatchSize: 0}, nil)
	_, err = loader.Run(context.Background())
	assert.Error(t, err)
}

func TestPartitionsCoverTotalWithoutGaps(t *testing.T) {
	parts := partitions(1050, 100)
	require.Len(t, parts, 11)

	var next int64
	for i, p := range parts {
		assert.EqualValues(t, i, p.Index)
		assert.Equal(t, next, p.Start)
		assert.Greater(t, p.End, p.Start)
		next = p.End
	}
	assert.EqualValues(t, 1050, next)
	assert.EqualValues(t, 50, parts[10].End-parts[10].Start)
}

// TestBulkMatchesSingleIngestion loads the same generated rows through
// the bulk path and through one-by-one appends, and checks that the
// statistics come out identical.
func TestBulkMatchesSingleIngestion(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

	bulk := NewMemStore()
	single := NewMemStore()
	ids, kinds, err := EnsureBaseData(ctx, bulk, 10, 5)
	require.NoError(t, err)
	for _, id := range ids {
		a := Actor{ID: id, Name: "copy", CreatedAt: now}
		require.NoError(t, single.RegisterActor(ctx, &a))
	}
	for _, k := range kinds {
		_, err := single.FindOrCreateKind(ctx, k.Name)
		require.NoError(t, err)
	}

	gen := SyntheticGenerator(ids, kinds, now)
	cfg := LoaderConfig{TotalRows: 500, BatchSize: 50, Workers: 4, Seed: 11}
	_, err = NewLoader(bulk, gen, cfg, nil).Run(ctx)
	require.NoError(t, err)

	for _, p := range partitions(cfg.TotalRows, cfg.BatchSize) {
		rng := rand.New(rand.NewSource(cfg.Seed + p.Index))
		for i := p.Start; i < p.End; i++ {
			ev := gen(i, rng)
			require.NoError(t, single.AppendEvent(ctx, &ev))
		}
	}

	from, to := now.Add(-8*24*time.Hour), now
	for _, k := range kinds {
		bulkAgg := NewAggregator(bulk, nil)
		singleAgg := NewAggregator(single, nil)

		a, err := bulkAgg.Stats(ctx, k.Name, from, to)
		require.NoError(t, err)
		b, err := singleAgg.Stats(ctx, k.Name, from, to)
		require.NoError(t, err)

		assert.Equal(t, b.TotalEvents, a.TotalEvents, k.Name)
		assert.Equal(t, b.UniqueUsers, a.UniqueUsers, k.Name)
		assert.ElementsMatch(t, b.TopPages, a.TopPages, k.Name)
	}
}

func TestEnsureBaseData(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	ids, kinds, err := EnsureBaseData(ctx, store, 100, 42)
	require.NoError(t, err)
	assert.Len(t, ids, 100)
	require.Len(t, kinds, len(DefaultKindNames))
	for i, k := range kinds {
		assert.Equal(t, DefaultKindNames[i], k.Name)
	}

	// Idempotent: a second call reuses the existing population.
	again, kinds2, err := EnsureBaseData(ctx, store, 100, 42)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, again)
	assert.Equal(t, kinds, kinds2)
}
