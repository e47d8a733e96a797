package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvents(t *testing.T, store *MemStore, n int) {
	t.Helper()
	ctx := context.Background()
	actorID := registerActor(t, store, "pager")
	kind, err := store.FindOrCreateKind(ctx, "view")
	require.NoError(t, err)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ev := ActivityEvent{
			ActorID:   actorID,
			KindID:    kind.ID,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.AppendEvent(ctx, &ev))
	}
}

func TestPagerFirstAndLastPage(t *testing.T) {
	store := NewMemStore()
	seedEvents(t, store, 10)
	p := NewPager(store)

	first, err := p.Page(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 5, first.Limit)
	assert.EqualValues(t, 10, first.Total)
	require.Len(t, first.List, 5)

	// Newest first: page 1 holds the latest timestamps.
	for i := 1; i < len(first.List); i++ {
		assert.True(t, !first.List[i-1].Timestamp.Before(first.List[i].Timestamp))
	}

	last, err := p.Page(context.Background(), 2, 5)
	require.NoError(t, err)
	require.Len(t, last.List, 5)
	assert.True(t, first.List[4].Timestamp.After(last.List[0].Timestamp))
}

func TestPagerPastTheEnd(t *testing.T) {
	store := NewMemStore()
	seedEvents(t, store, 10)
	p := NewPager(store)

	out, err := p.Page(context.Background(), 3, 5)
	require.NoError(t, err)
	assert.Empty(t, out.List)
	assert.EqualValues(t, 10, out.Total)
}

func TestPagerRejectsNonPositiveArgs(t *testing.T) {
	p := NewPager(NewMemStore())

	_, err := p.Page(context.Background(), 0, 5)
	assert.ErrorIs(t, err, ErrInvalidPageRequest)

	_, err = p.Page(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidPageRequest)

	_, err = p.Page(context.Background(), -1, -1)
	assert.ErrorIs(t, err, ErrInvalidPageRequest)
}

func TestPagerConcatenationReconstructsStream(t *testing.T) {
	store := NewMemStore()
	seedEvents(t, store, 23)
	p := NewPager(store)

	seen := make(map[int64]int)
	var prev *ActivityEvent
	for page := 1; ; page++ {
		out, err := p.Page(context.Background(), page, 5)
		require.NoError(t, err)
		if len(out.List) == 0 {
			break
		}
		for i := range out.List {
			ev := out.List[i]
			seen[ev.ID]++
			if prev != nil {
				assert.False(t, ev.Timestamp.After(prev.Timestamp))
			}
			prev = &out.List[i]
		}
	}

	// Every row exactly once: no gaps, no duplicates across pages.
	require.Len(t, seen, 23)
	for id, n := range seen {
		assert.Equal(t, 1, n, "event %d", id)
	}
}

func TestPagerTieBreakOnEqualTimestamps(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	actorID := registerActor(t, store, "ties")
	kind, err := store.FindOrCreateKind(ctx, "view")
	require.NoError(t, err)
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		ev := ActivityEvent{ActorID: actorID, KindID: kind.ID, Timestamp: ts}
		require.NoError(t, store.AppendEvent(ctx, &ev))
	}

	p := NewPager(store)
	out, err := p.Page(ctx, 1, 4)
	require.NoError(t, err)
	require.Len(t, out.List, 4)
	for i := 1; i < len(out.List); i++ {
		assert.Greater(t, out.List[i-1].ID, out.List[i].ID)
	}
}
