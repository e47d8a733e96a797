package events

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerActor(t *testing.T, store *MemStore, name string) uuid.UUID {
	t.Helper()
	a := Actor{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.RegisterActor(context.Background(), &a))
	return a.ID
}

func TestIngestStoresEvent(t *testing.T) {
	store := NewMemStore()
	ing := NewIngestor(store)
	actorID := registerActor(t, store, "alice")

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := ing.Ingest(context.Background(), actorID, "login", ts, Metadata{"page": "/login"})
	require.NoError(t, err)

	list, err := store.ListEvents(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, actorID, list[0].ActorID)
	assert.True(t, ts.Equal(list[0].Timestamp))
	assert.Equal(t, "/login", list[0].Metadata["page"])

	kind, err := store.FindKind(context.Background(), "login")
	require.NoError(t, err)
	assert.Equal(t, kind.ID, list[0].KindID)
}

func TestIngestUnknownActor(t *testing.T) {
	store := NewMemStore()
	ing := NewIngestor(store)

	err := ing.Ingest(context.Background(), uuid.New(), "login", time.Time{}, nil)
	assert.ErrorIs(t, err, ErrActorNotFound)

	n, err := store.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestCreatesKindOnce(t *testing.T) {
	store := NewMemStore()
	ing := NewIngestor(store)
	actorID := registerActor(t, store, "bob")

	for i := 0; i < 3; i++ {
		require.NoError(t, ing.Ingest(context.Background(), actorID, "checkout", time.Time{}, nil))
	}

	kinds, err := store.ListKinds(context.Background())
	require.NoError(t, err)
	require.Len(t, kinds, 1)
	assert.Equal(t, "checkout", kinds[0].Name)
}

func TestIngestRejectsBadKindName(t *testing.T) {
	store := NewMemStore()
	ing := NewIngestor(store)
	actorID := registerActor(t, store, "carol")

	err := ing.Ingest(context.Background(), actorID, "", time.Time{}, nil)
	assert.ErrorIs(t, err, ErrInvalidKindName)

	err = ing.Ingest(context.Background(), actorID, strings.Repeat("x", MaxKindNameLen+1), time.Time{}, nil)
	assert.ErrorIs(t, err, ErrInvalidKindName)
}

func TestIngestZeroTimestampDefaultsToNow(t *testing.T) {
	store := NewMemStore()
	ing := NewIngestor(store)
	actorID := registerActor(t, store, "dora")

	before := time.Now().UTC()
	require.NoError(t, ing.Ingest(context.Background(), actorID, "view", time.Time{}, nil))
	after := time.Now().UTC()

	list, err := store.ListEvents(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Timestamp.Before(before))
	assert.False(t, list[0].Timestamp.After(after))
}
