package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the entity-store contract the ingestion and read paths are
// built against. The production implementation is PostgresStore; tests
// substitute an in-memory one.
//
// Implementations surface storage errors to callers unchanged and do
// not retry, with one exception: FindOrCreateKind absorbs the
// concurrent-first-sight race on the kind dictionary internally.
type Store interface {
	// GetActor returns the actor or ErrActorNotFound.
	GetActor(ctx context.Context, id uuid.UUID) (*Actor, error)
	// RegisterActor stores a new actor; registering an existing id is a
	// no-op (actors are immutable).
	RegisterActor(ctx context.Context, a *Actor) error
	// ListActorIDs returns every known actor id.
	ListActorIDs(ctx context.Context) ([]uuid.UUID, error)

	// FindKind resolves a kind name or returns ErrEventKindNotFound.
	FindKind(ctx context.Context, name string) (*EventKind, error)
	// FindOrCreateKind resolves a kind name, creating the dictionary row
	// on first sight. Concurrent first-sight of one name yields exactly
	// one row; the losing creator re-reads instead of erroring.
	FindOrCreateKind(ctx context.Context, name string) (*EventKind, error)
	// ListKinds returns the whole dictionary.
	ListKinds(ctx context.Context) ([]EventKind, error)

	// AppendEvent stores one event and fills in its assigned id.
	AppendEvent(ctx context.Context, ev *ActivityEvent) error
	// ListEvents returns events ordered newest first (timestamp, then id,
	// both descending) over the given window.
	ListEvents(ctx context.Context, limit, offset int) ([]ActivityEvent, error)
	// ListActorEvents returns one actor's newest events.
	ListActorEvents(ctx context.Context, actorID uuid.UUID, limit int) ([]ActivityEvent, error)
	// CountEvents returns the total stored event count.
	CountEvents(ctx context.Context) (int64, error)
	// DeleteEventsBefore purges events strictly older than t and reports
	// how many rows were removed.
	DeleteEventsBefore(ctx context.Context, t time.Time) (int64, error)

	// The three statistics sub-queries evaluate one logical filtered
	// view: timestamp in [from, to] (inclusive) and the given kind.
	CountEventsInRange(ctx context.Context, kindID int, from, to time.Time) (int64, error)
	CountDistinctActorsInRange(ctx context.Context, kindID int, from, to time.Time) (int64, error)
	// TopPagesInRange ranks the distinct values of the "page" metadata
	// attribute by frequency, ties broken by first-encountered value
	// (smallest event id). Events without the attribute are skipped.
	TopPagesInRange(ctx context.Context, kindID int, from, to time.Time, limit int) ([]PageCount, error)
}

// BulkWriter streams whole partitions through the storage engine's
// low-overhead bulk path on a dedicated connection per call.
type BulkWriter interface {
	CopyEvents(ctx context.Context, rows []ActivityEvent) error
}

// Maintenance is the loader-only surface for storage-engine maintenance
// around a bulk load: durability toggles, index drop/rebuild, row-level
// validation toggles, and the explicit-opt-in truncate.
type Maintenance interface {
	SetEventsUnlogged(ctx context.Context) error
	SetEventsLogged(ctx context.Context) error
	DropActorIndex(ctx context.Context) error
	// RebuildActorIndex rebuilds without blocking concurrent readers.
	RebuildActorIndex(ctx context.Context) error
	DisableEventTriggers(ctx context.Context) error
	EnableEventTriggers(ctx context.Context) error
	TruncateEvents(ctx context.Context) error
}

// LoaderStore is everything the bulk loader needs from storage.
type LoaderStore interface {
	BulkWriter
	Maintenance
	CountEvents(ctx context.Context) (int64, error)
}
