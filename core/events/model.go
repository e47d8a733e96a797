// Package events is the analytics core: durable storage of user-activity
// events plus the ingestion, bulk-load, paging, and statistics paths
// that operate on them.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Actor is the identity on whose behalf events occur. Actors are created
// on registration and immutable afterward; this core never deletes them.
type Actor struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// EventKind is one entry of the append-only event-type dictionary.
// Kinds are created lazily on first sight and never mutated or deleted.
type EventKind struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MaxKindNameLen bounds dictionary names at the column width.
const MaxKindNameLen = 100

// Metadata is the semi-structured attribute map attached to an event.
// Values are strings, numbers, booleans, or nested maps; it is persisted
// as a JSONB document, not a fixed schema.
type Metadata map[string]interface{}

// ActivityEvent is one recorded occurrence, attributed to an actor and a
// kind. Events are immutable once stored; they are removed only by the
// bulk time-bound purge.
type ActivityEvent struct {
	ID        int64     `json:"id"`
	ActorID   uuid.UUID `json:"user_id"`
	KindID    int       `json:"type_id"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata"`
}

// PageCount is one ranked entry of a top-pages breakdown.
type PageCount struct {
	Page  string `json:"page"`
	Count int64  `json:"count"`
}
