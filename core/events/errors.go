package events

import (
	"errors"
	"fmt"
)

var (
	// ErrActorNotFound is returned when an event references an actor the
	// store has never seen. Ingestion never materializes unknown actors.
	ErrActorNotFound = errors.New("actor not found")

	// ErrEventKindNotFound is returned by read paths that resolve a kind
	// name; an unknown kind is a caller error, distinct from zero
	// matching events.
	ErrEventKindNotFound = errors.New("event kind not found")

	// ErrInvalidPageRequest rejects zero or negative page numbers and
	// page sizes.
	ErrInvalidPageRequest = errors.New("invalid page request")

	// ErrInvalidTimeRange rejects ranges whose start is after their end.
	ErrInvalidTimeRange = errors.New("invalid time range")

	// ErrInvalidKindName rejects empty or over-long kind names.
	ErrInvalidKindName = fmt.Errorf("event kind name must be 1..%d characters", MaxKindNameLen)

	// ErrAlreadyLoaded is returned when the bulk loader is pointed at a
	// table that already holds rows and truncation was not requested.
	ErrAlreadyLoaded = errors.New("events table already loaded; pass truncate to reload")
)

// PartialLoadError reports a bulk load in which one or more partitions
// failed. The loader waits for all in-flight partitions before returning
// it, and post-load maintenance has already been attempted.
type PartialLoadError struct {
	Failed    int
	Succeeded int
	First     error
}

func (e *PartialLoadError) Error() string {
	return fmt.Sprintf("bulk load: %d of %d partitions failed: %v",
		e.Failed, e.Failed+e.Succeeded, e.First)
}

func (e *PartialLoadError) Unwrap() error {
	return e.First
}
