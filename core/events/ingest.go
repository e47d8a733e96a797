package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"userlytics/pkg/metrics"
)

// Ingestor validates and appends single events, lazily registering
// unseen event kinds.
type Ingestor struct {
	store Store
}

// NewIngestor creates an ingestor over store.
func NewIngestor(store Store) *Ingestor {
	return &Ingestor{store: store}
}

// Ingest records one event for an existing actor. The actor must already
// be registered; ingestion never materializes unknown actors and fails
// with ErrActorNotFound instead. An unseen kind name is added to the
// dictionary, tolerating concurrent first-sight of the same name.
//
// A zero timestamp is taken as "now".
func (in *Ingestor) Ingest(ctx context.Context, actorID uuid.UUID, kindName string, ts time.Time, meta Metadata) error {
	if kindName == "" || len(kindName) > MaxKindNameLen {
		return ErrInvalidKindName
	}

	actor, err := in.store.GetActor(ctx, actorID)
	if err != nil {
		return err
	}

	kind, err := in.store.FindOrCreateKind(ctx, kindName)
	if err != nil {
		return fmt.Errorf("resolve kind: %w", err)
	}

	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	ev := &ActivityEvent{
		ActorID:   actor.ID,
		KindID:    kind.ID,
		Timestamp: ts.UTC(),
		Metadata:  meta,
	}
	if err := in.store.AppendEvent(ctx, ev); err != nil {
		return err
	}

	metrics.EventsIngested.Inc()
	return nil
}
