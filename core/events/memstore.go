package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store and LoaderStore for tests and local
// development. Maintenance toggles are recorded but have no effect on
// behavior.
type MemStore struct {
	mu          sync.RWMutex
	actors      map[uuid.UUID]Actor
	kinds       []EventKind
	kindByName  map[string]int
	events      []ActivityEvent
	nextEventID int64

	Unlogged         bool
	IndexDropped     bool
	TriggersDisabled bool
}

var _ Store = (*MemStore)(nil)
var _ LoaderStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		actors:     make(map[uuid.UUID]Actor),
		kindByName: make(map[string]int),
	}
}

func (s *MemStore) GetActor(_ context.Context, id uuid.UUID) (*Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[id]
	if !ok {
		return nil, ErrActorNotFound
	}
	return &a, nil
}

func (s *MemStore) RegisterActor(_ context.Context, a *Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actors[a.ID]; !ok {
		s.actors[a.ID] = *a
	}
	return nil
}

func (s *MemStore) ListActorIDs(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.actors))
	for id := range s.actors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (s *MemStore) FindKind(_ context.Context, name string) (*EventKind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.kindByName[name]
	if !ok {
		return nil, ErrEventKindNotFound
	}
	k := s.kinds[i]
	return &k, nil
}

func (s *MemStore) FindOrCreateKind(_ context.Context, name string) (*EventKind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.kindByName[name]; ok {
		k := s.kinds[i]
		return &k, nil
	}
	k := EventKind{ID: len(s.kinds) + 1, Name: name}
	s.kindByName[name] = len(s.kinds)
	s.kinds = append(s.kinds, k)
	return &k, nil
}

func (s *MemStore) ListKinds(_ context.Context) ([]EventKind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EventKind, len(s.kinds))
	copy(out, s.kinds)
	return out, nil
}

func (s *MemStore) AppendEvent(_ context.Context, ev *ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	ev.ID = s.nextEventID
	s.events = append(s.events, *ev)
	return nil
}

func (s *MemStore) ListEvents(_ context.Context, limit, offset int) ([]ActivityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := s.newestFirst(nil)
	if offset >= len(ordered) {
		return []ActivityEvent{}, nil
	}
	ordered = ordered[offset:]
	if limit < len(ordered) {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

func (s *MemStore) ListActorEvents(_ context.Context, actorID uuid.UUID, limit int) ([]ActivityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := s.newestFirst(func(ev ActivityEvent) bool { return ev.ActorID == actorID })
	if limit < len(ordered) {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

func (s *MemStore) CountEvents(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}

func (s *MemStore) DeleteEventsBefore(_ context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var deleted int64
	for _, ev := range s.events {
		if ev.Timestamp.Before(t) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return deleted, nil
}

func (s *MemStore) CountEventsInRange(_ context.Context, kindID int, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, ev := range s.events {
		if inRange(ev, kindID, from, to) {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) CountDistinctActorsInRange(_ context.Context, kindID int, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[uuid.UUID]struct{})
	for _, ev := range s.events {
		if inRange(ev, kindID, from, to) {
			seen[ev.ActorID] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (s *MemStore) TopPagesInRange(_ context.Context, kindID int, from, to time.Time, limit int) ([]PageCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	firstID := make(map[string]int64)
	for _, ev := range s.events {
		if !inRange(ev, kindID, from, to) {
			continue
		}
		page, ok := ev.Metadata["page"].(string)
		if !ok {
			continue
		}
		counts[page]++
		if _, seen := firstID[page]; !seen {
			firstID[page] = ev.ID
		}
	}
	out := make([]PageCount, 0, len(counts))
	for page, n := range counts {
		out = append(out, PageCount{Page: page, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return firstID[out[i].Page] < firstID[out[j].Page]
	})
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) CopyEvents(_ context.Context, rows []ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range rows {
		s.nextEventID++
		ev.ID = s.nextEventID
		s.events = append(s.events, ev)
	}
	return nil
}

func (s *MemStore) SetEventsUnlogged(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Unlogged = true
	return nil
}

func (s *MemStore) SetEventsLogged(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Unlogged = false
	return nil
}

func (s *MemStore) DropActorIndex(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IndexDropped = true
	return nil
}

func (s *MemStore) RebuildActorIndex(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IndexDropped = false
	return nil
}

func (s *MemStore) DisableEventTriggers(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TriggersDisabled = true
	return nil
}

func (s *MemStore) EnableEventTriggers(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TriggersDisabled = false
	return nil
}

func (s *MemStore) TruncateEvents(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	return nil
}

// newestFirst returns matching events ordered by timestamp then id, both
// descending. Caller holds at least the read lock.
func (s *MemStore) newestFirst(match func(ActivityEvent) bool) []ActivityEvent {
	out := make([]ActivityEvent, 0, len(s.events))
	for _, ev := range s.events {
		if match == nil || match(ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func inRange(ev ActivityEvent, kindID int, from, to time.Time) bool {
	if ev.KindID != kindID {
		return false
	}
	return !ev.Timestamp.Before(from) && !ev.Timestamp.After(to)
}
