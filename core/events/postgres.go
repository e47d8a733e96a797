package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"userlytics/pkg/database"
	"userlytics/pkg/metrics"
)

// PostgresStore implements Store, BulkWriter, and Maintenance over the
// shared database handle. Writes go to the primary; list/count/stats
// queries go through the replica-aware read path.
type PostgresStore struct {
	db *database.Database
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *database.Database) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)
var _ LoaderStore = (*PostgresStore)(nil)

// GetActor returns the actor or ErrActorNotFound.
func (s *PostgresStore) GetActor(ctx context.Context, id uuid.UUID) (*Actor, error) {
	var a Actor
	err := s.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM users WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("actor %s: %w", id, ErrActorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get actor: %w", err)
	}
	return &a, nil
}

// RegisterActor stores a new actor; an existing id is left untouched.
func (s *PostgresStore) RegisterActor(ctx context.Context, a *Actor) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, name, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID, a.Name, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("register actor: %w", err)
	}
	return nil
}

// ListActorIDs returns every known actor id.
func (s *PostgresStore) ListActorIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list actor ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan actor id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindKind resolves a kind name or returns ErrEventKindNotFound.
func (s *PostgresStore) FindKind(ctx context.Context, name string) (*EventKind, error) {
	var k EventKind
	err := s.db.QueryRow(ctx,
		`SELECT id, name FROM event_types WHERE name = $1`, name).
		Scan(&k.ID, &k.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event kind %q: %w", name, ErrEventKindNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find kind: %w", err)
	}
	return &k, nil
}

// FindOrCreateKind resolves a kind name, creating the row on first
// sight. The dictionary has a unique constraint on name; a concurrent
// creator losing the insert race re-reads the winner's row.
func (s *PostgresStore) FindOrCreateKind(ctx context.Context, name string) (*EventKind, error) {
	if name == "" || len(name) > MaxKindNameLen {
		return nil, ErrInvalidKindName
	}

	// Two rounds are enough: the second select can only miss if the row
	// was deleted between attempts, and kinds are never deleted. The
	// whole read-modify-write loop stays on the primary so a lagging
	// replica cannot hide the race winner's row.
	for attempt := 0; attempt < 2; attempt++ {
		var k EventKind
		err := s.db.QueryRowPrimary(ctx,
			`SELECT id, name FROM event_types WHERE name = $1`, name).
			Scan(&k.ID, &k.Name)
		if err == nil {
			return &k, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("find kind: %w", err)
		}

		err = s.db.QueryRowPrimary(ctx,
			`INSERT INTO event_types (name) VALUES ($1)
			 ON CONFLICT (name) DO NOTHING
			 RETURNING id, name`, name).
			Scan(&k.ID, &k.Name)
		if err == nil {
			metrics.EventKindsCreated.Inc()
			return &k, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("create kind: %w", err)
		}
		// Lost the race; loop re-reads the winner.
	}
	return nil, fmt.Errorf("find-or-create kind %q: dictionary row vanished", name)
}

// ListKinds returns the whole dictionary.
func (s *PostgresStore) ListKinds(ctx context.Context) ([]EventKind, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM event_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list kinds: %w", err)
	}
	defer rows.Close()

	var kinds []EventKind
	for rows.Next() {
		var k EventKind
		if err := rows.Scan(&k.ID, &k.Name); err != nil {
			return nil, fmt.Errorf("scan kind: %w", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, rows.Err()
}

// AppendEvent stores one event and fills in its assigned id.
func (s *PostgresStore) AppendEvent(ctx context.Context, ev *ActivityEvent) error {
	meta, err := marshalMetadata(ev.Metadata)
	if err != nil {
		return err
	}
	err = s.db.QueryRowPrimary(ctx,
		`INSERT INTO events (user_id, type_id, timestamp, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		ev.ActorID, ev.KindID, ev.Timestamp.UTC(), meta).
		Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns events newest first over the given window.
func (s *PostgresStore) ListEvents(ctx context.Context, limit, offset int) ([]ActivityEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, type_id, timestamp, metadata
		 FROM events
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return scanEvents(rows)
}

// ListActorEvents returns one actor's newest events.
func (s *PostgresStore) ListActorEvents(ctx context.Context, actorID uuid.UUID, limit int) ([]ActivityEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, type_id, timestamp, metadata
		 FROM events
		 WHERE user_id = $1
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $2`, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list actor events: %w", err)
	}
	return scanEvents(rows)
}

// CountEvents returns the total stored event count.
func (s *PostgresStore) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// DeleteEventsBefore purges events strictly older than t.
func (s *PostgresStore) DeleteEventsBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, `DELETE FROM events WHERE timestamp < $1`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete events before %s: %w", t, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete events rows affected: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountEventsInRange(ctx context.Context, kindID int, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM events
		 WHERE timestamp BETWEEN $1 AND $2 AND type_id = $3`,
		from.UTC(), to.UTC(), kindID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events in range: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountDistinctActorsInRange(ctx context.Context, kindID int, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM events
		 WHERE timestamp BETWEEN $1 AND $2 AND type_id = $3`,
		from.UTC(), to.UTC(), kindID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count distinct actors in range: %w", err)
	}
	return n, nil
}

// TopPagesInRange extracts the "page" attribute engine-side (no full
// document deserialization) and ranks values by frequency. MIN(id)
// breaks frequency ties with the first-encountered value, which keeps
// the ranking stable across runs.
func (s *PostgresStore) TopPagesInRange(ctx context.Context, kindID int, from, to time.Time, limit int) ([]PageCount, error) {
	rows, err := s.db.Query(ctx,
		`SELECT metadata->>'page' AS page, COUNT(*) AS cnt
		 FROM events
		 WHERE timestamp BETWEEN $1 AND $2
		   AND type_id = $3
		   AND metadata->>'page' IS NOT NULL
		 GROUP BY page
		 ORDER BY cnt DESC, MIN(id) ASC
		 LIMIT $4`,
		from.UTC(), to.UTC(), kindID, limit)
	if err != nil {
		return nil, fmt.Errorf("top pages in range: %w", err)
	}
	defer rows.Close()

	var out []PageCount
	for rows.Next() {
		var pc PageCount
		if err := rows.Scan(&pc.Page, &pc.Count); err != nil {
			return nil, fmt.Errorf("scan page count: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// CopyEvents streams one partition through COPY FROM STDIN on a
// dedicated connection checked out of the primary pool. The whole
// partition commits or rolls back as a unit.
func (s *PostgresStore) CopyEvents(ctx context.Context, events []ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("checkout bulk connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("events", "user_id", "type_id", "timestamp", "metadata"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	for i := range events {
		ev := &events[i]
		meta, err := marshalMetadata(ev.Metadata)
		if err != nil {
			stmt.Close()
			return err
		}
		if _, err := stmt.ExecContext(ctx, ev.ActorID, ev.KindID, ev.Timestamp.UTC(), meta); err != nil {
			stmt.Close()
			return fmt.Errorf("copy row: %w", err)
		}
	}

	// Flush the copy buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk transaction: %w", err)
	}
	return nil
}

// Maintenance. All statements run on the primary; the loader brackets a
// bulk load with these and restores on a best-effort basis afterward.

func (s *PostgresStore) SetEventsUnlogged(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `ALTER TABLE events SET UNLOGGED`)
	if err != nil {
		return fmt.Errorf("set events unlogged: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetEventsLogged(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `ALTER TABLE events SET LOGGED`)
	if err != nil {
		return fmt.Errorf("set events logged: %w", err)
	}
	return nil
}

func (s *PostgresStore) DropActorIndex(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP INDEX IF EXISTS ix_events_user_id`)
	if err != nil {
		return fmt.Errorf("drop actor index: %w", err)
	}
	return nil
}

// RebuildActorIndex rebuilds the dropped index without taking locks that
// would block concurrent readers.
func (s *PostgresStore) RebuildActorIndex(ctx context.Context) error {
	_, err := s.db.Exec(ctx,
		`CREATE INDEX CONCURRENTLY IF NOT EXISTS ix_events_user_id ON events (user_id)`)
	if err != nil {
		return fmt.Errorf("rebuild actor index: %w", err)
	}
	return nil
}

func (s *PostgresStore) DisableEventTriggers(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `ALTER TABLE events DISABLE TRIGGER ALL`)
	if err != nil {
		return fmt.Errorf("disable event triggers: %w", err)
	}
	return nil
}

func (s *PostgresStore) EnableEventTriggers(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `ALTER TABLE events ENABLE TRIGGER ALL`)
	if err != nil {
		return fmt.Errorf("enable event triggers: %w", err)
	}
	return nil
}

func (s *PostgresStore) TruncateEvents(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `TRUNCATE TABLE events`)
	if err != nil {
		return fmt.Errorf("truncate events: %w", err)
	}
	return nil
}

// marshalMetadata renders the document as a string: lib/pq would encode
// []byte as bytea, which a jsonb column rejects.
func marshalMetadata(m Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(raw), nil
}

func scanEvents(rows *sql.Rows) ([]ActivityEvent, error) {
	defer rows.Close()

	var out []ActivityEvent
	for rows.Next() {
		var ev ActivityEvent
		var meta []byte
		if err := rows.Scan(&ev.ID, &ev.ActorID, &ev.KindID, &ev.Timestamp, &meta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
