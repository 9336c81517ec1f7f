package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SessionSnapshot is the state written when a session tears down: one row
// for the session and one per actor property.
type SessionSnapshot struct {
	SessionID uuid.UUID
	Title     string
	StartedAt time.Time
	Ticks     uint64
	Actors    map[string]map[string][]byte // actor name -> property -> blob
}

type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save writes the snapshot in a single transaction. Saving the same session
// again replaces its rows.
func (r *SnapshotRepo) Save(ctx context.Context, s SessionSnapshot) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	id := s.SessionID.String()
	if _, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, title, started_at, ended_at, ticks)
		 VALUES ($1, $2, $3, now(), $4)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title, ended_at = now(), ticks = EXCLUDED.ticks`,
		id, s.Title, s.StartedAt, int64(s.Ticks),
	); err != nil {
		return fmt.Errorf("snapshot session: %w", err)
	}

	batch := &pgx.Batch{}
	for actor, props := range s.Actors {
		for name, value := range props {
			batch.Queue(
				`INSERT INTO actor_snapshots (session_id, actor, property, value)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (session_id, actor, property) DO UPDATE
				 SET value = EXCLUDED.value, saved_at = now()`,
				id, actor, name, value,
			)
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("snapshot properties: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Latest returns the properties saved for actor by the most recent session
// that saved it, or nil when there is none.
func (r *SnapshotRepo) Latest(ctx context.Context, actor string) (map[string][]byte, error) {
	var session string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT session_id::text FROM actor_snapshots
		 WHERE actor = $1
		 ORDER BY saved_at DESC
		 LIMIT 1`, actor,
	).Scan(&session)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot of %q: %w", actor, err)
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT property, value FROM actor_snapshots
		 WHERE session_id = $1 AND actor = $2`, session, actor,
	)
	if err != nil {
		return nil, fmt.Errorf("load snapshot of %q: %w", actor, err)
	}
	defer rows.Close()

	props := make(map[string][]byte)
	for rows.Next() {
		var name string
		var value []byte
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		props[name] = value
	}
	return props, rows.Err()
}

// Sessions returns how many sessions have been recorded.
func (r *SnapshotRepo) Sessions(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM sessions`).Scan(&n)
	return n, err
}
