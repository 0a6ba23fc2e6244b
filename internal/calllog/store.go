// Package calllog persists an audit record per processed recording:
// what the caller said, which stations were resolved, and what message
// (if any) went out. The log is optional; without a configured DSN the
// pipeline runs with logging disabled.
package calllog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the call_log table. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS call_log (
    id                BIGSERIAL PRIMARY KEY,
    conversation_uuid TEXT NOT NULL,
    recording_uuid    TEXT NOT NULL,
    transcript        TEXT NOT NULL DEFAULT '',
    from_crs          TEXT NOT NULL DEFAULT '',
    to_crs            TEXT NOT NULL DEFAULT '',
    message           TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_call_log_conversation ON call_log(conversation_uuid);
CREATE INDEX IF NOT EXISTS idx_call_log_created ON call_log(created_at);
`

// Entry is one pipeline outcome.
type Entry struct {
	ConversationUUID string
	RecordingUUID    string
	Transcript       string
	FromCRS          string
	ToCRS            string
	Message          string
	Status           string
	CreatedAt        time.Time
}

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store writes call log entries to PostgreSQL.
type Store struct {
	db DB
}

// NewStore creates a Store on an existing connection or pool. The caller
// is responsible for calling [Store.Migrate] before issuing writes.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pgx pool for dsn and returns a migrated Store. The
// returned close func releases the pool.
func Connect(ctx context.Context, dsn string) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("calllog: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("calllog: ping: %w", err)
	}
	s := NewStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Ping verifies the database is reachable. The readiness probe calls this
// on every /readyz request.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("calllog: ping: %w", err)
	}
	return nil
}

// Migrate executes the [Schema] DDL, creating the call_log table and
// indexes if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("calllog: migrate: %w", err)
	}
	return nil
}

// Record inserts one entry. A zero CreatedAt defaults to the current time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	const query = `
		INSERT INTO call_log (
			conversation_uuid, recording_uuid, transcript,
			from_crs, to_crs, message, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, query,
		e.ConversationUUID, e.RecordingUUID, e.Transcript,
		e.FromCRS, e.ToCRS, e.Message, e.Status, createdAt,
	)
	if err != nil {
		return fmt.Errorf("calllog: record: %w", err)
	}
	return nil
}

// Recent returns the latest n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	const query = `
		SELECT conversation_uuid, recording_uuid, transcript,
		       from_crs, to_crs, message, status, created_at
		FROM call_log
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("calllog: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ConversationUUID, &e.RecordingUUID, &e.Transcript,
			&e.FromCRS, &e.ToCRS, &e.Message, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("calllog: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calllog: rows: %w", err)
	}
	return entries, nil
}
