package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the DDL for the correction_history table. Apply it with
// [PostgresStore.Migrate] or during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS correction_history (
    id          TEXT PRIMARY KEY,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    path        TEXT NOT NULL,
    language    TEXT NOT NULL DEFAULT '',
    input       TEXT NOT NULL,
    output      TEXT NOT NULL,
    corrections JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_correction_history_created ON correction_history(created_at DESC);
`

// DB is the subset of *pgxpool.Pool and *pgx.Conn the store needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Corrections are stored as
// JSONB.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db. Call [PostgresStore.Migrate]
// before first use unless the schema is managed elsewhere.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate applies [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append inserts r.
func (s *PostgresStore) Append(ctx context.Context, r Record) error {
	r = fill(r, s.now)
	corrJSON, err := json.Marshal(r.Corrections)
	if err != nil {
		return fmt.Errorf("history: marshal corrections: %w", err)
	}

	const query = `
		INSERT INTO correction_history (id, created_at, path, language, input, output, corrections)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := s.db.Exec(ctx, query,
		r.ID, r.Timestamp, r.Path, r.Language, r.Input, r.Output, corrJSON,
	); err != nil {
		return fmt.Errorf("history: append %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns the newest records first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	const query = `
		SELECT id, created_at, path, language, input, output, corrections
		FROM correction_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			r        Record
			corrJSON []byte
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Path, &r.Language, &r.Input, &r.Output, &corrJSON); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if err := json.Unmarshal(corrJSON, &r.Corrections); err != nil {
			return nil, fmt.Errorf("history: unmarshal corrections of %s: %w", r.ID, err)
		}
		if r.Corrections == nil {
			r.Corrections = []Correction{}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return records, nil
}

// Pinger is implemented by pools that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks the database when the underlying DB supports it.
func (s *PostgresStore) Ping(ctx context.Context) error {
	p, ok := s.db.(Pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("history: ping: %w", err)
	}
	return nil
}
