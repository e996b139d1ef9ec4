package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store keeps the filter run history. It holds a connection pool, so HTTP handlers
// and batch workers can record runs concurrently.
type Store struct {
	pool *pgxpool.Pool
}

// Run is one image that went through the filter.
type Run struct {
	ID        uuid.UUID
	Source    string // file path or URL
	ImageID   string // sha256 of the source bytes
	Width     int
	Height    int
	Faces     int
	Skipped   int
	Output    string
	Duration  time.Duration
	CreatedAt time.Time
}

// New opens a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the run table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS filter_runs (
			id UUID PRIMARY KEY,
			source TEXT NOT NULL,
			image_id TEXT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			faces INT NOT NULL,
			skipped INT NOT NULL DEFAULT 0,
			output TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS filter_runs_image_id_idx ON filter_runs (image_id);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close waits for in-flight queries and closes every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// RecordRun saves one run. A zero ID is replaced with a fresh one, which is returned.
func (s *Store) RecordRun(ctx context.Context, r Run) (uuid.UUID, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO filter_runs (id, source, image_id, width, height, faces, skipped, output, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.Source, r.ImageID, r.Width, r.Height, r.Faces, r.Skipped, r.Output, r.Duration.Milliseconds())
	return r.ID, err
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all of them.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, source, image_id, width, height, faces, skipped, output, duration_ms, created_at
		FROM filter_runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ms int64
		if err := rows.Scan(&r.ID, &r.Source, &r.ImageID, &r.Width, &r.Height, &r.Faces, &r.Skipped, &r.Output, &ms, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountByImage reports how many times the same source bytes were filtered.
func (s *Store) CountByImage(ctx context.Context, imageID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM filter_runs WHERE image_id = $1", imageID).Scan(&n)
	return n, err
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS filter_runs CASCADE;`)
	return err
}
