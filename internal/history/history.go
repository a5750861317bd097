// Package history records the aggregate outcome of every verification run in
// a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNoPath is returned by Open when no database path is configured.
var ErrNoPath = errors.New("history database path is empty")

// Run is one recorded verification run. Only aggregates are stored.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Server     string
	Version    string
	Skipped    bool
	Correct    int
	Incorrect  int
	Total      int
	Percent    float64
}

// Store persists runs.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.createTables(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		server TEXT NOT NULL,
		version TEXT NOT NULL,
		skipped BOOLEAN NOT NULL,
		correct INTEGER NOT NULL,
		incorrect INTEGER NOT NULL,
		total INTEGER NOT NULL,
		percent REAL NOT NULL
	);
	`
	_, err := s.conn.ExecContext(ctx, query)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Record inserts r. A zero ID is replaced with a new random one.
func (s *Store) Record(ctx context.Context, r *Run) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, server, version, skipped, correct, incorrect, total, percent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Server, r.Version, r.Skipped,
		r.Correct, r.Incorrect, r.Total, r.Percent)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.ID, err)
	}
	return nil
}

// List returns up to limit runs, newest first. limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, finished_at, server, version, skipped, correct, incorrect, total, percent
		FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r  Run
			id string
		)
		if err := rows.Scan(&id, &r.StartedAt, &r.FinishedAt, &r.Server, &r.Version, &r.Skipped,
			&r.Correct, &r.Incorrect, &r.Total, &r.Percent); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing run id %q: %w", id, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
