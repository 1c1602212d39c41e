package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store records completed builds in SQLite. Use ":memory:" for tests.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// BuildRecord is one row of build history.
type BuildRecord struct {
	BuildID   string
	Signature string
	Outcome   string
	Pages     int
	CreatedAt time.Time
}

// Open opens (and if needed initializes) the build cache database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open build cache: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize build cache schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		signature TEXT NOT NULL,
		outcome TEXT NOT NULL,
		pages INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_signature ON builds(signature);
	CREATE INDEX IF NOT EXISTS idx_builds_created_at ON builds(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores the outcome of a finished build.
func (s *Store) Record(ctx context.Context, rec BuildRecord) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO builds (build_id, signature, outcome, pages, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.BuildID, rec.Signature, rec.Outcome, rec.Pages, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	return nil
}

// LastSuccessfulSignature returns the signature of the most recent successful
// build, or "" when none exists.
func (s *Store) LastSuccessfulSignature(ctx context.Context) (string, error) {
	if s == nil {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var sig string
	err := s.db.QueryRowContext(ctx,
		"SELECT signature FROM builds WHERE outcome = 'success' ORDER BY id DESC LIMIT 1",
	).Scan(&sig)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last build: %w", err)
	}
	return sig, nil
}

// History returns the newest build records, most recent first.
func (s *Store) History(ctx context.Context, limit int) ([]BuildRecord, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT build_id, signature, outcome, pages, created_at FROM builds ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query build history: %w", err)
	}
	defer rows.Close()

	var recs []BuildRecord
	for rows.Next() {
		var rec BuildRecord
		var created int64
		if err := rows.Scan(&rec.BuildID, &rec.Signature, &rec.Outcome, &rec.Pages, &created); err != nil {
			return nil, fmt.Errorf("scan build row: %w", err)
		}
		rec.CreatedAt = time.Unix(created, 0)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
