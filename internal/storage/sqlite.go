package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the checkpoint in a single-row SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite initializes a SQLite database and runs minimal schema setup.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The CHECK keeps the table to one row.
	schema := `
CREATE TABLE IF NOT EXISTS checkpoint (
  id          INTEGER PRIMARY KEY CHECK (id = 1),
  next_block  INTEGER NOT NULL,
  updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Save records the next block to process.
func (s *SQLiteStore) Save(ctx context.Context, nextBlock uint64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO checkpoint (id, next_block, updated_at)
VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  next_block=excluded.next_block,
  updated_at=excluded.updated_at;
`, int64(nextBlock), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Load retrieves the checkpoint.
func (s *SQLiteStore) Load(ctx context.Context) (Checkpoint, bool, error) {
	var (
		next      int64
		updatedAt time.Time
	)
	row := s.db.QueryRowContext(ctx, `
SELECT next_block, updated_at FROM checkpoint WHERE id = 1;
`)
	switch err := row.Scan(&next, &updatedAt); {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		return Checkpoint{}, false, nil
	default:
		return Checkpoint{}, false, fmt.Errorf("get checkpoint: %w", err)
	}
	if next < 0 {
		return Checkpoint{}, false, fmt.Errorf("%w: %d", ErrInvalidCheckpoint, next)
	}
	return Checkpoint{NextBlock: uint64(next), UpdatedAt: updatedAt}, true, nil
}
