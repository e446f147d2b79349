// Package storage persists the scan checkpoint.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by Open.
const (
	BackendFile    = "file"
	BackendSQLite  = "sqlite"
	BackendLevelDB = "leveldb"
)

// ErrInvalidCheckpoint marks a stored value that cannot be parsed as a block number.
var ErrInvalidCheckpoint = errors.New("invalid stored checkpoint")

// Checkpoint is the persisted cursor: the first block not yet processed.
type Checkpoint struct {
	NextBlock uint64
	UpdatedAt time.Time
}

// Store holds a single checkpoint. Load reports ok=false when nothing was saved yet.
type Store interface {
	Load(ctx context.Context) (cp Checkpoint, ok bool, err error)
	Save(ctx context.Context, nextBlock uint64) error
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the store for backend at path. An empty backend selects the file store.
func Open(backend, path string) (Store, error) {
	if path == "" {
		return nil, errors.New("checkpoint path is required")
	}
	switch strings.ToLower(backend) {
	case "", BackendFile:
		return OpenFile(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendLevelDB:
		return OpenLevelDB(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint backend: %s", backend)
	}
}
