package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
)

var checkpointKey = []byte("checkpoint")

type levelRecord struct {
	NextBlock uint64    `json:"next_block"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LevelDBStore keeps the checkpoint under a single LevelDB key.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the database directory at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Load(_ context.Context) (Checkpoint, bool, error) {
	raw, err := s.db.Get(checkpointKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("get checkpoint: %w", err)
	}
	var rec levelRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Checkpoint{}, false, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	return Checkpoint{NextBlock: rec.NextBlock, UpdatedAt: rec.UpdatedAt}, true, nil
}

func (s *LevelDBStore) Save(_ context.Context, nextBlock uint64) error {
	raw, err := json.Marshal(levelRecord{NextBlock: nextBlock, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := s.db.Put(checkpointKey, raw, nil); err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}

func (s *LevelDBStore) Ping(_ context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	_, err := s.db.GetProperty("leveldb.stats")
	return err
}

func (s *LevelDBStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
