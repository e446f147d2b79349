package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileStore keeps the checkpoint as a decimal number in a plain text file.
type FileStore struct {
	path string
}

// OpenFile prepares a file store; the file itself is created on first Save.
func OpenFile(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the checkpoint; a missing or blank file means none was saved yet.
func (s *FileStore) Load(_ context.Context) (Checkpoint, bool, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Checkpoint{}, false, nil
	}
	next, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("%w: %q", ErrInvalidCheckpoint, text)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("stat checkpoint: %w", err)
	}
	return Checkpoint{NextBlock: next, UpdatedAt: info.ModTime().UTC()}, true, nil
}

// Save replaces the file through a rename so a crash leaves the prior value intact.
func (s *FileStore) Save(_ context.Context, nextBlock uint64) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(strconv.FormatUint(nextBlock, 10)); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Ping checks that the checkpoint directory is reachable.
func (s *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", filepath.Dir(s.path))
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }
