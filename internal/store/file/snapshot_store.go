// Package file keeps the ledger snapshot in a local JSON file.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alanyoungcy/signalledger/internal/domain"
	"github.com/alanyoungcy/signalledger/internal/store/codec"
)

// SnapshotStore implements domain.LedgerStore on one file. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// crash never leaves a half-written snapshot.
type SnapshotStore struct {
	path  string
	codec *codec.Codec
}

// NewSnapshotStore creates a store writing to path.
func NewSnapshotStore(path string, c *codec.Codec) *SnapshotStore {
	if c == nil {
		c = codec.New(nil)
	}
	return &SnapshotStore{path: path, codec: c}
}

// Load reads the snapshot; a missing file is domain.ErrNotFound.
func (s *SnapshotStore) Load(_ context.Context) (domain.LedgerSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.LedgerSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("file: read %s: %w", s.path, err)
	}
	snap, err := s.codec.Decode(data)
	if err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("file: decode %s: %w", s.path, err)
	}
	return snap, nil
}

// Save atomically replaces the snapshot file.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.LedgerSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.codec.Encode(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file: create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("file: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("file: rename into %s: %w", s.path, err)
	}
	return nil
}

var _ domain.LedgerStore = (*SnapshotStore)(nil)
