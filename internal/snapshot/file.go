package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/remiverdiesen/agents-at-scale/internal/ledger"
)

// FileBackend stores snapshots in a single file.
type FileBackend struct {
	path       string
	format     Format
	compressed bool
}

// NewFileBackend returns a backend for path with the encoding implied by its
// name.
func NewFileBackend(path string) *FileBackend {
	format, compressed := DetectFormat(path)
	return &FileBackend{path: path, format: format, compressed: compressed}
}

// Path returns the snapshot file path.
func (b *FileBackend) Path() string { return b.path }

// Format returns the encoding and whether it is zstd-compressed.
func (b *FileBackend) Format() (Format, bool) { return b.format, b.compressed }

// Load reads the snapshot. A missing file yields no records.
func (b *FileBackend) Load(ctx context.Context) ([]ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if b.compressed && len(data) > 0 {
		if data, err = decompress(data); err != nil {
			return nil, err
		}
	}
	return decodeRecords(data, b.format)
}

// Save atomically replaces the snapshot file.
func (b *FileBackend) Save(ctx context.Context, records []ledger.Record) error {
	data, err := encodeRecords(records, b.format)
	if err != nil {
		return err
	}
	if b.compressed {
		data = compress(data)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("snapshot: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}
