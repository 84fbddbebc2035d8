// ABOUTME: Whole-file storage backend that rewrites one file on every save.
// ABOUTME: A missing file on load means an empty table, not an error.

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// File persists the blob to a single file, rewritten in full on every save.
type File struct {
	path   string
	logger *slog.Logger
}

// NewFile creates a file backend at the given path. Parent directories are
// created if needed.
func NewFile(path string, logger *slog.Logger) (*File, error) {
	if path == "" {
		return nil, errors.New("storage file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &File{path: path, logger: logger.With("component", "file-storage")}, nil
}

func (f *File) Save(_ context.Context, blob []byte) error {
	if err := os.WriteFile(f.path, blob, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	f.logger.Debug("data saved to file", "path", f.path, "bytes", len(blob))
	return nil
}

func (f *File) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			f.logger.Debug("storage file does not exist yet", "path", f.path)
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	return data, nil
}

func (f *File) Close() error { return nil }
