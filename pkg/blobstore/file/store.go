// Package file implements blobstore.Store on the local filesystem.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pursuelabs/segmentd/pkg/blobstore"
)

// Store keeps artifacts as regular files under BaseDir. Keys are treated
// as relative paths and must not escape the base directory.
type Store struct {
	baseDir string
}

var _ blobstore.Store = (*Store)(nil)

type Config struct {
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	return &Store{baseDir: base}, nil
}

func (s *Store) Close() error { return nil }

// Put streams the artifact to a temp file and renames it into place so
// readers never observe a partial write.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	_ = ctx
	full, err := s.fullPath(key)
	if err != nil {
		return "", s.wrapError("Put", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", s.wrapError("Put", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".put.*")
	if err != nil {
		return "", s.wrapError("Put", key, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	written, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return "", s.wrapError("Put", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", s.wrapError("Put", key, err)
	}
	if size >= 0 && written != size {
		return "", s.wrapError("Put", key, fmt.Errorf("wrote %d bytes, expected %d", written, size))
	}

	if err := os.Rename(tmpName, full); err != nil {
		return "", s.wrapError("Put", key, err)
	}
	return full, nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx
	full, err := s.fullPath(key)
	if err != nil {
		return nil, s.wrapError("Open", key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &blobstore.StoreError{Op: "Open", Store: blobstore.StoreFile, Key: key, Err: blobstore.ErrNotFound}
		}
		return nil, s.wrapError("Open", key, err)
	}
	return f, nil
}

func (s *Store) Stat(ctx context.Context, key string) (int64, error) {
	_ = ctx
	full, err := s.fullPath(key)
	if err != nil {
		return 0, s.wrapError("Stat", key, err)
	}
	st, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, &blobstore.StoreError{Op: "Stat", Store: blobstore.StoreFile, Key: key, Err: blobstore.ErrNotFound}
		}
		return 0, s.wrapError("Stat", key, err)
	}
	return st.Size(), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_ = ctx
	full, err := s.fullPath(key)
	if err != nil {
		return s.wrapError("Delete", key, err)
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return s.wrapError("Delete", key, err)
	}
	return nil
}

func (s *Store) fullPath(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.baseDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("key escapes base dir")
	}
	return full, nil
}

func (s *Store) wrapError(op, key string, err error) error {
	return &blobstore.StoreError{Op: op, Store: blobstore.StoreFile, Key: key, Err: err}
}
