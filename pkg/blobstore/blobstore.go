// Package blobstore abstracts where completed media artifacts live.
//
// Stores implement a minimal put/open/delete surface. Authentication uses
// SDK default credential chains - stores should not implement custom auth
// logic.
package blobstore

import (
	"context"
	"io"
)

// Store persists completed artifacts keyed by an opaque relative key.
//
// Implementations should:
//   - Be safe for concurrent use
//   - Return ErrNotFound from Open/Stat for missing keys
type Store interface {
	// Put writes the artifact and returns its resolved location (an
	// absolute path for the file store, a URI for object stores).
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)

	// Open returns a reader for a previously stored artifact.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns the stored size for a key.
	Stat(ctx context.Context, key string) (int64, error)

	// Delete removes the artifact. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// StoreType identifies a blobstore backend.
type StoreType string

const (
	// StoreFile keeps artifacts on the local filesystem.
	StoreFile StoreType = "file"

	// StoreS3 keeps artifacts in AWS S3 or S3-compatible storage.
	StoreS3 StoreType = "s3"
)

// String returns the string representation of the store type.
func (t StoreType) String() string {
	return string(t)
}
