package blobstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested artifact does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrStoreUnavailable indicates the backing store is unavailable.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreError wraps backend-specific errors with context.
type StoreError struct {
	// Op is the operation that failed (e.g., "Put", "Open").
	Op string

	// Store is the backend type (e.g., "s3").
	Store StoreType

	// Key is the artifact key, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Store, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing artifact.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
