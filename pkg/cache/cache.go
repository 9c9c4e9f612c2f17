// Package cache stores transcripts keyed by source content id so repeat
// submissions of the same episode skip the transcription stage.
package cache

import (
	"context"
	"errors"

	"github.com/pursuelabs/segmentd/pkg/transcript"
)

// ErrMiss is returned by Get when no transcript is cached for the key.
var ErrMiss = errors.New("transcript cache miss")

// ErrUnavailable indicates the cache backend cannot be reached. Callers
// treat this the same as a miss; the cache is an optimization, never a
// source of truth.
var ErrUnavailable = errors.New("transcript cache unavailable")

// TranscriptCache stores immutable transcripts by content id.
type TranscriptCache interface {
	// Get returns the cached transcript or ErrMiss.
	Get(ctx context.Context, sourceID string) ([]transcript.Segment, error)

	// Put stores the transcript. Overwrites any previous entry.
	Put(ctx context.Context, sourceID string, segments []transcript.Segment) error

	// Close releases backend resources.
	Close() error
}

// Type selects a cache backend.
type Type string

const (
	TypeMemory Type = "memory"
	TypeFile   Type = "file"
	TypeRedis  Type = "redis"
)
