package cache

import (
	"context"
	"sync"

	"github.com/pursuelabs/segmentd/pkg/transcript"
)

// Memory is an in-process transcript cache. Entries live for the
// lifetime of the process; suitable for tests and single-node setups
// that can afford re-transcription after restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]transcript.Segment
}

var _ TranscriptCache = (*Memory)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]transcript.Segment)}
}

func (m *Memory) Get(_ context.Context, sourceID string) ([]transcript.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	segs, ok := m.entries[sourceID]
	if !ok {
		return nil, ErrMiss
	}
	out := make([]transcript.Segment, len(segs))
	copy(out, segs)
	return out, nil
}

func (m *Memory) Put(_ context.Context, sourceID string, segments []transcript.Segment) error {
	stored := make([]transcript.Segment, len(segments))
	copy(stored, segments)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sourceID] = stored
	return nil
}

func (m *Memory) Close() error { return nil }
