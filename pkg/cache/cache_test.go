package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pursuelabs/segmentd/pkg/transcript"
)

func cachedSegments() []transcript.Segment {
	return []transcript.Segment{
		{Text: "First thought.", StartSeconds: 0, EndSeconds: 3.5},
		{Text: "Second thought.", StartSeconds: 3.5, EndSeconds: 8},
	}
}

func testBackends(t *testing.T) map[string]TranscriptCache {
	t.Helper()
	fileCache, err := NewFile(t.TempDir())
	require.NoError(t, err)
	return map[string]TranscriptCache{
		"memory": NewMemory(),
		"file":   fileCache,
	}
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, c := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = c.Close() }()

			_, err := c.Get(ctx, "vid-123")
			assert.ErrorIs(t, err, ErrMiss)

			require.NoError(t, c.Put(ctx, "vid-123", cachedSegments()))

			got, err := c.Get(ctx, "vid-123")
			require.NoError(t, err)
			assert.Equal(t, cachedSegments(), got)

			// Other keys stay independent.
			_, err = c.Get(ctx, "vid-456")
			assert.ErrorIs(t, err, ErrMiss)
		})
	}
}

func TestCacheOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, c := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer func() { _ = c.Close() }()

			require.NoError(t, c.Put(ctx, "vid-123", cachedSegments()))

			updated := []transcript.Segment{{Text: "Replaced.", StartSeconds: 0, EndSeconds: 1}}
			require.NoError(t, c.Put(ctx, "vid-123", updated))

			got, err := c.Get(ctx, "vid-123")
			require.NoError(t, err)
			assert.Equal(t, updated, got)
		})
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	require.NoError(t, c.Put(ctx, "vid-123", cachedSegments()))

	got, err := c.Get(ctx, "vid-123")
	require.NoError(t, err)
	got[0].Text = "mutated by caller"

	again, err := c.Get(ctx, "vid-123")
	require.NoError(t, err)
	assert.Equal(t, "First thought.", again[0].Text)
}

func TestFileCacheSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	first, err := NewFile(root)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "vid-123", cachedSegments()))
	require.NoError(t, first.Close())

	second, err := NewFile(root)
	require.NoError(t, err)
	got, err := second.Get(ctx, "vid-123")
	require.NoError(t, err)
	assert.Equal(t, cachedSegments(), got)
}

func TestFileCacheRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	c, err := NewFile(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", "a/b", `a\b`} {
		_, err := c.Get(ctx, key)
		assert.Error(t, err, "key %q", key)
		assert.NotErrorIs(t, err, ErrMiss, "key %q", key)
	}
}

func TestFileCacheCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	c, err := NewFile(root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "vid-123.json"), []byte("{not json"), 0o644))

	_, err = c.Get(ctx, "vid-123")
	assert.ErrorIs(t, err, ErrMiss)
}
