package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pursuelabs/segmentd/pkg/transcript"
)

// File persists transcripts as one JSON file per content id under a
// root directory, so cached transcripts survive restarts.
type File struct {
	root string
}

var _ TranscriptCache = (*File)(nil)

// NewFile creates the cache, making the root directory if needed.
func NewFile(root string) (*File, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &File{root: root}, nil
}

func (f *File) Get(_ context.Context, sourceID string) ([]transcript.Segment, error) {
	path, err := f.path(sourceID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("read cached transcript: %w", err)
	}
	var segs []transcript.Segment
	if err := json.Unmarshal(data, &segs); err != nil {
		// A corrupt entry is treated as a miss; the pipeline will
		// re-transcribe and overwrite it.
		return nil, ErrMiss
	}
	return segs, nil
}

func (f *File) Put(_ context.Context, sourceID string, segments []transcript.Segment) error {
	path, err := f.path(sourceID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(segments, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cached transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit cached transcript: %w", err)
	}
	return nil
}

func (f *File) Close() error { return nil }

func (f *File) path(sourceID string) (string, error) {
	if sourceID == "" || strings.ContainsAny(sourceID, "/\\") || strings.Contains(sourceID, "..") {
		return "", fmt.Errorf("invalid cache key %q", sourceID)
	}
	return filepath.Join(f.root, sourceID+".json"), nil
}
