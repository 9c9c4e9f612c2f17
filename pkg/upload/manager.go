package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pursuelabs/segmentd/pkg/blobstore"
)

const (
	sessionFileName = "session.json"
	chunksDirName   = "chunks"

	// DefaultChunkSize is used when Initiate receives no chunk size.
	DefaultChunkSize int64 = 10 << 20 // 10 MiB

	// DefaultMaxTotalSize bounds the declared file size at Initiate.
	DefaultMaxTotalSize int64 = 4 << 30 // 4 GiB

	// DefaultExpiry is the horizon past which an idle in-progress session
	// is considered abandoned and eligible for garbage collection.
	DefaultExpiry = 24 * time.Hour
)

// Config tunes a Manager. Zero values fall back to package defaults.
type Config struct {
	// Root is the directory holding per-session state and chunk bytes.
	Root string

	// MaxTotalSize rejects Initiate calls declaring a larger file.
	MaxTotalSize int64

	// DefaultChunkSize applies when the client does not pick one.
	DefaultChunkSize int64

	// AllowPatterns restricts filenames, e.g. ["*.mp3", "*.mp4", "*.wav"].
	// Empty allows everything. Matching is case-insensitive.
	AllowPatterns []string

	// Expiry is the idle horizon for Sweep.
	Expiry time.Duration
}

// Manager owns chunked upload sessions.
//
// Directory layout:
//
//	<root>/<upload_id>/session.json
//	<root>/<upload_id>/chunks/chunk_00000
//
// Session records are written with write-temp-then-rename so concurrent
// Status reads never observe a torn record. The receivedChunks set is
// mutated under a single lock; chunk bytes themselves are written outside
// it since rewriting a chunk's bytes is always acceptable.
type Manager struct {
	root             string
	maxTotalSize     int64
	defaultChunkSize int64
	allowPatterns    []string
	expiry           time.Duration

	artifacts blobstore.Store
	log       *zap.Logger

	mu sync.Mutex
}

// NewManager creates a Manager storing final artifacts in the given store.
func NewManager(cfg Config, artifacts blobstore.Store, log *zap.Logger) (*Manager, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("upload root dir is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxTotalSize <= 0 {
		cfg.MaxTotalSize = DefaultMaxTotalSize
	}
	if cfg.DefaultChunkSize <= 0 {
		cfg.DefaultChunkSize = DefaultChunkSize
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &Manager{
		root:             filepath.Clean(cfg.Root),
		maxTotalSize:     cfg.MaxTotalSize,
		defaultChunkSize: cfg.DefaultChunkSize,
		allowPatterns:    cfg.AllowPatterns,
		expiry:           cfg.Expiry,
		artifacts:        artifacts,
		log:              log.Named("upload"),
	}, nil
}

// Initiate allocates a new session. No chunk bytes are stored yet.
func (m *Manager) Initiate(filename string, totalSize, chunkSize int64) (*Session, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, ErrInvalidFilename
	}
	if err := m.checkFilename(filename); err != nil {
		return nil, err
	}
	if totalSize <= 0 {
		return nil, fmt.Errorf("%w: total size must be positive", ErrInvalidChunk)
	}
	if totalSize > m.maxTotalSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, totalSize, m.maxTotalSize)
	}
	if chunkSize <= 0 {
		chunkSize = m.defaultChunkSize
	}

	now := time.Now().UTC()
	sess := &Session{
		UploadID:       uuid.New().String(),
		Filename:       filename,
		TotalSize:      totalSize,
		ChunkSize:      chunkSize,
		TotalChunks:    TotalChunksFor(totalSize, chunkSize),
		Status:         SessionInProgress,
		ReceivedChunks: []int{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := os.MkdirAll(m.chunksDir(sess.UploadID), 0755); err != nil {
		return nil, fmt.Errorf("create session dirs: %w", err)
	}
	if err := m.writeSession(sess); err != nil {
		return nil, err
	}

	m.log.Info("upload session initiated",
		zap.String("upload_id", sess.UploadID),
		zap.String("filename", filename),
		zap.Int64("total_size", totalSize),
		zap.Int("total_chunks", sess.TotalChunks))
	return sess, nil
}

// PutChunk stores the bytes for one chunk index. Submission is idempotent:
// resubmitting an index rewrites the bytes but counts it once.
func (m *Manager) PutChunk(ctx context.Context, uploadID string, index int, r io.Reader) (*Session, error) {
	sess, err := m.loadLive(uploadID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= sess.TotalChunks {
		return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidChunk, index, sess.TotalChunks)
	}

	expected := sess.ExpectedChunkSize(index)
	if err := m.writeChunk(ctx, uploadID, index, r, expected); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-read under the lock: a concurrent PutChunk may have advanced the
	// received set since the validation read above.
	sess, err = m.loadLive(uploadID)
	if err != nil {
		return nil, err
	}
	sess.markReceived(index)
	sess.UpdatedAt = time.Now().UTC()
	if err := m.writeSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Status returns a read-only snapshot of the session. Resuming clients use
// the received set to compute what still needs sending.
func (m *Manager) Status(uploadID string) (*Session, error) {
	return m.loadSession(uploadID)
}

// Complete reassembles the artifact in strict ascending index order,
// computes its SHA-256 hash, releases per-chunk storage, and marks the
// session consumed.
func (m *Manager) Complete(ctx context.Context, uploadID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.loadSession(uploadID)
	if err != nil {
		return nil, err
	}
	if sess.Status == SessionCompleted {
		return nil, ErrAlreadyCompleted
	}
	if !sess.IsComplete() {
		missing := sess.MissingChunks()
		preview := missing
		if len(preview) > 10 {
			preview = preview[:10]
		}
		return nil, fmt.Errorf("%w: %d of %d chunks missing (first: %v)",
			ErrIncompleteUpload, len(missing), sess.TotalChunks, preview)
	}

	location, hash, err := m.assemble(ctx, sess)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess.Status = SessionCompleted
	sess.ArtifactPath = location
	sess.ContentHash = hash
	sess.CompletedAt = &now
	sess.UpdatedAt = now
	if err := m.writeSession(sess); err != nil {
		return nil, err
	}

	// Chunk bytes are no longer needed once the artifact exists.
	if err := os.RemoveAll(m.chunksDir(uploadID)); err != nil {
		m.log.Warn("failed to release chunk storage", zap.String("upload_id", uploadID), zap.Error(err))
	}

	m.log.Info("upload completed",
		zap.String("upload_id", uploadID),
		zap.String("artifact", location),
		zap.String("content_hash", hash))
	return sess, nil
}

// Abort deletes the session and all stored chunk bytes. Aborting twice, or
// aborting a nonexistent id, is not an error. Ids that could never name a
// session (empty, separators, "..") are treated as nonexistent so nothing
// outside the upload root is ever touched.
func (m *Manager) Abort(uploadID string) error {
	uploadID = strings.TrimSpace(uploadID)
	if validSessionID(uploadID) != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.RemoveAll(m.sessionDir(uploadID)); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}

// validSessionID confines every session path under the upload root.
// Manager generates uuid ids; anything with separators or dot-dot is
// hostile input, not a session.
func validSessionID(uploadID string) error {
	if uploadID == "" || strings.ContainsAny(uploadID, "/\\") || strings.Contains(uploadID, "..") {
		return fmt.Errorf("invalid upload id %q", uploadID)
	}
	return nil
}

// List returns all persisted sessions, newest first.
func (m *Manager) List() ([]Session, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read upload root: %w", err)
	}

	out := make([]Session, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sess, err := m.loadSession(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Sweep garbage-collects in-progress sessions idle past the expiry
// horizon. It returns how many sessions were removed.
func (m *Manager) Sweep(now time.Time) (int, error) {
	sessions, err := m.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, sess := range sessions {
		if sess.Status != SessionInProgress {
			continue
		}
		if now.UTC().Sub(sess.UpdatedAt) <= m.expiry {
			continue
		}
		if err := m.Abort(sess.UploadID); err != nil {
			return removed, err
		}
		m.log.Info("expired upload session removed",
			zap.String("upload_id", sess.UploadID),
			zap.Time("last_activity", sess.UpdatedAt))
		removed++
	}
	return removed, nil
}

func (m *Manager) checkFilename(filename string) error {
	if len(m.allowPatterns) == 0 {
		return nil
	}
	lower := strings.ToLower(filename)
	for _, pattern := range m.allowPatterns {
		ok, err := doublestar.Match(strings.ToLower(pattern), lower)
		if err != nil {
			return fmt.Errorf("bad allow pattern %q: %w", pattern, err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %q matches no allowed pattern", ErrInvalidFilename, filename)
}

// writeChunk streams the chunk to a temp file, verifies its exact length,
// and renames it into place keyed by (uploadID, index).
func (m *Manager) writeChunk(ctx context.Context, uploadID string, index int, r io.Reader, expected int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := m.chunksDir(uploadID)
	tmp, err := os.CreateTemp(dir, ".chunk.*")
	if err != nil {
		return fmt.Errorf("create chunk temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	// Read one byte past the expected length to detect oversized chunks.
	written, err := io.Copy(tmp, io.LimitReader(r, expected+1))
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close chunk temp file: %w", err)
	}
	if written != expected {
		return fmt.Errorf("%w: chunk %d is %d bytes, expected %d", ErrInvalidChunk, index, written, expected)
	}

	if err := os.Rename(tmpName, m.chunkPath(uploadID, index)); err != nil {
		return fmt.Errorf("rename chunk file: %w", err)
	}
	return nil
}

// assemble concatenates chunks 0..TotalChunks-1 into a temp file, hashing
// along the way, then hands the artifact to the blobstore.
func (m *Manager) assemble(ctx context.Context, sess *Session) (string, string, error) {
	tmp, err := os.CreateTemp(m.root, ".assemble.*")
	if err != nil {
		return "", "", fmt.Errorf("create assembly file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	hasher := sha256.New()
	sink := io.MultiWriter(tmp, hasher)

	for i := 0; i < sess.TotalChunks; i++ {
		if err := ctx.Err(); err != nil {
			_ = tmp.Close()
			return "", "", err
		}
		chunk, err := os.Open(m.chunkPath(sess.UploadID, i))
		if err != nil {
			_ = tmp.Close()
			return "", "", fmt.Errorf("open chunk %d: %w", i, err)
		}
		_, copyErr := io.Copy(sink, chunk)
		_ = chunk.Close()
		if copyErr != nil {
			_ = tmp.Close()
			return "", "", fmt.Errorf("append chunk %d: %w", i, copyErr)
		}
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		_ = tmp.Close()
		return "", "", fmt.Errorf("rewind assembly file: %w", err)
	}

	key := sess.UploadID + "_" + sess.Filename
	location, err := m.artifacts.Put(ctx, key, tmp, sess.TotalSize)
	closeErr := tmp.Close()
	if err != nil {
		return "", "", fmt.Errorf("store artifact: %w", err)
	}
	if closeErr != nil {
		return "", "", fmt.Errorf("close assembly file: %w", closeErr)
	}

	return location, hex.EncodeToString(hasher.Sum(nil)), nil
}

// loadLive loads a session and rejects consumed ones.
func (m *Manager) loadLive(uploadID string) (*Session, error) {
	sess, err := m.loadSession(uploadID)
	if err != nil {
		return nil, err
	}
	if sess.Status == SessionCompleted {
		return nil, ErrAlreadyCompleted
	}
	return sess, nil
}

func (m *Manager) loadSession(uploadID string) (*Session, error) {
	uploadID = strings.TrimSpace(uploadID)
	if validSessionID(uploadID) != nil {
		return nil, ErrSessionNotFound
	}
	b, err := os.ReadFile(m.sessionPath(uploadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("parse session.json: %w", err)
	}
	return &sess, nil
}

func (m *Manager) writeSession(sess *Session) error {
	dir := m.sessionDir(sess.UploadID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	b, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "session.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, m.sessionPath(sess.UploadID)); err != nil {
		return fmt.Errorf("rename session file: %w", err)
	}
	return nil
}

func (m *Manager) sessionDir(uploadID string) string {
	return filepath.Join(m.root, uploadID)
}

func (m *Manager) sessionPath(uploadID string) string {
	return filepath.Join(m.sessionDir(uploadID), sessionFileName)
}

func (m *Manager) chunksDir(uploadID string) string {
	return filepath.Join(m.sessionDir(uploadID), chunksDirName)
}

func (m *Manager) chunkPath(uploadID string, index int) string {
	return filepath.Join(m.chunksDir(uploadID), fmt.Sprintf("chunk_%05d", index))
}
