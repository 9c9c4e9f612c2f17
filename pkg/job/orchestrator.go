package job

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pursuelabs/segmentd/pkg/cache"
	"github.com/pursuelabs/segmentd/pkg/provider"
	"github.com/pursuelabs/segmentd/pkg/transcript"
)

// Config tunes the orchestrator's worker pool and scratch space.
type Config struct {
	// Workers is the number of concurrent pipeline runners. Defaults to 4.
	Workers int

	// QueueDepth bounds jobs accepted but not yet running. Defaults to 64.
	// Create fails with ErrQueueFull beyond it.
	QueueDepth int

	// WorkDir holds per-job fetched media. Defaults to the OS temp dir.
	WorkDir string
}

// CreateRequest describes a new job submission.
type CreateRequest struct {
	Source          Source
	PodcastName     string
	ProfileID       string
	AudienceProfile string
}

// Orchestrator runs each job through the fixed pipeline
// queued -> downloading -> transcribing -> analyzing -> complete, with
// failed reachable from any non-terminal stage. A bounded worker pool
// executes pipelines; status reads are store snapshots and never block
// on a runner.
type Orchestrator struct {
	cfg         Config
	store       Store
	transcripts cache.TranscriptCache
	fetcher     provider.Fetcher
	transcriber provider.Transcriber
	summarizer  provider.Summarizer
	log         *zap.Logger

	tasks chan string
	wg    sync.WaitGroup

	mu      sync.Mutex
	runCtxs map[string]context.Context
	cancels map[string]context.CancelFunc
	closed  bool
}

// Deps are the orchestrator's collaborators. Store, Transcriber, and
// Summarizer are required; Fetcher is required only if URL jobs are
// submitted; Transcripts may be nil to disable caching.
type Deps struct {
	Store       Store
	Transcripts cache.TranscriptCache
	Fetcher     provider.Fetcher
	Transcriber provider.Transcriber
	Summarizer  provider.Summarizer
	Logger      *zap.Logger
}

// NewOrchestrator validates deps and starts the worker pool.
func NewOrchestrator(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if deps.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if deps.Summarizer == nil {
		return nil, fmt.Errorf("summarizer is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "segmentd-media")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	o := &Orchestrator{
		cfg:         cfg,
		store:       deps.Store,
		transcripts: deps.Transcripts,
		fetcher:     deps.Fetcher,
		transcriber: deps.Transcriber,
		summarizer:  deps.Summarizer,
		log:         deps.Logger,
		tasks:       make(chan string, cfg.QueueDepth),
		runCtxs:     make(map[string]context.Context),
		cancels:     make(map[string]context.CancelFunc),
	}
	for i := 0; i < cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return o, nil
}

// Create allocates the job record, persists it as queued, and schedules
// its pipeline. It returns without waiting for any stage.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*Job, error) {
	if err := req.Source.Validate(); err != nil {
		return nil, err
	}
	if req.Source.URL != "" && o.fetcher == nil {
		return nil, fmt.Errorf("url sources are not enabled")
	}

	sourceID, err := deriveSourceID(req.Source)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	j := &Job{
		ID:              uuid.New().String(),
		PodcastName:     strings.TrimSpace(req.PodcastName),
		Source:          req.Source,
		SourceID:        sourceID,
		AudienceProfile: req.AudienceProfile,
		ProfileID:       req.ProfileID,
		Status:          StatusQueued,
		ProgressMessage: "waiting for a worker",
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	runCtx, cancel := context.WithCancel(context.Background())
	o.runCtxs[j.ID] = runCtx
	o.cancels[j.ID] = cancel
	o.mu.Unlock()

	if err := o.store.Put(j); err != nil {
		o.dropCancel(j.ID)
		return nil, err
	}

	// Enqueue under the lock: Close sets closed and closes the channel,
	// so the closed re-check and the send must be atomic with respect to
	// it or a racing Create panics on a closed channel.
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.dropCancel(j.ID)
		_ = o.store.Delete(j.ID)
		return nil, ErrClosed
	}
	select {
	case o.tasks <- j.ID:
		o.mu.Unlock()
	default:
		o.mu.Unlock()
		o.dropCancel(j.ID)
		_ = o.store.Delete(j.ID)
		return nil, ErrQueueFull
	}

	o.log.Info("job created",
		zap.String("job_id", j.ID),
		zap.String("source_id", j.SourceID),
		zap.Bool("from_upload", j.Source.ArtifactPath != ""))
	return j.Clone(), nil
}

// Get returns a snapshot of the job. Safe to poll at any frequency.
func (o *Orchestrator) Get(_ context.Context, id string) (*Job, error) {
	return o.store.Get(id)
}

// List returns snapshots of all jobs, newest first.
func (o *Orchestrator) List(_ context.Context) ([]*Job, error) {
	return o.store.List()
}

// Export returns the job's clip batch for download, or ErrNotReady when
// clips are absent.
func (o *Orchestrator) Export(_ context.Context, id string) (*Job, error) {
	j, err := o.store.Get(id)
	if err != nil {
		return nil, err
	}
	if len(j.Clips) == 0 {
		return nil, ErrNotReady
	}
	return j, nil
}

// SaveClipAdjustment overwrites one clip candidate's boundaries in
// place. It is the only user-driven mutation of a completed job and does
// not change the job's status. When excerpt is empty and the job holds a
// transcript, the excerpt is recomputed for the new bounds.
func (o *Orchestrator) SaveClipAdjustment(_ context.Context, id string, index int, newStart, newEnd float64, excerpt string) (*Job, error) {
	j, err := o.store.Get(id)
	if err != nil {
		return nil, err
	}
	if len(j.Clips) == 0 {
		return nil, ErrNotReady
	}
	if index < 0 || index >= len(j.Clips) {
		return nil, fmt.Errorf("%w: index %d, batch size %d", ErrIndexOutOfRange, index, len(j.Clips))
	}
	if newEnd <= newStart || newStart < 0 {
		return nil, fmt.Errorf("invalid clip bounds [%v, %v]", newStart, newEnd)
	}

	j.Clips[index].StartSeconds = newStart
	j.Clips[index].EndSeconds = newEnd
	if excerpt != "" {
		j.Clips[index].Excerpt = excerpt
	} else if len(j.Transcript) > 0 {
		j.Clips[index].Excerpt = transcript.Excerpt(j.Transcript, newStart, newEnd)
	}
	j.UpdatedAt = time.Now().UTC()

	if err := o.store.Put(j); err != nil {
		return nil, err
	}
	return j.Clone(), nil
}

// Cancel requests termination of a running or queued job. The runner
// observes the signal at the next stage boundary and inside provider
// calls via context. Cancelling a terminal job returns ErrTerminal.
func (o *Orchestrator) Cancel(_ context.Context, id string) error {
	j, err := o.store.Get(id)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return ErrTerminal
	}

	o.mu.Lock()
	cancel, ok := o.cancels[id]
	o.mu.Unlock()
	if ok {
		cancel()
		o.log.Info("job cancellation requested", zap.String("job_id", id))
		return nil
	}

	// No live runner owns this job (for example it predates a restart).
	// Finalize it directly.
	return o.failJob(j, "cancelled by user")
}

// Close stops accepting jobs, cancels running pipelines, and waits for
// the workers to drain.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	for _, cancel := range o.cancels {
		cancel()
	}
	o.mu.Unlock()

	close(o.tasks)
	o.wg.Wait()
	return nil
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for id := range o.tasks {
		o.run(id)
	}
}

func (o *Orchestrator) dropCancel(id string) {
	o.mu.Lock()
	if cancel, ok := o.cancels[id]; ok {
		cancel()
		delete(o.cancels, id)
	}
	delete(o.runCtxs, id)
	o.mu.Unlock()
}

// run executes the full pipeline for one job. Exactly one runner owns a
// given job id.
func (o *Orchestrator) run(id string) {
	defer o.dropCancel(id)

	ctx := o.contextFor(id)
	log := o.log.With(zap.String("job_id", id))

	j, err := o.store.Get(id)
	if err != nil {
		log.Error("load queued job", zap.Error(err))
		return
	}
	if j.Status.Terminal() {
		return
	}
	if ctx.Err() != nil {
		_ = o.failJob(j, "cancelled by user")
		return
	}

	// Stage 1: obtain a local media artifact.
	if err := o.advance(j, StatusDownloading, "obtaining media"); err != nil {
		log.Error("advance", zap.Error(err))
		return
	}
	mediaPath, err := o.obtainMedia(ctx, j)
	if err != nil {
		o.finishWithError(log, j, "download", err)
		return
	}
	log.Info("media ready", zap.String("path", mediaPath), zap.String("source_id", j.SourceID))

	// Stage 2: transcript, from cache when the content was seen before.
	if err := o.advance(j, StatusTranscribing, "transcribing audio"); err != nil {
		log.Error("advance", zap.Error(err))
		return
	}
	segments, cached, err := o.obtainTranscript(ctx, j, mediaPath)
	if err != nil {
		o.finishWithError(log, j, "transcription", err)
		return
	}
	j.Transcript = segments
	log.Info("transcript ready", zap.Int("segments", len(segments)), zap.Bool("from_cache", cached))

	// Stage 3: clip analysis.
	if err := o.advance(j, StatusAnalyzing, "selecting clip candidates"); err != nil {
		log.Error("advance", zap.Error(err))
		return
	}
	clips, err := o.summarizer.ProposeClips(ctx, provider.ProposalRequest{
		PodcastName:     j.PodcastName,
		Segments:        j.Transcript,
		AudienceProfile: j.AudienceProfile,
	})
	if err != nil {
		o.finishWithError(log, j, "analysis", err)
		return
	}
	j.Clips = clips

	// Stage 4: done.
	if err := o.advance(j, StatusComplete, fmt.Sprintf("%d clip candidates ready", len(clips))); err != nil {
		log.Error("advance", zap.Error(err))
		return
	}
	log.Info("job complete", zap.Int("clips", len(clips)))
}

// contextFor returns the cancellable context registered at enqueue time.
func (o *Orchestrator) contextFor(id string) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ctx, ok := o.runCtxs[id]; ok {
		return ctx
	}
	return context.Background()
}

func (o *Orchestrator) obtainMedia(ctx context.Context, j *Job) (string, error) {
	if j.Source.ArtifactPath != "" {
		if _, err := os.Stat(j.Source.ArtifactPath); err != nil {
			return "", fmt.Errorf("uploaded artifact missing: %w", err)
		}
		// Uploaded artifacts are keyed by content, not by name: the
		// upload manager prefixes artifact names with the upload id, so
		// a name-derived key would miss the cache on every re-upload.
		if j.SourceID == "" {
			hash, err := fileSHA256(j.Source.ArtifactPath)
			if err != nil {
				return "", fmt.Errorf("hash artifact: %w", err)
			}
			j.SourceID = hash
		}
		return j.Source.ArtifactPath, nil
	}

	destDir := filepath.Join(o.cfg.WorkDir, j.ID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	media, err := o.fetcher.Fetch(ctx, j.Source.URL, destDir)
	if err != nil {
		return "", err
	}
	if media.SourceID != "" {
		j.SourceID = media.SourceID
	}
	if media.Title != "" && j.PodcastName == "" {
		j.PodcastName = media.Title
	}
	return media.Path, nil
}

func (o *Orchestrator) obtainTranscript(ctx context.Context, j *Job, mediaPath string) ([]transcript.Segment, bool, error) {
	if o.transcripts != nil && j.SourceID != "" {
		if segs, err := o.transcripts.Get(ctx, j.SourceID); err == nil {
			return segs, true, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			o.log.Warn("transcript cache read failed",
				zap.String("job_id", j.ID), zap.Error(err))
		}
	}

	segs, err := o.transcriber.Transcribe(ctx, mediaPath)
	if err != nil {
		return nil, false, err
	}

	if o.transcripts != nil && j.SourceID != "" {
		if err := o.transcripts.Put(ctx, j.SourceID, segs); err != nil {
			o.log.Warn("transcript cache write failed",
				zap.String("job_id", j.ID), zap.Error(err))
		}
	}
	return segs, false, nil
}

// advance persists a forward stage transition.
func (o *Orchestrator) advance(j *Job, next Status, msg string) error {
	if err := j.advance(next, time.Now().UTC()); err != nil {
		return err
	}
	j.ProgressMessage = msg
	return o.store.Put(j)
}

// finishWithError finalizes the job as failed with a user-facing reason.
func (o *Orchestrator) finishWithError(log *zap.Logger, j *Job, stage string, err error) {
	reason := failureReason(stage, err)
	if ferr := o.failJob(j, reason); ferr != nil {
		log.Error("persist failure state", zap.Error(ferr))
	}
	log.Warn("job failed",
		zap.String("stage", stage),
		zap.String("category", string(provider.Classify(err))),
		zap.Error(err))
}

func (o *Orchestrator) failJob(j *Job, reason string) error {
	if err := j.advance(StatusFailed, time.Now().UTC()); err != nil {
		return err
	}
	j.Error = reason
	j.ProgressMessage = ""
	return o.store.Put(j)
}

// failureReason renders a provider failure for end users, labelling
// transient issues as retryable.
func failureReason(stage string, err error) string {
	if errors.Is(err, context.Canceled) {
		return "cancelled by user"
	}
	switch provider.Classify(err) {
	case provider.CategoryTransient:
		return fmt.Sprintf("%s failed (temporary, try again later): %v", stage, err)
	case provider.CategoryPermanent:
		return fmt.Sprintf("%s failed (source cannot be processed): %v", stage, err)
	default:
		return fmt.Sprintf("%s failed: %v", stage, err)
	}
}

// deriveSourceID computes the transcript cache key for a submission.
// URL sources carry their content id in the URL; uploaded artifacts are
// keyed by a SHA-256 of their bytes, computed by the runner once the
// file is at hand.
func deriveSourceID(src Source) (string, error) {
	if src.URL != "" {
		return provider.SourceIDFromURL(src.URL)
	}
	return "", nil
}

// fileSHA256 streams the file through SHA-256, matching the hash the
// upload manager records at Complete.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
