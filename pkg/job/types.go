// Package job owns the clip-generation pipeline: the persistent Job
// record, its storage, and the orchestrator that runs each job through
// download, transcription, and analysis.
package job

import (
	"fmt"
	"time"

	"github.com/pursuelabs/segmentd/pkg/clip"
	"github.com/pursuelabs/segmentd/pkg/transcript"
)

// Status is the lifecycle state of a job.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusAnalyzing    Status = "analyzing"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
)

// stageRank orders the pipeline stages. Failed sorts above every
// non-terminal stage so a jump to failed is always a forward move.
var stageRank = map[Status]int{
	StatusQueued:       0,
	StatusDownloading:  1,
	StatusTranscribing: 2,
	StatusAnalyzing:    3,
	StatusComplete:     4,
	StatusFailed:       5,
}

// Terminal reports whether no further stage transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := stageRank[s]
	return ok
}

// Source describes where a job's media comes from. Exactly one of URL or
// ArtifactPath is set: URL jobs fetch the media, artifact jobs reuse a
// file produced by a completed chunked upload.
type Source struct {
	URL          string `json:"url,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
}

// Validate checks that exactly one source form is present.
func (s Source) Validate() error {
	switch {
	case s.URL == "" && s.ArtifactPath == "":
		return fmt.Errorf("either a source url or an uploaded artifact is required")
	case s.URL != "" && s.ArtifactPath != "":
		return fmt.Errorf("source url and uploaded artifact are mutually exclusive")
	}
	return nil
}

// Job is the persistent record written to job.json. The background
// runner is the only writer after creation; everything else reads
// snapshots. SaveClipAdjustment is the one exception: it edits clip
// boundaries on a completed job without touching the status.
type Job struct {
	ID          string `json:"job_id"`
	PodcastName string `json:"podcast_name,omitempty"`
	Source      Source `json:"source"`

	// SourceID is the content-derived identity used as the transcript
	// cache key.
	SourceID string `json:"source_id,omitempty"`

	// AudienceProfile is the resolved profile narrative passed to the
	// summarizer, if the caller supplied one.
	AudienceProfile string `json:"audience_profile,omitempty"`
	ProfileID       string `json:"profile_id,omitempty"`

	Status          Status `json:"status"`
	ProgressMessage string `json:"progress_message,omitempty"`
	Error           string `json:"error,omitempty"`

	Transcript []transcript.Segment `json:"transcript,omitempty"`
	Clips      []clip.Candidate     `json:"clips,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// advance moves the job to next, enforcing the forward-only state
// machine: stages in fixed order, failed reachable from any non-terminal
// state, terminal states immutable.
func (j *Job) advance(next Status, now time.Time) error {
	if !next.Valid() {
		return fmt.Errorf("unknown status %q", next)
	}
	if j.Status.Terminal() {
		return fmt.Errorf("job %s is %s; no further transitions", j.ID, j.Status)
	}
	if next != StatusFailed && stageRank[next] != stageRank[j.Status]+1 {
		return fmt.Errorf("illegal transition %s -> %s", j.Status, next)
	}
	j.Status = next
	j.UpdatedAt = now
	return nil
}

// Clone deep-copies the job so snapshot readers never alias the runner's
// mutable slices.
func (j *Job) Clone() *Job {
	out := *j
	if j.Transcript != nil {
		out.Transcript = make([]transcript.Segment, len(j.Transcript))
		copy(out.Transcript, j.Transcript)
	}
	if j.Clips != nil {
		out.Clips = make([]clip.Candidate, len(j.Clips))
		for i, c := range j.Clips {
			out.Clips[i] = c
			if c.TitleOptions != nil {
				out.Clips[i].TitleOptions = append([]string(nil), c.TitleOptions...)
			}
		}
	}
	return &out
}
