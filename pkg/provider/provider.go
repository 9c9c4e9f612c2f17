// Package provider defines the contracts for the external collaborators
// the job pipeline suspends on: media fetch, speech-to-text, and clip
// proposal. Implementations wrap third-party services; the pipeline only
// sees these interfaces plus the error taxonomy in errors.go.
package provider

import (
	"context"

	"github.com/pursuelabs/segmentd/pkg/clip"
	"github.com/pursuelabs/segmentd/pkg/transcript"
)

// Media is a locally resolved media artifact ready for transcription.
type Media struct {
	// Path is the local filesystem path of the artifact.
	Path string

	// SourceID is a content-derived identifier (video id for remote
	// sources, content hash for uploads). It keys the transcript cache.
	SourceID string

	// Title is a human-readable name when the source supplies one.
	Title string
}

// Fetcher resolves a remote media URL into a local artifact.
type Fetcher interface {
	// Fetch downloads the media behind url into destDir.
	Fetch(ctx context.Context, url, destDir string) (*Media, error)
}

// Transcriber converts a media artifact into ordered transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) ([]transcript.Segment, error)
}

// ProposalRequest carries everything the summarizer needs to propose
// clip candidates for one episode.
type ProposalRequest struct {
	PodcastName string
	Segments    []transcript.Segment

	// AudienceProfile is an optional target-audience outline steering the
	// selection. Opaque to the pipeline.
	AudienceProfile string
}

// ProfileRequest carries questionnaire material for audience profile
// generation.
type ProfileRequest struct {
	PodcastName string
	HostNames   []string

	// Answers maps question keys to free-text answers, grouped by the
	// section prefix convention (q1_*, q2_*, ...).
	Answers map[string]string
}

// Summarizer proposes clip candidates from a transcript and generates
// audience profiles from questionnaires.
type Summarizer interface {
	// ProposeClips returns an ordered batch of 3-5 candidates.
	ProposeClips(ctx context.Context, req ProposalRequest) ([]clip.Candidate, error)

	// GenerateProfile returns a target-audience outline as prose.
	GenerateProfile(ctx context.Context, req ProfileRequest) (string, error)
}
