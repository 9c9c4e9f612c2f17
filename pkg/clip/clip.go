// Package clip defines the clip-candidate model produced by the
// summarization stage and edited afterwards by the user.
package clip

import (
	"fmt"

	"github.com/pursuelabs/segmentd/pkg/transcript"
)

// TitleCount is the required number of title options per candidate:
// punchy, benefit-driven, curiosity.
const TitleCount = 3

// Batch size bounds for one analysis pass.
const (
	MinCandidates = 3
	MaxCandidates = 5
)

// Recommended clip duration bounds in seconds. Advisory only; candidates
// outside the window are kept.
const (
	RecommendedMinSeconds = 8 * 60
	RecommendedMaxSeconds = 20 * 60
)

// Candidate is one proposed sub-range of the source media. Candidates are
// produced as an ordered batch per job and are not addressable before the
// batch completes.
type Candidate struct {
	StartSeconds float64  `json:"start_seconds"`
	EndSeconds   float64  `json:"end_seconds"`
	TitleOptions []string `json:"title_options"`
	Excerpt      string   `json:"excerpt"`
	Rationale    string   `json:"rationale"`
}

// Duration returns the candidate length in seconds.
func (c Candidate) Duration() float64 {
	return c.EndSeconds - c.StartSeconds
}

// StartTimestamp renders the start boundary in the external MM:SS form.
func (c Candidate) StartTimestamp() string {
	return transcript.FormatTimestamp(c.StartSeconds)
}

// EndTimestamp renders the end boundary in the external MM:SS form.
func (c Candidate) EndTimestamp() string {
	return transcript.FormatTimestamp(c.EndSeconds)
}

// Validate checks the structural invariants of a candidate.
func (c Candidate) Validate() error {
	if c.StartSeconds < 0 {
		return fmt.Errorf("clip start %.3f is negative", c.StartSeconds)
	}
	if c.EndSeconds <= c.StartSeconds {
		return fmt.Errorf("clip end %.3f is not after start %.3f", c.EndSeconds, c.StartSeconds)
	}
	if len(c.TitleOptions) != TitleCount {
		return fmt.Errorf("expected %d title options, got %d", TitleCount, len(c.TitleOptions))
	}
	for i, title := range c.TitleOptions {
		if title == "" {
			return fmt.Errorf("title option %d is empty", i)
		}
	}
	return nil
}

// ValidateBatch checks an ordered batch of candidates. Batches of 3-5 are
// the summarizer contract.
func ValidateBatch(batch []Candidate) error {
	if len(batch) < MinCandidates || len(batch) > MaxCandidates {
		return fmt.Errorf("expected %d-%d clip candidates, got %d", MinCandidates, MaxCandidates, len(batch))
	}
	for i, c := range batch {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("candidate %d: %w", i, err)
		}
	}
	return nil
}
