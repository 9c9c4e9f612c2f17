package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/pursuelabs/segmentd/pkg/clip"
	"github.com/pursuelabs/segmentd/pkg/transcript"
)

// PromptSpec tunes the clip-analysis instructions sent to the language
// model service. Operators override the defaults with a YAML file.
type PromptSpec struct {
	// MinClips and MaxClips bound the candidate batch size.
	MinClips int `yaml:"min_clips"`
	MaxClips int `yaml:"max_clips"`

	// TitleOptions is the number of alternate titles per candidate.
	TitleOptions int `yaml:"title_options"`

	// TargetMinSeconds and TargetMaxSeconds describe the preferred clip
	// length. Advisory only; candidates outside the window are kept.
	TargetMinSeconds float64 `yaml:"target_min_seconds"`
	TargetMaxSeconds float64 `yaml:"target_max_seconds"`

	// Style is free-form guidance appended to the analysis prompt.
	Style string `yaml:"style"`
}

// DefaultPromptSpec returns the built-in analysis tuning.
func DefaultPromptSpec() PromptSpec {
	return PromptSpec{
		MinClips:         clip.MinCandidates,
		MaxClips:         clip.MaxCandidates,
		TitleOptions:     clip.TitleCount,
		TargetMinSeconds: clip.RecommendedMinSeconds,
		TargetMaxSeconds: clip.RecommendedMaxSeconds,
	}
}

// LoadPromptSpec reads a YAML prompt spec, filling unset fields from the
// defaults. An empty path returns the defaults unchanged.
func LoadPromptSpec(path string) (PromptSpec, error) {
	spec := DefaultPromptSpec()
	if path == "" {
		return spec, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return PromptSpec{}, fmt.Errorf("read prompt spec: %w", err)
	}
	var overlay PromptSpec
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return PromptSpec{}, fmt.Errorf("parse prompt spec %s: %w", path, err)
	}
	if overlay.MinClips > 0 {
		spec.MinClips = overlay.MinClips
	}
	if overlay.MaxClips > 0 {
		spec.MaxClips = overlay.MaxClips
	}
	if overlay.TitleOptions > 0 {
		spec.TitleOptions = overlay.TitleOptions
	}
	if overlay.TargetMinSeconds > 0 {
		spec.TargetMinSeconds = overlay.TargetMinSeconds
	}
	if overlay.TargetMaxSeconds > 0 {
		spec.TargetMaxSeconds = overlay.TargetMaxSeconds
	}
	if overlay.Style != "" {
		spec.Style = overlay.Style
	}
	if spec.MinClips > spec.MaxClips {
		return PromptSpec{}, fmt.Errorf("prompt spec: min_clips %d exceeds max_clips %d", spec.MinClips, spec.MaxClips)
	}
	return spec, nil
}

// SummarizerConfig configures the HTTP language-model client.
type SummarizerConfig struct {
	// BaseURL is the provider endpoint root (required).
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model names the backing model, passed through to the service.
	Model string

	// Timeout bounds one analysis call. Defaults to 3 minutes.
	Timeout time.Duration

	// RequestsPerMinute paces outbound calls. Zero disables pacing.
	RequestsPerMinute int

	// PromptSpec tunes the clip-analysis instructions.
	PromptSpec PromptSpec
}

// HTTPSummarizer calls a language-model service to propose clip
// candidates and to generate audience profiles.
type HTTPSummarizer struct {
	cfg     SummarizerConfig
	httpc   *http.Client
	limiter *rate.Limiter
}

var _ Summarizer = (*HTTPSummarizer)(nil)

// DefaultSummarizeTimeout bounds a single analysis call.
const DefaultSummarizeTimeout = 3 * time.Minute

// NewHTTPSummarizer creates the client.
func NewHTTPSummarizer(cfg SummarizerConfig) (*HTTPSummarizer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("summarizer base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSummarizeTimeout
	}
	if cfg.PromptSpec == (PromptSpec{}) {
		cfg.PromptSpec = DefaultPromptSpec()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return &HTTPSummarizer{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}, nil
}

type proposeClipsRequest struct {
	Model           string               `json:"model,omitempty"`
	PodcastName     string               `json:"podcast_name,omitempty"`
	AudienceProfile string               `json:"audience_profile,omitempty"`
	Segments        []transcript.Segment `json:"segments"`
	MinClips        int                  `json:"min_clips"`
	MaxClips        int                  `json:"max_clips"`
	TitleOptions    int                  `json:"title_options"`
	TargetMin       float64              `json:"target_min_seconds"`
	TargetMax       float64              `json:"target_max_seconds"`
	Style           string               `json:"style,omitempty"`
}

type proposeClipsResponse struct {
	Clips []clip.Candidate `json:"clips"`
}

// ProposeClips asks the service for a batch of clip candidates and
// validates the batch before returning it. Excerpts are rebuilt locally
// from the transcript so downstream consumers never depend on the model
// quoting accurately.
func (s *HTTPSummarizer) ProposeClips(ctx context.Context, req ProposalRequest) ([]clip.Candidate, error) {
	if len(req.Segments) == 0 {
		return nil, &Error{Op: "ProposeClips", Provider: "summarizer-http", Err: fmt.Errorf("no transcript segments")}
	}

	payload := proposeClipsRequest{
		Model:           s.cfg.Model,
		PodcastName:     req.PodcastName,
		AudienceProfile: req.AudienceProfile,
		Segments:        req.Segments,
		MinClips:        s.cfg.PromptSpec.MinClips,
		MaxClips:        s.cfg.PromptSpec.MaxClips,
		TitleOptions:    s.cfg.PromptSpec.TitleOptions,
		TargetMin:       s.cfg.PromptSpec.TargetMinSeconds,
		TargetMax:       s.cfg.PromptSpec.TargetMaxSeconds,
		Style:           s.cfg.PromptSpec.Style,
	}

	var decoded proposeClipsResponse
	if err := s.post(ctx, "/v1/clips/propose", payload, &decoded); err != nil {
		return nil, &Error{Op: "ProposeClips", Provider: "summarizer-http", Err: err}
	}

	// Model boundaries land mid-word more often than not. Snap to word
	// edges first, then rebuild the excerpt from the snapped range.
	words := transcript.BuildWordIndex(req.Segments)
	candidates := decoded.Clips
	for i := range candidates {
		start, end := words.Snap(candidates[i].StartSeconds, candidates[i].EndSeconds)
		candidates[i].StartSeconds = start
		candidates[i].EndSeconds = end
		candidates[i].Excerpt = transcript.Excerpt(req.Segments, start, end)
	}
	if err := clip.ValidateBatch(candidates); err != nil {
		return nil, &Error{Op: "ProposeClips", Provider: "summarizer-http", Err: fmt.Errorf("%w: %v", ErrBadResponse, err)}
	}
	return candidates, nil
}

type generateProfileRequest struct {
	Model       string            `json:"model,omitempty"`
	PodcastName string            `json:"podcast_name"`
	HostNames   []string          `json:"host_names,omitempty"`
	Answers     map[string]string `json:"answers"`
}

type generateProfileResponse struct {
	Profile string `json:"profile"`
}

// GenerateProfile turns questionnaire answers into an audience profile
// narrative.
func (s *HTTPSummarizer) GenerateProfile(ctx context.Context, req ProfileRequest) (string, error) {
	if len(req.Answers) == 0 {
		return "", &Error{Op: "GenerateProfile", Provider: "summarizer-http", Err: fmt.Errorf("no questionnaire answers")}
	}

	payload := generateProfileRequest{
		Model:       s.cfg.Model,
		PodcastName: req.PodcastName,
		HostNames:   req.HostNames,
		Answers:     req.Answers,
	}

	var decoded generateProfileResponse
	if err := s.post(ctx, "/v1/profiles/generate", payload, &decoded); err != nil {
		return "", &Error{Op: "GenerateProfile", Provider: "summarizer-http", Err: err}
	}
	if decoded.Profile == "" {
		return "", &Error{Op: "GenerateProfile", Provider: "summarizer-http", Err: fmt.Errorf("%w: empty profile", ErrBadResponse)}
	}
	return decoded.Profile, nil
}

func (s *HTTPSummarizer) post(ctx context.Context, path string, payload, out any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return wrapTransportErr(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}
