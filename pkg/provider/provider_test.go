package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pursuelabs/segmentd/pkg/clip"
	"github.com/pursuelabs/segmentd/pkg/transcript"
)

func testSegments() []transcript.Segment {
	return []transcript.Segment{
		{Text: "Welcome back to the show.", StartSeconds: 0, EndSeconds: 4},
		{Text: "Today we talk about shipping software.", StartSeconds: 4, EndSeconds: 9},
		{Text: "Thanks for listening.", StartSeconds: 9, EndSeconds: 12},
	}
}

func TestHTTPTranscriberDecodesSegments(t *testing.T) {
	media := filepath.Join(t.TempDir(), "episode.mp3")
	require.NoError(t, os.WriteFile(media, []byte("not really audio"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hdr, err := r.FormFile("media")
		require.NoError(t, err)
		assert.Equal(t, "episode.mp3", hdr.Filename)

		_ = json.NewEncoder(w).Encode(transcribeResponse{Segments: testSegments()})
	}))
	defer srv.Close()

	tr, err := NewHTTPTranscriber(TranscriberConfig{BaseURL: srv.URL, APIKey: "sekrit"})
	require.NoError(t, err)

	segs, err := tr.Transcribe(context.Background(), media)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, "Welcome back to the show.", segs[0].Text)
	assert.InDelta(t, 12.0, segs[2].EndSeconds, 1e-9)
}

func TestHTTPTranscriberStatusMapping(t *testing.T) {
	media := filepath.Join(t.TempDir(), "episode.mp3")
	require.NoError(t, os.WriteFile(media, []byte("x"), 0o644))

	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"throttled", http.StatusTooManyRequests, ErrThrottled},
		{"disallowed", http.StatusUnsupportedMediaType, ErrContentDisallowed},
		{"unavailable", http.StatusBadGateway, ErrProviderUnavailable},
		{"bad request", http.StatusBadRequest, ErrBadResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			tr, err := NewHTTPTranscriber(TranscriberConfig{BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = tr.Transcribe(context.Background(), media)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPTranscriberRejectsEmptyTranscript(t *testing.T) {
	media := filepath.Join(t.TempDir(), "episode.mp3")
	require.NoError(t, os.WriteFile(media, []byte("x"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(transcribeResponse{})
	}))
	defer srv.Close()

	tr, err := NewHTTPTranscriber(TranscriberConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), media)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestNewHTTPTranscriberRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPTranscriber(TranscriberConfig{})
	assert.Error(t, err)
}

func serverCandidates() []clip.Candidate {
	mk := func(start, end float64, n int) clip.Candidate {
		return clip.Candidate{
			StartSeconds: start,
			EndSeconds:   end,
			TitleOptions: []string{
				fmt.Sprintf("Title %d punchy", n),
				fmt.Sprintf("Title %d benefit", n),
				fmt.Sprintf("Title %d curiosity", n),
			},
			Rationale: "strong standalone arc",
		}
	}
	return []clip.Candidate{mk(0, 5, 1), mk(4, 10, 2), mk(9, 12, 3)}
}

func TestHTTPSummarizerProposeClips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/clips/propose", r.URL.Path)

		var req proposeClipsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Acme Pod", req.PodcastName)
		assert.Equal(t, clip.MinCandidates, req.MinClips)
		assert.Equal(t, clip.TitleCount, req.TitleOptions)
		assert.Len(t, req.Segments, 3)

		_ = json.NewEncoder(w).Encode(proposeClipsResponse{Clips: serverCandidates()})
	}))
	defer srv.Close()

	s, err := NewHTTPSummarizer(SummarizerConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	got, err := s.ProposeClips(context.Background(), ProposalRequest{
		PodcastName: "Acme Pod",
		Segments:    testSegments(),
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Excerpts are rebuilt locally from the transcript, not trusted from
	// the service response.
	assert.Contains(t, got[0].Excerpt, "Welcome back")
	assert.Contains(t, got[2].Excerpt, "Thanks for listening")
}

func TestHTTPSummarizerRejectsBadBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only two candidates; batch contract requires at least three.
		_ = json.NewEncoder(w).Encode(proposeClipsResponse{Clips: serverCandidates()[:2]})
	}))
	defer srv.Close()

	s, err := NewHTTPSummarizer(SummarizerConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = s.ProposeClips(context.Background(), ProposalRequest{Segments: testSegments()})
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestHTTPSummarizerGenerateProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/profiles/generate", r.URL.Path)

		var req generateProfileRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Acme Pod", req.PodcastName)
		assert.Equal(t, []string{"Sam", "Riley"}, req.HostNames)
		assert.Equal(t, "engineers", req.Answers["audience"])

		_ = json.NewEncoder(w).Encode(generateProfileResponse{Profile: "Technical listeners who want depth."})
	}))
	defer srv.Close()

	s, err := NewHTTPSummarizer(SummarizerConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	profile, err := s.GenerateProfile(context.Background(), ProfileRequest{
		PodcastName: "Acme Pod",
		HostNames:   []string{"Sam", "Riley"},
		Answers:     map[string]string{"audience": "engineers"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Technical listeners who want depth.", profile)
}

func TestHTTPSummarizerGenerateProfileRequiresAnswers(t *testing.T) {
	s, err := NewHTTPSummarizer(SummarizerConfig{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = s.GenerateProfile(context.Background(), ProfileRequest{PodcastName: "x"})
	assert.Error(t, err)
}

func TestLoadPromptSpec(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		spec, err := LoadPromptSpec("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPromptSpec(), spec)
	})

	t.Run("overlay merges onto defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.yaml")
		require.NoError(t, os.WriteFile(path, []byte("max_clips: 4\nstyle: favor contrarian takes\n"), 0o644))

		spec, err := LoadPromptSpec(path)
		require.NoError(t, err)
		assert.Equal(t, clip.MinCandidates, spec.MinClips)
		assert.Equal(t, 4, spec.MaxClips)
		assert.Equal(t, "favor contrarian takes", spec.Style)
	})

	t.Run("inverted bounds rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.yaml")
		require.NoError(t, os.WriteFile(path, []byte("min_clips: 6\nmax_clips: 4\n"), 0o644))

		_, err := LoadPromptSpec(path)
		assert.Error(t, err)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{ErrThrottled, CategoryTransient},
		{ErrProviderUnavailable, CategoryTransient},
		{context.DeadlineExceeded, CategoryTransient},
		{ErrSourceUnavailable, CategoryPermanent},
		{ErrContentDisallowed, CategoryPermanent},
		{errors.New("mystery"), CategoryUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(fmt.Errorf("wrapped: %w", tt.err)), "classify %v", tt.err)
	}
}
