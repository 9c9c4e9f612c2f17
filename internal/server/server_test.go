package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pursuelabs/segmentd/internal/apierr"
	"github.com/pursuelabs/segmentd/internal/server/handlers"
	filestore "github.com/pursuelabs/segmentd/pkg/blobstore/file"
	"github.com/pursuelabs/segmentd/pkg/cache"
	"github.com/pursuelabs/segmentd/pkg/clip"
	"github.com/pursuelabs/segmentd/pkg/job"
	"github.com/pursuelabs/segmentd/pkg/profile"
	"github.com/pursuelabs/segmentd/pkg/provider"
	"github.com/pursuelabs/segmentd/pkg/transcript"
	"github.com/pursuelabs/segmentd/pkg/upload"
)

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(ctx context.Context, mediaPath string) ([]transcript.Segment, error) {
	return []transcript.Segment{
		{Text: "Opening segment.", StartSeconds: 0, EndSeconds: 300},
		{Text: "Main discussion.", StartSeconds: 300, EndSeconds: 2400},
		{Text: "Wrap up.", StartSeconds: 2400, EndSeconds: 2700},
	}, nil
}

type stubSummarizer struct {
	clipCount int
}

func (s stubSummarizer) ProposeClips(ctx context.Context, req provider.ProposalRequest) ([]clip.Candidate, error) {
	n := s.clipCount
	if n == 0 {
		n = 4
	}
	out := make([]clip.Candidate, n)
	for i := range out {
		start := float64(i * 600)
		out[i] = clip.Candidate{
			StartSeconds: start,
			EndSeconds:   start + 540,
			TitleOptions: []string{
				fmt.Sprintf("Clip %d punchy", i),
				fmt.Sprintf("Clip %d benefit", i),
				fmt.Sprintf("Clip %d curiosity", i),
			},
			Excerpt:   "excerpt",
			Rationale: "standalone arc",
		}
	}
	return out, nil
}

func (stubSummarizer) GenerateProfile(ctx context.Context, req provider.ProfileRequest) (string, error) {
	return "Generated narrative for " + req.PodcastName, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	artifacts, err := filestore.New(filestore.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	uploads, err := upload.NewManager(upload.Config{Root: t.TempDir()}, artifacts, nil)
	require.NoError(t, err)

	orch, err := job.NewOrchestrator(job.Config{Workers: 2, WorkDir: t.TempDir()}, job.Deps{
		Store:       job.NewMemoryStore(),
		Transcripts: cache.NewMemory(),
		Transcriber: stubTranscriber{},
		Summarizer:  stubSummarizer{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })

	profileStore, err := profile.NewFileStore(t.TempDir())
	require.NoError(t, err)
	profiles, err := profile.NewService(profileStore, stubSummarizer{}, nil)
	require.NoError(t, err)

	api := handlers.NewAPI(handlers.Deps{
		Jobs:     orch,
		Uploads:  uploads,
		Profiles: profiles,
	})
	return New("127.0.0.1", 0, api, Options{
		Version: handlers.VersionInfo{Version: "test"},
	})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := decode[apierr.HTTPErrorResponse](t, rec)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestMethodNotAllowedUsesErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/version", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	body := decode[apierr.HTTPErrorResponse](t, rec)
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestHealthAndVersionRoutes(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/version"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, "GET %s", path)
	}
}

type uploadResp struct {
	UploadID        string `json:"upload_id"`
	Status          string `json:"status"`
	TotalChunks     int    `json:"total_chunks"`
	ReceivedCount   int    `json:"received_count"`
	ReceivedIndices []int  `json:"received_indices"`
	ArtifactPath    string `json:"artifact_path"`
	ContentHash     string `json:"content_hash"`
}

func putChunk(t *testing.T, srv *Server, uploadID string, index int, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("chunk_index", fmt.Sprintf("%d", index)))
	part, err := writer.CreateFormFile("chunk", "blob")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads/"+uploadID+"/chunks", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// Mirrors the reference transfer: three chunks submitted out of order
// reassemble byte-identical, hash verified.
func TestChunkedUploadLifecycle(t *testing.T) {
	srv := newTestServer(t)

	payload := bytes.Repeat([]byte("abcde"), 5) // 25 bytes
	chunkSize := 10

	rec := doJSON(t, srv, http.MethodPost, "/uploads", map[string]any{
		"filename":   "episode.mp3",
		"total_size": len(payload),
		"chunk_size": chunkSize,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[uploadResp](t, rec)
	assert.Equal(t, 3, created.TotalChunks)

	// Reverse order arrival; index order still wins at reassembly.
	for _, idx := range []int{2, 0, 1} {
		lo := idx * chunkSize
		hi := lo + chunkSize
		if hi > len(payload) {
			hi = len(payload)
		}
		rec := putChunk(t, srv, created.UploadID, idx, payload[lo:hi])
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/uploads/"+created.UploadID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[uploadResp](t, rec)
	assert.Equal(t, 3, status.ReceivedCount)
	assert.Equal(t, []int{0, 1, 2}, status.ReceivedIndices)

	rec = doJSON(t, srv, http.MethodPost, "/uploads/"+created.UploadID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	completed := decode[uploadResp](t, rec)
	assert.Equal(t, "completed", completed.Status)

	sum := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(sum[:]), completed.ContentHash)

	artifact, err := os.ReadFile(completed.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, payload, artifact)
}

func TestUploadValidationErrors(t *testing.T) {
	srv := newTestServer(t)

	t.Run("oversized initiate", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/uploads", map[string]any{
			"filename":   "big.mp3",
			"total_size": int64(5) << 40,
		})
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "PAYLOAD_TOO_LARGE", decode[apierr.HTTPErrorResponse](t, rec).Error.Code)
	})

	t.Run("wrong chunk size", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/uploads", map[string]any{
			"filename": "a.mp3", "total_size": 20, "chunk_size": 10,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		id := decode[uploadResp](t, rec).UploadID

		bad := putChunk(t, srv, id, 0, []byte("short"))
		assert.Equal(t, http.StatusBadRequest, bad.Code)
		assert.Equal(t, "INVALID_CHUNK", decode[apierr.HTTPErrorResponse](t, bad).Error.Code)
	})

	t.Run("incomplete complete", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/uploads", map[string]any{
			"filename": "b.mp3", "total_size": 20, "chunk_size": 10,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		id := decode[uploadResp](t, rec).UploadID

		done := doJSON(t, srv, http.MethodPost, "/uploads/"+id+"/complete", nil)
		assert.Equal(t, http.StatusConflict, done.Code)
		assert.Equal(t, "INCOMPLETE_UPLOAD", decode[apierr.HTTPErrorResponse](t, done).Error.Code)
	})
}

func TestUploadAbortRemovesSession(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/uploads", map[string]any{
		"filename": "c.mp3", "total_size": 50, "chunk_size": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[uploadResp](t, rec).UploadID

	for _, idx := range []int{0, 1} {
		put := putChunk(t, srv, id, idx, bytes.Repeat([]byte("x"), 10))
		require.Equal(t, http.StatusOK, put.Code)
	}

	abort := doJSON(t, srv, http.MethodPost, "/uploads/"+id+"/abort", nil)
	assert.Equal(t, http.StatusNoContent, abort.Code)

	status := doJSON(t, srv, http.MethodGet, "/uploads/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status.Code)
	assert.Equal(t, "NOT_FOUND", decode[apierr.HTTPErrorResponse](t, status).Error.Code)

	// Abort is idempotent.
	again := doJSON(t, srv, http.MethodPost, "/uploads/"+id+"/abort", nil)
	assert.Equal(t, http.StatusNoContent, again.Code)
}

func pollJob(t *testing.T, srv *Server, id string) *job.Job {
	t.Helper()
	var j *job.Job
	require.Eventually(t, func() bool {
		rec := doJSON(t, srv, http.MethodGet, "/jobs/"+id, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		got := decode[job.Job](t, rec)
		j = &got
		return got.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)
	return j
}

func uploadArtifact(t *testing.T, srv *Server) string {
	t.Helper()
	payload := bytes.Repeat([]byte("audio"), 4)
	rec := doJSON(t, srv, http.MethodPost, "/uploads", map[string]any{
		"filename": "episode.mp3", "total_size": len(payload), "chunk_size": len(payload),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[uploadResp](t, rec).UploadID
	require.Equal(t, http.StatusOK, putChunk(t, srv, id, 0, payload).Code)
	done := doJSON(t, srv, http.MethodPost, "/uploads/"+id+"/complete", nil)
	require.Equal(t, http.StatusOK, done.Code)
	return decode[uploadResp](t, done).ArtifactPath
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	artifact := uploadArtifact(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/jobs", map[string]any{
		"artifact_path": artifact,
		"podcast_name":  "Acme Pod",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	created := decode[job.Job](t, rec)
	assert.Equal(t, job.StatusQueued, created.Status)

	j := pollJob(t, srv, created.ID)
	require.Equal(t, job.StatusComplete, j.Status)
	assert.Len(t, j.Clips, 4)
	assert.NotEmpty(t, j.Transcript)

	// Adjust clip 1 with MM:SS timestamps; neighbors stay put.
	adj := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/jobs/%s/clips/1", created.ID), map[string]any{
		"start": "01:00",
		"end":   "11:00",
	})
	require.Equal(t, http.StatusOK, adj.Code, adj.Body.String())
	adjusted := decode[job.Job](t, adj)
	assert.InDelta(t, 60.0, adjusted.Clips[1].StartSeconds, 1e-9)
	assert.InDelta(t, 660.0, adjusted.Clips[1].EndSeconds, 1e-9)
	assert.Equal(t, job.StatusComplete, adjusted.Status)
	assert.Equal(t, j.Clips[0].StartSeconds, adjusted.Clips[0].StartSeconds)

	// Export is a download of the clip batch.
	exp := doJSON(t, srv, http.MethodGet, "/jobs/"+created.ID+"/export", nil)
	require.Equal(t, http.StatusOK, exp.Code)
	assert.Contains(t, exp.Header().Get("Content-Disposition"), "attachment")
	export := decode[map[string]any](t, exp)
	assert.Len(t, export["clips"], 4)
}

func TestJobErrorsOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	t.Run("unknown job id", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/jobs/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decode[apierr.HTTPErrorResponse](t, rec).Error.Code)
	})

	t.Run("missing source", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/jobs", map[string]any{"podcast_name": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decode[apierr.HTTPErrorResponse](t, rec).Error.Code)
	})

	t.Run("export before clips", func(t *testing.T) {
		artifact := uploadArtifact(t, srv)
		rec := doJSON(t, srv, http.MethodPost, "/jobs", map[string]any{"artifact_path": artifact})
		require.Equal(t, http.StatusAccepted, rec.Code)
		id := decode[job.Job](t, rec).ID
		pollJob(t, srv, id)

		bad := doJSON(t, srv, http.MethodPost, "/jobs/"+id+"/clips/99", map[string]any{
			"start": 0, "end": 10,
		})
		assert.Equal(t, http.StatusBadRequest, bad.Code)
		assert.Equal(t, "INDEX_OUT_OF_RANGE", decode[apierr.HTTPErrorResponse](t, bad).Error.Code)
	})
}

func TestProfileEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/profiles/questionnaires", map[string]any{
		"podcast_name": "Acme Pod",
		"host_names":   []string{"Sam"},
		"answers":      map[string]string{"audience": "engineers"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	q := decode[profile.Questionnaire](t, rec)
	require.NotEmpty(t, q.ID)

	got := doJSON(t, srv, http.MethodGet, "/profiles/questionnaires/"+q.ID, nil)
	assert.Equal(t, http.StatusOK, got.Code)

	gen := doJSON(t, srv, http.MethodPost, "/profiles", map[string]any{"questionnaire_id": q.ID})
	require.Equal(t, http.StatusCreated, gen.Code, gen.Body.String())
	p := decode[profile.Profile](t, gen)
	assert.Equal(t, "Generated narrative for Acme Pod", p.Narrative)

	list := doJSON(t, srv, http.MethodGet, "/profiles", nil)
	require.Equal(t, http.StatusOK, list.Code)
	listBody := decode[map[string][]profile.Profile](t, list)
	assert.Len(t, listBody["profiles"], 1)

	one := doJSON(t, srv, http.MethodGet, "/profiles/"+p.ID, nil)
	assert.Equal(t, http.StatusOK, one.Code)

	missing := doJSON(t, srv, http.MethodGet, "/profiles/unknown-id", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}
