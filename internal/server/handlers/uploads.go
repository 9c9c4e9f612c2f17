package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pursuelabs/segmentd/internal/apierr"
	"github.com/pursuelabs/segmentd/pkg/upload"
)

type initiateUploadRequest struct {
	Filename  string `json:"filename"`
	TotalSize int64  `json:"total_size"`
	ChunkSize int64  `json:"chunk_size,omitempty"`
}

type uploadStatusResponse struct {
	UploadID        string `json:"upload_id"`
	Filename        string `json:"filename"`
	Status          string `json:"status"`
	TotalSize       int64  `json:"total_size"`
	ChunkSize       int64  `json:"chunk_size"`
	TotalChunks     int    `json:"total_chunks"`
	ReceivedCount   int    `json:"received_count"`
	ReceivedIndices []int  `json:"received_indices"`
	ArtifactPath    string `json:"artifact_path,omitempty"`
	ContentHash     string `json:"content_hash,omitempty"`
}

func uploadStatus(s *upload.Session) uploadStatusResponse {
	indices := s.ReceivedChunks
	if indices == nil {
		indices = []int{}
	}
	return uploadStatusResponse{
		UploadID:        s.UploadID,
		Filename:        s.Filename,
		Status:          string(s.Status),
		TotalSize:       s.TotalSize,
		ChunkSize:       s.ChunkSize,
		TotalChunks:     s.TotalChunks,
		ReceivedCount:   len(s.ReceivedChunks),
		ReceivedIndices: indices,
		ArtifactPath:    s.ArtifactPath,
		ContentHash:     s.ContentHash,
	}
}

// InitiateUpload handles POST /uploads: allocates a session; no bytes
// are stored yet.
func (a *API) InitiateUpload(w http.ResponseWriter, r *http.Request) {
	var req initiateUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, "invalid request body: "+err.Error())
		return
	}

	sess, err := a.deps.Uploads.Initiate(req.Filename, req.TotalSize, req.ChunkSize)
	if err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, uploadStatus(sess))
}

// PutChunk handles POST /uploads/{uploadID}/chunks. The chunk arrives
// as a multipart form with a "chunk_index" field and a "chunk" file.
// Resubmitting an index rewrites its bytes and counts once.
func (a *API) PutChunk(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadID")

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, "invalid multipart form: "+err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	index, err := strconv.Atoi(r.FormValue("chunk_index"))
	if err != nil {
		apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, "chunk_index must be an integer")
		return
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		apierr.Respond(w, r, http.StatusBadRequest, apierr.CodeValidation, "chunk file part is required")
		return
	}
	defer func() { _ = file.Close() }()

	sess, err := a.deps.Uploads.PutChunk(r.Context(), uploadID, index, file)
	if err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, uploadStatus(sess))
}

// UploadStatus handles GET /uploads/{uploadID}. The response is the
// single source of truth for resume decisions: clients re-send exactly
// the indices missing from received_indices.
func (a *API) UploadStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := a.deps.Uploads.Status(chi.URLParam(r, "uploadID"))
	if err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, uploadStatus(sess))
}

// CompleteUpload handles POST /uploads/{uploadID}/complete: reassembles
// the chunks in index order and publishes the artifact.
func (a *API) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	sess, err := a.deps.Uploads.Complete(r.Context(), chi.URLParam(r, "uploadID"))
	if err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, uploadStatus(sess))
}

// AbortUpload handles POST /uploads/{uploadID}/abort. Idempotent.
func (a *API) AbortUpload(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Uploads.Abort(chi.URLParam(r, "uploadID")); err != nil {
		apierr.RespondWithError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
