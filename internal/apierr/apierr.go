// Package apierr defines the service's JSON error envelope and the
// mapping from domain errors onto HTTP status codes.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pursuelabs/segmentd/pkg/job"
	"github.com/pursuelabs/segmentd/pkg/profile"
	"github.com/pursuelabs/segmentd/pkg/upload"
)

// Stable error codes returned in the envelope.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeInvalidChunk     = "INVALID_CHUNK"
	CodeIncompleteUpload = "INCOMPLETE_UPLOAD"
	CodeAlreadyCompleted = "ALREADY_COMPLETED"
	CodeNotReady         = "NOT_READY"
	CodeIndexOutOfRange  = "INDEX_OUT_OF_RANGE"
	CodeQueueFull        = "QUEUE_FULL"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
)

// HTTPErrorResponse is the wire envelope for every non-2xx response.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the machine code, human message, and request id.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Respond writes the envelope with an explicit status and code.
func Respond(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	RespondDetails(w, r, status, code, message, nil)
}

// RespondDetails writes the envelope including a details map.
func RespondDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
		Details:   details,
	}})
}

// RespondWithError maps a domain error onto (status, code) and writes
// the envelope. Unrecognized errors become 500 INTERNAL_ERROR with a
// generic message so internals never leak to clients.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	message := err.Error()
	if code == CodeInternal {
		message = "internal server error"
	}
	Respond(w, r, status, code, message)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, job.ErrNotFound),
		errors.Is(err, upload.ErrSessionNotFound),
		errors.Is(err, profile.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, upload.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.Is(err, upload.ErrInvalidChunk):
		return http.StatusBadRequest, CodeInvalidChunk
	case errors.Is(err, upload.ErrIncompleteUpload):
		return http.StatusConflict, CodeIncompleteUpload
	case errors.Is(err, upload.ErrAlreadyCompleted),
		errors.Is(err, job.ErrTerminal):
		return http.StatusConflict, CodeAlreadyCompleted
	case errors.Is(err, upload.ErrInvalidFilename):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, job.ErrNotReady):
		return http.StatusConflict, CodeNotReady
	case errors.Is(err, job.ErrIndexOutOfRange):
		return http.StatusBadRequest, CodeIndexOutOfRange
	case errors.Is(err, job.ErrQueueFull):
		return http.StatusServiceUnavailable, CodeQueueFull
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
