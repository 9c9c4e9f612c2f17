package upload

import "errors"

// Sentinel errors for upload session operations. Handlers map these onto
// the HTTP error taxonomy.
var (
	// ErrSessionNotFound indicates the upload id references no live session.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrPayloadTooLarge indicates the declared file size exceeds the
	// configured maximum.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInvalidChunk indicates an out-of-range index or a size mismatch.
	// The receivedChunks set is never mutated on this error.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrIncompleteUpload indicates Complete was called before every chunk
	// arrived.
	ErrIncompleteUpload = errors.New("incomplete upload")

	// ErrAlreadyCompleted indicates the session was already consumed.
	ErrAlreadyCompleted = errors.New("upload already completed")

	// ErrInvalidFilename indicates the filename is empty or matches none of
	// the configured allow patterns.
	ErrInvalidFilename = errors.New("invalid filename")
)
