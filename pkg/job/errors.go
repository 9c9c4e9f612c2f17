package job

import "errors"

var (
	// ErrNotFound indicates no job exists for the id.
	ErrNotFound = errors.New("job not found")

	// ErrNotReady indicates the job has no clips yet.
	ErrNotReady = errors.New("job has no clips yet")

	// ErrIndexOutOfRange indicates a clip index outside the batch.
	ErrIndexOutOfRange = errors.New("clip index out of range")

	// ErrTerminal indicates an operation that needs a live job hit a
	// completed or failed one.
	ErrTerminal = errors.New("job already finished")

	// ErrQueueFull indicates the admission queue is at capacity.
	ErrQueueFull = errors.New("job queue is full")

	// ErrClosed indicates the orchestrator is shutting down.
	ErrClosed = errors.New("orchestrator is closed")
)
