package provider

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for provider operations. The pipeline does not retry;
// the category tells the client UI whether "retry" or "try another
// source" is the right offer.
var (
	// ErrSourceUnavailable indicates the media is gone: removed, private,
	// or never existed. Permanent.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrContentDisallowed indicates the provider refused the content
	// (copyright, policy). Permanent.
	ErrContentDisallowed = errors.New("content disallowed")

	// ErrThrottled indicates the provider rate limited the request.
	// Transient.
	ErrThrottled = errors.New("request throttled")

	// ErrProviderUnavailable indicates the provider service is down or
	// unreachable. Transient.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrBadResponse indicates the provider answered with something the
	// client could not use (malformed payload, contract violation).
	ErrBadResponse = errors.New("unusable provider response")
)

// Category classifies a failure for user-facing handling.
type Category string

const (
	// CategoryTransient failures may succeed on resubmission.
	CategoryTransient Category = "transient"

	// CategoryPermanent failures will not succeed for the same source.
	CategoryPermanent Category = "permanent"

	// CategoryUnknown covers everything else.
	CategoryUnknown Category = "unknown"
)

// Classify maps an error onto the user-facing failure taxonomy.
func Classify(err error) Category {
	switch {
	case errors.Is(err, ErrSourceUnavailable), errors.Is(err, ErrContentDisallowed):
		return CategoryPermanent
	case errors.Is(err, ErrThrottled), errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return CategoryTransient
	default:
		return CategoryUnknown
	}
}

// Error wraps provider-specific failures with operation context.
type Error struct {
	// Op is the operation that failed (e.g., "Fetch", "Transcribe").
	Op string

	// Provider names the implementation (e.g., "ytfetch", "whisper-http").
	Provider string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}
