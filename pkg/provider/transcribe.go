package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/pursuelabs/segmentd/pkg/transcript"
)

// TranscriberConfig configures the HTTP speech-to-text client.
type TranscriberConfig struct {
	// BaseURL is the provider endpoint root (required).
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds one transcription call. Defaults to 10 minutes.
	Timeout time.Duration

	// RequestsPerMinute paces outbound calls. Zero disables pacing.
	RequestsPerMinute int
}

// HTTPTranscriber submits media files to a speech-to-text service over
// HTTP and returns ordered transcript segments.
type HTTPTranscriber struct {
	cfg     TranscriberConfig
	httpc   *http.Client
	limiter *rate.Limiter
}

var _ Transcriber = (*HTTPTranscriber)(nil)

// DefaultTranscribeTimeout bounds a single transcription call.
const DefaultTranscribeTimeout = 10 * time.Minute

// NewHTTPTranscriber creates the client.
func NewHTTPTranscriber(cfg TranscriberConfig) (*HTTPTranscriber, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transcriber base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTranscribeTimeout
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return &HTTPTranscriber{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}, nil
}

type transcribeResponse struct {
	Segments []transcript.Segment `json:"segments"`
}

// Transcribe uploads the media file and decodes the segment list.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, mediaPath string) ([]transcript.Segment, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, &Error{Op: "Transcribe", Provider: "transcriber-http", Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	body, contentType, err := multipartFileBody(mediaPath)
	if err != nil {
		return nil, &Error{Op: "Transcribe", Provider: "transcriber-http", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/v1/transcriptions", body)
	if err != nil {
		return nil, &Error{Op: "Transcribe", Provider: "transcriber-http", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	if t.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	resp, err := t.httpc.Do(req)
	if err != nil {
		return nil, &Error{Op: "Transcribe", Provider: "transcriber-http", Err: wrapTransportErr(ctx, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return nil, &Error{Op: "Transcribe", Provider: "transcriber-http", Err: err}
	}

	var decoded transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &Error{Op: "Transcribe", Provider: "transcriber-http", Err: fmt.Errorf("%w: %v", ErrBadResponse, err)}
	}
	if len(decoded.Segments) == 0 {
		return nil, &Error{Op: "Transcribe", Provider: "transcriber-http", Err: fmt.Errorf("%w: empty transcript", ErrBadResponse)}
	}
	for i, seg := range decoded.Segments {
		if err := seg.Validate(); err != nil {
			return nil, &Error{Op: "Transcribe", Provider: "transcriber-http", Err: fmt.Errorf("%w: segment %d: %v", ErrBadResponse, i, err)}
		}
	}
	return decoded.Segments, nil
}

// multipartFileBody spools the media file into a multipart body. Media
// files can be large, so the encoded form is staged in a temp file rather
// than memory; the returned reader deletes it on close.
func multipartFileBody(mediaPath string) (io.Reader, string, error) {
	src, err := os.Open(mediaPath)
	if err != nil {
		return nil, "", fmt.Errorf("open media: %w", err)
	}
	defer func() { _ = src.Close() }()

	spool, err := os.CreateTemp("", "segmentd-transcribe-*")
	if err != nil {
		return nil, "", fmt.Errorf("create spool file: %w", err)
	}

	writer := multipart.NewWriter(spool)
	part, err := writer.CreateFormFile("media", filepath.Base(mediaPath))
	if err != nil {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
		return nil, "", err
	}
	if _, err := io.Copy(part, src); err != nil {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
		return nil, "", fmt.Errorf("spool media: %w", err)
	}
	if err := writer.Close(); err != nil {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
		return nil, "", err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
		return nil, "", err
	}

	return &deleteOnClose{File: spool}, writer.FormDataContentType(), nil
}

type deleteOnClose struct {
	*os.File
}

func (d *deleteOnClose) Close() error {
	name := d.File.Name()
	err := d.File.Close()
	_ = os.Remove(name)
	return err
}

// checkStatus maps HTTP status classes onto the provider error taxonomy.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrThrottled, resp.StatusCode)
	case resp.StatusCode == http.StatusUnprocessableEntity,
		resp.StatusCode == http.StatusUnsupportedMediaType:
		return fmt.Errorf("%w: status %d: %s", ErrContentDisallowed, resp.StatusCode, readErrBody(resp))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, readErrBody(resp))
	}
}

func readErrBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return firstLine(string(b))
}

func wrapTransportErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
