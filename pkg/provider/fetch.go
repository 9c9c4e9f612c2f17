package provider

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ExecFetcher shells out to an external downloader binary (yt-dlp or
// compatible) to resolve a remote media URL into a local file.
type ExecFetcher struct {
	// Bin is the downloader binary. Defaults to "yt-dlp".
	Bin string

	// ExtraArgs are appended before the URL, e.g. audio-format flags.
	ExtraArgs []string

	// Timeout bounds one fetch. Defaults to 15 minutes.
	Timeout time.Duration
}

var _ Fetcher = (*ExecFetcher)(nil)

// DefaultFetchTimeout bounds a single media download.
const DefaultFetchTimeout = 15 * time.Minute

func (f *ExecFetcher) bin() string {
	if f.Bin != "" {
		return f.Bin
	}
	return "yt-dlp"
}

// Fetch downloads the media into destDir named by its source id. The
// downloader picks the container extension, so the result is located by
// globbing for "<id>.*".
func (f *ExecFetcher) Fetch(ctx context.Context, rawURL, destDir string) (*Media, error) {
	sourceID, err := SourceIDFromURL(rawURL)
	if err != nil {
		return nil, &Error{Op: "Fetch", Provider: f.bin(), Err: err}
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outTemplate := filepath.Join(destDir, sourceID+".%(ext)s")
	args := append([]string{}, f.ExtraArgs...)
	args = append(args, "--no-playlist", "-o", outTemplate, rawURL)

	cmd := exec.CommandContext(ctx, f.bin(), args...)
	var output strings.Builder
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Op: "Fetch", Provider: f.bin(), Err: ctxErr}
		}
		return nil, &Error{Op: "Fetch", Provider: f.bin(), Err: classifyFetchOutput(output.String(), err)}
	}

	matches, err := filepath.Glob(filepath.Join(destDir, sourceID+".*"))
	if err != nil || len(matches) == 0 {
		return nil, &Error{Op: "Fetch", Provider: f.bin(), Err: fmt.Errorf("downloader produced no output file")}
	}

	return &Media{Path: matches[0], SourceID: sourceID}, nil
}

// classifyFetchOutput maps downloader stderr onto the error taxonomy so
// the UI can distinguish "retry" from "try another source".
func classifyFetchOutput(output string, runErr error) error {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "private video"),
		strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "has been removed"),
		strings.Contains(lower, "404"):
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, firstLine(output))
	case strings.Contains(lower, "copyright"),
		strings.Contains(lower, "blocked"):
		return fmt.Errorf("%w: %v", ErrContentDisallowed, firstLine(output))
	case strings.Contains(lower, "429"),
		strings.Contains(lower, "rate limit"):
		return fmt.Errorf("%w: %v", ErrThrottled, firstLine(output))
	default:
		return fmt.Errorf("downloader failed: %w: %s", runErr, firstLine(output))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// SourceIDFromURL derives a stable content identifier from a media URL.
// YouTube watch and short-link forms yield the video id; anything else
// falls back to a sanitized form of the final path element.
func SourceIDFromURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: unparseable url %q", ErrSourceUnavailable, rawURL)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if id := u.Query().Get("v"); id != "" {
			return id, nil
		}
		// /shorts/<id>, /embed/<id>, /live/<id>
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1], nil
		}
	case "youtu.be":
		if id := strings.Trim(u.Path, "/"); id != "" {
			return id, nil
		}
	}

	base := strings.Trim(filepath.Base(u.Path), "/")
	if base == "" || base == "." {
		return "", fmt.Errorf("%w: no identifiable media in url %q", ErrSourceUnavailable, rawURL)
	}
	return sanitizeID(host + "_" + base), nil
}

func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
