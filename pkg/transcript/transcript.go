// Package transcript holds the time-aligned transcript model shared by the
// job pipeline and the clip editor endpoints.
//
// Times are plain seconds-since-start internally. The MM:SS / HH:MM:SS
// rendering used by external interfaces lives in FormatTimestamp and
// ParseTimestamp so every boundary agrees on one format.
package transcript

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one ordered piece of a transcript. Segment order is
// chronological; the index of a segment in its slice is significant.
type Segment struct {
	Text         string  `json:"text"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// Validate checks the basic segment invariant.
func (s Segment) Validate() error {
	if s.StartSeconds < 0 {
		return fmt.Errorf("segment start %.3f is negative", s.StartSeconds)
	}
	if s.EndSeconds <= s.StartSeconds {
		return fmt.Errorf("segment end %.3f is not after start %.3f", s.EndSeconds, s.StartSeconds)
	}
	return nil
}

// Duration returns the end of the last segment, which is the total
// transcript length for well-formed input.
func Duration(segments []Segment) float64 {
	var total float64
	for _, seg := range segments {
		if seg.EndSeconds > total {
			total = seg.EndSeconds
		}
	}
	return total
}

// FullText joins all segment texts in order with single spaces.
func FullText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// Excerpt returns the transcript text covered by [startSeconds, endSeconds].
// A segment contributes when any part of it overlaps the range.
func Excerpt(segments []Segment, startSeconds, endSeconds float64) string {
	parts := make([]string, 0, 16)
	for _, seg := range segments {
		if seg.EndSeconds < startSeconds || seg.StartSeconds > endSeconds {
			continue
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// FormatTimestamp renders seconds as MM:SS, or HH:MM:SS once the value
// reaches an hour. Negative values clamp to 00:00.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds + 0.5)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// ParseTimestamp parses MM:SS or HH:MM:SS into seconds. A bare number is
// accepted as plain seconds for convenience.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("timestamp is empty")
	}

	parts := strings.Split(value, ":")
	if len(parts) == 1 {
		secs, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || secs < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		return secs, nil
	}
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}

	var total float64
	for _, part := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		total = total*60 + n
	}
	return total, nil
}
