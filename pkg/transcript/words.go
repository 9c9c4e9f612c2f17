package transcript

import "strings"

// Word is a single word with interpolated timestamps and its index in the
// full transcript.
type Word struct {
	Text         string  `json:"text"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Index        int     `json:"index"`
}

// WordIndex is a word-level view of a transcript, used for snapping clip
// boundaries to word edges instead of raw segment edges.
type WordIndex struct {
	words []Word
}

// BuildWordIndex expands segments into individual words. Providers rarely
// return per-word timings, so each word gets a linear share of its
// segment's duration.
func BuildWordIndex(segments []Segment) *WordIndex {
	idx := &WordIndex{}
	for _, seg := range segments {
		fields := strings.Fields(seg.Text)
		if len(fields) == 0 {
			continue
		}
		span := seg.EndSeconds - seg.StartSeconds
		perWord := span / float64(len(fields))
		for i, text := range fields {
			start := seg.StartSeconds + float64(i)*perWord
			idx.words = append(idx.words, Word{
				Text:         text,
				StartSeconds: start,
				EndSeconds:   start + perWord,
				Index:        len(idx.words),
			})
		}
	}
	return idx
}

// Len returns the total word count.
func (w *WordIndex) Len() int { return len(w.words) }

// Words returns all words in transcript order.
func (w *WordIndex) Words() []Word { return w.words }

// WordsInRange returns the words overlapping [startSeconds, endSeconds].
func (w *WordIndex) WordsInRange(startSeconds, endSeconds float64) []Word {
	out := make([]Word, 0, 64)
	for _, word := range w.words {
		if word.EndSeconds < startSeconds || word.StartSeconds > endSeconds {
			continue
		}
		out = append(out, word)
	}
	return out
}

// Snap adjusts a requested clip range to the nearest word boundaries: the
// start of the first overlapping word and the end of the last. A range that
// covers no words is returned unchanged.
func (w *WordIndex) Snap(startSeconds, endSeconds float64) (float64, float64) {
	in := w.WordsInRange(startSeconds, endSeconds)
	if len(in) == 0 {
		return startSeconds, endSeconds
	}
	return in[0].StartSeconds, in[len(in)-1].EndSeconds
}

// Text joins the words overlapping the range, preserving order.
func (w *WordIndex) Text(startSeconds, endSeconds float64) string {
	in := w.WordsInRange(startSeconds, endSeconds)
	parts := make([]string, 0, len(in))
	for _, word := range in {
		parts = append(parts, word.Text)
	}
	return strings.Join(parts, " ")
}
