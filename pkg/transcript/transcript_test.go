package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSegments() []Segment {
	return []Segment{
		{Text: "welcome back to the show", StartSeconds: 0, EndSeconds: 5},
		{Text: "today we talk about pricing", StartSeconds: 5, EndSeconds: 12},
		{Text: "and why founders get it wrong", StartSeconds: 12, EndSeconds: 20},
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"zero", 0, "00:00"},
		{"under a minute", 42, "00:42"},
		{"minutes", 61, "01:01"},
		{"rounds half up", 59.6, "01:00"},
		{"exactly one hour", 3600, "01:00:00"},
		{"hours", 3723, "01:02:03"},
		{"negative clamps", -5, "00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimestamp(tt.seconds))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    float64
		wantErr bool
	}{
		{"mm:ss", "01:30", 90, false},
		{"hh:mm:ss", "01:02:03", 3723, false},
		{"bare seconds", "75", 75, false},
		{"whitespace", " 02:00 ", 120, false},
		{"empty", "", 0, true},
		{"garbage", "ab:cd", 0, true},
		{"too many parts", "1:2:3:4", 0, true},
		{"negative part", "-1:30", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, value := range []string{"00:07", "12:34", "01:00:00", "02:15:09"} {
		secs, err := ParseTimestamp(value)
		require.NoError(t, err)
		assert.Equal(t, value, FormatTimestamp(secs))
	}
}

func TestExcerpt(t *testing.T) {
	segs := sampleSegments()

	t.Run("middle range", func(t *testing.T) {
		assert.Equal(t, "today we talk about pricing", Excerpt(segs, 6, 11))
	})

	t.Run("spanning boundary", func(t *testing.T) {
		got := Excerpt(segs, 4, 13)
		assert.Equal(t, "welcome back to the show today we talk about pricing and why founders get it wrong", got)
	})

	t.Run("outside transcript", func(t *testing.T) {
		assert.Empty(t, Excerpt(segs, 100, 200))
	})
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 20.0, Duration(sampleSegments()))
	assert.Equal(t, 0.0, Duration(nil))
}

func TestSegmentValidate(t *testing.T) {
	require.NoError(t, Segment{Text: "x", StartSeconds: 1, EndSeconds: 2}.Validate())
	require.Error(t, Segment{Text: "x", StartSeconds: 2, EndSeconds: 2}.Validate())
	require.Error(t, Segment{Text: "x", StartSeconds: -1, EndSeconds: 2}.Validate())
}

func TestWordIndex(t *testing.T) {
	idx := BuildWordIndex(sampleSegments())
	require.Equal(t, 16, idx.Len())

	t.Run("indices are sequential", func(t *testing.T) {
		for i, w := range idx.Words() {
			assert.Equal(t, i, w.Index)
		}
	})

	t.Run("words in range", func(t *testing.T) {
		// Overlap is inclusive: a word ending exactly at the range start
		// still counts.
		words := idx.WordsInRange(5, 12)
		require.NotEmpty(t, words)
		assert.Equal(t, "show", words[0].Text)
		assert.Equal(t, "today", words[1].Text)
	})

	t.Run("snap lands on word boundaries", func(t *testing.T) {
		start, end := idx.Snap(5.3, 11.2)
		words := idx.WordsInRange(5.3, 11.2)
		assert.Equal(t, words[0].StartSeconds, start)
		assert.Equal(t, words[len(words)-1].EndSeconds, end)
		assert.LessOrEqual(t, start, 5.3)
	})

	t.Run("snap outside transcript is identity", func(t *testing.T) {
		start, end := idx.Snap(100, 120)
		assert.Equal(t, 100.0, start)
		assert.Equal(t, 120.0, end)
	})

	t.Run("range text", func(t *testing.T) {
		assert.Equal(t, "welcome back to the show", idx.Text(0, 4.9))
	})
}
