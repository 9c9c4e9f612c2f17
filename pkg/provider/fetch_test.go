package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceIDFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"watch param", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"shorts path", "https://www.youtube.com/shorts/abc123XYZ_-", "abc123XYZ_-"},
		{"embed path", "https://www.youtube.com/embed/abc123XYZ_-", "abc123XYZ_-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SourceIDFromURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("non-youtube host gets a stable derived id", func(t *testing.T) {
		a, err := SourceIDFromURL("https://example.com/episodes/42")
		require.NoError(t, err)
		b, err := SourceIDFromURL("https://example.com/episodes/42")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.NotEmpty(t, a)
	})

	t.Run("invalid url rejected", func(t *testing.T) {
		_, err := SourceIDFromURL("not a url")
		assert.Error(t, err)
	})
}

func TestClassifyFetchOutput(t *testing.T) {
	runErr := errors.New("exit status 1")

	tests := []struct {
		name   string
		output string
		want   error
	}{
		{"private video", "ERROR: Private video. Sign in if you've been granted access", ErrSourceUnavailable},
		{"not found", "ERROR: HTTP Error 404: Not Found", ErrSourceUnavailable},
		{"copyright block", "ERROR: This content is blocked on copyright grounds in your country", ErrContentDisallowed},
		{"rate limited", "ERROR: HTTP Error 429: Too Many Requests", ErrThrottled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyFetchOutput(tt.output, runErr)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("unrecognized output wraps the run error", func(t *testing.T) {
		err := classifyFetchOutput("something odd happened", runErr)
		require.Error(t, err)
		assert.ErrorIs(t, err, runErr)
	})
}
