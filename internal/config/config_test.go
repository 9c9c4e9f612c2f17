package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pursuelabs/segmentd/pkg/cache"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, int64(10*1024*1024), cfg.Uploads.ChunkSize)
	assert.Equal(t, int64(4*1024*1024*1024), cfg.Uploads.MaxTotalSize)
	assert.Equal(t, 24*time.Hour, cfg.Uploads.Expiry)
	assert.Contains(t, cfg.Uploads.AllowPatterns, "*.mp3")

	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 64, cfg.Pipeline.QueueDepth)

	assert.Equal(t, "yt-dlp", cfg.Providers.Fetch.Bin)
	assert.Equal(t, 15*time.Minute, cfg.Providers.Fetch.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Providers.Transcriber.Timeout)
	assert.Equal(t, 3*time.Minute, cfg.Providers.Summarizer.Timeout)

	assert.Equal(t, cache.TypeFile, cfg.Cache.Type)

	// Directory paths derive from data_dir when unset.
	assert.Equal(t, filepath.Join(cfg.DataDir, "uploads"), cfg.Uploads.Dir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "jobs"), cfg.Pipeline.JobsDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "artifacts"), cfg.Blobstore.Dir)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/segmentd
server:
  host: 0.0.0.0
  port: 9000
logging:
  level: debug
  format: console
uploads:
  chunk_size: 5242880
pipeline:
  workers: 8
cache:
  type: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, int64(5242880), cfg.Uploads.ChunkSize)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, cache.TypeMemory, cfg.Cache.Type)
	assert.Equal(t, filepath.Join("/var/lib/segmentd", "jobs"), cfg.Pipeline.JobsDir)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEGMENTD_SERVER_PORT", "7070")
	t.Setenv("SEGMENTD_LOGGING_LEVEL", "warn")
	t.Setenv("SEGMENTD_PROVIDERS_TRANSCRIBER_BASE_URL", "https://stt.example.com")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "https://stt.example.com", cfg.Providers.Transcriber.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"redis cache without addr", "cache:\n  type: redis\n"},
		{"unknown cache type", "cache:\n  type: memcached\n"},
		{"s3 blobstore without bucket", "blobstore:\n  type: s3\n"},
		{"zero workers", "pipeline:\n  workers: -1\n"},
		{"max smaller than chunk", "uploads:\n  max_total_size: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segmentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
