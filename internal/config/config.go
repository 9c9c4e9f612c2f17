// Package config loads service configuration from an optional YAML file
// and SEGMENTD_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pursuelabs/segmentd/pkg/blobstore"
	"github.com/pursuelabs/segmentd/pkg/cache"
)

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxRequestBody bounds any single request body, sized to hold one
	// upload chunk plus form overhead.
	MaxRequestBody int64 `mapstructure:"max_request_body"`
}

// LoggingConfig selects log level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UploadsConfig tunes the resumable chunked transfer endpoint.
type UploadsConfig struct {
	Dir           string        `mapstructure:"dir"`
	MaxTotalSize  int64         `mapstructure:"max_total_size"`
	ChunkSize     int64         `mapstructure:"chunk_size"`
	Expiry        time.Duration `mapstructure:"expiry"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	AllowPatterns []string      `mapstructure:"allow_patterns"`
}

// PipelineConfig tunes the job orchestrator.
type PipelineConfig struct {
	JobsDir    string `mapstructure:"jobs_dir"`
	WorkDir    string `mapstructure:"work_dir"`
	Workers    int    `mapstructure:"workers"`
	QueueDepth int    `mapstructure:"queue_depth"`
}

// FetchConfig tunes the media downloader.
type FetchConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Bin     string        `mapstructure:"bin"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TranscriberConfig tunes the speech-to-text client.
type TranscriberConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// SummarizerConfig tunes the language-model client.
type SummarizerConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	PromptSpecPath    string        `mapstructure:"prompt_spec_path"`
}

// ProvidersConfig groups the external collaborators.
type ProvidersConfig struct {
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Summarizer  SummarizerConfig  `mapstructure:"summarizer"`
}

// RedisConfig configures the shared transcript cache backend.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// CacheConfig selects the transcript cache backend.
type CacheConfig struct {
	Type  cache.Type  `mapstructure:"type"`
	Dir   string      `mapstructure:"dir"`
	Redis RedisConfig `mapstructure:"redis"`
}

// S3Config configures the S3 artifact backend.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// BlobstoreConfig selects where completed upload artifacts land.
type BlobstoreConfig struct {
	Type blobstore.StoreType `mapstructure:"type"`
	Dir  string              `mapstructure:"dir"`
	S3   S3Config            `mapstructure:"s3"`
}

// ProfilesConfig tunes audience profile storage.
type ProfilesConfig struct {
	Dir string `mapstructure:"dir"`
}

// Config is the root configuration tree.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Blobstore BlobstoreConfig `mapstructure:"blobstore"`
	Profiles  ProfilesConfig  `mapstructure:"profiles"`
}

const (
	defaultChunkSize    = 10 * 1024 * 1024
	defaultMaxTotalSize = 4 * 1024 * 1024 * 1024
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_request_body", int64(defaultChunkSize+1024*1024))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("uploads.max_total_size", int64(defaultMaxTotalSize))
	v.SetDefault("uploads.chunk_size", int64(defaultChunkSize))
	v.SetDefault("uploads.expiry", 24*time.Hour)
	v.SetDefault("uploads.sweep_interval", time.Hour)
	v.SetDefault("uploads.allow_patterns", []string{"*.mp3", "*.mp4", "*.m4a", "*.wav", "*.webm", "*.mkv"})

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_depth", 64)

	v.SetDefault("providers.fetch.enabled", true)
	v.SetDefault("providers.fetch.bin", "yt-dlp")
	v.SetDefault("providers.fetch.timeout", 15*time.Minute)
	// Empty-string defaults register the keys with viper so SEGMENTD_*
	// environment overrides bind without a config file entry.
	v.SetDefault("providers.transcriber.base_url", "")
	v.SetDefault("providers.transcriber.api_key", "")
	v.SetDefault("providers.transcriber.timeout", 10*time.Minute)
	v.SetDefault("providers.transcriber.requests_per_minute", 0)
	v.SetDefault("providers.summarizer.base_url", "")
	v.SetDefault("providers.summarizer.api_key", "")
	v.SetDefault("providers.summarizer.model", "")
	v.SetDefault("providers.summarizer.timeout", 3*time.Minute)
	v.SetDefault("providers.summarizer.requests_per_minute", 0)
	v.SetDefault("providers.summarizer.prompt_spec_path", "")

	v.SetDefault("cache.type", string(cache.TypeFile))
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.ttl", time.Duration(0))

	v.SetDefault("blobstore.type", string(blobstore.StoreFile))
	v.SetDefault("blobstore.s3.bucket", "")
	v.SetDefault("blobstore.s3.region", "")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".segmentd"
	}
	return filepath.Join(home, ".segmentd")
}

// Load reads configuration from the optional file at path (or from a
// segmentd.yaml discovered in the working directory when path is empty),
// applies SEGMENTD_* environment overrides, and fills derived defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SEGMENTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("segmentd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultDataDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDerivedDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDerivedDefaults fills directory paths that default to
// subdirectories of data_dir.
func (c *Config) applyDerivedDefaults() {
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = filepath.Join(c.DataDir, "uploads")
	}
	if c.Pipeline.JobsDir == "" {
		c.Pipeline.JobsDir = filepath.Join(c.DataDir, "jobs")
	}
	if c.Pipeline.WorkDir == "" {
		c.Pipeline.WorkDir = filepath.Join(c.DataDir, "media")
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(c.DataDir, "transcripts")
	}
	if c.Blobstore.Dir == "" {
		c.Blobstore.Dir = filepath.Join(c.DataDir, "artifacts")
	}
	if c.Profiles.Dir == "" {
		c.Profiles.Dir = filepath.Join(c.DataDir, "profiles")
	}
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Uploads.ChunkSize <= 0 {
		return fmt.Errorf("uploads.chunk_size must be positive")
	}
	if c.Uploads.MaxTotalSize < c.Uploads.ChunkSize {
		return fmt.Errorf("uploads.max_total_size smaller than one chunk")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive")
	}
	switch c.Cache.Type {
	case cache.TypeMemory, cache.TypeFile:
	case cache.TypeRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown cache.type %q", c.Cache.Type)
	}
	switch c.Blobstore.Type {
	case blobstore.StoreFile:
	case blobstore.StoreS3:
		if c.Blobstore.S3.Bucket == "" {
			return fmt.Errorf("blobstore.s3.bucket is required for the s3 blobstore")
		}
	default:
		return fmt.Errorf("unknown blobstore.type %q", c.Blobstore.Type)
	}
	return nil
}
