package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pursuelabs/segmentd/pkg/transcript"
)

// RedisConfig configures the shared-cache backend.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password is optional.
	Password string

	// DB selects the logical database.
	DB int

	// TTL expires entries. Zero means entries never expire.
	TTL time.Duration

	// KeyPrefix namespaces entries. Defaults to "segmentd:transcript:".
	KeyPrefix string
}

// Redis caches transcripts in a shared Redis instance so multiple
// service nodes reuse each other's transcription work.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ TranscriptCache = (*Redis)(nil)

// NewRedis connects to the server and verifies it responds.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "segmentd:transcript:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrUnavailable, cfg.Addr, err)
	}

	return &Redis{client: client, ttl: cfg.TTL, prefix: prefix}, nil
}

func (r *Redis) Get(ctx context.Context, sourceID string) ([]transcript.Segment, error) {
	data, err := r.client.Get(ctx, r.prefix+sourceID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var segs []transcript.Segment
	if err := json.Unmarshal(data, &segs); err != nil {
		return nil, ErrMiss
	}
	return segs, nil
}

func (r *Redis) Put(ctx context.Context, sourceID string, segments []transcript.Segment) error {
	data, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+sourceID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
