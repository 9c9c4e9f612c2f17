// Package s3 implements blobstore.Store for AWS S3 and S3-compatible storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pursuelabs/segmentd/pkg/blobstore"
)

// Store implements blobstore.Store backed by a single S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ blobstore.Store = (*Store)(nil)

// Config configures an S3 store.
//
// Authentication uses the AWS SDK v2 default credential chain unless
// explicit credentials are provided. For S3-compatible stores (MinIO,
// Wasabi, DigitalOcean Spaces) set Endpoint and typically ForcePathStyle.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Prefix is prepended to every key, e.g. "artifacts/".
	Prefix string

	// Region is the AWS region. Defaults to us-east-1 for AWS S3 when not
	// resolvable from environment or profile.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string

	// Profile selects a shared-config profile. Empty uses the default chain.
	Profile string

	// AccessKeyID and SecretAccessKey are explicit credentials. If one is
	// set the other must be too; they take precedence over the chain.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs. Required for most
	// S3-compatible stores.
	ForcePathStyle bool
}

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 config: bucket name is required")
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return fmt.Errorf("s3 config: access key id and secret access key must be provided together")
	}
	return nil
}

// New creates an S3 store with the given configuration.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &blobstore.StoreError{Op: "New", Store: blobstore.StoreS3, Err: err}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: strings.TrimPrefix(cfg.Prefix, "/"),
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	// Let env/profile win; default only for plain AWS endpoints.
	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultAWSRegion
	}
	return awsCfg, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	full := s.fullKey(key)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", s.wrapError("Put", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, full), nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return nil, s.wrapError("Open", key, err)
	}
	return out.Body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return 0, s.wrapError("Stat", key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return s.wrapError("Delete", key, err)
	}
	return nil
}

func (s *Store) fullKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + key
}

// wrapError maps SDK errors onto the blobstore sentinel taxonomy.
func (s *Store) wrapError(op, key string, err error) error {
	mapped := err

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		mapped = blobstore.ErrNotFound
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			mapped = blobstore.ErrNotFound
		case "AccessDenied", "Forbidden":
			mapped = blobstore.ErrAccessDenied
		case "SlowDown", "ServiceUnavailable", "InternalError":
			mapped = blobstore.ErrStoreUnavailable
		}
	}

	return &blobstore.StoreError{Op: op, Store: blobstore.StoreS3, Key: key, Err: mapped}
}
