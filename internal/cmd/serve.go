package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pursuelabs/segmentd/internal/config"
	"github.com/pursuelabs/segmentd/internal/server"
	"github.com/pursuelabs/segmentd/internal/server/handlers"
	"github.com/pursuelabs/segmentd/pkg/blobstore"
	blobfile "github.com/pursuelabs/segmentd/pkg/blobstore/file"
	blobs3 "github.com/pursuelabs/segmentd/pkg/blobstore/s3"
	"github.com/pursuelabs/segmentd/pkg/cache"
	"github.com/pursuelabs/segmentd/pkg/job"
	"github.com/pursuelabs/segmentd/pkg/profile"
	"github.com/pursuelabs/segmentd/pkg/provider"
	"github.com/pursuelabs/segmentd/pkg/upload"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the segmentd HTTP service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	artifacts, err := buildBlobstore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = artifacts.Close() }()

	transcripts, err := buildCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = transcripts.Close() }()

	uploads, err := upload.NewManager(upload.Config{
		Root:             cfg.Uploads.Dir,
		MaxTotalSize:     cfg.Uploads.MaxTotalSize,
		DefaultChunkSize: cfg.Uploads.ChunkSize,
		AllowPatterns:    cfg.Uploads.AllowPatterns,
		Expiry:           cfg.Uploads.Expiry,
	}, artifacts, log)
	if err != nil {
		return err
	}

	transcriber, summarizer, fetcher, err := buildProviders(cfg)
	if err != nil {
		return err
	}

	jobStore, err := job.NewFileStore(cfg.Pipeline.JobsDir)
	if err != nil {
		return err
	}
	orch, err := job.NewOrchestrator(job.Config{
		Workers:    cfg.Pipeline.Workers,
		QueueDepth: cfg.Pipeline.QueueDepth,
		WorkDir:    cfg.Pipeline.WorkDir,
	}, job.Deps{
		Store:       jobStore,
		Transcripts: transcripts,
		Fetcher:     fetcher,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = orch.Close() }()

	profileStore, err := profile.NewFileStore(cfg.Profiles.Dir)
	if err != nil {
		return err
	}
	profiles, err := profile.NewService(profileStore, summarizer, log)
	if err != nil {
		return err
	}

	api := handlers.NewAPI(handlers.Deps{
		Jobs:     orch,
		Uploads:  uploads,
		Profiles: profiles,
		Log:      log,
	})

	health := handlers.NewHealthManager(versionInfo.Version)
	health.RegisterChecker("job_store", handlers.CheckerFunc(func(context.Context) error {
		_, err := jobStore.List()
		return err
	}))
	health.RegisterChecker("upload_store", handlers.CheckerFunc(func(context.Context) error {
		_, err := uploads.List()
		return err
	}))

	srv := server.New(cfg.Server.Host, cfg.Server.Port, api, server.Options{
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxRequestBody: cfg.Server.MaxRequestBody,
		Version:        versionInfo,
		Health:         health,
		Log:            log,
	})

	// Background housekeeping: purge abandoned upload sessions.
	go sweepUploads(ctx, uploads, cfg.Uploads.SweepInterval, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweepUploads(ctx context.Context, uploads *upload.Manager, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := uploads.Sweep(now)
			if err != nil {
				log.Warn("upload sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				log.Info("upload sweep removed abandoned sessions", zap.Int("removed", removed))
			}
		}
	}
}

func buildBlobstore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	switch cfg.Blobstore.Type {
	case blobstore.StoreFile:
		return blobfile.New(blobfile.Config{BaseDir: cfg.Blobstore.Dir})
	case blobstore.StoreS3:
		return blobs3.New(ctx, blobs3.Config{
			Bucket:          cfg.Blobstore.S3.Bucket,
			Prefix:          cfg.Blobstore.S3.Prefix,
			Region:          cfg.Blobstore.S3.Region,
			Endpoint:        cfg.Blobstore.S3.Endpoint,
			Profile:         cfg.Blobstore.S3.Profile,
			AccessKeyID:     cfg.Blobstore.S3.AccessKeyID,
			SecretAccessKey: cfg.Blobstore.S3.SecretAccessKey,
			ForcePathStyle:  cfg.Blobstore.S3.ForcePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blobstore type %q", cfg.Blobstore.Type)
	}
}

func buildCache(ctx context.Context, cfg *config.Config) (cache.TranscriptCache, error) {
	switch cfg.Cache.Type {
	case cache.TypeMemory:
		return cache.NewMemory(), nil
	case cache.TypeFile:
		return cache.NewFile(cfg.Cache.Dir)
	case cache.TypeRedis:
		return cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			TTL:      cfg.Cache.Redis.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}
}

func buildProviders(cfg *config.Config) (provider.Transcriber, provider.Summarizer, provider.Fetcher, error) {
	transcriber, err := provider.NewHTTPTranscriber(provider.TranscriberConfig{
		BaseURL:           cfg.Providers.Transcriber.BaseURL,
		APIKey:            cfg.Providers.Transcriber.APIKey,
		Timeout:           cfg.Providers.Transcriber.Timeout,
		RequestsPerMinute: cfg.Providers.Transcriber.RequestsPerMinute,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transcriber: %w", err)
	}

	promptSpec, err := provider.LoadPromptSpec(cfg.Providers.Summarizer.PromptSpecPath)
	if err != nil {
		return nil, nil, nil, err
	}
	summarizer, err := provider.NewHTTPSummarizer(provider.SummarizerConfig{
		BaseURL:           cfg.Providers.Summarizer.BaseURL,
		APIKey:            cfg.Providers.Summarizer.APIKey,
		Model:             cfg.Providers.Summarizer.Model,
		Timeout:           cfg.Providers.Summarizer.Timeout,
		RequestsPerMinute: cfg.Providers.Summarizer.RequestsPerMinute,
		PromptSpec:        promptSpec,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("summarizer: %w", err)
	}

	var fetcher provider.Fetcher
	if cfg.Providers.Fetch.Enabled {
		fetcher = &provider.ExecFetcher{
			Bin:     cfg.Providers.Fetch.Bin,
			Timeout: cfg.Providers.Fetch.Timeout,
		}
	}
	return transcriber, summarizer, fetcher, nil
}
