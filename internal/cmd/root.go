// Package cmd defines the segmentd command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pursuelabs/segmentd/internal/config"
	"github.com/pursuelabs/segmentd/internal/logging"
	"github.com/pursuelabs/segmentd/internal/server/handlers"
	"go.uber.org/zap"
)

var versionInfo = handlers.VersionInfo{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected via -ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "segmentd",
	Short: "Podcast clip generation service",
	Long: `segmentd turns long podcast episodes into shareable clip candidates.

It runs a pipeline per submitted episode (download, transcribe, analyze)
behind a polling HTTP API, accepts large media files through resumable
chunked uploads, and manages audience profiles used to steer clip
selection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a segmentd.yaml config file")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfigAndLogger is the shared bootstrap for every subcommand.
func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
