package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pursuelabs/segmentd/pkg/upload"
)

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "Inspect and clean up resumable upload sessions",
}

var uploadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List upload sessions",
	RunE:  runUploadsList,
}

var uploadsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove expired upload sessions",
	Long: `Remove upload sessions past the configured expiry window.

The server sweeps on its own timer; gc is for cleaning up after a
stopped server or forcing a sweep ahead of schedule.`,
	RunE: runUploadsGC,
}

func init() {
	rootCmd.AddCommand(uploadsCmd)
	uploadsCmd.AddCommand(uploadsListCmd)
	uploadsCmd.AddCommand(uploadsGCCmd)

	uploadsListCmd.Flags().Bool("json", false, "Output as JSON")
	uploadsGCCmd.Flags().Bool("dry-run", false, "Show how many sessions would be removed")
}

func openUploadManager(ctx context.Context) (*upload.Manager, error) {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return nil, err
	}
	artifacts, err := buildBlobstore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return upload.NewManager(upload.Config{
		Root:             cfg.Uploads.Dir,
		MaxTotalSize:     cfg.Uploads.MaxTotalSize,
		DefaultChunkSize: cfg.Uploads.ChunkSize,
		AllowPatterns:    cfg.Uploads.AllowPatterns,
		Expiry:           cfg.Uploads.Expiry,
	}, artifacts, log)
}

func runUploadsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	mgr, err := openUploadManager(cmd.Context())
	if err != nil {
		return err
	}
	sessions, err := mgr.List()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No upload sessions found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "UPLOAD ID\tFILENAME\tSTATUS\tCHUNKS\tSIZE\tUPDATED")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			shortID(s.UploadID),
			s.Filename,
			s.Status,
			len(s.ReceivedChunks),
			s.TotalChunks,
			s.TotalSize,
			s.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}
	return nil
}

func runUploadsGC(cmd *cobra.Command, _ []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, _, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	mgr, err := openUploadManager(cmd.Context())
	if err != nil {
		return err
	}

	result := gcResult{DryRun: dryRun, MaxAge: cfg.Uploads.Expiry.String()}
	if dryRun {
		sessions, err := mgr.List()
		if err != nil {
			return err
		}
		cutoff := time.Now().Add(-cfg.Uploads.Expiry)
		for _, s := range sessions {
			if s.Status == upload.SessionInProgress && s.UpdatedAt.Before(cutoff) {
				result.WouldDelete++
			}
		}
	} else {
		removed, err := mgr.Sweep(time.Now())
		if err != nil {
			return err
		}
		result.Deleted = removed
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
