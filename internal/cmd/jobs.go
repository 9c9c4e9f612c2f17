package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pursuelabs/segmentd/pkg/job"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and clean up pipeline jobs",
	Long: `Inspect job records written by the pipeline.

Job ids are stable and records live at predictable on-disk locations;
use --json for machine parsing.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show one job record",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect old terminal job records",
	RunE:  runJobsGC,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsGCCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
	jobsGCCmd.Flags().String("max-age", "168h", "Delete terminal jobs older than this duration")
	jobsGCCmd.Flags().Bool("dry-run", false, "Show how many jobs would be deleted")
}

func openJobStore() (*job.FileStore, error) {
	cfg, _, err := loadConfigAndLogger()
	if err != nil {
		return nil, err
	}
	return job.NewFileStore(cfg.Pipeline.JobsDir)
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := openJobStore()
	if err != nil {
		return err
	}
	jobs, err := store.List()
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tPODCAST\tSTATUS\tCLIPS\tCREATED\tUPDATED\tERROR")
	for _, j := range jobs {
		name := j.PodcastName
		if name == "" {
			name = "-"
		}
		errMsg := j.Error
		if errMsg == "" {
			errMsg = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			shortID(j.ID),
			name,
			j.Status,
			len(j.Clips),
			j.CreatedAt.UTC().Format(time.RFC3339),
			j.UpdatedAt.UTC().Format(time.RFC3339),
			errMsg,
		)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := openJobStore()
	if err != nil {
		return err
	}
	id, err := resolveJobID(store, args[0])
	if err != nil {
		return err
	}
	j, err := store.Get(id)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(j)
	}

	_, _ = fmt.Fprintf(os.Stdout, "job_id=%s\n", j.ID)
	if j.PodcastName != "" {
		_, _ = fmt.Fprintf(os.Stdout, "podcast=%s\n", j.PodcastName)
	}
	_, _ = fmt.Fprintf(os.Stdout, "status=%s\n", j.Status)
	if j.ProgressMessage != "" {
		_, _ = fmt.Fprintf(os.Stdout, "progress=%s\n", j.ProgressMessage)
	}
	if j.Error != "" {
		_, _ = fmt.Fprintf(os.Stdout, "error=%s\n", j.Error)
	}
	_, _ = fmt.Fprintf(os.Stdout, "segments=%d\n", len(j.Transcript))
	_, _ = fmt.Fprintf(os.Stdout, "clips=%d\n", len(j.Clips))
	_, _ = fmt.Fprintf(os.Stdout, "created_at=%s\n", j.CreatedAt.UTC().Format(time.RFC3339))
	_, _ = fmt.Fprintf(os.Stdout, "updated_at=%s\n", j.UpdatedAt.UTC().Format(time.RFC3339))
	return nil
}

type gcResult struct {
	Deleted     int    `json:"deleted"`
	WouldDelete int    `json:"would_delete"`
	DryRun      bool   `json:"dry_run"`
	MaxAge      string `json:"max_age"`
}

func runJobsGC(cmd *cobra.Command, _ []string) error {
	maxAgeStr, _ := cmd.Flags().GetString("max-age")
	maxAge, err := time.ParseDuration(strings.TrimSpace(maxAgeStr))
	if err != nil {
		return fmt.Errorf("invalid --max-age: %w", err)
	}
	if maxAge <= 0 {
		return fmt.Errorf("--max-age must be > 0")
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	store, err := openJobStore()
	if err != nil {
		return err
	}
	jobs, err := store.List()
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	result := gcResult{DryRun: dryRun, MaxAge: maxAge.String()}
	for _, j := range jobs {
		if !j.Status.Terminal() || j.UpdatedAt.After(cutoff) {
			continue
		}
		if dryRun {
			result.WouldDelete++
			continue
		}
		if err := store.Delete(j.ID); err != nil {
			return fmt.Errorf("delete job %s: %w", j.ID, err)
		}
		result.Deleted++
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// resolveJobID accepts a full id or a unique prefix from the table view.
func resolveJobID(store *job.FileStore, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("job_id is required")
	}

	if _, err := store.Get(input); err == nil {
		return input, nil
	}

	jobs, err := store.List()
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, j := range jobs {
		if strings.HasPrefix(j.ID, input) {
			matches = append(matches, j.ID)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("job not found: %s", input)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("job id prefix is ambiguous (%d matches); use the full job_id", len(matches))
	}
	return matches[0], nil
}
