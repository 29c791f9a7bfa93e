package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

var (
	statusJSON bool
	jobsStages []string
	jobsJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show the status of an ingestion job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List ingestion jobs",
	Long: `Lists ingestion jobs, oldest first. Filter with --stage, for example
--stage failed or --stage queued,extracting.`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel an ingestion job",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	jobsCmd.Flags().StringSliceVar(&jobsStages, "stage", nil, "only list jobs in these stages")
	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "output jobs as JSON")
	rootCmd.AddCommand(statusCmd, jobsCmd, cancelCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return fmt.Errorf("ingestion %w", errNotConfigured)
	}
	st, err := ingestionService.GetJobStatus(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("getting job status: %w", err)
	}
	if statusJSON {
		return printJSON(cmd, st)
	}
	printStatus(cmd, st)
	return nil
}

func runJobs(cmd *cobra.Command, _ []string) error {
	if ingestionService == nil {
		return fmt.Errorf("ingestion %w", errNotConfigured)
	}
	var stages []domain.Stage
	for _, s := range jobsStages {
		stage := domain.Stage(strings.ToLower(strings.TrimSpace(s)))
		if !stage.IsValid() {
			return fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidInput, s)
		}
		stages = append(stages, stage)
	}

	jobs, err := ingestionService.ListJobs(cmd.Context(), stages...)
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}
	if jobsJSON {
		return printJSON(cmd, jobs)
	}
	if len(jobs) == 0 {
		cmd.Println("No jobs found.")
		return nil
	}
	for i := range jobs {
		j := &jobs[i]
		cmd.Printf("%s  %-11s %3d%%  %s  %s\n",
			j.JobID, j.Stage, j.Percent, j.Scope, j.UpdatedAt.Local().Format(time.DateTime))
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return fmt.Errorf("ingestion %w", errNotConfigured)
	}
	if err := ingestionService.Cancel(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("cancel failed: %w", err)
	}
	cmd.Printf("Cancelled job %s\n", args[0])
	return nil
}

func printStatus(cmd *cobra.Command, st *domain.JobStatus) {
	cmd.Printf("Job:      %s\n", st.JobID)
	cmd.Printf("Document: %s\n", st.DocumentID)
	cmd.Printf("Scope:    %s\n", st.Scope)
	cmd.Printf("Stage:    %s (%d%%)\n", st.Stage, st.Percent)
	if st.Message != "" {
		cmd.Printf("Message:  %s\n", st.Message)
	}
	if st.Stage == domain.StageFailed {
		cmd.Printf("Failure:  %s\n", st.FailureTag)
		if st.Error != "" {
			cmd.Printf("Error:    %s\n", st.Error)
		}
	}
	if st.RetryCount > 0 {
		cmd.Printf("Retries:  %d\n", st.RetryCount)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
