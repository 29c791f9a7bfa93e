package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

var (
	submitSubject string
	submitLecture string
	submitTitle   string
	submitPages   int
	submitRef     string
	submitWait    bool
)

var submitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Submit a lecture deck for ingestion",
	Long: `Uploads a PDF slide deck into a lecture and queues it for ingestion.

Use --ref instead of a file to resubmit a document already in the blob store.
With --wait the deck is processed in this process and progress is printed;
otherwise the job is picked up by a running "lectern serve" or "lectern watch".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubmit,
}

func init() {
	scopeFlags(submitCmd, &submitSubject, &submitLecture)
	submitCmd.Flags().StringVar(&submitTitle, "title", "", "display title (default: file name)")
	submitCmd.Flags().IntVar(&submitPages, "pages", 0, "declared page count, checked against the deck")
	submitCmd.Flags().StringVar(&submitRef, "ref", "", "blob reference of an already uploaded document")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "process the deck now and wait for the result")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return fmt.Errorf("ingestion %w", errNotConfigured)
	}
	if (len(args) == 0) == (submitRef == "") {
		return errors.New("provide either a file or --ref")
	}

	scope, err := domain.NewScope(submitSubject, submitLecture)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var res *driving.SubmitResult
	if submitRef != "" {
		res, err = ingestionService.SubmitDocument(ctx, driving.SubmitRequest{
			Scope:         scope,
			SourceRef:     submitRef,
			Title:         submitTitle,
			DeclaredPages: submitPages,
		})
	} else {
		res, err = uploadFile(ctx, scope, args[0])
	}
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	cmd.Printf("Submitted document %s as job %s\n", res.DocumentID, res.JobID)
	if !submitWait {
		return nil
	}
	return waitForJob(cmd, res.JobID)
}

func uploadFile(ctx context.Context, scope domain.Scope, path string) (*driving.SubmitResult, error) {
	if uploadService == nil {
		return nil, fmt.Errorf("upload %w", errNotConfigured)
	}
	if !uploadService.Accepts(path) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > uploadService.MaxBytes() {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", domain.ErrInvalidInput, path, uploadService.MaxBytes())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return uploadService.Upload(ctx, driving.UploadRequest{
		Scope:         scope,
		Filename:      filepath.Base(path),
		Data:          data,
		Title:         submitTitle,
		DeclaredPages: submitPages,
	})
}

// waitForJob drives the job in this process, printing progress as it goes.
func waitForJob(cmd *cobra.Command, jobID string) error {
	ctx := cmd.Context()

	var events <-chan domain.ProgressEvent
	if progressFeed != nil {
		ch, cancel := progressFeed.Subscribe(jobID, 0)
		defer cancel()
		events = ch
	}

	type result struct {
		status *domain.JobStatus
		err    error
	}
	done := make(chan result, 1)
	go func() {
		st, err := ingestionService.Run(ctx, jobID)
		done <- result{st, err}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			cmd.Printf("  %-12s %3d%%  %s\n", ev.Stage, ev.Percent, ev.Message)
		case r := <-done:
			if r.err != nil {
				return fmt.Errorf("processing failed: %w", r.err)
			}
			printStatus(cmd, r.status)
			if r.status.Stage == domain.StageFailed {
				return fmt.Errorf("job %s failed: %s", jobID, r.status.FailureTag)
			}
			return nil
		}
	}
}
