package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

func writeDeck(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 deck"), 0600))
	return path
}

func TestSubmitCmd_Use(t *testing.T) {
	assert.Equal(t, "submit [file]", submitCmd.Use)
}

func TestSubmitCmd_UploadsFile(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	path := writeDeck(t, "week1.pdf")

	out, err := execute("submit", path, "--subject", "physics", "--lecture", "lecture-01", "--title", "Kinematics")

	require.NoError(t, err)
	assert.Contains(t, out, "Submitted document doc-up as job job-up")
	require.Len(t, ts.upload.requests, 1)
	req := ts.upload.requests[0]
	assert.Equal(t, testScope, req.Scope)
	assert.Equal(t, "week1.pdf", req.Filename)
	assert.Equal(t, "Kinematics", req.Title)
	assert.Equal(t, []byte("%PDF-1.4 deck"), req.Data)
	assert.Empty(t, ts.ingestion.runCalls)
}

func TestSubmitCmd_Ref(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("submit", "--ref", "physics/lecture-01/uploads/week1.pdf",
		"-s", "physics", "-l", "lecture-01", "--pages", "12")

	require.NoError(t, err)
	assert.Contains(t, out, "as job job-1")
	require.Len(t, ts.ingestion.submitted, 1)
	assert.Equal(t, "physics/lecture-01/uploads/week1.pdf", ts.ingestion.submitted[0].SourceRef)
	assert.Equal(t, 12, ts.ingestion.submitted[0].DeclaredPages)
	assert.Empty(t, ts.upload.requests)
}

func TestSubmitCmd_NeedsFileOrRef(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("submit", "-s", "physics", "-l", "lecture-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either a file or --ref")

	_, err = execute("submit", writeDeck(t, "a.pdf"), "--ref", "x", "-s", "physics", "-l", "lecture-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either a file or --ref")
}

func TestSubmitCmd_RequiresScope(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("submit", writeDeck(t, "a.pdf"))

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSubmitCmd_RejectsUnsupportedFile(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("submit", writeDeck(t, "notes.txt"), "-s", "physics", "-l", "lecture-01")

	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.Empty(t, ts.upload.requests)
}

func TestSubmitCmd_RejectsLargeFile(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.upload.maxBytes = 4

	_, err := execute("submit", writeDeck(t, "big.pdf"), "-s", "physics", "-l", "lecture-01")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, ts.upload.requests)
}

func TestSubmitCmd_DuplicateSubmission(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.upload.err = domain.ErrDuplicateSubmission

	_, err := execute("submit", writeDeck(t, "a.pdf"), "-s", "physics", "-l", "lecture-01")

	assert.ErrorIs(t, err, domain.ErrDuplicateSubmission)
}

func TestSubmitCmd_WaitPrintsProgress(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	feed := &mockProgressFeed{ch: make(chan domain.ProgressEvent)}
	progressFeed = feed
	ts.ingestion.runFn = func(_ context.Context, jobID string) (*domain.JobStatus, error) {
		feed.ch <- domain.ProgressEvent{JobID: jobID, Stage: domain.StageClassifying, Percent: 20, Message: "page 2 of 4"}
		return &domain.JobStatus{JobID: jobID, Stage: domain.StageCompleted, Percent: 100}, nil
	}

	out, err := execute("submit", writeDeck(t, "a.pdf"), "-s", "physics", "-l", "lecture-01", "--wait")

	require.NoError(t, err)
	assert.Equal(t, []string{"job-up"}, ts.ingestion.runCalls)
	assert.Contains(t, out, "classifying")
	assert.Contains(t, out, "page 2 of 4")
	assert.Contains(t, out, "Stage:    completed (100%)")
}

func TestSubmitCmd_WaitReportsFailure(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.ingestion.runFn = func(_ context.Context, jobID string) (*domain.JobStatus, error) {
		return &domain.JobStatus{
			JobID: jobID, Stage: domain.StageFailed,
			FailureTag: domain.FailureTag("extraction_failed"), Error: "ocr crashed",
		}, nil
	}

	out, err := execute("submit", writeDeck(t, "a.pdf"), "-s", "physics", "-l", "lecture-01", "-w")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction_failed")
	assert.Contains(t, out, "Error:    ocr crashed")
}

func TestSubmitCmd_ServiceNotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	ingestionService = nil

	_, err := execute("submit", "--ref", "x", "-s", "physics", "-l", "lecture-01")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingestion service not configured")
}
