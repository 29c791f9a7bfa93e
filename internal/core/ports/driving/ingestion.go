package driving

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// SubmitRequest describes a document handed to the ingestion pipeline.
type SubmitRequest struct {
	// Scope is the (subject, lecture) the document belongs to.
	Scope domain.Scope

	// SourceRef is the blob reference of the uploaded document.
	SourceRef string

	// Title is an optional display name. Defaults to the base of SourceRef.
	Title string

	// DeclaredPages is the page count declared at upload. Zero adopts
	// the rasterizer's count.
	DeclaredPages int
}

// SubmitResult is returned by SubmitDocument.
type SubmitResult struct {
	DocumentID string
	JobID      string
}

// IngestionService is the driving port for document ingestion.
type IngestionService interface {
	// SubmitDocument registers a document and queues a job for it.
	// Resubmitting a document whose last job finished reprocesses it from
	// scratch.
	// Fails with domain.ErrDuplicateSubmission while a non-terminal job
	// exists for the same document.
	SubmitDocument(ctx context.Context, req SubmitRequest) (*SubmitResult, error)

	// GetJobStatus returns a snapshot of a job.
	// Returns domain.ErrNotFound for unknown jobs.
	GetJobStatus(ctx context.Context, jobID string) (*domain.JobStatus, error)

	// ListJobs returns jobs filtered by stage, oldest first.
	ListJobs(ctx context.Context, stages ...domain.Stage) ([]domain.JobStatus, error)

	// Cancel requests cancellation of a job. The job moves to failed
	// with the cancelled tag before its next unit of work.
	Cancel(ctx context.Context, jobID string) error

	// DeleteScopeData removes every document, artifact, blob and index
	// entry inside scope. Job records are kept.
	DeleteScopeData(ctx context.Context, scope domain.Scope) error

	// Run drives a job to a terminal state in the calling goroutine and
	// returns its final status.
	Run(ctx context.Context, jobID string) (*domain.JobStatus, error)

	// ListDocuments returns the documents inside scope.
	ListDocuments(ctx context.Context, scope domain.Scope) ([]domain.Document, error)
}

// UploadRequest is a local file handed over for ingestion.
type UploadRequest struct {
	Scope         domain.Scope
	Filename      string
	Data          []byte
	Title         string
	DeclaredPages int
}

// UploadService stores uploaded files and submits them for ingestion.
type UploadService interface {
	// Upload validates and stores the file under the scope's uploads
	// prefix, then submits it. Returns domain.ErrUnsupportedType for
	// rejected file types and domain.ErrInvalidInput for oversized files.
	Upload(ctx context.Context, req UploadRequest) (*SubmitResult, error)

	// Accepts reports whether a file name has an accepted extension.
	Accepts(filename string) bool

	// MaxBytes returns the upload size limit.
	MaxBytes() int64
}
