package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown provider or file type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrDuplicateSubmission indicates a non-terminal job already exists
	// for the submitted document. It is never retried.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrTransientIO indicates a storage or network hiccup.
	// Retried with backoff up to the stage's attempt budget.
	ErrTransientIO = errors.New("transient I/O error")

	// ErrClassification indicates the region classifier could not process a page.
	// Retried, then the page degrades to a single text region.
	ErrClassification = errors.New("classification failed")

	// ErrExtraction indicates the text extractor could not process a page.
	// Retried, then the page degrades to empty text.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmbedding indicates the embedding model rejected an input.
	// Retried, then the affected chunk is skipped.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndex indicates the knowledge index could not be written or queried.
	// Retried, then the job fails since unindexed content is unusable.
	ErrIndex = errors.New("index operation failed")

	// ErrPageCountMismatch indicates the rendered page count differs from the declared one.
	ErrPageCountMismatch = errors.New("page count mismatch")

	// ErrJobTerminal indicates an operation was attempted on a completed or failed job.
	ErrJobTerminal = errors.New("job is in a terminal state")

	// ErrJobLeased indicates another worker holds the lease on a job.
	ErrJobLeased = errors.New("job is leased by another worker")

	// ErrLLMUnavailable indicates the generation model is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrWebSearchUnavailable indicates no web search collaborator is configured.
	ErrWebSearchUnavailable = errors.New("web search unavailable")

	// ErrRateLimited indicates an upstream API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// StageError is the structured failure recorded when a job leaves the pipeline.
// The tag is preserved on the job for diagnostics.
type StageError struct {
	Tag FailureTag
	Err error
}

// NewStageError wraps err with a failure tag.
func NewStageError(tag FailureTag, err error) *StageError {
	return &StageError{Tag: tag, Err: err}
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return string(e.Tag)
	}
	return fmt.Sprintf("%s: %v", e.Tag, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err belongs to the retryable part of the taxonomy.
// Per-call deadline expiry counts as retryable. Duplicate submissions and
// invalid input are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateSubmission) || errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPageCountMismatch) {
		return false
	}
	return errors.Is(err, ErrTransientIO) ||
		errors.Is(err, ErrClassification) ||
		errors.Is(err, ErrExtraction) ||
		errors.Is(err, ErrEmbedding) ||
		errors.Is(err, ErrIndex) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}
