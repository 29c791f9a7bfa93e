package domain

import "time"

// Stage is a step of the ingestion state machine.
type Stage string

// Pipeline stages in execution order, plus the failure state.
const (
	StageQueued      Stage = "queued"
	StageRasterizing Stage = "rasterizing"
	StageClassifying Stage = "classifying"
	StageExtracting  Stage = "extracting"
	StageChunking    Stage = "chunking"
	StageEmbedding   Stage = "embedding"
	StageIndexing    Stage = "indexing"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// pipeline lists the forward-moving stages.
var pipeline = []Stage{
	StageQueued,
	StageRasterizing,
	StageClassifying,
	StageExtracting,
	StageChunking,
	StageEmbedding,
	StageIndexing,
	StageCompleted,
}

// stageBands maps each working stage to its [start, end) percent band.
var stageBands = map[Stage][2]int{
	StageQueued:      {0, 0},
	StageRasterizing: {0, 10},
	StageClassifying: {10, 30},
	StageExtracting:  {30, 50},
	StageChunking:    {50, 60},
	StageEmbedding:   {60, 85},
	StageIndexing:    {85, 99},
	StageCompleted:   {100, 100},
}

// Stages returns the forward-moving stages in order.
func Stages() []Stage {
	out := make([]Stage, len(pipeline))
	copy(out, pipeline)
	return out
}

// IsValid returns true if the stage is recognised.
func (s Stage) IsValid() bool {
	if s == StageFailed {
		return true
	}
	_, ok := stageBands[s]
	return ok
}

// IsTerminal returns true for completed and failed.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Next returns the stage that follows s. Terminal stages return themselves.
func (s Stage) Next() Stage {
	for i, st := range pipeline {
		if st == s && i+1 < len(pipeline) {
			return pipeline[i+1]
		}
	}
	return s
}

// Percent maps done/total units of the stage onto the overall 0-100 scale.
func (s Stage) Percent(done, total int) int {
	band, ok := stageBands[s]
	if !ok {
		return 0
	}
	if total <= 0 || done <= 0 {
		return band[0]
	}
	if done > total {
		done = total
	}
	return band[0] + (band[1]-band[0])*done/total
}

// FailureTag returns the tag recorded when the stage fails.
func (s Stage) FailureTag() FailureTag {
	switch s {
	case StageQueued, StageRasterizing:
		return TagRasterize
	case StageClassifying:
		return TagClassify
	case StageExtracting:
		return TagExtract
	case StageChunking:
		return TagExtract
	case StageEmbedding:
		return TagEmbed
	case StageIndexing:
		return TagIndex
	default:
		return ""
	}
}

// String returns the string representation.
func (s Stage) String() string {
	return string(s)
}

// FailureTag is the structured error tag preserved on a failed job.
type FailureTag string

// Failure tags.
const (
	TagRasterize FailureTag = "rasterize_error"
	TagClassify  FailureTag = "classify_error"
	TagExtract   FailureTag = "extract_error"
	TagEmbed     FailureTag = "embed_error"
	TagIndex     FailureTag = "index_error"
	TagCancelled FailureTag = "cancelled"
)

// Job tracks one Document's traversal through the pipeline.
// Jobs are retained after reaching a terminal stage and are never
// resurrected automatically.
type Job struct {
	// ID is the unique identifier for the job.
	ID string

	// DocumentID links to the processed Document.
	DocumentID string

	// Scope is the document's subject/lecture.
	Scope Scope

	// Stage is the current stage.
	Stage Stage

	// Percent is the overall completion, 0-100. Never decreases.
	Percent int

	// Message is a human-readable progress note, e.g. "page 9 of 20".
	Message string

	// Done and Total count units of work for the current stage.
	Done  int
	Total int

	// FailureTag is set when Stage is StageFailed.
	FailureTag FailureTag

	// LastError is the most recent error message.
	LastError string

	// RetryCount is the number of retried attempts across all stages.
	RetryCount int

	// CancelRequested is the advisory cancellation flag.
	CancelRequested bool

	CreatedAt time.Time
	UpdatedAt time.Time

	// EndedAt is when the job reached a terminal stage.
	EndedAt time.Time

	// Owner and LeaseUntil describe the lease of the worker advancing the
	// job. They are written only through JobStore.Claim and Release; Put
	// leaves them untouched.
	Owner      string
	LeaseUntil time.Time
}

// LeasedAt reports whether some worker holds a live lease on the job.
func (j *Job) LeasedAt(now time.Time) bool {
	return j.Owner != "" && now.Before(j.LeaseUntil)
}

// IsTerminal returns true if the job is completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Stage.IsTerminal()
}

// SetProgress records done/total for the current stage and raises Percent.
// Percent is never lowered.
func (j *Job) SetProgress(done, total int, message string) {
	j.Done, j.Total = done, total
	if p := j.Stage.Percent(done, total); p > j.Percent {
		j.Percent = p
	}
	j.Message = message
}

// Fail moves the job to StageFailed with the given tag.
// Percent is left as it was.
func (j *Job) Fail(tag FailureTag, err error, now time.Time) {
	j.Stage = StageFailed
	j.FailureTag = tag
	if err != nil {
		j.LastError = err.Error()
	}
	j.Message = string(tag)
	j.UpdatedAt = now
	j.EndedAt = now
}

// JobStatus is the externally visible view of a job.
type JobStatus struct {
	JobID      string
	DocumentID string
	Scope      Scope
	Stage      Stage
	Percent    int
	Message    string
	FailureTag FailureTag
	Error      string
	RetryCount int
	UpdatedAt  time.Time
}

// Status returns the externally visible view of the job.
func (j *Job) Status() JobStatus {
	return JobStatus{
		JobID:      j.ID,
		DocumentID: j.DocumentID,
		Scope:      j.Scope,
		Stage:      j.Stage,
		Percent:    j.Percent,
		Message:    j.Message,
		FailureTag: j.FailureTag,
		Error:      j.LastError,
		RetryCount: j.RetryCount,
		UpdatedAt:  j.UpdatedAt,
	}
}

// ProgressEvent is published on every stage transition and failure.
type ProgressEvent struct {
	JobID      string
	DocumentID string
	Stage      Stage
	Percent    int
	Message    string
	Time       time.Time
}
