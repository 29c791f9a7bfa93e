package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Ensure Orchestrator implements the interface.
var _ driving.IngestionService = (*Orchestrator)(nil)

// RecoveryMode decides what happens to in-flight jobs found at startup.
type RecoveryMode string

// Recovery modes.
const (
	// RecoveryResume re-enqueues in-flight jobs; stages skip the pages and
	// chunks already materialised.
	RecoveryResume RecoveryMode = "resume"

	// RecoveryFail marks in-flight jobs failed with their stage's tag.
	RecoveryFail RecoveryMode = "fail"
)

// Orchestrator defaults.
const (
	DefaultDPI       = 300
	DefaultQueueSize = 256
	DefaultLeaseTTL  = 2 * time.Minute
	DefaultLeasePoll = time.Second
)

// errCancelled signals that the job was cancelled or finished elsewhere
// while a stage was running. The persisted state wins.
var errCancelled = errors.New("job cancelled")

// errLeaseLost signals that the lease lapsed and another worker took the job.
var errLeaseLost = fmt.Errorf("%w: lease lost", domain.ErrJobLeased)

// OrchestratorConfig configures the ingestion pipeline.
type OrchestratorConfig struct {
	// DPI is the rasterization resolution.
	DPI int

	// Workers is the number of jobs processed concurrently by Start.
	Workers int

	// QueueSize bounds the number of jobs waiting for a worker.
	QueueSize int

	// UnitsPerAdvance bounds the pages or batches processed by one Advance.
	// Zero runs the whole stage.
	UnitsPerAdvance int

	// SalvagePartial indexes fully extracted pages of a job that failed
	// during extraction.
	SalvagePartial bool

	// Recovery selects restart behaviour for in-flight jobs.
	Recovery RecoveryMode

	// LeaseTTL is how long a claim on a job lasts without renewal. The
	// lease is renewed before every unit, so it must outlast one unit.
	LeaseTTL time.Duration

	// LeasePoll is how often Run retries a job leased by another worker.
	LeasePoll time.Duration

	// Retry holds per-stage retry policies. Missing stages use
	// domain.DefaultRetryPolicy.
	Retry map[domain.Stage]domain.RetryPolicy
}

// DefaultOrchestratorConfig returns the default pipeline configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		DPI:            DefaultDPI,
		Workers:        runtime.NumCPU(),
		QueueSize:      DefaultQueueSize,
		SalvagePartial: true,
		Recovery:       RecoveryResume,
		LeaseTTL:       DefaultLeaseTTL,
		LeasePoll:      DefaultLeasePoll,
	}
}

// OrchestratorDeps are the collaborators of the ingestion pipeline.
// Progress is optional.
type OrchestratorDeps struct {
	Jobs       driven.JobStore
	Documents  driven.DocumentStore
	Blobs      driven.BlobStore
	Rasterizer driven.Rasterizer
	Classifier driven.RegionClassifier
	Extractor  driven.TextExtractor
	Figures    driven.FigureStore
	Normaliser driven.TextNormaliser
	Chunker    driven.Chunker
	Embedder   *Embedder
	Index      driven.KnowledgeIndex
	Progress   driven.ProgressPublisher
}

// Orchestrator drives documents through the ingestion state machine.
type Orchestrator struct {
	deps    OrchestratorDeps
	cfg     OrchestratorConfig
	policy  RegionPolicy
	retrier retrier
	now     func() time.Time

	// owner identifies this orchestrator in job leases.
	owner string

	// submitMu serialises submissions so one document never has two live jobs.
	submitMu sync.Mutex

	// jobMu makes read-check-write of job records atomic against Cancel.
	jobMu sync.Mutex

	// jobLocks holds one mutex per job so a job is advanced by one caller at a time.
	jobLocks sync.Map

	pool  *workerPool
	state *poolState
}

// NewOrchestrator creates an orchestrator. Zero config values use defaults.
func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig, policy RegionPolicy) *Orchestrator {
	def := DefaultOrchestratorConfig()
	if cfg.DPI <= 0 {
		cfg.DPI = def.DPI
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Recovery == "" {
		cfg.Recovery = def.Recovery
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = def.LeaseTTL
	}
	if cfg.LeasePoll <= 0 {
		cfg.LeasePoll = def.LeasePoll
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		policy: policy,
		now:    time.Now,
		owner:  uuid.NewString(),
	}
}

// SubmitDocument registers a document and queues a job for it.
func (o *Orchestrator) SubmitDocument(ctx context.Context, req driving.SubmitRequest) (*driving.SubmitResult, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}
	if req.Scope.IsSubjectWide() {
		return nil, fmt.Errorf("%w: documents belong to a lecture", domain.ErrInvalidInput)
	}
	if req.SourceRef == "" {
		return nil, fmt.Errorf("%w: source reference is required", domain.ErrInvalidInput)
	}
	if req.DeclaredPages < 0 {
		return nil, fmt.Errorf("%w: declared pages must not be negative", domain.ErrInvalidInput)
	}

	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	if _, err := o.deps.Blobs.Get(ctx, req.SourceRef); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: source %s not found", domain.ErrInvalidInput, req.SourceRef)
		}
		return nil, fmt.Errorf("read source: %w", err)
	}

	docID := DocumentID(req.Scope, req.SourceRef)
	jobs, err := o.deps.Jobs.ListByDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	for _, j := range jobs {
		if !j.IsTerminal() {
			return nil, fmt.Errorf("%w: job %s is %s", domain.ErrDuplicateSubmission, j.ID, j.Stage)
		}
	}

	if _, err := o.deps.Documents.GetDocument(ctx, docID); err == nil {
		logger.Info("Reprocessing document %s in %s", docID, req.Scope)
		if err := o.purgeDocument(ctx, req.Scope, docID); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get document: %w", err)
	}

	title := req.Title
	if title == "" {
		title = path.Base(req.SourceRef)
	}
	now := o.now()
	doc := &domain.Document{
		ID:            docID,
		Scope:         req.Scope,
		SourceRef:     req.SourceRef,
		Title:         title,
		DeclaredPages: req.DeclaredPages,
		Status:        domain.DocumentQueued,
		UploadedAt:    now,
	}
	if err := o.deps.Documents.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	job := &domain.Job{
		ID:         uuid.NewString(),
		DocumentID: docID,
		Scope:      req.Scope,
		Stage:      domain.StageQueued,
		Message:    "queued",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.deps.Jobs.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	o.publish(ctx, job)
	logger.Info("Queued job %s for document %s (%s)", job.ID, docID, req.Scope)

	if o.pool != nil {
		o.pool.enqueue(job.ID)
	}
	return &driving.SubmitResult{DocumentID: docID, JobID: job.ID}, nil
}

// purgeDocument removes derived artifacts, index entries and blobs of a
// document so it can be processed from scratch.
func (o *Orchestrator) purgeDocument(ctx context.Context, scope domain.Scope, docID string) error {
	if err := o.deps.Index.Delete(ctx, scope, docID); err != nil {
		return fmt.Errorf("delete index entries: %w", err)
	}
	if err := o.deps.Documents.DeleteDerived(ctx, docID); err != nil {
		return fmt.Errorf("delete derived artifacts: %w", err)
	}
	if err := o.deps.Blobs.DeletePrefix(ctx, domain.DocumentBlobPrefix(scope, docID)); err != nil {
		return fmt.Errorf("delete document blobs: %w", err)
	}
	return nil
}

// GetJobStatus returns a snapshot of a job.
func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	job, err := o.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	st := job.Status()
	return &st, nil
}

// ListJobs returns jobs filtered by stage, oldest first.
func (o *Orchestrator) ListJobs(ctx context.Context, stages ...domain.Stage) ([]domain.JobStatus, error) {
	jobs, err := o.deps.Jobs.ListByStage(ctx, stages...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]domain.JobStatus, len(jobs))
	for i := range jobs {
		out[i] = jobs[i].Status()
	}
	return out, nil
}

// ListDocuments returns the documents inside scope.
func (o *Orchestrator) ListDocuments(ctx context.Context, scope domain.Scope) ([]domain.Document, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return o.deps.Documents.ListDocuments(ctx, scope)
}

// Cancel marks a job failed with the cancelled tag. A stage running for
// the job notices before its next unit and stops without advancing.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	o.jobMu.Lock()
	defer o.jobMu.Unlock()

	job, err := o.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", domain.ErrJobTerminal, jobID, job.Stage)
	}

	now := o.now()
	job.CancelRequested = true
	job.Fail(domain.TagCancelled, errors.New("cancelled by request"), now)
	if err := o.deps.Jobs.Put(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	o.markDocument(ctx, job.DocumentID, domain.DocumentFailed, "cancelled")
	o.publish(ctx, job)
	logger.Info("Cancelled job %s", jobID)
	return nil
}

// DeleteScopeData removes every document, artifact, blob and index entry
// in scope. Active jobs in scope are cancelled first; job records are kept.
func (o *Orchestrator) DeleteScopeData(ctx context.Context, scope domain.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	docs, err := o.deps.Documents.ListDocuments(ctx, scope)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	for _, doc := range docs {
		jobs, err := o.deps.Jobs.ListByDocument(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		for _, j := range jobs {
			if j.IsTerminal() {
				continue
			}
			if err := o.Cancel(ctx, j.ID); err != nil && !errors.Is(err, domain.ErrJobTerminal) {
				return err
			}
			// Wait for an in-flight advance to observe the cancellation.
			o.lockJob(j.ID)()
		}
	}

	if err := o.deps.Index.DeleteScope(ctx, scope); err != nil {
		return fmt.Errorf("delete index scope: %w", err)
	}
	for _, doc := range docs {
		if err := o.deps.Documents.DeleteDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("delete document %s: %w", doc.ID, err)
		}
	}
	if err := o.deps.Blobs.DeletePrefix(ctx, scope.BlobPrefix()); err != nil {
		return fmt.Errorf("delete blobs: %w", err)
	}

	logger.Info("Deleted %d documents in %s", len(docs), scope)
	return nil
}

// Run drives a job to a terminal state in the calling goroutine. While
// another worker holds the job's lease, Run waits and tries again.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	for {
		job, err := o.Advance(ctx, jobID)
		if errors.Is(err, domain.ErrJobLeased) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.cfg.LeasePoll):
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if job.IsTerminal() {
			st := job.Status()
			return &st, nil
		}
	}
}

// Advance executes one stage's work for a job, then moves it to the next
// stage, leaves it in place with updated progress when the unit budget
// ran out, or fails it with the stage's tag. Terminal jobs are returned
// unchanged.
//
// The job is leased for the duration of the call, so a job is advanced by
// one worker at a time across every process sharing the job store. A job
// leased by another worker fails with domain.ErrJobLeased.
func (o *Orchestrator) Advance(ctx context.Context, jobID string) (*domain.Job, error) {
	unlock := o.lockJob(jobID)
	defer unlock()

	job, err := o.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.IsTerminal() {
		return job, nil
	}

	claimed, err := o.claim(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return job, fmt.Errorf("%w: job %s", domain.ErrJobLeased, jobID)
	}
	defer o.release(ctx, jobID)

	// Reload: the previous holder may have moved the job on.
	job, err = o.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.IsTerminal() {
		return job, nil
	}
	doc, err := o.deps.Documents.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	if job.Stage == domain.StageQueued {
		if err := o.transition(ctx, job, domain.StageRasterizing); err != nil {
			return o.settle(ctx, job, err)
		}
		doc.Status = domain.DocumentProcessing
		doc.StartedAt = o.now()
		if err := o.deps.Documents.SaveDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("save document: %w", err)
		}
		logger.Info("Starting job %s for document %s", job.ID, doc.ID)
	}

	run := &stageRun{o: o, job: job, doc: doc, budget: o.cfg.UnitsPerAdvance}
	stage := job.Stage
	done, err := run.execute(ctx)
	if err != nil {
		if errors.Is(err, errCancelled) {
			return o.settle(ctx, job, err)
		}
		if errors.Is(err, domain.ErrJobLeased) {
			logger.Warn("Job %s was taken over by another worker", job.ID)
			return job, err
		}
		if ctx.Err() != nil {
			return job, ctx.Err()
		}
		return o.failStage(ctx, job, doc, stage, err)
	}
	if !done {
		return job, nil
	}

	next := stage.Next()
	if err := o.transition(ctx, job, next); err != nil {
		return o.settle(ctx, job, err)
	}
	if next == domain.StageCompleted {
		doc.Status = domain.DocumentCompleted
		doc.Error = ""
		doc.EndedAt = o.now()
		if err := o.deps.Documents.SaveDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("save document: %w", err)
		}
		logger.Info("Completed job %s for document %s", job.ID, doc.ID)
	}
	return job, nil
}

// transition moves the job to stage and persists it.
func (o *Orchestrator) transition(ctx context.Context, job *domain.Job, stage domain.Stage) error {
	job.Stage = stage
	job.Done, job.Total = 0, 0
	job.SetProgress(0, 0, string(stage))
	if stage == domain.StageCompleted {
		job.Percent = 100
		job.EndedAt = o.now()
	}
	return o.commit(ctx, job)
}

// commit persists job unless it was cancelled or finished elsewhere, or
// its lease was lost.
func (o *Orchestrator) commit(ctx context.Context, job *domain.Job) error {
	if err := o.renew(ctx, job.ID); err != nil {
		return err
	}

	o.jobMu.Lock()
	defer o.jobMu.Unlock()

	stored, err := o.deps.Jobs.Get(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if stored.IsTerminal() || stored.CancelRequested {
		return errCancelled
	}
	job.UpdatedAt = o.now()
	if err := o.deps.Jobs.Put(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	o.publish(ctx, job)
	return nil
}

// claim takes or renews this orchestrator's lease on a job.
func (o *Orchestrator) claim(ctx context.Context, jobID string) (bool, error) {
	now := o.now()
	ok, err := o.deps.Jobs.Claim(ctx, jobID, o.owner, now, now.Add(o.cfg.LeaseTTL))
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return ok, nil
}

// renew extends the lease before a unit of work, failing with errLeaseLost
// when another worker holds the job.
func (o *Orchestrator) renew(ctx context.Context, jobID string) error {
	ok, err := o.claim(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return errLeaseLost
	}
	return nil
}

// release drops the lease even when ctx is already cancelled.
func (o *Orchestrator) release(ctx context.Context, jobID string) {
	if err := o.deps.Jobs.Release(context.WithoutCancel(ctx), jobID, o.owner); err != nil {
		logger.Warn("Failed to release job %s: %v", jobID, err)
	}
}

// settle returns the persisted job after a cancellation, or err otherwise.
func (o *Orchestrator) settle(ctx context.Context, job *domain.Job, err error) (*domain.Job, error) {
	if !errors.Is(err, errCancelled) {
		return job, err
	}
	stored, gerr := o.deps.Jobs.Get(ctx, job.ID)
	if gerr != nil {
		return nil, fmt.Errorf("get job: %w", gerr)
	}
	return stored, nil
}

// failStage records a stage failure and, for extraction failures,
// salvages the pages that were fully extracted.
func (o *Orchestrator) failStage(
	ctx context.Context, job *domain.Job, doc *domain.Document, stage domain.Stage, cause error,
) (*domain.Job, error) {
	tag := stage.FailureTag()
	var se *domain.StageError
	if errors.As(cause, &se) {
		tag = se.Tag
	}

	o.jobMu.Lock()
	stored, err := o.deps.Jobs.Get(ctx, job.ID)
	if err != nil {
		o.jobMu.Unlock()
		return nil, fmt.Errorf("get job: %w", err)
	}
	if stored.IsTerminal() {
		o.jobMu.Unlock()
		return stored, nil
	}
	job.Fail(tag, cause, o.now())
	if err := o.deps.Jobs.Put(ctx, job); err != nil {
		o.jobMu.Unlock()
		return nil, fmt.Errorf("save job: %w", err)
	}
	o.jobMu.Unlock()

	o.publish(ctx, job)
	logger.Error("Job %s failed in %s: %v", job.ID, stage, cause)

	doc.Status = domain.DocumentFailed
	doc.Error = cause.Error()
	doc.EndedAt = o.now()
	if err := o.deps.Documents.SaveDocument(ctx, doc); err != nil {
		logger.Warn("Failed to record failure on document %s: %v", doc.ID, err)
	}

	if stage == domain.StageExtracting && o.cfg.SalvagePartial {
		o.salvage(ctx, doc)
	}
	return job, nil
}

// markDocument updates a document's status, logging failures.
func (o *Orchestrator) markDocument(ctx context.Context, docID string, status domain.DocumentStatus, msg string) {
	doc, err := o.deps.Documents.GetDocument(ctx, docID)
	if err != nil {
		logger.Warn("Failed to load document %s: %v", docID, err)
		return
	}
	doc.Status = status
	doc.Error = msg
	doc.EndedAt = o.now()
	if err := o.deps.Documents.SaveDocument(ctx, doc); err != nil {
		logger.Warn("Failed to update document %s: %v", docID, err)
	}
}

// publish sends a progress event. Delivery is best-effort.
func (o *Orchestrator) publish(ctx context.Context, job *domain.Job) {
	if o.deps.Progress == nil {
		return
	}
	event := domain.ProgressEvent{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Stage:      job.Stage,
		Percent:    job.Percent,
		Message:    job.Message,
		Time:       o.now(),
	}
	if err := o.deps.Progress.Publish(ctx, event); err != nil {
		logger.Debug("Progress publish for job %s failed: %v", job.ID, err)
	}
}

// lockJob acquires the per-job advance lock and returns its release.
func (o *Orchestrator) lockJob(jobID string) func() {
	v, _ := o.jobLocks.LoadOrStore(jobID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// retryPolicy returns the policy for a stage.
func (o *Orchestrator) retryPolicy(stage domain.Stage) domain.RetryPolicy {
	if p, ok := o.cfg.Retry[stage]; ok {
		return p
	}
	return domain.DefaultRetryPolicy
}
