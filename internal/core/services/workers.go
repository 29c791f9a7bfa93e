package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/logger"
)

// errInterrupted is recorded on jobs failed by RecoveryFail.
var errInterrupted = errors.New("interrupted by restart")

// workerPool runs queued jobs to a terminal state.
type workerPool struct {
	queue chan string

	mu      sync.Mutex
	pending map[string]bool
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{
		queue:   make(chan string, size),
		pending: make(map[string]bool),
	}
}

// enqueue adds a job unless it is already queued or running.
// When the queue is full the job is left for the next queue poll.
func (p *workerPool) enqueue(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending[jobID] {
		return false
	}
	select {
	case p.queue <- jobID:
		p.pending[jobID] = true
		return true
	default:
		logger.Warn("Job queue full, deferring job %s", jobID)
		return false
	}
}

func (p *workerPool) release(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, jobID)
}

// poolState tracks a running pool.
type poolState struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start recovers in-flight jobs and launches the worker pool.
// Workers run until Stop is called or ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.submitMu.Lock()
	if o.pool != nil {
		o.submitMu.Unlock()
		return nil
	}
	pool := newWorkerPool(o.cfg.QueueSize)
	o.pool = pool
	o.submitMu.Unlock()

	if err := o.recover(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	state := &poolState{cancel: cancel}
	o.state = state
	for i := 0; i < o.cfg.Workers; i++ {
		state.wg.Add(1)
		go func() {
			defer state.wg.Done()
			o.work(runCtx, pool)
		}()
	}
	logger.Info("Started %d ingestion workers", o.cfg.Workers)
	return nil
}

// Stop cancels running workers and waits for them to return.
// Jobs interrupted mid-stage stay in their stage and resume on the next Start.
func (o *Orchestrator) Stop() error {
	o.submitMu.Lock()
	state := o.state
	o.state = nil
	o.pool = nil
	o.submitMu.Unlock()

	if state == nil {
		return nil
	}
	state.cancel()
	state.wg.Wait()
	return nil
}

func (o *Orchestrator) work(ctx context.Context, pool *workerPool) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-pool.queue:
			o.drive(ctx, jobID)
			pool.release(jobID)
		}
	}
}

// drive advances a job until it is terminal or ctx ends.
func (o *Orchestrator) drive(ctx context.Context, jobID string) {
	for ctx.Err() == nil {
		job, err := o.Advance(ctx, jobID)
		if errors.Is(err, domain.ErrJobLeased) {
			// Another process is on it; the queue poll retries once its
			// lease lapses.
			logger.Debug("Job %s is leased elsewhere", jobID)
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("Advancing job %s: %v", jobID, err)
			}
			return
		}
		if job.IsTerminal() {
			return
		}
	}
}

// recover handles jobs left non-terminal by a previous process. Jobs
// under a live lease belong to a running worker and are left alone.
func (o *Orchestrator) recover(ctx context.Context) error {
	jobs, err := o.deps.Jobs.ListByStage(ctx, activeStages()...)
	if err != nil {
		return fmt.Errorf("list active jobs: %w", err)
	}

	for i := range jobs {
		job := &jobs[i]
		if job.LeasedAt(o.now()) {
			logger.Debug("Skipping job %s leased by %s", job.ID, job.Owner)
			continue
		}
		if job.Stage == domain.StageQueued || o.cfg.Recovery == RecoveryResume {
			logger.Info("Resuming job %s at %s", job.ID, job.Stage)
			o.pool.enqueue(job.ID)
			continue
		}

		if err := o.failInterrupted(ctx, job.ID); err != nil {
			return err
		}
	}
	return nil
}

// failInterrupted claims a job abandoned mid-stage and marks it failed.
func (o *Orchestrator) failInterrupted(ctx context.Context, jobID string) error {
	claimed, err := o.claim(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		logger.Debug("Job %s was claimed by another worker", jobID)
		return nil
	}
	defer o.release(ctx, jobID)

	o.jobMu.Lock()
	job, err := o.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		o.jobMu.Unlock()
		return fmt.Errorf("get job: %w", err)
	}
	if job.IsTerminal() {
		o.jobMu.Unlock()
		return nil
	}
	job.Fail(job.Stage.FailureTag(), errInterrupted, o.now())
	err = o.deps.Jobs.Put(ctx, job)
	o.jobMu.Unlock()
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	o.markDocument(ctx, job.DocumentID, domain.DocumentFailed, errInterrupted.Error())
	o.publish(ctx, job)
	logger.Warn("Marked job %s failed after restart", job.ID)
	return nil
}

// EnqueuePending queues unleased active jobs, including jobs submitted by
// other processes sharing the job store and jobs whose worker died and let
// its lease lapse. It returns the number of jobs added to the queue.
func (o *Orchestrator) EnqueuePending(ctx context.Context) (int, error) {
	o.submitMu.Lock()
	pool := o.pool
	o.submitMu.Unlock()
	if pool == nil {
		return 0, nil
	}

	jobs, err := o.deps.Jobs.ListByStage(ctx, activeStages()...)
	if err != nil {
		return 0, fmt.Errorf("list active jobs: %w", err)
	}
	n := 0
	now := o.now()
	for i := range jobs {
		if jobs[i].LeasedAt(now) {
			continue
		}
		if pool.enqueue(jobs[i].ID) {
			n++
		}
	}
	return n, nil
}

// activeStages lists every non-terminal stage.
func activeStages() []domain.Stage {
	var out []domain.Stage
	for _, s := range domain.Stages() {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}
