package services

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

var _ driving.Scheduler = (*Scheduler)(nil)

// historyLimit is the number of runs kept per task.
const historyLimit = 100

// QueuePoller picks up queued jobs.
type QueuePoller interface {
	EnqueuePending(ctx context.Context) (int, error)
}

// taskFunc is the body of a background task. It returns how many items it
// handled.
type taskFunc func(ctx context.Context) (int, error)

// Scheduler runs background tasks on their intervals. A task never overlaps
// with itself: a run that outlasts its interval delays the next one.
type Scheduler struct {
	tick  time.Duration
	funcs map[domain.TaskID]taskFunc
	now   func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	state   map[domain.TaskID]*domain.TaskState
	active  map[domain.TaskID]bool
	history map[domain.TaskID][]domain.TaskRun
}

// NewScheduler registers every task config enables. The queue poll needs a
// poller; without one it is skipped.
func NewScheduler(config domain.SchedulerConfig, poller QueuePoller) *Scheduler {
	if config.Tick <= 0 {
		config.Tick = time.Second
	}
	s := &Scheduler{
		tick:    config.Tick,
		funcs:   make(map[domain.TaskID]taskFunc),
		now:     time.Now,
		state:   make(map[domain.TaskID]*domain.TaskState),
		active:  make(map[domain.TaskID]bool),
		history: make(map[domain.TaskID][]domain.TaskRun),
	}
	if every := config.Interval(domain.TaskQueuePoll); every > 0 && poller != nil {
		s.register(domain.TaskQueuePoll, "Queue poll", every, func(ctx context.Context) (int, error) {
			n, err := poller.EnqueuePending(ctx)
			if n > 0 {
				logger.Debug("Scheduler: enqueued %d pending jobs", n)
			}
			return n, err
		})
	}
	return s
}

// register adds a task that first runs on the next check.
func (s *Scheduler) register(id domain.TaskID, label string, every time.Duration, fn taskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[id] = fn
	s.state[id] = &domain.TaskState{ID: id, Label: label, Every: every, NextRun: s.now()}
}

// Start runs due tasks until Stop is called or ctx is cancelled. It returns
// at once when the scheduler is already running or has no tasks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopCh != nil || len(s.funcs) == 0 {
		s.mu.Unlock()
		return nil
	}
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	s.dispatch(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

// Stop ends the loop and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.stopCh)
	s.stopCh = nil
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Tasks returns a snapshot of every task ordered by ID.
func (s *Scheduler) Tasks() []domain.TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TaskState, 0, len(s.state))
	for _, st := range s.state {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b domain.TaskState) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

// History returns the recorded runs of a task, oldest first.
func (s *Scheduler) History(id domain.TaskID) []domain.TaskRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history[id])
}

// dispatch starts every due task that is not already running.
func (s *Scheduler) dispatch(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, st := range s.state {
		if s.active[id] || !st.Due(now) {
			continue
		}
		s.active[id] = true
		s.wg.Add(1)
		go s.execute(ctx, id, s.funcs[id])
	}
}

func (s *Scheduler) execute(ctx context.Context, id domain.TaskID, fn taskFunc) {
	defer s.wg.Done()

	run := domain.TaskRun{Task: id, Started: s.now()}
	n, err := fn(ctx)
	run.Finished = s.now()
	run.Items = n
	if err != nil {
		run.Err = err.Error()
		logger.Warn("Scheduler: task %s failed: %v", id, err)
	}
	s.finish(run)
}

// finish records run and schedules the task's next run.
func (s *Scheduler) finish(run domain.TaskRun) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, run.Task)
	if st, ok := s.state[run.Task]; ok {
		st.Runs++
		st.LastRun = run.Started
		st.NextRun = run.Finished.Add(st.Every)
		if run.OK() {
			st.LastError = ""
			st.LastSuccess = run.Finished
		} else {
			st.Failures++
			st.LastError = run.Err
		}
	}

	h := append(s.history[run.Task], run)
	if len(h) > historyLimit {
		h = h[len(h)-historyLimit:]
	}
	s.history[run.Task] = h
}
