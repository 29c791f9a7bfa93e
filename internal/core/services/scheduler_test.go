package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

type mockQueuePoller struct {
	mu    sync.Mutex
	calls int
	n     int
	err   error
}

func (m *mockQueuePoller) EnqueuePending(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.n, m.err
}

func (m *mockQueuePoller) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ QueuePoller = (*mockQueuePoller)(nil)

// fixedClock pins a scheduler's clock to now.
func fixedClock(s *Scheduler, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = func() time.Time { return now }
	for _, st := range s.state {
		st.NextRun = now
	}
}

func TestNewScheduler_RegistersQueuePoll(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), &mockQueuePoller{})

	tasks := scheduler.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskQueuePoll, tasks[0].ID)
	assert.Equal(t, "Queue poll", tasks[0].Label)
	assert.Equal(t, 5*time.Second, tasks[0].Every)
	assert.Equal(t, time.Second, scheduler.tick)
}

func TestNewScheduler_SkipsTasksThatCannotRun(t *testing.T) {
	t.Run("no poller", func(t *testing.T) {
		assert.Empty(t, NewScheduler(domain.DefaultSchedulerConfig(), nil).Tasks())
	})
	t.Run("zero interval", func(t *testing.T) {
		config := domain.SchedulerConfig{Every: map[domain.TaskID]time.Duration{domain.TaskQueuePoll: 0}}
		assert.Empty(t, NewScheduler(config, &mockQueuePoller{}).Tasks())
	})
}

func TestNewScheduler_ZeroTickDefaults(t *testing.T) {
	scheduler := NewScheduler(domain.SchedulerConfig{}, nil)
	assert.Equal(t, time.Second, scheduler.tick)
}

func TestScheduler_StartStop(t *testing.T) {
	poller := &mockQueuePoller{}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), poller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()

	// The queue poll runs immediately on start.
	assert.Eventually(t, func() bool { return poller.callCount() >= 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, scheduler.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestScheduler_StartReturnsOnCancel(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), &mockQueuePoller{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := scheduler.Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, scheduler.Stop())
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), nil)
	require.NoError(t, scheduler.Stop())
}

func TestScheduler_NoTasksReturnsImmediately(t *testing.T) {
	scheduler := NewScheduler(domain.SchedulerConfig{}, &mockQueuePoller{})
	require.NoError(t, scheduler.Start(context.Background()))
}

func TestScheduler_DoubleStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), &mockQueuePoller{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	assert.Eventually(t, func() bool {
		scheduler.mu.Lock()
		defer scheduler.mu.Unlock()
		return scheduler.stopCh != nil
	}, time.Second, 10*time.Millisecond)

	// Second start returns immediately.
	assert.NoError(t, scheduler.Start(context.Background()))

	require.NoError(t, scheduler.Stop())
	wg.Wait()
}

func TestScheduler_DispatchRecordsRun(t *testing.T) {
	poller := &mockQueuePoller{n: 2}
	config := domain.SchedulerConfig{Every: map[domain.TaskID]time.Duration{domain.TaskQueuePoll: time.Minute}}
	scheduler := NewScheduler(config, poller)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fixedClock(scheduler, now)

	scheduler.dispatch(context.Background())
	scheduler.wg.Wait()

	history := scheduler.History(domain.TaskQueuePoll)
	require.Len(t, history, 1)
	assert.True(t, history[0].OK())
	assert.Equal(t, 2, history[0].Items)

	task := scheduler.Tasks()[0]
	assert.Equal(t, 1, task.Runs)
	assert.Equal(t, now, task.LastSuccess)
	assert.Equal(t, now.Add(time.Minute), task.NextRun)

	// Not due again until the interval has passed.
	scheduler.dispatch(context.Background())
	scheduler.wg.Wait()
	assert.Equal(t, 1, poller.callCount())
}

func TestScheduler_FailedRunIsRecorded(t *testing.T) {
	poller := &mockQueuePoller{err: errors.New("store offline")}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), poller)

	scheduler.dispatch(context.Background())
	scheduler.wg.Wait()

	history := scheduler.History(domain.TaskQueuePoll)
	require.Len(t, history, 1)
	assert.False(t, history[0].OK())
	assert.Equal(t, "store offline", history[0].Err)

	task := scheduler.Tasks()[0]
	assert.False(t, task.Healthy())
	assert.Equal(t, 1, task.Failures)
	assert.Equal(t, "store offline", task.LastError)
}

func TestScheduler_RunsDoNotOverlap(t *testing.T) {
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex

	scheduler := NewScheduler(domain.SchedulerConfig{}, nil)
	scheduler.register("slow", "Slow", time.Nanosecond, func(context.Context) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return 0, nil
	})

	scheduler.dispatch(context.Background())
	scheduler.dispatch(context.Background())
	close(release)
	scheduler.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestScheduler_HistoryIsBounded(t *testing.T) {
	scheduler := NewScheduler(domain.SchedulerConfig{}, nil)
	for i := 0; i < historyLimit+10; i++ {
		scheduler.finish(domain.TaskRun{Task: "task", Items: i})
	}

	history := scheduler.History("task")
	require.Len(t, history, historyLimit)
	assert.Equal(t, 10, history[0].Items)
}
