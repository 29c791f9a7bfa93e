package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.Equal(t, time.Second, config.Tick)
	assert.Equal(t, 5*time.Second, config.Interval(TaskQueuePoll))
}

func TestSchedulerConfig_IntervalOfUnknownTask(t *testing.T) {
	assert.Zero(t, SchedulerConfig{}.Interval(TaskQueuePoll))
	assert.Zero(t, DefaultSchedulerConfig().Interval("reindex"))
}

func TestTaskState_Due(t *testing.T) {
	now := time.Now()

	assert.True(t, TaskState{}.Due(now))
	assert.True(t, TaskState{NextRun: now}.Due(now))
	assert.False(t, TaskState{NextRun: now.Add(time.Second)}.Due(now))
}

func TestTaskState_Healthy(t *testing.T) {
	assert.True(t, TaskState{Runs: 3}.Healthy())
	assert.False(t, TaskState{Runs: 3, Failures: 1, LastError: "store offline"}.Healthy())
}

func TestTaskRun(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	run := TaskRun{Task: TaskQueuePoll, Started: start, Finished: start.Add(40 * time.Millisecond)}

	assert.True(t, run.OK())
	assert.Equal(t, 40*time.Millisecond, run.Took())

	run.Err = "timeout"
	assert.False(t, run.OK())
}
