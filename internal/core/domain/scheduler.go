package domain

import "time"

// TaskID names a background task.
type TaskID string

// TaskQueuePoll picks up jobs queued by other processes sharing the same
// job store, such as a CLI submit while the server is running.
const TaskQueuePoll TaskID = "queue-poll"

// TaskState is the observable state of one background task.
type TaskState struct {
	ID    TaskID        `json:"id"`
	Label string        `json:"label"`
	Every time.Duration `json:"every"`

	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run,omitzero"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastError   string    `json:"last_error,omitempty"`

	Runs     int `json:"runs"`
	Failures int `json:"failures"`
}

// Due reports whether the task should run at now.
func (t TaskState) Due(now time.Time) bool {
	return !t.NextRun.After(now)
}

// Healthy is false while the most recent run failed.
func (t TaskState) Healthy() bool {
	return t.LastError == ""
}

// TaskRun is the outcome of one execution.
type TaskRun struct {
	Task     TaskID
	Started  time.Time
	Finished time.Time
	Err      string

	// Items counts what the run handled, e.g. jobs enqueued.
	Items int
}

// OK reports whether the run succeeded.
func (r TaskRun) OK() bool {
	return r.Err == ""
}

// Took returns the run's duration.
func (r TaskRun) Took() time.Duration {
	return r.Finished.Sub(r.Started)
}

// SchedulerConfig holds the tick and the interval of each task. A task
// whose interval is zero, or that is missing from Every, does not run.
type SchedulerConfig struct {
	Tick  time.Duration
	Every map[TaskID]time.Duration
}

// Interval returns how often id runs, or zero when it is off.
func (c SchedulerConfig) Interval(id TaskID) time.Duration {
	return c.Every[id]
}

// DefaultSchedulerConfig polls the shared queue every five seconds.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Tick: time.Second,
		Every: map[TaskID]time.Duration{
			TaskQueuePoll: 5 * time.Second,
		},
	}
}
