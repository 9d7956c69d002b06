package model

import "time"

// RunState is the state of a whole DAG run
type RunState string

const (
	RunRunning RunState = "running"
	RunSuccess RunState = "success"
	RunFailed  RunState = "failed"
)

// Finished reports whether the run reached a terminal state.
func (s RunState) Finished() bool {
	return s == RunSuccess || s == RunFailed
}

// TaskState is the state of one task inside a DAG run
type TaskState string

const (
	TaskQueued         TaskState = "queued"
	TaskRunning        TaskState = "running"
	TaskSuccess        TaskState = "success"
	TaskUpForRetry     TaskState = "up_for_retry"
	TaskFailed         TaskState = "failed"
	TaskUpstreamFailed TaskState = "upstream_failed"
)

// DagRun is one execution of a DAG for a logical date
type DagRun struct {
	ID          string    `json:"run_id"`
	DagID       string    `json:"dag_id"`
	LogicalDate time.Time `json:"logical_date"`
	State       RunState  `json:"state"`
	Trigger     string    `json:"trigger"` // "scheduled" or "manual"
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskInstance tracks a task within a DagRun
type TaskInstance struct {
	RunID     string     `json:"run_id"`
	TaskID    string     `json:"task_id"`
	State     TaskState  `json:"state"`
	TryNumber int        `json:"try_number"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Duration  string     `json:"duration,omitempty"`
}

// TaskFailure records a single failed try
type TaskFailure struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	TaskID       string    `json:"task_id"`
	TryNumber    int       `json:"try_number"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
