package scheduler

import (
	"context"
	"fmt"
	"time"

	"go-star-pipeline/internal/model"
)

// TaskError is returned when a task fails for good, after its last try.
type TaskError struct {
	DagID  string
	RunID  string
	TaskID string
	Tries  int
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("dag %s run %s: task %s failed after %d tries: %v", e.DagID, e.RunID, e.TaskID, e.Tries, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// shouldRetry reports whether a task that just failed its try-th attempt
// gets another one.
func shouldRetry(args model.DefaultArgs, try int) bool {
	return try < args.MaxTries()
}
