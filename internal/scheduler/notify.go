package scheduler

import (
	"context"

	"go-star-pipeline/internal/ctxlog"
	"go-star-pipeline/internal/model"
)

// Notifier alerts people about task retries and failures. The runner only
// calls it when the DAG's email_on_retry / email_on_failure flags are set.
type Notifier interface {
	NotifyRetry(ctx context.Context, run model.DagRun, taskID string, try int, err error)
	NotifyFailure(ctx context.Context, run model.DagRun, taskID string, err error)
}

// LogNotifier writes alerts to the context logger.
type LogNotifier struct {
	Owner string
}

func (n LogNotifier) NotifyRetry(ctx context.Context, run model.DagRun, taskID string, try int, err error) {
	ctxlog.FromContext(ctx).Warn("alert: task up for retry",
		"owner", n.Owner, "dag_id", run.DagID, "run_id", run.ID, "task_id", taskID, "try", try, "error", err)
}

func (n LogNotifier) NotifyFailure(ctx context.Context, run model.DagRun, taskID string, err error) {
	ctxlog.FromContext(ctx).Error("alert: task failed",
		"owner", n.Owner, "dag_id", run.DagID, "run_id", run.ID, "task_id", taskID, "error", err)
}
