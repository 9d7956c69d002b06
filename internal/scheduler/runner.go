package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-star-pipeline/internal/ctxlog"
	"go-star-pipeline/internal/model"

	"github.com/google/uuid"
)

// RunRecorder is the persistence the runner needs; *store.RunStore implements it.
type RunRecorder interface {
	CreateRun(ctx context.Context, run model.DagRun, taskIDs []string) error
	GetRun(ctx context.Context, runID string) (*model.DagRun, error)
	FindRun(ctx context.Context, dagID string, logicalDate time.Time) (*model.DagRun, error)
	PreviousRun(ctx context.Context, dagID string, logicalDate time.Time) (*model.DagRun, error)
	UnfinishedRuns(ctx context.Context, dagID string) ([]model.DagRun, error)
	UpdateRunState(ctx context.Context, runID string, state model.RunState) error
	SaveTaskState(ctx context.Context, ti model.TaskInstance) error
	TaskInstances(ctx context.Context, runID string) ([]model.TaskInstance, error)
	SaveTaskFailure(ctx context.Context, runID, taskID string, try int, taskErr error) error
}

const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// ErrPastNotSucceeded is returned by Execute when depends_on_past holds a
// task back because the same task did not succeed in the previous run. The
// run stays running and is picked up again by the next trigger or Resume.
var ErrPastNotSucceeded = errors.New("previous run of task did not succeed")

// Runner executes runs of a single DAG, one at a time, tasks in order.
type Runner struct {
	dag      *DAG
	runs     RunRecorder
	notifier Notifier
	sleep    SleepFunc
	now      func() time.Time

	mu       sync.Mutex
	submitMu sync.Mutex
}

// Option configures a Runner.
type Option func(*Runner)

// WithNotifier sets the notifier used when the DAG asks for alerts.
func WithNotifier(n Notifier) Option { return func(r *Runner) { r.notifier = n } }

// WithSleep replaces the wait between tries.
func WithSleep(fn SleepFunc) Option { return func(r *Runner) { r.sleep = fn } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// NewRunner validates dag and returns a runner bound to it.
func NewRunner(dag *DAG, runs RunRecorder, opts ...Option) (*Runner, error) {
	if err := dag.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		dag:      dag,
		runs:     runs,
		notifier: LogNotifier{Owner: dag.DefaultArgs.Owner},
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// DAG returns the DAG the runner executes.
func (r *Runner) DAG() *DAG { return r.dag }

// Submit records a new run for logicalDate without executing it. If a run
// already exists for that date it is returned instead.
func (r *Runner) Submit(ctx context.Context, logicalDate time.Time, trigger string) (*model.DagRun, bool, error) {
	logicalDate = logicalDate.UTC()

	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	existing, err := r.runs.FindRun(ctx, r.dag.ID, logicalDate)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	order, err := r.dag.Order()
	if err != nil {
		return nil, false, err
	}

	now := r.now().UTC()
	run := model.DagRun{
		ID:          uuid.New().String(),
		DagID:       r.dag.ID,
		LogicalDate: logicalDate,
		State:       model.RunRunning,
		Trigger:     trigger,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.runs.CreateRun(ctx, run, order); err != nil {
		// another process sharing the metadata file may have won the date
		if existing, findErr := r.runs.FindRun(ctx, r.dag.ID, logicalDate); findErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return &run, true, nil
}

// Trigger creates the run for logicalDate and executes it. A run that already
// finished for the same date is returned as is; an unfinished one is resumed.
func (r *Runner) Trigger(ctx context.Context, logicalDate time.Time, trigger string) (*model.DagRun, error) {
	run, created, err := r.Submit(ctx, logicalDate, trigger)
	if err != nil {
		return nil, err
	}
	if !created && run.State.Finished() {
		ctxlog.FromContext(ctx).Info("run already finished for logical date, skipping",
			"dag_id", r.dag.ID, "run_id", run.ID, "state", run.State, "logical_date", run.LogicalDate)
		return run, nil
	}
	return r.Execute(ctx, run.ID)
}

// Resume executes every run left unfinished, e.g. by a crash or restart.
func (r *Runner) Resume(ctx context.Context) ([]model.DagRun, error) {
	open, err := r.runs.UnfinishedRuns(ctx, r.dag.ID)
	if err != nil {
		return nil, err
	}

	var resumed []model.DagRun
	var errs []error
	for _, run := range open {
		ctxlog.FromContext(ctx).Info("resuming unfinished run", "dag_id", r.dag.ID, "run_id", run.ID)
		done, err := r.Execute(ctx, run.ID)
		if done != nil {
			resumed = append(resumed, *done)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return resumed, errors.Join(errs...)
}

// Execute drives the run through its tasks in topological order. Tasks that
// already succeeded are skipped, so a resumed run never repeats them. The
// first task error is returned unchanged inside a *TaskError.
func (r *Runner) Execute(ctx context.Context, runID string) (*model.DagRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, err := r.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.State.Finished() {
		return run, nil
	}

	ctx = ctxlog.With(ctx, "dag_id", r.dag.ID, "run_id", run.ID)
	log := ctxlog.FromContext(ctx)

	order, err := r.dag.Order()
	if err != nil {
		return nil, err
	}
	instances, err := r.runs.TaskInstances(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	states := make(map[string]*model.TaskInstance, len(instances))
	for i := range instances {
		states[instances[i].TaskID] = &instances[i]
	}

	log.Info("run started", "logical_date", run.LogicalDate, "trigger", run.Trigger)
	start := r.now()

	var firstErr error
	for _, taskID := range order {
		ti, ok := states[taskID]
		if !ok {
			ti = &model.TaskInstance{RunID: run.ID, TaskID: taskID, State: model.TaskQueued}
			states[taskID] = ti
		}

		switch ti.State {
		case model.TaskSuccess:
			log.Debug("task already succeeded, skipping", "task_id", taskID)
			continue
		case model.TaskFailed, model.TaskUpstreamFailed:
			continue
		}

		if blocked := r.blockedBy(taskID, states); blocked != "" {
			ti.State = model.TaskUpstreamFailed
			if err := r.runs.SaveTaskState(ctx, *ti); err != nil {
				return nil, err
			}
			log.Warn("task skipped, upstream failed", "task_id", taskID, "upstream", blocked)
			continue
		}

		if r.dag.DefaultArgs.DependsOnPast {
			waiting, err := r.waitsOnPast(ctx, *run, taskID)
			if err != nil {
				return run, err
			}
			if waiting {
				log.Warn("task waits for its previous run to succeed", "task_id", taskID)
				return run, fmt.Errorf("dag %s run %s: task %s: %w", r.dag.ID, run.ID, taskID, ErrPastNotSucceeded)
			}
		}

		if err := r.runTask(ctx, *run, ti); err != nil {
			var taskErr *TaskError
			if !errors.As(err, &taskErr) {
				// aborted or metadata failure: leave the run resumable
				return run, err
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	final := model.RunSuccess
	for _, ti := range states {
		if ti.State != model.TaskSuccess {
			final = model.RunFailed
			break
		}
	}
	if err := r.runs.UpdateRunState(ctx, run.ID, final); err != nil {
		return nil, err
	}
	run.State = final
	run.UpdatedAt = r.now().UTC()

	if final == model.RunSuccess {
		log.Info("run succeeded", "duration", time.Since(start))
	} else {
		log.Error("run failed", "duration", time.Since(start), "error", firstErr)
	}
	return run, firstErr
}

// blockedBy returns the first upstream of taskID that did not succeed.
func (r *Runner) blockedBy(taskID string, states map[string]*model.TaskInstance) string {
	for _, up := range r.dag.Upstream(taskID) {
		if ti, ok := states[up]; !ok || ti.State != model.TaskSuccess {
			return up
		}
	}
	return ""
}

// waitsOnPast reports whether taskID exists in the run before run and did not
// succeed there. With no earlier run, or no such task in it, nothing waits.
func (r *Runner) waitsOnPast(ctx context.Context, run model.DagRun, taskID string) (bool, error) {
	prev, err := r.runs.PreviousRun(ctx, r.dag.ID, run.LogicalDate)
	if err != nil || prev == nil {
		return false, err
	}
	tis, err := r.runs.TaskInstances(ctx, prev.ID)
	if err != nil {
		return false, err
	}
	for _, ti := range tis {
		if ti.TaskID == taskID {
			return ti.State != model.TaskSuccess, nil
		}
	}
	return false, nil
}

// runTask tries a task until it succeeds or runs out of tries. Only the
// final failure comes back as *TaskError; a cancelled wait returns ctx.Err().
func (r *Runner) runTask(ctx context.Context, run model.DagRun, ti *model.TaskInstance) error {
	task, _ := r.dag.Task(ti.TaskID)
	args := r.dag.DefaultArgs
	ctx = ctxlog.With(ctx, "task_id", ti.TaskID)
	log := ctxlog.FromContext(ctx)

	for {
		try := ti.TryNumber + 1
		if try > args.MaxTries() {
			err := fmt.Errorf("no tries left after interrupted attempt %d", ti.TryNumber)
			return r.failTask(ctx, run, ti, err)
		}

		started := r.now().UTC()
		ti.State = model.TaskRunning
		ti.TryNumber = try
		ti.StartedAt = &started
		ti.EndedAt = nil
		if err := r.runs.SaveTaskState(ctx, *ti); err != nil {
			return err
		}
		log.Info("task started", "try", try, "max_tries", args.MaxTries())

		taskErr := task.Run(ctx)

		ended := r.now().UTC()
		ti.EndedAt = &ended
		if taskErr == nil {
			ti.State = model.TaskSuccess
			if err := r.runs.SaveTaskState(ctx, *ti); err != nil {
				// the task's own work is committed; a resume will run it again
				log.Error("task succeeded but its state was not saved, resuming the run repeats it",
					"try", try, "error", err)
				return err
			}
			log.Info("task succeeded", "try", try, "duration", ended.Sub(started))
			return nil
		}

		if err := r.runs.SaveTaskFailure(ctx, run.ID, ti.TaskID, try, taskErr); err != nil {
			return err
		}
		if !shouldRetry(args, try) {
			return r.failTask(ctx, run, ti, taskErr)
		}

		ti.State = model.TaskUpForRetry
		if err := r.runs.SaveTaskState(ctx, *ti); err != nil {
			return err
		}
		log.Warn("task failed, up for retry", "try", try, "retry_delay", args.RetryDelay, "error", taskErr)
		if args.EmailOnRetry {
			r.notifier.NotifyRetry(ctx, run, ti.TaskID, try, taskErr)
		}

		if err := r.sleep(ctx, args.RetryDelay); err != nil {
			return err
		}
	}
}

func (r *Runner) failTask(ctx context.Context, run model.DagRun, ti *model.TaskInstance, cause error) error {
	ti.State = model.TaskFailed
	if err := r.runs.SaveTaskState(ctx, *ti); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Error("task failed", "tries", ti.TryNumber, "error", cause)
	if r.dag.DefaultArgs.EmailOnFailure {
		r.notifier.NotifyFailure(ctx, run, ti.TaskID, cause)
	}
	return &TaskError{DagID: r.dag.ID, RunID: run.ID, TaskID: ti.TaskID, Tries: ti.TryNumber, Err: cause}
}
