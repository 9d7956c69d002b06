package scheduler

import (
	"context"
	"fmt"
	"time"

	"go-star-pipeline/internal/ctxlog"

	"github.com/go-co-op/gocron"
)

// Cron fires a scheduled run of the runner's DAG every schedule interval.
type Cron struct {
	runner    *Runner
	scheduler *gocron.Scheduler
	now       func() time.Time
}

// NewCron prepares a UTC scheduler for runner. Nothing fires until Run.
func NewCron(runner *Runner) (*Cron, error) {
	dag := runner.DAG()
	if dag.Schedule <= 0 {
		return nil, fmt.Errorf("dag %s: schedule interval must be positive, got %s", dag.ID, dag.Schedule)
	}
	return &Cron{
		runner:    runner,
		scheduler: gocron.NewScheduler(time.UTC),
		now:       time.Now,
	}, nil
}

// LogicalDate is the start of the interval t falls in.
func LogicalDate(t time.Time, interval time.Duration) time.Time {
	return t.UTC().Truncate(interval)
}

// Run starts the scheduler and blocks until ctx is done. The first tick
// fires immediately; a tick never overlaps a run still in progress.
func (c *Cron) Run(ctx context.Context) error {
	dag := c.runner.DAG()
	log := ctxlog.FromContext(ctx)

	_, err := c.scheduler.Every(dag.Schedule).Tag(dag.ID).SingletonMode().Do(func() {
		c.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule dag %s: %w", dag.ID, err)
	}

	log.Info("scheduler started", "dag_id", dag.ID, "interval", dag.Schedule, "start_date", dag.StartDate)
	c.scheduler.StartAsync()

	<-ctx.Done()

	c.scheduler.Stop()
	log.Info("scheduler stopped", "dag_id", dag.ID)
	return nil
}

func (c *Cron) tick(ctx context.Context) {
	dag := c.runner.DAG()
	logical := LogicalDate(c.now(), dag.Schedule)
	log := ctxlog.FromContext(ctx)

	if logical.Before(dag.StartDate) {
		log.Info("tick before start date, skipping", "dag_id", dag.ID, "logical_date", logical)
		return
	}

	run, err := c.runner.Trigger(ctx, logical, TriggerScheduled)
	if err != nil {
		log.Error("scheduled run failed", "dag_id", dag.ID, "logical_date", logical, "error", err)
		return
	}
	log.Info("scheduled run finished", "dag_id", dag.ID, "run_id", run.ID, "state", run.State)
}
