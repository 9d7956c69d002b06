// Package pipeline defines the star-schema sample: two tasks that create the
// warehouse tables and then append the sample rows, wired into a daily DAG.
package pipeline

import (
	"context"
	"fmt"

	"go-star-pipeline/internal/config"
	"go-star-pipeline/internal/dataset"
	"go-star-pipeline/internal/scheduler"
)

const (
	DagID            = "example_sqlite_dag"
	TaskCreateTables = "create_tables"
	TaskInsertData   = "insert_data"
)

// NewDAG builds example_sqlite_dag: create_tables >> insert_data.
func NewDAG(dbPath string, src dataset.Source, sched config.Schedule) (*scheduler.DAG, error) {
	dag := scheduler.NewDAG(DagID, sched.Args)
	dag.Description = "A simple DAG to create a star schema in SQLite and insert data"
	dag.Schedule = sched.Interval
	dag.StartDate = sched.StartDate

	if _, err := dag.AddTask(TaskCreateTables, func(ctx context.Context) error {
		return CreateTables(ctx, dbPath)
	}); err != nil {
		return nil, err
	}
	if _, err := dag.AddTask(TaskInsertData, func(ctx context.Context) error {
		return InsertData(ctx, dbPath, src)
	}); err != nil {
		return nil, err
	}
	if err := dag.SetUpstream(TaskCreateTables, TaskInsertData); err != nil {
		return nil, err
	}

	if err := dag.Validate(); err != nil {
		return nil, err
	}
	return dag, nil
}

// RunTask runs one task of the DAG by ID outside of any run.
func RunTask(ctx context.Context, dag *scheduler.DAG, taskID string) error {
	task, ok := dag.Task(taskID)
	if !ok {
		return fmt.Errorf("dag %s: unknown task %q", dag.ID, taskID)
	}
	return task.Run(ctx)
}
