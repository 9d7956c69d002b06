package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-star-pipeline/internal/model"
)

// RunStore persists DAG runs, task instances and failed tries so the
// scheduler can resume after a restart.
type RunStore struct {
	db *sql.DB
}

// OpenRunStore opens (and migrates) the scheduler metadata database at path.
func OpenRunStore(ctx context.Context, path string) (*RunStore, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}

	rs := &RunStore{db: db}
	if err := rs.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return rs, nil
}

// Close releases the metadata database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

func (s *RunStore) migrate(ctx context.Context) error {
	runTable := `
	CREATE TABLE IF NOT EXISTS dag_runs (
		id TEXT PRIMARY KEY,
		dag_id TEXT NOT NULL,
		logical_date DATETIME NOT NULL,
		state TEXT NOT NULL,
		run_trigger TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(dag_id, logical_date)
	);
	`
	taskTable := `
	CREATE TABLE IF NOT EXISTS task_instances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES dag_runs(id),
		task_id TEXT NOT NULL,
		state TEXT NOT NULL,
		try_number INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME,
		ended_at DATETIME,
		UNIQUE(run_id, task_id)
	);
	`
	failureTable := `
	CREATE TABLE IF NOT EXISTS task_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		try_number INTEGER NOT NULL,
		error_message TEXT,
		created_at DATETIME NOT NULL
	);
	`

	for _, stmt := range []string{runTable, taskTable, failureTable} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storageErr("migrate run store", err)
		}
	}
	return nil
}

// CreateRun stores run together with one queued task instance per task ID,
// in the given order.
func (s *RunStore) CreateRun(ctx context.Context, run model.DagRun, taskIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin create run", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO dag_runs (id, dag_id, logical_date, state, run_trigger, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DagID, run.LogicalDate.UTC(), string(run.State), run.Trigger, run.CreatedAt.UTC(), run.UpdatedAt.UTC())
	if err != nil {
		return storageErr("insert run "+run.ID, err)
	}

	for _, taskID := range taskIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO task_instances (run_id, task_id, state, try_number) VALUES (?, ?, ?, 0)`,
			run.ID, taskID, string(model.TaskQueued))
		if err != nil {
			return storageErr("insert task instance "+taskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit run "+run.ID, err)
	}
	return nil
}

const runColumns = `id, dag_id, logical_date, state, run_trigger, created_at, updated_at`

func scanRun(sc interface{ Scan(...any) error }) (*model.DagRun, error) {
	var r model.DagRun
	var state string
	if err := sc.Scan(&r.ID, &r.DagID, &r.LogicalDate, &state, &r.Trigger, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.State = model.RunState(state)
	return &r, nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*model.DagRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM dag_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get run "+runID, err)
	}
	return run, nil
}

// FindRun returns the run of dagID for logicalDate, or nil when there is none.
func (s *RunStore) FindRun(ctx context.Context, dagID string, logicalDate time.Time) (*model.DagRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM dag_runs WHERE dag_id = ? AND logical_date = ?`, dagID, logicalDate.UTC())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find run", err)
	}
	return run, nil
}

// PreviousRun returns the run of dagID with the latest logical date before
// logicalDate, or nil when there is none.
func (s *RunStore) PreviousRun(ctx context.Context, dagID string, logicalDate time.Time) (*model.DagRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM dag_runs WHERE dag_id = ? AND logical_date < ? ORDER BY logical_date DESC LIMIT 1`,
		dagID, logicalDate.UTC())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find previous run", err)
	}
	return run, nil
}

// ListRuns returns the newest runs of dagID first.
func (s *RunStore) ListRuns(ctx context.Context, dagID string, limit int) ([]model.DagRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM dag_runs WHERE dag_id = ? ORDER BY logical_date DESC, created_at DESC LIMIT ?`,
		dagID, limit)
	if err != nil {
		return nil, storageErr("list runs", err)
	}
	defer rows.Close()
	return collectRuns(rows)
}

// UnfinishedRuns returns runs of dagID still in the running state, oldest first.
func (s *RunStore) UnfinishedRuns(ctx context.Context, dagID string) ([]model.DagRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM dag_runs WHERE dag_id = ? AND state = ? ORDER BY logical_date, created_at`,
		dagID, string(model.RunRunning))
	if err != nil {
		return nil, storageErr("list unfinished runs", err)
	}
	defer rows.Close()
	return collectRuns(rows)
}

func collectRuns(rows *sql.Rows) ([]model.DagRun, error) {
	runs := []model.DagRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, storageErr("scan run", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("read runs", err)
	}
	return runs, nil
}

// UpdateRunState sets the state of a run.
func (s *RunStore) UpdateRunState(ctx context.Context, runID string, state model.RunState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dag_runs SET state = ?, updated_at = ? WHERE id = ?`, string(state), time.Now().UTC(), runID)
	if err != nil {
		return storageErr("update run "+runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// SaveTaskState writes the current state of a task instance.
func (s *RunStore) SaveTaskState(ctx context.Context, ti model.TaskInstance) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_instances (run_id, task_id, state, try_number, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, task_id) DO UPDATE SET
			state = excluded.state,
			try_number = excluded.try_number,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at`,
		ti.RunID, ti.TaskID, string(ti.State), ti.TryNumber, nullTime(ti.StartedAt), nullTime(ti.EndedAt))
	if err != nil {
		return storageErr(fmt.Sprintf("save task %s/%s", ti.RunID, ti.TaskID), err)
	}
	return nil
}

// TaskInstances returns the task instances of a run in creation order.
func (s *RunStore) TaskInstances(ctx context.Context, runID string) ([]model.TaskInstance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, task_id, state, try_number, started_at, ended_at
		FROM task_instances WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, storageErr("list task instances", err)
	}
	defer rows.Close()

	instances := []model.TaskInstance{}
	for rows.Next() {
		var ti model.TaskInstance
		var state string
		var started, ended sql.NullTime
		if err := rows.Scan(&ti.RunID, &ti.TaskID, &state, &ti.TryNumber, &started, &ended); err != nil {
			return nil, storageErr("scan task instance", err)
		}
		ti.State = model.TaskState(state)
		if started.Valid {
			t := started.Time
			ti.StartedAt = &t
		}
		if ended.Valid {
			t := ended.Time
			ti.EndedAt = &t
		}
		if ti.StartedAt != nil && ti.EndedAt != nil {
			ti.Duration = ti.EndedAt.Sub(*ti.StartedAt).String()
		}
		instances = append(instances, ti)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list task instances", err)
	}
	return instances, nil
}

// SaveTaskFailure records a failed try of a task.
func (s *RunStore) SaveTaskFailure(ctx context.Context, runID, taskID string, try int, taskErr error) error {
	if taskErr == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_failures (run_id, task_id, try_number, error_message, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, taskID, try, taskErr.Error(), time.Now().UTC())
	if err != nil {
		return storageErr("save task failure", err)
	}
	return nil
}

// TaskFailures returns every failed try recorded for a run.
func (s *RunStore) TaskFailures(ctx context.Context, runID string) ([]model.TaskFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, task_id, try_number, error_message, created_at
		FROM task_failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, storageErr("list task failures", err)
	}
	defer rows.Close()

	failures := []model.TaskFailure{}
	for rows.Next() {
		var f model.TaskFailure
		if err := rows.Scan(&f.ID, &f.RunID, &f.TaskID, &f.TryNumber, &f.ErrorMessage, &f.CreatedAt); err != nil {
			return nil, storageErr("scan task failure", err)
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list task failures", err)
	}
	return failures, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
