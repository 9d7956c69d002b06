package scheduler

import (
	"context"
	"fmt"
	"time"

	"go-star-pipeline/internal/model"
)

// TaskFunc is the unit of work behind a task.
type TaskFunc func(ctx context.Context) error

// Task is a named node of a DAG.
type Task struct {
	ID  string
	Run TaskFunc

	upstream   []string
	downstream []string
}

// DAG is a set of tasks plus the precedence edges between them.
type DAG struct {
	ID          string
	Description string
	Schedule    time.Duration
	StartDate   time.Time
	DefaultArgs model.DefaultArgs

	tasks map[string]*Task
	added []string
}

// NewDAG creates an empty DAG.
func NewDAG(id string, args model.DefaultArgs) *DAG {
	return &DAG{
		ID:          id,
		DefaultArgs: args,
		tasks:       make(map[string]*Task),
	}
}

// AddTask registers fn under id.
func (d *DAG) AddTask(id string, fn TaskFunc) (*Task, error) {
	if id == "" {
		return nil, fmt.Errorf("dag %s: task id is required", d.ID)
	}
	if fn == nil {
		return nil, fmt.Errorf("dag %s: task %s has no function", d.ID, id)
	}
	if _, ok := d.tasks[id]; ok {
		return nil, fmt.Errorf("dag %s: duplicate task %s", d.ID, id)
	}

	t := &Task{ID: id, Run: fn}
	d.tasks[id] = t
	d.added = append(d.added, id)
	return t, nil
}

// SetUpstream declares that downstream may only start after upstream succeeded.
func (d *DAG) SetUpstream(upstream, downstream string) error {
	if upstream == downstream {
		return fmt.Errorf("dag %s: self-referential edge %s -> %s", d.ID, upstream, downstream)
	}
	up, ok := d.tasks[upstream]
	if !ok {
		return fmt.Errorf("dag %s: upstream task not found: %s", d.ID, upstream)
	}
	down, ok := d.tasks[downstream]
	if !ok {
		return fmt.Errorf("dag %s: downstream task not found: %s", d.ID, downstream)
	}

	for _, id := range down.upstream {
		if id == upstream {
			return nil
		}
	}
	down.upstream = append(down.upstream, upstream)
	up.downstream = append(up.downstream, downstream)
	return nil
}

// Task returns the task registered under id.
func (d *DAG) Task(id string) (*Task, bool) {
	t, ok := d.tasks[id]
	return t, ok
}

// TaskIDs returns task IDs in registration order.
func (d *DAG) TaskIDs() []string {
	return append([]string(nil), d.added...)
}

// Upstream returns the direct upstream task IDs of id.
func (d *DAG) Upstream(id string) []string {
	if t, ok := d.tasks[id]; ok {
		return append([]string(nil), t.upstream...)
	}
	return nil
}

// Downstream returns the direct downstream task IDs of id.
func (d *DAG) Downstream(id string) []string {
	if t, ok := d.tasks[id]; ok {
		return append([]string(nil), t.downstream...)
	}
	return nil
}

// Order returns a topological order of the tasks. Among tasks that are ready
// at the same time, registration order wins, so the result is deterministic.
func (d *DAG) Order() ([]string, error) {
	pending := make(map[string]int, len(d.tasks))
	for id, t := range d.tasks {
		pending[id] = len(t.upstream)
	}

	order := make([]string, 0, len(d.tasks))
	done := make(map[string]bool, len(d.tasks))
	for len(order) < len(d.tasks) {
		progressed := false
		for _, id := range d.added {
			if done[id] || pending[id] > 0 {
				continue
			}
			done[id] = true
			order = append(order, id)
			for _, next := range d.tasks[id].downstream {
				pending[next]--
			}
			progressed = true
			break
		}
		if !progressed {
			for _, id := range d.added {
				if !done[id] {
					return nil, fmt.Errorf("dag %s: cycle detected involving task %s", d.ID, id)
				}
			}
		}
	}
	return order, nil
}

// Validate checks that the DAG can be scheduled.
func (d *DAG) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("dag id is required")
	}
	if len(d.tasks) == 0 {
		return fmt.Errorf("dag %s: no tasks", d.ID)
	}
	if d.DefaultArgs.Retries < 0 {
		return fmt.Errorf("dag %s: retries must not be negative", d.ID)
	}
	if d.DefaultArgs.RetryDelay < 0 {
		return fmt.Errorf("dag %s: retry delay must not be negative", d.ID)
	}
	_, err := d.Order()
	return err
}
