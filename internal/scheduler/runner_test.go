package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-star-pipeline/internal/ctxlog"
	"go-star-pipeline/internal/model"
	"go-star-pipeline/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2023, 9, 15, 0, 0, 0, 0, time.UTC)

func openRuns(t *testing.T) *store.RunStore {
	t.Helper()
	rs, err := store.OpenRunStore(context.Background(), filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })
	return rs
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

type recordingNotifier struct {
	retries  []string
	failures []string
}

func (n *recordingNotifier) NotifyRetry(_ context.Context, _ model.DagRun, taskID string, _ int, _ error) {
	n.retries = append(n.retries, taskID)
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, _ model.DagRun, taskID string, _ error) {
	n.failures = append(n.failures, taskID)
}

// twoTaskDAG mirrors the sample pipeline: first >> second.
func twoTaskDAG(t *testing.T, args model.DefaultArgs, first, second TaskFunc) *DAG {
	t.Helper()
	d := NewDAG("two_step", args)
	d.Schedule = 24 * time.Hour
	_, err := d.AddTask("first", first)
	require.NoError(t, err)
	_, err = d.AddTask("second", second)
	require.NoError(t, err)
	require.NoError(t, d.SetUpstream("first", "second"))
	return d
}

func statesOf(t *testing.T, rs *store.RunStore, runID string) map[string]model.TaskInstance {
	t.Helper()
	tis, err := rs.TaskInstances(context.Background(), runID)
	require.NoError(t, err)
	out := make(map[string]model.TaskInstance, len(tis))
	for _, ti := range tis {
		out[ti.TaskID] = ti
	}
	return out
}

func TestRunner_RunsTasksInOrder(t *testing.T) {
	ctx := context.Background()
	rs := openRuns(t)

	var calls []string
	d := twoTaskDAG(t, model.DefaultArgs{Retries: 1, RetryDelay: 5 * time.Minute},
		func(context.Context) error { calls = append(calls, "first"); return nil },
		func(context.Context) error { calls = append(calls, "second"); return nil },
	)
	r, err := NewRunner(d, rs)
	require.NoError(t, err)

	run, err := r.Trigger(ctx, day, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, run.State)
	assert.Equal(t, []string{"first", "second"}, calls)

	states := statesOf(t, rs, run.ID)
	assert.Equal(t, model.TaskSuccess, states["first"].State)
	assert.Equal(t, model.TaskSuccess, states["second"].State)
	assert.Equal(t, 1, states["second"].TryNumber)

	stored, err := rs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, stored.State)
}

func TestRunner_RetriesOnceAfterDelay(t *testing.T) {
	ctx := context.Background()
	rs := openRuns(t)
	sleeper := &sleepRecorder{}

	attempts := 0
	d := twoTaskDAG(t, model.DefaultArgs{Retries: 1, RetryDelay: 5 * time.Minute},
		func(context.Context) error {
			attempts++
			if attempts == 1 {
				return errors.New("database is locked")
			}
			return nil
		},
		noop,
	)
	r, err := NewRunner(d, rs, WithSleep(sleeper.sleep))
	require.NoError(t, err)

	run, err := r.Trigger(ctx, day, TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, run.State)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{5 * time.Minute}, sleeper.delays)

	states := statesOf(t, rs, run.ID)
	assert.Equal(t, 2, states["first"].TryNumber)

	failures, err := rs.TaskFailures(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "first", failures[0].TaskID)
	assert.Equal(t, 1, failures[0].TryNumber)
	assert.Equal(t, "database is locked", failures[0].ErrorMessage)
}

func TestRunner_ExhaustedRetriesFailRunAndBlockDownstream(t *testing.T) {
	ctx := context.Background()
	rs := openRuns(t)
	notifier := &recordingNotifier{}
	boom := errors.New("no such table: dim_person")

	attempts := 0
	secondRan := false
	d := twoTaskDAG(t, model.DefaultArgs{Retries: 1, RetryDelay: time.Minute},
		func(context.Context) error { attempts++; return boom },
		func(context.Context) error { secondRan = true; return nil },
	)
	r, err := NewRunner(d, rs, WithSleep(func(context.Context, time.Duration) error { return nil }), WithNotifier(notifier))
	require.NoError(t, err)

	run, err := r.Trigger(ctx, day, TriggerManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "first", taskErr.TaskID)
	assert.Equal(t, 2, taskErr.Tries)

	assert.Equal(t, model.RunFailed, run.State)
	assert.Equal(t, 2, attempts)
	assert.False(t, secondRan)

	states := statesOf(t, rs, run.ID)
	assert.Equal(t, model.TaskFailed, states["first"].State)
	assert.Equal(t, model.TaskUpstreamFailed, states["second"].State)
	assert.Equal(t, 0, states["second"].TryNumber)

	// alerting flags are off
	assert.Empty(t, notifier.retries)
	assert.Empty(t, notifier.failures)
}

func TestRunner_NotifiesWhenFlagsSet(t *testing.T) {
	rs := openRuns(t)
	notifier := &recordingNotifier{}

	d := twoTaskDAG(t, model.DefaultArgs{Retries: 1, EmailOnRetry: true, EmailOnFailure: true},
		func(context.Context) error { return errors.New("boom") },
		noop,
	)
	r, err := NewRunner(d, rs, WithSleep(func(context.Context, time.Duration) error { return nil }), WithNotifier(notifier))
	require.NoError(t, err)

	_, err = r.Trigger(context.Background(), day, TriggerManual)
	require.Error(t, err)
	assert.Equal(t, []string{"first"}, notifier.retries)
	assert.Equal(t, []string{"first"}, notifier.failures)
}

func TestRunner_ZeroRetriesFailsOnFirstError(t *testing.T) {
	rs := openRuns(t)
	attempts := 0
	d := twoTaskDAG(t, model.DefaultArgs{},
		func(context.Context) error { attempts++; return errors.New("boom") },
		noop,
	)
	r, err := NewRunner(d, rs)
	require.NoError(t, err)

	_, err = r.Trigger(context.Background(), day, TriggerManual)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRunner_TriggerDoesNotRepeatFinishedRun(t *testing.T) {
	ctx := context.Background()
	rs := openRuns(t)

	calls := 0
	d := twoTaskDAG(t, model.DefaultArgs{}, func(context.Context) error { calls++; return nil }, noop)
	r, err := NewRunner(d, rs)
	require.NoError(t, err)

	first, err := r.Trigger(ctx, day, TriggerScheduled)
	require.NoError(t, err)
	second, err := r.Trigger(ctx, day, TriggerScheduled)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, calls)

	_, err = r.Trigger(ctx, day.Add(24*time.Hour), TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunner_ResumeSkipsSucceededTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rs := openRuns(t)

	firstCalls, secondCalls := 0, 0
	d := twoTaskDAG(t, model.DefaultArgs{Retries: 1, RetryDelay: 5 * time.Minute},
		func(context.Context) error { firstCalls++; return nil },
		func(context.Context) error {
			secondCalls++
			if secondCalls == 1 {
				return errors.New("disk I/O error")
			}
			return nil
		},
	)

	// the process "dies" while waiting for the retry
	interrupted, err := NewRunner(d, rs, WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))
	require.NoError(t, err)

	run, err := interrupted.Trigger(ctx, day, TriggerScheduled)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.RunRunning, run.State)

	states := statesOf(t, rs, run.ID)
	assert.Equal(t, model.TaskSuccess, states["first"].State)
	assert.Equal(t, model.TaskUpForRetry, states["second"].State)

	restarted, err := NewRunner(d, rs)
	require.NoError(t, err)
	resumed, err := restarted.Resume(context.Background())
	require.NoError(t, err)
	require.Len(t, resumed, 1)
	assert.Equal(t, run.ID, resumed[0].ID)
	assert.Equal(t, model.RunSuccess, resumed[0].State)

	assert.Equal(t, 1, firstCalls, "succeeded upstream must not run again")
	assert.Equal(t, 2, secondCalls)

	states = statesOf(t, rs, run.ID)
	assert.Equal(t, 2, states["second"].TryNumber)
}

func TestRunner_ResumeFailsTaskWithNoTriesLeft(t *testing.T) {
	ctx := context.Background()
	rs := openRuns(t)

	d := twoTaskDAG(t, model.DefaultArgs{Retries: 1}, noop, noop)
	r, err := NewRunner(d, rs)
	require.NoError(t, err)

	run, created, err := r.Submit(ctx, day, TriggerManual)
	require.NoError(t, err)
	require.True(t, created)

	// both tries were spent before a crash
	require.NoError(t, rs.SaveTaskState(ctx, model.TaskInstance{
		RunID: run.ID, TaskID: "first", State: model.TaskRunning, TryNumber: 2,
	}))

	_, err = r.Resume(ctx)
	require.Error(t, err)

	states := statesOf(t, rs, run.ID)
	assert.Equal(t, model.TaskFailed, states["first"].State)
	assert.Equal(t, model.TaskUpstreamFailed, states["second"].State)
}

func TestNewRunner_RejectsInvalidDAG(t *testing.T) {
	_, err := NewRunner(NewDAG("empty", model.DefaultArgs{}), openRuns(t))
	assert.Error(t, err)
}

// faultyRecorder wraps a RunStore to inject metadata faults.
type faultyRecorder struct {
	*store.RunStore
	hiddenFinds   int
	failSuccessOf string
}

func (f *faultyRecorder) FindRun(ctx context.Context, dagID string, logicalDate time.Time) (*model.DagRun, error) {
	if f.hiddenFinds > 0 {
		f.hiddenFinds--
		return nil, nil
	}
	return f.RunStore.FindRun(ctx, dagID, logicalDate)
}

func (f *faultyRecorder) SaveTaskState(ctx context.Context, ti model.TaskInstance) error {
	if ti.State == model.TaskSuccess && ti.TaskID == f.failSuccessOf {
		return errors.New("database is locked")
	}
	return f.RunStore.SaveTaskState(ctx, ti)
}

func TestRunner_DependsOnPastHoldsTaskAfterFailedRun(t *testing.T) {
	ctx := context.Background()
	rs := openRuns(t)

	calls := 0
	fail := true
	d := twoTaskDAG(t, model.DefaultArgs{DependsOnPast: true},
		func(context.Context) error {
			calls++
			if fail {
				return errors.New("no such table: dim_person")
			}
			return nil
		},
		noop,
	)
	r, err := NewRunner(d, rs)
	require.NoError(t, err)

	run1, err := r.Trigger(ctx, day, TriggerScheduled)
	require.Error(t, err)
	assert.Equal(t, model.RunFailed, run1.State)
	assert.Equal(t, 1, calls)

	fail = false
	run2, err := r.Trigger(ctx, day.Add(24*time.Hour), TriggerScheduled)
	require.ErrorIs(t, err, ErrPastNotSucceeded)
	assert.Equal(t, model.RunRunning, run2.State)
	assert.Equal(t, 1, calls, "the task must not run while its previous run failed")

	states := statesOf(t, rs, run2.ID)
	assert.Equal(t, model.TaskQueued, states["first"].State)
	assert.Equal(t, 0, states["first"].TryNumber)

	stored, err := rs.GetRun(ctx, run2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, stored.State)
}

func TestRunner_DependsOnPastRunsAfterSuccessfulRun(t *testing.T) {
	ctx := context.Background()
	rs := openRuns(t)

	calls := 0
	d := twoTaskDAG(t, model.DefaultArgs{DependsOnPast: true},
		func(context.Context) error { calls++; return nil }, noop)
	r, err := NewRunner(d, rs)
	require.NoError(t, err)

	// no earlier run: nothing to wait for
	run1, err := r.Trigger(ctx, day, TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, run1.State)

	// a gap in logical dates still compares against the latest earlier run
	run3, err := r.Trigger(ctx, day.Add(48*time.Hour), TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, run3.State)
	assert.Equal(t, 2, calls)
}

func TestRunner_ConcurrentSubmitsShareOneRun(t *testing.T) {
	ctx := context.Background()
	rs := openRuns(t)

	d := twoTaskDAG(t, model.DefaultArgs{}, noop, noop)
	r, err := NewRunner(d, rs)
	require.NoError(t, err)

	const n = 8
	ids := make([]string, n)
	created := make([]bool, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, ok, err := r.Submit(ctx, day, TriggerManual)
			errs[i], created[i] = err, ok
			if run != nil {
				ids[i] = run.ID
			}
		}()
	}
	wg.Wait()

	createdCount := 0
	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)
}

func TestRunner_SubmitReturnsRunCreatedElsewhere(t *testing.T) {
	ctx := context.Background()
	rs := openRuns(t)

	d := twoTaskDAG(t, model.DefaultArgs{}, noop, noop)
	other, err := NewRunner(d, rs)
	require.NoError(t, err)
	first, _, err := other.Submit(ctx, day, TriggerScheduled)
	require.NoError(t, err)

	// the first lookup misses the run, as if it was inserted right after it
	r, err := NewRunner(d, &faultyRecorder{RunStore: rs, hiddenFinds: 1})
	require.NoError(t, err)

	run, created, err := r.Submit(ctx, day, TriggerManual)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, run.ID)
}

func TestRunner_UnsavedSuccessIsLoggedAndRepeatedOnResume(t *testing.T) {
	rs := openRuns(t)
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	secondCalls := 0
	d := twoTaskDAG(t, model.DefaultArgs{Retries: 1}, noop, func(context.Context) error { secondCalls++; return nil })

	r, err := NewRunner(d, &faultyRecorder{RunStore: rs, failSuccessOf: "second"})
	require.NoError(t, err)
	run, err := r.Trigger(ctx, day, TriggerScheduled)
	require.Error(t, err)
	assert.Equal(t, model.RunRunning, run.State)
	assert.Contains(t, buf.String(), "task succeeded but its state was not saved")
	assert.Contains(t, buf.String(), "task_id=second")

	restarted, err := NewRunner(d, rs)
	require.NoError(t, err)
	resumed, err := restarted.Resume(context.Background())
	require.NoError(t, err)
	require.Len(t, resumed, 1)
	assert.Equal(t, model.RunSuccess, resumed[0].State)
	assert.Equal(t, 2, secondCalls)
}
