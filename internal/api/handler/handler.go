package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go-star-pipeline/internal/ctxlog"
	"go-star-pipeline/internal/model"
	"go-star-pipeline/internal/pipeline"
	"go-star-pipeline/internal/scheduler"
	"go-star-pipeline/internal/store"
	"go-star-pipeline/pkg/utils"
)

// RunReader is the read side of the run metadata store.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*model.DagRun, error)
	ListRuns(ctx context.Context, dagID string, limit int) ([]model.DagRun, error)
	TaskInstances(ctx context.Context, runID string) ([]model.TaskInstance, error)
	TaskFailures(ctx context.Context, runID string) ([]model.TaskFailure, error)
}

// Handler serves the scheduler and warehouse endpoints.
type Handler struct {
	runner *scheduler.Runner
	runs   RunReader
	dbPath string

	// runs triggered over HTTP outlive the request
	baseCtx context.Context
	wg      sync.WaitGroup
}

// New returns a Handler. Triggered runs execute under baseCtx, which should
// carry the service logger and be cancelled on shutdown.
func New(baseCtx context.Context, runner *scheduler.Runner, runs RunReader, dbPath string) *Handler {
	return &Handler{runner: runner, runs: runs, dbPath: dbPath, baseCtx: baseCtx}
}

// Wait blocks until every run started by TriggerRun has returned.
func (h *Handler) Wait() { h.wg.Wait() }

// TriggerRunRequest is the optional body of a manual trigger.
type TriggerRunRequest struct {
	LogicalDate string `json:"logical_date,omitempty" example:"2023-09-15"`
}

// TriggerRunResponse reports the run a trigger created or found.
type TriggerRunResponse struct {
	Message string       `json:"message"`
	Created bool         `json:"created"`
	Run     model.DagRun `json:"run"`
}

// RunDetail is a run with its task instances and failed tries.
type RunDetail struct {
	Run      model.DagRun         `json:"run"`
	Tasks    []model.TaskInstance `json:"tasks"`
	Failures []model.TaskFailure  `json:"failures"`
}

// TriggerRun starts a manual run of the DAG
// @Summary Trigger a DAG run
// @Description Create a manual run for the given logical date (default: now) and execute it in the background. An existing run for the same logical date is returned instead.
// @Tags dags
// @Accept json
// @Produce json
// @Param dag_id path string true "DAG ID"
// @Param run body TriggerRunRequest false "Run options"
// @Success 202 {object} TriggerRunResponse "Run created"
// @Success 200 {object} TriggerRunResponse "Run already exists"
// @Failure 400 {string} string "Invalid request payload"
// @Failure 404 {string} string "DAG not found"
// @Failure 500 {string} string "Internal server error"
// @Router /dags/{dag_id}/runs [post]
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if !h.matchDAG(w, r) {
		return
	}

	var req TriggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	logical, err := utils.ParseDate(req.LogicalDate, time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, created, err := h.runner.Submit(r.Context(), logical, scheduler.TriggerManual)
	if err != nil {
		ctxlog.FromContext(h.baseCtx).Error("failed to create run", "error", err)
		http.Error(w, "Failed to create run", http.StatusInternalServerError)
		return
	}

	status, msg := http.StatusOK, "Run already exists for logical date"
	if created {
		status, msg = http.StatusAccepted, "Run queued"
		h.execute(run.ID)
	}
	writeJSON(w, status, TriggerRunResponse{Message: msg, Created: created, Run: *run})
}

func (h *Handler) execute(runID string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.runner.Execute(h.baseCtx, runID); err != nil {
			ctxlog.FromContext(h.baseCtx).Error("manual run finished with error", "run_id", runID, "error", err)
		}
	}()
}

// ListRuns lists runs of the DAG
// @Summary List DAG runs
// @Description Get the runs of a DAG, newest logical date first
// @Tags dags
// @Produce json
// @Param dag_id path string true "DAG ID"
// @Param limit query int false "Maximum number of runs" default(100)
// @Success 200 {array} model.DagRun "List of runs"
// @Failure 400 {string} string "Invalid limit"
// @Failure 404 {string} string "DAG not found"
// @Failure 500 {string} string "Internal server error"
// @Router /dags/{dag_id}/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.matchDAG(w, r) {
		return
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), h.runner.DAG().ID, limit)
	if err != nil {
		http.Error(w, "Failed to fetch runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run
// @Summary Get DAG run
// @Description Retrieve a run with its task instances and failed tries
// @Tags runs
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} RunDetail "Run details"
// @Failure 400 {string} string "Run ID is required"
// @Failure 404 {string} string "Run not found"
// @Failure 500 {string} string "Internal server error"
// @Router /runs/{run_id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"), "/")
	if runID == "" || strings.Contains(runID, "/") {
		http.Error(w, "Run ID is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	run, err := h.runs.GetRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to fetch run", http.StatusInternalServerError)
		return
	}

	tasks, err := h.runs.TaskInstances(ctx, runID)
	if err != nil {
		http.Error(w, "Failed to fetch task instances", http.StatusInternalServerError)
		return
	}
	failures, err := h.runs.TaskFailures(ctx, runID)
	if err != nil {
		http.Error(w, "Failed to fetch task failures", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, RunDetail{Run: *run, Tasks: tasks, Failures: failures})
}

// GetWarehouse reports the warehouse stage
// @Summary Warehouse status
// @Description Report whether the schema exists and how many rows each table holds
// @Tags warehouse
// @Produce json
// @Success 200 {object} pipeline.Report "Warehouse status"
// @Failure 503 {string} string "Warehouse unavailable"
// @Router /warehouse [get]
func (h *Handler) GetWarehouse(w http.ResponseWriter, r *http.Request) {
	rep, err := pipeline.Inspect(r.Context(), h.dbPath)
	if err != nil {
		http.Error(w, "Warehouse unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ListPeople returns dim_person
// @Summary List persons
// @Description Get every row of the dim_person dimension table
// @Tags warehouse
// @Produce json
// @Success 200 {array} model.Person "Persons"
// @Failure 503 {string} string "Warehouse unavailable"
// @Router /warehouse/people [get]
func (h *Handler) ListPeople(w http.ResponseWriter, r *http.Request) {
	h.readWarehouse(w, r, func(ctx context.Context, q store.Queryer) (any, error) {
		return store.ListPeople(ctx, q)
	})
}

// ListPurchases returns fact_people
// @Summary List purchases
// @Description Get every row of the fact_people fact table
// @Tags warehouse
// @Produce json
// @Success 200 {array} model.Purchase "Purchases"
// @Failure 503 {string} string "Warehouse unavailable"
// @Router /warehouse/purchases [get]
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	h.readWarehouse(w, r, func(ctx context.Context, q store.Queryer) (any, error) {
		return store.ListPurchases(ctx, q)
	})
}

func (h *Handler) readWarehouse(w http.ResponseWriter, r *http.Request, read func(context.Context, store.Queryer) (any, error)) {
	ctx := r.Context()
	db, err := store.OpenReadOnly(ctx, h.dbPath)
	if err != nil {
		http.Error(w, "Warehouse unavailable", http.StatusServiceUnavailable)
		return
	}
	defer db.Close()

	rows, err := read(ctx, db)
	if err != nil {
		ctxlog.FromContext(h.baseCtx).Warn("warehouse read failed", "error", err)
		http.Error(w, "Warehouse unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Health reports liveness
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string "Service is up"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "dag_id": h.runner.DAG().ID})
}

// matchDAG checks the {dag_id} of /api/v1/dags/{dag_id}/runs.
func (h *Handler) matchDAG(w http.ResponseWriter, r *http.Request) bool {
	prefix, suffix := "/api/v1/dags/", "/runs"
	path := strings.TrimSuffix(r.URL.Path, "/")
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return false
	}

	dagID := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	if dagID != h.runner.DAG().ID {
		http.Error(w, "DAG not found", http.StatusNotFound)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
