package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-star-pipeline/internal/config"
	"go-star-pipeline/internal/ctxlog"
	"go-star-pipeline/internal/dataset"
	"go-star-pipeline/internal/pipeline"
	"go-star-pipeline/internal/scheduler"
	"go-star-pipeline/internal/store"
	"go-star-pipeline/pkg/utils"
)

// ExitError carries the process exit code for usage errors.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	mode       string
	task       string
	date       string
	dbPath     string
	metaPath   string
	logLevel   string
	logFormat  string
}

func parseFlags(args []string, out io.Writer) (*options, bool, error) {
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, `
pipeline - star-schema sample DAG (create_tables >> insert_data) on SQLite.

Usage:
  pipeline [options]

Modes:
  once       trigger one run now (or for -date) and wait for it
  scheduled  run the DAG every schedule interval until interrupted
  task       run a single task directly, outside of any DAG run
  report     print the warehouse stage and row counts

Options:
`)
		fs.PrintDefaults()
	}

	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "Path to an HCL config file.")
	fs.StringVar(&o.mode, "mode", "once", "Run mode: once, scheduled, task or report.")
	fs.StringVar(&o.task, "task", "", "Task to run in task mode: create_tables or insert_data.")
	fs.StringVar(&o.date, "date", "", "Logical date for once mode (YYYY-MM-DD). Defaults to now.")
	fs.StringVar(&o.dbPath, "db", "", "Warehouse SQLite file. Overrides the config file.")
	fs.StringVar(&o.metaPath, "metadata", "", "Run metadata SQLite file. Overrides the config file.")
	fs.StringVar(&o.logLevel, "log-level", "", "Logging level: debug, info, warn or error.")
	fs.StringVar(&o.logFormat, "log-format", "", "Log output format: text or json.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected arguments: %v", fs.Args())}
	}
	return o, false, nil
}

func loadConfig(ctx context.Context, o *options) (config.Config, error) {
	cfg, err := config.Load(ctx, o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.dbPath != "" {
		cfg.DatabasePath = o.dbPath
	}
	if o.metaPath != "" {
		cfg.MetadataPath = o.metaPath
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, nil
}

// run is main without the process exit, so tests can drive it.
func run(ctx context.Context, out io.Writer, args []string) error {
	o, shouldExit, err := parseFlags(args, out)
	if err != nil || shouldExit {
		return err
	}

	cfg, err := loadConfig(ctx, o)
	if err != nil {
		return err
	}
	logger, err := ctxlog.New(out, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	ctx = ctxlog.WithLogger(ctx, logger)

	dag, err := pipeline.NewDAG(cfg.DatabasePath, dataset.Sample(), cfg.Schedule)
	if err != nil {
		return err
	}

	switch o.mode {
	case "report":
		return report(ctx, out, cfg.DatabasePath)
	case "task":
		if o.task == "" {
			return &ExitError{Code: 2, Message: "task mode needs -task create_tables or -task insert_data"}
		}
		return pipeline.RunTask(ctx, dag, o.task)
	case "once", "scheduled":
	default:
		return &ExitError{Code: 2, Message: fmt.Sprintf("invalid mode %q: must be once, scheduled, task or report", o.mode)}
	}

	logical, err := utils.ParseDate(o.date, time.Now().UTC())
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	runs, err := store.OpenRunStore(ctx, cfg.MetadataPath)
	if err != nil {
		return err
	}
	defer runs.Close()

	runner, err := scheduler.NewRunner(dag, runs)
	if err != nil {
		return err
	}
	if _, err := runner.Resume(ctx); err != nil {
		logger.Warn("resumed runs did not all succeed", "error", err)
	}

	if o.mode == "scheduled" {
		cron, err := scheduler.NewCron(runner)
		if err != nil {
			return err
		}
		return cron.Run(ctx)
	}

	dagRun, err := runner.Trigger(ctx, logical, scheduler.TriggerManual)
	if dagRun != nil {
		fmt.Fprintf(out, "run %s (%s) finished: %s\n", dagRun.ID, dagRun.LogicalDate.Format(time.DateOnly), dagRun.State)
	}
	return err
}

func report(ctx context.Context, out io.Writer, dbPath string) error {
	rep, err := pipeline.Inspect(ctx, dbPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "warehouse: %s\nstage: %s\n%s: %d rows\n%s: %d rows\n",
		dbPath, rep.Stage, store.TableDimPerson, rep.Persons, store.TableFactPeople, rep.Purchases)
	return nil
}
