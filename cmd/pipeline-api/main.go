package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-star-pipeline/internal/api"
	"go-star-pipeline/internal/api/handler"
	"go-star-pipeline/internal/config"
	"go-star-pipeline/internal/ctxlog"
	"go-star-pipeline/internal/dataset"
	"go-star-pipeline/internal/pipeline"
	"go-star-pipeline/internal/scheduler"
	"go-star-pipeline/internal/store"
	"go-star-pipeline/pkg/router"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Path to an HCL config file.")
	addr := flag.String("addr", "", "Listen address. Overrides the config file.")
	noSchedule := flag.Bool("no-schedule", false, "Serve the API without the daily scheduler.")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, *configPath, *addr, !*noSchedule); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath, addr string, schedule bool) error {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.APIAddress = addr
	}

	logger, err := ctxlog.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	ctx = ctxlog.WithLogger(ctx, logger)

	runs, err := store.OpenRunStore(ctx, cfg.MetadataPath)
	if err != nil {
		return err
	}
	defer runs.Close()

	dag, err := pipeline.NewDAG(cfg.DatabasePath, dataset.Sample(), cfg.Schedule)
	if err != nil {
		return err
	}
	runner, err := scheduler.NewRunner(dag, runs)
	if err != nil {
		return err
	}

	h := handler.New(ctx, runner, runs, cfg.DatabasePath)
	r := router.New()
	api.RegisterRoutes(r, h)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := runner.Resume(gctx); err != nil {
			logger.Warn("resumed runs did not all succeed", "error", err)
		}
		if !schedule {
			return nil
		}
		cron, err := scheduler.NewCron(runner)
		if err != nil {
			return err
		}
		return cron.Run(gctx)
	})
	g.Go(func() error {
		return r.Start(gctx, cfg.APIAddress)
	})

	err = g.Wait()
	h.Wait()
	logger.Info("pipeline api stopped")
	return err
}
