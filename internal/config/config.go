// Package config holds the pipeline settings. Defaults reproduce the sample
// DAG; an optional HCL file overrides them.
package config

import (
	"context"
	"fmt"
	"time"

	"go-star-pipeline/internal/ctxlog"
	"go-star-pipeline/internal/model"
	"go-star-pipeline/pkg/utils"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

const (
	DefaultDatabasePath = "/tmp/example_star_schema.db"
	DefaultMetadataPath = "pipeline.db"
	DefaultAPIAddress   = ":8080"
)

// Config is the resolved configuration.
type Config struct {
	DatabasePath string
	MetadataPath string
	Schedule     Schedule
	APIAddress   string
	LogLevel     string
	LogFormat    string
}

// Schedule is how the scheduler drives the DAG.
type Schedule struct {
	Interval  time.Duration
	StartDate time.Time
	Args      model.DefaultArgs
}

// Default returns the settings of the original daily DAG.
func Default() Config {
	return Config{
		DatabasePath: DefaultDatabasePath,
		MetadataPath: DefaultMetadataPath,
		Schedule: Schedule{
			Interval:  24 * time.Hour,
			StartDate: time.Date(2023, 9, 15, 0, 0, 0, 0, time.UTC),
			Args: model.DefaultArgs{
				Owner:          "airflow",
				DependsOnPast:  false,
				Retries:        1,
				RetryDelay:     5 * time.Minute,
				EmailOnFailure: false,
				EmailOnRetry:   false,
			},
		},
		APIAddress: DefaultAPIAddress,
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// fileConfig is the HCL layout. Every attribute is optional.
type fileConfig struct {
	DatabasePath *string        `hcl:"database_path,optional"`
	MetadataPath *string        `hcl:"metadata_path,optional"`
	Schedule     *scheduleBlock `hcl:"schedule,block"`
	API          *apiBlock      `hcl:"api,block"`
	Log          *logBlock      `hcl:"log,block"`
}

type scheduleBlock struct {
	Interval       *string `hcl:"interval,optional"`
	StartDate      *string `hcl:"start_date,optional"`
	Owner          *string `hcl:"owner,optional"`
	DependsOnPast  *bool   `hcl:"depends_on_past,optional"`
	Retries        *int    `hcl:"retries,optional"`
	RetryDelay     *string `hcl:"retry_delay,optional"`
	EmailOnFailure *bool   `hcl:"email_on_failure,optional"`
	EmailOnRetry   *bool   `hcl:"email_on_retry,optional"`
}

type apiBlock struct {
	Address *string `hcl:"address,optional"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// Load returns Default() overridden by the HCL file at path.
// An empty path returns the defaults.
func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding config file.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse config file %s: %s", path, diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to decode config file %s: %s", path, diags.Error())
	}

	if err := fc.apply(&cfg); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (fc fileConfig) apply(cfg *Config) error {
	setString(&cfg.DatabasePath, fc.DatabasePath)
	setString(&cfg.MetadataPath, fc.MetadataPath)

	if s := fc.Schedule; s != nil {
		if s.Interval != nil {
			d, err := utils.ParseDuration(*s.Interval, cfg.Schedule.Interval)
			if err != nil {
				return fmt.Errorf("schedule.interval: %w", err)
			}
			cfg.Schedule.Interval = d
		}
		if s.StartDate != nil {
			t, err := utils.ParseDate(*s.StartDate, cfg.Schedule.StartDate)
			if err != nil {
				return fmt.Errorf("schedule.start_date: %w", err)
			}
			cfg.Schedule.StartDate = t
		}
		if s.RetryDelay != nil {
			d, err := utils.ParseDuration(*s.RetryDelay, cfg.Schedule.Args.RetryDelay)
			if err != nil {
				return fmt.Errorf("schedule.retry_delay: %w", err)
			}
			cfg.Schedule.Args.RetryDelay = d
		}
		if s.Retries != nil {
			cfg.Schedule.Args.Retries = *s.Retries
		}
		setString(&cfg.Schedule.Args.Owner, s.Owner)
		setBool(&cfg.Schedule.Args.DependsOnPast, s.DependsOnPast)
		setBool(&cfg.Schedule.Args.EmailOnFailure, s.EmailOnFailure)
		setBool(&cfg.Schedule.Args.EmailOnRetry, s.EmailOnRetry)
	}

	if fc.API != nil {
		setString(&cfg.APIAddress, fc.API.Address)
	}
	if fc.Log != nil {
		setString(&cfg.LogLevel, fc.Log.Level)
		setString(&cfg.LogFormat, fc.Log.Format)
	}
	return nil
}

// Validate rejects settings the scheduler cannot run with.
func (c Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.MetadataPath == "" {
		return fmt.Errorf("metadata_path is required")
	}
	if c.DatabasePath == c.MetadataPath {
		return fmt.Errorf("database_path and metadata_path must differ")
	}
	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive")
	}
	if c.Schedule.Args.Retries < 0 {
		return fmt.Errorf("schedule.retries must not be negative")
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
