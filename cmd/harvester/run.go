package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/job-harvester/internal/config"
	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/fetch"
	"github.com/jonathan/job-harvester/internal/jobs"
	"github.com/jonathan/job-harvester/internal/logging"
	"github.com/jonathan/job-harvester/internal/notify"
	"github.com/jonathan/job-harvester/internal/observability"
	"github.com/jonathan/job-harvester/internal/pipeline"
	"github.com/jonathan/job-harvester/internal/source"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Sweep every configured region and category",
	Long: `Runs one sweep per (region, category) task: list pages, then detail and
employer enrichment per posting, then one transactional insert per task.

Command-line flags override values from the config file.`,
	RunE: runHarvestCmd,
}

var (
	runRegions     []string
	runCategories  []string
	runMaxPages    int
	runConcurrency int
	runMigrate     bool
	runLogLevel    string
	runVerbose     bool
)

func init() {
	runCommand.Flags().StringSliceVarP(&runRegions, "region", "r", nil, "Region codes or names to sweep (default: all configured)")
	runCommand.Flags().StringSliceVarP(&runCategories, "category", "c", nil, "Category codes or names to sweep (default: all configured)")
	runCommand.Flags().IntVar(&runMaxPages, "max-pages", 0, "Maximum list pages per task")
	runCommand.Flags().IntVar(&runConcurrency, "concurrency", 0, "Number of tasks swept in parallel")
	runCommand.Flags().BoolVar(&runMigrate, "migrate", false, "Create the jobs table before harvesting")
	runCommand.Flags().StringVar(&runLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print a summary box after every sweep")

	rootCmd.AddCommand(runCommand)
}

func runHarvestCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("max-pages") {
		cfg.Search.MaxPages = runMaxPages
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Harvest.Concurrency = runConcurrency
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = runLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tasks, err := cfg.Tasks(runRegions, runCategories)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := observability.NewPrinter(cmd.OutOrStdout())
	var onSweep pipeline.SweepCallback
	if runVerbose {
		onSweep = printer.PrintSweep
	}

	start := time.Now()
	results, err := harvest(ctx, cfg, tasks, logger, runMigrate, onSweep)
	printer.PrintRunSummary(results, time.Since(start))
	if err != nil {
		return err
	}
	if n := pipeline.Failed(results); n > 0 {
		return fmt.Errorf("%d of %d sweeps failed to persist", n, len(results))
	}
	return nil
}

// harvest wires the session, API client, store and optional notifier, then
// runs every task. onSweep may be nil.
func harvest(ctx context.Context, cfg *config.Config, tasks []jobs.FetchTask, logger *zap.Logger, migrate bool, onSweep pipeline.SweepCallback) ([]pipeline.SweepResult, error) {
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	session := fetch.NewSession(cfg.FetchOptions(logger))
	defer session.Close()

	client, err := source.NewClient(session, cfg.SourceOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	store, err := db.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	if migrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	opts := cfg.HarvestOptions(logger)
	opts.OnSweep = onSweep
	var notifier *notify.Notifier
	if cfg.NotifyEnabled() {
		notifier, err = notify.New(ctx, cfg.NotifyOptions(logger))
		if err != nil {
			return nil, err
		}
		defer func() { _ = notifier.Close() }()
		opts.OnSweep = chain(onSweep, notifier.SweepCallback(ctx, runID))
	}

	logger.Info("harvest started",
		zap.Int("tasks", len(tasks)),
		zap.Int("max_pages", opts.MaxPages),
		zap.Int("concurrency", opts.Concurrency),
		zap.String("driver", cfg.Storage.Driver))

	start := time.Now()
	results, err := pipeline.New(client, store, opts).Run(ctx, tasks)
	elapsed := time.Since(start)

	if notifier != nil {
		if perr := notifier.PublishRun(context.WithoutCancel(ctx), runID, results, elapsed); perr != nil {
			logger.Warn("failed to publish run event", zap.Error(perr))
		}
	}
	if err != nil {
		logger.Warn("harvest interrupted", zap.Error(err), zap.Int("completed", len(results)))
		return results, err
	}

	logger.Info("harvest finished",
		zap.Int("sweeps", len(results)),
		zap.Int("failed", pipeline.Failed(results)),
		zap.Duration("elapsed", elapsed))
	return results, nil
}

func chain(callbacks ...pipeline.SweepCallback) pipeline.SweepCallback {
	return func(res pipeline.SweepResult) {
		for _, cb := range callbacks {
			if cb != nil {
				cb(res)
			}
		}
	}
}
