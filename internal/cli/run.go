package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postcurator/internal/report"
)

var (
	runEvery  string
	runDryRun bool
	runBatch  int
	runFormat string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch news, compose posts and publish a batch",
	Long:  "run processes up to run.batch_size unseen articles. Per-article failures are reported and retried on a later run; only setup problems make the command fail.",
	RunE:  runAction,
}

func init() {
	runCmd.Flags().StringVar(&runEvery, "every", "", "repeat on an interval (e.g. 30m); runs once when empty")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print posts instead of publishing")
	runCmd.Flags().IntVar(&runBatch, "batch", 0, "override run.batch_size")
	runCmd.Flags().StringVar(&runFormat, "format", "terminal", "output format: terminal, json")
}

// runOnce performs a single pipeline pass. Tests replace it.
var runOnce = runPipeline

func runAction(cmd *cobra.Command, _ []string) error {
	interval, err := parseRunEvery(runEvery)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if interval == 0 {
		return runOnce(ctx)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runWatch(ctx, interval, func() error {
		return runOnce(ctx)
	})
}

func parseRunEvery(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse --every: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--every must be positive, got %s", d)
	}
	return d, nil
}

// runWatch calls fn immediately and then on every tick until ctx ends.
// A cancelled context is a clean stop; any other error from fn ends the loop.
func runWatch(ctx context.Context, interval time.Duration, fn func() error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runPipeline(ctx context.Context) error {
	formatter, err := report.New(runFormat, !noColor)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runBatch > 0 {
		cfg.Run.BatchSize = runBatch
	}
	dryRun := runDryRun || cfg.DryRun()
	if err := cfg.CheckCredentials(dryRun); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	deps, err := buildRun(ctx, cfg, logger, dryRun, os.Stdout)
	if err != nil {
		return err
	}
	defer deps.close()

	res, err := deps.pipeline.Run(ctx)
	if ferr := formatter.Run(os.Stdout, res); ferr != nil {
		return ferr
	}
	return err
}
