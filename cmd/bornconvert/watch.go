package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/born-ml/bornconvert/internal/watch"
)

var flagDebounce time.Duration

// watchCmd keeps the artifact in sync with the saves directory.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-export whenever a new checkpoint appears",
	Long: `Export once, then watch the saves directory and re-export after
every checkpoint change. Stops on SIGINT or SIGTERM.

Examples:
  # Keep model.tflite in sync with ./saves
  bornconvert watch

  # Longer debounce for slow checkpoint writers
  bornconvert watch --debounce 2s`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	addPipelineFlags(watchCmd)
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", watch.DefaultDebounce,
		"delay between a directory change and the export")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	opts, err := pipelineOptions(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := watch.New(watch.Options{
		Export:   opts,
		Debounce: flagDebounce,
		Logger:   slog.Default(),
	})

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("shutting down", "exports", w.ExportCount())
		return nil
	}
	return err
}
