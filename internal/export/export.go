// Package export runs the checkpoint-to-artifact pipeline: discover the
// latest checkpoint, load it, convert it, and write the result.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/born-ml/bornconvert/convert"
	"github.com/born-ml/bornconvert/internal/checkpoint"
)

// Options configures a pipeline run.
type Options struct {
	// SavesDir is the directory scanned for checkpoints.
	SavesDir string
	// Output is the artifact path. Empty means the converter's default
	// filename in the working directory.
	Output string
	// Ordering decides which checkpoint is latest.
	Ordering checkpoint.Ordering
	// Converter turns the loaded model into artifact bytes.
	Converter convert.Converter
	// Logger receives progress messages. Nil means slog.Default.
	Logger *slog.Logger
}

// Result reports what a pipeline run produced.
type Result struct {
	// Checkpoint is the path of the source checkpoint.
	Checkpoint string
	// Output is the path of the written artifact.
	Output string
	// Size is the artifact size in bytes.
	Size int64
}

// Run executes the pipeline once. Existing artifacts at the output path
// are overwritten; re-running against an unchanged directory rewrites
// the same bytes.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Converter == nil {
		return nil, fmt.Errorf("export: converter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ckptPath, err := checkpoint.Latest(opts.SavesDir, opts.Ordering)
	if err != nil {
		return nil, fmt.Errorf("failed to find checkpoint in %s: %w", opts.SavesDir, err)
	}
	logger.Debug("found checkpoint", "path", ckptPath, "ordering", opts.Ordering)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, err := checkpoint.Load(ckptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", ckptPath, err)
	}
	logger.Debug("loaded checkpoint",
		"name", model.Name,
		"layers", len(model.Layers),
		"tensors", len(model.Weights))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := opts.Converter.Convert(model)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", ckptPath, err)
	}

	output := opts.Output
	if output == "" {
		output = opts.Converter.DefaultOutput()
	}
	if err := writeArtifact(output, data); err != nil {
		return nil, err
	}

	logger.Info(fmt.Sprintf("saved %s as %s", filepath.Base(ckptPath), output),
		"format", opts.Converter.Format(),
		"bytes", len(data))

	return &Result{
		Checkpoint: ckptPath,
		Output:     output,
		Size:       int64(len(data)),
	}, nil
}

// writeArtifact overwrites the artifact at path, creating parent
// directories as needed.
func writeArtifact(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}
