package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/born-ml/bornconvert/convert"
	"github.com/born-ml/bornconvert/internal/checkpoint"
	"github.com/born-ml/bornconvert/internal/config"
	"github.com/born-ml/bornconvert/internal/export"
)

// exportCmd runs the pipeline once.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Convert the latest checkpoint to a deployment artifact",
	Long: `Find the latest checkpoint in the saves directory, convert it and
write the artifact. Existing artifacts are overwritten.

Examples:
  # Latest checkpoint in ./saves as model.tflite
  bornconvert export

  # ONNX with an explicit opset
  bornconvert export --format onnx --opset 17

  # Pick "latest" by modification time instead of the numeric suffix
  bornconvert export --ordering mtime --saves-dir /data/ckpts -o dist/model.tflite`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	addPipelineFlags(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	opts, err := pipelineOptions(cfg)
	if err != nil {
		return err
	}
	_, err = export.Run(cmd.Context(), opts)
	return err
}

// pipelineOptions translates validated config into export options.
func pipelineOptions(cfg config.Config) (export.Options, error) {
	format, err := convert.ParseFormat(cfg.Format)
	if err != nil {
		return export.Options{}, err
	}
	ordering, err := checkpoint.ParseOrdering(cfg.Ordering)
	if err != nil {
		return export.Options{}, err
	}
	conv, err := convert.New(format, convert.Options{OpsetVersion: cfg.Opset})
	if err != nil {
		return export.Options{}, err
	}
	return export.Options{
		SavesDir:  cfg.SavesDir,
		Output:    cfg.Output,
		Ordering:  ordering,
		Converter: conv,
		Logger:    slog.Default(),
	}, nil
}
