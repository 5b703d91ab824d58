// Package main implements the bornconvert CLI: export the latest training
// checkpoint as a deployment artifact (TFLite or ONNX).
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/bornconvert/internal/config"
	"github.com/born-ml/bornconvert/internal/logging"
)

var (
	// flagConfig is the optional YAML config path.
	flagConfig string
	// flagVerbose enables debug logging.
	flagVerbose bool
	// version information
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bornconvert",
	Short: "Export training checkpoints as deployment artifacts",
	Long: `bornconvert finds the latest checkpoint in a saves directory and
converts it to a deployment format: a TFLite flatbuffer for mobile
runtimes or an ONNX graph for interchange.

Settings come from flags, a YAML config file and BORNCONVERT_*
environment variables, in decreasing precedence.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logging.Options{Verbose: flagVerbose})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(inspectCmd)
}

// pipeline flags shared by export and watch.
var (
	flagSavesDir string
	flagOutput   string
	flagFormat   string
	flagOrdering string
	flagOpset    int64
)

func addPipelineFlags(cmd *cobra.Command) {
	defaults := config.Default()
	cmd.Flags().StringVar(&flagSavesDir, "saves-dir", defaults.SavesDir, "directory scanned for checkpoints")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "artifact path (default model.tflite / model.onnx)")
	cmd.Flags().StringVarP(&flagFormat, "format", "f", defaults.Format, "deployment format: tflite or onnx")
	cmd.Flags().StringVar(&flagOrdering, "ordering", defaults.Ordering, "checkpoint ordering: numeric, lexicographic or mtime")
	cmd.Flags().Int64Var(&flagOpset, "opset", defaults.Opset, "ONNX operator-set version")
}

// resolveConfig loads the layered configuration and applies explicit flag
// overrides on top.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("saves-dir") {
		cfg.SavesDir = flagSavesDir
	}
	if cmd.Flags().Changed("output") {
		cfg.Output = flagOutput
	}
	if cmd.Flags().Changed("format") {
		cfg.Format = flagFormat
	}
	if cmd.Flags().Changed("ordering") {
		cfg.Ordering = flagOrdering
	}
	if cmd.Flags().Changed("opset") {
		cfg.Opset = flagOpset
	}
	if flagVerbose {
		cfg.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
