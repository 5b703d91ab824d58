// Package config provides configuration loading for bornconvert.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/born-ml/bornconvert/convert"
	"github.com/born-ml/bornconvert/internal/checkpoint"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envPrefix namespaces the environment overrides, e.g.
// BORNCONVERT_SAVES_DIR -> saves_dir.
const envPrefix = "BORNCONVERT_"

// Config holds the export pipeline settings. Everything the original tool
// hard-coded (saves directory, artifact path, operator-set version) is an
// explicit parameter here.
type Config struct {
	// SavesDir is the checkpoint directory to scan.
	SavesDir string `koanf:"saves_dir"`
	// Output is the artifact path. Empty means the format's default
	// filename (model.tflite / model.onnx) in the working directory.
	Output string `koanf:"output"`
	// Format selects the converter: "tflite" or "onnx".
	Format string `koanf:"format"`
	// Ordering decides which checkpoint is "latest": "numeric",
	// "lexicographic" or "mtime".
	Ordering string `koanf:"ordering"`
	// Opset is the ONNX operator-set version.
	Opset int64 `koanf:"opset"`
	// Verbose enables debug logging.
	Verbose bool `koanf:"verbose"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SavesDir: "saves",
		Format:   string(convert.FormatTFLite),
		Ordering: string(checkpoint.OrderingNumeric),
		Opset:    13,
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML file at configPath (skipped when empty or missing), and
// BORNCONVERT_* environment variables.
func Load(configPath string) (Config, error) {
	k := koanf.New(".")

	cfg := Default()

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			if info.Size() > maxConfigFileSize {
				return Config{}, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
			}
			content, err := os.ReadFile(configPath)
			if err != nil {
				return Config{}, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	// Environment overrides: BORNCONVERT_SAVES_DIR -> saves_dir.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enum fields and numeric ranges.
func (c *Config) Validate() error {
	if _, err := convert.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := checkpoint.ParseOrdering(c.Ordering); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Opset <= 0 {
		return fmt.Errorf("invalid config: opset must be positive, got %d", c.Opset)
	}
	return nil
}

// OutputPath resolves the artifact path, falling back to the format default.
func (c *Config) OutputPath() string {
	if c.Output != "" {
		return c.Output
	}
	if c.Format == string(convert.FormatONNX) {
		return "model.onnx"
	}
	return "model.tflite"
}
