// Copyright 2026 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package convert selects and runs model-format converters.
//
// Both deployment formats are implementations of a single Converter
// capability, picked by name:
//
//	conv, err := convert.New(convert.FormatONNX, convert.Options{OpsetVersion: 13})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	artifact, err := conv.Convert(model)
//
// The mobile variant emits a TFLite flatbuffer; the interchange variant
// emits an ONNX graph at a fixed operator-set version.
package convert

import (
	"fmt"

	"github.com/born-ml/bornconvert/internal/checkpoint"
	"github.com/born-ml/bornconvert/internal/onnx"
	"github.com/born-ml/bornconvert/internal/tflite"
)

// version is stamped into artifacts as the producer version.
const version = "0.1.0"

// Format names a deployment format.
type Format string

// Supported formats.
const (
	FormatTFLite Format = "tflite"
	FormatONNX   Format = "onnx"
)

// ParseFormat validates a format name from configuration.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTFLite, FormatONNX:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown format %q (valid: tflite, onnx)", s)
	}
}

// Options configures a converter.
type Options struct {
	// OpsetVersion sets the ONNX operator-set version. Zero means the
	// default (13). Ignored by the TFLite converter.
	OpsetVersion int64
}

// Converter transforms a loaded checkpoint model into deployment bytes.
type Converter interface {
	// Convert produces the artifact. Conversion is deterministic: the
	// same model yields byte-identical output.
	Convert(m *checkpoint.Model) ([]byte, error)

	// Format returns the converter's format name.
	Format() Format

	// DefaultOutput returns the conventional artifact filename.
	DefaultOutput() string
}

// New returns the converter for the given format.
func New(f Format, opts Options) (Converter, error) {
	switch f {
	case FormatTFLite:
		return &tfliteConverter{}, nil
	case FormatONNX:
		return &onnxConverter{opset: opts.OpsetVersion}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
}

type tfliteConverter struct{}

func (c *tfliteConverter) Convert(m *checkpoint.Model) ([]byte, error) {
	data, err := tflite.Export(m, tflite.ExportOptions{})
	if err != nil {
		return nil, fmt.Errorf("tflite conversion failed: %w", err)
	}
	return data, nil
}

func (c *tfliteConverter) Format() Format { return FormatTFLite }

func (c *tfliteConverter) DefaultOutput() string { return "model.tflite" }

type onnxConverter struct {
	opset int64
}

func (c *onnxConverter) Convert(m *checkpoint.Model) ([]byte, error) {
	data, err := onnx.Export(m, onnx.ExportOptions{
		OpsetVersion:    c.opset,
		ProducerName:    "bornconvert",
		ProducerVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("onnx conversion failed: %w", err)
	}
	return data, nil
}

func (c *onnxConverter) Format() Format { return FormatONNX }

func (c *onnxConverter) DefaultOutput() string { return "model.onnx" }
