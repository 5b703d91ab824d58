package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/bornconvert/internal/onnx"
	"github.com/born-ml/bornconvert/internal/serialization"
)

// inspectCmd prints a summary of a checkpoint or artifact.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print a summary of a checkpoint or exported artifact",
	Long: `Print the header contents of a .born or .safetensors checkpoint,
or the graph structure of an exported .onnx or .tflite artifact.

Examples:
  bornconvert inspect saves/model_010.born
  bornconvert inspect model.onnx`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	switch strings.ToLower(filepath.Ext(path)) {
	case ".born":
		return inspectBorn(cmd, path)
	case ".safetensors":
		return inspectSafeTensors(cmd, path)
	case ".onnx":
		return inspectONNX(cmd, path)
	case ".tflite":
		return inspectTFLite(cmd, path)
	default:
		return fmt.Errorf("unrecognized file type %q (supported: .born, .safetensors, .onnx, .tflite)", filepath.Ext(path))
	}
}

func inspectBorn(cmd *cobra.Command, path string) error {
	r, err := serialization.OpenWithOptions(path, serialization.ReaderOptions{SkipChecksum: true})
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	cmd.Printf("format:     born v%d\n", r.Version())
	if h.ProducerName != "" {
		cmd.Printf("producer:   %s\n", h.ProducerName)
	}
	cmd.Printf("model type: %s\n", h.ModelType)
	if !h.CreatedAt.IsZero() {
		cmd.Printf("created:    %s\n", h.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if ckpt := h.CheckpointMeta; ckpt != nil && ckpt.IsCheckpoint {
		cmd.Printf("checkpoint: epoch=%d step=%d loss=%g\n", ckpt.Epoch, ckpt.Step, ckpt.Loss)
	}
	if _, ok := h.Metadata[serialization.MetadataArchitectureKey]; ok {
		cmd.Printf("architecture metadata: present\n")
	}
	cmd.Printf("tensors (%d):\n", len(h.Tensors))
	for _, t := range h.Tensors {
		cmd.Printf("  %-32s %-8s %v (%d bytes)\n", t.Name, t.DType, t.Shape, t.Size)
	}
	return nil
}

func inspectSafeTensors(cmd *cobra.Command, path string) error {
	f, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return err
	}

	cmd.Printf("format: safetensors\n")
	if _, ok := f.Metadata[serialization.MetadataArchitectureKey]; ok {
		cmd.Printf("architecture metadata: present\n")
	}
	cmd.Printf("tensors (%d):\n", len(f.Names))
	for _, name := range f.Names {
		t := f.Tensors[name]
		cmd.Printf("  %-32s %-8s %v (%d bytes)\n", name, t.DType(), t.Shape(), len(t.Data()))
	}
	return nil
}

func inspectONNX(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	m, err := onnx.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cmd.Printf("format:   onnx (ir %d, opset %d)\n", m.IRVersion, m.OpsetVersion())
	if m.ProducerName != "" {
		cmd.Printf("producer: %s %s\n", m.ProducerName, m.ProducerVersion)
	}
	g := m.Graph
	if g == nil {
		cmd.Printf("no graph\n")
		return nil
	}
	cmd.Printf("graph:    %s\n", g.Name)
	for _, in := range g.Inputs {
		cmd.Printf("  input  %s %s\n", in.Name, valueShape(in))
	}
	for _, out := range g.Outputs {
		cmd.Printf("  output %s %s\n", out.Name, valueShape(out))
	}
	cmd.Printf("nodes (%d):\n", len(g.Nodes))
	for _, n := range g.Nodes {
		cmd.Printf("  %-10s %v -> %v\n", n.OpType, n.Inputs, n.Outputs)
	}
	cmd.Printf("initializers (%d):\n", len(g.Initializers))
	for _, t := range g.Initializers {
		cmd.Printf("  %-32s dims=%v (%d bytes)\n", t.Name, t.Dims, len(t.RawData))
	}
	return nil
}

func valueShape(v onnx.ValueInfoProto) string {
	if v.Type == nil || v.Type.TensorType == nil || v.Type.TensorType.Shape == nil {
		return "[]"
	}
	parts := make([]string, 0, len(v.Type.TensorType.Shape.Dims))
	for _, d := range v.Type.TensorType.Shape.Dims {
		if d.DimParam != "" {
			parts = append(parts, d.DimParam)
		} else {
			parts = append(parts, fmt.Sprintf("%d", d.DimValue))
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func inspectTFLite(cmd *cobra.Command, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ident := make([]byte, 8)
	if _, err := io.ReadFull(f, ident); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if string(ident[4:8]) != "TFL3" {
		return fmt.Errorf("%s is not a TFLite flatbuffer (identifier %q)", path, ident[4:8])
	}
	cmd.Printf("format: tflite (schema v3)\n")
	cmd.Printf("size:   %d bytes\n", info.Size())
	return nil
}
