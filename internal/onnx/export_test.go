package onnx

import (
	"bytes"
	"errors"
	"testing"

	"github.com/born-ml/bornconvert/internal/checkpoint"
	"github.com/born-ml/bornconvert/internal/tensor"
)

func exportModel(t *testing.T) *checkpoint.Model {
	t.Helper()
	w, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{2, 4})
	if err != nil {
		t.Fatal(err)
	}
	b, err := tensor.FromFloat32([]float32{0.1, 0.2}, tensor.Shape{2})
	if err != nil {
		t.Fatal(err)
	}
	return &checkpoint.Model{
		Name: "model_007",
		Inputs: []checkpoint.TensorSpec{
			{Name: "input", DType: tensor.Float32, Shape: tensor.Shape{1, 4}},
		},
		OutputNames: []string{"logits"},
		Layers: []checkpoint.Layer{
			{Kind: checkpoint.LayerLinear, Weight: "layers.0.weight", Bias: "layers.0.bias"},
			{Kind: checkpoint.LayerSoftmax},
		},
		Weights: map[string]*tensor.Raw{
			"layers.0.weight": w,
			"layers.0.bias":   b,
		},
	}
}

func TestExportClearsOutputNames(t *testing.T) {
	m := exportModel(t)
	proto, err := Build(m, ExportOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// The declared output names must be gone before conversion.
	if len(m.OutputNames) != 0 {
		t.Errorf("OutputNames = %v, want empty", m.OutputNames)
	}
	// Graph outputs carry synthesized names, never "logits".
	for _, out := range proto.Graph.Outputs {
		if out.Name == "logits" {
			t.Error("declared output name leaked into graph outputs")
		}
	}
	if proto.Graph.Outputs[0].Name != "output_0" {
		t.Errorf("output name = %q, want output_0", proto.Graph.Outputs[0].Name)
	}
}

func TestExportDefaultOpset(t *testing.T) {
	proto, err := Build(exportModel(t), ExportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := proto.OpsetVersion(); got != 13 {
		t.Errorf("OpsetVersion = %d, want 13", got)
	}
	if proto.IRVersion != 8 {
		t.Errorf("IRVersion = %d, want 8", proto.IRVersion)
	}
}

func TestExportCustomOpset(t *testing.T) {
	proto, err := Build(exportModel(t), ExportOptions{OpsetVersion: 17})
	if err != nil {
		t.Fatal(err)
	}
	if got := proto.OpsetVersion(); got != 17 {
		t.Errorf("OpsetVersion = %d, want 17", got)
	}
}

func TestExportFirstInputOnly(t *testing.T) {
	m := exportModel(t)
	m.Inputs = append(m.Inputs, checkpoint.TensorSpec{
		Name: "aux", DType: tensor.Float32, Shape: tensor.Shape{1, 2},
	})

	proto, err := Build(m, ExportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(proto.Graph.Inputs) != 1 {
		t.Fatalf("got %d graph inputs, want 1", len(proto.Graph.Inputs))
	}
	if proto.Graph.Inputs[0].Name != "input" {
		t.Errorf("graph input = %q, want the first declared input", proto.Graph.Inputs[0].Name)
	}
}

func TestExportNoInputs(t *testing.T) {
	m := exportModel(t)
	m.Inputs = nil
	_, err := Build(m, ExportOptions{})
	if !errors.Is(err, ErrNoInput) {
		t.Errorf("Build = %v, want ErrNoInput", err)
	}
}

func TestExportGraphStructure(t *testing.T) {
	m := exportModel(t)
	proto, err := Build(m, ExportOptions{ProducerName: "bornconvert", ProducerVersion: "0.1.0"})
	if err != nil {
		t.Fatal(err)
	}
	g := proto.Graph

	if len(g.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(g.Nodes))
	}
	gemm := g.Nodes[0]
	if gemm.OpType != "Gemm" {
		t.Errorf("node 0 OpType = %q, want Gemm", gemm.OpType)
	}
	if len(gemm.Inputs) != 3 || gemm.Inputs[1] != "layers.0.weight" || gemm.Inputs[2] != "layers.0.bias" {
		t.Errorf("Gemm inputs = %v", gemm.Inputs)
	}
	if g.Nodes[1].OpType != "Softmax" {
		t.Errorf("node 1 OpType = %q, want Softmax", g.Nodes[1].OpType)
	}
	// Chain: softmax reads the gemm output, graph output is the softmax output.
	if g.Nodes[1].Inputs[0] != gemm.Outputs[0] {
		t.Errorf("node chain broken: %v -> %v", gemm.Outputs, g.Nodes[1].Inputs)
	}
	if g.Nodes[1].Outputs[0] != "output_0" {
		t.Errorf("final output = %q, want output_0", g.Nodes[1].Outputs[0])
	}

	if len(g.Initializers) != 2 {
		t.Fatalf("got %d initializers, want 2", len(g.Initializers))
	}
	if g.Initializers[0].Name != "layers.0.weight" || g.Initializers[1].Name != "layers.0.bias" {
		t.Errorf("initializer order = %q, %q", g.Initializers[0].Name, g.Initializers[1].Name)
	}
	if !bytes.Equal(g.Initializers[0].RawData, m.Weights["layers.0.weight"].Data()) {
		t.Error("weight raw data mismatch")
	}
}

func TestExportDeterministic(t *testing.T) {
	a, err := Export(exportModel(t), ExportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Export(exportModel(t), ExportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("Export is not deterministic")
	}
}

func TestExportEncodesParsable(t *testing.T) {
	data, err := Export(exportModel(t), ExportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("emitted bytes do not decode: %v", err)
	}
	if decoded.Graph == nil || len(decoded.Graph.Nodes) != 2 {
		t.Errorf("decoded graph = %+v", decoded.Graph)
	}
}
