package onnx

import (
	"bytes"
	"testing"
)

// TestMarshalRoundTrip encodes a representative model and decodes it back.
func TestMarshalRoundTrip(t *testing.T) {
	model := &ModelProto{
		IRVersion:       8,
		ProducerName:    "bornconvert",
		ProducerVersion: "0.1.0",
		ModelVersion:    1,
		DocString:       "round trip",
		OpsetImport:     []OperatorSetID{{Domain: "", Version: 13}},
		MetadataProps:   []StringStringEntry{{Key: "source", Value: "test"}},
		Graph: &GraphProto{
			Name: "g",
			Nodes: []NodeProto{
				{
					Name:    "gemm_0",
					OpType:  "Gemm",
					Inputs:  []string{"input", "w", "b"},
					Outputs: []string{"gemm_0_out"},
					Attributes: []AttributeProto{
						{Name: "alpha", Type: AttributeProtoFloat, F: 1.0},
						{Name: "transB", Type: AttributeProtoInt, I: 1},
					},
				},
				{
					Name:    "softmax_1",
					OpType:  "Softmax",
					Inputs:  []string{"gemm_0_out"},
					Outputs: []string{"output_0"},
					Attributes: []AttributeProto{
						{Name: "axis", Type: AttributeProtoInt, I: -1},
					},
				},
			},
			Initializers: []TensorProto{
				{Name: "w", DataType: TensorProtoFloat, Dims: []int64{2, 3}, RawData: []byte{1, 2, 3, 4}},
				{Name: "b", DataType: TensorProtoFloat, Dims: []int64{2}, RawData: []byte{5, 6}},
			},
			Inputs: []ValueInfoProto{{
				Name: "input",
				Type: &TypeProto{TensorType: &TensorTypeProto{
					ElemType: TensorProtoFloat,
					Shape: &TensorShapeProto{Dims: []DimensionProto{
						{DimValue: 1}, {DimValue: 3},
					}},
				}},
			}},
			Outputs: []ValueInfoProto{{
				Name: "output_0",
				Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: TensorProtoFloat}},
			}},
		},
	}

	decoded, err := Unmarshal(Marshal(model))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.IRVersion != 8 {
		t.Errorf("IRVersion = %d, want 8", decoded.IRVersion)
	}
	if decoded.ProducerName != "bornconvert" {
		t.Errorf("ProducerName = %q", decoded.ProducerName)
	}
	if decoded.OpsetVersion() != 13 {
		t.Errorf("OpsetVersion = %d, want 13", decoded.OpsetVersion())
	}
	if len(decoded.MetadataProps) != 1 || decoded.MetadataProps[0].Value != "test" {
		t.Errorf("MetadataProps = %+v", decoded.MetadataProps)
	}

	g := decoded.Graph
	if g == nil {
		t.Fatal("Graph is nil")
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(g.Nodes))
	}
	gemm := g.Nodes[0]
	if gemm.OpType != "Gemm" || len(gemm.Inputs) != 3 {
		t.Errorf("node 0 = %+v", gemm)
	}
	foundTransB := false
	for _, a := range gemm.Attributes {
		if a.Name == "transB" {
			foundTransB = true
			if a.I != 1 || a.Type != AttributeProtoInt {
				t.Errorf("transB = %+v", a)
			}
		}
	}
	if !foundTransB {
		t.Error("transB attribute missing")
	}

	sm := g.Nodes[1]
	if len(sm.Attributes) != 1 || sm.Attributes[0].I != -1 {
		t.Errorf("softmax axis = %+v, want -1", sm.Attributes)
	}

	if len(g.Initializers) != 2 {
		t.Fatalf("got %d initializers, want 2", len(g.Initializers))
	}
	w := g.Initializers[0]
	if w.Name != "w" || len(w.Dims) != 2 || w.Dims[0] != 2 || w.Dims[1] != 3 {
		t.Errorf("initializer w = %+v", w)
	}
	if !bytes.Equal(w.RawData, []byte{1, 2, 3, 4}) {
		t.Errorf("w.RawData = %v", w.RawData)
	}

	if len(g.Inputs) != 1 || g.Inputs[0].Name != "input" {
		t.Fatalf("Inputs = %+v", g.Inputs)
	}
	shape := g.Inputs[0].Type.TensorType.Shape
	if len(shape.Dims) != 2 || shape.Dims[0].DimValue != 1 || shape.Dims[1].DimValue != 3 {
		t.Errorf("input shape = %+v", shape.Dims)
	}
	if len(g.Outputs) != 1 || g.Outputs[0].Name != "output_0" {
		t.Errorf("Outputs = %+v", g.Outputs)
	}
}

// TestMarshalDeterministic verifies identical input yields identical bytes.
func TestMarshalDeterministic(t *testing.T) {
	m := &ModelProto{
		IRVersion:   8,
		OpsetImport: []OperatorSetID{{Version: 13}},
		Graph:       &GraphProto{Name: "g"},
	}
	if !bytes.Equal(Marshal(m), Marshal(m)) {
		t.Error("Marshal is not deterministic")
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	m := &ModelProto{IRVersion: 8, Graph: &GraphProto{Name: "graph-with-a-name"}}
	data := Marshal(m)
	if _, err := Unmarshal(data[:len(data)-3]); err == nil {
		t.Error("Unmarshal of truncated data should fail")
	}
}

func TestUnmarshalDimParam(t *testing.T) {
	m := &ModelProto{
		IRVersion: 8,
		Graph: &GraphProto{
			Inputs: []ValueInfoProto{{
				Name: "x",
				Type: &TypeProto{TensorType: &TensorTypeProto{
					ElemType: TensorProtoFloat,
					Shape: &TensorShapeProto{Dims: []DimensionProto{
						{DimParam: "batch"}, {DimValue: 784},
					}},
				}},
			}},
		},
	}
	decoded, err := Unmarshal(Marshal(m))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	dims := decoded.Graph.Inputs[0].Type.TensorType.Shape.Dims
	if dims[0].DimParam != "batch" || dims[1].DimValue != 784 {
		t.Errorf("dims = %+v", dims)
	}
}
