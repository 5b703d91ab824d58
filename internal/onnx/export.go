package onnx

import (
	"errors"
	"fmt"

	"github.com/born-ml/bornconvert/internal/checkpoint"
	"github.com/born-ml/bornconvert/internal/tensor"
)

// DefaultOpsetVersion is the operator-set version emitted unless configured
// otherwise. All exported operators (Gemm, Relu, Sigmoid, Tanh, Softmax,
// Flatten) exist at this version.
const DefaultOpsetVersion = 13

// irVersion is the ONNX IR version of the emitted container. IR 8 pairs
// with opsets 13..17.
const irVersion = 8

// ErrNoInput is returned for models that declare no inputs.
var ErrNoInput = errors.New("model has no input to build a descriptor from")

// ExportOptions configures graph emission.
type ExportOptions struct {
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
}

// Export converts a loaded checkpoint model into ONNX wire-format bytes.
//
// The model's declared output names are cleared first and graph outputs get
// synthesized names, so a name picked at training time cannot collide with a
// node output in the emitted graph. The graph input descriptor is built from
// the first declared input only; additional inputs are not supported by the
// sequential exporter and are silently unused.
func Export(m *checkpoint.Model, opts ExportOptions) ([]byte, error) {
	proto, err := Build(m, opts)
	if err != nil {
		return nil, err
	}
	return Marshal(proto), nil
}

// Build constructs the ModelProto without serializing it.
func Build(m *checkpoint.Model, opts ExportOptions) (*ModelProto, error) {
	if opts.OpsetVersion == 0 {
		opts.OpsetVersion = DefaultOpsetVersion
	}
	if len(m.Inputs) == 0 {
		return nil, ErrNoInput
	}

	m.ClearOutputNames()

	in := m.Inputs[0]
	elemType, err := elemTypeOf(in.DType)
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", in.Name, err)
	}

	g := &GraphProto{
		Name: m.Name,
		Inputs: []ValueInfoProto{{
			Name: in.Name,
			Type: valueType(elemType, in.Shape),
		}},
	}

	cur := in.Name
	for i, layer := range m.Layers {
		node, err := buildNode(m, i, layer, cur)
		if err != nil {
			return nil, err
		}
		cur = node.Outputs[0]
		g.Nodes = append(g.Nodes, node)

		if layer.Kind == checkpoint.LayerLinear {
			if err := appendInitializers(g, m, layer); err != nil {
				return nil, err
			}
		}
	}

	// Synthesized output name; the declared ones were cleared above.
	outName := "output_0"
	if len(m.Layers) > 0 {
		// Rename the last node's output rather than appending an
		// Identity node.
		g.Nodes[len(g.Nodes)-1].Outputs[0] = outName
	} else {
		outName = cur
	}
	g.Outputs = []ValueInfoProto{{
		Name: outName,
		Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: elemType}},
	}}

	return &ModelProto{
		IRVersion:       irVersion,
		OpsetImport:     []OperatorSetID{{Domain: "", Version: opts.OpsetVersion}},
		ProducerName:    opts.ProducerName,
		ProducerVersion: opts.ProducerVersion,
		ModelVersion:    1,
		DocString:       fmt.Sprintf("exported from checkpoint %s", m.Name),
		Graph:           g,
	}, nil
}

// buildNode emits the node for one layer, reading from the value named cur.
func buildNode(m *checkpoint.Model, idx int, layer checkpoint.Layer, cur string) (NodeProto, error) {
	name := layer.Name
	if name == "" {
		name = fmt.Sprintf("%s_%d", layer.Kind, idx)
	}
	out := name + "_out"

	switch layer.Kind {
	case checkpoint.LayerLinear:
		inputs := []string{cur, layer.Weight}
		if layer.Bias != "" {
			inputs = append(inputs, layer.Bias)
		}
		return NodeProto{
			Name:    name,
			OpType:  "Gemm",
			Inputs:  inputs,
			Outputs: []string{out},
			Attributes: []AttributeProto{
				{Name: "alpha", Type: AttributeProtoFloat, F: 1.0},
				{Name: "beta", Type: AttributeProtoFloat, F: 1.0},
				// Checkpoints store linear weights as [out, in].
				{Name: "transB", Type: AttributeProtoInt, I: 1},
			},
		}, nil
	case checkpoint.LayerRelu:
		return simpleNode(name, "Relu", cur, out), nil
	case checkpoint.LayerSigmoid:
		return simpleNode(name, "Sigmoid", cur, out), nil
	case checkpoint.LayerTanh:
		return simpleNode(name, "Tanh", cur, out), nil
	case checkpoint.LayerSoftmax:
		n := simpleNode(name, "Softmax", cur, out)
		n.Attributes = []AttributeProto{
			{Name: "axis", Type: AttributeProtoInt, I: -1},
		}
		return n, nil
	case checkpoint.LayerFlatten:
		n := simpleNode(name, "Flatten", cur, out)
		n.Attributes = []AttributeProto{
			{Name: "axis", Type: AttributeProtoInt, I: 1},
		}
		return n, nil
	default:
		return NodeProto{}, fmt.Errorf("layer %d: unsupported kind %q", idx, layer.Kind)
	}
}

func simpleNode(name, opType, in, out string) NodeProto {
	return NodeProto{
		Name:    name,
		OpType:  opType,
		Inputs:  []string{in},
		Outputs: []string{out},
	}
}

// appendInitializers adds the layer's weight and bias tensors to the graph.
func appendInitializers(g *GraphProto, m *checkpoint.Model, layer checkpoint.Layer) error {
	names := []string{layer.Weight}
	if layer.Bias != "" {
		names = append(names, layer.Bias)
	}
	for _, name := range names {
		raw, ok := m.Weights[name]
		if !ok {
			return fmt.Errorf("initializer %q not in checkpoint", name)
		}
		elemType, err := elemTypeOf(raw.DType())
		if err != nil {
			return fmt.Errorf("initializer %q: %w", name, err)
		}
		g.Initializers = append(g.Initializers, TensorProto{
			Name:     name,
			DataType: elemType,
			Dims:     raw.Shape().Int64s(),
			RawData:  raw.Data(),
		})
	}
	return nil
}

// elemTypeOf maps checkpoint dtypes to TensorProto element types.
func elemTypeOf(dt tensor.DataType) (int32, error) {
	switch dt {
	case tensor.Float32:
		return TensorProtoFloat, nil
	case tensor.Float64:
		return TensorProtoDouble, nil
	case tensor.Int32:
		return TensorProtoInt32, nil
	case tensor.Int64:
		return TensorProtoInt64, nil
	case tensor.Uint8:
		return TensorProtoUint8, nil
	case tensor.Bool:
		return TensorProtoBool, nil
	default:
		return TensorProtoUndefined, fmt.Errorf("dtype %s has no ONNX element type", dt)
	}
}

func valueType(elemType int32, shape tensor.Shape) *TypeProto {
	dims := make([]DimensionProto, len(shape))
	for i, d := range shape {
		dims[i] = DimensionProto{DimValue: int64(d)}
	}
	return &TypeProto{TensorType: &TensorTypeProto{
		ElemType: elemType,
		Shape:    &TensorShapeProto{Dims: dims},
	}}
}
