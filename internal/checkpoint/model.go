// Package checkpoint locates and loads saved model checkpoints.
//
// A checkpoint is a container file (.born or .safetensors) holding the
// model's tensors plus an "architecture" metadata entry: a JSON description
// of the graph the converters re-emit in the target format. Discovery picks
// the newest checkpoint in a directory under an explicit, configurable
// ordering.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/born-ml/bornconvert/internal/tensor"
)

// Errors returned by loading and validation.
var (
	ErrNoArchitecture = errors.New("checkpoint has no architecture metadata")
	ErrNoInputs       = errors.New("model declares no inputs")
)

// LayerKind identifies a supported layer type.
type LayerKind string

// Supported layer kinds.
const (
	LayerLinear  LayerKind = "linear"
	LayerRelu    LayerKind = "relu"
	LayerSigmoid LayerKind = "sigmoid"
	LayerTanh    LayerKind = "tanh"
	LayerSoftmax LayerKind = "softmax"
	LayerFlatten LayerKind = "flatten"
)

// TensorSpec describes a graph input: name, element type and static shape.
type TensorSpec struct {
	Name  string
	DType tensor.DataType
	Shape tensor.Shape
}

// Layer is one step of a sequential model.
type Layer struct {
	Kind   LayerKind
	Name   string // optional; converters synthesize names when empty
	Weight string // linear: weight tensor name, shape [out, in]
	Bias   string // linear: optional bias tensor name, shape [out]
}

// Model is a loaded checkpoint ready for conversion.
type Model struct {
	// Name is the checkpoint file stem, used for artifact descriptions.
	Name string
	// Inputs are the declared graph inputs. Converters that support a
	// single input use Inputs[0] and ignore the rest.
	Inputs []TensorSpec
	// OutputNames are the declared output names. Converters may clear
	// this list and synthesize names to avoid collisions in the target
	// format.
	OutputNames []string
	// Layers is the ordered layer list.
	Layers []Layer
	// Weights maps tensor names to their data.
	Weights map[string]*tensor.Raw
}

// ClearOutputNames drops the declared output names so converters fall back
// to synthesized ones.
func (m *Model) ClearOutputNames() { m.OutputNames = nil }

// Validate checks that every layer's tensor references resolve and that
// linear layers carry sanely-shaped weights.
func (m *Model) Validate() error {
	if len(m.Inputs) == 0 {
		return ErrNoInputs
	}
	for i, l := range m.Layers {
		switch l.Kind {
		case LayerLinear:
			w, ok := m.Weights[l.Weight]
			if !ok {
				return fmt.Errorf("layer %d (%s): weight tensor %q not in checkpoint", i, l.Kind, l.Weight)
			}
			if len(w.Shape()) != 2 {
				return fmt.Errorf("layer %d (%s): weight %q has shape %v, want rank 2", i, l.Kind, l.Weight, w.Shape())
			}
			if l.Bias != "" {
				b, ok := m.Weights[l.Bias]
				if !ok {
					return fmt.Errorf("layer %d (%s): bias tensor %q not in checkpoint", i, l.Kind, l.Bias)
				}
				if len(b.Shape()) != 1 || b.Shape()[0] != w.Shape()[0] {
					return fmt.Errorf("layer %d (%s): bias %q has shape %v, want [%d]", i, l.Kind, l.Bias, b.Shape(), w.Shape()[0])
				}
			}
		case LayerRelu, LayerSigmoid, LayerTanh, LayerSoftmax, LayerFlatten:
			// No tensors attached.
		default:
			return fmt.Errorf("layer %d: unsupported kind %q", i, l.Kind)
		}
	}
	return nil
}

// architectureJSON is the wire form of the architecture metadata entry.
type architectureJSON struct {
	Inputs []struct {
		Name  string `json:"name"`
		DType string `json:"dtype"`
		Shape []int  `json:"shape"`
	} `json:"inputs"`
	Outputs []string `json:"outputs"`
	Layers  []struct {
		Kind   string `json:"kind"`
		Name   string `json:"name,omitempty"`
		Weight string `json:"weight,omitempty"`
		Bias   string `json:"bias,omitempty"`
	} `json:"layers"`
}

// parseArchitecture decodes the architecture metadata entry into the model.
func parseArchitecture(raw string, m *Model) error {
	var arch architectureJSON
	if err := json.Unmarshal([]byte(raw), &arch); err != nil {
		return fmt.Errorf("failed to parse architecture metadata: %w", err)
	}
	for _, in := range arch.Inputs {
		dt, ok := tensor.ParseDataType(in.DType)
		if !ok {
			return fmt.Errorf("input %q: unknown dtype %q", in.Name, in.DType)
		}
		m.Inputs = append(m.Inputs, TensorSpec{
			Name:  in.Name,
			DType: dt,
			Shape: tensor.Shape(in.Shape),
		})
	}
	m.OutputNames = append(m.OutputNames, arch.Outputs...)
	for _, l := range arch.Layers {
		m.Layers = append(m.Layers, Layer{
			Kind:   LayerKind(l.Kind),
			Name:   l.Name,
			Weight: l.Weight,
			Bias:   l.Bias,
		})
	}
	return nil
}

// MarshalArchitecture encodes a model's graph description for storage in a
// checkpoint header. Checkpoint-producing tooling and tests use it; the
// converter itself only reads.
func MarshalArchitecture(m *Model) (string, error) {
	arch := architectureJSON{Outputs: m.OutputNames}
	for _, in := range m.Inputs {
		arch.Inputs = append(arch.Inputs, struct {
			Name  string `json:"name"`
			DType string `json:"dtype"`
			Shape []int  `json:"shape"`
		}{Name: in.Name, DType: in.DType.String(), Shape: []int(in.Shape)})
	}
	for _, l := range m.Layers {
		arch.Layers = append(arch.Layers, struct {
			Kind   string `json:"kind"`
			Name   string `json:"name,omitempty"`
			Weight string `json:"weight,omitempty"`
			Bias   string `json:"bias,omitempty"`
		}{Kind: string(l.Kind), Name: l.Name, Weight: l.Weight, Bias: l.Bias})
	}
	data, err := json.Marshal(arch)
	if err != nil {
		return "", fmt.Errorf("failed to marshal architecture: %w", err)
	}
	return string(data), nil
}
