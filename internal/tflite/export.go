package tflite

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/born-ml/bornconvert/internal/checkpoint"
	"github.com/born-ml/bornconvert/internal/tensor"
)

// ErrNoInput is returned for models that declare no inputs.
var ErrNoInput = errors.New("model has no input to build a descriptor from")

// ExportOptions configures flatbuffer emission.
type ExportOptions struct {
	// Description overrides the Model.description string. Defaults to
	// "exported from checkpoint <name>".
	Description string
}

// planTensor is one entry of the subgraph tensor list before serialization.
type planTensor struct {
	name   string
	shape  []int32
	ttype  int32
	buffer int32 // index into the buffer list; 0 is the shared empty buffer
}

// planOp is one operator before serialization.
type planOp struct {
	opcode      int32 // builtin operator code
	inputs      []int32
	outputs     []int32
	optionsType byte
	// options builds the builtin-options table, or nil for none.
	options func(b *flatbuffers.Builder) flatbuffers.UOffsetT
}

// plan is the fully laid out graph: tensors, buffers and operators in
// deterministic order, ready for flatbuffer assembly.
type plan struct {
	tensors []planTensor
	buffers [][]byte // index 0 is always empty per TFLite convention
	ops     []planOp
}

// Export converts a loaded checkpoint model into TFLite flatbuffer bytes.
// No quantization and no operator allow-list: the graph is emitted as-is in
// float. The descriptor comes from the first declared input.
func Export(m *checkpoint.Model, opts ExportOptions) ([]byte, error) {
	p, err := planModel(m)
	if err != nil {
		return nil, err
	}
	desc := opts.Description
	if desc == "" {
		desc = fmt.Sprintf("exported from checkpoint %s", m.Name)
	}
	return serialize(p, m.Name, desc), nil
}

//nolint:gocyclo // layer dispatch is a flat switch
func planModel(m *checkpoint.Model) (*plan, error) {
	if len(m.Inputs) == 0 {
		return nil, ErrNoInput
	}
	in := m.Inputs[0]
	inType, err := tensorTypeOf(in.DType)
	if err != nil {
		return nil, fmt.Errorf("input %q: %w", in.Name, err)
	}

	p := &plan{buffers: [][]byte{nil}}
	p.tensors = append(p.tensors, planTensor{
		name:  in.Name,
		shape: toInt32s(in.Shape),
		ttype: inType,
	})

	cur := int32(0)
	curShape := toInt32s(in.Shape)

	for i, layer := range m.Layers {
		name := layer.Name
		if name == "" {
			name = fmt.Sprintf("%s_%d", layer.Kind, i)
		}

		switch layer.Kind {
		case checkpoint.LayerLinear:
			w, ok := m.Weights[layer.Weight]
			if !ok {
				return nil, fmt.Errorf("layer %d: weight tensor %q not in checkpoint", i, layer.Weight)
			}
			wType, err := tensorTypeOf(w.DType())
				if err != nil {
					return nil, fmt.Errorf("weight %q: %w", layer.Weight, err)
				}
				wIdx := p.addTensor(layer.Weight, toInt32s(w.Shape()), wType, w.Data())

			bIdx := int32(-1)
			if layer.Bias != "" {
				bias, ok := m.Weights[layer.Bias]
				if !ok {
					return nil, fmt.Errorf("layer %d: bias tensor %q not in checkpoint", i, layer.Bias)
				}
				bType, err := tensorTypeOf(bias.DType())
					if err != nil {
						return nil, fmt.Errorf("bias %q: %w", layer.Bias, err)
					}
					bIdx = p.addTensor(layer.Bias, toInt32s(bias.Shape()), bType, bias.Data())
			}

			curShape = []int32{curShape[0], int32(w.Shape()[0])}
			out := p.addTensor(name+"_out", curShape, inType, nil)
			p.ops = append(p.ops, planOp{
				opcode:      OpFullyConnected,
				inputs:      []int32{cur, wIdx, bIdx},
				outputs:     []int32{out},
				optionsType: OptionsFullyConnected,
				options: func(b *flatbuffers.Builder) flatbuffers.UOffsetT {
					b.StartObject(4)
					b.PrependInt8Slot(fcSlotFusedActivation, ActivationNone, 0)
					return b.EndObject()
				},
			})
			cur = out

		case checkpoint.LayerRelu, checkpoint.LayerSigmoid, checkpoint.LayerTanh:
			opcode := map[checkpoint.LayerKind]int32{
				checkpoint.LayerRelu:    OpRelu,
				checkpoint.LayerSigmoid: OpLogistic,
				checkpoint.LayerTanh:    OpTanh,
			}[layer.Kind]
			out := p.addTensor(name+"_out", curShape, inType, nil)
			p.ops = append(p.ops, planOp{
				opcode:  opcode,
				inputs:  []int32{cur},
				outputs: []int32{out},
			})
			cur = out

		case checkpoint.LayerSoftmax:
			out := p.addTensor(name+"_out", curShape, inType, nil)
			p.ops = append(p.ops, planOp{
				opcode:      OpSoftmax,
				inputs:      []int32{cur},
				outputs:     []int32{out},
				optionsType: OptionsSoftmax,
				options: func(b *flatbuffers.Builder) flatbuffers.UOffsetT {
					b.StartObject(1)
					b.PrependFloat32Slot(softmaxSlotBeta, 1.0, 0)
					return b.EndObject()
				},
			})
			cur = out

		case checkpoint.LayerFlatten:
			features := int32(1)
			for _, d := range curShape[1:] {
				features *= d
			}
			curShape = []int32{curShape[0], features}
			newShape := append([]int32{}, curShape...)
			out := p.addTensor(name+"_out", curShape, inType, nil)
			p.ops = append(p.ops, planOp{
				opcode:      OpReshape,
				inputs:      []int32{cur},
				outputs:     []int32{out},
				optionsType: OptionsReshape,
				options: func(b *flatbuffers.Builder) flatbuffers.UOffsetT {
					shapeVec := int32Vector(b, newShape)
					b.StartObject(1)
					b.PrependUOffsetTSlot(reshapeSlotNewShape, shapeVec, 0)
					return b.EndObject()
				},
			})
			cur = out

		default:
			return nil, fmt.Errorf("layer %d: unsupported kind %q", i, layer.Kind)
		}
	}

	// The final tensor keeps the declared output name when one exists.
	if len(m.OutputNames) > 0 && len(p.ops) > 0 {
		p.tensors[cur].name = m.OutputNames[0]
	}
	return p, nil
}

// addTensor appends a tensor, allocating a data buffer when data is given.
func (p *plan) addTensor(name string, shape []int32, ttype int32, data []byte) int32 {
	buffer := int32(0)
	if data != nil {
		buffer = int32(len(p.buffers))
		p.buffers = append(p.buffers, data)
	}
	p.tensors = append(p.tensors, planTensor{
		name:   name,
		shape:  append([]int32{}, shape...),
		ttype:  ttype,
		buffer: buffer,
	})
	return int32(len(p.tensors) - 1)
}

// serialize assembles the flatbuffer: children first, Model table last.
func serialize(p *plan, graphName, description string) []byte {
	b := flatbuffers.NewBuilder(1024)

	// Buffers.
	bufferOffs := make([]flatbuffers.UOffsetT, len(p.buffers))
	for i, data := range p.buffers {
		var dataVec flatbuffers.UOffsetT
		if len(data) > 0 {
			dataVec = b.CreateByteVector(data)
		}
		b.StartObject(1)
		if dataVec != 0 {
			b.PrependUOffsetTSlot(bufferSlotData, dataVec, 0)
		}
		bufferOffs[i] = b.EndObject()
	}
	buffersVec := offsetVector(b, bufferOffs)

	// Tensors.
	tensorOffs := make([]flatbuffers.UOffsetT, len(p.tensors))
	for i, pt := range p.tensors {
		nameOff := b.CreateString(pt.name)
		shapeVec := int32Vector(b, pt.shape)
		b.StartObject(4)
		b.PrependUOffsetTSlot(tensorSlotShape, shapeVec, 0)
		b.PrependInt8Slot(tensorSlotType, int8(pt.ttype), 0)
		b.PrependUint32Slot(tensorSlotBuffer, uint32(pt.buffer), 0)
		b.PrependUOffsetTSlot(tensorSlotName, nameOff, 0)
		tensorOffs[i] = b.EndObject()
	}
	tensorsVec := offsetVector(b, tensorOffs)

	// Operator codes, deduplicated in first-use order.
	var codes []int32
	codeIndex := make(map[int32]uint32)
	for _, op := range p.ops {
		if _, ok := codeIndex[op.opcode]; !ok {
			codeIndex[op.opcode] = uint32(len(codes))
			codes = append(codes, op.opcode)
		}
	}
	codeOffs := make([]flatbuffers.UOffsetT, len(codes))
	for i, code := range codes {
		b.StartObject(4)
		// The deprecated int8 field saturates at 127.
		dep := code
		if dep > 127 {
			dep = 127
		}
		b.PrependInt8Slot(opcodeSlotDeprecatedBuiltin, int8(dep), 0)
		b.PrependInt32Slot(opcodeSlotBuiltin, code, 0)
		codeOffs[i] = b.EndObject()
	}
	codesVec := offsetVector(b, codeOffs)

	// Operators.
	opOffs := make([]flatbuffers.UOffsetT, len(p.ops))
	for i, op := range p.ops {
		var optionsOff flatbuffers.UOffsetT
		if op.options != nil {
			optionsOff = op.options(b)
		}
		inputsVec := int32Vector(b, op.inputs)
		outputsVec := int32Vector(b, op.outputs)
		b.StartObject(5)
		b.PrependUint32Slot(operatorSlotOpcodeIndex, codeIndex[op.opcode], 0)
		b.PrependUOffsetTSlot(operatorSlotInputs, inputsVec, 0)
		b.PrependUOffsetTSlot(operatorSlotOutputs, outputsVec, 0)
		b.PrependByteSlot(operatorSlotOptionsType, op.optionsType, 0)
		if optionsOff != 0 {
			b.PrependUOffsetTSlot(operatorSlotOptions, optionsOff, 0)
		}
		opOffs[i] = b.EndObject()
	}
	opsVec := offsetVector(b, opOffs)

	// SubGraph. Input is tensor 0, output the final tensor.
	graphNameOff := b.CreateString(graphName)
	inputsVec := int32Vector(b, []int32{0})
	outputsVec := int32Vector(b, []int32{int32(len(p.tensors) - 1)})
	b.StartObject(5)
	b.PrependUOffsetTSlot(subgraphSlotTensors, tensorsVec, 0)
	b.PrependUOffsetTSlot(subgraphSlotInputs, inputsVec, 0)
	b.PrependUOffsetTSlot(subgraphSlotOutputs, outputsVec, 0)
	b.PrependUOffsetTSlot(subgraphSlotOperators, opsVec, 0)
	b.PrependUOffsetTSlot(subgraphSlotName, graphNameOff, 0)
	subgraphOff := b.EndObject()
	subgraphsVec := offsetVector(b, []flatbuffers.UOffsetT{subgraphOff})

	descOff := b.CreateString(description)

	b.StartObject(5)
	b.PrependUint32Slot(modelSlotVersion, schemaVersion, 0)
	b.PrependUOffsetTSlot(modelSlotOperatorCodes, codesVec, 0)
	b.PrependUOffsetTSlot(modelSlotSubgraphs, subgraphsVec, 0)
	b.PrependUOffsetTSlot(modelSlotDescription, descOff, 0)
	b.PrependUOffsetTSlot(modelSlotBuffers, buffersVec, 0)
	modelOff := b.EndObject()

	b.FinishWithFileIdentifier(modelOff, []byte(fileIdentifier))
	return b.FinishedBytes()
}

// int32Vector writes an int32 vector (prepended in reverse, per flatbuffers).
func int32Vector(b *flatbuffers.Builder, vs []int32) flatbuffers.UOffsetT {
	b.StartVector(4, len(vs), 4)
	for i := len(vs) - 1; i >= 0; i-- {
		b.PrependInt32(vs[i])
	}
	return b.EndVector(len(vs))
}

// offsetVector writes a vector of table offsets.
func offsetVector(b *flatbuffers.Builder, offs []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	b.StartVector(4, len(offs), 4)
	for i := len(offs) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offs[i])
	}
	return b.EndVector(len(offs))
}

// tensorTypeOf maps checkpoint dtypes to TFLite tensor types.
func tensorTypeOf(dt tensor.DataType) (int32, error) {
	switch dt {
	case tensor.Float32:
		return TensorFloat32, nil
	case tensor.Float64:
		return TensorFloat64, nil
	case tensor.Int32:
		return TensorInt32, nil
	case tensor.Int64:
		return TensorInt64, nil
	case tensor.Uint8:
		return TensorUint8, nil
	case tensor.Bool:
		return TensorBool, nil
	default:
		return 0, fmt.Errorf("dtype %s has no TFLite tensor type", dt)
	}
}

func toInt32s(s tensor.Shape) []int32 {
	out := make([]int32, len(s))
	for i, d := range s {
		out[i] = int32(d)
	}
	return out
}
