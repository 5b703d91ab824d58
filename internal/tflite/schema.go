// Package tflite emits TensorFlow Lite flatbuffer models.
//
// The container is a flatbuffer following schema version 3 (file identifier
// "TFL3"). The tables are assembled directly with the flatbuffers runtime
// Builder; only the slots a sequential float model needs are written, so no
// generated schema bindings are checked in. Slot numbers and enum values
// below follow tensorflow/lite/schema/schema.fbs.
package tflite

// schemaVersion is the TFLite schema major version written to Model.version.
const schemaVersion = 3

// fileIdentifier is the flatbuffer file identifier of TFLite models.
const fileIdentifier = "TFL3"

// TensorType values.
const (
	TensorFloat32 = 0
	TensorFloat16 = 1
	TensorInt32   = 2
	TensorUint8   = 3
	TensorInt64   = 4
	TensorString  = 5
	TensorBool    = 6
	TensorInt16   = 7
	TensorInt8    = 9
	TensorFloat64 = 10
)

// BuiltinOperator codes used by the exporter.
const (
	OpFullyConnected = 9
	OpLogistic       = 14
	OpRelu           = 19
	OpReshape        = 22
	OpSoftmax        = 25
	OpTanh           = 28
)

// BuiltinOptions union discriminants.
const (
	OptionsNone           = 0
	OptionsFullyConnected = 8
	OptionsSoftmax        = 9
	OptionsReshape        = 17
)

// ActivationFunctionType values (FullyConnectedOptions.fused_activation_function).
const (
	ActivationNone = 0
	ActivationRelu = 1
)

// Table slot numbers. A slot maps to vtable offset 4 + 2*slot.
const (
	// Model
	modelSlotVersion       = 0
	modelSlotOperatorCodes = 1
	modelSlotSubgraphs     = 2
	modelSlotDescription   = 3
	modelSlotBuffers       = 4

	// OperatorCode
	opcodeSlotDeprecatedBuiltin = 0
	opcodeSlotVersion           = 2
	opcodeSlotBuiltin           = 3

	// SubGraph
	subgraphSlotTensors   = 0
	subgraphSlotInputs    = 1
	subgraphSlotOutputs   = 2
	subgraphSlotOperators = 3
	subgraphSlotName      = 4

	// Tensor
	tensorSlotShape  = 0
	tensorSlotType   = 1
	tensorSlotBuffer = 2
	tensorSlotName   = 3

	// Operator
	operatorSlotOpcodeIndex = 0
	operatorSlotInputs      = 1
	operatorSlotOutputs     = 2
	operatorSlotOptionsType = 3
	operatorSlotOptions     = 4

	// Buffer
	bufferSlotData = 0

	// FullyConnectedOptions
	fcSlotFusedActivation = 0

	// SoftmaxOptions
	softmaxSlotBeta = 0

	// ReshapeOptions
	reshapeSlotNewShape = 0
)
