package onnx

// ONNX protobuf data structures (hand-written). Field numbers live in the
// codec; these structs only hold the decoded values.

// ModelProto represents an ONNX model.
type ModelProto struct {
	IRVersion       int64
	OpsetImport     []OperatorSetID
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto
	MetadataProps   []StringStringEntry
}

// OpsetVersion returns the version of the default-domain opset import, or 0.
func (m *ModelProto) OpsetVersion() int64 {
	for _, op := range m.OpsetImport {
		if op.Domain == "" {
			return op.Version
		}
	}
	return 0
}

// GraphProto represents the computation graph.
type GraphProto struct {
	Name         string
	Nodes        []NodeProto
	Inputs       []ValueInfoProto
	Outputs      []ValueInfoProto
	Initializers []TensorProto
	DocString    string
}

// NodeProto represents a single operation.
type NodeProto struct {
	Name       string
	OpType     string // e.g. "Gemm", "Relu", "Softmax"
	Inputs     []string
	Outputs    []string
	Attributes []AttributeProto
	Domain     string
}

// TensorProto represents an initializer tensor.
type TensorProto struct {
	Name     string
	DataType int32
	Dims     []int64
	RawData  []byte
}

// ValueInfoProto describes an input/output tensor specification.
type ValueInfoProto struct {
	Name string
	Type *TypeProto
}

// TypeProto describes a value's type.
type TypeProto struct {
	TensorType *TensorTypeProto
}

// TensorTypeProto describes tensor element type and shape.
type TensorTypeProto struct {
	ElemType int32
	Shape    *TensorShapeProto
}

// TensorShapeProto describes tensor dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto
}

// DimensionProto is a single dimension: a static value or a symbolic name.
type DimensionProto struct {
	DimValue int64
	DimParam string
}

// AttributeProto is a node attribute. Only the scalar and repeated-scalar
// forms used by the exported operators are modeled.
type AttributeProto struct {
	Name    string
	Type    int32
	F       float32
	I       int64
	S       []byte
	Floats  []float32
	Ints    []int64
	Strings [][]byte
}

// OperatorSetID identifies an opset import.
type OperatorSetID struct {
	Domain  string
	Version int64
}

// StringStringEntry is a key-value metadata pair.
type StringStringEntry struct {
	Key   string
	Value string
}

// ONNX tensor element types (TensorProto.DataType).
const (
	TensorProtoUndefined = 0
	TensorProtoFloat     = 1  // float32
	TensorProtoUint8     = 2  // uint8
	TensorProtoInt8      = 3  // int8
	TensorProtoUint16    = 4  // uint16
	TensorProtoInt16     = 5  // int16
	TensorProtoInt32     = 6  // int32
	TensorProtoInt64     = 7  // int64
	TensorProtoString    = 8  // string
	TensorProtoBool      = 9  // bool
	TensorProtoFloat16   = 10 // float16
	TensorProtoDouble    = 11 // float64
	TensorProtoUint32    = 12 // uint32
	TensorProtoUint64    = 13 // uint64
)

// ONNX attribute types (AttributeProto.Type).
const (
	AttributeProtoUndefined = 0
	AttributeProtoFloat     = 1
	AttributeProtoInt       = 2
	AttributeProtoString    = 3
	AttributeProtoTensor    = 4
	AttributeProtoGraph     = 5
	AttributeProtoFloats    = 6
	AttributeProtoInts      = 7
	AttributeProtoStrings   = 8
)
