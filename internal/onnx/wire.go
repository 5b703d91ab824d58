package onnx

import (
	"encoding/binary"
	"math"
)

// Protobuf wire types.
const (
	wireVarint = 0 // int32, int64, bool, enum
	wire64Bit  = 1 // fixed64, double
	wireBytes  = 2 // string, bytes, embedded messages, packed repeateds
	wire32Bit  = 5 // fixed32, float
)

// Low-level append helpers. The encoder builds messages inside-out: each
// sub-message is encoded to its own buffer, then framed as a bytes field.

func appendVarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

func appendTag(b []byte, fieldNum int, wireType int) []byte {
	return appendVarint(b, uint64(fieldNum)<<3|uint64(wireType))
}

func appendInt64Field(b []byte, fieldNum int, v int64) []byte {
	if v == 0 {
		return b
	}
	b = appendTag(b, fieldNum, wireVarint)
	return appendVarint(b, uint64(v))
}

func appendBytesField(b []byte, fieldNum int, data []byte) []byte {
	if len(data) == 0 {
		return b
	}
	b = appendTag(b, fieldNum, wireBytes)
	b = appendVarint(b, uint64(len(data)))
	return append(b, data...)
}

func appendStringField(b []byte, fieldNum int, s string) []byte {
	return appendBytesField(b, fieldNum, []byte(s))
}

func appendFloatField(b []byte, fieldNum int, v float32) []byte {
	if v == 0 {
		return b
	}
	b = appendTag(b, fieldNum, wire32Bit)
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
}

// appendPackedInt64s encodes a repeated int64 field in packed form.
func appendPackedInt64s(b []byte, fieldNum int, vs []int64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = appendVarint(packed, uint64(v))
	}
	return appendBytesField(b, fieldNum, packed)
}

// appendPackedFloats encodes a repeated float field in packed form.
func appendPackedFloats(b []byte, fieldNum int, vs []float32) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = binary.LittleEndian.AppendUint32(packed, math.Float32bits(v))
	}
	return appendBytesField(b, fieldNum, packed)
}

// Marshal encodes a ModelProto to the ONNX wire format.
func Marshal(m *ModelProto) []byte {
	var b []byte
	b = appendInt64Field(b, 1, m.IRVersion)
	b = appendStringField(b, 2, m.ProducerName)
	b = appendStringField(b, 3, m.ProducerVersion)
	b = appendStringField(b, 4, m.Domain)
	b = appendInt64Field(b, 5, m.ModelVersion)
	b = appendStringField(b, 6, m.DocString)
	if m.Graph != nil {
		b = appendBytesField(b, 7, marshalGraph(m.Graph))
	}
	for _, op := range m.OpsetImport {
		b = appendBytesField(b, 8, marshalOperatorSetID(op))
	}
	for _, kv := range m.MetadataProps {
		b = appendBytesField(b, 14, marshalStringStringEntry(kv))
	}
	return b
}

func marshalGraph(g *GraphProto) []byte {
	var b []byte
	for i := range g.Nodes {
		b = appendBytesField(b, 1, marshalNode(&g.Nodes[i]))
	}
	b = appendStringField(b, 2, g.Name)
	for i := range g.Initializers {
		b = appendBytesField(b, 5, marshalTensor(&g.Initializers[i]))
	}
	b = appendStringField(b, 10, g.DocString)
	for i := range g.Inputs {
		b = appendBytesField(b, 11, marshalValueInfo(&g.Inputs[i]))
	}
	for i := range g.Outputs {
		b = appendBytesField(b, 12, marshalValueInfo(&g.Outputs[i]))
	}
	return b
}

func marshalNode(n *NodeProto) []byte {
	var b []byte
	for _, in := range n.Inputs {
		b = appendStringField(b, 1, in)
	}
	for _, out := range n.Outputs {
		b = appendStringField(b, 2, out)
	}
	b = appendStringField(b, 3, n.Name)
	b = appendStringField(b, 4, n.OpType)
	for i := range n.Attributes {
		b = appendBytesField(b, 5, marshalAttribute(&n.Attributes[i]))
	}
	b = appendStringField(b, 7, n.Domain)
	return b
}

func marshalAttribute(a *AttributeProto) []byte {
	var b []byte
	b = appendStringField(b, 1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		b = appendFloatField(b, 2, a.F)
	case AttributeProtoInt:
		b = appendInt64Field(b, 3, a.I)
	case AttributeProtoString:
		b = appendBytesField(b, 4, a.S)
	case AttributeProtoFloats:
		b = appendPackedFloats(b, 7, a.Floats)
	case AttributeProtoInts:
		b = appendPackedInt64s(b, 8, a.Ints)
	case AttributeProtoStrings:
		for _, s := range a.Strings {
			b = appendBytesField(b, 9, s)
		}
	}
	b = appendInt64Field(b, 20, int64(a.Type))
	return b
}

func marshalTensor(t *TensorProto) []byte {
	var b []byte
	b = appendPackedInt64s(b, 1, t.Dims)
	b = appendInt64Field(b, 2, int64(t.DataType))
	b = appendStringField(b, 8, t.Name)
	b = appendBytesField(b, 9, t.RawData)
	return b
}

func marshalValueInfo(v *ValueInfoProto) []byte {
	var b []byte
	b = appendStringField(b, 1, v.Name)
	if v.Type != nil {
		b = appendBytesField(b, 2, marshalType(v.Type))
	}
	return b
}

func marshalType(t *TypeProto) []byte {
	var b []byte
	if t.TensorType != nil {
		b = appendBytesField(b, 1, marshalTensorType(t.TensorType))
	}
	return b
}

func marshalTensorType(t *TensorTypeProto) []byte {
	var b []byte
	b = appendInt64Field(b, 1, int64(t.ElemType))
	if t.Shape != nil {
		b = appendBytesField(b, 2, marshalTensorShape(t.Shape))
	}
	return b
}

func marshalTensorShape(s *TensorShapeProto) []byte {
	var b []byte
	for i := range s.Dims {
		b = appendBytesField(b, 1, marshalDimension(&s.Dims[i]))
	}
	return b
}

func marshalDimension(d *DimensionProto) []byte {
	var b []byte
	if d.DimParam != "" {
		return appendStringField(b, 2, d.DimParam)
	}
	b = appendInt64Field(b, 1, d.DimValue)
	return b
}

func marshalOperatorSetID(op OperatorSetID) []byte {
	var b []byte
	b = appendStringField(b, 1, op.Domain)
	b = appendInt64Field(b, 2, op.Version)
	return b
}

func marshalStringStringEntry(kv StringStringEntry) []byte {
	var b []byte
	b = appendStringField(b, 1, kv.Key)
	b = appendStringField(b, 2, kv.Value)
	return b
}
