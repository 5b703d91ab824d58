package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Unmarshal decodes an ONNX model from wire-format bytes.
func Unmarshal(data []byte) (*ModelProto, error) {
	m := &ModelProto{}
	err := walkFields(data, func(fieldNum int, wireType int, d *fieldData) error {
		switch fieldNum {
		case 1:
			m.IRVersion = d.varint()
		case 2:
			m.ProducerName = d.str()
		case 3:
			m.ProducerVersion = d.str()
		case 4:
			m.Domain = d.str()
		case 5:
			m.ModelVersion = d.varint()
		case 6:
			m.DocString = d.str()
		case 7:
			g, err := unmarshalGraph(d.bytes())
			if err != nil {
				return err
			}
			m.Graph = g
		case 8:
			op, err := unmarshalOperatorSetID(d.bytes())
			if err != nil {
				return err
			}
			m.OpsetImport = append(m.OpsetImport, op)
		case 14:
			kv, err := unmarshalStringStringEntry(d.bytes())
			if err != nil {
				return err
			}
			m.MetadataProps = append(m.MetadataProps, kv)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return m, nil
}

func unmarshalGraph(data []byte) (*GraphProto, error) {
	g := &GraphProto{}
	err := walkFields(data, func(fieldNum, wireType int, d *fieldData) error {
		switch fieldNum {
		case 1:
			n, err := unmarshalNode(d.bytes())
			if err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, n)
		case 2:
			g.Name = d.str()
		case 5:
			t, err := unmarshalTensor(d.bytes())
			if err != nil {
				return err
			}
			g.Initializers = append(g.Initializers, t)
		case 10:
			g.DocString = d.str()
		case 11:
			v, err := unmarshalValueInfo(d.bytes())
			if err != nil {
				return err
			}
			g.Inputs = append(g.Inputs, v)
		case 12:
			v, err := unmarshalValueInfo(d.bytes())
			if err != nil {
				return err
			}
			g.Outputs = append(g.Outputs, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	return g, nil
}

func unmarshalNode(data []byte) (NodeProto, error) {
	n := NodeProto{}
	err := walkFields(data, func(fieldNum, wireType int, d *fieldData) error {
		switch fieldNum {
		case 1:
			n.Inputs = append(n.Inputs, d.str())
		case 2:
			n.Outputs = append(n.Outputs, d.str())
		case 3:
			n.Name = d.str()
		case 4:
			n.OpType = d.str()
		case 5:
			a, err := unmarshalAttribute(d.bytes())
			if err != nil {
				return err
			}
			n.Attributes = append(n.Attributes, a)
		case 7:
			n.Domain = d.str()
		}
		return nil
	})
	return n, err
}

func unmarshalAttribute(data []byte) (AttributeProto, error) {
	a := AttributeProto{}
	err := walkFields(data, func(fieldNum, wireType int, d *fieldData) error {
		switch fieldNum {
		case 1:
			a.Name = d.str()
		case 2:
			a.F = d.float32()
		case 3:
			a.I = d.varint()
		case 4:
			a.S = d.bytes()
		case 7:
			if wireType == wireBytes {
				a.Floats = append(a.Floats, unpackFloats(d.bytes())...)
			} else {
				a.Floats = append(a.Floats, d.float32())
			}
		case 8:
			if wireType == wireBytes {
				vs, err := unpackInt64s(d.bytes())
				if err != nil {
					return err
				}
				a.Ints = append(a.Ints, vs...)
			} else {
				a.Ints = append(a.Ints, d.varint())
			}
		case 9:
			a.Strings = append(a.Strings, d.bytes())
		case 20:
			a.Type = int32(d.varint())
		}
		return nil
	})
	return a, err
}

func unmarshalTensor(data []byte) (TensorProto, error) {
	t := TensorProto{}
	err := walkFields(data, func(fieldNum, wireType int, d *fieldData) error {
		switch fieldNum {
		case 1:
			if wireType == wireBytes {
				vs, err := unpackInt64s(d.bytes())
				if err != nil {
					return err
				}
				t.Dims = append(t.Dims, vs...)
			} else {
				t.Dims = append(t.Dims, d.varint())
			}
		case 2:
			t.DataType = int32(d.varint())
		case 8:
			t.Name = d.str()
		case 9:
			t.RawData = d.bytes()
		}
		return nil
	})
	return t, err
}

func unmarshalValueInfo(data []byte) (ValueInfoProto, error) {
	v := ValueInfoProto{}
	err := walkFields(data, func(fieldNum, wireType int, d *fieldData) error {
		switch fieldNum {
		case 1:
			v.Name = d.str()
		case 2:
			tp := &TypeProto{}
			if err := unmarshalTypeInto(d.bytes(), tp); err != nil {
				return err
			}
			v.Type = tp
		}
		return nil
	})
	return v, err
}

func unmarshalTypeInto(data []byte, tp *TypeProto) error {
	return walkFields(data, func(fieldNum, wireType int, d *fieldData) error {
		if fieldNum != 1 {
			return nil
		}
		tt := &TensorTypeProto{}
		err := walkFields(d.bytes(), func(fieldNum, wireType int, d *fieldData) error {
			switch fieldNum {
			case 1:
				tt.ElemType = int32(d.varint())
			case 2:
				shape := &TensorShapeProto{}
				err := walkFields(d.bytes(), func(fieldNum, wireType int, d *fieldData) error {
					if fieldNum != 1 {
						return nil
					}
					dim, err := unmarshalDimension(d.bytes())
					if err != nil {
						return err
					}
					shape.Dims = append(shape.Dims, dim)
					return nil
				})
				if err != nil {
					return err
				}
				tt.Shape = shape
			}
			return nil
		})
		if err != nil {
			return err
		}
		tp.TensorType = tt
		return nil
	})
}

func unmarshalDimension(data []byte) (DimensionProto, error) {
	dim := DimensionProto{}
	err := walkFields(data, func(fieldNum, wireType int, d *fieldData) error {
		switch fieldNum {
		case 1:
			dim.DimValue = d.varint()
		case 2:
			dim.DimParam = d.str()
		}
		return nil
	})
	return dim, err
}

func unmarshalOperatorSetID(data []byte) (OperatorSetID, error) {
	op := OperatorSetID{}
	err := walkFields(data, func(fieldNum, wireType int, d *fieldData) error {
		switch fieldNum {
		case 1:
			op.Domain = d.str()
		case 2:
			op.Version = d.varint()
		}
		return nil
	})
	return op, err
}

func unmarshalStringStringEntry(data []byte) (StringStringEntry, error) {
	kv := StringStringEntry{}
	err := walkFields(data, func(fieldNum, wireType int, d *fieldData) error {
		switch fieldNum {
		case 1:
			kv.Key = d.str()
		case 2:
			kv.Value = d.str()
		}
		return nil
	})
	return kv, err
}

// fieldData carries the payload of one decoded field.
type fieldData struct {
	v   uint64 // varint / fixed value
	buf []byte // bytes payload
}

func (d *fieldData) varint() int64 { return int64(d.v) }

func (d *fieldData) bytes() []byte { return d.buf }

func (d *fieldData) str() string { return string(d.buf) }

func (d *fieldData) float32() float32 { return math.Float32frombits(uint32(d.v)) }

var errTruncated = errors.New("truncated message")

// walkFields iterates the fields of one message, decoding each tag and
// payload and handing them to fn. Unknown fields are skipped by fn doing
// nothing with them.
func walkFields(data []byte, fn func(fieldNum, wireType int, d *fieldData) error) error {
	pos := 0
	for pos < len(data) {
		tag, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return fmt.Errorf("%w: bad tag at offset %d", errTruncated, pos)
		}
		pos += n
		fieldNum := int(tag >> 3)
		wireType := int(tag & 0x7)

		var fd fieldData
		switch wireType {
		case wireVarint:
			v, n := binary.Uvarint(data[pos:])
			if n <= 0 {
				return fmt.Errorf("%w: bad varint in field %d", errTruncated, fieldNum)
			}
			fd.v = v
			pos += n
		case wire64Bit:
			if pos+8 > len(data) {
				return fmt.Errorf("%w: fixed64 in field %d", errTruncated, fieldNum)
			}
			fd.v = binary.LittleEndian.Uint64(data[pos:])
			pos += 8
		case wire32Bit:
			if pos+4 > len(data) {
				return fmt.Errorf("%w: fixed32 in field %d", errTruncated, fieldNum)
			}
			fd.v = uint64(binary.LittleEndian.Uint32(data[pos:]))
			pos += 4
		case wireBytes:
			size, n := binary.Uvarint(data[pos:])
			if n <= 0 {
				return fmt.Errorf("%w: bad length in field %d", errTruncated, fieldNum)
			}
			pos += n
			if pos+int(size) > len(data) {
				return fmt.Errorf("%w: bytes field %d wants %d bytes", errTruncated, fieldNum, size)
			}
			fd.buf = data[pos : pos+int(size)]
			pos += int(size)
		default:
			return fmt.Errorf("unsupported wire type %d in field %d", wireType, fieldNum)
		}

		if err := fn(fieldNum, wireType, &fd); err != nil {
			return err
		}
	}
	return nil
}

// unpackFloats decodes a packed repeated float payload.
func unpackFloats(data []byte) []float32 {
	out := make([]float32, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
	}
	return out
}

// unpackInt64s decodes a packed repeated int64 payload.
func unpackInt64s(data []byte) ([]int64, error) {
	var out []int64
	pos := 0
	for pos < len(data) {
		v, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: packed varint at offset %d", errTruncated, pos)
		}
		out = append(out, int64(v))
		pos += n
	}
	return out, nil
}
