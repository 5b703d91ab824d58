package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Raw is an immutable tensor read from a checkpoint: a flat little-endian
// byte buffer plus shape and type metadata. The converters never compute on
// tensor data, they only re-encode it, so no backend or device is attached.
type Raw struct {
	data  []byte
	shape Shape
	dtype DataType
}

// NewRaw wraps data as a tensor with the given shape and type.
// The byte length must match the shape and element size exactly.
func NewRaw(data []byte, shape Shape, dtype DataType) (*Raw, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	want := shape.NumElements() * dtype.Size()
	if len(data) != want {
		return nil, fmt.Errorf("data size mismatch: got %d bytes, shape %v of %s needs %d",
			len(data), shape, dtype, want)
	}
	return &Raw{data: data, shape: shape.Clone(), dtype: dtype}, nil
}

// FromFloat32 builds a float32 tensor from values, mostly used by tests
// and fixtures.
func FromFloat32(values []float32, shape Shape) (*Raw, error) {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return NewRaw(data, shape, Float32)
}

// Data returns the underlying byte buffer. Callers must not modify it.
func (r *Raw) Data() []byte { return r.data }

// Shape returns the tensor dimensions.
func (r *Raw) Shape() Shape { return r.shape }

// DType returns the element type.
func (r *Raw) DType() DataType { return r.dtype }

// NumElements returns the element count.
func (r *Raw) NumElements() int { return r.shape.NumElements() }

// Float32s decodes the buffer as float32 values.
// Returns an error if the tensor is not Float32.
func (r *Raw) Float32s() ([]float32, error) {
	if r.dtype != Float32 {
		return nil, fmt.Errorf("tensor is %s, not float32", r.dtype)
	}
	out := make([]float32, r.NumElements())
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(r.data[i*4:]))
	}
	return out, nil
}

// String returns a short description like "float32[2 3]".
func (r *Raw) String() string {
	return fmt.Sprintf("%s%v", r.dtype, []int(r.shape))
}
