package tensor

import (
	"testing"
)

func TestNewRawSizeMismatch(t *testing.T) {
	_, err := NewRaw(make([]byte, 10), Shape{2, 2}, Float32)
	if err == nil {
		t.Fatal("expected size mismatch error, got nil")
	}
}

func TestNewRawInvalidShape(t *testing.T) {
	_, err := NewRaw(nil, Shape{2, 0}, Float32)
	if err == nil {
		t.Fatal("expected invalid shape error, got nil")
	}
}

func TestFromFloat32RoundTrip(t *testing.T) {
	values := []float32{1.5, -2.25, 0, 42}
	raw, err := FromFloat32(values, Shape{2, 2})
	if err != nil {
		t.Fatalf("FromFloat32 failed: %v", err)
	}

	if raw.DType() != Float32 {
		t.Errorf("DType = %v, want Float32", raw.DType())
	}
	if !raw.Shape().Equal(Shape{2, 2}) {
		t.Errorf("Shape = %v, want [2 2]", raw.Shape())
	}

	decoded, err := raw.Float32s()
	if err != nil {
		t.Fatalf("Float32s failed: %v", err)
	}
	for i, v := range values {
		if decoded[i] != v {
			t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], v)
		}
	}
}

func TestFloat32sWrongDType(t *testing.T) {
	raw, err := NewRaw(make([]byte, 8), Shape{8}, Uint8)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	if _, err := raw.Float32s(); err == nil {
		t.Error("Float32s on uint8 tensor should fail")
	}
}

func TestRawString(t *testing.T) {
	raw, _ := FromFloat32([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	if got := raw.String(); got != "float32[2 3]" {
		t.Errorf("String() = %q, want %q", got, "float32[2 3]")
	}
}

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{2, 3, 4}, 24},
	}
	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("NumElements(%v) = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestParseDataType(t *testing.T) {
	for _, dt := range []DataType{Float32, Float64, Int32, Int64, Uint8, Bool} {
		parsed, ok := ParseDataType(dt.String())
		if !ok || parsed != dt {
			t.Errorf("ParseDataType(%q) = %v, %v", dt.String(), parsed, ok)
		}
	}
	if _, ok := ParseDataType("float16"); ok {
		t.Error("ParseDataType should reject unsupported dtype")
	}
}
