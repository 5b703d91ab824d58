package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/bornconvert/internal/tensor"
)

func testState(t *testing.T) map[string]*tensor.Raw {
	t.Helper()
	w, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	if err != nil {
		t.Fatalf("FromFloat32 failed: %v", err)
	}
	b, err := tensor.FromFloat32([]float32{0.5, -0.5}, tensor.Shape{2})
	if err != nil {
		t.Fatalf("FromFloat32 failed: %v", err)
	}
	return map[string]*tensor.Raw{
		"layers.0.weight": w,
		"layers.0.bias":   b,
	}
}

func TestRoundTripV2(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.born")
	state := testState(t)

	err := WriteCheckpoint(path, state, WriteOptions{
		ModelType: "Sequential",
		Metadata:  map[string]string{"foo": "bar"},
		CheckpointMeta: &CheckpointMeta{
			IsCheckpoint: true,
			Epoch:        3,
			Step:         1200,
			Loss:         0.25,
		},
	})
	if err != nil {
		t.Fatalf("WriteCheckpoint failed: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if r.Version() != FormatVersionV2 {
		t.Errorf("Version = %d, want %d", r.Version(), FormatVersionV2)
	}
	h := r.Header()
	if h.ModelType != "Sequential" {
		t.Errorf("ModelType = %q, want Sequential", h.ModelType)
	}
	if h.Metadata["foo"] != "bar" {
		t.Errorf("Metadata[foo] = %q, want bar", h.Metadata["foo"])
	}
	if h.CheckpointMeta == nil || h.CheckpointMeta.Epoch != 3 {
		t.Errorf("CheckpointMeta = %+v, want epoch 3", h.CheckpointMeta)
	}

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadAll returned %d tensors, want 2", len(got))
	}
	for name, want := range state {
		raw, ok := got[name]
		if !ok {
			t.Fatalf("tensor %q missing", name)
		}
		if !bytes.Equal(raw.Data(), want.Data()) {
			t.Errorf("tensor %q data mismatch", name)
		}
		if !raw.Shape().Equal(want.Shape()) {
			t.Errorf("tensor %q shape = %v, want %v", name, raw.Shape(), want.Shape())
		}
	}
}

func TestRoundTripV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.born")
	if err := WriteCheckpoint(path, testState(t), WriteOptions{ModelType: "Sequential", V1: true}); err != nil {
		t.Fatalf("WriteCheckpoint failed: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if r.Version() != FormatVersion {
		t.Errorf("Version = %d, want %d", r.Version(), FormatVersion)
	}
	if _, err := r.ReadTensor("layers.0.bias"); err != nil {
		t.Errorf("ReadTensor failed: %v", err)
	}
	if _, err := r.ReadTensor("no.such.tensor"); err == nil {
		t.Error("ReadTensor on missing name should fail")
	}
}

func TestDeterministicOutput(t *testing.T) {
	// Same state dict must serialize identically so that re-exports are
	// byte-identical.
	dir := t.TempDir()
	state := testState(t)

	opts := WriteOptions{ModelType: "Sequential"}
	if err := WriteCheckpoint(filepath.Join(dir, "a.born"), state, opts); err != nil {
		t.Fatal(err)
	}
	if err := WriteCheckpoint(filepath.Join(dir, "b.born"), state, opts); err != nil {
		t.Fatal(err)
	}

	a, _ := os.ReadFile(filepath.Join(dir, "a.born"))
	b, _ := os.ReadFile(filepath.Join(dir, "b.born"))

	// CreatedAt differs; compare the tensor tables and data sections via
	// a fresh read instead of raw bytes.
	ra, err := Open(filepath.Join(dir, "a.born"))
	if err != nil {
		t.Fatal(err)
	}
	defer ra.Close()
	rb, err := Open(filepath.Join(dir, "b.born"))
	if err != nil {
		t.Fatal(err)
	}
	defer rb.Close()

	ta, tb := ra.Header().Tensors, rb.Header().Tensors
	if len(ta) != len(tb) {
		t.Fatalf("tensor table lengths differ: %d vs %d", len(ta), len(tb))
	}
	for i := range ta {
		if ta[i].Name != tb[i].Name || ta[i].Offset != tb[i].Offset {
			t.Errorf("tensor table entry %d differs: %+v vs %+v", i, ta[i], tb[i])
		}
	}
	if len(a) != len(b) {
		t.Errorf("file sizes differ: %d vs %d", len(a), len(b))
	}
}

func TestInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.born")
	if err := os.WriteFile(path, []byte("NOPEevenmorebytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("Open = %v, want ErrInvalidMagic", err)
	}
}

func TestUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(MagicBytes)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(99))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(2))
	buf.WriteString("{}")

	path := filepath.Join(t.TempDir(), "v99.born")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Open = %v, want ErrUnsupportedVersion", err)
	}
}

func TestChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.born")
	if err := WriteCheckpoint(path, testState(t), WriteOptions{ModelType: "Sequential"}); err != nil {
		t.Fatal(err)
	}

	// Flip a bit in the last byte of the data section.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Open(path)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Open = %v, want ErrChecksumMismatch", err)
	}

	// Skipping checksum validation lets the header through.
	r, err := OpenWithOptions(path, ReaderOptions{SkipChecksum: true})
	if err != nil {
		t.Errorf("OpenWithOptions(SkipChecksum) = %v, want nil", err)
	} else {
		r.Close()
	}
}

func TestOverlappingTensorsRejected(t *testing.T) {
	header := Header{
		FormatVersion: FormatVersion,
		ModelType:     "Sequential",
		Metadata:      map[string]string{},
		Tensors: []TensorMeta{
			{Name: "a", DType: "float32", Shape: []int{2}, Offset: 0, Size: 8},
			{Name: "b", DType: "float32", Shape: []int{2}, Offset: 4, Size: 8},
		},
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	buf.WriteString(MagicBytes)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(FormatVersion))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON)))
	buf.Write(headerJSON)
	pos := int64(buf.Len())
	buf.Write(make([]byte, (HeaderAlignment-(pos%HeaderAlignment))%HeaderAlignment))
	buf.Write(make([]byte, 16))

	path := filepath.Join(t.TempDir(), "overlap.born")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Open(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Open = %v, want ValidationError", err)
	}
	if verr.Type != "offset_overlap" {
		t.Errorf("ValidationError.Type = %q, want offset_overlap", verr.Type)
	}
}
