package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bornconvert/internal/serialization"
	"github.com/born-ml/bornconvert/internal/tensor"
)

// fixtureModel is a two-layer MLP used across loading tests.
func fixtureModel(t *testing.T) *Model {
	t.Helper()
	w0, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{2, 4})
	require.NoError(t, err)
	b0, err := tensor.FromFloat32([]float32{0.1, 0.2}, tensor.Shape{2})
	require.NoError(t, err)

	return &Model{
		Name: "fixture",
		Inputs: []TensorSpec{
			{Name: "input", DType: tensor.Float32, Shape: tensor.Shape{1, 4}},
		},
		OutputNames: []string{"logits"},
		Layers: []Layer{
			{Kind: LayerLinear, Name: "dense0", Weight: "layers.0.weight", Bias: "layers.0.bias"},
			{Kind: LayerRelu},
		},
		Weights: map[string]*tensor.Raw{
			"layers.0.weight": w0,
			"layers.0.bias":   b0,
		},
	}
}

// writeBornFixture saves the model as a .born checkpoint.
func writeBornFixture(t *testing.T, path string, m *Model) {
	t.Helper()
	arch, err := MarshalArchitecture(m)
	require.NoError(t, err)
	require.NoError(t, serialization.WriteCheckpoint(path, m.Weights, serialization.WriteOptions{
		ModelType: "Sequential",
		Metadata:  map[string]string{serialization.MetadataArchitectureKey: arch},
		CheckpointMeta: &serialization.CheckpointMeta{
			IsCheckpoint: true,
			Epoch:        1,
			Step:         100,
		},
	}))
}

func TestLoadBorn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_001.born")
	writeBornFixture(t, path, fixtureModel(t))

	m, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "model_001", m.Name)
	require.Len(t, m.Inputs, 1)
	assert.Equal(t, "input", m.Inputs[0].Name)
	assert.Equal(t, tensor.Float32, m.Inputs[0].DType)
	assert.Equal(t, tensor.Shape{1, 4}, m.Inputs[0].Shape)
	assert.Equal(t, []string{"logits"}, m.OutputNames)
	require.Len(t, m.Layers, 2)
	assert.Equal(t, LayerLinear, m.Layers[0].Kind)
	assert.Equal(t, LayerRelu, m.Layers[1].Kind)
	require.Contains(t, m.Weights, "layers.0.weight")
	assert.Equal(t, tensor.Shape{2, 4}, m.Weights["layers.0.weight"].Shape())
}

func TestLoadBornWithoutArchitecture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.born")
	w, err := tensor.FromFloat32([]float32{1, 2}, tensor.Shape{2})
	require.NoError(t, err)
	require.NoError(t, serialization.WriteCheckpoint(path, map[string]*tensor.Raw{"w": w},
		serialization.WriteOptions{ModelType: "Sequential"}))

	_, err = Load(path)
	assert.ErrorIs(t, err, ErrNoArchitecture)
}

func TestLoadSafeTensors(t *testing.T) {
	m := fixtureModel(t)
	arch, err := MarshalArchitecture(m)
	require.NoError(t, err)

	// Assemble the safetensors container by hand.
	weight := m.Weights["layers.0.weight"]
	bias := m.Weights["layers.0.bias"]
	data := append(append([]byte{}, weight.Data()...), bias.Data()...)
	header := map[string]any{
		"__metadata__": map[string]string{serialization.MetadataArchitectureKey: arch},
		"layers.0.weight": map[string]any{
			"dtype": "F32", "shape": []int{2, 4},
			"data_offsets": []int64{0, int64(len(weight.Data()))},
		},
		"layers.0.bias": map[string]any{
			"dtype": "F32", "shape": []int{2},
			"data_offsets": []int64{int64(len(weight.Data())), int64(len(data))},
		},
	}
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON))))
	buf.Write(headerJSON)
	buf.Write(data)

	path := filepath.Join(t.TempDir(), "model_002.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "model_002", got.Name)
	assert.Equal(t, []string{"logits"}, got.OutputNames)
	assert.True(t, bytes.Equal(got.Weights["layers.0.weight"].Data(), weight.Data()))
}

func TestLoadUnrecognizedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.h5")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestModelValidate(t *testing.T) {
	m := fixtureModel(t)
	require.NoError(t, m.Validate())

	t.Run("no inputs", func(t *testing.T) {
		broken := fixtureModel(t)
		broken.Inputs = nil
		assert.ErrorIs(t, broken.Validate(), ErrNoInputs)
	})

	t.Run("missing weight", func(t *testing.T) {
		broken := fixtureModel(t)
		broken.Layers[0].Weight = "nope"
		assert.Error(t, broken.Validate())
	})

	t.Run("bias shape mismatch", func(t *testing.T) {
		broken := fixtureModel(t)
		bad, err := tensor.FromFloat32([]float32{1, 2, 3}, tensor.Shape{3})
		require.NoError(t, err)
		broken.Weights["layers.0.bias"] = bad
		assert.Error(t, broken.Validate())
	})

	t.Run("unknown layer kind", func(t *testing.T) {
		broken := fixtureModel(t)
		broken.Layers = append(broken.Layers, Layer{Kind: "conv3d"})
		assert.Error(t, broken.Validate())
	})
}

func TestClearOutputNames(t *testing.T) {
	m := fixtureModel(t)
	m.ClearOutputNames()
	assert.Empty(t, m.OutputNames)
}

func TestArchitectureRoundTrip(t *testing.T) {
	m := fixtureModel(t)
	encoded, err := MarshalArchitecture(m)
	require.NoError(t, err)

	decoded := &Model{}
	require.NoError(t, parseArchitecture(encoded, decoded))
	assert.Equal(t, m.Inputs, decoded.Inputs)
	assert.Equal(t, m.OutputNames, decoded.OutputNames)
	assert.Equal(t, m.Layers, decoded.Layers)
}
