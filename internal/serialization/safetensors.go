package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/bornconvert/internal/tensor"
)

// SafeTensors support: checkpoints produced by non-Born tooling are often
// saved as .safetensors. The format is
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes]
//
// where the JSON header maps tensor names to {dtype, shape, data_offsets}
// plus an optional "__metadata__" string map.

type safeTensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end)
}

// safeTensorsDType maps safetensors dtype tags to tensor.DataType.
// F16/BF16 are not representable and fail the load.
func safeTensorsDType(s string) (tensor.DataType, bool) {
	switch s {
	case "F32":
		return tensor.Float32, true
	case "F64":
		return tensor.Float64, true
	case "I32":
		return tensor.Int32, true
	case "I64":
		return tensor.Int64, true
	case "U8":
		return tensor.Uint8, true
	case "BOOL":
		return tensor.Bool, true
	default:
		return 0, false
	}
}

// SafeTensorsFile is a parsed .safetensors checkpoint.
type SafeTensorsFile struct {
	Metadata map[string]string
	Tensors  map[string]*tensor.Raw
	// Names holds the tensor names in header order for deterministic
	// iteration.
	Names []string
}

// ReadSafeTensors reads a .safetensors file entirely into memory.
func ReadSafeTensors(path string) (*SafeTensorsFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawMap); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	out := &SafeTensorsFile{
		Metadata: make(map[string]string),
		Tensors:  make(map[string]*tensor.Raw),
	}
	if metaRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metaRaw, &out.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse __metadata__: %w", err)
		}
	}

	// Decode the per-tensor entries. json map order is not stable, so
	// sort by data offset to recover the on-disk layout for Names.
	entries := make([]safeTensorEntry, 0, len(rawMap))
	for name, value := range rawMap {
		if name == "__metadata__" {
			continue
		}
		var info safeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, fmt.Errorf("failed to parse tensor %q: %w", name, err)
		}
		entries = append(entries, safeTensorEntry{name: name, info: info})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].info.DataOffsets[0] < entries[j].info.DataOffsets[0]
	})

	dataOffset := int64(8 + headerSize)
	for _, e := range entries {
		dt, ok := safeTensorsDType(e.info.DType)
		if !ok {
			return nil, fmt.Errorf("%w: safetensors dtype %q for tensor %q",
				ErrUnknownDType, e.info.DType, e.name)
		}
		start, end := e.info.DataOffsets[0], e.info.DataOffsets[1]
		if start < 0 || end < start {
			return nil, &ValidationError{
				Type:    "negative_offset",
				Tensor:  e.name,
				Details: fmt.Sprintf("data_offsets=[%d,%d)", start, end),
			}
		}
		data := make([]byte, end-start)
		if _, err := file.ReadAt(data, dataOffset+start); err != nil {
			return nil, fmt.Errorf("failed to read tensor %q: %w", e.name, err)
		}
		raw, err := tensor.NewRaw(data, tensor.Shape(e.info.Shape), dt)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", e.name, err)
		}
		out.Tensors[e.name] = raw
		out.Names = append(out.Names, e.name)
	}
	return out, nil
}

type safeTensorEntry struct {
	name string
	info safeTensorInfo
}
