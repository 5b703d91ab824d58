package serialization

import (
	"time"
)

// Format constants.
const (
	MagicBytes        = "BORN"
	FormatVersion     = 1    // v1: Basic format without checksum
	FormatVersionV2   = 2    // v2: With SHA-256 checksum
	HeaderAlignment   = 64   // Tensor data is aligned to 64 bytes
	FixedHeaderSizeV2 = 64   // v2 fixed header size (0x40 bytes)
	ChecksumSize      = 32   // SHA-256 checksum size
	ChecksumOffsetV2  = 0x20 // Checksum offset in v2 fixed header
)

// Flags for the .born format.
const (
	FlagCompressed   uint32 = 1 << 0 // bit 0: gzip compression (reserved)
	FlagHasOptimizer uint32 = 1 << 1 // bit 1: optimizer state included
	FlagHasMetadata  uint32 = 1 << 2 // bit 2: custom metadata included
)

// MetadataArchitectureKey is the header metadata key under which training
// tools store the JSON graph description consumed by the converters.
const MetadataArchitectureKey = "architecture"

// Header is the JSON header of a .born file.
type Header struct {
	FormatVersion  int               `json:"format_version"`
	ProducerName   string            `json:"producer_name,omitempty"`
	ModelType      string            `json:"model_type"`
	CreatedAt      time.Time         `json:"created_at"`
	Tensors        []TensorMeta      `json:"tensors"`
	Metadata       map[string]string `json:"metadata"`
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta carries training state recorded at save time. The converter
// ignores everything except its presence, which marks a file as a training
// checkpoint rather than a bare weight dump.
type CheckpointMeta struct {
	IsCheckpoint bool    `json:"is_checkpoint"`
	Epoch        int     `json:"epoch"`
	Step         int64   `json:"step"`
	Loss         float64 `json:"loss"`
}

// TensorMeta describes one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`   // e.g. "layers.0.weight"
	DType  string `json:"dtype"`  // e.g. "float32"
	Shape  []int  `json:"shape"`  // tensor dimensions
	Offset int64  `json:"offset"` // bytes from start of the data section
	Size   int64  `json:"size"`   // size in bytes
}
