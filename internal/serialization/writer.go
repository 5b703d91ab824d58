package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/born-ml/bornconvert/internal/tensor"
)

const producerName = "bornconvert"

// WriteOptions configures checkpoint writing.
type WriteOptions struct {
	ModelType      string
	Metadata       map[string]string
	CheckpointMeta *CheckpointMeta
	// V1 selects the legacy format without checksum. Default is v2.
	V1 bool
}

// WriteCheckpoint writes a state dict to path in .born format, overwriting
// any existing file. Tensors are laid out in sorted name order so the same
// state always produces byte-identical files (CreatedAt aside).
func WriteCheckpoint(path string, state map[string]*tensor.Raw, opts WriteOptions) error {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		FormatVersion: FormatVersionV2,
		ProducerName:  producerName,
		ModelType:     opts.ModelType,
		CreatedAt:     time.Now().UTC(),
		Tensors:       make([]TensorMeta, 0, len(state)),
		Metadata:      opts.Metadata,
	}
	if opts.V1 {
		header.FormatVersion = FormatVersion
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}
	header.CheckpointMeta = opts.CheckpointMeta

	var data bytes.Buffer
	for _, name := range names {
		raw := state[name]
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  raw.DType().String(),
			Shape:  []int(raw.Shape()),
			Offset: int64(data.Len()),
			Size:   int64(len(raw.Data())),
		})
		data.Write(raw.Data())
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.CheckpointMeta != nil && header.CheckpointMeta.IsCheckpoint {
		flags |= FlagHasOptimizer
	}

	var buf bytes.Buffer
	if opts.V1 {
		writeFixedV1(&buf, flags, uint64(len(headerJSON)))
	} else {
		writeFixedV2(&buf, flags, uint64(len(headerJSON)), uint64(data.Len()), checksum(data.Bytes()))
	}
	buf.Write(headerJSON)

	pos := int64(buf.Len())
	if padding := (HeaderAlignment - (pos % HeaderAlignment)) % HeaderAlignment; padding > 0 {
		buf.Write(make([]byte, padding))
	}
	buf.Write(data.Bytes())

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func writeFixedV1(buf *bytes.Buffer, flags uint32, headerSize uint64) {
	buf.WriteString(MagicBytes)
	_ = binary.Write(buf, binary.LittleEndian, uint32(FormatVersion))
	_ = binary.Write(buf, binary.LittleEndian, flags)
	_ = binary.Write(buf, binary.LittleEndian, headerSize)
}

func writeFixedV2(buf *bytes.Buffer, flags uint32, headerSize, dataSize uint64, sum [ChecksumSize]byte) {
	fixed := make([]byte, FixedHeaderSizeV2)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersionV2)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], headerSize)
	binary.LittleEndian.PutUint64(fixed[24:32], dataSize)
	copy(fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize], sum[:])
	buf.Write(fixed)
}
