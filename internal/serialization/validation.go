package serialization

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/born-ml/bornconvert/internal/tensor"
)

// Validation limits. Checkpoints come from the local training run, but the
// reader still refuses tables that could not have been written by a sane
// producer.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidateTensorTable checks the header's tensor table against the size of
// the data section: dtype known, shape consistent with size, no negative
// values, no out-of-bounds reads, no overlapping regions.
func ValidateTensorTable(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	for _, t := range tensors {
		if len(t.Name) > MaxTensorNameLen {
			return &ValidationError{
				Type:    "name_too_long",
				Tensor:  t.Name[:64] + "...",
				Details: fmt.Sprintf("name length %d exceeds %d", len(t.Name), MaxTensorNameLen),
			}
		}
		dt, ok := tensor.ParseDataType(t.DType)
		if !ok {
			return &ValidationError{
				Type:    "unknown_dtype",
				Tensor:  t.Name,
				Details: fmt.Sprintf("dtype %q", t.DType),
			}
		}
		if want := int64(tensor.Shape(t.Shape).NumElements() * dt.Size()); want != t.Size {
			return &ValidationError{
				Type:    "size_mismatch",
				Tensor:  t.Name,
				Details: fmt.Sprintf("shape %v of %s needs %d bytes, header says %d", t.Shape, t.DType, want, t.Size),
			}
		}
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", t.Offset, t.Size),
			}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d size=%d exceeds data section of %d bytes", t.Offset, t.Size, dataSize),
			}
		}
	}

	// Sort by offset for overlap detection.
	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Offset+prev.Size > cur.Offset {
			return &ValidationError{
				Type:    "offset_overlap",
				Tensor:  prev.Name,
				Tensor2: cur.Name,
				Details: fmt.Sprintf("[%d,%d) overlaps [%d,%d)", prev.Offset, prev.Offset+prev.Size, cur.Offset, cur.Offset+cur.Size),
			}
		}
	}
	return nil
}

// checksum computes the SHA-256 digest of the data section.
func checksum(data []byte) [ChecksumSize]byte {
	return sha256.Sum256(data)
}

// verifyChecksum compares a computed digest against the stored one.
func verifyChecksum(computed, stored [ChecksumSize]byte) error {
	if computed != stored {
		return ErrChecksumMismatch
	}
	return nil
}
