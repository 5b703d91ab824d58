package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/bornconvert/internal/tensor"
)

// Reader reads .born checkpoint files.
type Reader struct {
	file       *os.File
	header     Header
	version    uint32
	flags      uint32
	dataOffset int64
	dataSize   int64
	stored     [ChecksumSize]byte // v2 only
	opts       ReaderOptions
	closed     bool
}

// ReaderOptions configures checkpoint reading.
type ReaderOptions struct {
	// SkipChecksum disables v2 checksum verification. Header-only
	// inspection sets this to avoid reading the whole data section.
	SkipChecksum bool
}

// Open opens a .born file and parses and validates its header.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{})
}

// OpenWithOptions opens a .born file with explicit options.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	r := &Reader{file: file, opts: opts}
	if err := r.parseHeader(); err != nil {
		_ = file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	r.dataSize = info.Size() - r.dataOffset

	if err := ValidateTensorTable(r.header.Tensors, r.dataSize); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("invalid tensor table: %w", err)
	}
	return r, nil
}

func (r *Reader) parseHeader() error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r.file, magic); err != nil {
		return fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(magic) != MagicBytes {
		return ErrInvalidMagic
	}

	if err := binary.Read(r.file, binary.LittleEndian, &r.version); err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}

	switch r.version {
	case FormatVersion:
		return r.parseHeaderV1()
	case FormatVersionV2:
		return r.parseHeaderV2()
	default:
		return fmt.Errorf("%w: got %d, expected %d or %d",
			ErrUnsupportedVersion, r.version, FormatVersion, FormatVersionV2)
	}
}

func (r *Reader) parseHeaderV1() error {
	if err := binary.Read(r.file, binary.LittleEndian, &r.flags); err != nil {
		return fmt.Errorf("failed to read flags: %w", err)
	}

	var headerSize uint64
	if err := binary.Read(r.file, binary.LittleEndian, &headerSize); err != nil {
		return fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	if err := r.readHeaderJSON(headerSize); err != nil {
		return err
	}

	// magic + version + flags + headerSize, then the JSON, then padding.
	pos := int64(4+4+4+8) + int64(headerSize)
	r.dataOffset = pos + (HeaderAlignment-(pos%HeaderAlignment))%HeaderAlignment
	return nil
}

func (r *Reader) parseHeaderV2() error {
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}

	fixed := make([]byte, FixedHeaderSizeV2)
	if _, err := io.ReadFull(r.file, fixed); err != nil {
		return fmt.Errorf("failed to read fixed header: %w", err)
	}

	r.flags = binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	copy(r.stored[:], fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	if err := r.readHeaderJSON(headerSize); err != nil {
		return err
	}

	pos := int64(FixedHeaderSizeV2) + int64(headerSize)
	r.dataOffset = pos + (HeaderAlignment-(pos%HeaderAlignment))%HeaderAlignment

	if r.opts.SkipChecksum {
		return nil
	}

	data := make([]byte, dataSize)
	if _, err := r.file.Seek(r.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to tensor data: %w", err)
	}
	if _, err := io.ReadFull(r.file, data); err != nil {
		return fmt.Errorf("failed to read tensor data for checksum: %w", err)
	}
	return verifyChecksum(checksum(data), r.stored)
}

func (r *Reader) readHeaderJSON(headerSize uint64) error {
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}
	return nil
}

// Header returns the parsed file header.
func (r *Reader) Header() Header { return r.header }

// Version returns the container format version (1 or 2).
func (r *Reader) Version() uint32 { return r.version }

// ReadTensor reads one tensor by name.
func (r *Reader) ReadTensor(name string) (*tensor.Raw, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}
	for _, meta := range r.header.Tensors {
		if meta.Name == name {
			return r.readTensor(meta)
		}
	}
	return nil, fmt.Errorf("tensor %q not found", name)
}

// ReadAll reads every tensor in the file.
func (r *Reader) ReadAll() (map[string]*tensor.Raw, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}
	out := make(map[string]*tensor.Raw, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := r.readTensor(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to read tensor %q: %w", meta.Name, err)
		}
		out[meta.Name] = raw
	}
	return out, nil
}

func (r *Reader) readTensor(meta TensorMeta) (*tensor.Raw, error) {
	dt, ok := tensor.ParseDataType(meta.DType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDType, meta.DType)
	}
	data := make([]byte, meta.Size)
	if _, err := r.file.ReadAt(data, r.dataOffset+meta.Offset); err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return tensor.NewRaw(data, tensor.Shape(meta.Shape), dt)
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
