// Package serialization reads and writes the .born checkpoint format.
//
// The .born format is a simple binary container for model state:
//
//	Format Structure (v1):
//	  [4 bytes: Magic "BORN"]
//	  [4 bytes: Version (uint32 LE)]
//	  [4 bytes: Flags (uint32 LE)]
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON metadata]
//	  [Tensor data: raw bytes, 64-byte aligned]
//
//	Format Structure (v2):
//	  [64-byte fixed header: magic, version, flags, header size,
//	   data size, SHA-256 checksum of the data section]
//	  [Header: JSON metadata]
//	  [Tensor data: raw bytes, 64-byte aligned]
//
// The converter only needs the metadata and the raw tensor bytes, so the
// reader materializes tensors as tensor.Raw values instead of binding them
// to a compute backend. The writer exists for checkpoint-producing tooling
// and for building test fixtures; it always emits tensors in sorted name
// order so that identical state produces identical files.
package serialization
