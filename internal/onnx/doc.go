// Package onnx emits ONNX interchange graphs.
//
// The ONNX container is protobuf. The package carries a hand-written encoder
// and decoder for the subset of the ONNX schema a sequential model needs, so
// no protobuf compiler output or runtime is involved. The decoder exists for
// artifact inspection and for round-trip verification of the encoder.
//
// Key components:
//   - ModelProto / GraphProto / NodeProto / TensorProto: the graph structures
//   - Marshal / Unmarshal: wire-format codec
//   - Export: builds a ModelProto from a loaded checkpoint model
package onnx
