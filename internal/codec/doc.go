// Package codec provides the serialization used for every persisted value and
// every message exchanged between partitions.
//
// Values are encoded as CBOR with Core Deterministic Encoding (RFC 8949
// §4.2): the same logical value always produces identical bytes. This matters
// for the journal, where completing an entry twice must leave byte-identical
// state.
//
// Journal payloads can additionally be compressed (lz4 or zstd). Compressed
// payloads are framed with a one-byte tag and the uncompressed length so
// that readers never need to know the writer's configuration.
package codec
