// Package journal implements the journal model: the append-only, ordered
// sequence of entries belonging to one invocation.
//
// A stored entry is a types.RawEntry: an enriched header plus an opaque
// payload. This package defines the payload bodies of every entry kind
// (deterministic CBOR), builds headers from bodies, and fills completion
// results into pending entries.
//
// Append is the only mutation of the sequence; each append takes the next
// index. Completing an entry rewrites that one entry in place and is
// idempotent: completing an already completed entry changes nothing.
package journal
