// Package store provides SQLite-backed durable storage for partition state.
//
// The store is an ordered binary key/value space with atomic transactions.
// Typed accessors on Tx map the logical tables of a partition onto key
// prefixes:
//   - status: invocation status per service instance
//   - journal: journal entries per service instance and entry index
//   - inbox: queued invocations per service instance and sequence number
//   - outbox: messages leaving a partition, by message index
//   - timers: scheduled wake-ups, ordered by timestamp
//   - state: user state per service instance
//   - dedup: highest applied message index per producer
//   - fsm: partition counters (next inbox and outbox index)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Values are deterministic CBOR (internal/codec). Journal payloads are
// framed by a codec.Compressor so large entries can be stored compressed.
package store
