package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/partd/internal/types"
)

// InvocationID returns a fixed, version 7 shaped invocation id whose last
// bytes encode n. The same n always yields the same id, which keeps golden
// traces stable.
func InvocationID(n uint64) types.InvocationID {
	var id uuid.UUID
	// Version 7 nibble and RFC 4122 variant bits.
	id[6] = 0x70
	binary.BigEndian.PutUint64(id[8:], n|0x8000000000000000)
	return id
}

// SequentialIDs hands out InvocationID(1), InvocationID(2), ...
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu   sync.Mutex
	next uint64
}

// NewSequentialIDs creates a generator whose first id is InvocationID(1).
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{next: 1}
}

// Next returns the next id.
func (g *SequentialIDs) Next() types.InvocationID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := InvocationID(g.next)
	g.next++
	return id
}

// Reset restarts the sequence at InvocationID(1).
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = 1
}
