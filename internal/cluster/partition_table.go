package cluster

import (
	"fmt"

	"github.com/roach88/partd/internal/types"
)

// PartitionTable splits the partition key space into a fixed number of
// contiguous, equally sized key ranges.
type PartitionTable struct {
	n uint64
}

// MaxPartitions bounds the partition count.
const MaxPartitions = 1 << 16

// NewPartitionTable creates a table of n partitions.
func NewPartitionTable(n uint64) (PartitionTable, error) {
	if n == 0 || n > MaxPartitions {
		return PartitionTable{}, fmt.Errorf("partition count %d out of range [1, %d]", n, MaxPartitions)
	}
	return PartitionTable{n: n}, nil
}

// Len returns the number of partitions.
func (t PartitionTable) Len() uint64 {
	return t.n
}

// Partitions returns all partition ids in ascending order.
func (t PartitionTable) Partitions() []types.PartitionID {
	out := make([]types.PartitionID, t.n)
	for i := range out {
		out[i] = types.PartitionID(i)
	}
	return out
}

// width is the number of keys per partition; the last partition may be
// shorter.
func (t PartitionTable) width() uint64 {
	return ^uint64(0)/t.n + 1
}

// FindPartition returns the partition owning pk.
func (t PartitionTable) FindPartition(pk types.PartitionKey) types.PartitionID {
	if t.n <= 1 {
		return 0
	}
	return types.PartitionID(uint64(pk) / t.width())
}

// KeyRange returns the inclusive key range of partition pid.
func (t PartitionTable) KeyRange(pid types.PartitionID) (types.KeyRange, error) {
	if uint64(pid) >= t.n {
		return types.KeyRange{}, fmt.Errorf("partition %d out of range [0, %d)", pid, t.n)
	}
	if t.n == 1 {
		return types.KeyRange{Start: 0, End: types.PartitionKey(^uint64(0))}, nil
	}
	w := t.width()
	start := uint64(pid) * w
	end := start + w - 1
	if uint64(pid) == t.n-1 {
		end = ^uint64(0)
	}
	return types.KeyRange{Start: types.PartitionKey(start), End: types.PartitionKey(end)}, nil
}
