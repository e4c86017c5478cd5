package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/partd/internal/types"
)

func TestPartitionTable_CoversKeySpace(t *testing.T) {
	for _, n := range []uint64{1, 2, 3, 7, 64} {
		table, err := NewPartitionTable(n)
		require.NoError(t, err)

		var prevEnd types.PartitionKey
		for _, pid := range table.Partitions() {
			r, err := table.KeyRange(pid)
			require.NoError(t, err)
			if pid == 0 {
				assert.Equal(t, types.PartitionKey(0), r.Start)
			} else {
				assert.Equal(t, prevEnd+1, r.Start, "n=%d pid=%d ranges must be contiguous", n, pid)
			}
			assert.Equal(t, pid, table.FindPartition(r.Start))
			assert.Equal(t, pid, table.FindPartition(r.End))
			prevEnd = r.End
		}
		assert.Equal(t, types.PartitionKey(^uint64(0)), prevEnd, "n=%d last range must end at max key", n)
	}
}

func TestPartitionTable_Invalid(t *testing.T) {
	_, err := NewPartitionTable(0)
	assert.Error(t, err)

	table, err := NewPartitionTable(4)
	require.NoError(t, err)
	_, err = table.KeyRange(4)
	assert.Error(t, err)
}

func TestRegistry_AssignBumpsEpochOnLeaderChange(t *testing.T) {
	table, err := NewPartitionTable(2)
	require.NoError(t, err)
	r := NewRegistry(table)

	o, err := r.Assign(1, "node-a")
	require.NoError(t, err)
	assert.Equal(t, types.LeaderEpoch(1), o.Epoch)

	o, err = r.Assign(1, "node-a")
	require.NoError(t, err)
	assert.Equal(t, types.LeaderEpoch(1), o.Epoch, "same leader keeps its epoch")

	o, err = r.Assign(1, "node-b")
	require.NoError(t, err)
	assert.Equal(t, types.LeaderEpoch(2), o.Epoch)
	assert.Equal(t, types.PartitionLeaderEpoch{PartitionID: 1, LeaderEpoch: 2}, o.PartitionLeaderEpoch())

	assert.True(t, r.IsLeader("node-b", 1))
	assert.False(t, r.IsLeader("node-a", 1))

	_, err = r.Assign(2, "node-a")
	assert.Error(t, err)
	_, err = r.Assign(0, "")
	assert.Error(t, err)
}

func TestRegistry_CurrentOwner(t *testing.T) {
	table, err := NewPartitionTable(4)
	require.NoError(t, err)
	r := NewRegistry(table)

	pk := types.PartitionKeyOf([]byte("user-42"))
	_, err = r.CurrentOwner(pk)
	assert.True(t, errors.Is(err, ErrNoOwner))

	require.NoError(t, r.Rebalance([]string{"n2", "n1", "n1"}))
	o, err := r.CurrentOwner(pk)
	require.NoError(t, err)
	assert.Equal(t, table.FindPartition(pk), o.Partition)

	assert.Equal(t, []types.PartitionID{0, 2}, r.NodePartitions("n1"))
	assert.Equal(t, []types.PartitionID{1, 3}, r.NodePartitions("n2"))

	r.Unassign(0)
	_, ok := r.Owner(0)
	assert.False(t, ok)
}

func TestMetadata_Context(t *testing.T) {
	_, ok := MetadataFrom(context.Background())
	assert.False(t, ok)

	ctx := WithMetadata(context.Background(), Metadata{NodeName: "n1", ClusterName: "c"})
	md, ok := MetadataFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "n1", md.NodeName)
}
