package cluster

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/partd/internal/types"
)

// ErrNoOwner is returned when a partition has no assigned leader.
var ErrNoOwner = errors.New("partition has no owner")

// Owner is the current leader of a partition.
type Owner struct {
	Node      string
	Partition types.PartitionID
	Epoch     types.LeaderEpoch
}

// PartitionLeaderEpoch returns the (partition, epoch) pair of the owner.
func (o Owner) PartitionLeaderEpoch() types.PartitionLeaderEpoch {
	return types.PartitionLeaderEpoch{PartitionID: o.Partition, LeaderEpoch: o.Epoch}
}

// Oracle tells the partition core who owns what. The answers may change at
// any time; callers re-ask instead of caching.
type Oracle interface {
	// CurrentOwner returns the leader of the partition owning pk.
	CurrentOwner(pk types.PartitionKey) (Owner, error)
	// IsLeader reports whether node currently leads pid.
	IsLeader(node string, pid types.PartitionID) bool
}

// Registry is an in-memory Oracle backed by a PartitionTable and a
// partition -> node assignment map.
//
// Thread-safe: reads take a shared lock, assignments an exclusive one.
type Registry struct {
	table PartitionTable

	mu          sync.RWMutex
	assignments map[types.PartitionID]Owner
}

var _ Oracle = (*Registry)(nil)

// NewRegistry creates a registry with no assignments.
func NewRegistry(table PartitionTable) *Registry {
	return &Registry{
		table:       table,
		assignments: make(map[types.PartitionID]Owner),
	}
}

// Table returns the partition table of the registry.
func (r *Registry) Table() PartitionTable {
	return r.table
}

// Assign makes node the leader of pid. A change of leader bumps the epoch;
// reassigning the current leader keeps it.
func (r *Registry) Assign(pid types.PartitionID, node string) (Owner, error) {
	if uint64(pid) >= r.table.Len() {
		return Owner{}, fmt.Errorf("invalid partition %d, must be in range [0, %d)", pid, r.table.Len())
	}
	if node == "" {
		return Owner{}, errors.New("node cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.assignments[pid]
	if ok && prev.Node == node {
		return prev, nil
	}
	owner := Owner{Node: node, Partition: pid, Epoch: prev.Epoch + 1}
	r.assignments[pid] = owner
	return owner, nil
}

// Unassign removes the leader of pid.
func (r *Registry) Unassign(pid types.PartitionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assignments, pid)
}

// Owner returns the leader of pid.
func (r *Registry) Owner(pid types.PartitionID) (Owner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.assignments[pid]
	return o, ok
}

// CurrentOwner implements Oracle.
func (r *Registry) CurrentOwner(pk types.PartitionKey) (Owner, error) {
	pid := r.table.FindPartition(pk)
	o, ok := r.Owner(pid)
	if !ok {
		return Owner{}, fmt.Errorf("%w: partition %d (key %d)", ErrNoOwner, pid, pk)
	}
	return o, nil
}

// IsLeader implements Oracle.
func (r *Registry) IsLeader(node string, pid types.PartitionID) bool {
	o, ok := r.Owner(pid)
	return ok && o.Node == node
}

// NodePartitions returns the partitions led by node in ascending order.
func (r *Registry) NodePartitions(node string) []types.PartitionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.PartitionID
	for pid, o := range r.assignments {
		if o.Node == node {
			out = append(out, pid)
		}
	}
	slices.Sort(out)
	return out
}

// Rebalance spreads all partitions round-robin over nodes. Nodes are
// sorted first so every caller computes the same layout.
func (r *Registry) Rebalance(nodes []string) error {
	if len(nodes) == 0 {
		return errors.New("no nodes available for rebalancing")
	}
	sorted := slices.Clone(nodes)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	for _, pid := range r.table.Partitions() {
		if _, err := r.Assign(pid, sorted[int(uint64(pid)%uint64(len(sorted)))]); err != nil {
			return err
		}
	}
	return nil
}
