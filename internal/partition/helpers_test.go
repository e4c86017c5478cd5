package partition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/partd/internal/journal"
	"github.com/roach88/partd/internal/store"
	"github.com/roach88/partd/internal/testutil"
	"github.com/roach88/partd/internal/types"
)

var fullRange = types.KeyRange{Start: 0, End: types.PartitionKey(^uint64(0))}

type outboxItem struct {
	index types.MessageIndex
	msg   types.OutboxMessage
}

// fixture drives a StateMachine over a real store.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *store.Store
	sm    *StateMachine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t:     t,
		ctx:   context.Background(),
		store: testutil.OpenStore(t),
		sm:    NewStateMachine(0, fullRange),
	}
}

func (f *fixture) apply(cmd Command) (Result, error) {
	var res Result
	err := f.store.Transaction(f.ctx, func(tx *store.Tx) error {
		r, err := f.sm.Apply(f.ctx, tx, cmd)
		res = r
		return err
	})
	return res, err
}

func (f *fixture) mustApply(cmd Command) Result {
	f.t.Helper()
	res, err := f.apply(cmd)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) status(sid types.ServiceID) types.InvocationStatus {
	f.t.Helper()
	var status types.InvocationStatus
	require.NoError(f.t, f.store.View(f.ctx, func(tx *store.Tx) error {
		var err error
		status, err = tx.GetStatus(f.ctx, sid)
		return err
	}))
	return status
}

func (f *fixture) journal(id types.ServiceInvocationID) []types.RawEntry {
	f.t.Helper()
	status := f.status(id.ServiceID)
	meta, ok := status.JournalMetadata()
	if !ok {
		return nil
	}
	var entries []types.RawEntry
	require.NoError(f.t, f.store.View(f.ctx, func(tx *store.Tx) error {
		var err error
		entries, err = journal.Entries(f.ctx, tx, id.ServiceID, meta.Length)
		return err
	}))
	return entries
}

func (f *fixture) outbox() []outboxItem {
	f.t.Helper()
	var items []outboxItem
	require.NoError(f.t, f.store.View(f.ctx, func(tx *store.Tx) error {
		return tx.ScanOutbox(f.ctx, 0, func(i types.MessageIndex, m types.OutboxMessage) error {
			items = append(items, outboxItem{index: i, msg: m})
			return nil
		})
	}))
	return items
}

func (f *fixture) timers() []types.TimerKey {
	f.t.Helper()
	var keys []types.TimerKey
	require.NoError(f.t, f.store.View(f.ctx, func(tx *store.Tx) error {
		return tx.ScanTimers(f.ctx, 0, func(k types.TimerKey) error {
			keys = append(keys, k)
			return nil
		})
	}))
	return keys
}

func (f *fixture) inbox(sid types.ServiceID) []types.InboxEntry {
	f.t.Helper()
	var entries []types.InboxEntry
	require.NoError(f.t, f.store.View(f.ctx, func(tx *store.Tx) error {
		return tx.ScanInbox(f.ctx, sid, func(e types.InboxEntry) error {
			entries = append(entries, e)
			return nil
		})
	}))
	return entries
}

func cartInvocation(n uint64, sink *types.ResponseSink) types.ServiceInvocation {
	return types.ServiceInvocation{
		ID:           types.NewServiceInvocationID("cart", []byte("user-42"), testutil.InvocationID(n)),
		MethodName:   "checkout",
		Argument:     []byte("{}"),
		ResponseSink: sink,
	}
}

func entry(t *testing.T, body journal.Body) types.RawEntry {
	t.Helper()
	e, err := journal.NewEntry(body)
	require.NoError(t, err)
	return e
}

func outputEntry(t *testing.T, result types.ResponseResult) types.RawEntry {
	return entry(t, journal.OutputStream{Result: result})
}

func effectKinds(res Result) []EffectKind {
	kinds := make([]EffectKind, 0, len(res.Effects))
	for _, e := range res.Effects {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
