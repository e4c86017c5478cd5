package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/partd/internal/codec"
	"github.com/roach88/partd/internal/types"
)

var testInvocationID = uuid.MustParse("018f3b4e-0000-7000-8000-000000000001")

func testInvocation(service, key string, seq int) types.ServiceInvocation {
	id := types.NewServiceInvocationID(service, []byte(key), uuid.NewSHA1(testInvocationID, []byte{byte(seq)}))
	return types.ServiceInvocation{ID: id, MethodName: "run", Argument: []byte{byte(seq)}}
}

func TestStatus_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sid := types.NewServiceID("cart", []byte("user-1"))
	meta := types.JournalMetadata{Length: 3, Method: "checkout"}
	sink := types.IngressSink("ingress-1")

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		status, err := tx.GetStatus(ctx, sid)
		require.NoError(t, err)
		assert.True(t, status.IsFree(), "missing status reads as free")

		suspended := types.NewSuspendedStatus(testInvocationID, meta, sink, 2, 1)
		require.NoError(t, tx.PutStatus(ctx, sid, suspended))

		got, err := tx.GetStatus(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, types.StatusSuspended, got.Kind)
		assert.Equal(t, []types.EntryIndex{1, 2}, got.WaitingFor())
		gotMeta, _ := got.JournalMetadata()
		assert.Equal(t, meta, gotMeta)
		assert.Equal(t, sink, got.ResponseSink())

		require.NoError(t, tx.PutStatus(ctx, sid, types.FreeStatus()))
		_, ok, err := tx.Get(ctx, statusKey(sid))
		require.NoError(t, err)
		assert.False(t, ok, "free status is not stored")
		return nil
	}))
}

func TestScanStatuses_ByKeyRange(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := types.NewServiceID("svc", []byte("a"))
	b := types.NewServiceID("svc", []byte("b"))

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		meta := types.NewJournalMetadata("m", types.EmptySpanContext())
		require.NoError(t, tx.PutStatus(ctx, a, types.NewInvokedStatus(testInvocationID, meta, nil)))
		require.NoError(t, tx.PutStatus(ctx, b, types.NewInvokedStatus(testInvocationID, meta, nil)))

		var all []types.ServiceID
		require.NoError(t, tx.ScanStatuses(ctx, types.KeyRange{Start: 0, End: ^types.PartitionKey(0)}, func(sid types.ServiceID, _ types.InvocationStatus) error {
			all = append(all, sid)
			return nil
		}))
		assert.Len(t, all, 2)

		pk := a.PartitionKey()
		var only []types.ServiceID
		require.NoError(t, tx.ScanStatuses(ctx, types.KeyRange{Start: pk, End: pk}, func(sid types.ServiceID, _ types.InvocationStatus) error {
			only = append(only, sid)
			return nil
		}))
		require.Len(t, only, 1)
		assert.True(t, only[0].Equal(a))
		return nil
	}))
}

func TestJournal_CompressedPayloads(t *testing.T) {
	s := createTestStore(t, WithCompressor(codec.Compressor{Algorithm: codec.CompressionZstd, Threshold: 16}))
	ctx := context.Background()
	sid := types.NewServiceID("cart", []byte("user-1"))
	big := bytes.Repeat([]byte("journal "), 128)
	entry := types.NewRawEntry(types.EnrichedEntryHeader{Kind: types.EntryOutputStream}, big)

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		require.NoError(t, tx.PutJournalEntry(ctx, sid, 0, entry))

		raw, ok, err := tx.Get(ctx, journalKey(sid, 0))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Less(t, len(raw), len(big), "large payloads are stored compressed")

		got, ok, err := tx.GetJournalEntry(ctx, sid, 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, entry, got)

		require.NoError(t, tx.DeleteJournal(ctx, sid, 1))
		_, ok, err = tx.GetJournalEntry(ctx, sid, 0)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestJournal_DeleteKeepsOtherInstances(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	// "ab" is a byte prefix of "abc"; the length-prefixed key keeps them apart.
	short := types.NewServiceID("svc", []byte("ab"))
	long := types.NewServiceID("svc", []byte("abc"))
	entry := types.NewRawEntry(types.EnrichedEntryHeader{Kind: types.EntryClearState}, []byte{0xa0})

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		require.NoError(t, tx.PutJournalEntry(ctx, short, 0, entry))
		require.NoError(t, tx.PutJournalEntry(ctx, long, 0, entry))
		require.NoError(t, tx.DeleteJournal(ctx, short, 1))

		_, ok, err := tx.GetJournalEntry(ctx, long, 0)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))
}

func TestInbox_FIFO(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sid := types.NewServiceID("svc", []byte("k"))

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		// Insert out of order; the sequence number decides.
		for _, seq := range []int{7, 2, 300} {
			inv := testInvocation("svc", "k", seq)
			require.NoError(t, tx.PushInbox(ctx, types.InboxEntry{SequenceNumber: types.MessageIndex(seq), Invocation: inv}))
		}

		var order []types.MessageIndex
		for {
			e, ok, err := tx.PopInbox(ctx, sid)
			require.NoError(t, err)
			if !ok {
				break
			}
			order = append(order, e.SequenceNumber)
		}
		assert.Equal(t, []types.MessageIndex{2, 7, 300}, order)
		return nil
	}))
}

func TestOutbox_TruncateUpTo(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	msg := types.ForwardIngressResponse(types.IngressResponse{IngressID: "i", Response: types.SuccessResponse(nil)})

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		for i := types.MessageIndex(0); i < 5; i++ {
			require.NoError(t, tx.PutOutbox(ctx, 1, i, msg))
		}
		require.NoError(t, tx.PutOutbox(ctx, 2, 0, msg))
		require.NoError(t, tx.TruncateOutbox(ctx, 1, 2))

		var left []types.MessageIndex
		require.NoError(t, tx.ScanOutbox(ctx, 1, func(i types.MessageIndex, m types.OutboxMessage) error {
			assert.Equal(t, types.OutboxIngressResponse, m.Kind)
			left = append(left, i)
			return nil
		}))
		assert.Equal(t, []types.MessageIndex{3, 4}, left)

		count := 0
		require.NoError(t, tx.ScanOutbox(ctx, 2, func(types.MessageIndex, types.OutboxMessage) error {
			count++
			return nil
		}))
		assert.Equal(t, 1, count, "other partitions are untouched")
		return nil
	}))
}

func TestTimers_OrderedAndDeletable(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := types.NewServiceInvocationID("svc", []byte("k"), testInvocationID)
	late := types.TimerKey{InvocationID: id, JournalIndex: 1, Timestamp: 2000}
	early := types.TimerKey{InvocationID: id, JournalIndex: 2, Timestamp: 1000}

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		require.NoError(t, tx.PutTimer(ctx, 0, late))
		require.NoError(t, tx.PutTimer(ctx, 0, early))

		var order []types.MillisSinceEpoch
		require.NoError(t, tx.ScanTimers(ctx, 0, func(k types.TimerKey) error {
			order = append(order, k.Timestamp)
			return nil
		}))
		assert.Equal(t, []types.MillisSinceEpoch{1000, 2000}, order)

		existed, err := tx.DeleteTimer(ctx, 0, early)
		require.NoError(t, err)
		assert.True(t, existed)
		existed, err = tx.DeleteTimer(ctx, 0, early)
		require.NoError(t, err)
		assert.False(t, existed, "second delete reports a duplicate")

		removed, err := tx.DeleteTimersOf(ctx, 0, id)
		require.NoError(t, err)
		require.Len(t, removed, 1)
		assert.True(t, removed[0].Equal(late))
		return nil
	}))
}

func TestUserState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sid := types.NewServiceID("svc", []byte("k"))

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		require.NoError(t, tx.PutUserState(ctx, sid, []byte("count"), []byte("1")))
		require.NoError(t, tx.PutUserState(ctx, sid, []byte("name"), []byte("x")))
		require.NoError(t, tx.ClearUserState(ctx, sid, []byte("name")))

		v, ok, err := tx.GetUserState(ctx, sid, []byte("count"))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("1"), v)

		var keys []string
		require.NoError(t, tx.ScanUserState(ctx, sid, func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		}))
		assert.Equal(t, []string{"count"}, keys)
		return nil
	}))
}

func TestDedupAndCounters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	producer := types.PartitionProducer(3)

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		_, ok, err := tx.GetDedup(ctx, 0, producer)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, tx.PutDedup(ctx, 0, producer, 41))
		idx, ok, err := tx.GetDedup(ctx, 0, producer)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, types.MessageIndex(41), idx)

		seq, err := tx.NextInboxSeq(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, types.MessageIndex(0), seq)
		require.NoError(t, tx.SetNextInboxSeq(ctx, 0, 5))
		require.NoError(t, tx.SetNextOutboxSeq(ctx, 0, 9))

		seq, err = tx.NextInboxSeq(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, types.MessageIndex(5), seq)
		seq, err = tx.NextOutboxSeq(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, types.MessageIndex(9), seq)
		return nil
	}))
}
