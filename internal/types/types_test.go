package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionKeyOf_Deterministic(t *testing.T) {
	a := PartitionKeyOf([]byte("user-42"))
	b := PartitionKeyOf([]byte("user-42"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, PartitionKeyOf([]byte("user-43")))
	assert.Equal(t, NewServiceID("cart", []byte("user-42")).PartitionKey(), a,
		"partition key depends only on the key bytes")
	assert.Equal(t, NewServiceID("other", []byte("user-42")).PartitionKey(), a)
}

func TestPartitionKeyOf_Spread(t *testing.T) {
	// Four equal quarters of the key space should all receive some keys.
	var quarters [4]int
	for i := 0; i < 400; i++ {
		pk := PartitionKeyOf([]byte{byte(i), byte(i >> 8)})
		quarters[uint64(pk)>>62]++
	}
	for q, n := range quarters {
		assert.Greater(t, n, 40, "quarter %d", q)
	}
}

func TestKeyRange_Contains(t *testing.T) {
	r := KeyRange{Start: 10, End: 20}
	assert.True(t, r.Contains(10))
	assert.True(t, r.Contains(20))
	assert.False(t, r.Contains(9))
	assert.False(t, r.Contains(21))
}

func TestServiceID_NormalizesName(t *testing.T) {
	composed := NewServiceID("caf\u00e9", []byte("k"))
	decomposed := NewServiceID("cafe\u0301", []byte("k"))
	assert.True(t, composed.Equal(decomposed))
}

func TestServiceID_CopiesKey(t *testing.T) {
	key := []byte("abc")
	sid := NewServiceID("svc", key)
	key[0] = 'x'
	assert.Equal(t, []byte("abc"), sid.Key)
}

func TestServiceID_Compare(t *testing.T) {
	a := NewServiceID("a", []byte("2"))
	b := NewServiceID("b", []byte("1"))
	a1 := NewServiceID("a", []byte("1"))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, a.Compare(a1))
	assert.Equal(t, 0, a.Compare(NewServiceID("a", []byte("2"))))
}

func TestStatus_Accessors(t *testing.T) {
	id := uuid.MustParse("01890000-0000-7000-8000-000000000001")
	meta := NewJournalMetadata("run", EmptySpanContext())
	sink := IngressSink("in")

	free := FreeStatus()
	_, ok := free.InvocationID()
	assert.False(t, ok)
	assert.Nil(t, free.ResponseSink())
	assert.Equal(t, "free", free.String())

	invoked := NewInvokedStatus(id, meta, sink)
	got, ok := invoked.InvocationID()
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Same(t, sink, invoked.ResponseSink())
	assert.Empty(t, invoked.WaitingFor())

	suspended := NewSuspendedStatus(id, meta, sink, 4, 1, 3)
	assert.Equal(t, []EntryIndex{1, 3, 4}, suspended.WaitingFor())
}

func TestStatus_WithJournalMetadataCopies(t *testing.T) {
	id := uuid.MustParse("01890000-0000-7000-8000-000000000001")
	meta := NewJournalMetadata("run", EmptySpanContext())
	orig := NewSuspendedStatus(id, meta, nil, 0)

	meta.Length = 2
	next := orig.WithJournalMetadata(meta)
	next.Suspended.WaitingFor.Add(1)

	origMeta, _ := orig.JournalMetadata()
	assert.Equal(t, EntryIndex(0), origMeta.Length)
	assert.Equal(t, []EntryIndex{0}, orig.WaitingFor())
	assert.Equal(t, []EntryIndex{0, 1}, next.WaitingFor())
}

func TestStartSpan(t *testing.T) {
	root := StartSpan(SpanRelation{})
	require.True(t, root.IsValid())
	assert.Empty(t, root.Links)

	child := StartSpan(root.AsParent())
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.NotEqual(t, root.SpanID, child.SpanID)

	caused := StartSpan(root.AsCause())
	assert.NotEqual(t, root.TraceID, caused.TraceID)
	require.Len(t, caused.Links, 1)
	assert.Equal(t, root.SpanID, caused.Links[0].SpanID)

	// An invalid related context starts a new root.
	orphan := StartSpan(EmptySpanContext().AsParent())
	assert.True(t, orphan.IsValid())
	assert.Empty(t, orphan.Links)
}

func TestTimerKey_Order(t *testing.T) {
	inv := NewServiceInvocationID("svc", []byte("k"), uuid.MustParse("01890000-0000-7000-8000-000000000001"))
	early := TimerKey{InvocationID: inv, JournalIndex: 5, Timestamp: 100}
	late := TimerKey{InvocationID: inv, JournalIndex: 1, Timestamp: 200}
	sameTime := TimerKey{InvocationID: inv, JournalIndex: 6, Timestamp: 100}

	assert.True(t, early.Before(late))
	assert.False(t, late.Before(early))
	assert.True(t, early.Before(sameTime))
	assert.True(t, early.Equal(early))
	assert.False(t, early.Equal(sameTime))
}

func TestResponseResult_ToCompletion(t *testing.T) {
	assert.Equal(t, SuccessCompletion([]byte("v")), SuccessResponse([]byte("v")).ToCompletion())
	assert.Equal(t, FailureCompletion(13, "bad"), FailureResponse(13, "bad").ToCompletion())
}

func TestOutboxMessage_DestinationKey(t *testing.T) {
	id := NewServiceInvocationID("svc", []byte("k"), uuid.New())
	pk, ok := ForwardInvocation(ServiceInvocation{ID: id}).DestinationKey()
	assert.True(t, ok)
	assert.Equal(t, id.PartitionKey(), pk)

	_, ok = ForwardIngressResponse(IngressResponse{IngressID: "in", ServiceInvocationID: id}).DestinationKey()
	assert.False(t, ok)
}

func TestMillis(t *testing.T) {
	m := MillisSinceEpoch(1_700_000_000_123)
	assert.Equal(t, m, MillisFromTime(m.Time()))
	assert.Equal(t, UnixEpoch, MillisFromTime(UnixEpoch.Time().Add(-time.Second)))
}
