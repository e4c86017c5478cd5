package network

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/partd/internal/types"
)

func testInvocationID(key string) types.ServiceInvocationID {
	return types.NewServiceInvocationID("greeter", []byte(key), uuid.MustParse("01890000-0000-7000-8000-00000000002a"))
}

func responseEnvelope(index types.MessageIndex) Envelope {
	return Envelope{
		From:  types.PartitionProducer(1),
		Index: index,
		Message: types.ForwardResponse(types.InvocationResponse{
			ID:         testInvocationID("k"),
			EntryIndex: 2,
			Result:     types.SuccessResponse([]byte("hi")),
		}),
	}
}

// ackingHandler records envelopes and acknowledges them.
type ackingHandler struct {
	got []Envelope
}

func (h *ackingHandler) HandleEnvelope(_ context.Context, env Envelope) (types.AckKind, error) {
	h.got = append(h.got, env)
	return types.Ack(env.Index), nil
}

func TestEnvelope_EncodeDecode(t *testing.T) {
	env := responseEnvelope(7)
	data, err := env.Encode()
	require.NoError(t, err)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, env.From, got.From)
	assert.Equal(t, env.Index, got.Index)
	require.NotNil(t, got.Message.ServiceResponse)
	assert.True(t, got.Message.ServiceResponse.ID.Equal(env.Message.ServiceResponse.ID))

	_, err = DecodeEnvelope([]byte{0xff})
	assert.Error(t, err)
}

func TestLocal_Send(t *testing.T) {
	l := NewLocal()
	h := &ackingHandler{}
	l.Register("node-a", h)

	ack, err := l.Send(context.Background(), "node-a", responseEnvelope(3))
	require.NoError(t, err)
	assert.Equal(t, types.Ack(3), ack)
	require.Len(t, h.got, 1)

	_, err = l.Send(context.Background(), "node-b", responseEnvelope(4))
	assert.ErrorIs(t, err, ErrUnknownNode)

	l.Unregister("node-a")
	_, err = l.Send(context.Background(), "node-a", responseEnvelope(5))
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestLocal_RejectsMismatchedAck(t *testing.T) {
	l := NewLocal()
	l.Register("node-a", HandlerFunc(func(context.Context, Envelope) (types.AckKind, error) {
		return types.Ack(99), nil
	}))
	_, err := l.Send(context.Background(), "node-a", responseEnvelope(1))
	assert.Error(t, err)
}

func TestLocal_HandlerError(t *testing.T) {
	l := NewLocal()
	boom := errors.New("partition busy")
	l.Register("node-a", HandlerFunc(func(context.Context, Envelope) (types.AckKind, error) {
		return types.AckKind{}, boom
	}))
	_, err := l.Send(context.Background(), "node-a", responseEnvelope(1))
	assert.ErrorIs(t, err, boom)
}

func TestHTTPTransport_RoundTrip(t *testing.T) {
	h := &ackingHandler{}
	srv := httptest.NewServer(NewHTTPHandler(h))
	defer srv.Close()

	tr := NewHTTPTransport(map[string]string{"node-a": srv.URL}, time.Second)
	ack, err := tr.Send(context.Background(), "node-a", responseEnvelope(11))
	require.NoError(t, err)
	assert.Equal(t, types.Ack(11), ack)
	require.Len(t, h.got, 1)
	assert.Equal(t, types.MessageIndex(11), h.got[0].Index)

	_, err = tr.Send(context.Background(), "node-z", responseEnvelope(12))
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestHTTPTransport_HandlerError(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(HandlerFunc(func(context.Context, Envelope) (types.AckKind, error) {
		return types.AckKind{}, errors.New("not leader")
	})))
	defer srv.Close()

	tr := NewHTTPTransport(nil, 0)
	tr.SetPeer("node-a", srv.URL)
	_, err := tr.Send(context.Background(), "node-a", responseEnvelope(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "not leader")
}

func ingressEnvelope(from types.ProducerID, index types.MessageIndex, key string) Envelope {
	return Envelope{
		From:  from,
		Index: index,
		Message: types.ForwardIngressResponse(types.IngressResponse{
			IngressID:           "ingress-1",
			ServiceInvocationID: testInvocationID(key),
			Response:            types.SuccessResponse([]byte(key)),
		}),
	}
}

func TestHub_DeliverThenAwait(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	ack, err := hub.DeliverIngress(ctx, ingressEnvelope(types.PartitionProducer(0), 0, "a"))
	require.NoError(t, err)
	assert.Equal(t, types.Ack(0), ack)
	assert.Equal(t, 1, hub.Pending())

	res, err := hub.Await(ctx, "ingress-1", testInvocationID("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), res.Value)
	assert.Equal(t, 0, hub.Pending())
}

func TestHub_AwaitThenDeliver(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	done := make(chan types.ResponseResult, 1)
	go func() {
		res, err := hub.Await(ctx, "ingress-1", testInvocationID("b"))
		assert.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.waiters) == 1
	}, time.Second, time.Millisecond)

	_, err := hub.DeliverIngress(ctx, ingressEnvelope(types.PartitionProducer(0), 0, "b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), (<-done).Value)
	assert.Equal(t, 0, hub.Pending())
}

func TestHub_Dedup(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	p0 := types.PartitionProducer(0)

	_, err := hub.DeliverIngress(ctx, ingressEnvelope(p0, 3, "a"))
	require.NoError(t, err)
	ack, err := hub.DeliverIngress(ctx, ingressEnvelope(p0, 3, "a"))
	require.NoError(t, err)
	assert.Equal(t, types.DuplicateAck(3), ack)
	ack, err = hub.DeliverIngress(ctx, ingressEnvelope(p0, 2, "c"))
	require.NoError(t, err)
	assert.Equal(t, types.DuplicateAck(2), ack)
	assert.Equal(t, 1, hub.Pending())

	ack, err = hub.DeliverIngress(ctx, ingressEnvelope(types.PartitionProducer(1), 0, "d"))
	require.NoError(t, err)
	assert.Equal(t, types.Ack(0), ack)
}

func TestHub_RejectsOtherMessages(t *testing.T) {
	_, err := NewHub().DeliverIngress(context.Background(), responseEnvelope(0))
	assert.Error(t, err)
}

func TestHub_AwaitCancelled(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := hub.Await(ctx, "ingress-1", testInvocationID("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.Empty(t, hub.waiters)
}
