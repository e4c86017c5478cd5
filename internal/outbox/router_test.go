package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/partd/internal/cluster"
	"github.com/roach88/partd/internal/network"
	"github.com/roach88/partd/internal/store"
	"github.com/roach88/partd/internal/testutil"
	"github.com/roach88/partd/internal/types"
)

// storeTruncator truncates the outbox directly, standing in for the
// partition processor.
type storeTruncator struct {
	s   *store.Store
	pid types.PartitionID
}

func (t storeTruncator) TruncateOutbox(ctx context.Context, index types.MessageIndex) error {
	return t.s.Transaction(ctx, func(tx *store.Tx) error {
		return tx.TruncateOutbox(ctx, t.pid, index)
	})
}

// flakyHandler fails the first failures envelopes and records the rest.
type flakyHandler struct {
	mu       sync.Mutex
	failures int
	got      []network.Envelope
}

func (h *flakyHandler) HandleEnvelope(_ context.Context, env network.Envelope) (types.AckKind, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures > 0 {
		h.failures--
		return types.AckKind{}, errors.New("receiver unavailable")
	}
	h.got = append(h.got, env)
	return types.Ack(env.Index), nil
}

func (h *flakyHandler) envelopes() []network.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]network.Envelope(nil), h.got...)
}

func (h *flakyHandler) indices() []types.MessageIndex {
	envs := h.envelopes()
	out := make([]types.MessageIndex, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.Index)
	}
	return out
}

type routerFixture struct {
	store   *store.Store
	handler *flakyHandler
	hub     *network.Hub
	clock   *testutil.FakeClock
	router  *Router
}

func newRouterFixture(t *testing.T, failures int) *routerFixture {
	t.Helper()
	s := testutil.OpenStore(t)

	table, err := cluster.NewPartitionTable(1)
	require.NoError(t, err)
	registry := cluster.NewRegistry(table)
	_, err = registry.Assign(0, "node-a")
	require.NoError(t, err)

	handler := &flakyHandler{failures: failures}
	transport := network.NewLocal()
	transport.Register("node-a", handler)

	f := &routerFixture{
		store:   s,
		handler: handler,
		hub:     network.NewHub(),
		clock:   testutil.NewFakeClock(time.Unix(0, 0)),
	}
	f.router = NewRouter(0, s, registry, transport, f.hub, storeTruncator{s: s, pid: 0},
		WithRetryInterval(time.Second),
		WithClock(f.clock),
	)
	return f
}

func (f *routerFixture) put(t *testing.T, index types.MessageIndex, msg types.OutboxMessage) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Transaction(ctx, func(tx *store.Tx) error {
		return tx.PutOutbox(ctx, 0, index, msg)
	}))
}

func (f *routerFixture) remaining(t *testing.T) int {
	t.Helper()
	ctx := context.Background()
	n := 0
	require.NoError(t, f.store.View(ctx, func(tx *store.Tx) error {
		return tx.ScanOutbox(ctx, 0, func(types.MessageIndex, types.OutboxMessage) error {
			n++
			return nil
		})
	}))
	return n
}

func (f *routerFixture) run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.router.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func response(key string, entry types.EntryIndex) types.OutboxMessage {
	return types.ForwardResponse(types.InvocationResponse{
		ID:         types.NewServiceInvocationID("svc", []byte(key), testutil.InvocationID(1)),
		EntryIndex: entry,
		Result:     types.SuccessResponse([]byte(key)),
	})
}

func TestRouter_DeliversLeftoversInOrder(t *testing.T) {
	f := newRouterFixture(t, 0)
	for i := types.MessageIndex(0); i < 3; i++ {
		f.put(t, i, response("k", types.EntryIndex(i)))
	}
	f.run(t)

	require.Eventually(t, func() bool { return f.remaining(t) == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.MessageIndex{0, 1, 2}, f.handler.indices())
	for _, env := range f.handler.envelopes() {
		assert.Equal(t, types.PartitionProducer(0), env.From)
	}
}

func TestRouter_NotifyDeliversNewMessages(t *testing.T) {
	f := newRouterFixture(t, 0)
	f.run(t)

	f.put(t, 0, response("a", 0))
	f.router.Notify()
	require.Eventually(t, func() bool { return len(f.handler.indices()) == 1 }, 5*time.Second, 5*time.Millisecond)

	f.put(t, 1, response("b", 0))
	f.router.Notify()
	f.router.Notify()
	require.Eventually(t, func() bool { return f.remaining(t) == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.MessageIndex{0, 1}, f.handler.indices())
}

func TestRouter_RetriesAfterFailure(t *testing.T) {
	f := newRouterFixture(t, 1)
	f.put(t, 0, response("a", 0))
	f.put(t, 1, response("b", 0))
	f.run(t)

	// The first attempt fails and the router waits for the retry timer.
	require.Eventually(t, func() bool { return f.clock.Waiters() == 1 }, 5*time.Second, time.Millisecond)
	assert.Empty(t, f.handler.indices())
	assert.Equal(t, 2, f.remaining(t))

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.remaining(t) == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.MessageIndex{0, 1}, f.handler.indices())
}

func TestRouter_IngressResponses(t *testing.T) {
	f := newRouterFixture(t, 0)
	id := types.NewServiceInvocationID("svc", []byte("k"), testutil.InvocationID(3))
	f.put(t, 0, types.ForwardIngressResponse(types.IngressResponse{
		IngressID:           "ingress-1",
		ServiceInvocationID: id,
		Response:            types.SuccessResponse([]byte("done")),
	}))
	f.put(t, 1, types.ForwardIngressResponse(types.IngressResponse{
		IngressID:           "ingress-on-another-node",
		ServiceInvocationID: id,
		Response:            types.SuccessResponse([]byte("elsewhere")),
	}))
	f.run(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := f.hub.Await(ctx, "ingress-1", id)
	require.NoError(t, err)
	assert.Equal(t, []byte("done"), res.Value)
	require.Eventually(t, func() bool { return f.remaining(t) == 0 }, 5*time.Second, 5*time.Millisecond)

	// Every ingress response is delivered to the local sink; none travels
	// over the transport.
	assert.Empty(t, f.handler.indices())
	res, err = f.hub.Await(ctx, "ingress-on-another-node", id)
	require.NoError(t, err)
	assert.Equal(t, []byte("elsewhere"), res.Value)
	assert.Equal(t, 0, f.hub.Pending())
}

func TestRouter_UnownedPartitionRetries(t *testing.T) {
	s := testutil.OpenStore(t)
	table, err := cluster.NewPartitionTable(1)
	require.NoError(t, err)
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	r := NewRouter(0, s, cluster.NewRegistry(table), network.NewLocal(), network.NewHub(),
		storeTruncator{s: s, pid: 0}, WithClock(clock))

	ctx := context.Background()
	require.NoError(t, s.Transaction(ctx, func(tx *store.Tx) error {
		return tx.PutOutbox(ctx, 0, 0, response("a", 0))
	}))

	delivered, err := r.deliverPending(ctx)
	assert.Equal(t, 0, delivered)
	assert.ErrorIs(t, err, cluster.ErrNoOwner)
}
