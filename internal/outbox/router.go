package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/partd/internal/cluster"
	"github.com/roach88/partd/internal/network"
	"github.com/roach88/partd/internal/store"
	"github.com/roach88/partd/internal/types"
)

// DefaultRetryInterval is the pause after a failed delivery.
const DefaultRetryInterval = 500 * time.Millisecond

// Truncator drops acknowledged outbox messages. The partition processor
// implements it so that truncation goes through the single writer.
type Truncator interface {
	TruncateOutbox(ctx context.Context, index types.MessageIndex) error
}

// Clock schedules retries.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Router delivers the outbox of one partition.
//
// Thread-safety model:
//   - Notify(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Router struct {
	partition types.PartitionID
	store     *store.Store
	oracle    cluster.Oracle
	transport network.Transport
	ingress   network.IngressSink
	truncator Truncator
	retry     time.Duration
	clock     Clock
	signal    chan struct{}
	logger    *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRetryInterval sets the pause after a failed delivery.
func WithRetryInterval(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.retry = d
		}
	}
}

// WithClock replaces the wall clock used for retries.
func WithClock(c Clock) RouterOption {
	return func(r *Router) { r.clock = c }
}

// NewRouter creates the router of partition pid.
func NewRouter(
	pid types.PartitionID,
	s *store.Store,
	oracle cluster.Oracle,
	transport network.Transport,
	ingress network.IngressSink,
	truncator Truncator,
	opts ...RouterOption,
) *Router {
	r := &Router{
		partition: pid,
		store:     s,
		oracle:    oracle,
		transport: transport,
		ingress:   ingress,
		truncator: truncator,
		retry:     DefaultRetryInterval,
		clock:     realClock{},
		signal:    make(chan struct{}, 1),
		logger:    slog.With("partition", uint64(pid), "component", "outbox"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify tells the router that new messages were committed. It never blocks.
func (r *Router) Notify() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Run delivers outbox messages until ctx is cancelled. Messages left over
// from a previous run are delivered first.
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("outbox router starting")
	for {
		delivered, err := r.deliverPending(ctx)
		if ctx.Err() != nil {
			r.logger.Info("outbox router stopping")
			return ctx.Err()
		}

		var wake <-chan time.Time
		if err != nil {
			r.logger.Warn("outbox delivery failed, retrying",
				"error", err,
				"delivered", delivered,
				"retry_in", r.retry,
			)
			wake = r.clock.After(r.retry)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("outbox router stopping")
			return ctx.Err()
		case <-r.signal:
		case <-wake:
		}
	}
}

// deliverPending sends the stored outbox in index order and stops at the
// first failure so that receivers see each producer's indices in order.
func (r *Router) deliverPending(ctx context.Context) (int, error) {
	pending, err := r.load(ctx)
	if err != nil {
		return 0, err
	}

	for i, item := range pending {
		env := network.Envelope{
			From:    types.PartitionProducer(r.partition),
			Index:   item.index,
			Message: item.msg,
		}
		ack, err := r.send(ctx, env)
		if err != nil {
			return i, err
		}
		if ack.Kind == types.Duplicate {
			r.logger.Debug("outbox message already delivered", "index", item.index)
		}
		if err := r.truncator.TruncateOutbox(ctx, item.index); err != nil {
			return i, fmt.Errorf("truncate outbox at %d: %w", item.index, err)
		}
	}
	return len(pending), nil
}

type pendingMessage struct {
	index types.MessageIndex
	msg   types.OutboxMessage
}

func (r *Router) load(ctx context.Context) ([]pendingMessage, error) {
	var pending []pendingMessage
	err := r.store.View(ctx, func(tx *store.Tx) error {
		return tx.ScanOutbox(ctx, r.partition, func(index types.MessageIndex, msg types.OutboxMessage) error {
			pending = append(pending, pendingMessage{index: index, msg: msg})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load outbox: %w", err)
	}
	return pending, nil
}

func (r *Router) send(ctx context.Context, env network.Envelope) (types.AckKind, error) {
	pk, ok := env.Message.DestinationKey()
	if !ok {
		// One ingress per node: responses never leave the node, whatever
		// their IngressID.
		return r.ingress.DeliverIngress(ctx, env)
	}
	owner, err := r.oracle.CurrentOwner(pk)
	if err != nil {
		return types.AckKind{}, fmt.Errorf("route %s: %w", env, err)
	}
	return r.transport.Send(ctx, owner.Node, env)
}
