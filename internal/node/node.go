package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/partd/internal/cluster"
	"github.com/roach88/partd/internal/network"
	"github.com/roach88/partd/internal/outbox"
	"github.com/roach88/partd/internal/partition"
	"github.com/roach88/partd/internal/store"
	"github.com/roach88/partd/internal/timer"
	"github.com/roach88/partd/internal/types"
)

// Options configures a Node.
type Options struct {
	// Name identifies the node in the registry and on the transport.
	Name        string
	ClusterName string

	Store     *store.Store
	Registry  *cluster.Registry
	Transport network.Transport
	Ingress   network.IngressSink

	// Invoker runs invocations. Nil logs invoker effects instead.
	Invoker partition.Invoker

	// Effects observe every committed effect after the built-in handlers.
	Effects []partition.EffectHandler

	RetryInterval time.Duration
	TimerClock    timer.Clock
	RouterClock   outbox.Clock
}

// Partition groups the components of one led partition.
type Partition struct {
	ID        types.PartitionID
	Processor *partition.Processor
	Router    *outbox.Router
	Timers    *timer.Service
}

// Node runs the partitions led by one cluster member.
type Node struct {
	name        string
	clusterName string
	registry    *cluster.Registry
	partitions  map[types.PartitionID]*Partition
	order       []types.PartitionID
	logger      *slog.Logger
}

// New builds the components of every partition the registry assigns to
// opts.Name. The partitions start with Run.
func New(opts Options) (*Node, error) {
	switch {
	case opts.Name == "":
		return nil, errors.New("node name is required")
	case opts.Store == nil:
		return nil, errors.New("store is required")
	case opts.Registry == nil:
		return nil, errors.New("registry is required")
	case opts.Transport == nil:
		return nil, errors.New("transport is required")
	case opts.Ingress == nil:
		return nil, errors.New("ingress sink is required")
	}
	invoker := opts.Invoker
	if invoker == nil {
		invoker = NewLogInvoker(slog.Default())
	}

	n := &Node{
		name:        opts.Name,
		clusterName: opts.ClusterName,
		registry:    opts.Registry,
		partitions:  make(map[types.PartitionID]*Partition),
		logger:      slog.With("node", opts.Name),
	}

	table := opts.Registry.Table()
	for _, pid := range opts.Registry.NodePartitions(opts.Name) {
		keys, err := table.KeyRange(pid)
		if err != nil {
			return nil, err
		}
		p := &Partition{ID: pid}

		procOpts := []partition.Option{
			partition.WithOracle(opts.Name, opts.Registry),
			partition.WithEffectHandler(partition.InvokerEffects(invoker)),
			partition.WithEffectHandler(p),
		}
		for _, h := range opts.Effects {
			procOpts = append(procOpts, partition.WithEffectHandler(h))
		}
		p.Processor = partition.NewProcessor(pid, keys, opts.Store, procOpts...)

		var routerOpts []outbox.RouterOption
		if opts.RetryInterval > 0 {
			routerOpts = append(routerOpts, outbox.WithRetryInterval(opts.RetryInterval))
		}
		if opts.RouterClock != nil {
			routerOpts = append(routerOpts, outbox.WithClock(opts.RouterClock))
		}
		p.Router = outbox.NewRouter(pid, opts.Store, opts.Registry, opts.Transport, opts.Ingress, p.Processor, routerOpts...)

		var timerOpts []timer.Option
		if opts.TimerClock != nil {
			timerOpts = append(timerOpts, timer.WithClock(opts.TimerClock))
		}
		p.Timers = timer.NewService(pid, opts.Store, p.Processor, timerOpts...)

		n.partitions[pid] = p
		n.order = append(n.order, pid)
	}
	return n, nil
}

// HandleEffects forwards router and timer effects of p's processor.
func (p *Partition) HandleEffects(_ context.Context, _ types.PartitionID, effects []partition.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case partition.EffectOutboxEnqueued:
			p.Router.Notify()
		case partition.EffectTimerRegistered:
			p.Timers.Add(*e.Timer)
		case partition.EffectTimerDeleted:
			p.Timers.Remove(*e.Timer)
		}
	}
}

// Name returns the node name.
func (n *Node) Name() string {
	return n.name
}

// Partitions returns the ids of the led partitions in ascending order.
func (n *Node) Partitions() []types.PartitionID {
	return append([]types.PartitionID(nil), n.order...)
}

// Partition returns the components of partition pid.
func (n *Node) Partition(pid types.PartitionID) (*Partition, bool) {
	p, ok := n.partitions[pid]
	return p, ok
}

// Run runs every partition until ctx is cancelled or a component fails.
// A failing component stops the others.
func (n *Node) Run(ctx context.Context) error {
	ctx = cluster.WithMetadata(ctx, cluster.Metadata{NodeName: n.name, ClusterName: n.clusterName})
	n.logger.Info("node starting", "cluster", n.clusterName, "partitions", len(n.order))

	g, gctx := errgroup.WithContext(ctx)
	for _, pid := range n.order {
		p := n.partitions[pid]
		g.Go(func() error { return p.Processor.Run(gctx) })
		g.Go(func() error { return p.Router.Run(gctx) })
		g.Go(func() error { return p.Timers.Run(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	if err != nil {
		n.logger.Error("node stopped", "error", err)
		return err
	}
	n.logger.Info("node stopped")
	return nil
}

// Propose submits cmd to the local partition owning its key.
func (n *Node) Propose(ctx context.Context, cmd partition.Command) (partition.Result, error) {
	pk, ok := cmd.PartitionKey()
	if !ok {
		return partition.Result{}, fmt.Errorf("%s command has no partition key", cmd.Kind)
	}
	p, err := n.owner(pk)
	if err != nil {
		return partition.Result{}, err
	}
	return p.Processor.Propose(ctx, cmd)
}

// Submit starts inv on behalf of the ingress endpoint ingress. index must
// grow with every submission of that endpoint: a retried submission reuses
// its index and is applied at most once.
func (n *Node) Submit(ctx context.Context, ingress types.IngressID, index types.MessageIndex, inv types.ServiceInvocation) (partition.Result, error) {
	return n.Propose(ctx, partition.InvokeCommand(inv).WithDedup(types.IngressProducer(ingress), index))
}

// HandleEnvelope implements network.Handler: it applies a message sent by
// another partition's router, deduplicated by the sender's outbox index.
func (n *Node) HandleEnvelope(ctx context.Context, env network.Envelope) (types.AckKind, error) {
	cmd, err := partition.FromOutboxMessage(env.Message)
	if err != nil {
		return types.AckKind{}, err
	}
	res, err := n.Propose(ctx, cmd.WithDedup(env.From, env.Index))
	if err != nil {
		return types.AckKind{}, err
	}
	return res.Ack, nil
}

func (n *Node) owner(pk types.PartitionKey) (*Partition, error) {
	pid := n.registry.Table().FindPartition(pk)
	p, ok := n.partitions[pid]
	if !ok {
		return nil, partition.NewNotLeaderError(pid, n.name)
	}
	return p, nil
}
