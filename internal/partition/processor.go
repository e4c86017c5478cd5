package partition

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/partd/internal/cluster"
	"github.com/roach88/partd/internal/store"
	"github.com/roach88/partd/internal/types"
)

// Processor is the single writer of one partition.
//
// Commands are applied in FIFO order, one at a time, each inside its own
// storage transaction. Effects are dispatched to the registered handlers
// after the transaction commits.
//
// Thread-safety model:
//   - Enqueue(), Propose(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Processor struct {
	id       types.PartitionID
	keys     types.KeyRange
	store    *store.Store
	sm       *StateMachine
	queue    *commandQueue
	clock    *Clock
	handlers []EffectHandler
	logger   *slog.Logger

	// Leadership check; nil means the processor always leads.
	node   string
	oracle cluster.Oracle
}

// Option configures a Processor.
type Option func(*Processor)

// WithOracle makes the processor refuse commands while node does not lead
// the partition according to oracle.
func WithOracle(node string, oracle cluster.Oracle) Option {
	return func(p *Processor) {
		p.node = node
		p.oracle = oracle
	}
}

// WithEffectHandler registers a handler for committed effects. Handlers are
// called in registration order.
func WithEffectHandler(h EffectHandler) Option {
	return func(p *Processor) {
		p.handlers = append(p.handlers, h)
	}
}

// NewProcessor creates the processor of partition id owning keys.
func NewProcessor(id types.PartitionID, keys types.KeyRange, s *store.Store, opts ...Option) *Processor {
	p := &Processor{
		id:     id,
		keys:   keys,
		store:  s,
		sm:     NewStateMachine(id, keys),
		queue:  newCommandQueue(),
		clock:  NewClock(),
		logger: slog.With("partition", uint64(id)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the partition id.
func (p *Processor) ID() types.PartitionID {
	return p.id
}

// KeyRange returns the partition keys owned by the processor.
func (p *Processor) KeyRange() types.KeyRange {
	return p.keys
}

// Applied returns the number of commands applied so far.
func (p *Processor) Applied() int64 {
	return p.clock.Current()
}

// Enqueue submits cmd without waiting for its outcome. Failures are logged.
// Returns false if the processor has stopped.
func (p *Processor) Enqueue(cmd Command) bool {
	return p.queue.Enqueue(proposal{cmd: cmd})
}

// Propose submits cmd and waits until it has been applied.
func (p *Processor) Propose(ctx context.Context, cmd Command) (Result, error) {
	ch := make(chan reply, 1)
	if !p.queue.Enqueue(proposal{cmd: cmd, reply: ch}) {
		return Result{}, ErrStopped
	}
	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// TruncateOutbox drops acknowledged outbox messages up to and including
// index.
func (p *Processor) TruncateOutbox(ctx context.Context, index types.MessageIndex) error {
	_, err := p.Propose(ctx, TruncateOutboxCommand(index))
	return err
}

// FireTimer delivers a due timer. It does not wait for the outcome: a timer
// that is lost here is fired again after the next restart.
func (p *Processor) FireTimer(_ context.Context, key types.TimerKey) error {
	if !p.Enqueue(TimerFiredCommand(key)) {
		return ErrStopped
	}
	return nil
}

// Run starts the single-writer loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// ERROR HANDLING: a failed fire-and-forget command is logged with its
// context and processing continues. Proposers receive the error instead.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("partition processor starting",
		"key_start", uint64(p.keys.Start),
		"key_end", uint64(p.keys.End),
	)

	for {
		prop, ok := p.queue.TryDequeue()
		if ok {
			p.process(ctx, prop)
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("partition processor stopping: context cancelled")
			p.drain()
			return ctx.Err()

		case <-p.queue.Wait():
			// The signal channel closes when the queue is closed.
			if p.queue.Closed() {
				p.logger.Info("partition processor stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop shuts down the processor. Run returns once the queue is empty.
func (p *Processor) Stop() {
	p.drain()
}

func (p *Processor) drain() {
	for _, prop := range p.queue.Close() {
		if prop.reply != nil {
			prop.reply <- reply{err: ErrStopped}
		}
	}
}

func (p *Processor) process(ctx context.Context, prop proposal) {
	res, err := p.apply(ctx, prop.cmd)
	if prop.reply != nil {
		prop.reply <- reply{result: res, err: err}
		return
	}
	if err != nil {
		logCommandError(p.logger, prop.cmd, err)
	}
}

// apply runs cmd in a transaction and dispatches its effects.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (p *Processor) apply(ctx context.Context, cmd Command) (Result, error) {
	if p.oracle != nil && !p.oracle.IsLeader(p.node, p.id) {
		return Result{}, NewNotLeaderError(p.id, p.node)
	}

	var res Result
	err := p.store.Transaction(ctx, func(tx *store.Tx) error {
		r, err := p.sm.Apply(ctx, tx, cmd)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		// The state machine reports rejected commands as *Error; anything
		// else came from the store.
		var pe *Error
		if errors.As(err, &pe) {
			return Result{}, err
		}
		return Result{}, NewStorageUnavailableError(err)
	}

	res.Seq = p.clock.Next()
	if len(res.Effects) > 0 {
		for _, h := range p.handlers {
			h.HandleEffects(ctx, p.id, res.Effects)
		}
	}
	return res, nil
}

// logCommandError logs a failed command with enough context for manual
// investigation.
func logCommandError(logger *slog.Logger, cmd Command, err error) {
	attrs := []any{"error", err, "command", cmd.Kind}
	switch cmd.Kind {
	case CommandInvoke:
		if cmd.Invocation != nil {
			attrs = append(attrs, "invocation", cmd.Invocation.ID, "method", cmd.Invocation.MethodName)
		}
	case CommandAppendEntry, CommandCompletion, CommandTerminate:
		attrs = append(attrs, "invocation", cmd.ID, "entry", cmd.EntryIndex)
	case CommandResponse:
		if cmd.Response != nil {
			attrs = append(attrs, "invocation", cmd.Response.ID, "entry", cmd.Response.EntryIndex)
		}
	case CommandTimerFired:
		if cmd.Timer != nil {
			attrs = append(attrs, "timer", cmd.Timer)
		}
	case CommandTruncateOutbox:
		attrs = append(attrs, "outbox_index", cmd.OutboxIndex)
	}
	if cmd.Dedup != nil {
		attrs = append(attrs, "producer", cmd.Dedup.Producer, "message_index", cmd.Dedup.Index)
	}
	logger.Error("command processing failed", attrs...)
}
