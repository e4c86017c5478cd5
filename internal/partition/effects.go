package partition

import (
	"context"
	"fmt"

	"github.com/roach88/partd/internal/types"
)

// EffectKind distinguishes effects of applied commands.
type EffectKind int

const (
	// EffectInvokeService asks the invoker to start an invocation.
	EffectInvokeService EffectKind = iota + 1
	// EffectResumeService asks the invoker to resume a suspended invocation.
	EffectResumeService
	// EffectForwardCompletion hands a completion to a running invocation.
	EffectForwardCompletion
	// EffectAbortInvocation asks the invoker to stop a terminated invocation.
	EffectAbortInvocation
	// EffectOutboxEnqueued announces a new outbox message.
	EffectOutboxEnqueued
	// EffectTimerRegistered announces a new timer.
	EffectTimerRegistered
	// EffectTimerDeleted announces a removed timer.
	EffectTimerDeleted
)

var effectKindNames = map[EffectKind]string{
	EffectInvokeService:     "invoke_service",
	EffectResumeService:     "resume_service",
	EffectForwardCompletion: "forward_completion",
	EffectAbortInvocation:   "abort_invocation",
	EffectOutboxEnqueued:    "outbox_enqueued",
	EffectTimerRegistered:   "timer_registered",
	EffectTimerDeleted:      "timer_deleted",
}

func (k EffectKind) String() string {
	if name, ok := effectKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Effect is a side effect of a committed command. Effects are dispatched
// after the storage transaction commits; they are never persisted.
type Effect struct {
	Kind EffectKind

	// EffectInvokeService
	Invocation *types.ServiceInvocation

	// EffectResumeService, EffectForwardCompletion, EffectAbortInvocation
	ID         types.ServiceInvocationID
	Journal    types.JournalMetadata
	EntryIndex types.EntryIndex
	Completion *types.CompletionResult

	// EffectOutboxEnqueued
	OutboxIndex types.MessageIndex
	Message     *types.OutboxMessage

	// EffectTimerRegistered, EffectTimerDeleted
	Timer *types.TimerKey
}

func (e Effect) String() string {
	switch e.Kind {
	case EffectInvokeService:
		return fmt.Sprintf("%s %s method=%s", e.Kind, e.Invocation.ID, e.Invocation.MethodName)
	case EffectResumeService:
		return fmt.Sprintf("%s %s length=%d", e.Kind, e.ID, e.Journal.Length)
	case EffectForwardCompletion:
		return fmt.Sprintf("%s %s entry=%d %s", e.Kind, e.ID, e.EntryIndex, e.Completion)
	case EffectAbortInvocation:
		return fmt.Sprintf("%s %s", e.Kind, e.ID)
	case EffectOutboxEnqueued:
		return fmt.Sprintf("%s index=%d %s", e.Kind, e.OutboxIndex, e.Message.Kind)
	case EffectTimerRegistered, EffectTimerDeleted:
		return fmt.Sprintf("%s %s", e.Kind, e.Timer)
	default:
		return e.Kind.String()
	}
}

// EffectHandler receives the effects of every command a processor commits,
// in commit order. It runs on the processor goroutine and must not block.
type EffectHandler interface {
	HandleEffects(ctx context.Context, partition types.PartitionID, effects []Effect)
}

// EffectHandlerFunc adapts a function to EffectHandler.
type EffectHandlerFunc func(ctx context.Context, partition types.PartitionID, effects []Effect)

// HandleEffects implements EffectHandler.
func (f EffectHandlerFunc) HandleEffects(ctx context.Context, partition types.PartitionID, effects []Effect) {
	f(ctx, partition, effects)
}

// Invoker runs invocations. The execution layer implements it; the
// partition core only tells it what to do.
type Invoker interface {
	Invoke(ctx context.Context, partition types.PartitionID, inv types.ServiceInvocation, journal types.JournalMetadata)
	Resume(ctx context.Context, partition types.PartitionID, id types.ServiceInvocationID, journal types.JournalMetadata)
	NotifyCompletion(ctx context.Context, partition types.PartitionID, id types.ServiceInvocationID, index types.EntryIndex, result types.CompletionResult)
	Abort(ctx context.Context, partition types.PartitionID, id types.ServiceInvocationID)
}

// InvokerEffects returns an EffectHandler passing invoker effects to inv.
// Other effects are ignored.
func InvokerEffects(inv Invoker) EffectHandler {
	return EffectHandlerFunc(func(ctx context.Context, pid types.PartitionID, effects []Effect) {
		for _, e := range effects {
			switch e.Kind {
			case EffectInvokeService:
				inv.Invoke(ctx, pid, *e.Invocation, e.Journal)
			case EffectResumeService:
				inv.Resume(ctx, pid, e.ID, e.Journal)
			case EffectForwardCompletion:
				inv.NotifyCompletion(ctx, pid, e.ID, e.EntryIndex, *e.Completion)
			case EffectAbortInvocation:
				inv.Abort(ctx, pid, e.ID)
			}
		}
	})
}
