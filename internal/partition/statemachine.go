package partition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/partd/internal/journal"
	"github.com/roach88/partd/internal/outbox"
	"github.com/roach88/partd/internal/store"
	"github.com/roach88/partd/internal/types"
)

// StateMachine applies commands to the state of one partition.
//
// Apply is deterministic: given the same stored state and command it performs
// the same writes and returns the same effects. It never looks at wall-clock
// time and never generates ids.
type StateMachine struct {
	partition types.PartitionID
	keys      types.KeyRange
	logger    *slog.Logger
}

// NewStateMachine creates the state machine of partition pid owning keys.
func NewStateMachine(pid types.PartitionID, keys types.KeyRange) *StateMachine {
	return &StateMachine{
		partition: pid,
		keys:      keys,
		logger:    slog.With("partition", uint64(pid)),
	}
}

// Apply applies cmd inside tx. On error the caller must roll tx back: Apply
// may have written part of the command.
func (sm *StateMachine) Apply(ctx context.Context, tx *store.Tx, cmd Command) (Result, error) {
	if err := cmd.validate(); err != nil {
		return Result{}, err
	}
	if pk, ok := cmd.PartitionKey(); ok && !sm.keys.Contains(pk) {
		return Result{}, NewPartitionKeyMismatchError(sm.partition, pk, sm.keys)
	}

	if cmd.Dedup != nil {
		last, seen, err := tx.GetDedup(ctx, sm.partition, cmd.Dedup.Producer)
		if err != nil {
			return Result{}, err
		}
		if seen && cmd.Dedup.Index <= last {
			sm.logger.Debug("duplicate message",
				"producer", cmd.Dedup.Producer,
				"index", cmd.Dedup.Index,
				"last_applied", last,
			)
			return Result{Ack: types.DuplicateAck(cmd.Dedup.Index), Dropped: true}, nil
		}
	}

	a := &applier{sm: sm, ctx: ctx, tx: tx}
	if err := a.apply(cmd); err != nil {
		return Result{}, err
	}

	if cmd.Dedup != nil {
		if err := tx.PutDedup(ctx, sm.partition, cmd.Dedup.Producer, cmd.Dedup.Index); err != nil {
			return Result{}, err
		}
		a.res.Ack = types.Ack(cmd.Dedup.Index)
	}
	return a.res, nil
}

// applier holds the state of one Apply call.
type applier struct {
	sm  *StateMachine
	ctx context.Context
	tx  *store.Tx
	res Result
}

func (a *applier) emit(e Effect) {
	a.res.Effects = append(a.res.Effects, e)
}

func (a *applier) apply(cmd Command) error {
	switch cmd.Kind {
	case CommandInvoke:
		return a.invoke(*cmd.Invocation)
	case CommandAppendEntry:
		return a.appendEntry(cmd.ID, *cmd.Entry)
	case CommandCompletion:
		return a.complete(cmd.ID, cmd.EntryIndex, *cmd.Completion)
	case CommandResponse:
		return a.complete(cmd.Response.ID, cmd.Response.EntryIndex, cmd.Response.Result.ToCompletion())
	case CommandTimerFired:
		return a.timerFired(*cmd.Timer)
	case CommandTerminate:
		return a.terminate(cmd.ID, *cmd.Failure)
	case CommandTruncateOutbox:
		return a.tx.TruncateOutbox(a.ctx, a.sm.partition, cmd.OutboxIndex)
	default:
		return NewInvalidCommandError(fmt.Sprintf("unknown command kind: %d", cmd.Kind), nil)
	}
}

// invoke starts inv if its service instance is free and queues it otherwise.
func (a *applier) invoke(inv types.ServiceInvocation) error {
	sid := inv.ID.ServiceID
	status, err := a.tx.GetStatus(a.ctx, sid)
	if err != nil {
		return err
	}
	if status.IsFree() {
		return a.start(inv, status)
	}

	if active, _ := status.InvocationID(); active == inv.ID.InvocationID {
		return NewInvalidStatusTransitionError(inv.ID, status)
	}

	seq, err := a.tx.NextInboxSeq(a.ctx, a.sm.partition)
	if err != nil {
		return err
	}
	if err := a.tx.PushInbox(a.ctx, types.InboxEntry{SequenceNumber: seq, Invocation: inv}); err != nil {
		return err
	}
	if err := a.tx.SetNextInboxSeq(a.ctx, a.sm.partition, seq+1); err != nil {
		return err
	}
	a.res.InboxSeq = &seq
	a.sm.logger.Debug("invocation queued",
		"invocation", inv.ID,
		"inbox_seq", seq,
		"active", status,
	)
	return nil
}

// start performs Free -> Invoked.
func (a *applier) start(inv types.ServiceInvocation, current types.InvocationStatus) error {
	if !current.IsFree() {
		return NewInvalidStatusTransitionError(inv.ID, current)
	}
	meta := types.NewJournalMetadata(inv.MethodName, inv.SpanContext)
	status := types.NewInvokedStatus(inv.ID.InvocationID, meta, inv.ResponseSink)
	if err := a.tx.PutStatus(a.ctx, inv.ID.ServiceID, status); err != nil {
		return err
	}
	a.emit(Effect{Kind: EffectInvokeService, Invocation: &inv, ID: inv.ID, Journal: meta})
	a.sm.logger.Debug("invocation started", "invocation", inv.ID, "method", inv.MethodName)
	return nil
}

// active returns the status of id's service instance if id is the active
// invocation.
func (a *applier) active(id types.ServiceInvocationID) (types.InvocationStatus, bool, error) {
	status, err := a.tx.GetStatus(a.ctx, id.ServiceID)
	if err != nil {
		return types.InvocationStatus{}, false, err
	}
	current, ok := status.InvocationID()
	if !ok || current != id.InvocationID {
		return status, false, nil
	}
	return status, true, nil
}

func (a *applier) appendEntry(id types.ServiceInvocationID, entry types.RawEntry) error {
	status, ok, err := a.active(id)
	if err != nil {
		return err
	}
	if !ok {
		return NewUnknownInvocationError(id)
	}

	if entry.Header.Kind != types.EntryCustom {
		if _, err := journal.Decode(entry); err != nil {
			return NewInvalidCommandError("malformed journal entry", err)
		}
	}

	meta, _ := status.JournalMetadata()
	index, err := journal.Append(a.ctx, a.tx, id.ServiceID, &meta, entry)
	if err != nil {
		return err
	}
	status = status.WithJournalMetadata(meta)
	a.res.EntryIndex = index

	header := entry.Header
	switch header.Kind {
	case types.EntryOutputStream:
		body, err := decodeEntry[journal.OutputStream](entry)
		if err != nil {
			return err
		}
		return a.end(id, status, body.Result, false)

	case types.EntryPollInputStream, types.EntryAwakeable:
		if header.IsPending() {
			status = suspend(status, index)
		}

	case types.EntrySleep:
		if header.IsPending() {
			body, err := decodeEntry[journal.Sleep](entry)
			if err != nil {
				return err
			}
			key := types.TimerKey{InvocationID: id, JournalIndex: index, Timestamp: body.WakeUpTime}
			if err := a.tx.PutTimer(a.ctx, a.sm.partition, key); err != nil {
				return err
			}
			a.emit(Effect{Kind: EffectTimerRegistered, Timer: &key})
			status = suspend(status, index)
		}

	case types.EntryInvoke:
		if !header.IsPending() {
			break
		}
		res := header.Resolution
		switch {
		case res == nil:
			status = suspend(status, index)
		case res.Kind == types.ResolutionFailure:
			// The callee could not be resolved: answer the entry now.
			if err := a.completeNow(id, status, index, types.FailureCompletion(res.ErrorCode, res.Error)); err != nil {
				return err
			}
		default:
			body, err := decodeEntry[journal.Invoke](entry)
			if err != nil {
				return err
			}
			inv := calleeInvocation(body.Request, *res, types.PartitionProcessorSink(id, index))
			if err := a.enqueueOutbox(types.ForwardInvocation(inv)); err != nil {
				return err
			}
			status = suspend(status, index)
		}

	case types.EntryBackgroundInvoke:
		res := header.Resolution
		if res == nil || res.Kind != types.ResolutionSuccess {
			a.sm.logger.Warn("background invoke not resolved, dropping", "invocation", id, "entry", index)
			break
		}
		body, err := decodeEntry[journal.BackgroundInvoke](entry)
		if err != nil {
			return err
		}
		if err := a.enqueueOutbox(types.ForwardInvocation(calleeInvocation(body.Request, *res, nil))); err != nil {
			return err
		}

	case types.EntryCompleteAwakeable:
		body, err := decodeEntry[journal.CompleteAwakeable](entry)
		if err != nil {
			return err
		}
		resp := types.InvocationResponse{ID: body.Target, EntryIndex: body.Index, Result: body.Result}
		if err := a.enqueueOutbox(types.ForwardResponse(resp)); err != nil {
			return err
		}

	case types.EntryGetState:
		if !header.IsPending() {
			break
		}
		body, err := decodeEntry[journal.GetState](entry)
		if err != nil {
			return err
		}
		value, found, err := a.tx.GetUserState(a.ctx, id.ServiceID, body.Key)
		if err != nil {
			return err
		}
		result := types.EmptyCompletion()
		if found {
			result = types.SuccessCompletion(value)
		}
		if err := a.completeNow(id, status, index, result); err != nil {
			return err
		}

	case types.EntrySetState:
		body, err := decodeEntry[journal.SetState](entry)
		if err != nil {
			return err
		}
		if err := a.tx.PutUserState(a.ctx, id.ServiceID, body.Key, body.Value); err != nil {
			return err
		}

	case types.EntryClearState:
		body, err := decodeEntry[journal.ClearState](entry)
		if err != nil {
			return err
		}
		if err := a.tx.ClearUserState(a.ctx, id.ServiceID, body.Key); err != nil {
			return err
		}

	case types.EntryCustom:
		if header.IsPending() {
			if err := a.completeNow(id, status, index, types.AckCompletion()); err != nil {
				return err
			}
		}
	}

	return a.tx.PutStatus(a.ctx, id.ServiceID, status)
}

// completeNow fills a freshly appended entry and hands the result to the
// invocation.
func (a *applier) completeNow(id types.ServiceInvocationID, status types.InvocationStatus, index types.EntryIndex, result types.CompletionResult) error {
	meta, _ := status.JournalMetadata()
	changed, err := journal.ApplyCompletion(a.ctx, a.tx, id.ServiceID, meta, index, result)
	if err != nil || !changed {
		return err
	}
	a.emit(Effect{Kind: EffectForwardCompletion, ID: id, EntryIndex: index, Completion: &result})
	return nil
}

// suspend adds index to the awaited entries, turning Invoked into Suspended.
func suspend(status types.InvocationStatus, index types.EntryIndex) types.InvocationStatus {
	switch status.Kind {
	case types.StatusInvoked:
		inv := status.Invoked
		return types.NewSuspendedStatus(inv.InvocationID, inv.JournalMetadata, inv.ResponseSink, index)
	case types.StatusSuspended:
		status.Suspended.WaitingFor.Add(index)
		return status
	default:
		return status
	}
}

func calleeInvocation(req journal.InvokeRequest, res types.ResolutionResult, sink *types.ResponseSink) types.ServiceInvocation {
	return types.ServiceInvocation{
		ID:           types.NewServiceInvocationID(req.ServiceName, res.ServiceKey, res.InvocationID),
		MethodName:   req.MethodName,
		Argument:     req.Parameter,
		ResponseSink: sink,
		SpanContext:  res.SpanContext,
	}
}

// complete delivers result to entry index of id.
//
// Completions for unknown invocations are logged and dropped. Completions
// for entries that are missing, already completed, or not awaited by a
// suspended invocation are no-ops.
func (a *applier) complete(id types.ServiceInvocationID, index types.EntryIndex, result types.CompletionResult) error {
	status, ok, err := a.active(id)
	if err != nil {
		return err
	}
	if !ok {
		a.sm.logger.Info("dropping completion for unknown invocation",
			"invocation", id,
			"entry", index,
			"status", status,
		)
		a.res.Dropped = true
		return nil
	}

	if status.Kind == types.StatusSuspended && !status.Suspended.WaitingFor.Contains(index) {
		a.sm.logger.Debug("ignoring completion for entry that is not awaited",
			"invocation", id,
			"entry", index,
			"waiting_for", status.WaitingFor(),
		)
		a.res.Dropped = true
		return nil
	}

	meta, _ := status.JournalMetadata()
	changed, err := journal.ApplyCompletion(a.ctx, a.tx, id.ServiceID, meta, index, result)
	if err != nil {
		return err
	}

	if status.Kind == types.StatusInvoked {
		if !changed {
			a.res.Dropped = true
			return nil
		}
		a.emit(Effect{Kind: EffectForwardCompletion, ID: id, EntryIndex: index, Completion: &result})
		return nil
	}

	// Suspended and awaited. The entry is done even if an earlier delivery
	// already filled it.
	status = status.WithJournalMetadata(meta)
	status.Suspended.WaitingFor.Remove(index)
	if status.Suspended.WaitingFor.Cardinality() == 0 {
		sus := status.Suspended
		status = types.NewInvokedStatus(sus.InvocationID, sus.JournalMetadata, sus.ResponseSink)
		a.emit(Effect{Kind: EffectResumeService, ID: id, Journal: meta})
	}
	return a.tx.PutStatus(a.ctx, id.ServiceID, status)
}

func (a *applier) timerFired(key types.TimerKey) error {
	existed, err := a.tx.DeleteTimer(a.ctx, a.sm.partition, key)
	if err != nil {
		return err
	}
	if !existed {
		a.sm.logger.Debug("timer already fired", "timer", key)
		a.res.Dropped = true
		return nil
	}
	return a.complete(key.InvocationID, key.JournalIndex, types.EmptyCompletion())
}

func (a *applier) terminate(id types.ServiceInvocationID, failure types.ResponseResult) error {
	status, ok, err := a.active(id)
	if err != nil {
		return err
	}
	if !ok {
		return NewUnknownInvocationError(id)
	}
	return a.end(id, status, failure, true)
}

// end performs Invoked -> Free: the result goes to the response sink, the
// journal and pending timers are dropped, and the inbox head starts.
func (a *applier) end(id types.ServiceInvocationID, status types.InvocationStatus, result types.ResponseResult, aborted bool) error {
	sid := id.ServiceID

	if msg, ok := outbox.ResolveSink(id, status.ResponseSink(), result); ok {
		if err := a.enqueueOutbox(msg); err != nil {
			return err
		}
	}

	meta, _ := status.JournalMetadata()
	if err := a.tx.DeleteJournal(a.ctx, sid, meta.Length); err != nil {
		return err
	}
	removed, err := a.tx.DeleteTimersOf(a.ctx, a.sm.partition, id)
	if err != nil {
		return err
	}
	for i := range removed {
		a.emit(Effect{Kind: EffectTimerDeleted, Timer: &removed[i]})
	}
	if aborted {
		a.emit(Effect{Kind: EffectAbortInvocation, ID: id})
	}

	if err := a.tx.PutStatus(a.ctx, sid, types.FreeStatus()); err != nil {
		return err
	}
	a.sm.logger.Debug("invocation ended",
		"invocation", id,
		"result", result.Kind,
		"aborted", aborted,
		"journal_length", meta.Length,
	)

	next, ok, err := a.tx.PopInbox(a.ctx, sid)
	if err != nil || !ok {
		return err
	}
	return a.start(next.Invocation, types.FreeStatus())
}

func (a *applier) enqueueOutbox(msg types.OutboxMessage) error {
	index, err := a.tx.NextOutboxSeq(a.ctx, a.sm.partition)
	if err != nil {
		return err
	}
	if err := a.tx.PutOutbox(a.ctx, a.sm.partition, index, msg); err != nil {
		return err
	}
	if err := a.tx.SetNextOutboxSeq(a.ctx, a.sm.partition, index+1); err != nil {
		return err
	}
	a.emit(Effect{Kind: EffectOutboxEnqueued, OutboxIndex: index, Message: &msg})
	return nil
}

// decodeEntry decodes the body of an appended entry, reporting failures as
// INVALID_COMMAND.
func decodeEntry[T journal.Body](entry types.RawEntry) (T, error) {
	body, err := journal.DecodeAs[T](entry)
	if err != nil {
		return body, NewInvalidCommandError("malformed journal entry", err)
	}
	return body, nil
}
