package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/partd/internal/journal"
	"github.com/roach88/partd/internal/partition"
	"github.com/roach88/partd/internal/store"
	"github.com/roach88/partd/internal/testutil"
	"github.com/roach88/partd/internal/types"
)

// Partition is the partition id every scenario runs on. It owns the whole
// key space.
const Partition types.PartitionID = 0

var fullRange = types.KeyRange{Start: 0, End: types.PartitionKey(^uint64(0))}

// TraceEvent records one applied command.
type TraceEvent struct {
	Step       int      `json:"step"`
	Command    string   `json:"command"`
	Seq        int64    `json:"seq,omitempty"`
	EntryIndex *uint32  `json:"entry_index,omitempty"`
	Ack        string   `json:"ack,omitempty"`
	Dropped    bool     `json:"dropped,omitempty"`
	Error      string   `json:"error,omitempty"`
	Effects    []string `json:"effects,omitempty"`

	kinds []partition.EffectKind
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists every applied command in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Harness applies scenario steps to one partition state machine.
type Harness struct {
	ctx      context.Context
	store    *store.Store
	sm       *partition.StateMachine
	clock    *partition.Clock
	ids      map[uint64]types.ServiceInvocationID
	producer types.ProducerID
}

// Run executes a scenario in a fresh in-memory store and returns its result.
// An error means the scenario could not be executed at all; failed
// expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		ctx:      context.Background(),
		store:    st,
		sm:       partition.NewStateMachine(Partition, fullRange),
		clock:    partition.NewClock(),
		ids:      make(map[uint64]types.ServiceInvocationID),
		producer: types.PartitionProducer(Partition),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	for _, msg := range h.evaluate(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(n int, step Step, result *Result) error {
	if step.DeliverOutbox {
		return h.deliverOutbox(n, result)
	}

	cmd, err := h.command(step)
	if err != nil {
		return err
	}
	if step.Dedup != nil {
		cmd = cmd.WithDedup(types.ProducerID(step.Dedup.Producer), types.MessageIndex(step.Dedup.Index))
	}

	event := h.apply(n, describe(cmd), cmd)
	result.Trace = append(result.Trace, event)

	switch {
	case step.ExpectError != "" && event.Error != step.ExpectError:
		result.AddError(fmt.Sprintf("step %d: expected error %s, got %q", n, step.ExpectError, event.Error))
	case step.ExpectError == "" && event.Error != "":
		result.AddError(fmt.Sprintf("step %d: unexpected error %s", n, event.Error))
	case step.ExpectDropped && !event.Dropped:
		result.AddError(fmt.Sprintf("step %d: expected the command to be dropped", n))
	}
	return nil
}

// apply runs cmd in its own transaction. Command errors are recorded in the
// event, never returned.
func (h *Harness) apply(n int, label string, cmd partition.Command) TraceEvent {
	event := TraceEvent{Step: n, Command: label}

	var res partition.Result
	err := h.store.Transaction(h.ctx, func(tx *store.Tx) error {
		r, err := h.sm.Apply(h.ctx, tx, cmd)
		res = r
		return err
	})
	if err != nil {
		event.Error = errorCode(err)
		return event
	}

	event.Seq = h.clock.Next()
	if cmd.Kind == partition.CommandAppendEntry && !res.Dropped {
		idx := uint32(res.EntryIndex)
		event.EntryIndex = &idx
	}
	if cmd.Dedup != nil {
		event.Ack = res.Ack.String()
	}
	event.Dropped = res.Dropped
	for _, e := range res.Effects {
		event.Effects = append(event.Effects, e.String())
		event.kinds = append(event.kinds, e.Kind)
	}
	return event
}

// deliverOutbox feeds the pending outbox messages back into the partition
// as deduplicated messages, then truncates the delivered prefix. Ingress
// responses are recorded without being applied.
func (h *Harness) deliverOutbox(n int, result *Result) error {
	type item struct {
		index types.MessageIndex
		msg   types.OutboxMessage
	}
	var items []item
	err := h.store.View(h.ctx, func(tx *store.Tx) error {
		return tx.ScanOutbox(h.ctx, Partition, func(i types.MessageIndex, m types.OutboxMessage) error {
			items = append(items, item{index: i, msg: m})
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("scan outbox: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	for _, it := range items {
		if _, ok := it.msg.DestinationKey(); !ok {
			resp := it.msg.IngressResponse
			result.Trace = append(result.Trace, TraceEvent{
				Step:    n,
				Command: fmt.Sprintf("ingress %s %s %s", resp.IngressID, resp.ServiceInvocationID, describeResponse(resp.Response)),
			})
			continue
		}
		cmd, err := partition.FromOutboxMessage(it.msg)
		if err != nil {
			return err
		}
		cmd = cmd.WithDedup(h.producer, it.index)
		event := h.apply(n, describe(cmd), cmd)
		if event.Error != "" {
			result.AddError(fmt.Sprintf("step %d: delivering outbox message %d: %s", n, it.index, event.Error))
		}
		result.Trace = append(result.Trace, event)
	}

	last := items[len(items)-1].index
	event := h.apply(n, fmt.Sprintf("truncate_outbox index=%d", last), partition.TruncateOutboxCommand(last))
	if event.Error != "" {
		result.AddError(fmt.Sprintf("step %d: truncating outbox: %s", n, event.Error))
	}
	result.Trace = append(result.Trace, event)
	return nil
}

// command translates a step into a partition command.
func (h *Harness) command(step Step) (partition.Command, error) {
	switch {
	case step.Invoke != nil:
		return h.invoke(step.Invoke)
	case step.Append != nil:
		id, err := h.lookup(step.Append.ID)
		if err != nil {
			return partition.Command{}, err
		}
		entry, err := h.entry(step.Append)
		if err != nil {
			return partition.Command{}, err
		}
		return partition.AppendEntryCommand(id, entry), nil
	case step.Complete != nil:
		c := step.Complete
		id, err := h.lookup(c.ID)
		if err != nil {
			return partition.Command{}, err
		}
		return partition.CompletionCommand(id, types.EntryIndex(c.Index), completion(c)), nil
	case step.Respond != nil:
		r := step.Respond
		id, err := h.lookup(r.ID)
		if err != nil {
			return partition.Command{}, err
		}
		return partition.ResponseCommand(types.InvocationResponse{
			ID:         id,
			EntryIndex: types.EntryIndex(r.Index),
			Result:     response(r.Value, r.Failure),
		}), nil
	case step.FireTimer != nil:
		ts := step.FireTimer
		id, err := h.lookup(ts.ID)
		if err != nil {
			return partition.Command{}, err
		}
		return partition.TimerFiredCommand(types.TimerKey{
			InvocationID: id,
			JournalIndex: types.EntryIndex(ts.Index),
			Timestamp:    types.MillisSinceEpoch(ts.Timestamp),
		}), nil
	case step.Terminate != nil:
		ts := step.Terminate
		id, err := h.lookup(ts.ID)
		if err != nil {
			return partition.Command{}, err
		}
		return partition.TerminateCommand(id, ts.Code, ts.Message), nil
	default:
		return partition.Command{}, fmt.Errorf("step has no command")
	}
}

func (h *Harness) invoke(s *InvokeStep) (partition.Command, error) {
	id := types.NewServiceInvocationID(s.Service, []byte(s.Key), testutil.InvocationID(s.ID))
	h.ids[s.ID] = id

	var sink *types.ResponseSink
	switch {
	case s.Ingress != "":
		sink = types.IngressSink(types.IngressID(s.Ingress))
	case s.Caller != 0:
		caller, err := h.lookup(s.Caller)
		if err != nil {
			return partition.Command{}, err
		}
		sink = types.PartitionProcessorSink(caller, types.EntryIndex(s.CallerIndex))
	}

	return partition.InvokeCommand(types.ServiceInvocation{
		ID:           id,
		MethodName:   s.Method,
		Argument:     []byte(s.Argument),
		ResponseSink: sink,
		SpanContext:  types.EmptySpanContext(),
	}), nil
}

func (h *Harness) lookup(n uint64) (types.ServiceInvocationID, error) {
	id, ok := h.ids[n]
	if !ok {
		return types.ServiceInvocationID{}, fmt.Errorf("invocation %d was never invoked or targeted", n)
	}
	return id, nil
}

// entry encodes the journal entry of an append step.
func (h *Harness) entry(s *AppendStep) (types.RawEntry, error) {
	kind, err := types.ParseEntryKind(s.Entry)
	if err != nil {
		return types.RawEntry{}, err
	}

	var result *types.CompletionResult
	if s.Value != nil || s.Failure != nil {
		r := response(s.Value, s.Failure).ToCompletion()
		result = &r
	}

	switch kind {
	case types.EntryPollInputStream:
		return journal.NewEntry(journal.PollInputStream{Result: result})
	case types.EntryOutputStream:
		return journal.NewEntry(journal.OutputStream{Result: response(s.Value, s.Failure)})
	case types.EntryGetState:
		return journal.NewEntry(journal.GetState{Key: []byte(s.Key), Result: result})
	case types.EntrySetState:
		return journal.NewEntry(journal.SetState{Key: []byte(s.Key), Value: []byte(deref(s.Value))})
	case types.EntryClearState:
		return journal.NewEntry(journal.ClearState{Key: []byte(s.Key)})
	case types.EntrySleep:
		return journal.NewEntry(journal.Sleep{WakeUpTime: types.MillisSinceEpoch(s.WakeUpTime), Result: result})
	case types.EntryInvoke:
		req := h.request(s)
		return journal.NewInvokeEntry(journal.Invoke{Request: req, Result: result}, h.resolution(s))
	case types.EntryBackgroundInvoke:
		res := h.resolution(s)
		if res == nil {
			return types.RawEntry{}, fmt.Errorf("background_invoke needs a target or a resolution_failure")
		}
		return journal.NewBackgroundInvokeEntry(journal.BackgroundInvoke{Request: h.request(s)}, *res)
	case types.EntryAwakeable:
		return journal.NewEntry(journal.Awakeable{Result: result})
	case types.EntryCompleteAwakeable:
		if s.Awakeable == nil {
			return types.RawEntry{}, fmt.Errorf("complete_awakeable needs an awakeable reference")
		}
		target, err := h.lookup(s.Awakeable.ID)
		if err != nil {
			return types.RawEntry{}, err
		}
		return journal.NewEntry(journal.CompleteAwakeable{
			Target: target,
			Index:  types.EntryIndex(s.Awakeable.Index),
			Result: response(s.Value, s.Failure),
		})
	case types.EntryCustom:
		return journal.NewCustomEntry(s.Code, s.RequiresAck, []byte(deref(s.Value))), nil
	default:
		return types.RawEntry{}, fmt.Errorf("unsupported entry kind %s", kind)
	}
}

func (h *Harness) request(s *AppendStep) journal.InvokeRequest {
	return journal.InvokeRequest{
		ServiceName: s.Service,
		MethodName:  s.Method,
		Parameter:   []byte(s.Parameter),
	}
}

// resolution resolves the callee of an invoke step and remembers its id
// under Target so later steps can address it.
func (h *Harness) resolution(s *AppendStep) *types.ResolutionResult {
	if s.ResolutionFailure != nil {
		return types.ResolutionFailed(s.ResolutionFailure.Code, s.ResolutionFailure.Message)
	}
	if s.Target == 0 {
		return nil
	}
	invocationID := testutil.InvocationID(s.Target)
	h.ids[s.Target] = types.NewServiceInvocationID(s.Service, []byte(s.TargetKey), invocationID)
	return types.ResolvedTarget(invocationID, []byte(s.TargetKey), types.EmptySpanContext())
}

func completion(c *CompleteStep) types.CompletionResult {
	switch {
	case c.Ack:
		return types.AckCompletion()
	case c.Failure != nil:
		return types.FailureCompletion(c.Failure.Code, c.Failure.Message)
	case c.Value != nil:
		return types.SuccessCompletion([]byte(*c.Value))
	default:
		return types.EmptyCompletion()
	}
}

func response(value *string, failure *FailureSpec) types.ResponseResult {
	if failure != nil {
		return types.FailureResponse(failure.Code, failure.Message)
	}
	return types.SuccessResponse([]byte(deref(value)))
}

func describe(cmd partition.Command) string {
	var b strings.Builder
	b.WriteString(cmd.Kind.String())
	switch cmd.Kind {
	case partition.CommandInvoke:
		fmt.Fprintf(&b, " %s method=%s", cmd.Invocation.ID, cmd.Invocation.MethodName)
	case partition.CommandAppendEntry:
		fmt.Fprintf(&b, " %s %s", cmd.ID, cmd.Entry.Header.Kind)
	case partition.CommandCompletion:
		fmt.Fprintf(&b, " %s entry=%d %s", cmd.ID, cmd.EntryIndex, cmd.Completion)
	case partition.CommandResponse:
		fmt.Fprintf(&b, " %s entry=%d %s", cmd.Response.ID, cmd.Response.EntryIndex, describeResponse(cmd.Response.Result))
	case partition.CommandTimerFired:
		fmt.Fprintf(&b, " %s", cmd.Timer)
	case partition.CommandTerminate:
		fmt.Fprintf(&b, " %s", cmd.ID)
	}
	if cmd.Dedup != nil {
		fmt.Fprintf(&b, " from=%s#%d", cmd.Dedup.Producer, cmd.Dedup.Index)
	}
	return b.String()
}

func describeResponse(r types.ResponseResult) string {
	if r.Kind == types.ResponseFailure {
		return fmt.Sprintf("failure(%d, %s)", r.ErrorCode, r.Message)
	}
	return fmt.Sprintf("success(%q)", r.Value)
}

// errorCode reduces err to its partition error code when it has one.
func errorCode(err error) string {
	var pe *partition.Error
	if errors.As(err, &pe) {
		return string(pe.Code)
	}
	return err.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
