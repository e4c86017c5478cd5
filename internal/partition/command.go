package partition

import (
	"fmt"

	"github.com/roach88/partd/internal/types"
)

// CommandKind distinguishes partition commands.
type CommandKind int

const (
	// CommandInvoke starts an invocation or queues it in the inbox.
	CommandInvoke CommandKind = iota + 1
	// CommandAppendEntry appends a journal entry to the active invocation.
	CommandAppendEntry
	// CommandCompletion delivers the completion of a journal entry.
	CommandCompletion
	// CommandResponse delivers the response of a callee invocation.
	CommandResponse
	// CommandTimerFired delivers a due timer.
	CommandTimerFired
	// CommandTerminate ends the active invocation with a failure.
	CommandTerminate
	// CommandTruncateOutbox drops acknowledged outbox messages.
	CommandTruncateOutbox
)

var commandKindNames = map[CommandKind]string{
	CommandInvoke:         "invoke",
	CommandAppendEntry:    "append_entry",
	CommandCompletion:     "completion",
	CommandResponse:       "response",
	CommandTimerFired:     "timer_fired",
	CommandTerminate:      "terminate",
	CommandTruncateOutbox: "truncate_outbox",
}

func (k CommandKind) String() string {
	if name, ok := commandKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Dedup identifies a command delivered over a deduplicated channel.
type Dedup struct {
	Producer types.ProducerID
	Index    types.MessageIndex
}

// Command is an input of the partition state machine. Only the fields
// relevant to Kind are set.
type Command struct {
	Kind CommandKind

	// CommandInvoke
	Invocation *types.ServiceInvocation

	// CommandAppendEntry, CommandCompletion, CommandTerminate
	ID         types.ServiceInvocationID
	Entry      *types.RawEntry
	EntryIndex types.EntryIndex
	Completion *types.CompletionResult
	Failure    *types.ResponseResult

	// CommandResponse
	Response *types.InvocationResponse

	// CommandTimerFired
	Timer *types.TimerKey

	// CommandTruncateOutbox
	OutboxIndex types.MessageIndex

	// Dedup is set when the command arrived over a deduplicated channel.
	Dedup *Dedup
}

// InvokeCommand returns a command starting inv.
func InvokeCommand(inv types.ServiceInvocation) Command {
	return Command{Kind: CommandInvoke, Invocation: &inv}
}

// AppendEntryCommand returns a command appending entry to the journal of id.
func AppendEntryCommand(id types.ServiceInvocationID, entry types.RawEntry) Command {
	return Command{Kind: CommandAppendEntry, ID: id, Entry: &entry}
}

// CompletionCommand returns a command completing entry index of id.
func CompletionCommand(id types.ServiceInvocationID, index types.EntryIndex, result types.CompletionResult) Command {
	return Command{Kind: CommandCompletion, ID: id, EntryIndex: index, Completion: &result}
}

// ResponseCommand returns a command delivering a callee response.
func ResponseCommand(resp types.InvocationResponse) Command {
	return Command{Kind: CommandResponse, Response: &resp}
}

// TimerFiredCommand returns a command delivering a due timer.
func TimerFiredCommand(key types.TimerKey) Command {
	return Command{Kind: CommandTimerFired, Timer: &key}
}

// TerminateCommand returns a command ending id with a failure.
func TerminateCommand(id types.ServiceInvocationID, code int32, message string) Command {
	failure := types.FailureResponse(code, message)
	return Command{Kind: CommandTerminate, ID: id, Failure: &failure}
}

// TruncateOutboxCommand returns a command dropping outbox messages up to and
// including index.
func TruncateOutboxCommand(index types.MessageIndex) Command {
	return Command{Kind: CommandTruncateOutbox, OutboxIndex: index}
}

// FromOutboxMessage converts a message received from another partition into
// the command that applies it. Ingress responses are not partition input.
func FromOutboxMessage(msg types.OutboxMessage) (Command, error) {
	switch msg.Kind {
	case types.OutboxServiceInvocation:
		if msg.ServiceInvocation == nil {
			return Command{}, fmt.Errorf("service invocation message without invocation")
		}
		return InvokeCommand(*msg.ServiceInvocation), nil
	case types.OutboxServiceResponse:
		if msg.ServiceResponse == nil {
			return Command{}, fmt.Errorf("service response message without response")
		}
		return ResponseCommand(*msg.ServiceResponse), nil
	default:
		return Command{}, fmt.Errorf("%s messages are not partition commands", msg.Kind)
	}
}

// WithDedup returns a copy of c marked as message index of producer.
func (c Command) WithDedup(producer types.ProducerID, index types.MessageIndex) Command {
	c.Dedup = &Dedup{Producer: producer, Index: index}
	return c
}

// PartitionKey returns the partition key the command addresses. The second
// result is false for partition-wide commands.
func (c Command) PartitionKey() (types.PartitionKey, bool) {
	switch {
	case c.Kind == CommandInvoke && c.Invocation != nil:
		return c.Invocation.ID.PartitionKey(), true
	case c.Kind == CommandAppendEntry, c.Kind == CommandCompletion, c.Kind == CommandTerminate:
		return c.ID.PartitionKey(), true
	case c.Kind == CommandResponse && c.Response != nil:
		return c.Response.ID.PartitionKey(), true
	case c.Kind == CommandTimerFired && c.Timer != nil:
		return c.Timer.InvocationID.PartitionKey(), true
	default:
		return 0, false
	}
}

// validate checks that the payload of Kind is present and addresses a named
// service.
func (c Command) validate() error {
	missing := func(field string) error {
		return NewInvalidCommandError(fmt.Sprintf("%s command missing %s", c.Kind, field), nil)
	}
	var target types.ServiceID
	switch c.Kind {
	case CommandInvoke:
		if c.Invocation == nil {
			return missing("invocation")
		}
		target = c.Invocation.ID.ServiceID
	case CommandAppendEntry:
		if c.Entry == nil {
			return missing("entry")
		}
		target = c.ID.ServiceID
	case CommandCompletion:
		if c.Completion == nil {
			return missing("completion")
		}
		target = c.ID.ServiceID
	case CommandResponse:
		if c.Response == nil {
			return missing("response")
		}
		target = c.Response.ID.ServiceID
	case CommandTimerFired:
		if c.Timer == nil {
			return missing("timer")
		}
		target = c.Timer.InvocationID.ServiceID
	case CommandTerminate:
		if c.Failure == nil {
			return missing("failure")
		}
		target = c.ID.ServiceID
	case CommandTruncateOutbox:
		return nil
	default:
		return NewInvalidCommandError(fmt.Sprintf("unknown command kind: %d", c.Kind), nil)
	}
	if target.IsZero() {
		return missing("service name")
	}
	return nil
}

// Result is the outcome of an applied command.
type Result struct {
	// Seq is the position of the command in the processor's apply order.
	Seq int64

	// Ack answers deduplicated commands; zero otherwise.
	Ack types.AckKind

	// EntryIndex is the index assigned by CommandAppendEntry.
	EntryIndex types.EntryIndex

	// InboxSeq is set when CommandInvoke queued the invocation.
	InboxSeq *types.MessageIndex

	// Dropped is true when the command was a no-op: a duplicate, late or
	// unknown completion, or an already fired timer.
	Dropped bool

	Effects []Effect
}
