package node

import (
	"context"
	"log/slog"

	"github.com/roach88/partd/internal/types"
)

// LogInvoker is an Invoker that only logs what it is asked to do. A node
// without an execution layer uses it.
type LogInvoker struct {
	logger *slog.Logger
}

// NewLogInvoker creates a LogInvoker writing to logger.
func NewLogInvoker(logger *slog.Logger) *LogInvoker {
	return &LogInvoker{logger: logger.With("component", "invoker")}
}

func (l *LogInvoker) Invoke(_ context.Context, pid types.PartitionID, inv types.ServiceInvocation, journal types.JournalMetadata) {
	l.logger.Info("invoke",
		"partition", uint64(pid),
		"invocation", inv.ID,
		"method", inv.MethodName,
		"trace_id", journal.SpanContext.TraceIDString(),
	)
}

func (l *LogInvoker) Resume(_ context.Context, pid types.PartitionID, id types.ServiceInvocationID, journal types.JournalMetadata) {
	l.logger.Info("resume", "partition", uint64(pid), "invocation", id, "journal_length", journal.Length)
}

func (l *LogInvoker) NotifyCompletion(_ context.Context, pid types.PartitionID, id types.ServiceInvocationID, index types.EntryIndex, result types.CompletionResult) {
	l.logger.Info("completion", "partition", uint64(pid), "invocation", id, "entry", index, "result", result.String())
}

func (l *LogInvoker) Abort(_ context.Context, pid types.PartitionID, id types.ServiceInvocationID) {
	l.logger.Info("abort", "partition", uint64(pid), "invocation", id)
}
