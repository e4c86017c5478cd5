package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/partd/internal/codec"
	"github.com/roach88/partd/internal/journal"
	"github.com/roach88/partd/internal/store"
	"github.com/roach88/partd/internal/types"
)

// InspectOptions holds flags shared by the inspect subcommands.
type InspectOptions struct {
	*RootOptions
	Database string

	// now is used for relative timer deadlines; tests pin it.
	now func() time.Time
}

// StatusView is the status of a service instance.
type StatusView struct {
	Service       string   `json:"service"`
	Key           string   `json:"key"`
	Status        string   `json:"status"`
	InvocationID  string   `json:"invocation_id,omitempty"`
	Method        string   `json:"method,omitempty"`
	JournalLength uint32   `json:"journal_length"`
	WaitingFor    []uint32 `json:"waiting_for,omitempty"`
	ResponseSink  string   `json:"response_sink,omitempty"`
}

func (v StatusView) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s[%q]: %s\n", v.Service, v.Key, v.Status)
	if v.InvocationID == "" {
		return
	}
	fmt.Fprintf(w, "  invocation: %s\n", v.InvocationID)
	fmt.Fprintf(w, "  method:     %s\n", v.Method)
	fmt.Fprintf(w, "  journal:    %d entries\n", v.JournalLength)
	if len(v.WaitingFor) > 0 {
		fmt.Fprintf(w, "  waiting:    %v\n", v.WaitingFor)
	}
	if v.ResponseSink != "" {
		fmt.Fprintf(w, "  sink:       %s\n", v.ResponseSink)
	}
}

// EntryView is one journal entry.
type EntryView struct {
	Index     uint32 `json:"index"`
	Kind      string `json:"kind"`
	Completed bool   `json:"completed"`
	Size      int    `json:"size"`
	Body      string `json:"body,omitempty"`
}

// JournalView is the journal of the active invocation of a service instance.
type JournalView struct {
	Invocation string      `json:"invocation"`
	Entries    []EntryView `json:"entries"`
}

func (v JournalView) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s: %d entries\n", v.Invocation, len(v.Entries))
	for _, e := range v.Entries {
		state := "pending"
		if e.Completed {
			state = "completed"
		}
		fmt.Fprintf(w, "  %3d %-18s %-9s %8s", e.Index, e.Kind, state, humanize.Bytes(uint64(e.Size)))
		if e.Body != "" {
			fmt.Fprintf(w, "  %s", e.Body)
		}
		fmt.Fprintln(w)
	}
}

// InboxView is one queued invocation.
type InboxView struct {
	Sequence   uint64 `json:"sequence"`
	Invocation string `json:"invocation"`
	Method     string `json:"method"`
}

type inboxList []InboxView

func (l inboxList) renderText(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "inbox is empty")
		return
	}
	for _, e := range l {
		fmt.Fprintf(w, "  #%d %s method=%s\n", e.Sequence, e.Invocation, e.Method)
	}
}

// OutboxView is one undelivered outbox message.
type OutboxView struct {
	Index       uint64 `json:"index"`
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
}

type outboxList []OutboxView

func (l outboxList) renderText(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "outbox is empty")
		return
	}
	for _, m := range l {
		fmt.Fprintf(w, "  #%d %-18s -> %s\n", m.Index, m.Kind, m.Destination)
	}
}

// TimerView is one registered timer.
type TimerView struct {
	Invocation string    `json:"invocation"`
	Entry      uint32    `json:"entry"`
	Timestamp  uint64    `json:"timestamp"`
	Due        time.Time `json:"due"`

	relative string
}

type timerList []TimerView

func (l timerList) renderText(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "no timers")
		return
	}
	for _, t := range l {
		fmt.Fprintf(w, "  %s entry=%d due %s (%s)\n", t.Invocation, t.Entry, t.Due.Format(time.RFC3339), t.relative)
	}
}

// NewInspectCommand creates the inspect command and its subcommands.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts, now: time.Now}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Read partition state from a node database",
		Long: `Read the stored state of a node without starting it.

Examples:
  partd inspect status cart user-42 --db ./partd.db
  partd inspect journal cart user-42 --config ./node.yaml
  partd inspect outbox 3 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(&cobra.Command{
		Use:           "status <service> <key>",
		Short:         "Show the invocation status of a service instance",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(opts, cmd, func(ctx context.Context, tx *store.Tx) (any, error) {
				return statusView(ctx, tx, args[0], args[1])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "journal <service> <key>",
		Short:         "List the journal of the active invocation",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(opts, cmd, func(ctx context.Context, tx *store.Tx) (any, error) {
				return journalView(ctx, tx, args[0], args[1])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "inbox <service> <key>",
		Short:         "List invocations queued for a service instance",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(opts, cmd, func(ctx context.Context, tx *store.Tx) (any, error) {
				return inboxView(ctx, tx, args[0], args[1])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "outbox <partition>",
		Short:         "List undelivered outbox messages of a partition",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePartition(args[0])
			if err != nil {
				return err
			}
			return inspect(opts, cmd, func(ctx context.Context, tx *store.Tx) (any, error) {
				return outboxView(ctx, tx, pid)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "timers <partition>",
		Short:         "List registered timers of a partition",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePartition(args[0])
			if err != nil {
				return err
			}
			return inspect(opts, cmd, func(ctx context.Context, tx *store.Tx) (any, error) {
				return timersView(ctx, tx, pid, opts.now())
			})
		},
	})

	return cmd
}

// inspect opens the configured database, which must already exist, and
// prints the result of read.
func inspect(opts *InspectOptions, cmd *cobra.Command, read func(context.Context, *store.Tx) (any, error)) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	path := cfg.DatabasePath()
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path), err)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	formatter.VerboseLog("opening database %s", path)
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var result any
	err = st.View(ctx, func(tx *store.Tx) error {
		var err error
		result, err = read(ctx, tx)
		return err
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read database", err)
	}
	return formatter.Success(result)
}

func parsePartition(arg string) (types.PartitionID, error) {
	n, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid partition id %q", arg), err)
	}
	return types.PartitionID(n), nil
}

func statusView(ctx context.Context, tx *store.Tx, service, key string) (StatusView, error) {
	sid := types.NewServiceID(service, []byte(key))
	status, err := tx.GetStatus(ctx, sid)
	if err != nil {
		return StatusView{}, err
	}

	view := StatusView{Service: sid.ServiceName, Key: key, Status: status.Kind.String()}
	if id, ok := status.InvocationID(); ok {
		view.InvocationID = id.String()
	}
	if meta, ok := status.JournalMetadata(); ok {
		view.Method = meta.Method
		view.JournalLength = uint32(meta.Length)
	}
	for _, idx := range status.WaitingFor() {
		view.WaitingFor = append(view.WaitingFor, uint32(idx))
	}
	if sink := status.ResponseSink(); sink != nil {
		view.ResponseSink = describeSink(sink)
	}
	return view, nil
}

func describeSink(sink *types.ResponseSink) string {
	switch sink.Kind {
	case types.SinkIngress:
		return fmt.Sprintf("ingress %s", sink.Ingress)
	case types.SinkPartitionProcessor:
		return fmt.Sprintf("%s entry=%d", sink.Caller, sink.EntryIndex)
	default:
		return sink.Kind.String()
	}
}

func journalView(ctx context.Context, tx *store.Tx, service, key string) (JournalView, error) {
	sid := types.NewServiceID(service, []byte(key))
	status, err := tx.GetStatus(ctx, sid)
	if err != nil {
		return JournalView{}, err
	}
	id, active := status.InvocationID()
	if !active {
		return JournalView{}, fmt.Errorf("%s has no active invocation", sid)
	}
	meta, _ := status.JournalMetadata()

	entries, err := journal.Entries(ctx, tx, sid, meta.Length)
	if err != nil {
		return JournalView{}, err
	}
	view := JournalView{
		Invocation: types.ServiceInvocationID{ServiceID: sid, InvocationID: id}.String(),
		Entries:    make([]EntryView, 0, len(entries)),
	}
	for i, e := range entries {
		ev := EntryView{
			Index:     uint32(i),
			Kind:      e.Header.Kind.String(),
			Completed: e.Header.IsCompleted,
			Size:      len(e.Payload),
		}
		if e.Header.Kind != types.EntryCustom {
			if body, err := codec.Diagnose(e.Payload); err == nil {
				ev.Body = body
			}
		}
		view.Entries = append(view.Entries, ev)
	}
	return view, nil
}

func inboxView(ctx context.Context, tx *store.Tx, service, key string) (inboxList, error) {
	sid := types.NewServiceID(service, []byte(key))
	list := inboxList{}
	err := tx.ScanInbox(ctx, sid, func(e types.InboxEntry) error {
		list = append(list, InboxView{
			Sequence:   uint64(e.SequenceNumber),
			Invocation: e.Invocation.ID.String(),
			Method:     e.Invocation.MethodName,
		})
		return nil
	})
	return list, err
}

func outboxView(ctx context.Context, tx *store.Tx, pid types.PartitionID) (outboxList, error) {
	list := outboxList{}
	err := tx.ScanOutbox(ctx, pid, func(index types.MessageIndex, msg types.OutboxMessage) error {
		list = append(list, OutboxView{
			Index:       uint64(index),
			Kind:        msg.Kind.String(),
			Destination: destination(msg),
		})
		return nil
	})
	return list, err
}

func destination(msg types.OutboxMessage) string {
	switch msg.Kind {
	case types.OutboxServiceInvocation:
		return msg.ServiceInvocation.ID.String()
	case types.OutboxServiceResponse:
		return fmt.Sprintf("%s entry=%d", msg.ServiceResponse.ID, msg.ServiceResponse.EntryIndex)
	case types.OutboxIngressResponse:
		return fmt.Sprintf("ingress %s", msg.IngressResponse.IngressID)
	default:
		return ""
	}
}

func timersView(ctx context.Context, tx *store.Tx, pid types.PartitionID, now time.Time) (timerList, error) {
	list := timerList{}
	err := tx.ScanTimers(ctx, pid, func(k types.TimerKey) error {
		due := k.Timestamp.Time()
		list = append(list, TimerView{
			Invocation: k.InvocationID.String(),
			Entry:      uint32(k.JournalIndex),
			Timestamp:  uint64(k.Timestamp),
			Due:        due,
			relative:   humanize.RelTime(due, now, "ago", "from now"),
		})
		return nil
	})
	return list, err
}
