package types

import (
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// StatusKind distinguishes the lifecycle states of a service instance.
type StatusKind int

const (
	// StatusFree means the service instance is currently not invoked.
	StatusFree StatusKind = iota
	// StatusInvoked means an invocation is running.
	StatusInvoked
	// StatusSuspended means an invocation waits for completions.
	StatusSuspended
)

func (k StatusKind) String() string {
	switch k {
	case StatusFree:
		return "free"
	case StatusInvoked:
		return "invoked"
	case StatusSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// JournalMetadata is the header of an invocation's journal.
type JournalMetadata struct {
	Length      EntryIndex  `cbor:"1,keyasint"`
	Method      string      `cbor:"2,keyasint"`
	SpanContext SpanContext `cbor:"3,keyasint"`
}

// NewJournalMetadata returns the metadata of a fresh, empty journal.
func NewJournalMetadata(method string, span SpanContext) JournalMetadata {
	return JournalMetadata{Method: method, SpanContext: span}
}

// InvokedStatus is the payload of StatusInvoked.
type InvokedStatus struct {
	InvocationID    InvocationID
	JournalMetadata JournalMetadata
	ResponseSink    *ResponseSink
}

// SuspendedStatus is the payload of StatusSuspended.
type SuspendedStatus struct {
	InvocationID    InvocationID
	JournalMetadata JournalMetadata
	ResponseSink    *ResponseSink
	// WaitingFor holds the indices of the entries whose completion is awaited.
	WaitingFor mapset.Set[EntryIndex]
}

// InvocationStatus is the status of a service instance. Exactly one of the
// payload pointers is set, matching Kind; both are nil for StatusFree.
type InvocationStatus struct {
	Kind      StatusKind
	Invoked   *InvokedStatus
	Suspended *SuspendedStatus
}

// FreeStatus returns the status of an idle service instance.
func FreeStatus() InvocationStatus {
	return InvocationStatus{Kind: StatusFree}
}

// NewInvokedStatus returns an Invoked status.
func NewInvokedStatus(id InvocationID, meta JournalMetadata, sink *ResponseSink) InvocationStatus {
	return InvocationStatus{
		Kind: StatusInvoked,
		Invoked: &InvokedStatus{
			InvocationID:    id,
			JournalMetadata: meta,
			ResponseSink:    sink,
		},
	}
}

// NewSuspendedStatus returns a Suspended status waiting for the given entries.
func NewSuspendedStatus(id InvocationID, meta JournalMetadata, sink *ResponseSink, waiting ...EntryIndex) InvocationStatus {
	return InvocationStatus{
		Kind: StatusSuspended,
		Suspended: &SuspendedStatus{
			InvocationID:    id,
			JournalMetadata: meta,
			ResponseSink:    sink,
			WaitingFor:      mapset.NewThreadUnsafeSet(waiting...),
		},
	}
}

// IsFree reports whether no invocation is active.
func (s InvocationStatus) IsFree() bool {
	return s.Kind == StatusFree
}

// InvocationID returns the id of the active invocation.
// The second result is false for StatusFree.
func (s InvocationStatus) InvocationID() (InvocationID, bool) {
	switch s.Kind {
	case StatusInvoked:
		return s.Invoked.InvocationID, true
	case StatusSuspended:
		return s.Suspended.InvocationID, true
	default:
		return InvocationID{}, false
	}
}

// JournalMetadata returns the journal header of the active invocation.
func (s InvocationStatus) JournalMetadata() (JournalMetadata, bool) {
	switch s.Kind {
	case StatusInvoked:
		return s.Invoked.JournalMetadata, true
	case StatusSuspended:
		return s.Suspended.JournalMetadata, true
	default:
		return JournalMetadata{}, false
	}
}

// ResponseSink returns the sink of the active invocation, nil if none.
func (s InvocationStatus) ResponseSink() *ResponseSink {
	switch s.Kind {
	case StatusInvoked:
		return s.Invoked.ResponseSink
	case StatusSuspended:
		return s.Suspended.ResponseSink
	default:
		return nil
	}
}

// WaitingFor returns the awaited entry indices in ascending order.
// It is empty unless the status is Suspended.
func (s InvocationStatus) WaitingFor() []EntryIndex {
	if s.Kind != StatusSuspended || s.Suspended.WaitingFor == nil {
		return nil
	}
	out := s.Suspended.WaitingFor.ToSlice()
	slices.Sort(out)
	return out
}

// WithJournalMetadata returns a copy of an active status carrying meta.
func (s InvocationStatus) WithJournalMetadata(meta JournalMetadata) InvocationStatus {
	switch s.Kind {
	case StatusInvoked:
		inv := *s.Invoked
		inv.JournalMetadata = meta
		return InvocationStatus{Kind: StatusInvoked, Invoked: &inv}
	case StatusSuspended:
		sus := *s.Suspended
		sus.JournalMetadata = meta
		sus.WaitingFor = s.Suspended.WaitingFor.Clone()
		return InvocationStatus{Kind: StatusSuspended, Suspended: &sus}
	default:
		return s
	}
}

func (s InvocationStatus) String() string {
	switch s.Kind {
	case StatusInvoked:
		return fmt.Sprintf("invoked(%s, length=%d)", s.Invoked.InvocationID, s.Invoked.JournalMetadata.Length)
	case StatusSuspended:
		return fmt.Sprintf("suspended(%s, length=%d, waiting=%v)",
			s.Suspended.InvocationID, s.Suspended.JournalMetadata.Length, s.WaitingFor())
	default:
		return "free"
	}
}
