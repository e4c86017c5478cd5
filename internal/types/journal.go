package types

import "fmt"

// EntryKind is the semantic kind of a journal entry.
type EntryKind uint8

const (
	EntryPollInputStream EntryKind = iota + 1
	EntryOutputStream
	EntryGetState
	EntrySetState
	EntryClearState
	EntrySleep
	EntryInvoke
	EntryBackgroundInvoke
	EntryAwakeable
	EntryCompleteAwakeable
	EntryCustom
)

var entryKindNames = map[EntryKind]string{
	EntryPollInputStream:   "poll_input_stream",
	EntryOutputStream:      "output_stream",
	EntryGetState:          "get_state",
	EntrySetState:          "set_state",
	EntryClearState:        "clear_state",
	EntrySleep:             "sleep",
	EntryInvoke:            "invoke",
	EntryBackgroundInvoke:  "background_invoke",
	EntryAwakeable:         "awakeable",
	EntryCompleteAwakeable: "complete_awakeable",
	EntryCustom:            "custom",
}

func (k EntryKind) String() string {
	if name, ok := entryKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// ParseEntryKind parses the name returned by EntryKind.String.
func ParseEntryKind(name string) (EntryKind, error) {
	for k, n := range entryKindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown entry kind: %q", name)
}

// IsCompletable reports whether entries of this kind can be resolved
// out-of-band by a completion.
func (k EntryKind) IsCompletable() bool {
	switch k {
	case EntryPollInputStream, EntryGetState, EntrySleep, EntryInvoke, EntryAwakeable, EntryCustom:
		return true
	default:
		return false
	}
}

// ResolutionKind distinguishes resolution result variants.
type ResolutionKind int

const (
	ResolutionSuccess ResolutionKind = iota + 1
	ResolutionFailure
)

// ResolutionResult is the outcome of resolving a callee service instance and
// generating its invocation id.
type ResolutionResult struct {
	Kind ResolutionKind `cbor:"1,keyasint"`
	// Set on success.
	InvocationID InvocationID `cbor:"2,keyasint,omitempty"`
	ServiceKey   []byte       `cbor:"3,keyasint,omitempty"`
	SpanContext  SpanContext  `cbor:"4,keyasint,omitempty"`
	// Set on failure.
	ErrorCode int32  `cbor:"5,keyasint,omitempty"`
	Error     string `cbor:"6,keyasint,omitempty"`
}

// ResolvedTarget returns a successful resolution.
func ResolvedTarget(invocationID InvocationID, serviceKey []byte, span SpanContext) *ResolutionResult {
	return &ResolutionResult{
		Kind:         ResolutionSuccess,
		InvocationID: invocationID,
		ServiceKey:   serviceKey,
		SpanContext:  span,
	}
}

// ResolutionFailed returns a failed resolution.
func ResolutionFailed(code int32, message string) *ResolutionResult {
	return &ResolutionResult{Kind: ResolutionFailure, ErrorCode: code, Error: message}
}

// EnrichedEntryHeader describes a stored journal entry: its kind plus the
// runtime information the partition processor needs about it.
type EnrichedEntryHeader struct {
	Kind        EntryKind `cbor:"1,keyasint"`
	IsCompleted bool      `cbor:"2,keyasint,omitempty"`
	// Resolution is set for Invoke (nil when completed by the endpoint) and
	// BackgroundInvoke entries.
	Resolution *ResolutionResult `cbor:"3,keyasint,omitempty"`
	// CustomCode and RequiresAck are set for Custom entries.
	CustomCode  uint16 `cbor:"4,keyasint,omitempty"`
	RequiresAck bool   `cbor:"5,keyasint,omitempty"`
}

// IsPending reports whether the entry still needs a completion.
func (h EnrichedEntryHeader) IsPending() bool {
	if h.IsCompleted {
		return false
	}
	if h.Kind == EntryCustom {
		return h.RequiresAck
	}
	return h.Kind.IsCompletable()
}

// RawEntry is a stored journal record: an enriched header plus the opaque
// serialized entry.
type RawEntry struct {
	Header  EnrichedEntryHeader `cbor:"1,keyasint"`
	Payload []byte              `cbor:"2,keyasint"`
}

// NewRawEntry builds a RawEntry.
func NewRawEntry(header EnrichedEntryHeader, payload []byte) RawEntry {
	return RawEntry{Header: header, Payload: payload}
}

// CompletionKind distinguishes completion result variants.
type CompletionKind int

const (
	CompletionAck CompletionKind = iota + 1
	CompletionEmpty
	CompletionSuccess
	CompletionFailure
)

func (k CompletionKind) String() string {
	switch k {
	case CompletionAck:
		return "ack"
	case CompletionEmpty:
		return "empty"
	case CompletionSuccess:
		return "success"
	case CompletionFailure:
		return "failure"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// CompletionResult is the outcome delivered to a waiting journal entry.
type CompletionResult struct {
	Kind      CompletionKind `cbor:"1,keyasint"`
	Value     []byte         `cbor:"2,keyasint,omitempty"`
	ErrorCode int32          `cbor:"3,keyasint,omitempty"`
	Message   string         `cbor:"4,keyasint,omitempty"`
}

// AckCompletion acknowledges an entry that requires an ack.
func AckCompletion() CompletionResult { return CompletionResult{Kind: CompletionAck} }

// EmptyCompletion completes an entry without a value.
func EmptyCompletion() CompletionResult { return CompletionResult{Kind: CompletionEmpty} }

// SuccessCompletion completes an entry with a value.
func SuccessCompletion(value []byte) CompletionResult {
	return CompletionResult{Kind: CompletionSuccess, Value: value}
}

// FailureCompletion completes an entry with an error.
func FailureCompletion(code int32, message string) CompletionResult {
	return CompletionResult{Kind: CompletionFailure, ErrorCode: code, Message: message}
}

func (c CompletionResult) String() string {
	switch c.Kind {
	case CompletionSuccess:
		return fmt.Sprintf("success(%d bytes)", len(c.Value))
	case CompletionFailure:
		return fmt.Sprintf("failure(%d, %s)", c.ErrorCode, c.Message)
	default:
		return c.Kind.String()
	}
}
