package journal

import (
	"fmt"

	"github.com/roach88/partd/internal/codec"
	"github.com/roach88/partd/internal/types"
)

// Body is the decoded payload of a journal entry.
type Body interface {
	Kind() types.EntryKind
}

// completable is implemented by bodies that carry a completion result.
type completable interface {
	Body
	result() *types.CompletionResult
	setResult(types.CompletionResult)
}

// PollInputStream reads the invocation argument.
type PollInputStream struct {
	Result *types.CompletionResult `cbor:"15,keyasint,omitempty"`
}

// OutputStream writes the invocation result. It terminates the invocation.
type OutputStream struct {
	Result types.ResponseResult `cbor:"1,keyasint"`
}

// GetState reads a state value of the service instance.
type GetState struct {
	Key    []byte                  `cbor:"1,keyasint"`
	Result *types.CompletionResult `cbor:"15,keyasint,omitempty"`
}

// SetState writes a state value of the service instance.
type SetState struct {
	Key   []byte `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// ClearState deletes a state value of the service instance.
type ClearState struct {
	Key []byte `cbor:"1,keyasint"`
}

// Sleep suspends the invocation until WakeUpTime.
type Sleep struct {
	WakeUpTime types.MillisSinceEpoch  `cbor:"1,keyasint"`
	Result     *types.CompletionResult `cbor:"15,keyasint,omitempty"`
}

// InvokeRequest names the callee of an invoke entry.
type InvokeRequest struct {
	ServiceName string `cbor:"1,keyasint"`
	MethodName  string `cbor:"2,keyasint"`
	Parameter   []byte `cbor:"3,keyasint,omitempty"`
}

// Invoke calls another service and waits for its response.
type Invoke struct {
	Request InvokeRequest           `cbor:"1,keyasint"`
	Result  *types.CompletionResult `cbor:"15,keyasint,omitempty"`
}

// BackgroundInvoke calls another service without waiting.
type BackgroundInvoke struct {
	Request InvokeRequest `cbor:"1,keyasint"`
}

// Awakeable waits for an external completion addressed by its AwakeableID.
type Awakeable struct {
	Result *types.CompletionResult `cbor:"15,keyasint,omitempty"`
}

// CompleteAwakeable completes the awakeable entry of another invocation.
type CompleteAwakeable struct {
	Target types.ServiceInvocationID `cbor:"1,keyasint"`
	Index  types.EntryIndex          `cbor:"2,keyasint"`
	Result types.ResponseResult      `cbor:"3,keyasint"`
}

func (PollInputStream) Kind() types.EntryKind   { return types.EntryPollInputStream }
func (OutputStream) Kind() types.EntryKind      { return types.EntryOutputStream }
func (GetState) Kind() types.EntryKind          { return types.EntryGetState }
func (SetState) Kind() types.EntryKind          { return types.EntrySetState }
func (ClearState) Kind() types.EntryKind        { return types.EntryClearState }
func (Sleep) Kind() types.EntryKind             { return types.EntrySleep }
func (Invoke) Kind() types.EntryKind            { return types.EntryInvoke }
func (BackgroundInvoke) Kind() types.EntryKind  { return types.EntryBackgroundInvoke }
func (Awakeable) Kind() types.EntryKind         { return types.EntryAwakeable }
func (CompleteAwakeable) Kind() types.EntryKind { return types.EntryCompleteAwakeable }

func (b *PollInputStream) result() *types.CompletionResult { return b.Result }
func (b *GetState) result() *types.CompletionResult        { return b.Result }
func (b *Sleep) result() *types.CompletionResult           { return b.Result }
func (b *Invoke) result() *types.CompletionResult          { return b.Result }
func (b *Awakeable) result() *types.CompletionResult       { return b.Result }

func (b *PollInputStream) setResult(r types.CompletionResult) { b.Result = &r }
func (b *GetState) setResult(r types.CompletionResult)        { b.Result = &r }
func (b *Sleep) setResult(r types.CompletionResult)           { b.Result = &r }
func (b *Invoke) setResult(r types.CompletionResult)          { b.Result = &r }
func (b *Awakeable) setResult(r types.CompletionResult)       { b.Result = &r }

// NewEntry encodes body into a RawEntry. Completable bodies carrying a result
// are stored as completed.
func NewEntry(body Body) (types.RawEntry, error) {
	payload, err := codec.Marshal(body)
	if err != nil {
		return types.RawEntry{}, fmt.Errorf("encode %s entry: %w", body.Kind(), err)
	}
	header := types.EnrichedEntryHeader{Kind: body.Kind()}
	if c, ok := asCompletable(body); ok {
		header.IsCompleted = c.result() != nil
	}
	return types.NewRawEntry(header, payload), nil
}

// NewInvokeEntry encodes an invoke entry together with the resolution of its
// callee. A nil resolution means the entry is completed by the endpoint.
func NewInvokeEntry(body Invoke, resolution *types.ResolutionResult) (types.RawEntry, error) {
	entry, err := NewEntry(body)
	if err != nil {
		return types.RawEntry{}, err
	}
	entry.Header.Resolution = resolution
	return entry, nil
}

// NewBackgroundInvokeEntry encodes a background invoke entry with the
// resolution of its callee.
func NewBackgroundInvokeEntry(body BackgroundInvoke, resolution types.ResolutionResult) (types.RawEntry, error) {
	entry, err := NewEntry(body)
	if err != nil {
		return types.RawEntry{}, err
	}
	entry.Header.Resolution = &resolution
	return entry, nil
}

// NewCustomEntry wraps an opaque custom entry.
func NewCustomEntry(code uint16, requiresAck bool, payload []byte) types.RawEntry {
	return types.NewRawEntry(types.EnrichedEntryHeader{
		Kind:        types.EntryCustom,
		CustomCode:  code,
		RequiresAck: requiresAck,
	}, payload)
}

// Decode decodes the payload of entry according to its header kind.
// Custom entries have no body and return an error.
func Decode(entry types.RawEntry) (Body, error) {
	body, err := newBody(entry.Header.Kind)
	if err != nil {
		return nil, err
	}
	if err := codec.Unmarshal(entry.Payload, body); err != nil {
		return nil, fmt.Errorf("decode %s entry: %w", entry.Header.Kind, err)
	}
	return derefBody(body), nil
}

// DecodeAs decodes entry into the concrete body type T.
func DecodeAs[T Body](entry types.RawEntry) (T, error) {
	var zero T
	body, err := Decode(entry)
	if err != nil {
		return zero, err
	}
	typed, ok := body.(T)
	if !ok {
		return zero, fmt.Errorf("entry is %s, not %s", entry.Header.Kind, zero.Kind())
	}
	return typed, nil
}

// ResultOf returns the completion result stored in entry, nil if it has none.
func ResultOf(entry types.RawEntry) (*types.CompletionResult, error) {
	if entry.Header.Kind == types.EntryCustom {
		if entry.Header.IsCompleted && entry.Header.RequiresAck {
			ack := types.AckCompletion()
			return &ack, nil
		}
		return nil, nil
	}
	body, err := newBody(entry.Header.Kind)
	if err != nil {
		return nil, err
	}
	c, ok := body.(completable)
	if !ok {
		return nil, nil
	}
	if err := codec.Unmarshal(entry.Payload, c); err != nil {
		return nil, fmt.Errorf("decode %s entry: %w", entry.Header.Kind, err)
	}
	return c.result(), nil
}

func newBody(kind types.EntryKind) (Body, error) {
	switch kind {
	case types.EntryPollInputStream:
		return &PollInputStream{}, nil
	case types.EntryOutputStream:
		return &OutputStream{}, nil
	case types.EntryGetState:
		return &GetState{}, nil
	case types.EntrySetState:
		return &SetState{}, nil
	case types.EntryClearState:
		return &ClearState{}, nil
	case types.EntrySleep:
		return &Sleep{}, nil
	case types.EntryInvoke:
		return &Invoke{}, nil
	case types.EntryBackgroundInvoke:
		return &BackgroundInvoke{}, nil
	case types.EntryAwakeable:
		return &Awakeable{}, nil
	case types.EntryCompleteAwakeable:
		return &CompleteAwakeable{}, nil
	default:
		return nil, fmt.Errorf("entry kind %s has no body", kind)
	}
}

func derefBody(body Body) Body {
	switch b := body.(type) {
	case *PollInputStream:
		return *b
	case *OutputStream:
		return *b
	case *GetState:
		return *b
	case *SetState:
		return *b
	case *ClearState:
		return *b
	case *Sleep:
		return *b
	case *Invoke:
		return *b
	case *BackgroundInvoke:
		return *b
	case *Awakeable:
		return *b
	case *CompleteAwakeable:
		return *b
	default:
		return body
	}
}

func asCompletable(body Body) (completable, bool) {
	switch b := body.(type) {
	case PollInputStream:
		return &b, true
	case GetState:
		return &b, true
	case Sleep:
		return &b, true
	case Invoke:
		return &b, true
	case Awakeable:
		return &b, true
	case completable:
		return b, true
	default:
		return nil, false
	}
}
