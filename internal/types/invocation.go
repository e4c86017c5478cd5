package types

import "fmt"

// ServiceInvocation is a request to run a method of a service instance.
// It is immutable after creation.
type ServiceInvocation struct {
	ID           ServiceInvocationID `cbor:"1,keyasint"`
	MethodName   string              `cbor:"2,keyasint"`
	Argument     []byte              `cbor:"3,keyasint"`
	ResponseSink *ResponseSink       `cbor:"4,keyasint,omitempty"`
	SpanContext  SpanContext         `cbor:"5,keyasint"`
}

// NewServiceInvocation creates a ServiceInvocation and starts its span
// according to the given relation.
func NewServiceInvocation(
	id ServiceInvocationID,
	methodName string,
	argument []byte,
	sink *ResponseSink,
	related SpanRelation,
) ServiceInvocation {
	return ServiceInvocation{
		ID:           id,
		MethodName:   methodName,
		Argument:     argument,
		ResponseSink: sink,
		SpanContext:  StartSpan(related),
	}
}

// ResponseSinkKind distinguishes response sink variants.
type ResponseSinkKind int

const (
	// SinkPartitionProcessor delivers the result to a caller invocation.
	SinkPartitionProcessor ResponseSinkKind = iota + 1
	// SinkIngress delivers the result to an ingress client.
	SinkIngress
)

func (k ResponseSinkKind) String() string {
	switch k {
	case SinkPartitionProcessor:
		return "partition_processor"
	case SinkIngress:
		return "ingress"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ResponseSink is where the result of an invocation must be delivered.
// It is chosen at invocation creation and never changes.
type ResponseSink struct {
	Kind ResponseSinkKind `cbor:"1,keyasint"`
	// Caller and EntryIndex are set for SinkPartitionProcessor.
	Caller     ServiceInvocationID `cbor:"2,keyasint,omitempty"`
	EntryIndex EntryIndex          `cbor:"3,keyasint,omitempty"`
	// Ingress is set for SinkIngress.
	Ingress IngressID `cbor:"4,keyasint,omitempty"`
}

// PartitionProcessorSink returns a sink answering the journal entry of a
// caller invocation.
func PartitionProcessorSink(caller ServiceInvocationID, entryIndex EntryIndex) *ResponseSink {
	return &ResponseSink{Kind: SinkPartitionProcessor, Caller: caller, EntryIndex: entryIndex}
}

// IngressSink returns a sink answering an ingress client.
func IngressSink(ingress IngressID) *ResponseSink {
	return &ResponseSink{Kind: SinkIngress, Ingress: ingress}
}

// ResponseResultKind distinguishes response result variants.
type ResponseResultKind int

const (
	// ResponseSuccess carries a result value.
	ResponseSuccess ResponseResultKind = iota + 1
	// ResponseFailure carries an error code and message.
	ResponseFailure
)

// ResponseResult is the terminal result of an invocation.
type ResponseResult struct {
	Kind      ResponseResultKind `cbor:"1,keyasint"`
	Value     []byte             `cbor:"2,keyasint,omitempty"`
	ErrorCode int32              `cbor:"3,keyasint,omitempty"`
	Message   string             `cbor:"4,keyasint,omitempty"`
}

// SuccessResponse returns a successful ResponseResult.
func SuccessResponse(value []byte) ResponseResult {
	return ResponseResult{Kind: ResponseSuccess, Value: value}
}

// FailureResponse returns a failed ResponseResult.
func FailureResponse(code int32, message string) ResponseResult {
	return ResponseResult{Kind: ResponseFailure, ErrorCode: code, Message: message}
}

// ToCompletion converts the response into the completion of the caller's
// journal entry.
func (r ResponseResult) ToCompletion() CompletionResult {
	if r.Kind == ResponseFailure {
		return FailureCompletion(r.ErrorCode, r.Message)
	}
	return SuccessCompletion(r.Value)
}

// InvocationResponse is a response for a caller invocation.
type InvocationResponse struct {
	ID         ServiceInvocationID `cbor:"1,keyasint"`
	EntryIndex EntryIndex          `cbor:"2,keyasint"`
	Result     ResponseResult      `cbor:"3,keyasint"`
}
