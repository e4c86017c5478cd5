package types

import "fmt"

// MessageIndex sequences messages on inter-partition channels and inbox
// entries. It increases monotonically per producer.
type MessageIndex uint64

// AckKindType distinguishes acknowledgement variants.
type AckKindType int

const (
	// Acknowledge means the message was applied.
	Acknowledge AckKindType = iota + 1
	// Duplicate means the index was already applied; nothing was reapplied.
	Duplicate
)

// AckKind is the receiver's answer to a sequenced message.
type AckKind struct {
	Kind  AckKindType  `cbor:"1,keyasint"`
	Index MessageIndex `cbor:"2,keyasint"`
}

// Ack returns an Acknowledge for index.
func Ack(index MessageIndex) AckKind { return AckKind{Kind: Acknowledge, Index: index} }

// DuplicateAck returns a Duplicate for index.
func DuplicateAck(index MessageIndex) AckKind { return AckKind{Kind: Duplicate, Index: index} }

func (a AckKind) String() string {
	switch a.Kind {
	case Acknowledge:
		return fmt.Sprintf("ack(%d)", a.Index)
	case Duplicate:
		return fmt.Sprintf("duplicate(%d)", a.Index)
	default:
		return fmt.Sprintf("unknown(%d)", a.Index)
	}
}

// InboxEntry is an invocation queued behind the active invocation of its
// service instance.
type InboxEntry struct {
	SequenceNumber MessageIndex      `cbor:"1,keyasint"`
	Invocation     ServiceInvocation `cbor:"2,keyasint"`
}

// OutboxMessageKind distinguishes outbox message variants.
type OutboxMessageKind int

const (
	// OutboxServiceInvocation forwards an invocation to another partition.
	OutboxServiceInvocation OutboxMessageKind = iota + 1
	// OutboxServiceResponse carries a response to a caller invocation.
	OutboxServiceResponse
	// OutboxIngressResponse carries a response to an ingress client.
	OutboxIngressResponse
)

func (k OutboxMessageKind) String() string {
	switch k {
	case OutboxServiceInvocation:
		return "service_invocation"
	case OutboxServiceResponse:
		return "service_response"
	case OutboxIngressResponse:
		return "ingress_response"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// IngressResponse is a response addressed to an ingress endpoint.
type IngressResponse struct {
	IngressID           IngressID           `cbor:"1,keyasint"`
	ServiceInvocationID ServiceInvocationID `cbor:"2,keyasint"`
	Response            ResponseResult      `cbor:"3,keyasint"`
}

// OutboxMessage is a message that must leave the partition. Exactly one
// payload is set, matching Kind.
type OutboxMessage struct {
	Kind              OutboxMessageKind   `cbor:"1,keyasint"`
	ServiceInvocation *ServiceInvocation  `cbor:"2,keyasint,omitempty"`
	ServiceResponse   *InvocationResponse `cbor:"3,keyasint,omitempty"`
	IngressResponse   *IngressResponse    `cbor:"4,keyasint,omitempty"`
}

// ForwardInvocation wraps an invocation for another partition.
func ForwardInvocation(inv ServiceInvocation) OutboxMessage {
	return OutboxMessage{Kind: OutboxServiceInvocation, ServiceInvocation: &inv}
}

// ForwardResponse wraps a response for a caller invocation.
func ForwardResponse(resp InvocationResponse) OutboxMessage {
	return OutboxMessage{Kind: OutboxServiceResponse, ServiceResponse: &resp}
}

// ForwardIngressResponse wraps a response for an ingress client.
func ForwardIngressResponse(resp IngressResponse) OutboxMessage {
	return OutboxMessage{Kind: OutboxIngressResponse, IngressResponse: &resp}
}

// DestinationKey returns the partition key of the destination for partition
// bound messages. The second result is false for ingress responses.
func (m OutboxMessage) DestinationKey() (PartitionKey, bool) {
	switch m.Kind {
	case OutboxServiceInvocation:
		return m.ServiceInvocation.ID.PartitionKey(), true
	case OutboxServiceResponse:
		return m.ServiceResponse.ID.PartitionKey(), true
	default:
		return 0, false
	}
}
