package network

import (
	"context"
	"errors"

	"github.com/roach88/partd/internal/types"
)

// ErrUnknownNode is returned when the destination node is not reachable
// through a transport.
var ErrUnknownNode = errors.New("unknown node")

// Transport sends envelopes to partitions on other nodes.
type Transport interface {
	// Send delivers env to node and returns the receiver's answer. An error
	// means the outcome is unknown: the sender retries with the same index.
	Send(ctx context.Context, node string, env Envelope) (types.AckKind, error)
}

// Handler applies envelopes received by a node.
type Handler interface {
	HandleEnvelope(ctx context.Context, env Envelope) (types.AckKind, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env Envelope) (types.AckKind, error)

// HandleEnvelope implements Handler.
func (f HandlerFunc) HandleEnvelope(ctx context.Context, env Envelope) (types.AckKind, error) {
	return f(ctx, env)
}

// IngressSink receives responses addressed to ingress clients.
type IngressSink interface {
	DeliverIngress(ctx context.Context, env Envelope) (types.AckKind, error)
}
