package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/partd/internal/types"
)

// Local is an in-process Transport. Envelopes are encoded and decoded on
// every send so that handlers never share memory with the sender.
//
// Thread-safety: All methods are safe for concurrent use.
type Local struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewLocal creates an empty in-process transport.
func NewLocal() *Local {
	return &Local{handlers: make(map[string]Handler)}
}

// Register routes envelopes for node to h, replacing any previous handler.
func (l *Local) Register(node string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[node] = h
}

// Unregister makes node unreachable.
func (l *Local) Unregister(node string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, node)
}

// Send implements Transport.
func (l *Local) Send(ctx context.Context, node string, env Envelope) (types.AckKind, error) {
	l.mu.RLock()
	h, ok := l.handlers[node]
	l.mu.RUnlock()
	if !ok {
		return types.AckKind{}, fmt.Errorf("send %s to %q: %w", env, node, ErrUnknownNode)
	}

	data, err := env.Encode()
	if err != nil {
		return types.AckKind{}, err
	}
	copied, err := DecodeEnvelope(data)
	if err != nil {
		return types.AckKind{}, err
	}

	ack, err := h.HandleEnvelope(ctx, copied)
	if err != nil {
		return types.AckKind{}, fmt.Errorf("send %s to %q: %w", env, node, err)
	}
	if err := checkAck(env, ack); err != nil {
		return types.AckKind{}, err
	}
	return ack, nil
}
