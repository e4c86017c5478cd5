package network

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/partd/internal/types"
)

// Hub is an in-memory IngressSink. Ingress clients wait for the response of
// their invocation with Await.
//
// Responses that arrive before anyone waits are kept until collected.
// Envelopes are deduplicated per producer by index.
//
// Thread-safety: All methods are safe for concurrent use.
type Hub struct {
	mu        sync.Mutex
	last      map[types.ProducerID]types.MessageIndex
	responses map[hubKey]types.ResponseResult
	waiters   map[hubKey][]chan types.ResponseResult
	logger    *slog.Logger
}

type hubKey struct {
	ingress    types.IngressID
	invocation string
}

func keyOf(ingress types.IngressID, id types.ServiceInvocationID) hubKey {
	return hubKey{ingress: ingress, invocation: id.String()}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		last:      make(map[types.ProducerID]types.MessageIndex),
		responses: make(map[hubKey]types.ResponseResult),
		waiters:   make(map[hubKey][]chan types.ResponseResult),
		logger:    slog.With("component", "ingress"),
	}
}

// DeliverIngress implements IngressSink.
func (h *Hub) DeliverIngress(_ context.Context, env Envelope) (types.AckKind, error) {
	resp := env.Message.IngressResponse
	if env.Message.Kind != types.OutboxIngressResponse || resp == nil {
		return types.AckKind{}, fmt.Errorf("envelope %s is not an ingress response", env)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if last, ok := h.last[env.From]; ok && env.Index <= last {
		return types.DuplicateAck(env.Index), nil
	}
	h.last[env.From] = env.Index

	key := keyOf(resp.IngressID, resp.ServiceInvocationID)
	if waiting := h.waiters[key]; len(waiting) > 0 {
		for _, ch := range waiting {
			ch <- resp.Response
		}
		delete(h.waiters, key)
	} else {
		h.responses[key] = resp.Response
	}
	h.logger.Debug("ingress response delivered",
		"ingress", resp.IngressID,
		"invocation", resp.ServiceInvocationID,
		"result", resp.Response.Kind,
	)
	return types.Ack(env.Index), nil
}

// Await blocks until the response of invocation id addressed to ingress
// arrives or ctx ends.
func (h *Hub) Await(ctx context.Context, ingress types.IngressID, id types.ServiceInvocationID) (types.ResponseResult, error) {
	key := keyOf(ingress, id)

	h.mu.Lock()
	if res, ok := h.responses[key]; ok {
		delete(h.responses, key)
		h.mu.Unlock()
		return res, nil
	}
	ch := make(chan types.ResponseResult, 1)
	h.waiters[key] = append(h.waiters[key], ch)
	h.mu.Unlock()

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		h.mu.Lock()
		defer h.mu.Unlock()
		h.removeWaiter(key, ch)
		// The response may have raced the cancellation.
		select {
		case res := <-ch:
			return res, nil
		default:
			return types.ResponseResult{}, ctx.Err()
		}
	}
}

// Pending returns the number of responses nobody has collected yet.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.responses)
}

func (h *Hub) removeWaiter(key hubKey, ch chan types.ResponseResult) {
	waiting := h.waiters[key]
	for i, w := range waiting {
		if w == ch {
			waiting = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}
	if len(waiting) == 0 {
		delete(h.waiters, key)
		return
	}
	h.waiters[key] = waiting
}
