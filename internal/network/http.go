package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/partd/internal/codec"
	"github.com/roach88/partd/internal/types"
)

// EnvelopePath is the HTTP path envelopes are posted to.
const EnvelopePath = "/v1/envelopes"

const contentTypeCBOR = "application/cbor"

// maxEnvelopeSize bounds request bodies accepted by NewHTTPHandler.
const maxEnvelopeSize = 16 << 20

// HTTPTransport posts envelopes to peer nodes over HTTP.
//
// Thread-safety: All methods are safe for concurrent use.
type HTTPTransport struct {
	client *http.Client

	mu    sync.RWMutex
	peers map[string]string // node name -> base URL
}

// NewHTTPTransport creates a transport for the given peers. A zero timeout
// uses 5 seconds.
func NewHTTPTransport(peers map[string]string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	t := &HTTPTransport{
		client: &http.Client{Timeout: timeout},
		peers:  make(map[string]string, len(peers)),
	}
	for node, addr := range peers {
		t.peers[node] = addr
	}
	return t
}

// SetPeer adds or replaces the address of node.
func (t *HTTPTransport) SetPeer(node, baseURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[node] = baseURL
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, node string, env Envelope) (types.AckKind, error) {
	t.mu.RLock()
	base, ok := t.peers[node]
	t.mu.RUnlock()
	if !ok {
		return types.AckKind{}, fmt.Errorf("send %s to %q: %w", env, node, ErrUnknownNode)
	}

	body, err := env.Encode()
	if err != nil {
		return types.AckKind{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+EnvelopePath, bytes.NewReader(body))
	if err != nil {
		return types.AckKind{}, err
	}
	req.Header.Set("Content-Type", contentTypeCBOR)

	resp, err := t.client.Do(req)
	if err != nil {
		return types.AckKind{}, fmt.Errorf("send %s to %q: %w", env, node, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
	if err != nil {
		return types.AckKind{}, fmt.Errorf("read ack from %q: %w", node, err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.AckKind{}, fmt.Errorf("send %s to %q: http %d: %s", env, node, resp.StatusCode, bytes.TrimSpace(data))
	}

	var ack types.AckKind
	if err := codec.Unmarshal(data, &ack); err != nil {
		return types.AckKind{}, fmt.Errorf("decode ack from %q: %w", node, err)
	}
	if err := checkAck(env, ack); err != nil {
		return types.AckKind{}, err
	}
	return ack, nil
}

// NewHTTPHandler serves envelopes posted by HTTPTransport.
func NewHTTPHandler(h Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+EnvelopePath, func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeSize))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		env, err := DecodeEnvelope(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ack, err := h.HandleEnvelope(r.Context(), env)
		if err != nil {
			slog.Warn("envelope rejected", "envelope", env.String(), "error", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		out, err := codec.Marshal(ack)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentTypeCBOR)
		_, _ = w.Write(out)
	})
	return mux
}
