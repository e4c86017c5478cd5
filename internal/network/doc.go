// Package network moves outbox messages between partitions.
//
// A message leaves its partition wrapped in an Envelope that names the
// producing partition and the message's outbox index. Receivers answer with
// an AckKind; a replayed index is answered Duplicate. Transport
// implementations only carry envelopes: they do not retry, reorder, or
// deduplicate.
//
// Two transports are provided:
//
//   - Local delivers to handlers registered in the same process.
//   - HTTPTransport posts CBOR envelopes to peer nodes; NewHTTPHandler
//     serves the receiving side.
//
// Responses addressed to ingress clients go to an IngressSink instead of a
// partition. Hub is the in-memory sink used by the node and tests.
package network
