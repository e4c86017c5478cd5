// Package node runs the partitions a node leads.
//
// For every partition assigned to the node in the cluster registry, a Node
// runs three components under one errgroup:
//
//   - the partition Processor, the single writer of the partition's state;
//   - the outbox Router, delivering produced messages;
//   - the timer Service, firing registered timers.
//
// Committed effects are dispatched from the processor to the invoker, the
// router and the timer service. Envelopes received from other nodes are
// applied through HandleEnvelope, which Node registers on the transport.
package node
