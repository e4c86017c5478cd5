// Package outbox ships the messages a partition produced to their
// destinations.
//
// Outbox messages are written by the partition state machine in the same
// transaction as the transition that produced them. A Router per partition
// reads them back in index order, sends each one, and truncates the outbox
// once the receiver acknowledges. Delivery is at-least-once: a message whose
// acknowledgement is lost is sent again with the same index, and the
// receiver answers Duplicate.
package outbox
