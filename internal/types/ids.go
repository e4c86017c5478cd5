package types

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// PeerID identifies a member of a replication group.
type PeerID uint64

// LeaderEpoch identifies the leader epoch of a partition leader.
type LeaderEpoch uint64

// PartitionID identifies a partition, a consecutive range of partition keys.
type PartitionID uint64

// PartitionLeaderEpoch is the leader epoch of a given partition.
type PartitionLeaderEpoch struct {
	PartitionID PartitionID `cbor:"1,keyasint"`
	LeaderEpoch LeaderEpoch `cbor:"2,keyasint"`
}

// EntryIndex is the 0-based position of an entry in a journal.
type EntryIndex uint32

// InvocationID discriminates invocation instances of the same service instance.
type InvocationID = uuid.UUID

// NewInvocationID returns a time-sortable random invocation id (UUIDv7).
func NewInvocationID() InvocationID {
	return uuid.Must(uuid.NewV7())
}

// ServiceID identifies a keyed service instance.
//
// Services are isolated by key: there cannot be two concurrent invocations
// for the same (service name, key) pair.
type ServiceID struct {
	ServiceName string `cbor:"1,keyasint"`
	Key         []byte `cbor:"2,keyasint"`
}

// NewServiceID builds a ServiceID. The service name is NFC normalized so that
// canonically equivalent names address the same instance.
func NewServiceID(serviceName string, key []byte) ServiceID {
	k := make([]byte, len(key))
	copy(k, key)
	return ServiceID{
		ServiceName: norm.NFC.String(serviceName),
		Key:         k,
	}
}

// PartitionKey returns the routing key of this service instance.
func (s ServiceID) PartitionKey() PartitionKey {
	return PartitionKeyOf(s.Key)
}

// Compare orders service ids lexicographically by name, then by key bytes.
// Returns -1, 0 or +1.
func (s ServiceID) Compare(o ServiceID) int {
	if c := strings.Compare(s.ServiceName, o.ServiceName); c != 0 {
		return c
	}
	return bytes.Compare(s.Key, o.Key)
}

// Equal reports whether both ids address the same service instance.
func (s ServiceID) Equal(o ServiceID) bool {
	return s.Compare(o) == 0
}

// IsZero reports whether the id has no service name.
func (s ServiceID) IsZero() bool {
	return s.ServiceName == ""
}

func (s ServiceID) String() string {
	return fmt.Sprintf("%s[%q]", s.ServiceName, s.Key)
}

// ServiceInvocationID identifies one invocation of a service instance.
type ServiceInvocationID struct {
	ServiceID    ServiceID    `cbor:"1,keyasint"`
	InvocationID InvocationID `cbor:"2,keyasint"`
}

// NewServiceInvocationID builds an id without I/O. It never fails.
func NewServiceInvocationID(serviceName string, key []byte, invocationID InvocationID) ServiceInvocationID {
	return ServiceInvocationID{
		ServiceID:    NewServiceID(serviceName, key),
		InvocationID: invocationID,
	}
}

// Equal reports whether both ids denote the same invocation.
func (id ServiceInvocationID) Equal(o ServiceInvocationID) bool {
	return id.InvocationID == o.InvocationID && id.ServiceID.Equal(o.ServiceID)
}

// PartitionKey returns the routing key of the invoked service instance.
func (id ServiceInvocationID) PartitionKey() PartitionKey {
	return id.ServiceID.PartitionKey()
}

func (id ServiceInvocationID) String() string {
	return fmt.Sprintf("%s[%q](%s)", id.ServiceID.ServiceName, id.ServiceID.Key, id.InvocationID)
}

// IngressID is the opaque address of an ingress endpoint. It is only used as
// a routing token and never interpreted.
type IngressID string

// ProducerID identifies the sender of deduplicated messages, either another
// partition or a named external producer such as an ingress.
type ProducerID string

// PartitionProducer returns the ProducerID of a partition.
func PartitionProducer(id PartitionID) ProducerID {
	return ProducerID(fmt.Sprintf("partition/%d", id))
}

// IngressProducer returns the ProducerID of an ingress endpoint.
func IngressProducer(id IngressID) ProducerID {
	return ProducerID("ingress/" + string(id))
}
