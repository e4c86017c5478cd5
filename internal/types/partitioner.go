package types

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// PartitionKey identifies to which partition a key belongs. Unlike
// PartitionID, which identifies a consecutive range of partition keys, every
// service key maps to exactly one PartitionKey.
type PartitionKey uint64

// DomainPartitionKey is the domain prefix of the partition key hash.
// The version suffix is the algorithm version: changing the hash requires a
// new suffix and a repartitioning migration.
const DomainPartitionKey = "partd/partition-key/v1"

// PartitionKeyOf derives the partition key of a service key.
//
// Format: first 8 bytes (big endian) of BLAKE3(domain + 0x00 + key).
// The function is pure: the same key bytes yield the same PartitionKey on
// every node and in every process.
func PartitionKeyOf(key []byte) PartitionKey {
	h := blake3.New()
	_, _ = h.Write([]byte(DomainPartitionKey))
	_, _ = h.Write([]byte{0x00})
	_, _ = h.Write(key)
	sum := h.Sum(nil)
	return PartitionKey(binary.BigEndian.Uint64(sum[:8]))
}

// KeyRange is an inclusive range of partition keys.
type KeyRange struct {
	Start PartitionKey `cbor:"1,keyasint"`
	End   PartitionKey `cbor:"2,keyasint"`
}

// Contains reports whether pk lies inside the range.
func (r KeyRange) Contains(pk PartitionKey) bool {
	return pk >= r.Start && pk <= r.End
}
