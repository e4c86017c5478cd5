package store

import (
	"encoding/binary"
	"fmt"

	"github.com/roach88/partd/internal/types"
)

// Table prefixes. The values are persisted.
const (
	prefixStatus  byte = 's'
	prefixJournal byte = 'j'
	prefixInbox   byte = 'i'
	prefixOutbox  byte = 'o'
	prefixTimer   byte = 't'
	prefixState   byte = 'u'
	prefixDedup   byte = 'd'
	prefixFSM     byte = 'f'
)

// FSM counter names.
const (
	fsmInboxSeq  byte = 1
	fsmOutboxSeq byte = 2
)

// keyBuilder appends big-endian fields to a key.
type keyBuilder []byte

func newKey(prefix byte) keyBuilder {
	return keyBuilder{prefix}
}

func (k keyBuilder) u32(v uint32) keyBuilder {
	return binary.BigEndian.AppendUint32(k, v)
}

func (k keyBuilder) u64(v uint64) keyBuilder {
	return binary.BigEndian.AppendUint64(k, v)
}

// bytes appends a length-prefixed field so that no field is a prefix of
// another.
func (k keyBuilder) bytes(b []byte) keyBuilder {
	k = k.u32(uint32(len(b)))
	return append(k, b...)
}

// raw appends b without a length prefix. Only valid as the last field.
func (k keyBuilder) raw(b []byte) keyBuilder {
	return append(k, b...)
}

// service appends the partition key and the service id. Leading with the
// partition key keeps a partition's key range contiguous.
func (k keyBuilder) service(sid types.ServiceID) keyBuilder {
	return k.u64(uint64(sid.PartitionKey())).bytes([]byte(sid.ServiceName)).bytes(sid.Key)
}

func statusKey(sid types.ServiceID) []byte {
	return newKey(prefixStatus).service(sid)
}

func journalPrefix(sid types.ServiceID) []byte {
	return newKey(prefixJournal).service(sid)
}

func journalKey(sid types.ServiceID, index types.EntryIndex) []byte {
	return keyBuilder(journalPrefix(sid)).u32(uint32(index))
}

func inboxPrefix(sid types.ServiceID) []byte {
	return newKey(prefixInbox).service(sid)
}

func inboxKey(sid types.ServiceID, seq types.MessageIndex) []byte {
	return keyBuilder(inboxPrefix(sid)).u64(uint64(seq))
}

func outboxPrefix(pid types.PartitionID) []byte {
	return newKey(prefixOutbox).u64(uint64(pid))
}

func outboxKey(pid types.PartitionID, index types.MessageIndex) []byte {
	return keyBuilder(outboxPrefix(pid)).u64(uint64(index))
}

func timerPrefix(pid types.PartitionID) []byte {
	return newKey(prefixTimer).u64(uint64(pid))
}

func timerKey(pid types.PartitionID, key types.TimerKey) []byte {
	id := key.InvocationID
	return keyBuilder(timerPrefix(pid)).
		u64(uint64(key.Timestamp)).
		service(id.ServiceID).
		raw(id.InvocationID[:]).
		u32(uint32(key.JournalIndex))
}

func statePrefix(sid types.ServiceID) []byte {
	return newKey(prefixState).service(sid)
}

func stateKey(sid types.ServiceID, key []byte) []byte {
	return keyBuilder(statePrefix(sid)).raw(key)
}

func dedupPrefix(pid types.PartitionID) []byte {
	return newKey(prefixDedup).u64(uint64(pid))
}

func dedupKey(pid types.PartitionID, producer types.ProducerID) []byte {
	return keyBuilder(dedupPrefix(pid)).raw([]byte(producer))
}

func fsmKey(pid types.PartitionID, name byte) []byte {
	return append(newKey(prefixFSM).u64(uint64(pid)), name)
}

// partitionKeyBounds returns the [lo, hi) range of table keys whose
// partition key lies in r. hi is nil when the range reaches the end of the
// table.
func partitionKeyBounds(prefix byte, r types.KeyRange) (lo, hi []byte) {
	lo = newKey(prefix).u64(uint64(r.Start))
	if uint64(r.End) == ^uint64(0) {
		return lo, successor([]byte{prefix})
	}
	return lo, newKey(prefix).u64(uint64(r.End) + 1)
}

// successor returns the smallest key greater than every key with the given
// prefix, or nil if there is none.
func successor(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

// decodeStatusKey reads the service id that follows the partition key in a
// status key.
func decodeStatusKey(key []byte) (types.ServiceID, error) {
	if len(key) < 1+8 || key[0] != prefixStatus {
		return types.ServiceID{}, fmt.Errorf("not a status key: %x", key)
	}
	rest := key[1+8:]
	name, rest, err := readField(rest)
	if err != nil {
		return types.ServiceID{}, err
	}
	svcKey, _, err := readField(rest)
	if err != nil {
		return types.ServiceID{}, err
	}
	return types.NewServiceID(string(name), svcKey), nil
}

func readField(b []byte) (field, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("truncated key field")
	}
	n := binary.BigEndian.Uint32(b)
	if uint64(len(b)-4) < uint64(n) {
		return nil, nil, fmt.Errorf("truncated key field: want %d bytes, have %d", n, len(b)-4)
	}
	return b[4 : 4+n], b[4+n:], nil
}
