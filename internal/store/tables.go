package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/roach88/partd/internal/codec"
	"github.com/roach88/partd/internal/types"
)

// errStopScan ends a scan early without an error.
var errStopScan = errors.New("stop scan")

// statusRecord is the stored form of types.InvocationStatus.
type statusRecord struct {
	Kind         types.StatusKind      `cbor:"1,keyasint"`
	InvocationID types.InvocationID    `cbor:"2,keyasint"`
	Journal      types.JournalMetadata `cbor:"3,keyasint"`
	Sink         *types.ResponseSink   `cbor:"4,keyasint,omitempty"`
	WaitingFor   []types.EntryIndex    `cbor:"5,keyasint,omitempty"`
}

func toStatusRecord(s types.InvocationStatus) statusRecord {
	id, _ := s.InvocationID()
	meta, _ := s.JournalMetadata()
	return statusRecord{
		Kind:         s.Kind,
		InvocationID: id,
		Journal:      meta,
		Sink:         s.ResponseSink(),
		WaitingFor:   s.WaitingFor(),
	}
}

func (r statusRecord) toStatus() (types.InvocationStatus, error) {
	switch r.Kind {
	case types.StatusFree:
		return types.FreeStatus(), nil
	case types.StatusInvoked:
		return types.NewInvokedStatus(r.InvocationID, r.Journal, r.Sink), nil
	case types.StatusSuspended:
		return types.NewSuspendedStatus(r.InvocationID, r.Journal, r.Sink, r.WaitingFor...), nil
	default:
		return types.InvocationStatus{}, fmt.Errorf("unknown status kind %d", r.Kind)
	}
}

// GetStatus returns the status of a service instance. Instances without a
// stored status are Free.
func (t *Tx) GetStatus(ctx context.Context, sid types.ServiceID) (types.InvocationStatus, error) {
	var rec statusRecord
	ok, err := t.getValue(ctx, statusKey(sid), &rec)
	if err != nil {
		return types.InvocationStatus{}, fmt.Errorf("get status of %s: %w", sid, err)
	}
	if !ok {
		return types.FreeStatus(), nil
	}
	return rec.toStatus()
}

// PutStatus stores the status of a service instance. Storing Free removes
// the record.
func (t *Tx) PutStatus(ctx context.Context, sid types.ServiceID, status types.InvocationStatus) error {
	if status.IsFree() {
		return t.Delete(ctx, statusKey(sid))
	}
	return t.putValue(ctx, statusKey(sid), toStatusRecord(status))
}

// ScanStatuses calls fn for every non-free service instance whose partition
// key lies in r, ordered by partition key.
func (t *Tx) ScanStatuses(ctx context.Context, r types.KeyRange, fn func(types.ServiceID, types.InvocationStatus) error) error {
	lo, hi := partitionKeyBounds(prefixStatus, r)
	return t.ScanRange(ctx, lo, hi, func(key, value []byte) error {
		sid, err := decodeStatusKey(key)
		if err != nil {
			return err
		}
		var rec statusRecord
		if err := codec.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode status of %s: %w", sid, err)
		}
		status, err := rec.toStatus()
		if err != nil {
			return err
		}
		return fn(sid, status)
	})
}

// journalRecord is the stored form of types.RawEntry. Payload is framed by
// the store's compressor.
type journalRecord struct {
	Header  types.EnrichedEntryHeader `cbor:"1,keyasint"`
	Payload []byte                    `cbor:"2,keyasint"`
}

// GetJournalEntry returns the journal entry at index.
func (t *Tx) GetJournalEntry(ctx context.Context, sid types.ServiceID, index types.EntryIndex) (types.RawEntry, bool, error) {
	var rec journalRecord
	ok, err := t.getValue(ctx, journalKey(sid, index), &rec)
	if err != nil || !ok {
		return types.RawEntry{}, false, err
	}
	payload, err := codec.Unframe(rec.Payload)
	if err != nil {
		return types.RawEntry{}, false, fmt.Errorf("journal entry %d of %s: %w", index, sid, err)
	}
	return types.NewRawEntry(rec.Header, payload), true, nil
}

// PutJournalEntry stores the journal entry at index.
func (t *Tx) PutJournalEntry(ctx context.Context, sid types.ServiceID, index types.EntryIndex, entry types.RawEntry) error {
	framed, err := t.compressor.Frame(entry.Payload)
	if err != nil {
		return fmt.Errorf("journal entry %d of %s: %w", index, sid, err)
	}
	return t.putValue(ctx, journalKey(sid, index), journalRecord{Header: entry.Header, Payload: framed})
}

// DeleteJournal removes the journal of a service instance. length is the
// journal length recorded in the status; entries beyond it are removed too.
func (t *Tx) DeleteJournal(ctx context.Context, sid types.ServiceID, length types.EntryIndex) error {
	if err := t.DeletePrefix(ctx, journalPrefix(sid)); err != nil {
		return fmt.Errorf("delete journal of %s (length %d): %w", sid, length, err)
	}
	return nil
}

// PushInbox appends an invocation to the inbox of its service instance.
func (t *Tx) PushInbox(ctx context.Context, entry types.InboxEntry) error {
	sid := entry.Invocation.ID.ServiceID
	return t.putValue(ctx, inboxKey(sid, entry.SequenceNumber), entry)
}

// PeekInbox returns the inbox entry with the lowest sequence number.
func (t *Tx) PeekInbox(ctx context.Context, sid types.ServiceID) (types.InboxEntry, bool, error) {
	var (
		head  types.InboxEntry
		found bool
	)
	err := t.ScanInbox(ctx, sid, func(e types.InboxEntry) error {
		head, found = e, true
		return errStopScan
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return types.InboxEntry{}, false, err
	}
	return head, found, nil
}

// PopInbox removes and returns the inbox head of a service instance.
func (t *Tx) PopInbox(ctx context.Context, sid types.ServiceID) (types.InboxEntry, bool, error) {
	head, ok, err := t.PeekInbox(ctx, sid)
	if err != nil || !ok {
		return head, ok, err
	}
	if err := t.Delete(ctx, inboxKey(sid, head.SequenceNumber)); err != nil {
		return types.InboxEntry{}, false, err
	}
	return head, true, nil
}

// ScanInbox calls fn for every inbox entry of a service instance in sequence
// order.
func (t *Tx) ScanInbox(ctx context.Context, sid types.ServiceID, fn func(types.InboxEntry) error) error {
	return t.Scan(ctx, inboxPrefix(sid), func(_, value []byte) error {
		var e types.InboxEntry
		if err := codec.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decode inbox entry of %s: %w", sid, err)
		}
		return fn(e)
	})
}

// PutOutbox stores an outbox message of partition pid at index.
func (t *Tx) PutOutbox(ctx context.Context, pid types.PartitionID, index types.MessageIndex, msg types.OutboxMessage) error {
	return t.putValue(ctx, outboxKey(pid, index), msg)
}

// ScanOutbox calls fn for every outbox message of pid in index order.
func (t *Tx) ScanOutbox(ctx context.Context, pid types.PartitionID, fn func(types.MessageIndex, types.OutboxMessage) error) error {
	prefix := outboxPrefix(pid)
	return t.Scan(ctx, prefix, func(key, value []byte) error {
		index := types.MessageIndex(binary.BigEndian.Uint64(key[len(prefix):]))
		var msg types.OutboxMessage
		if err := codec.Unmarshal(value, &msg); err != nil {
			return fmt.Errorf("decode outbox message %d: %w", index, err)
		}
		return fn(index, msg)
	})
}

// TruncateOutbox removes the outbox messages of pid with index <= upTo.
func (t *Tx) TruncateOutbox(ctx context.Context, pid types.PartitionID, upTo types.MessageIndex) error {
	lo := outboxKey(pid, 0)
	hi := successor(outboxKey(pid, upTo))
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM kv WHERE key >= ? AND key < ?`, lo, hi); err != nil {
		return fmt.Errorf("truncate outbox of partition %d to %d: %w", pid, upTo, err)
	}
	return nil
}

// PutTimer registers a timer of partition pid.
func (t *Tx) PutTimer(ctx context.Context, pid types.PartitionID, key types.TimerKey) error {
	return t.putValue(ctx, timerKey(pid, key), key)
}

// DeleteTimer removes a timer. The first result reports whether it existed.
func (t *Tx) DeleteTimer(ctx context.Context, pid types.PartitionID, key types.TimerKey) (bool, error) {
	k := timerKey(pid, key)
	_, ok, err := t.Get(ctx, k)
	if err != nil || !ok {
		return false, err
	}
	return true, t.Delete(ctx, k)
}

// ScanTimers calls fn for every timer of pid in timestamp order.
func (t *Tx) ScanTimers(ctx context.Context, pid types.PartitionID, fn func(types.TimerKey) error) error {
	return t.Scan(ctx, timerPrefix(pid), func(_, value []byte) error {
		var key types.TimerKey
		if err := codec.Unmarshal(value, &key); err != nil {
			return fmt.Errorf("decode timer: %w", err)
		}
		return fn(key)
	})
}

// DeleteTimersOf removes every timer of pid that belongs to the invocation
// id and returns the removed keys.
func (t *Tx) DeleteTimersOf(ctx context.Context, pid types.PartitionID, id types.ServiceInvocationID) ([]types.TimerKey, error) {
	var removed []types.TimerKey
	err := t.ScanTimers(ctx, pid, func(key types.TimerKey) error {
		if !key.InvocationID.Equal(id) {
			return nil
		}
		removed = append(removed, key)
		return t.Delete(ctx, timerKey(pid, key))
	})
	return removed, err
}

// GetUserState returns the state value stored under key for a service
// instance.
func (t *Tx) GetUserState(ctx context.Context, sid types.ServiceID, key []byte) ([]byte, bool, error) {
	return t.Get(ctx, stateKey(sid, key))
}

// PutUserState stores a state value of a service instance.
func (t *Tx) PutUserState(ctx context.Context, sid types.ServiceID, key, value []byte) error {
	return t.Put(ctx, stateKey(sid, key), value)
}

// ClearUserState deletes a state value of a service instance.
func (t *Tx) ClearUserState(ctx context.Context, sid types.ServiceID, key []byte) error {
	return t.Delete(ctx, stateKey(sid, key))
}

// ScanUserState calls fn for every state entry of a service instance in key
// order.
func (t *Tx) ScanUserState(ctx context.Context, sid types.ServiceID, fn func(key, value []byte) error) error {
	prefix := statePrefix(sid)
	return t.Scan(ctx, prefix, func(key, value []byte) error {
		return fn(key[len(prefix):], value)
	})
}

// GetDedup returns the highest message index applied from producer.
func (t *Tx) GetDedup(ctx context.Context, pid types.PartitionID, producer types.ProducerID) (types.MessageIndex, bool, error) {
	var index types.MessageIndex
	ok, err := t.getValue(ctx, dedupKey(pid, producer), &index)
	return index, ok, err
}

// PutDedup records the highest message index applied from producer.
func (t *Tx) PutDedup(ctx context.Context, pid types.PartitionID, producer types.ProducerID, index types.MessageIndex) error {
	return t.putValue(ctx, dedupKey(pid, producer), index)
}

// NextInboxSeq returns the next inbox sequence number of pid.
func (t *Tx) NextInboxSeq(ctx context.Context, pid types.PartitionID) (types.MessageIndex, error) {
	return t.getCounter(ctx, pid, fsmInboxSeq)
}

// SetNextInboxSeq stores the next inbox sequence number of pid.
func (t *Tx) SetNextInboxSeq(ctx context.Context, pid types.PartitionID, seq types.MessageIndex) error {
	return t.putValue(ctx, fsmKey(pid, fsmInboxSeq), seq)
}

// NextOutboxSeq returns the next outbox message index of pid.
func (t *Tx) NextOutboxSeq(ctx context.Context, pid types.PartitionID) (types.MessageIndex, error) {
	return t.getCounter(ctx, pid, fsmOutboxSeq)
}

// SetNextOutboxSeq stores the next outbox message index of pid.
func (t *Tx) SetNextOutboxSeq(ctx context.Context, pid types.PartitionID, seq types.MessageIndex) error {
	return t.putValue(ctx, fsmKey(pid, fsmOutboxSeq), seq)
}

func (t *Tx) getCounter(ctx context.Context, pid types.PartitionID, name byte) (types.MessageIndex, error) {
	var v types.MessageIndex
	if _, err := t.getValue(ctx, fsmKey(pid, name), &v); err != nil {
		return 0, fmt.Errorf("read counter %d of partition %d: %w", name, pid, err)
	}
	return v, nil
}
