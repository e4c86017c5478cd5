package types

import (
	"fmt"
	"math"
	"time"
)

// MillisSinceEpoch is a wall-clock instant in milliseconds since the unix
// epoch.
type MillisSinceEpoch uint64

const (
	UnixEpoch MillisSinceEpoch = 0
	MaxMillis MillisSinceEpoch = math.MaxUint64
)

// MillisFromTime converts a time to MillisSinceEpoch. Times before the epoch
// map to UnixEpoch.
func MillisFromTime(t time.Time) MillisSinceEpoch {
	ms := t.UnixMilli()
	if ms < 0 {
		return UnixEpoch
	}
	return MillisSinceEpoch(ms)
}

// Time converts back to a time.Time in UTC.
func (m MillisSinceEpoch) Time() time.Time {
	if m > math.MaxInt64 {
		m = math.MaxInt64
	}
	return time.UnixMilli(int64(m)).UTC()
}

func (m MillisSinceEpoch) String() string {
	return fmt.Sprintf("%d ms since epoch", uint64(m))
}

// TimerKey identifies a scheduled wake-up of a journal entry. It is unique
// per (invocation, journal index).
type TimerKey struct {
	InvocationID ServiceInvocationID `cbor:"1,keyasint"`
	JournalIndex EntryIndex          `cbor:"2,keyasint"`
	Timestamp    MillisSinceEpoch    `cbor:"3,keyasint"`
}

// Before orders timers by timestamp, then invocation, then journal index.
func (k TimerKey) Before(o TimerKey) bool {
	if k.Timestamp != o.Timestamp {
		return k.Timestamp < o.Timestamp
	}
	if c := k.InvocationID.ServiceID.Compare(o.InvocationID.ServiceID); c != 0 {
		return c < 0
	}
	if k.InvocationID.InvocationID != o.InvocationID.InvocationID {
		return k.InvocationID.InvocationID.String() < o.InvocationID.InvocationID.String()
	}
	return k.JournalIndex < o.JournalIndex
}

// Equal reports whether both keys denote the same timer.
func (k TimerKey) Equal(o TimerKey) bool {
	return k.Timestamp == o.Timestamp && k.JournalIndex == o.JournalIndex && k.InvocationID.Equal(o.InvocationID)
}

func (k TimerKey) String() string {
	return fmt.Sprintf("timer(%s, entry=%d, at=%d)", k.InvocationID, k.JournalIndex, uint64(k.Timestamp))
}
