package journal

import (
	"context"
	"fmt"

	"github.com/roach88/partd/internal/codec"
	"github.com/roach88/partd/internal/types"
)

// Table is the storage the journal model needs: entries addressed by
// (service instance, index).
type Table interface {
	GetJournalEntry(ctx context.Context, id types.ServiceID, index types.EntryIndex) (types.RawEntry, bool, error)
	PutJournalEntry(ctx context.Context, id types.ServiceID, index types.EntryIndex, entry types.RawEntry) error
	DeleteJournal(ctx context.Context, id types.ServiceID, length types.EntryIndex) error
}

// Append stores entry at the next index and advances meta.Length.
// Returns the index assigned to the entry.
func Append(ctx context.Context, t Table, id types.ServiceID, meta *types.JournalMetadata, entry types.RawEntry) (types.EntryIndex, error) {
	index := meta.Length
	if err := t.PutJournalEntry(ctx, id, index, entry); err != nil {
		return 0, fmt.Errorf("append journal entry %d: %w", index, err)
	}
	meta.Length++
	return index, nil
}

// Complete fills result into a pending entry.
//
// Returns the updated entry and true if the entry changed. An entry that is
// already completed, or that cannot be completed, is returned unchanged with
// false: applying the same completion twice is the same as applying it once.
func Complete(entry types.RawEntry, result types.CompletionResult) (types.RawEntry, bool, error) {
	if !entry.Header.IsPending() {
		return entry, false, nil
	}

	if entry.Header.Kind == types.EntryCustom {
		entry.Header.IsCompleted = true
		return entry, true, nil
	}

	body, err := newBody(entry.Header.Kind)
	if err != nil {
		return entry, false, err
	}
	c, ok := body.(completable)
	if !ok {
		return entry, false, nil
	}
	if err := codec.Unmarshal(entry.Payload, c); err != nil {
		return entry, false, fmt.Errorf("decode %s entry: %w", entry.Header.Kind, err)
	}
	c.setResult(result)

	payload, err := codec.Marshal(c)
	if err != nil {
		return entry, false, fmt.Errorf("encode %s entry: %w", entry.Header.Kind, err)
	}

	header := entry.Header
	header.IsCompleted = true
	return types.NewRawEntry(header, payload), true, nil
}

// ApplyCompletion completes the entry at index if it exists and is pending.
// Returns true if the journal changed.
func ApplyCompletion(ctx context.Context, t Table, id types.ServiceID, meta types.JournalMetadata, index types.EntryIndex, result types.CompletionResult) (bool, error) {
	if index >= meta.Length {
		return false, nil
	}
	entry, ok, err := t.GetJournalEntry(ctx, id, index)
	if err != nil {
		return false, fmt.Errorf("read journal entry %d: %w", index, err)
	}
	if !ok {
		return false, nil
	}

	completed, changed, err := Complete(entry, result)
	if err != nil || !changed {
		return false, err
	}
	if err := t.PutJournalEntry(ctx, id, index, completed); err != nil {
		return false, fmt.Errorf("write journal entry %d: %w", index, err)
	}
	return true, nil
}

// Entries reads the first length entries of a journal in index order.
func Entries(ctx context.Context, t Table, id types.ServiceID, length types.EntryIndex) ([]types.RawEntry, error) {
	entries := make([]types.RawEntry, 0, length)
	for i := types.EntryIndex(0); i < length; i++ {
		entry, ok, err := t.GetJournalEntry(ctx, id, i)
		if err != nil {
			return nil, fmt.Errorf("read journal entry %d: %w", i, err)
		}
		if !ok {
			return nil, fmt.Errorf("journal of %s is missing entry %d of %d", id, i, length)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
