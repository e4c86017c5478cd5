package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/partd/internal/codec"
)

// Tx is a storage transaction. It is only valid inside the function passed
// to Store.Transaction or Store.View.
type Tx struct {
	tx         *sql.Tx
	compressor codec.Compressor
}

// Get returns the value stored under key. The second result is false if the
// key does not exist.
func (t *Tx) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	var value []byte
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %x: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous value.
func (t *Tx) Put(ctx context.Context, key, value []byte) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("put %x: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (t *Tx) Delete(ctx context.Context, key []byte) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %x: %w", key, err)
	}
	return nil
}

// Scan calls fn for every key with the given prefix, in ascending key order.
// Returning an error from fn stops the scan and returns that error.
func (t *Tx) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	return t.ScanRange(ctx, prefix, successor(prefix), fn)
}

// ScanRange calls fn for every key in [lo, hi), in ascending key order. A nil
// hi scans to the end of the key space.
func (t *Tx) ScanRange(ctx context.Context, lo, hi []byte, fn func(key, value []byte) error) error {
	query, args := rangeQuery(`SELECT key, value FROM kv`, lo, hi)
	rows, err := t.tx.QueryContext(ctx, query+` ORDER BY key ASC`, args...)
	if err != nil {
		return fmt.Errorf("scan %x: %w", lo, err)
	}
	defer rows.Close()

	// Collect first: fn may write through the same transaction, and the
	// single connection is busy while rows are open.
	type pair struct{ key, value []byte }
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.key, &p.value); err != nil {
			return fmt.Errorf("scan %x: %w", lo, err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan %x: %w", lo, err)
	}
	rows.Close()

	for _, p := range pairs {
		if err := fn(p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}

// DeletePrefix removes every key with the given prefix.
func (t *Tx) DeletePrefix(ctx context.Context, prefix []byte) error {
	query, args := rangeQuery(`DELETE FROM kv`, prefix, successor(prefix))
	_, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete prefix %x: %w", prefix, err)
	}
	return nil
}

// rangeQuery appends the WHERE clause selecting keys in [lo, hi) to base.
// Empty bounds are left out: SQLite binds an empty blob as NULL.
func rangeQuery(base string, lo, hi []byte) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(lo) > 0 {
		conds = append(conds, "key >= ?")
		args = append(args, lo)
	}
	if hi != nil {
		conds = append(conds, "key < ?")
		args = append(args, hi)
	}
	if len(conds) == 0 {
		return base, nil
	}
	return base + " WHERE " + strings.Join(conds, " AND "), args
}

func (t *Tx) getValue(ctx context.Context, key []byte, v any) (bool, error) {
	data, ok, err := t.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %x: %w", key, err)
	}
	return true, nil
}

func (t *Tx) putValue(ctx context.Context, key []byte, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %x: %w", key, err)
	}
	return t.Put(ctx, key, data)
}
