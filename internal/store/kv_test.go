package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTx_PutGetDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		require.NoError(t, tx.Put(ctx, []byte("k"), []byte("v1")))
		require.NoError(t, tx.Put(ctx, []byte("k"), []byte("v2")))

		v, ok, err := tx.Get(ctx, []byte("k"))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("v2"), v)

		require.NoError(t, tx.Delete(ctx, []byte("k")))
		require.NoError(t, tx.Delete(ctx, []byte("missing")))

		_, ok, err = tx.Get(ctx, []byte("k"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestTx_ScanPrefixOrdered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		for _, k := range []string{"b2", "a1", "b1", "b\xff", "c"} {
			require.NoError(t, tx.Put(ctx, []byte(k), []byte(k)))
		}

		var keys []string
		require.NoError(t, tx.Scan(ctx, []byte("b"), func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		}))
		assert.Equal(t, []string{"b1", "b2", "b\xff"}, keys)

		require.NoError(t, tx.DeletePrefix(ctx, []byte("b")))
		keys = nil
		require.NoError(t, tx.Scan(ctx, nil, func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		}))
		assert.Equal(t, []string{"a1", "c"}, keys)
		return nil
	}))
}

func TestTx_ScanAllowsWritesFromCallback(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Transaction(ctx, func(tx *Tx) error {
		require.NoError(t, tx.Put(ctx, []byte("p1"), []byte("x")))
		require.NoError(t, tx.Put(ctx, []byte("p2"), []byte("x")))
		return tx.Scan(ctx, []byte("p"), func(key, _ []byte) error {
			return tx.Delete(ctx, key)
		})
	}))
}

func TestSuccessor(t *testing.T) {
	assert.Equal(t, []byte("b"), successor([]byte("a")))
	assert.Equal(t, []byte{0x01}, successor([]byte{0x00, 0xff}))
	assert.Nil(t, successor([]byte{0xff, 0xff}))
	assert.Nil(t, successor(nil))
}
