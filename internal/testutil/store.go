package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/partd/internal/store"
)

// OpenStore opens a store in a temporary directory and closes it when the
// test ends.
func OpenStore(t testing.TB, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "partd.db"), opts...)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
