package testutil

import (
	"path/filepath"
	"testing"

	"github.com/wesm/mboxvault/internal/store"
)

// NewTestStore returns an empty archive in its own temporary directory, with
// system folders seeded. The store is closed during test cleanup.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.InitSchema(); err != nil {
		t.Fatalf("init archive schema: %v", err)
	}
	return st
}
