package db

import "testing"

// NewTestStore creates an in-memory store for testing with the schema
// already migrated. The store is closed automatically on cleanup.
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	store, err := OpenStoreInMemory()
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
