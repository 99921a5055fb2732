package sqlite

import (
	"path/filepath"
	"testing"
)

// newTestPointStore creates a migrated point database in a temp dir.
func newTestPointStore(t *testing.T) *PointStore {
	t.Helper()
	store, err := CreatePointStore(filepath.Join(t.TempDir(), "points.db"))
	if err != nil {
		t.Fatalf("Failed to create point store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
