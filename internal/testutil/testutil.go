// Package testutil provides shared test helpers for setting up stores and
// snapshot directories.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/tafl/internal/storage"
	"github.com/starford/tafl/internal/store"
)

// TestStore creates a temporary SQLite board store that is automatically
// cleaned up.
func TestStore(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tafl-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSnapshotDir creates a temporary snapshot directory with a
// storage.Provider over it.
func TestSnapshotDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	provider, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, provider
}
