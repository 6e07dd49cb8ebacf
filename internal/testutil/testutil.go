// Package testutil provides shared test helpers: a temporary session
// database and an in-memory ThoughtNest backend.
package testutil

import (
	"os"
	"testing"

	"github.com/thoughtnest/nestclient/internal/session"
)

// TestSessionDB creates a temporary SQLite session store that is automatically cleaned up.
func TestSessionDB(t *testing.T) *session.SQLiteStore {
	t.Helper()
	dbFile, err := os.CreateTemp("", "nestclient-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := session.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
