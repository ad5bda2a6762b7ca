// Package testing provides shared test helpers.
package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kabuplan/kabuplan/internal/database"
)

// NewTestDB creates a temporary SQLite database with the named schema
// applied. The cleanup function closes the connection and removes the
// file; it is safe to call more than once.
//
// Supported schema names: "ledger", "signals", "history". Unknown names
// get an empty database.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	cleanup := func() {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		// WAL side files
		_ = os.Remove(tmpPath + "-wal")
		_ = os.Remove(tmpPath + "-shm")
		_ = os.Remove(filepath.Clean(tmpPath))
	}

	return db, cleanup
}
