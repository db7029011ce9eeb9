// Package testutil provides shared test helpers for setting up vaults and card stores.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/cardsync/internal/deck"
	"github.com/starford/cardsync/internal/storage"
)

// TestStore creates a temporary SQLite card store that is automatically cleaned up.
func TestStore(t *testing.T) *deck.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "cardsync-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := deck.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.FS provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	fs, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return fs.Root(), fs
}

// WriteDoc writes content to rel inside the vault, creating parent dirs.
func WriteDoc(t *testing.T, vaultDir, rel, content string) {
	t.Helper()
	abs := filepath.Join(vaultDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
