package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDatabaseSize(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "users.db")
	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := DatabaseSize(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Errorf("got %d bytes, want 8", got)
	}
}

func TestDatabaseSize_MissingAndMemory(t *testing.T) {
	for _, p := range []string{"", ":memory:", filepath.Join(t.TempDir(), "nope.db")} {
		got, err := DatabaseSize(p)
		if err != nil {
			t.Fatalf("%q: %v", p, err)
		}
		if got != 0 {
			t.Errorf("%q: got %d, want 0", p, got)
		}
	}
}
