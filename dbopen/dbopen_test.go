package dbopen

import (
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenAppliesPragmas(t *testing.T) {
	// WHAT: Opening applies WAL and foreign keys.
	// WHY: Pragmas are per-connection state; silently missing them
	// means lost cascades and writer stalls in production.
	db := OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Error("foreign_keys off")
	}
}

func TestOpenWithMkdirAllAndSchema(t *testing.T) {
	// WHAT: Parent directories are created and inline schema runs.
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "encart.db")

	db, err := Open(path,
		WithMkdirAll(),
		WithSchema(`CREATE TABLE essai (id INTEGER PRIMARY KEY)`))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO essai (id) VALUES (1)`); err != nil {
		t.Errorf("schema not applied: %v", err)
	}
}

func TestOpenBadSchema(t *testing.T) {
	if _, err := Open(":memory:", WithSchema("NOT SQL")); err == nil {
		t.Error("bad schema accepted")
	}
}
