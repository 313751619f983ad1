package sqlitemigrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestApplyMigrationsAppliesPendingFiles(t *testing.T) {
	db := openTempDB(t)

	migrations := fstest.MapFS{
		"00001_create.sql": &fstest.MapFile{
			Data: []byte("-- +goose Up\nCREATE TABLE items(id TEXT PRIMARY KEY);\n\n-- +goose Down\nDROP TABLE items;\n"),
		},
	}

	version, err := ApplyMigrations(context.Background(), db, migrations, "")
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}
	if !tableExists(t, db, "items") {
		t.Fatal("expected applied table to exist")
	}
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	db := openTempDB(t)

	migrations := fstest.MapFS{
		"00001_create.sql": &fstest.MapFile{
			Data: []byte("-- +goose Up\nCREATE TABLE items(id TEXT PRIMARY KEY);\n"),
		},
	}
	for i := 0; i < 2; i++ {
		if _, err := ApplyMigrations(context.Background(), db, migrations, ""); err != nil {
			t.Fatalf("apply migrations pass %d: %v", i+1, err)
		}
	}
}

func TestApplyMigrationsStopsAtFailedFile(t *testing.T) {
	db := openTempDB(t)

	bad := fstest.MapFS{
		"00001_bad.sql": &fstest.MapFile{
			Data: []byte("-- +goose Up\nCREAT table things(id INT);\n"),
		},
	}
	if _, err := ApplyMigrations(context.Background(), db, bad, ""); err == nil {
		t.Fatal("expected bad migration to fail")
	}

	good := fstest.MapFS{
		"00001_bad.sql": &fstest.MapFile{
			Data: []byte("-- +goose Up\nCREATE TABLE things(id INTEGER PRIMARY KEY);\n"),
		},
	}
	version, err := ApplyMigrations(context.Background(), db, good, "")
	if err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}
}

func TestApplyMigrationsRespectsMigrationRoot(t *testing.T) {
	db := openTempDB(t)

	migrations := fstest.MapFS{
		"documents/00001_documents.sql": &fstest.MapFile{
			Data: []byte("-- +goose Up\nCREATE TABLE document_rows(id TEXT PRIMARY KEY);\n"),
		},
	}
	if _, err := ApplyMigrations(context.Background(), db, migrations, "documents"); err != nil {
		t.Fatalf("apply migrations with root: %v", err)
	}
	if !tableExists(t, db, "document_rows") {
		t.Fatal("expected migrated table in root-based migration")
	}
}

func TestApplyMigrationsRejectsNilDB(t *testing.T) {
	if _, err := ApplyMigrations(context.Background(), nil, fstest.MapFS{}, ""); err == nil {
		t.Fatal("expected nil db error")
	}
}

func openTempDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var found string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&found)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return found == name
}
