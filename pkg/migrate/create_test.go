package migrate

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"
	"time"
)

func TestCreateSQLMigrationAtRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	path, err := createSQLMigrationAt(dir, "add holds", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if want := "20261001090000_add_holds.sql"; path[len(path)-len(want):] != want {
		t.Fatalf("unexpected path %s", path)
	}
	if _, err := createSQLMigrationAt(dir, "add holds", now); err == nil {
		t.Fatal("expected duplicate migration to fail")
	}
	if _, err := createSQLMigrationAt(dir, "!!!", now); err == nil {
		t.Fatal("expected empty sanitized name to fail")
	}
}

func TestValidateAnnotations(t *testing.T) {
	if err := validateAnnotations("-- +goose Down\n-- +goose Up\n"); err == nil {
		t.Fatal("expected Down before Up to fail")
	}
	if err := validateAnnotations("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n"); err == nil {
		t.Fatal("expected unbalanced statement block to fail")
	}
	if err := validateAnnotations("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	compiled, err := fs.Glob(embedded, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	if len(onDisk) == 0 || len(onDisk) != len(compiled) {
		t.Fatalf("expected embedded files to match disk, disk=%d embedded=%d", len(onDisk), len(compiled))
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := Run(context.Background(), &sql.DB{}, "", "drop-everything"); err == nil {
		t.Fatal("expected unknown command to fail")
	}
}
