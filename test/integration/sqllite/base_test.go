package sqllite

import (
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/migrations"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

// setupSqlLiteDatabase points the dialect helpers at SQLite, runs the real
// embedded migrations against a throwaway file and returns an open handle.
func setupSqlLiteDatabase(t *testing.T) *sql.DB {
	t.Helper()

	fileName := filepath.Join(t.TempDir(), "conveyor-test.db")
	t.Setenv(config.DATABASE_TYPE, config.DATABASE_TYPE_SQLLITE)
	t.Setenv(config.DATABASE_SQLLITE_FILE_NAME, fileName)

	sub, err := fs.Sub(migrations.FS, "sqllite3")
	if err != nil {
		t.Fatalf("Failed to load migrations: %v", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		t.Fatalf("Failed to load migrations: %v", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite3://"+fileName)
	if err != nil {
		t.Fatalf("Failed to prepare migrations: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("Migration failed: %v", err)
	}
	m.Close()

	db, err := sql.Open("sqlite3", fileName)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
