// Package testing holds fixtures shared by package tests.
package testing

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/teranos/pwcmeta/db"
	"github.com/teranos/pwcmeta/rdf"
)

// CreateTestDB creates a migrated in-memory SQLite database.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenWithMigrations(db.MemoryPath, nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

// WriteNTriples writes stmts, one per line, followed by extra (raw text,
// e.g. a truncated line) to a file in a fresh temp directory.
func WriteNTriples(t *testing.T, stmts []rdf.Statement, extra string) string {
	t.Helper()

	var buf bytes.Buffer
	w := rdf.NewWriter(&buf)
	if err := w.WriteAll(stmts); err != nil {
		t.Fatalf("Failed to encode statements: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Failed to flush statements: %v", err)
	}
	buf.WriteString(extra)

	path := filepath.Join(t.TempDir(), "statements.nt")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}
