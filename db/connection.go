// Package db opens the SQLite table store and applies its embedded schema.
package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/logger"
	"github.com/teranos/pwcmeta/sym"
)

// SQLiteBusyTimeoutMS is how long a connection waits on a locked database.
const SQLiteBusyTimeoutMS = 5000

// MemoryPath opens a transient in-process database.
const MemoryPath = ":memory:"

// Open opens a SQLite database at path with WAL journaling, foreign keys and
// a busy timeout. A nil logger operates silently.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	log = logger.OrNop(log)
	log.Debugw("Opening database", logger.FieldPath, path, "symbol", sym.DB)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if path == MemoryPath {
		// every new connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode = WAL", "enable WAL mode"},
		{"PRAGMA foreign_keys = ON", "enable foreign keys"},
		{"PRAGMA busy_timeout = 5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to %s", p.what)
		}
	}

	log.Infow("Database opened", logger.FieldPath, path, "symbol", sym.DB, "wal_mode", true)
	return db, nil
}

// OpenWithMigrations opens path and brings its schema up to date.
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, log)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	if err := Migrate(db, log); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "migrate %s", path)
	}
	return db, nil
}
