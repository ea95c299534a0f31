// Package so turns the canonical store into tables: a SQLite statement
// table, the per-repository metadata export and its popularity-enriched
// join with the paper catalog.
package so

import (
	"context"
	"database/sql"
	"os"

	"go.uber.org/zap"

	"github.com/teranos/pwcmeta/db"
	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/logger"
	"github.com/teranos/pwcmeta/rdf"
)

// TableStore holds canonical statements in SQLite for querying.
type TableStore struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// NewTableStore wraps an already migrated database.
func NewTableStore(conn *sql.DB, log *zap.SugaredLogger) *TableStore {
	return &TableStore{db: conn, log: logger.OrNop(log)}
}

// OpenTableStore opens (and migrates) the database at path. ":memory:"
// gives a transient store.
func OpenTableStore(path string, log *zap.SugaredLogger) (*TableStore, error) {
	conn, err := db.OpenWithMigrations(path, log)
	if err != nil {
		return nil, err
	}
	return NewTableStore(conn, log), nil
}

// Close releases the database.
func (s *TableStore) Close() error {
	return s.db.Close()
}

const insertStatement = `INSERT OR IGNORE INTO statements
	(subject, subject_kind, predicate, object, object_kind, datatype, lang)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// LoadStatements replaces the table contents with the statements of the
// canonical store at path, in one transaction. Unparseable lines are skipped
// with a warning. It returns the number of statements read.
func (s *TableStore) LoadStatements(ctx context.Context, path string) (n int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open canonical store %s", path)
	}
	defer f.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr(err, "begin load")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM statements"); err != nil {
		return 0, errors.Wrap(err, "clear statements")
	}
	stmt, err := tx.PrepareContext(ctx, insertStatement)
	if err != nil {
		return 0, errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	err = rdf.Each(f, func(st rdf.Statement) error {
		_, err := stmt.ExecContext(ctx,
			st.Subject.Value, int(st.Subject.Kind),
			st.Predicate.Value,
			st.Object.Value, int(st.Object.Kind), st.Object.Datatype, st.Object.Lang,
		)
		if err != nil {
			return errors.Wrapf(err, "insert %s", st)
		}
		n++
		return nil
	}, func(lineNo int, line string, perr error) {
		s.log.Warnw("Skipping unparseable statement", logger.FieldLine, lineNo, logger.FieldError, perr)
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit load")
	}
	s.log.Infow("Loaded canonical store", logger.FieldPath, path, logger.FieldStatements, n)
	return n, nil
}

// Count returns the number of stored statements.
func (s *TableStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM statements").Scan(&n); err != nil {
		return 0, storeErr(err, "count statements")
	}
	return n, nil
}

// storeErr wraps err, reporting use after Close as db.ErrDatabaseClosed.
func storeErr(err error, msg string) error {
	if db.IsDatabaseClosed(err) {
		return errors.Wrap(db.ErrDatabaseClosed, msg)
	}
	return errors.Wrap(err, msg)
}
