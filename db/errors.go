package db

import (
	"strings"

	"github.com/teranos/pwcmeta/errors"
)

// ErrDatabaseClosed is returned when the store is used after Close.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err means the connection is closed, either
// our sentinel or the raw database/sql message.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
