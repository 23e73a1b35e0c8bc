package store

import (
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// sqliteParams are appended to every SQLite DSN: foreign keys on, WAL
// journaling, writers serialized by BEGIN IMMEDIATE, and a busy timeout so
// concurrent writers wait instead of failing.
const sqliteParams = "_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"

// NewSQLiteStore opens (or creates) the SQLite database at path.
func NewSQLiteStore(path string, log *logrus.Logger) (*SQLStore, error) {
	return open(sqliteDialect, sqliteDSN(path), log)
}

func sqliteDSN(path string) string {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqliteParams
	}
	return dsn + "?" + sqliteParams
}
