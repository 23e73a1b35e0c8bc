package store

import (
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// NewPostgresStore connects to PostgreSQL. Row locks are taken with
// SELECT ... FOR UPDATE inside read-committed transactions.
func NewPostgresStore(dsn string, log *logrus.Logger) (*SQLStore, error) {
	return open(postgresDialect, dsn, log)
}
