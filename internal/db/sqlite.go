package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/juju/errors"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens the embedded store used for local runs and tests. The pool is
// pinned to one connection so transactions serialise instead of hitting
// SQLITE_BUSY.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Annotate(err, "opening sqlite")
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, errors.Annotate(err, "pinging sqlite")
	}
	return sqlDB, nil
}
