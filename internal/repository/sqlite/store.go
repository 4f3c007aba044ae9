// Package sqlite implements the repositories on the embedded modernc.org/sqlite
// driver. It backs local runs and the service tests.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/juju/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/baharkarakas/pixelmart/internal/repository"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn carries the handle a repository runs on. db is nil when q is already a
// transaction.
type conn struct {
	db *sql.DB
	q  dbtx
}

func (c conn) atomic(ctx context.Context, fn func(dbtx) error) error {
	if c.db == nil {
		return fn(c.q)
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Annotate(tx.Commit(), "commit tx")
}

func bind(c conn) repository.Repositories {
	return repository.Repositories{
		Users:       &usersRepo{c},
		Items:       &itemsRepo{c},
		Settlements: &settlementsRepo{c},
		AuditLogs:   &auditLogsRepo{c},
	}
}

// NewRepositories expects a handle from db.OpenSQLite with migrations applied.
func NewRepositories(sqlDB *sql.DB) repository.Repositories {
	repos := bind(conn{db: sqlDB, q: sqlDB})
	repos.Tx = &txRunner{sqlDB}
	return repos
}

type txRunner struct{ db *sql.DB }

// WithTx must not be mixed with calls on the outer repositories inside fn: the
// pool holds a single connection.
func (r *txRunner) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "begin tx")
	}
	if err := fn(bind(conn{q: tx})); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Annotate(tx.Commit(), "commit tx")
}

func now() int64 { return time.Now().UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NotFoundf(format, args...)
	}
	return errors.Trace(err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// inClause returns "(?,?,?)" and the matching args.
func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
