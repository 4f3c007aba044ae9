package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx. Begin on a pgx.Tx
// opens a savepoint, so multi-statement writes stay atomic either way.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ querier = (*pgxpool.Pool)(nil)
	_ querier = (pgx.Tx)(nil)
)

func bind(q querier) repository.Repositories {
	return repository.Repositories{
		Users:       &usersRepo{q},
		Items:       &itemsRepo{q},
		Settlements: &settlementsRepo{q},
		AuditLogs:   &auditLogsRepo{q},
	}
}

func NewRepositories(pool *pgxpool.Pool) repository.Repositories {
	repos := bind(pool)
	repos.Tx = &txRunner{pool}
	return repos
}

type txRunner struct{ pool *pgxpool.Pool }

// WithTx uses read committed: every cross-request race in this schema is
// settled by a conditional UPDATE, which re-evaluates its predicate after
// waiting on the row lock.
func (r *txRunner) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return errors.Annotate(err, "begin tx")
	}
	if err := fn(bind(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return errors.Annotate(tx.Commit(ctx), "commit tx")
}

// atomic runs fn inside a transaction (or savepoint) on q.
func atomic(ctx context.Context, q querier, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, q, fn)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.NotFoundf(format, args...)
	}
	return errors.Trace(err)
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
