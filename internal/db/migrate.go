package db

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/errors"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

func upFiles(dir string) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RunMigrations applies pending postgres migrations, each in its own transaction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	const dir = "migrations/postgres"
	names, err := upFiles(dir)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version text PRIMARY KEY)`); err != nil {
		return errors.Annotate(err, "creating schema_migrations")
	}

	for _, name := range names {
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, name).Scan(&exists); err != nil {
			return errors.Trace(err)
		}
		if exists {
			continue
		}
		b, err := migrationsFS.ReadFile(dir + "/" + name)
		if err != nil {
			return errors.Trace(err)
		}
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(b)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, name)
			return err
		})
		if err != nil {
			return errors.Annotatef(err, "applying %s", name)
		}
	}
	return nil
}

// RunSQLiteMigrations is the embedded-store counterpart of RunMigrations.
func RunSQLiteMigrations(ctx context.Context, sqlDB *sql.DB) error {
	const dir = "migrations/sqlite"
	names, err := upFiles(dir)
	if err != nil {
		return err
	}
	if _, err := sqlDB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`); err != nil {
		return errors.Annotate(err, "creating schema_migrations")
	}

	for _, name := range names {
		var n int
		if err := sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version=?`, name).Scan(&n); err != nil {
			return errors.Trace(err)
		}
		if n > 0 {
			continue
		}
		b, err := migrationsFS.ReadFile(dir + "/" + name)
		if err != nil {
			return errors.Trace(err)
		}
		tx, err := sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return errors.Trace(err)
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return errors.Annotatef(err, "applying %s", name)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES(?)`, name); err != nil {
			_ = tx.Rollback()
			return errors.Trace(err)
		}
		if err := tx.Commit(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
