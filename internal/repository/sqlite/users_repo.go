package sqlite

import (
	"context"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/models"
)

type usersRepo struct{ c conn }

const userColumns = `id, username, email, role, customer_handle, payout_account, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanUser(row scanner) (models.User, error) {
	var (
		u                    models.User
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.CustomerHandle, &u.PayoutAccount, &createdAt, &updatedAt)
	u.CreatedAt, u.UpdatedAt = fromNanos(createdAt), fromNanos(updatedAt)
	return u, err
}

func (r *usersRepo) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	ts := now()
	_, err := r.c.q.ExecContext(ctx,
		`INSERT INTO users(id, username, email, role, customer_handle, payout_account, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		u.ID, u.Username, u.Email, u.Role, u.CustomerHandle, u.PayoutAccount, ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, errors.AlreadyExistsf("user %q", u.Username)
		}
		return models.User{}, errors.Annotate(err, "inserting user")
	}
	return r.GetByID(ctx, u.ID)
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	u, err := scanUser(r.c.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
	if err != nil {
		return models.User{}, notFound(err, "user %s", id)
	}
	return u, nil
}

func (r *usersRepo) GetMany(ctx context.Context, ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	in, args := inClause(ids)
	rows, err := r.c.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id IN `+in, args...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out[u.ID] = u
	}
	return out, errors.Trace(rows.Err())
}
