package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/models"
)

type usersRepo struct{ q querier }

const userColumns = `id, username, email, role, customer_handle, payout_account, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.CustomerHandle, &u.PayoutAccount, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *usersRepo) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	out, err := scanUser(r.q.QueryRow(ctx,
		`INSERT INTO users(id, username, email, role, customer_handle, payout_account)
		 VALUES($1,$2,$3,$4,$5,$6)
		 RETURNING `+userColumns,
		u.ID, u.Username, u.Email, u.Role, u.CustomerHandle, u.PayoutAccount,
	))
	if isUniqueViolation(err) {
		return models.User{}, errors.AlreadyExistsf("user %q", u.Username)
	}
	return out, errors.Annotate(err, "inserting user")
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
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
	rows, err := r.q.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
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
