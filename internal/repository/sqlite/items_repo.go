package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/models"
)

type itemsRepo struct{ c conn }

const itemColumns = `id, owner_id, original_user, url, description, price, is_public, is_deleted, price_handle, created_at, updated_at`

func scanItem(row scanner) (models.Item, error) {
	var (
		it                   models.Item
		original             sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(&it.ID, &it.OwnerID, &original, &it.URL, &it.Description, &it.Price,
		&it.IsPublic, &it.IsDeleted, &it.PriceHandle, &createdAt, &updatedAt)
	it.OriginalUser = original.String
	it.CreatedAt, it.UpdatedAt = fromNanos(createdAt), fromNanos(updatedAt)
	return it, err
}

func (r *itemsRepo) Create(ctx context.Context, it models.Item) (models.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	ts := now()
	_, err := r.c.q.ExecContext(ctx,
		`INSERT INTO items(id, owner_id, original_user, url, description, price, is_public, price_handle, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.OwnerID, nullable(it.OriginalUser), it.URL, it.Description, it.Price, it.IsPublic, it.PriceHandle, ts, ts,
	)
	if err != nil {
		return models.Item{}, errors.Annotate(err, "inserting item")
	}
	return r.GetByID(ctx, it.ID)
}

func (r *itemsRepo) GetByID(ctx context.Context, id string) (models.Item, error) {
	it, err := scanItem(r.c.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id=?`, id))
	if err != nil {
		return models.Item{}, notFound(err, "item %s", id)
	}
	return it, nil
}

func (r *itemsRepo) GetMany(ctx context.Context, ids []string) (map[string]models.Item, error) {
	out := make(map[string]models.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	in, args := inClause(ids)
	rows, err := r.c.q.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id IN `+in, args...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out[it.ID] = it
	}
	return out, errors.Trace(rows.Err())
}

func (r *itemsRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.Item, error) {
	rows, err := r.c.q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE owner_id=? AND is_deleted=0 ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	var out []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, it)
	}
	return out, errors.Trace(rows.Err())
}

func (r *itemsRepo) UpdatePrice(ctx context.Context, id string, price int64, priceHandle string) error {
	res, err := r.c.q.ExecContext(ctx,
		`UPDATE items SET price=?, price_handle=?, updated_at=? WHERE id=? AND is_deleted=0`,
		price, priceHandle, now(), id,
	)
	if err != nil {
		return errors.Annotatef(err, "updating price of item %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFoundf("item %s", id)
	}
	return nil
}

func (r *itemsRepo) SetVisibility(ctx context.Context, ownerID string, ids []string, isPublic bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, args := inClause(ids)
	args = append([]any{isPublic, now(), ownerID}, args...)
	res, err := r.c.q.ExecContext(ctx,
		`UPDATE items SET is_public=?, updated_at=? WHERE owner_id=? AND is_deleted=0 AND id IN `+in, args...)
	if err != nil {
		return 0, errors.Annotate(err, "updating visibility")
	}
	n, err := res.RowsAffected()
	return n, errors.Trace(err)
}

func (r *itemsRepo) SoftDelete(ctx context.Context, ownerID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, args := inClause(ids)
	args = append([]any{now(), ownerID}, args...)
	res, err := r.c.q.ExecContext(ctx,
		`UPDATE items SET is_deleted=1, updated_at=? WHERE owner_id=? AND is_deleted=0 AND id IN `+in, args...)
	if err != nil {
		return 0, errors.Annotate(err, "deleting items")
	}
	n, err := res.RowsAffected()
	return n, errors.Trace(err)
}
