package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/models"
)

type itemsRepo struct{ q querier }

const itemColumns = `id, owner_id, original_user, url, description, price, is_public, is_deleted, price_handle, created_at, updated_at`

func scanItem(row pgx.Row) (models.Item, error) {
	var (
		it       models.Item
		original *string
	)
	err := row.Scan(&it.ID, &it.OwnerID, &original, &it.URL, &it.Description, &it.Price,
		&it.IsPublic, &it.IsDeleted, &it.PriceHandle, &it.CreatedAt, &it.UpdatedAt)
	if original != nil {
		it.OriginalUser = *original
	}
	return it, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *itemsRepo) Create(ctx context.Context, it models.Item) (models.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	out, err := scanItem(r.q.QueryRow(ctx,
		`INSERT INTO items(id, owner_id, original_user, url, description, price, is_public, price_handle)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING `+itemColumns,
		it.ID, it.OwnerID, nullable(it.OriginalUser), it.URL, it.Description, it.Price, it.IsPublic, it.PriceHandle,
	))
	return out, errors.Annotate(err, "inserting item")
}

func (r *itemsRepo) GetByID(ctx context.Context, id string) (models.Item, error) {
	it, err := scanItem(r.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id))
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
	rows, err := r.q.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ANY($1)`, ids)
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
	rows, err := r.q.Query(ctx,
		`SELECT `+itemColumns+` FROM items
		  WHERE owner_id=$1 AND NOT is_deleted
		  ORDER BY created_at DESC, id`, ownerID)
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
	tag, err := r.q.Exec(ctx,
		`UPDATE items SET price=$2, price_handle=$3, updated_at=now() WHERE id=$1 AND NOT is_deleted`,
		id, price, priceHandle,
	)
	if err != nil {
		return errors.Annotatef(err, "updating price of item %s", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("item %s", id)
	}
	return nil
}

func (r *itemsRepo) SetVisibility(ctx context.Context, ownerID string, ids []string, isPublic bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE items SET is_public=$3, updated_at=now()
		  WHERE owner_id=$1 AND id = ANY($2) AND NOT is_deleted`,
		ownerID, ids, isPublic,
	)
	if err != nil {
		return 0, errors.Annotate(err, "updating visibility")
	}
	return tag.RowsAffected(), nil
}

func (r *itemsRepo) SoftDelete(ctx context.Context, ownerID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE items SET is_deleted=true, updated_at=now()
		  WHERE owner_id=$1 AND id = ANY($2) AND NOT is_deleted`,
		ownerID, ids,
	)
	if err != nil {
		return 0, errors.Annotate(err, "deleting items")
	}
	return tag.RowsAffected(), nil
}
