package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/models"
)

type settlementsRepo struct{ q querier }

const settlementColumns = `id, buyer_id, total_price, platform_fee, processing_fee, correlation_token,
	session_id, discount_code, payment_completed, transfer_completed, created_at, updated_at`

func (r *settlementsRepo) Create(ctx context.Context, s models.Settlement) (models.Settlement, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := atomic(ctx, r.q, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO settlements(id, buyer_id, total_price, platform_fee, processing_fee, correlation_token, discount_code)
			 VALUES($1,$2,$3,$4,$5,$6,$7)`,
			s.ID, s.BuyerID, s.TotalPrice, s.PlatformFee, s.ProcessingFee, s.CorrelationToken, s.DiscountCode,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.AlreadyExistsf("settlement with correlation token %q", s.CorrelationToken)
			}
			return errors.Annotate(err, "inserting settlement")
		}
		for i, it := range s.Items {
			if _, err := tx.Exec(ctx,
				`INSERT INTO settlement_items(settlement_id, position, item_id, seller_id, price) VALUES($1,$2,$3,$4,$5)`,
				s.ID, i, it.ItemID, it.SellerID, it.Price,
			); err != nil {
				return errors.Annotatef(err, "inserting settlement item %s", it.ItemID)
			}
		}
		for i, p := range s.Payouts {
			if _, err := tx.Exec(ctx,
				`INSERT INTO settlement_payouts(settlement_id, position, seller_id, amount) VALUES($1,$2,$3,$4)`,
				s.ID, i, p.SellerID, p.Amount,
			); err != nil {
				return errors.Annotatef(err, "inserting payout for %s", p.SellerID)
			}
		}
		return nil
	})
	if err != nil {
		return models.Settlement{}, err
	}
	return r.GetByID(ctx, s.ID)
}

func (r *settlementsRepo) GetByID(ctx context.Context, id string) (models.Settlement, error) {
	return r.load(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE id=$1`, id)
}

func (r *settlementsRepo) GetByCorrelationToken(ctx context.Context, token string) (models.Settlement, error) {
	return r.load(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE correlation_token=$1`, token)
}

func (r *settlementsRepo) load(ctx context.Context, query, key string) (models.Settlement, error) {
	var (
		s       models.Settlement
		session *string
	)
	err := r.q.QueryRow(ctx, query, key).Scan(&s.ID, &s.BuyerID, &s.TotalPrice, &s.PlatformFee, &s.ProcessingFee,
		&s.CorrelationToken, &session, &s.DiscountCode, &s.PaymentCompleted, &s.TransferCompleted,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return models.Settlement{}, notFound(err, "settlement %s", key)
	}
	if session != nil {
		s.SessionID = *session
	}

	rows, err := r.q.Query(ctx,
		`SELECT item_id, seller_id, price FROM settlement_items WHERE settlement_id=$1 ORDER BY position`, s.ID)
	if err != nil {
		return models.Settlement{}, errors.Trace(err)
	}
	s.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.SettlementItem, error) {
		var it models.SettlementItem
		err := row.Scan(&it.ItemID, &it.SellerID, &it.Price)
		return it, err
	})
	if err != nil {
		return models.Settlement{}, errors.Trace(err)
	}

	rows, err = r.q.Query(ctx,
		`SELECT seller_id, amount, transfer_failed FROM settlement_payouts WHERE settlement_id=$1 ORDER BY position`, s.ID)
	if err != nil {
		return models.Settlement{}, errors.Trace(err)
	}
	defer rows.Close()
	var failed []string
	for rows.Next() {
		var (
			p         models.Payout
			failedLeg bool
		)
		if err := rows.Scan(&p.SellerID, &p.Amount, &failedLeg); err != nil {
			return models.Settlement{}, errors.Trace(err)
		}
		s.Payouts = append(s.Payouts, p)
		if failedLeg {
			failed = append(failed, p.SellerID)
		}
	}
	if err := rows.Err(); err != nil {
		return models.Settlement{}, errors.Trace(err)
	}
	s.FailedTransfers = models.NormalizeFailed(failed)
	return s, nil
}

func (r *settlementsRepo) AttachSession(ctx context.Context, id, sessionID string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE settlements SET session_id=$2, updated_at=now() WHERE id=$1 AND session_id IS NULL`,
		id, sessionID,
	)
	if err != nil {
		return errors.Annotatef(err, "attaching session to settlement %s", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return errors.AlreadyExistsf("session for settlement %s", id)
}

func (r *settlementsRepo) MarkPaid(ctx context.Context, token, sessionID string) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE settlements SET payment_completed=true, updated_at=now()
		  WHERE correlation_token=$1 AND session_id=$2 AND NOT payment_completed`,
		token, sessionID,
	)
	if err != nil {
		return false, errors.Annotate(err, "marking settlement paid")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *settlementsRepo) RecordTransfers(ctx context.Context, id string, failed []string) (models.Settlement, error) {
	failed = models.NormalizeFailed(failed)
	err := atomic(ctx, r.q, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE settlement_payouts SET transfer_failed = COALESCE(seller_id = ANY($2), false), transfer_claimed = false
			  WHERE settlement_id=$1`,
			id, failed,
		); err != nil {
			return errors.Annotate(err, "recording failed transfers")
		}
		tag, err := tx.Exec(ctx,
			`UPDATE settlements SET transfer_completed=$2, updated_at=now() WHERE id=$1 AND payment_completed`,
			id, len(failed) == 0,
		)
		if err != nil {
			return errors.Annotate(err, "recording transfer completion")
		}
		if tag.RowsAffected() == 0 {
			return errors.NotValidf("settlement %s is not paid", id)
		}
		return nil
	})
	if err != nil {
		return models.Settlement{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *settlementsRepo) ClaimFailedTransfer(ctx context.Context, id, sellerID string) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE settlement_payouts SET transfer_claimed=true
		  WHERE settlement_id=$1 AND seller_id=$2 AND transfer_failed AND NOT transfer_claimed`,
		id, sellerID,
	)
	if err != nil {
		return false, errors.Annotate(err, "claiming failed transfer")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *settlementsRepo) ReleaseTransferClaim(ctx context.Context, id, sellerID string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE settlement_payouts SET transfer_claimed=false
		  WHERE settlement_id=$1 AND seller_id=$2 AND transfer_claimed`,
		id, sellerID,
	)
	if err != nil {
		return errors.Annotate(err, "releasing transfer claim")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFoundf("claimed transfer to %s on settlement %s", sellerID, id)
	}
	return nil
}

func (r *settlementsRepo) ClearFailedTransfer(ctx context.Context, id, sellerID string) (models.Settlement, error) {
	err := atomic(ctx, r.q, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE settlement_payouts SET transfer_failed=false, transfer_claimed=false
			  WHERE settlement_id=$1 AND seller_id=$2 AND transfer_failed`,
			id, sellerID,
		)
		if err != nil {
			return errors.Annotate(err, "clearing failed transfer")
		}
		if tag.RowsAffected() == 0 {
			return errors.NotFoundf("failed transfer to %s on settlement %s", sellerID, id)
		}
		_, err = tx.Exec(ctx,
			`UPDATE settlements
			    SET transfer_completed = NOT EXISTS (
			            SELECT 1 FROM settlement_payouts WHERE settlement_id=$1 AND transfer_failed),
			        updated_at = now()
			  WHERE id=$1`,
			id,
		)
		return errors.Annotate(err, "updating transfer completion")
	})
	if err != nil {
		return models.Settlement{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *settlementsRepo) ListByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]models.Settlement, error) {
	return r.list(ctx,
		`SELECT id FROM settlements WHERE buyer_id=$1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		buyerID, limit, offset)
}

func (r *settlementsRepo) ListBySeller(ctx context.Context, sellerID string, limit, offset int) ([]models.Settlement, error) {
	return r.list(ctx,
		`SELECT s.id FROM settlements s
		   JOIN settlement_payouts p ON p.settlement_id = s.id
		  WHERE p.seller_id=$1
		  ORDER BY s.created_at DESC, s.id LIMIT $2 OFFSET $3`,
		sellerID, limit, offset)
}

func (r *settlementsRepo) ListOutstanding(ctx context.Context, limit int) ([]models.Settlement, error) {
	return r.list(ctx,
		`SELECT id FROM settlements WHERE payment_completed AND NOT transfer_completed
		  ORDER BY created_at, id LIMIT $1`,
		limit)
}

func (r *settlementsRepo) list(ctx context.Context, query string, args ...any) ([]models.Settlement, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Trace(err)
	}
	out := make([]models.Settlement, 0, len(ids))
	for _, id := range ids {
		s, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
