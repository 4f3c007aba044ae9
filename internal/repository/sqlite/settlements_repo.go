package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/models"
)

type settlementsRepo struct{ c conn }

const settlementColumns = `id, buyer_id, total_price, platform_fee, processing_fee, correlation_token,
	session_id, discount_code, payment_completed, transfer_completed, created_at, updated_at`

func (r *settlementsRepo) Create(ctx context.Context, s models.Settlement) (models.Settlement, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := r.c.atomic(ctx, func(q dbtx) error {
		ts := now()
		_, err := q.ExecContext(ctx,
			`INSERT INTO settlements(id, buyer_id, total_price, platform_fee, processing_fee, correlation_token,
			                         discount_code, created_at, updated_at)
			 VALUES(?,?,?,?,?,?,?,?,?)`,
			s.ID, s.BuyerID, s.TotalPrice, s.PlatformFee, s.ProcessingFee, s.CorrelationToken, s.DiscountCode, ts, ts,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.AlreadyExistsf("settlement with correlation token %q", s.CorrelationToken)
			}
			return errors.Annotate(err, "inserting settlement")
		}
		for i, it := range s.Items {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO settlement_items(settlement_id, position, item_id, seller_id, price) VALUES(?,?,?,?,?)`,
				s.ID, i, it.ItemID, it.SellerID, it.Price,
			); err != nil {
				return errors.Annotatef(err, "inserting settlement item %s", it.ItemID)
			}
		}
		for i, p := range s.Payouts {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO settlement_payouts(settlement_id, position, seller_id, amount) VALUES(?,?,?,?)`,
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
	return r.load(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE id=?`, id)
}

func (r *settlementsRepo) GetByCorrelationToken(ctx context.Context, token string) (models.Settlement, error) {
	return r.load(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE correlation_token=?`, token)
}

func (r *settlementsRepo) load(ctx context.Context, query, key string) (models.Settlement, error) {
	var (
		s                    models.Settlement
		session              sql.NullString
		createdAt, updatedAt int64
	)
	err := r.c.q.QueryRowContext(ctx, query, key).Scan(&s.ID, &s.BuyerID, &s.TotalPrice, &s.PlatformFee,
		&s.ProcessingFee, &s.CorrelationToken, &session, &s.DiscountCode, &s.PaymentCompleted,
		&s.TransferCompleted, &createdAt, &updatedAt)
	if err != nil {
		return models.Settlement{}, notFound(err, "settlement %s", key)
	}
	s.SessionID = session.String
	s.CreatedAt, s.UpdatedAt = fromNanos(createdAt), fromNanos(updatedAt)

	if s.Items, err = r.loadItems(ctx, s.ID); err != nil {
		return models.Settlement{}, err
	}
	var failed []string
	if s.Payouts, failed, err = r.loadPayouts(ctx, s.ID); err != nil {
		return models.Settlement{}, err
	}
	s.FailedTransfers = models.NormalizeFailed(failed)
	return s, nil
}

func (r *settlementsRepo) loadItems(ctx context.Context, id string) ([]models.SettlementItem, error) {
	rows, err := r.c.q.QueryContext(ctx,
		`SELECT item_id, seller_id, price FROM settlement_items WHERE settlement_id=? ORDER BY position`, id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	var out []models.SettlementItem
	for rows.Next() {
		var it models.SettlementItem
		if err := rows.Scan(&it.ItemID, &it.SellerID, &it.Price); err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, it)
	}
	return out, errors.Trace(rows.Err())
}

func (r *settlementsRepo) loadPayouts(ctx context.Context, id string) ([]models.Payout, []string, error) {
	rows, err := r.c.q.QueryContext(ctx,
		`SELECT seller_id, amount, transfer_failed FROM settlement_payouts WHERE settlement_id=? ORDER BY position`, id)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	defer rows.Close()
	var (
		out    []models.Payout
		failed []string
	)
	for rows.Next() {
		var (
			p         models.Payout
			failedLeg bool
		)
		if err := rows.Scan(&p.SellerID, &p.Amount, &failedLeg); err != nil {
			return nil, nil, errors.Trace(err)
		}
		out = append(out, p)
		if failedLeg {
			failed = append(failed, p.SellerID)
		}
	}
	return out, failed, errors.Trace(rows.Err())
}

func (r *settlementsRepo) AttachSession(ctx context.Context, id, sessionID string) error {
	res, err := r.c.q.ExecContext(ctx,
		`UPDATE settlements SET session_id=?, updated_at=? WHERE id=? AND session_id IS NULL`,
		sessionID, now(), id,
	)
	if err != nil {
		return errors.Annotatef(err, "attaching session to settlement %s", id)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return errors.AlreadyExistsf("session for settlement %s", id)
}

func (r *settlementsRepo) MarkPaid(ctx context.Context, token, sessionID string) (bool, error) {
	res, err := r.c.q.ExecContext(ctx,
		`UPDATE settlements SET payment_completed=1, updated_at=?
		  WHERE correlation_token=? AND session_id=? AND payment_completed=0`,
		now(), token, sessionID,
	)
	if err != nil {
		return false, errors.Annotate(err, "marking settlement paid")
	}
	n, err := res.RowsAffected()
	return n == 1, errors.Trace(err)
}

func (r *settlementsRepo) RecordTransfers(ctx context.Context, id string, failed []string) (models.Settlement, error) {
	failed = models.NormalizeFailed(failed)
	err := r.c.atomic(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx,
			`UPDATE settlement_payouts SET transfer_failed=0, transfer_claimed=0 WHERE settlement_id=?`, id,
		); err != nil {
			return errors.Annotate(err, "resetting failed transfers")
		}
		if len(failed) > 0 {
			in, args := inClause(failed)
			args = append([]any{id}, args...)
			if _, err := q.ExecContext(ctx,
				`UPDATE settlement_payouts SET transfer_failed=1 WHERE settlement_id=? AND seller_id IN `+in, args...,
			); err != nil {
				return errors.Annotate(err, "recording failed transfers")
			}
		}
		res, err := q.ExecContext(ctx,
			`UPDATE settlements SET transfer_completed=?, updated_at=? WHERE id=? AND payment_completed=1`,
			len(failed) == 0, now(), id,
		)
		if err != nil {
			return errors.Annotate(err, "recording transfer completion")
		}
		if n, _ := res.RowsAffected(); n == 0 {
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
	res, err := r.c.q.ExecContext(ctx,
		`UPDATE settlement_payouts SET transfer_claimed=1
		  WHERE settlement_id=? AND seller_id=? AND transfer_failed=1 AND transfer_claimed=0`,
		id, sellerID,
	)
	if err != nil {
		return false, errors.Annotate(err, "claiming failed transfer")
	}
	n, err := res.RowsAffected()
	return n == 1, errors.Trace(err)
}

func (r *settlementsRepo) ReleaseTransferClaim(ctx context.Context, id, sellerID string) error {
	res, err := r.c.q.ExecContext(ctx,
		`UPDATE settlement_payouts SET transfer_claimed=0
		  WHERE settlement_id=? AND seller_id=? AND transfer_claimed=1`,
		id, sellerID,
	)
	if err != nil {
		return errors.Annotate(err, "releasing transfer claim")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFoundf("claimed transfer to %s on settlement %s", sellerID, id)
	}
	return nil
}

func (r *settlementsRepo) ClearFailedTransfer(ctx context.Context, id, sellerID string) (models.Settlement, error) {
	err := r.c.atomic(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx,
			`UPDATE settlement_payouts SET transfer_failed=0, transfer_claimed=0
			  WHERE settlement_id=? AND seller_id=? AND transfer_failed=1`,
			id, sellerID,
		)
		if err != nil {
			return errors.Annotate(err, "clearing failed transfer")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NotFoundf("failed transfer to %s on settlement %s", sellerID, id)
		}
		_, err = q.ExecContext(ctx,
			`UPDATE settlements
			    SET transfer_completed = NOT EXISTS (
			            SELECT 1 FROM settlement_payouts WHERE settlement_id=? AND transfer_failed=1),
			        updated_at = ?
			  WHERE id=?`,
			id, now(), id,
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
		`SELECT id FROM settlements WHERE buyer_id=? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		buyerID, limit, offset)
}

func (r *settlementsRepo) ListBySeller(ctx context.Context, sellerID string, limit, offset int) ([]models.Settlement, error) {
	return r.list(ctx,
		`SELECT s.id FROM settlements s
		   JOIN settlement_payouts p ON p.settlement_id = s.id
		  WHERE p.seller_id=?
		  ORDER BY s.created_at DESC, s.id LIMIT ? OFFSET ?`,
		sellerID, limit, offset)
}

func (r *settlementsRepo) ListOutstanding(ctx context.Context, limit int) ([]models.Settlement, error) {
	return r.list(ctx,
		`SELECT id FROM settlements WHERE payment_completed=1 AND transfer_completed=0
		  ORDER BY created_at, id LIMIT ?`,
		limit)
}

// list collects ids first; the single sqlite connection cannot serve nested
// queries while rows are open.
func (r *settlementsRepo) list(ctx context.Context, query string, args ...any) ([]models.Settlement, error) {
	rows, err := r.c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Trace(err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
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
