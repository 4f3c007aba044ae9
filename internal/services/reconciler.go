package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/retry"

	"github.com/baharkarakas/pixelmart/internal/metrics"
	"github.com/baharkarakas/pixelmart/internal/models"
)

type ReconcileOptions struct {
	Attempts        int
	Delay           time.Duration
	TransferTimeout time.Duration
}

// ReconcileResult reports one run over a settlement. InProgress lists legs
// another reconciler held at the time.
type ReconcileResult struct {
	SettlementID string            `json:"settlementId"`
	Recovered    []string          `json:"recovered"`
	StillFailed  []string          `json:"stillFailed"`
	InProgress   []string          `json:"inProgress"`
	Settlement   models.Settlement `json:"settlement"`
	Error        string            `json:"error,omitempty"`
}

// Reconciler retries the transfer legs that failed during completion. It
// never touches ownership or legs that already succeeded. Each leg is claimed
// in storage before its transfer, so reconcilers in separate processes never
// pay the same leg twice.
type Reconciler struct {
	Deps
	opts     ReconcileOptions
	inflight sync.Map // settlement id -> struct{}
}

func NewReconciler(d Deps, opts ReconcileOptions) *Reconciler {
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = 10 * time.Second
	}
	return &Reconciler{Deps: d.withDefaults(), opts: opts}
}

func (r *Reconciler) Reconcile(ctx context.Context, settlementID string) (ReconcileResult, error) {
	if _, busy := r.inflight.LoadOrStore(settlementID, struct{}{}); busy {
		return ReconcileResult{}, errors.AlreadyExistsf("reconciliation of settlement %s in progress", settlementID)
	}
	defer r.inflight.Delete(settlementID)

	rec, err := r.Repos.Settlements.GetByID(ctx, settlementID)
	if err != nil {
		return ReconcileResult{}, errors.Annotate(err, "loading settlement")
	}
	if !rec.PaymentCompleted {
		return ReconcileResult{}, errors.NotValidf("settlement %s is not paid", settlementID)
	}
	res := ReconcileResult{
		SettlementID: rec.ID,
		Recovered:    []string{},
		StillFailed:  []string{},
		InProgress:   []string{},
		Settlement:   rec,
	}
	if rec.TransferCompleted {
		return res, nil
	}
	if len(rec.FailedTransfers) == 0 {
		r.Logger.WarnContext(ctx, "paid settlement has no recorded transfer outcome", "settlement_id", rec.ID)
		return res, errors.WithType(
			errors.Errorf("settlement %s is paid but its transfer outcome was never recorded; review with the provider", rec.ID),
			models.ErrTransferOutcomeUnknown)
	}

	sellers, err := r.Repos.Users.GetMany(ctx, rec.FailedTransfers)
	if err != nil {
		return ReconcileResult{}, errors.Annotate(err, "loading sellers")
	}
	log := r.Logger.With("settlement_id", rec.ID, "correlation_token", rec.CorrelationToken)

	for _, sellerID := range rec.FailedTransfers {
		if err := ctx.Err(); err != nil {
			return res, errors.Trace(err)
		}
		payout, ok := rec.PayoutFor(sellerID)
		if !ok {
			log.ErrorContext(ctx, "failed transfer has no payout entry", "seller_id", sellerID)
			res.StillFailed = append(res.StillFailed, sellerID)
			continue
		}
		claimed, err := r.Repos.Settlements.ClaimFailedTransfer(ctx, rec.ID, sellerID)
		if err != nil {
			return res, errors.Annotatef(err, "claiming transfer to %s", sellerID)
		}
		if !claimed {
			log.InfoContext(ctx, "transfer held elsewhere", "seller_id", sellerID)
			res.InProgress = append(res.InProgress, sellerID)
			continue
		}

		// A held leg must end released or cleared whatever the caller does.
		updated, recovered, err := r.retryLeg(context.WithoutCancel(ctx), log, rec, payout, sellers[sellerID])
		if err != nil {
			return res, err
		}
		if !recovered {
			res.StillFailed = append(res.StillFailed, sellerID)
			continue
		}
		rec = updated
		res.Recovered = append(res.Recovered, sellerID)
	}

	if len(res.Recovered) > 0 {
		// Pick up legs other reconcilers finished meanwhile.
		if fresh, err := r.Repos.Settlements.GetByID(ctx, rec.ID); err == nil {
			rec = fresh
		}
		r.audit(models.AuditEntitySettlement, rec.ID, "transfers_reconciled", map[string]any{
			"recovered":    res.Recovered,
			"still_failed": res.StillFailed,
		})
	}
	res.Settlement = rec
	log.InfoContext(ctx, "reconciled",
		"recovered", res.Recovered, "still_failed", res.StillFailed, "in_progress", res.InProgress, "state", rec.State())
	return res, nil
}

// retryLeg transfers one claimed leg. On failure the claim is released so a
// later run can try again; on success the leg leaves the failed set.
func (r *Reconciler) retryLeg(ctx context.Context, log *slog.Logger, rec models.Settlement, payout models.Payout, seller models.User) (models.Settlement, bool, error) {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return transferLeg(ctx, r.Gateway, r.opts.TransferTimeout, r.Currency, rec.CorrelationToken, payout, seller)
		},
		IsFatalError: func(err error) bool { return errors.Is(err, errors.NotValid) },
		NotifyFunc: func(err error, attempt int) {
			log.DebugContext(ctx, "retrying transfer", "seller_id", payout.SellerID, "attempt", attempt, "err", err)
		},
		Attempts:    r.opts.Attempts,
		Delay:       r.opts.Delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       r.Clock,
	})
	if err != nil {
		metrics.ReconciledTotal.WithLabelValues("failed").Inc()
		log.WarnContext(ctx, "transfer still failing", "seller_id", payout.SellerID, "err", retry.LastError(err))
		if rerr := r.Repos.Settlements.ReleaseTransferClaim(ctx, rec.ID, payout.SellerID); rerr != nil {
			return rec, false, errors.Annotatef(rerr, "releasing transfer to %s", payout.SellerID)
		}
		return rec, false, nil
	}

	// The money has moved; a lost write here must surface.
	updated, err := r.Repos.Settlements.ClearFailedTransfer(ctx, rec.ID, payout.SellerID)
	if err != nil {
		log.ErrorContext(ctx, "recovered transfer not recorded", "seller_id", payout.SellerID, "err", err)
		return rec, false, errors.Annotatef(err, "recording recovered transfer to %s", payout.SellerID)
	}
	metrics.ReconciledTotal.WithLabelValues("recovered").Inc()
	return updated, true, nil
}

// ReconcileAll walks up to limit outstanding settlements, oldest first. A
// failure on one record is reported in its result and does not stop the walk.
func (r *Reconciler) ReconcileAll(ctx context.Context, limit int) ([]ReconcileResult, error) {
	outstanding, err := r.ListOutstanding(ctx, limit)
	if err != nil {
		return nil, err
	}
	results := make([]ReconcileResult, 0, len(outstanding))
	for _, rec := range outstanding {
		if err := ctx.Err(); err != nil {
			return results, errors.Trace(err)
		}
		res, err := r.Reconcile(ctx, rec.ID)
		if err != nil {
			res.SettlementID = rec.ID
			res.Error = err.Error()
			r.Logger.WarnContext(ctx, "reconcile failed", "settlement_id", rec.ID, "err", err)
		}
		results = append(results, res)
	}
	return results, nil
}

// ListOutstanding returns paid settlements whose transfers have not all landed.
func (r *Reconciler) ListOutstanding(ctx context.Context, limit int) ([]models.Settlement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out, err := r.Repos.Settlements.ListOutstanding(ctx, limit)
	if err != nil {
		return nil, errors.Annotate(err, "listing outstanding settlements")
	}
	if out == nil {
		out = []models.Settlement{}
	}
	return out, nil
}
