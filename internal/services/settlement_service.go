package services

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/retry"
	"golang.org/x/sync/errgroup"

	"github.com/baharkarakas/pixelmart/internal/gateway"
	"github.com/baharkarakas/pixelmart/internal/metrics"
	"github.com/baharkarakas/pixelmart/internal/models"
	"github.com/baharkarakas/pixelmart/internal/repository"
)

type SettlementOptions struct {
	WebhookSecret       string
	TransferTimeout     time.Duration
	TransferConcurrency int
}

// CompletionEvent is the part of a verified provider event completion needs.
type CompletionEvent struct {
	SessionID        string
	CorrelationToken string
}

type CompletionOutcome string

const (
	OutcomeSettled   CompletionOutcome = "settled"
	OutcomePartial   CompletionOutcome = "partial"
	OutcomeDuplicate CompletionOutcome = "duplicate"
	OutcomeIgnored   CompletionOutcome = "ignored"
)

type CompletionResult struct {
	Outcome    CompletionOutcome
	Settlement models.Settlement
}

type SettlementService struct {
	Deps
	opts SettlementOptions
}

func NewSettlementService(d Deps, opts SettlementOptions) *SettlementService {
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = 10 * time.Second
	}
	if opts.TransferConcurrency < 1 {
		opts.TransferConcurrency = 4
	}
	return &SettlementService{Deps: d.withDefaults(), opts: opts}
}

// HandleWebhook authenticates a raw provider notification and completes the
// matching settlement. Event types other than checkout completion are
// accepted and ignored. Transfer failures are recorded, never returned.
func (s *SettlementService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.Gateway.VerifyEvent(payload, signature, s.opts.WebhookSecret)
	if err != nil {
		if errors.Is(err, errors.Unauthorized) || errors.Is(err, errors.BadRequest) {
			return err
		}
		return errors.Unauthorizedf("verifying webhook: %v", err)
	}
	if ev.Type != gateway.EventCheckoutCompleted {
		s.Logger.DebugContext(ctx, "ignoring webhook event", "event_id", ev.ID, "type", ev.Type)
		return nil
	}
	_, err = s.Complete(ctx, CompletionEvent{
		SessionID:        ev.SessionID,
		CorrelationToken: ev.Metadata[gateway.MetaCorrelationToken],
	})
	return err
}

// Complete applies a payment completion at most once per settlement.
//
// The paymentCompleted claim and the buyer's ownership copies commit in one
// transaction, so a redelivered event either finds the claim taken or, if
// the first attempt rolled back, redoes both. Transfers run after the commit.
func (s *SettlementService) Complete(ctx context.Context, ev CompletionEvent) (CompletionResult, error) {
	log := s.Logger.With("correlation_token", ev.CorrelationToken, "session_id", ev.SessionID)

	ignore := func(reason string) (CompletionResult, error) {
		log.WarnContext(ctx, "completion ignored", "reason", reason)
		metrics.CompletionsTotal.WithLabelValues(string(OutcomeIgnored)).Inc()
		return CompletionResult{Outcome: OutcomeIgnored}, nil
	}
	if ev.CorrelationToken == "" || ev.SessionID == "" {
		return ignore("event lacks correlation token or session")
	}

	rec, err := s.Repos.Settlements.GetByCorrelationToken(ctx, ev.CorrelationToken)
	if errors.Is(err, errors.NotFound) {
		return ignore("unknown correlation token")
	}
	if err != nil {
		return CompletionResult{}, errors.Annotate(err, "loading settlement")
	}
	if rec.SessionID == "" || rec.SessionID != ev.SessionID {
		return ignore("session does not match settlement")
	}

	claimed := false
	err = s.Repos.Tx.WithTx(ctx, func(tx repository.Repositories) error {
		ok, err := tx.Settlements.MarkPaid(ctx, ev.CorrelationToken, ev.SessionID)
		if err != nil || !ok {
			return err
		}
		claimed = true
		return s.copyOwnership(ctx, tx, rec)
	})
	if err != nil {
		return CompletionResult{}, errors.Annotatef(err, "completing settlement %s", rec.ID)
	}
	if !claimed {
		log.InfoContext(ctx, "duplicate completion", "settlement_id", rec.ID)
		metrics.CompletionsTotal.WithLabelValues(string(OutcomeDuplicate)).Inc()
		rec, err = s.Repos.Settlements.GetByID(ctx, rec.ID)
		return CompletionResult{Outcome: OutcomeDuplicate, Settlement: rec}, errors.Trace(err)
	}

	// The claim is committed. Dropping the request now would leave the record
	// paid with no transfer outcome, so the rest runs to completion.
	ctx = context.WithoutCancel(ctx)
	failed := s.disburse(ctx, rec)
	final, err := s.recordTransfers(ctx, rec.ID, failed)
	if err != nil {
		log.ErrorContext(ctx, "transfer outcome not recorded", "settlement_id", rec.ID, "failed", failed, "err", err)
		return CompletionResult{}, errors.Annotatef(err, "recording transfers for settlement %s", rec.ID)
	}

	outcome := OutcomeSettled
	if len(final.FailedTransfers) > 0 {
		outcome = OutcomePartial
	}
	metrics.CompletionsTotal.WithLabelValues(string(outcome)).Inc()
	s.audit(models.AuditEntitySettlement, rec.ID, "payment_completed", map[string]any{
		"outcome":          string(outcome),
		"failed_transfers": final.FailedTransfers,
	})
	log.InfoContext(ctx, "settlement completed",
		"settlement_id", rec.ID, "outcome", outcome, "failed_transfers", final.FailedTransfers)
	return CompletionResult{Outcome: outcome, Settlement: final}, nil
}

// copyOwnership creates the buyer's private, zero-priced copy of every
// purchased item. The sellers' originals are left untouched.
func (s *SettlementService) copyOwnership(ctx context.Context, tx repository.Repositories, rec models.Settlement) error {
	originals, err := tx.Items.GetMany(ctx, rec.ItemIDs())
	if err != nil {
		return errors.Annotate(err, "loading purchased items")
	}
	for _, si := range rec.Items {
		orig, ok := originals[si.ItemID]
		if !ok {
			return errors.NotFoundf("purchased item %s", si.ItemID)
		}
		if _, err := tx.Items.Create(ctx, orig.OwnershipCopy(rec.BuyerID)); err != nil {
			return errors.Annotatef(err, "copying item %s to buyer", si.ItemID)
		}
	}
	return nil
}

// disburse pays every seller concurrently and returns the sellers whose leg
// failed. Legs are independent: one failure never cancels another.
func (s *SettlementService) disburse(ctx context.Context, rec models.Settlement) []string {
	sellers, err := s.Repos.Users.GetMany(ctx, rec.SellerIDs())
	if err != nil {
		s.Logger.ErrorContext(ctx, "loading sellers failed; every leg marked failed", "settlement_id", rec.ID, "err", err)
		return rec.SellerIDs()
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []string
	)
	g.SetLimit(s.opts.TransferConcurrency)
	for _, p := range rec.Payouts {
		p := p
		g.Go(func() error {
			err := transferLeg(ctx, s.Gateway, s.opts.TransferTimeout, s.Currency, rec.CorrelationToken, p, sellers[p.SellerID])
			if err != nil {
				s.Logger.WarnContext(ctx, "seller transfer failed",
					"settlement_id", rec.ID, "seller_id", p.SellerID, "amount", p.Amount, "err", err)
				mu.Lock()
				failed = append(failed, p.SellerID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return models.NormalizeFailed(failed)
}

// recordTransfers retries the final write briefly: by now money has moved and
// losing the outcome would hide it from reconciliation.
func (s *SettlementService) recordTransfers(ctx context.Context, id string, failed []string) (models.Settlement, error) {
	var final models.Settlement
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			final, err = s.Repos.Settlements.RecordTransfers(ctx, id, failed)
			return err
		},
		IsFatalError: func(err error) bool { return errors.Is(err, errors.NotValid) },
		Attempts:     3,
		Delay:        50 * time.Millisecond,
		BackoffFunc:  retry.DoubleDelay,
		Clock:        s.Clock,
		Stop:         ctx.Done(),
	})
	if err != nil {
		return final, retry.LastError(err)
	}
	return final, nil
}

// transferLeg moves one seller's payout. A seller without a payout account
// is a failed leg.
func transferLeg(ctx context.Context, gw gateway.Gateway, timeout time.Duration, currency, token string, p models.Payout, seller models.User) error {
	if !seller.CanReceivePayouts() {
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return errors.NotValidf("seller %s has no payout account", p.SellerID)
	}
	if p.Amount <= 0 {
		return nil
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, err := gw.TransferFunds(tctx, gateway.Transfer{
		Amount:           p.Amount,
		Currency:         currency,
		Destination:      seller.PayoutAccount,
		CorrelationToken: token,
	})
	metrics.TransferDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return errors.Annotatef(err, "transfer to seller %s", p.SellerID)
	}
	metrics.TransfersTotal.WithLabelValues("ok").Inc()
	return nil
}
