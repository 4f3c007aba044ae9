package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/pixelmart/internal/gateway"
	"github.com/baharkarakas/pixelmart/internal/gateway/gatewaytest"
	"github.com/baharkarakas/pixelmart/internal/models"
	"github.com/baharkarakas/pixelmart/internal/repository/sqlite/sqlitetest"
)

func TestWebhookSettlesScenario(t *testing.T) {
	h := newHarness(t)
	rec := h.checkoutBoth()

	payload, sig := h.completionPayload(rec)
	require.NoError(t, h.settle.HandleWebhook(h.ctx, payload, sig))

	got, err := h.repos.Settlements.GetByID(h.ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementSettled, got.State())
	assert.True(t, got.PaymentCompleted)
	assert.True(t, got.TransferCompleted)
	assert.Empty(t, got.FailedTransfers)

	s1 := h.gw.TransfersTo("acct_s1")
	s2 := h.gw.TransfersTo("acct_s2")
	require.Len(t, s1, 1)
	require.Len(t, s2, 1)
	assert.Equal(t, int64(950), s1[0].Amount)
	assert.Equal(t, int64(1900), s2[0].Amount)
	assert.Equal(t, rec.CorrelationToken, s1[0].CorrelationToken)
	assert.Equal(t, "usd", s2[0].Currency)

	copies := h.buyerCopies()
	require.Len(t, copies, 2)
	sellers := map[string]bool{}
	for _, c := range copies {
		assert.Zero(t, c.Price)
		assert.False(t, c.IsPublic)
		assert.Empty(t, c.PriceHandle)
		sellers[c.OriginalUser] = true
	}
	assert.Equal(t, map[string]bool{h.s1.ID: true, h.s2.ID: true}, sellers)

	orig, err := h.repos.Items.GetByID(h.ctx, h.i1.ID)
	require.NoError(t, err)
	assert.Equal(t, h.s1.ID, orig.OwnerID, "seller keeps the original")
	assert.Equal(t, int64(1000), orig.Price)
}

func TestCompletionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	rec := h.checkoutBoth()

	first := h.complete(rec)
	assert.Equal(t, OutcomeSettled, first.Outcome)
	second := h.complete(rec)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, models.SettlementSettled, second.Settlement.State())

	assert.Len(t, h.buyerCopies(), 2)
	assert.Len(t, h.gw.TransfersTo("acct_s1"), 1)
	assert.Len(t, h.gw.TransfersTo("acct_s2"), 1)
}

func TestConcurrentDuplicateDeliveries(t *testing.T) {
	h := newHarness(t)
	rec := h.checkoutBoth()

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []CompletionOutcome
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.settle.Complete(h.ctx, CompletionEvent{SessionID: rec.SessionID, CorrelationToken: rec.CorrelationToken})
			assert.NoError(t, err)
			mu.Lock()
			outcomes = append(outcomes, res.Outcome)
			mu.Unlock()
		}()
	}
	wg.Wait()

	settled := 0
	for _, o := range outcomes {
		if o == OutcomeSettled {
			settled++
		}
	}
	assert.Equal(t, 1, settled)
	assert.Len(t, h.buyerCopies(), 2)
	assert.Len(t, h.gw.TransfersTo("acct_s1"), 1)
	assert.Len(t, h.gw.TransfersTo("acct_s2"), 1)
}

func TestPartialTransferFailure(t *testing.T) {
	h := newHarness(t)
	rec := h.checkoutBoth()
	h.gw.SetTransferFailure("acct_s2", errors.New("account restricted"))

	res := h.complete(rec)
	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.Equal(t, models.SettlementPartialFailure, res.Settlement.State())
	assert.True(t, res.Settlement.PaymentCompleted)
	assert.False(t, res.Settlement.TransferCompleted)
	assert.Equal(t, []string{h.s2.ID}, res.Settlement.FailedTransfers)

	assert.Len(t, h.buyerCopies(), 2, "ownership is not rolled back")
	assert.Len(t, h.gw.TransfersTo("acct_s1"), 1)
}

func TestSellerWithoutPayoutAccountFailsLeg(t *testing.T) {
	h := newHarness(t)
	unpayable := sqlitetest.User(t, h.repos, "seller3", "")
	it := sqlitetest.Item(t, h.repos, unpayable, 400)

	res, err := h.checkout.Checkout(h.ctx, h.buyer.ID, h.request(h.i1.ID, it.ID))
	require.NoError(t, err)
	rec, err := h.repos.Settlements.GetByID(h.ctx, res.SettlementID)
	require.NoError(t, err)

	out := h.complete(rec)
	assert.Equal(t, OutcomePartial, out.Outcome)
	assert.Equal(t, []string{unpayable.ID}, out.Settlement.FailedTransfers)
	assert.Len(t, h.gw.TransfersTo("acct_s1"), 1)
}

func TestTransferTimeoutIsFailedLeg(t *testing.T) {
	h := newHarness(t)
	rec := h.checkoutBoth()
	h.gw.TransferDelay = 500 * time.Millisecond
	h.settle.opts.TransferTimeout = 20 * time.Millisecond

	res := h.complete(rec)
	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.ElementsMatch(t, []string{h.s1.ID, h.s2.ID}, res.Settlement.FailedTransfers)
}

func TestCompletionSurvivesCancelledRequest(t *testing.T) {
	h := newHarness(t)
	rec := h.checkoutBoth()

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	// The caller goes away once money starts moving.
	h.gw.OnTransfer = func(gateway.Transfer) { cancel() }
	h.gw.TransferDelay = 50 * time.Millisecond

	res, err := h.settle.Complete(ctx, CompletionEvent{SessionID: rec.SessionID, CorrelationToken: rec.CorrelationToken})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	require.Error(t, ctx.Err())

	got, err := h.repos.Settlements.GetByID(h.ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementSettled, got.State())
	assert.Empty(t, got.FailedTransfers)
	assert.Len(t, h.gw.TransfersTo("acct_s1"), 1)
	assert.Len(t, h.gw.TransfersTo("acct_s2"), 1)
}

func TestRecordTransfersReturnsNoErrorOnSuccess(t *testing.T) {
	h := newHarness(t)
	rec := h.checkoutBoth()
	claimed, err := h.repos.Settlements.MarkPaid(h.ctx, rec.CorrelationToken, rec.SessionID)
	require.NoError(t, err)
	require.True(t, claimed)

	final, err := h.settle.recordTransfers(h.ctx, rec.ID, []string{h.s2.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{h.s2.ID}, final.FailedTransfers)
}

func TestCompletionIgnoresUnknownAndMismatched(t *testing.T) {
	h := newHarness(t)
	rec := h.checkoutBoth()

	for name, ev := range map[string]CompletionEvent{
		"unknown token":   {SessionID: rec.SessionID, CorrelationToken: "tg_unknown"},
		"other session":   {SessionID: "cs_other", CorrelationToken: rec.CorrelationToken},
		"missing token":   {SessionID: rec.SessionID},
		"missing session": {CorrelationToken: rec.CorrelationToken},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := h.settle.Complete(h.ctx, ev)
			require.NoError(t, err)
			assert.Equal(t, OutcomeIgnored, res.Outcome)
		})
	}

	got, err := h.repos.Settlements.GetByID(h.ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementPending, got.State())
	assert.Empty(t, h.buyerCopies())
	assert.Empty(t, h.gw.Transfers)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	rec := h.checkoutBoth()
	payload, _ := h.completionPayload(rec)

	err := h.settle.HandleWebhook(h.ctx, payload, gatewaytest.Sign(payload, "wrong"))
	assert.True(t, errors.Is(err, errors.Unauthorized), "got %v", err)

	got, err := h.repos.Settlements.GetByID(h.ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.PaymentCompleted)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	h := newHarness(t)
	rec := h.checkoutBoth()
	payload := gatewaytest.Payload(gateway.Event{
		ID:        "evt_x",
		Type:      "charge.refunded",
		SessionID: rec.SessionID,
		Metadata:  map[string]string{gateway.MetaCorrelationToken: rec.CorrelationToken},
	})

	require.NoError(t, h.settle.HandleWebhook(h.ctx, payload, gatewaytest.Sign(payload, webhookSecret)))
	got, err := h.repos.Settlements.GetByID(h.ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, got.PaymentCompleted)
}
