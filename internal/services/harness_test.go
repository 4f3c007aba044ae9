package services

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/pixelmart/internal/fees"
	"github.com/baharkarakas/pixelmart/internal/gateway"
	"github.com/baharkarakas/pixelmart/internal/gateway/gatewaytest"
	"github.com/baharkarakas/pixelmart/internal/logger"
	"github.com/baharkarakas/pixelmart/internal/models"
	"github.com/baharkarakas/pixelmart/internal/repository"
	"github.com/baharkarakas/pixelmart/internal/repository/sqlite/sqlitetest"
)

const webhookSecret = "whsec_test"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	ctx   context.Context
	repos repository.Repositories
	gw    *gatewaytest.Fake
	clock *testclock.Clock
	deps  Deps

	checkout *CheckoutService
	settle   *SettlementService
	recon    *Reconciler
	items    *ItemService
	queries  *SettlementQueries

	buyer, s1, s2 models.User
	i1, i2        models.Item
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		repos: sqlitetest.New(t),
		gw:    gatewaytest.New(),
		clock: testclock.NewClock(epoch),
	}
	d := Deps{
		Repos:    h.repos,
		Gateway:  h.gw,
		Fees:     fees.Default(),
		Clock:    h.clock,
		Logger:   logger.Discard(),
		Currency: "usd",
	}
	h.checkout = NewCheckoutService(d)
	h.settle = NewSettlementService(d, SettlementOptions{
		WebhookSecret:       webhookSecret,
		TransferTimeout:     time.Second,
		TransferConcurrency: 4,
	})
	h.items = NewItemService(d)
	h.queries = NewSettlementQueries(d)

	h.deps = d
	h.recon = h.reconciler()

	h.buyer = sqlitetest.User(t, h.repos, "buyer", "")
	h.s1 = sqlitetest.User(t, h.repos, "seller1", "acct_s1")
	h.s2 = sqlitetest.User(t, h.repos, "seller2", "acct_s2")
	h.i1 = sqlitetest.Item(t, h.repos, h.s1, 1000)
	h.i2 = sqlitetest.Item(t, h.repos, h.s2, 2000)
	return h
}

// reconciler returns a Reconciler sharing the harness store, the way a second
// process would.
func (h *harness) reconciler() *Reconciler {
	// Reconciliation sleeps between attempts; keep it on the wall clock.
	rd := h.deps
	rd.Clock = clock.WallClock
	return NewReconciler(rd, ReconcileOptions{Attempts: 2, Delay: time.Millisecond, TransferTimeout: time.Second})
}

func (h *harness) request(ids ...string) CheckoutRequest {
	return CheckoutRequest{ItemIDs: ids, CurrentURL: "https://shop.example.test/cart?tab=1"}
}

// checkoutBoth runs the two-seller scenario and returns the pending record.
func (h *harness) checkoutBoth() models.Settlement {
	h.t.Helper()
	res, err := h.checkout.Checkout(h.ctx, h.buyer.ID, h.request(h.i1.ID, h.i2.ID))
	require.NoError(h.t, err)
	rec, err := h.repos.Settlements.GetByID(h.ctx, res.SettlementID)
	require.NoError(h.t, err)
	return rec
}

func (h *harness) completionPayload(rec models.Settlement) ([]byte, string) {
	payload := gatewaytest.Payload(gateway.Event{
		ID:        "evt_" + rec.ID,
		Type:      gateway.EventCheckoutCompleted,
		SessionID: rec.SessionID,
		Metadata: map[string]string{
			gateway.MetaCorrelationToken: rec.CorrelationToken,
			gateway.MetaBuyerID:          rec.BuyerID,
		},
	})
	return payload, gatewaytest.Sign(payload, webhookSecret)
}

func (h *harness) complete(rec models.Settlement) CompletionResult {
	h.t.Helper()
	res, err := h.settle.Complete(h.ctx, CompletionEvent{SessionID: rec.SessionID, CorrelationToken: rec.CorrelationToken})
	require.NoError(h.t, err)
	return res
}

func (h *harness) buyerCopies() []models.Item {
	h.t.Helper()
	items, err := h.repos.Items.ListByOwner(h.ctx, h.buyer.ID)
	require.NoError(h.t, err)
	return items
}
