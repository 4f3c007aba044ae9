package services

import (
	"context"
	"net/url"
	"strings"

	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/api/validate"
	"github.com/baharkarakas/pixelmart/internal/fees"
	"github.com/baharkarakas/pixelmart/internal/gateway"
	"github.com/baharkarakas/pixelmart/internal/metrics"
	"github.com/baharkarakas/pixelmart/internal/models"
)

type CheckoutRequest struct {
	ItemIDs      []string `json:"images"`
	DiscountCode string   `json:"discountCode,omitempty"`
	CurrentURL   string   `json:"currentUrl"`
}

func (r CheckoutRequest) validate() error {
	var errs validate.Errs
	errs.Add(
		validate.NonEmpty("images", len(r.ItemIDs)),
		validate.Unique("images", r.ItemIDs),
		validate.AbsoluteURL("currentUrl", r.CurrentURL),
	)
	for _, id := range r.ItemIDs {
		if f := validate.Required("images", id); f != nil {
			errs.Add(f)
			break
		}
	}
	return errs.Err()
}

type CheckoutResult struct {
	// PaymentLink is the hosted payment page the buyer is sent to.
	PaymentLink string `json:"paymentLink"`
	// URL is where the buyer lands after a successful payment.
	URL              string `json:"url"`
	SettlementID     string `json:"settlementId"`
	CorrelationToken string `json:"correlationToken"`
}

type CheckoutService struct {
	Deps
}

func NewCheckoutService(d Deps) *CheckoutService {
	return &CheckoutService{Deps: d.withDefaults()}
}

// Checkout turns the buyer's selection into a pending settlement record and a
// hosted payment session. Nothing is persisted when validation fails. A
// failure after the record is stored leaves it without a session reference,
// so no completion event can ever match it.
func (s *CheckoutService) Checkout(ctx context.Context, buyerID string, req CheckoutRequest) (res CheckoutResult, err error) {
	defer func() {
		switch {
		case err == nil:
			metrics.CheckoutsTotal.WithLabelValues("created").Inc()
		case isClientError(err):
			metrics.CheckoutsTotal.WithLabelValues("rejected").Inc()
		default:
			metrics.CheckoutsTotal.WithLabelValues("error").Inc()
		}
	}()

	req.DiscountCode = strings.TrimSpace(req.DiscountCode)
	if err := req.validate(); err != nil {
		return CheckoutResult{}, err
	}
	successURL, cancelURL, err := returnURLs(req.CurrentURL)
	if err != nil {
		return CheckoutResult{}, err
	}

	buyer, err := s.Repos.Users.GetByID(ctx, buyerID)
	if err != nil {
		return CheckoutResult{}, errors.Annotate(err, "loading buyer")
	}
	items, err := s.loadCart(ctx, buyerID, req.ItemIDs)
	if err != nil {
		return CheckoutResult{}, err
	}
	if req.DiscountCode != "" {
		if _, err := s.VerifyDiscount(ctx, req.DiscountCode); err != nil {
			return CheckoutResult{}, err
		}
	}

	lines := make([]fees.Line, len(items))
	for i, it := range items {
		lines[i] = fees.Line{SellerID: it.OwnerID, Price: it.Price}
	}
	totals, err := s.Fees.Aggregate(lines)
	if err != nil {
		return CheckoutResult{}, errors.Annotate(err, "computing fees")
	}

	rec, err := s.createRecord(ctx, buyer, items, totals, req.DiscountCode)
	if err != nil {
		return CheckoutResult{}, err
	}

	lineItems := make([]gateway.LineItem, len(items))
	for i, it := range items {
		lineItems[i] = gateway.LineItem{ItemID: it.ID, PriceHandle: it.PriceHandle, Quantity: 1}
	}
	session, err := s.Gateway.CreateCheckoutSession(ctx, gateway.SessionRequest{
		LineItems:        lineItems,
		SuccessURL:       successURL,
		CancelURL:        cancelURL,
		CustomerHandle:   buyer.CustomerHandle,
		BuyerID:          buyer.ID,
		ItemIDs:          rec.ItemIDs(),
		CorrelationToken: rec.CorrelationToken,
		DiscountCode:     req.DiscountCode,
	})
	if err != nil {
		s.Logger.WarnContext(ctx, "checkout session failed; record left orphaned",
			"settlement_id", rec.ID, "correlation_token", rec.CorrelationToken, "err", err)
		return CheckoutResult{}, errors.Annotate(err, "creating payment session")
	}
	if err := s.Repos.Settlements.AttachSession(ctx, rec.ID, session.ID); err != nil {
		return CheckoutResult{}, errors.Annotate(err, "attaching payment session")
	}

	s.audit(models.AuditEntitySettlement, rec.ID, "checkout_created", map[string]any{
		"buyer_id":          buyer.ID,
		"items":             len(items),
		"total_price":       rec.TotalPrice,
		"correlation_token": rec.CorrelationToken,
	})
	s.Logger.InfoContext(ctx, "checkout created",
		"settlement_id", rec.ID, "buyer_id", buyer.ID, "total_price", rec.TotalPrice, "sellers", len(rec.Payouts))

	return CheckoutResult{
		PaymentLink:      session.PaymentURL,
		URL:              successURL,
		SettlementID:     rec.ID,
		CorrelationToken: rec.CorrelationToken,
	}, nil
}

// loadCart resolves ids in request order. Missing, deleted and other users'
// private items are all reported as not found.
func (s *CheckoutService) loadCart(ctx context.Context, buyerID string, ids []string) ([]models.Item, error) {
	found, err := s.Repos.Items.GetMany(ctx, ids)
	if err != nil {
		return nil, errors.Annotate(err, "loading items")
	}
	items := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		it, ok := found[id]
		if !ok || !it.VisibleTo(buyerID) {
			return nil, errors.NotFoundf("item %s", id)
		}
		items = append(items, it)
	}
	for _, it := range items {
		switch {
		case it.OwnerID == buyerID:
			return nil, errors.Forbiddenf("item %s already belongs to the buyer", it.ID)
		case !it.Chargeable():
			return nil, errors.BadRequestf("item %s is not for sale", it.ID)
		case it.PriceHandle == "":
			return nil, errors.BadRequestf("item %s is not listed for sale", it.ID)
		}
	}
	return items, nil
}

const maxTokenAttempts = 3

func (s *CheckoutService) createRecord(ctx context.Context, buyer models.User, items []models.Item, totals fees.Totals, discount string) (models.Settlement, error) {
	rec := models.Settlement{
		BuyerID:       buyer.ID,
		Items:         make([]models.SettlementItem, len(items)),
		TotalPrice:    totals.TotalPrice,
		PlatformFee:   totals.PlatformFee,
		ProcessingFee: totals.ProcessingFee,
		Payouts:       make([]models.Payout, len(totals.Payouts)),
		DiscountCode:  discount,
	}
	for i, it := range items {
		rec.Items[i] = models.SettlementItem{ItemID: it.ID, SellerID: it.OwnerID, Price: it.Price}
	}
	for i, p := range totals.Payouts {
		rec.Payouts[i] = models.Payout{SellerID: p.SellerID, Amount: p.Amount}
	}
	if !rec.Balanced() {
		return models.Settlement{}, errors.Errorf("unbalanced settlement for buyer %s", buyer.ID)
	}

	for attempt := 1; ; attempt++ {
		rec.CorrelationToken = NewCorrelationToken(rec.SellerIDs(), s.Clock.Now())
		created, err := s.Repos.Settlements.Create(ctx, rec)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, errors.AlreadyExists) || attempt == maxTokenAttempts {
			return models.Settlement{}, errors.Annotate(err, "storing settlement")
		}
	}
}

// VerifyDiscount checks a discount code without starting a checkout.
func (s *CheckoutService) VerifyDiscount(ctx context.Context, code string) (gateway.Discount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return gateway.Discount{}, errors.BadRequestf("empty discount code")
	}
	d, err := s.Gateway.LookupDiscount(ctx, code)
	if errors.Is(err, errors.NotFound) {
		return gateway.Discount{}, errors.BadRequestf("unknown discount code %q", code)
	}
	if err != nil {
		return gateway.Discount{}, errors.Annotate(err, "looking up discount")
	}
	switch {
	case d.Deleted || !d.Valid:
		return gateway.Discount{}, errors.Forbiddenf("discount code %q is no longer valid", code)
	case d.Expired(s.Clock.Now()):
		return gateway.Discount{}, errors.Forbiddenf("discount code %q has expired", code)
	case d.Exhausted():
		return gateway.Discount{}, errors.Forbiddenf("discount code %q has been fully redeemed", code)
	}
	return d, nil
}

// returnURLs derives where the provider sends the buyer back to, keeping any
// query the storefront page already had.
func returnURLs(current string) (success, cancel string, err error) {
	u, err := url.Parse(current)
	if err != nil {
		return "", "", errors.BadRequestf("invalid currentUrl: %v", err)
	}
	with := func(state string) string {
		c := *u
		q := c.Query()
		q.Set("checkout", state)
		c.RawQuery = q.Encode()
		c.Fragment = ""
		return c.String()
	}
	return with("success"), with("cancelled"), nil
}

func isClientError(err error) bool {
	return errors.Is(err, errors.BadRequest) ||
		errors.Is(err, errors.NotFound) ||
		errors.Is(err, errors.Forbidden) ||
		errors.Is(err, errors.Unauthorized)
}
