// Package stripe implements gateway.Gateway on top of Stripe Checkout and
// Connect transfers.
package stripe

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/juju/errors"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/baharkarakas/pixelmart/internal/gateway"
)

// SignatureHeader carries the webhook signature on inbound events.
const SignatureHeader = "Stripe-Signature"

var _ gateway.Gateway = (*Adapter)(nil)

type Adapter struct {
	api      *client.API
	currency string
}

// New builds the adapter once at process start; the returned value is safe for
// concurrent use.
func New(secretKey, currency string) *Adapter {
	return &Adapter{
		api:      client.New(secretKey, nil),
		currency: strings.ToLower(currency),
	}
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error) {
	params := sessionParams(req)
	params.Context = ctx
	s, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return gateway.Session{}, errors.Annotate(err, "creating checkout session")
	}
	return gateway.Session{ID: s.ID, PaymentURL: s.URL}, nil
}

func sessionParams(req gateway.SessionRequest) *stripeapi.CheckoutSessionParams {
	lines := make([]*stripeapi.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		lines = append(lines, &stripeapi.CheckoutSessionLineItemParams{
			Price:    stripeapi.String(li.PriceHandle),
			Quantity: stripeapi.Int64(qty),
		})
	}

	params := &stripeapi.CheckoutSessionParams{
		Mode:       stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		LineItems:  lines,
		SuccessURL: stripeapi.String(req.SuccessURL),
		CancelURL:  stripeapi.String(req.CancelURL),
		PaymentIntentData: &stripeapi.CheckoutSessionPaymentIntentDataParams{
			TransferGroup: stripeapi.String(req.CorrelationToken),
		},
	}
	if req.CustomerHandle != "" {
		params.Customer = stripeapi.String(req.CustomerHandle)
	}
	if req.DiscountCode != "" {
		params.Discounts = []*stripeapi.CheckoutSessionDiscountParams{
			{Coupon: stripeapi.String(req.DiscountCode)},
		}
	}
	for k, v := range sessionMetadata(req) {
		params.AddMetadata(k, v)
	}
	return params
}

func sessionMetadata(req gateway.SessionRequest) map[string]string {
	return map[string]string{
		gateway.MetaBuyerID:          req.BuyerID,
		gateway.MetaItemIDs:          strings.Join(req.ItemIDs, ","),
		gateway.MetaCorrelationToken: req.CorrelationToken,
	}
}

// VerifyEvent checks the signature header against secret and decodes the event.
// API version mismatches are tolerated; the fields read here are stable.
func (a *Adapter) VerifyEvent(payload []byte, signature, secret string) (gateway.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return gateway.Event{}, errors.Unauthorizedf("webhook signature: %v", err)
	}
	return decodeEvent(ev)
}

func decodeEvent(ev stripeapi.Event) (gateway.Event, error) {
	out := gateway.Event{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != gateway.EventCheckoutCompleted || ev.Data == nil {
		return out, nil
	}
	var cs stripeapi.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return gateway.Event{}, errors.BadRequestf("decoding checkout session: %v", err)
	}
	out.SessionID = cs.ID
	out.Metadata = cs.Metadata
	return out, nil
}

func (a *Adapter) TransferFunds(ctx context.Context, t gateway.Transfer) (gateway.TransferResult, error) {
	currency := t.Currency
	if currency == "" {
		currency = a.currency
	}
	params := &stripeapi.TransferParams{
		Amount:        stripeapi.Int64(t.Amount),
		Currency:      stripeapi.String(currency),
		Destination:   stripeapi.String(t.Destination),
		TransferGroup: stripeapi.String(t.CorrelationToken),
	}
	params.Context = ctx
	tr, err := a.api.Transfers.New(params)
	if err != nil {
		return gateway.TransferResult{}, errors.Annotatef(err, "transfer to %s", t.Destination)
	}
	return gateway.TransferResult{ID: tr.ID}, nil
}

func (a *Adapter) LookupDiscount(ctx context.Context, code string) (gateway.Discount, error) {
	params := &stripeapi.CouponParams{}
	params.Context = ctx
	c, err := a.api.Coupons.Get(code, params)
	if err != nil {
		var serr *stripeapi.Error
		if errors.As(err, &serr) && (serr.HTTPStatusCode == 404 || serr.Code == stripeapi.ErrorCodeResourceMissing) {
			return gateway.Discount{}, errors.NotFoundf("discount code %q", code)
		}
		return gateway.Discount{}, errors.Annotate(err, "looking up discount")
	}
	return discountFromCoupon(c), nil
}

func discountFromCoupon(c *stripeapi.Coupon) gateway.Discount {
	d := gateway.Discount{
		Code:           c.ID,
		Valid:          c.Valid,
		Deleted:        c.Deleted,
		PercentOff:     c.PercentOff,
		AmountOff:      c.AmountOff,
		MaxRedemptions: c.MaxRedemptions,
		TimesRedeemed:  c.TimesRedeemed,
	}
	if c.RedeemBy > 0 {
		d.RedeemBy = time.Unix(c.RedeemBy, 0).UTC()
	}
	return d
}

// RegisterPrice creates a one-off product and price for a listed item and
// returns the price id used as the item's price handle.
func (a *Adapter) RegisterPrice(ctx context.Context, req gateway.PriceRequest) (string, error) {
	currency := req.Currency
	if currency == "" {
		currency = a.currency
	}
	name := req.Description
	if name == "" {
		name = "image " + req.ItemID
	}
	params := &stripeapi.PriceParams{
		Currency:   stripeapi.String(currency),
		UnitAmount: stripeapi.Int64(req.Amount),
		ProductData: &stripeapi.PriceProductDataParams{
			Name: stripeapi.String(name),
			Metadata: map[string]string{
				"itemId":  req.ItemID,
				"ownerId": req.OwnerID,
			},
		},
	}
	params.Context = ctx
	p, err := a.api.Prices.New(params)
	if err != nil {
		return "", errors.Annotatef(err, "registering price for item %s", req.ItemID)
	}
	return p.ID, nil
}
