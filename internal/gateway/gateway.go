// Package gateway describes the payment provider capabilities checkout and
// settlement depend on. Concrete providers live in sub-packages.
package gateway

import (
	"context"
	"time"
)

// EventCheckoutCompleted is the only event type settlement acts on.
const EventCheckoutCompleted = "checkout.session.completed"

// Metadata keys carried on the hosted session and echoed back in its events.
const (
	MetaBuyerID          = "buyerId"
	MetaItemIDs          = "itemIds"
	MetaCorrelationToken = "correlationToken"
)

type LineItem struct {
	ItemID      string
	PriceHandle string
	Quantity    int64
}

type SessionRequest struct {
	LineItems        []LineItem
	SuccessURL       string
	CancelURL        string
	CustomerHandle   string
	BuyerID          string
	ItemIDs          []string
	CorrelationToken string
	DiscountCode     string
}

type Session struct {
	ID         string
	PaymentURL string
}

// Event is a verified provider notification.
type Event struct {
	ID        string
	Type      string
	SessionID string
	Metadata  map[string]string
}

type Transfer struct {
	Amount           int64
	Currency         string
	Destination      string
	CorrelationToken string
}

type TransferResult struct {
	ID string
}

// Discount mirrors the provider's coupon state.
type Discount struct {
	Code           string    `json:"code"`
	Valid          bool      `json:"valid"`
	Deleted        bool      `json:"deleted"`
	PercentOff     float64   `json:"percent_off,omitempty"`
	AmountOff      int64     `json:"amount_off,omitempty"`
	MaxRedemptions int64     `json:"max_redemptions,omitempty"`
	TimesRedeemed  int64     `json:"times_redeemed"`
	RedeemBy       time.Time `json:"redeem_by,omitempty"`
}

// Exhausted reports whether every allowed redemption has been used.
func (d Discount) Exhausted() bool {
	return d.MaxRedemptions > 0 && d.TimesRedeemed >= d.MaxRedemptions
}

// Expired reports whether the redeem-by deadline has passed at now.
func (d Discount) Expired(now time.Time) bool {
	return !d.RedeemBy.IsZero() && now.After(d.RedeemBy)
}

type PriceRequest struct {
	ItemID      string
	OwnerID     string
	Description string
	Amount      int64
	Currency    string
}

// Gateway is the full capability set a provider adapter offers.
//
// LookupDiscount returns an errors.NotFound error for unknown codes and
// VerifyEvent an errors.Unauthorized error for payloads it cannot authenticate.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (Session, error)
	VerifyEvent(payload []byte, signature, secret string) (Event, error)
	TransferFunds(ctx context.Context, t Transfer) (TransferResult, error)
	LookupDiscount(ctx context.Context, code string) (Discount, error)
	RegisterPrice(ctx context.Context, req PriceRequest) (string, error)
}
