package models

import (
	"sort"
	"time"

	"github.com/juju/errors"
)

// ErrTransferOutcomeUnknown marks a paid settlement whose disbursement result
// was never recorded. Which sellers were paid cannot be told from storage.
const ErrTransferOutcomeUnknown = errors.ConstError("transfer outcome unknown")

type SettlementState string

const (
	SettlementPending             SettlementState = "pending"
	SettlementPaidPendingTransfer SettlementState = "paid_pending_transfer"
	SettlementSettled             SettlementState = "settled"
	SettlementPartialFailure      SettlementState = "paid_partial_transfer_failure"
)

// SettlementItem is one purchased item with the seller and price locked at checkout.
type SettlementItem struct {
	ItemID   string `json:"item_id"`
	SellerID string `json:"seller_id"`
	Price    int64  `json:"price"`
}

// Payout is the net amount owed to one seller.
type Payout struct {
	SellerID string `json:"seller_id"`
	Amount   int64  `json:"amount"`
}

// Settlement records one checkout's expected disbursement plan and how far it got.
type Settlement struct {
	ID                string           `json:"id"`
	BuyerID           string           `json:"buyer_id"`
	Items             []SettlementItem `json:"items"`
	TotalPrice        int64            `json:"total_price"`
	PlatformFee       int64            `json:"platform_fee"`
	ProcessingFee     int64            `json:"processing_fee"`
	Payouts           []Payout         `json:"payouts"`
	CorrelationToken  string           `json:"correlation_token"`
	SessionID         string           `json:"session_id,omitempty"`
	DiscountCode      string           `json:"discount_code,omitempty"`
	PaymentCompleted  bool             `json:"payment_completed"`
	TransferCompleted bool             `json:"transfer_completed"`
	FailedTransfers   []string         `json:"failed_transfers"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// State derives the completion state from the two flags and the failed set.
func (s Settlement) State() SettlementState {
	switch {
	case !s.PaymentCompleted:
		return SettlementPending
	case s.TransferCompleted:
		return SettlementSettled
	case len(s.FailedTransfers) > 0:
		return SettlementPartialFailure
	default:
		return SettlementPaidPendingTransfer
	}
}

func (s Settlement) ItemIDs() []string {
	ids := make([]string, len(s.Items))
	for i, it := range s.Items {
		ids[i] = it.ItemID
	}
	return ids
}

// PayoutFor returns the payout owed to sellerID, if any.
func (s Settlement) PayoutFor(sellerID string) (Payout, bool) {
	for _, p := range s.Payouts {
		if p.SellerID == sellerID {
			return p, true
		}
	}
	return Payout{}, false
}

// HasFailedTransfer reports whether sellerID's leg is still outstanding.
func (s Settlement) HasFailedTransfer(sellerID string) bool {
	for _, id := range s.FailedTransfers {
		if id == sellerID {
			return true
		}
	}
	return false
}

// Involves reports whether userID is the buyer or one of the paid sellers.
func (s Settlement) Involves(userID string) bool {
	if s.BuyerID == userID {
		return true
	}
	_, ok := s.PayoutFor(userID)
	return ok
}

// Balanced checks sum(payouts) + fees == total price.
func (s Settlement) Balanced() bool {
	sum := s.PlatformFee + s.ProcessingFee
	for _, p := range s.Payouts {
		sum += p.Amount
	}
	return sum == s.TotalPrice
}

// SellerIDs returns the distinct sellers in payout order.
func (s Settlement) SellerIDs() []string {
	ids := make([]string, len(s.Payouts))
	for i, p := range s.Payouts {
		ids[i] = p.SellerID
	}
	return ids
}

// NormalizeFailed sorts and dedupes a failed-transfer set so stored values are stable.
func NormalizeFailed(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
