// Package fees splits an item price into processing fee, platform fee and the
// seller's net payout.
//
// All amounts are integer minor units. Rates are basis points of the price and
// rounding is half-up to the minor unit. The processing fee is rounded on its
// own; the platform fee is whatever is left of the rounded combined fee, so the
// seller's payout only ever depends on the combined rate.
package fees

import (
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
)

const (
	DefaultProcessingBps = 400
	DefaultPlatformBps   = 100

	bpsDenominator = 10000
)

// Breakdown is the result of splitting a single price.
type Breakdown struct {
	Price         int64 `json:"price"`
	ProcessingFee int64 `json:"processing_fee"`
	PlatformFee   int64 `json:"platform_fee"`
	NetToSeller   int64 `json:"net_to_seller"`
}

type Calculator struct {
	ProcessingBps int64
	PlatformBps   int64
}

func NewCalculator(processingBps, platformBps int64) (Calculator, error) {
	if processingBps < 0 || platformBps < 0 {
		return Calculator{}, errors.NotValidf("negative fee rate")
	}
	if processingBps+platformBps > bpsDenominator {
		return Calculator{}, errors.NotValidf("fee rates above 100%%")
	}
	return Calculator{ProcessingBps: processingBps, PlatformBps: platformBps}, nil
}

// Default returns the 4% processing / 1% platform calculator.
func Default() Calculator {
	return Calculator{ProcessingBps: DefaultProcessingBps, PlatformBps: DefaultPlatformBps}
}

func (c Calculator) Split(price int64) (Breakdown, error) {
	if price < 0 {
		return Breakdown{}, errors.BadRequestf("negative price %d", price)
	}
	processing := applyRate(price, c.ProcessingBps)
	total := applyRate(price, c.ProcessingBps+c.PlatformBps)
	return Breakdown{
		Price:         price,
		ProcessingFee: processing,
		PlatformFee:   total - processing,
		NetToSeller:   price - total,
	}, nil
}

func applyRate(price, bps int64) int64 {
	// decimal.Round is half away from zero, which is half-up for price >= 0.
	return decimal.NewFromInt(price).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(bpsDenominator)).
		Round(0).
		IntPart()
}

// Line is a priced item attributed to a seller.
type Line struct {
	SellerID string
	Price    int64
}

// Totals aggregates a cart: fee totals and one payout per seller in first-seen order.
type Totals struct {
	TotalPrice    int64
	ProcessingFee int64
	PlatformFee   int64
	Payouts       []SellerPayout
}

type SellerPayout struct {
	SellerID string
	Amount   int64
}

func (c Calculator) Aggregate(lines []Line) (Totals, error) {
	var t Totals
	index := make(map[string]int)
	for _, l := range lines {
		b, err := c.Split(l.Price)
		if err != nil {
			return Totals{}, errors.Trace(err)
		}
		t.TotalPrice += b.Price
		t.ProcessingFee += b.ProcessingFee
		t.PlatformFee += b.PlatformFee
		if i, ok := index[l.SellerID]; ok {
			t.Payouts[i].Amount += b.NetToSeller
			continue
		}
		index[l.SellerID] = len(t.Payouts)
		t.Payouts = append(t.Payouts, SellerPayout{SellerID: l.SellerID, Amount: b.NetToSeller})
	}
	return t, nil
}
