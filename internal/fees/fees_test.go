package fees

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		price int64
		want  Breakdown
	}{
		{"zero", 0, Breakdown{Price: 0}},
		{"ten dollars", 1000, Breakdown{Price: 1000, ProcessingFee: 40, PlatformFee: 10, NetToSeller: 950}},
		{"twenty dollars", 2000, Breakdown{Price: 2000, ProcessingFee: 80, PlatformFee: 20, NetToSeller: 1900}},
		// 4% of 13 = 0.52 -> 1, 5% of 13 = 0.65 -> 1, platform gets 0
		{"tiny price", 13, Breakdown{Price: 13, ProcessingFee: 1, PlatformFee: 0, NetToSeller: 12}},
		// 4% of 1250 = 50, 5% of 1250 = 62.5 -> 63, residue lands on platform
		{"half cent rounds up", 1250, Breakdown{Price: 1250, ProcessingFee: 50, PlatformFee: 13, NetToSeller: 1187}},
		{"one cent", 1, Breakdown{Price: 1, NetToSeller: 1}},
	}

	c := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Split(tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitSumsToPrice(t *testing.T) {
	c := Default()
	prices := []int64{999_999_999, 123_456_789}
	for p := int64(0); p <= 20_000; p++ {
		prices = append(prices, p)
	}
	for _, p := range prices {
		b, err := c.Split(p)
		require.NoError(t, err)
		if b.ProcessingFee+b.PlatformFee+b.NetToSeller != p {
			t.Fatalf("price %d: %d + %d + %d != %d", p, b.ProcessingFee, b.PlatformFee, b.NetToSeller, p)
		}
		if b.PlatformFee < 0 || b.NetToSeller < 0 {
			t.Fatalf("price %d produced negative component: %+v", p, b)
		}
	}
}

func TestSplitRejectsNegativePrice(t *testing.T) {
	_, err := Default().Split(-1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.BadRequest))
}

func TestNewCalculatorValidatesRates(t *testing.T) {
	_, err := NewCalculator(-1, 100)
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = NewCalculator(9000, 1001)
	assert.True(t, errors.Is(err, errors.NotValid))

	c, err := NewCalculator(290, 0)
	require.NoError(t, err)
	b, err := c.Split(1000)
	require.NoError(t, err)
	assert.Equal(t, int64(29), b.ProcessingFee)
	assert.Equal(t, int64(0), b.PlatformFee)
}

func TestAggregate(t *testing.T) {
	c := Default()

	t.Run("two sellers", func(t *testing.T) {
		totals, err := c.Aggregate([]Line{
			{SellerID: "x", Price: 1000},
			{SellerID: "y", Price: 2000},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3000), totals.TotalPrice)
		assert.Equal(t, int64(30), totals.PlatformFee)
		assert.Equal(t, int64(120), totals.ProcessingFee)
		assert.Equal(t, []SellerPayout{{"x", 950}, {"y", 1900}}, totals.Payouts)
	})

	t.Run("same seller collapses into one payout", func(t *testing.T) {
		lines := []Line{
			{SellerID: "x", Price: 1250},
			{SellerID: "y", Price: 500},
			{SellerID: "x", Price: 13},
			{SellerID: "x", Price: 1000},
		}
		totals, err := c.Aggregate(lines)
		require.NoError(t, err)
		require.Len(t, totals.Payouts, 2)
		assert.Equal(t, "x", totals.Payouts[0].SellerID)

		var want int64
		for _, l := range lines {
			if l.SellerID != "x" {
				continue
			}
			b, _ := c.Split(l.Price)
			want += b.NetToSeller
		}
		assert.Equal(t, want, totals.Payouts[0].Amount)

		sum := totals.PlatformFee + totals.ProcessingFee
		for _, p := range totals.Payouts {
			sum += p.Amount
		}
		assert.Equal(t, totals.TotalPrice, sum)
	})
}
