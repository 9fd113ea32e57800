package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/config"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

func TestComputeStandardCardFee(t *testing.T) {
	fees := NewFeeCalculator(config.DefaultProviders())

	// 2.9% of 100.00 + 0.30 = 3.20
	fee := fees.Compute("stripe", decimal.RequireFromString("100.00"), "USD")
	require.True(t, fee.Amount.Equal(decimal.RequireFromString("3.20")), "got %s", fee.Amount)
	require.Equal(t, "USD", fee.Currency)
}

func TestComputeIsDeterministic(t *testing.T) {
	fees := NewFeeCalculator(config.DefaultProviders())
	amount := decimal.RequireFromString("73.41")

	first := fees.Compute("paypal", amount, "USD")
	for i := 0; i < 10; i++ {
		again := fees.Compute("paypal", amount, "USD")
		require.True(t, first.Amount.Equal(again.Amount))
	}
}

func TestComputeRoundsHalfEven(t *testing.T) {
	fees := NewFeeCalculator([]models.ProviderConfig{{
		Name: "flat",
		Fees: models.FeeSchedule{
			Percentage: decimal.NewFromInt(10),
			Fixed:      decimal.Zero,
			Currency:   "USD",
		},
	}})

	// 10% of 0.25 = 0.025 -> rounds half-even to 0.02
	fee := fees.Compute("flat", decimal.RequireFromString("0.25"), "USD")
	require.True(t, fee.Amount.Equal(decimal.RequireFromString("0.02")), "got %s", fee.Amount)

	// 10% of 0.35 = 0.035 -> rounds half-even to 0.04
	fee = fees.Compute("flat", decimal.RequireFromString("0.35"), "USD")
	require.True(t, fee.Amount.Equal(decimal.RequireFromString("0.04")), "got %s", fee.Amount)
}

func TestComputeUsesCurrencyPrecision(t *testing.T) {
	fees := NewFeeCalculator(config.DefaultProviders())

	// JPY has no minor unit: the fee is a whole number of yen.
	fee := fees.Compute("stripe", decimal.NewFromInt(1000), "JPY")
	require.True(t, fee.Amount.IsInteger(), "got %s", fee.Amount)
}

func TestComputeNetPlusFeeStaysBounded(t *testing.T) {
	fees := NewFeeCalculator(config.DefaultProviders())

	for _, raw := range []string{"0.50", "1.00", "19.99", "100.00", "2500.75"} {
		amount := decimal.RequireFromString(raw)
		fee := fees.Compute("stripe", amount, "USD")
		// percentage <= 100 means the percentage part never exceeds the
		// amount itself.
		require.True(t, fee.Amount.LessThanOrEqual(amount.Add(decimal.RequireFromString("0.30"))))
		net := amount.Sub(fee.Amount)
		require.True(t, net.Add(fee.Amount).Equal(amount))
	}
}

func TestComputeUnknownProvider(t *testing.T) {
	fees := NewFeeCalculator(config.DefaultProviders())
	fee := fees.Compute("nobody", decimal.NewFromInt(100), "USD")
	require.True(t, fee.Amount.IsZero())
}
