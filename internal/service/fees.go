package service

import (
	"github.com/shopspring/decimal"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

// FeeCalculator computes the processor's cut from a per-provider schedule.
// Pure: it never touches ledger state, and the result is frozen into the
// transaction at processing time so later schedule changes cannot rewrite
// history.
type FeeCalculator struct {
	schedules map[string]models.FeeSchedule
}

func NewFeeCalculator(providers []models.ProviderConfig) *FeeCalculator {
	schedules := make(map[string]models.FeeSchedule, len(providers))
	for _, p := range providers {
		schedules[p.Name] = p.Fees
	}
	return &FeeCalculator{schedules: schedules}
}

// Compute returns percentage*amount/100 + fixed, rounded half-even to the
// currency's minor-unit precision.
func (f *FeeCalculator) Compute(providerName string, amount decimal.Decimal, currency string) models.Fee {
	schedule, ok := f.schedules[providerName]
	if !ok {
		return models.Fee{Amount: decimal.Zero, Currency: currency}
	}

	hundred := decimal.NewFromInt(100)
	raw := amount.Mul(schedule.Percentage).Div(hundred).Add(schedule.Fixed)
	rounded := raw.RoundBank(models.MinorUnitExponent(currency))

	return models.Fee{Amount: rounded, Currency: currency}
}
