package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStatusTerminality(t *testing.T) {
	require.False(t, StatusPending.IsTerminal())
	for _, s := range []TransactionStatus{StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded} {
		require.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to TransactionStatus
		allowed  bool
	}{
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusRefunded, true},
		{StatusCompleted, StatusRefunded, true},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusPending, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusRefunded, StatusCompleted, false},
		{StatusRefunded, StatusPending, false},
		{StatusPending, StatusPending, false},
		{StatusCompleted, StatusCompleted, false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRemainingRefundable(t *testing.T) {
	tx := &Transaction{
		Amount:         decimal.RequireFromString("100.00"),
		RefundedAmount: decimal.RequireFromString("40.00"),
	}
	require.True(t, tx.RemainingRefundable().Equal(decimal.RequireFromString("60.00")))
}

func TestMinorUnitExponent(t *testing.T) {
	require.Equal(t, int32(2), MinorUnitExponent("USD"))
	require.Equal(t, int32(2), MinorUnitExponent("EUR"))
	require.Equal(t, int32(0), MinorUnitExponent("JPY"))
	require.Equal(t, int32(0), MinorUnitExponent("KRW"))
	require.Equal(t, int32(3), MinorUnitExponent("KWD"))
}

func TestProviderConfigSupport(t *testing.T) {
	p := &ProviderConfig{
		SupportedCurrencies: []string{"USD", "EUR"},
		SupportedCountries:  []string{"US"},
	}
	require.True(t, p.SupportsCurrency("USD"))
	require.False(t, p.SupportsCurrency("GBP"))
	require.True(t, p.SupportsCountry("US"))
	require.False(t, p.SupportsCountry("FR"))

	open := &ProviderConfig{SupportedCurrencies: []string{"USD"}}
	require.True(t, open.SupportsCountry("anywhere"))
}

func TestWebhookDedupeKey(t *testing.T) {
	e := &WebhookEvent{Provider: "stripe", ProviderEvent: "evt_123"}
	require.Equal(t, "stripe:evt_123", e.DedupeKey())
}
