package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
	StatusRefunded  TransactionStatus = "refunded"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransition reports whether a status change from s to next is legal.
// completed -> refunded is the single allowed exit from a terminal state.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	if s == next {
		return false
	}
	if s == StatusCompleted && next == StatusRefunded {
		return true
	}
	return !s.IsTerminal()
}

// PaymentIntent is the provider-agnostic request to charge a customer.
// Immutable once submitted to the gateway.
type PaymentIntent struct {
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description,omitempty"`
	CustomerEmail string            `json:"customer_email"`
	Country       string            `json:"country,omitempty"`
	ReturnURL     string            `json:"return_url,omitempty"`
	CancelURL     string            `json:"cancel_url,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type Fee struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Transaction is the ledger's view of one logical payment attempt. The ID is
// generated exactly once per attempt and doubles as the idempotency key sent
// to the provider.
type Transaction struct {
	ID                string            `json:"id"`
	Provider          string            `json:"provider"`
	ProviderPaymentID string            `json:"provider_payment_id,omitempty"`
	Status            TransactionStatus `json:"status"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Fee               Fee               `json:"fee"`
	RefundedAmount    decimal.Decimal   `json:"refunded_amount"`
	CustomerEmail     string            `json:"customer_email"`
	Description       string            `json:"description,omitempty"`
	RedirectURL       string            `json:"redirect_url,omitempty"`
	Error             string            `json:"error,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// RemainingRefundable returns how much of the original amount has not been
// refunded yet.
func (t *Transaction) RemainingRefundable() decimal.Decimal {
	return t.Amount.Sub(t.RefundedAmount)
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
)

// RefundIntent asks for part or all of a completed transaction back.
type RefundIntent struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason,omitempty"`
}

type RefundRecord struct {
	ID               string          `json:"id"`
	TransactionID    string          `json:"transaction_id"`
	ProviderRefundID string          `json:"provider_refund_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           RefundStatus    `json:"status"`
	Reason           string          `json:"reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// WebhookEvent is one provider notification as it moves through the
// ingestor: received -> verifying -> (verified|rejected) ->
// (deduped|applying) -> applied.
type WebhookEvent struct {
	ID            string    `json:"id"`
	Provider      string    `json:"provider"`
	ProviderEvent string    `json:"provider_event"`
	EventType     string    `json:"event_type"`
	Payload       []byte    `json:"-"`
	Signature     string    `json:"-"`
	Verified      bool      `json:"verified"`
	Processed     bool      `json:"processed"`
	Duplicate     bool      `json:"duplicate"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// DedupeKey identifies one logical delivery regardless of retries.
func (e *WebhookEvent) DedupeKey() string {
	return e.Provider + ":" + e.ProviderEvent
}

// FeeSchedule is the processor's cut: percentage of the amount plus a fixed
// component in the payment currency.
type FeeSchedule struct {
	Percentage decimal.Decimal `json:"percentage"`
	Fixed      decimal.Decimal `json:"fixed"`
	Currency   string          `json:"currency"`
}

// ProviderConfig is read-only after startup.
type ProviderConfig struct {
	Name                string      `json:"name"`
	Active              bool        `json:"active"`
	SupportedCurrencies []string    `json:"supported_currencies"`
	SupportedCountries  []string    `json:"supported_countries"`
	Fees                FeeSchedule `json:"fees"`
}

// SupportsCurrency reports whether the provider accepts the given ISO 4217
// code.
func (p *ProviderConfig) SupportsCurrency(currency string) bool {
	for _, c := range p.SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

// SupportsCountry reports whether the provider operates in the given
// country. An empty country list means no restriction.
func (p *ProviderConfig) SupportsCountry(country string) bool {
	if len(p.SupportedCountries) == 0 {
		return true
	}
	for _, c := range p.SupportedCountries {
		if c == country {
			return true
		}
	}
	return false
}

// TransitionEvent is one entry in a transaction's append-only history.
type TransitionEvent struct {
	TransactionID string            `json:"transaction_id"`
	From          TransactionStatus `json:"from"`
	To            TransactionStatus `json:"to"`
	Source        string            `json:"source"` // adapter, verify, webhook, refund
	Raw           string            `json:"raw,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
