package interfaces

import (
	"context"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

// AdapterResult is the normalized outcome of a provider call. Raw carries
// the provider response body for the audit trail; nothing outside the
// adapter ever interprets it.
type AdapterResult struct {
	ProviderPaymentID string
	RedirectURL       string
	Status            models.TransactionStatus
	ErrorMessage      string
	Raw               string
}

// RefundResult is the normalized outcome of a provider refund call.
type RefundResult struct {
	ProviderRefundID string
	Status           models.RefundStatus
	Raw              string
}

// WebhookUpdate is the status change extracted from a verified webhook
// payload.
type WebhookUpdate struct {
	ProviderEventID   string
	EventType         string
	ProviderPaymentID string
	TransactionID     string
	Status            models.TransactionStatus
	ErrorMessage      string
}

// ProviderAdapter translates between the internal model and one external
// processor's API. Adapters share no state; the transaction id passed to
// CreatePayment must reach the provider as an idempotency or reference key.
type ProviderAdapter interface {
	Name() string
	CreatePayment(ctx context.Context, transactionID string, intent models.PaymentIntent) (*AdapterResult, error)
	GetPaymentStatus(ctx context.Context, providerPaymentID string) (*AdapterResult, error)
	CreateRefund(ctx context.Context, refundID, providerPaymentID string, intent models.RefundIntent, currency string) (*RefundResult, error)
	VerifyWebhookSignature(payload []byte, signature string) error
	NormalizeWebhookPayload(payload []byte) (*WebhookUpdate, error)
}
