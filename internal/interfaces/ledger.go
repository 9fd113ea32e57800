package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

// TransactionLedger is the authoritative record of transaction lifecycle
// events. Writes are append-style: every accepted transition is retained for
// audit even though Get returns only the current snapshot.
type TransactionLedger interface {
	Create(ctx context.Context, tx *models.Transaction) error
	UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, source, raw string) (*models.Transaction, error)
	SetProviderDetails(ctx context.Context, id, providerPaymentID, redirectURL string) error
	SetError(ctx context.Context, id, message string) error
	Get(ctx context.Context, id string) (*models.Transaction, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Transaction, error)
	ListByCustomer(ctx context.Context, email string, limit int) ([]*models.Transaction, error)
	History(ctx context.Context, id string) ([]models.TransitionEvent, error)

	AddRefund(ctx context.Context, refund *models.RefundRecord) error
	ApplyRefund(ctx context.Context, id string, amount decimal.Decimal) (*models.Transaction, error)
	ListRefunds(ctx context.Context, transactionID string) ([]*models.RefundRecord, error)
}
