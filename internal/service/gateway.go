// Package service holds the gateway facade: the single public entry point
// that orchestrates provider selection, fee calculation, adapter calls and
// ledger writes.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/interfaces"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/telemetry"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/webhook"
)

// Gateway is constructed once per process with its dependencies passed in.
// No hidden globals: tests wire fake adapters and an in-memory ledger.
type Gateway struct {
	ledger   interfaces.TransactionLedger
	adapters map[string]interfaces.ProviderAdapter
	selector *ProviderSelector
	fees     *FeeCalculator
	ingestor *webhook.Ingestor
	audit    interfaces.AuditSink
	locks    interfaces.TransactionLocker

	maxAmount decimal.Decimal
}

func NewGateway(
	ledger interfaces.TransactionLedger,
	adapters map[string]interfaces.ProviderAdapter,
	selector *ProviderSelector,
	fees *FeeCalculator,
	ingestor *webhook.Ingestor,
	audit interfaces.AuditSink,
	locks interfaces.TransactionLocker,
	maxAmount decimal.Decimal,
) *Gateway {
	return &Gateway{
		ledger:    ledger,
		adapters:  adapters,
		selector:  selector,
		fees:      fees,
		ingestor:  ingestor,
		audit:     audit,
		locks:     locks,
		maxAmount: maxAmount,
	}
}

// ProcessPayment validates the intent, routes it to a provider and records
// the outcome. The returned transaction is non-nil whenever an id was
// assigned, including on failure: a processor decline is a business
// outcome, not a systemic error, so callers branch on Status.
func (g *Gateway) ProcessPayment(ctx context.Context, intent models.PaymentIntent) (*models.Transaction, error) {
	if err := g.validateIntent(intent); err != nil {
		return nil, err
	}

	providerName := g.selector.Select(intent.Currency, intent.Country)
	adapter, ok := g.adapters[providerName]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", providerName)
	}

	// Generated exactly once per logical attempt; retries of the same
	// attempt reuse it so the provider's idempotency guarantees hold.
	transactionID := "txn_" + uuid.NewString()

	fee := g.fees.Compute(providerName, intent.Amount, intent.Currency)

	tx := &models.Transaction{
		ID:             transactionID,
		Provider:       providerName,
		Status:         models.StatusPending,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
		Fee:            fee,
		RefundedAmount: decimal.Zero,
		CustomerEmail:  intent.CustomerEmail,
		Description:    intent.Description,
		Metadata:       intent.Metadata,
	}

	unlock := g.locks.Lock(transactionID)
	defer unlock()

	if err := g.ledger.Create(ctx, tx); err != nil {
		return nil, err
	}

	telemetry.Logger.Info("processing payment",
		zap.String("transaction_id", transactionID),
		zap.String("provider", providerName),
		zap.String("amount", intent.Amount.String()),
		zap.String("currency", intent.Currency),
	)

	result, err := adapter.CreatePayment(ctx, transactionID, intent)
	if err != nil {
		return g.recordPaymentFailure(ctx, transactionID, providerName, err)
	}

	if err := g.ledger.SetProviderDetails(ctx, transactionID, result.ProviderPaymentID, result.RedirectURL); err != nil {
		return nil, err
	}
	if result.ErrorMessage != "" {
		if err := g.ledger.SetError(ctx, transactionID, result.ErrorMessage); err != nil {
			return nil, err
		}
	}

	updated, err := g.ledger.UpdateStatus(ctx, transactionID, result.Status, "adapter", result.Raw)
	if err != nil {
		return nil, err
	}

	g.audit.RecordTransition(ctx, models.TransitionEvent{
		TransactionID: transactionID,
		From:          models.StatusPending,
		To:            updated.Status,
		Source:        "adapter",
		OccurredAt:    time.Now().UTC(),
	})
	telemetry.PaymentsProcessed.WithLabelValues(providerName, string(updated.Status)).Inc()

	return updated, nil
}

// recordPaymentFailure persists the failed outcome before surfacing it.
// Failure is never silent: the transaction carries the error detail and a
// cancelled call is marked ambiguous so VerifyPayment can be used to learn
// the provider-side truth.
func (g *Gateway) recordPaymentFailure(ctx context.Context, transactionID, providerName string, cause error) (*models.Transaction, error) {
	// The caller's context may already be dead; ledger writes use a fresh
	// one so the failed state is always recorded.
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	returnedErr := cause
	message := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		returnedErr = &models.AmbiguousOutcomeError{TransactionID: transactionID, Cause: cause}
		message = returnedErr.Error()
	}

	if err := g.ledger.SetError(writeCtx, transactionID, message); err != nil {
		telemetry.Logger.Error("failed to persist payment error",
			zap.String("transaction_id", transactionID), zap.Error(err))
	}
	failed, err := g.ledger.UpdateStatus(writeCtx, transactionID, models.StatusFailed, "adapter", message)
	if err != nil {
		telemetry.Logger.Error("failed to persist failed status",
			zap.String("transaction_id", transactionID), zap.Error(err))
		return nil, returnedErr
	}

	g.audit.RecordTransition(writeCtx, models.TransitionEvent{
		TransactionID: transactionID,
		From:          models.StatusPending,
		To:            models.StatusFailed,
		Source:        "adapter",
		OccurredAt:    time.Now().UTC(),
	})
	telemetry.PaymentsProcessed.WithLabelValues(providerName, string(models.StatusFailed)).Inc()
	telemetry.Logger.Warn("payment failed",
		zap.String("transaction_id", transactionID),
		zap.String("provider", providerName),
		zap.String("error", message),
	)

	return failed, returnedErr
}

// VerifyPayment re-queries the provider for the authoritative status and
// reconciles the ledger. A provider status that would regress a terminal
// ledger state is not applied: the first writer to a terminal state wins
// and the conflict is recorded as an anomaly.
func (g *Gateway) VerifyPayment(ctx context.Context, transactionID string) (*models.Transaction, error) {
	unlock := g.locks.Lock(transactionID)
	defer unlock()

	tx, err := g.ledger.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.ProviderPaymentID == "" {
		// The provider never acknowledged the charge; nothing to query.
		return tx, nil
	}

	adapter, ok := g.adapters[tx.Provider]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", tx.Provider)
	}

	result, err := adapter.GetPaymentStatus(ctx, tx.ProviderPaymentID)
	if err != nil {
		return tx, fmt.Errorf("verify against %s: %w", tx.Provider, err)
	}

	if result.Status == tx.Status {
		return tx, nil
	}

	updated, err := g.ledger.UpdateStatus(ctx, transactionID, result.Status, "verify", result.Raw)
	if err != nil {
		var invalid *models.InvalidTransitionError
		if errors.As(err, &invalid) {
			telemetry.TransitionAnomalies.WithLabelValues("verify").Inc()
			g.audit.RecordAnomaly(ctx, "verify_conflicting_terminal", transactionID,
				fmt.Sprintf("ledger=%s provider=%s", invalid.From, result.Status))
			telemetry.Logger.Warn("provider status conflicts with terminal ledger state",
				zap.String("transaction_id", transactionID),
				zap.String("ledger_status", string(invalid.From)),
				zap.String("provider_status", string(result.Status)),
			)
			return tx, nil
		}
		return nil, err
	}

	if result.ErrorMessage != "" {
		if err := g.ledger.SetError(ctx, transactionID, result.ErrorMessage); err != nil {
			return nil, err
		}
		updated.Error = result.ErrorMessage
	}

	g.audit.RecordTransition(ctx, models.TransitionEvent{
		TransactionID: transactionID,
		From:          tx.Status,
		To:            updated.Status,
		Source:        "verify",
		OccurredAt:    time.Now().UTC(),
	})

	return updated, nil
}

// ProcessRefund refunds part or all of a completed transaction. The parent
// flips to refunded only when the cumulative refunded amount reaches the
// original charge.
func (g *Gateway) ProcessRefund(ctx context.Context, intent models.RefundIntent) (*models.RefundRecord, error) {
	if intent.TransactionID == "" {
		return nil, &models.ValidationError{Field: "transaction_id", Reason: "must not be empty"}
	}
	if !intent.Amount.IsPositive() {
		return nil, &models.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	unlock := g.locks.Lock(intent.TransactionID)
	defer unlock()

	tx, err := g.ledger.Get(ctx, intent.TransactionID)
	if err != nil {
		return nil, err
	}

	switch tx.Status {
	case models.StatusCompleted:
	case models.StatusRefunded:
		return nil, &models.InsufficientRefundableBalanceError{
			TransactionID: tx.ID,
			Requested:     intent.Amount.String(),
			Remaining:     "0",
		}
	default:
		return nil, &models.ValidationError{
			Field:  "transaction_id",
			Reason: fmt.Sprintf("transaction %s is %s, only completed transactions are refundable", tx.ID, tx.Status),
		}
	}

	remaining := tx.RemainingRefundable()
	if intent.Amount.GreaterThan(remaining) {
		return nil, &models.InsufficientRefundableBalanceError{
			TransactionID: tx.ID,
			Requested:     intent.Amount.String(),
			Remaining:     remaining.String(),
		}
	}

	adapter, ok := g.adapters[tx.Provider]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", tx.Provider)
	}

	refundID := "re_" + uuid.NewString()
	record := &models.RefundRecord{
		ID:            refundID,
		TransactionID: tx.ID,
		Amount:        intent.Amount,
		Currency:      tx.Currency,
		Status:        models.RefundPending,
		Reason:        intent.Reason,
	}

	result, err := adapter.CreateRefund(ctx, refundID, tx.ProviderPaymentID, intent, tx.Currency)
	if err != nil {
		record.Status = models.RefundFailed
		if addErr := g.ledger.AddRefund(ctx, record); addErr != nil {
			telemetry.Logger.Error("failed to persist failed refund",
				zap.String("refund_id", refundID), zap.Error(addErr))
		}
		telemetry.RefundsProcessed.WithLabelValues(tx.Provider, string(models.RefundFailed)).Inc()
		return record, err
	}

	record.ProviderRefundID = result.ProviderRefundID
	record.Status = result.Status
	if err := g.ledger.AddRefund(ctx, record); err != nil {
		return nil, err
	}

	if result.Status != models.RefundFailed {
		updated, err := g.ledger.ApplyRefund(ctx, tx.ID, intent.Amount)
		if err != nil {
			return nil, err
		}
		if updated.RemainingRefundable().IsZero() {
			if _, err := g.ledger.UpdateStatus(ctx, tx.ID, models.StatusRefunded, "refund", result.Raw); err != nil {
				return nil, err
			}
			g.audit.RecordTransition(ctx, models.TransitionEvent{
				TransactionID: tx.ID,
				From:          models.StatusCompleted,
				To:            models.StatusRefunded,
				Source:        "refund",
				OccurredAt:    time.Now().UTC(),
			})
		}
	}

	telemetry.RefundsProcessed.WithLabelValues(tx.Provider, string(record.Status)).Inc()
	telemetry.Logger.Info("refund processed",
		zap.String("refund_id", refundID),
		zap.String("transaction_id", tx.ID),
		zap.String("amount", intent.Amount.String()),
		zap.String("status", string(record.Status)),
	)

	return record, nil
}

// HandleWebhook verifies the signature before any payload parsing and
// applies the normalized update through the ingestor.
func (g *Gateway) HandleWebhook(ctx context.Context, providerName string, payload []byte, signature string) (*models.WebhookEvent, error) {
	return g.ingestor.Ingest(ctx, providerName, payload, signature)
}

func (g *Gateway) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return g.ledger.Get(ctx, transactionID)
}

func (g *Gateway) GetTransactionHistory(ctx context.Context, limit int) ([]*models.Transaction, error) {
	return g.ledger.ListRecent(ctx, limit)
}

func (g *Gateway) GetTransactionsByCustomer(ctx context.Context, email string, limit int) ([]*models.Transaction, error) {
	return g.ledger.ListByCustomer(ctx, email, limit)
}

func (g *Gateway) GetRefunds(ctx context.Context, transactionID string) ([]*models.RefundRecord, error) {
	return g.ledger.ListRefunds(ctx, transactionID)
}

func (g *Gateway) GetProviders() []models.ProviderConfig {
	return g.selector.Providers()
}

func (g *Gateway) validateIntent(intent models.PaymentIntent) error {
	if !intent.Amount.IsPositive() {
		return &models.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if intent.Amount.GreaterThan(g.maxAmount) {
		return &models.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("exceeds maximum of %s", g.maxAmount.String()),
		}
	}
	if intent.Currency == "" {
		return &models.ValidationError{Field: "currency", Reason: "must not be empty"}
	}
	if len(intent.Currency) != 3 {
		return &models.ValidationError{Field: "currency", Reason: "must be a three-letter ISO 4217 code"}
	}
	if _, err := mail.ParseAddress(intent.CustomerEmail); err != nil {
		return &models.ValidationError{Field: "customer_email", Reason: "invalid email address"}
	}
	return nil
}
