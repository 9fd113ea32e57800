// Package webhook turns raw provider notifications into ledger updates.
// Each event walks received -> verifying -> (verified|rejected) ->
// (deduped|applying) -> applied; verification happens before any byte of
// the payload is parsed.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/interfaces"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/telemetry"
)

// Ingestor verifies, deduplicates and applies provider webhooks. Status
// application funnels through the same Ledger.UpdateStatus path used by
// VerifyPayment, so there is exactly one code path for transitions.
type Ingestor struct {
	adapters map[string]interfaces.ProviderAdapter
	ledger   interfaces.TransactionLedger
	dedupe   interfaces.DedupeStore
	audit    interfaces.AuditSink
	locks    interfaces.TransactionLocker
}

func NewIngestor(adapters map[string]interfaces.ProviderAdapter, ledger interfaces.TransactionLedger,
	dedupe interfaces.DedupeStore, audit interfaces.AuditSink, locks interfaces.TransactionLocker) *Ingestor {
	return &Ingestor{adapters: adapters, ledger: ledger, dedupe: dedupe, audit: audit, locks: locks}
}

// Ingest processes one delivery. A redelivered event returns with
// Duplicate=true and no error so the HTTP layer can answer 200 and stop the
// provider's retry loop.
func (i *Ingestor) Ingest(ctx context.Context, providerName string, payload []byte, signature string) (*models.WebhookEvent, error) {
	event := &models.WebhookEvent{
		ID:         "evt_" + uuid.NewString(),
		Provider:   providerName,
		Payload:    payload,
		Signature:  signature,
		ReceivedAt: time.Now().UTC(),
	}

	adapter, ok := i.adapters[providerName]
	if !ok {
		telemetry.WebhooksReceived.WithLabelValues(providerName, "rejected").Inc()
		return event, &models.ValidationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", providerName)}
	}

	if err := adapter.VerifyWebhookSignature(payload, signature); err != nil {
		telemetry.WebhooksReceived.WithLabelValues(providerName, "rejected").Inc()
		telemetry.Logger.Warn("webhook signature rejected",
			zap.String("provider", providerName),
			zap.Error(err),
		)
		i.audit.RecordAnomaly(ctx, "webhook_signature_rejected", "", err.Error())
		return event, err
	}
	event.Verified = true

	update, err := adapter.NormalizeWebhookPayload(payload)
	if err != nil {
		telemetry.WebhooksReceived.WithLabelValues(providerName, "rejected").Inc()
		return event, fmt.Errorf("normalize webhook: %w", err)
	}
	event.ProviderEvent = update.ProviderEventID
	event.EventType = update.EventType
	event.TransactionID = update.TransactionID

	first, err := i.dedupe.MarkProcessed(ctx, event.DedupeKey())
	if err != nil {
		return event, fmt.Errorf("dedupe check: %w", err)
	}
	if !first {
		event.Duplicate = true
		telemetry.WebhooksReceived.WithLabelValues(providerName, "deduped").Inc()
		telemetry.Logger.Info("webhook redelivery ignored",
			zap.String("provider", providerName),
			zap.String("event_id", update.ProviderEventID),
		)
		return event, nil
	}

	transactionID := update.TransactionID
	if transactionID == "" {
		transactionID, err = i.resolveTransaction(ctx, update.ProviderPaymentID)
		if err != nil {
			i.audit.RecordAnomaly(ctx, "webhook_unmatched", "", fmt.Sprintf("event %s: %v", update.ProviderEventID, err))
			return event, err
		}
		event.TransactionID = transactionID
	}

	unlock := i.locks.Lock(transactionID)
	tx, err := i.ledger.UpdateStatus(ctx, transactionID, update.Status, "webhook", string(payload))
	unlock()
	if err != nil {
		var invalid *models.InvalidTransitionError
		if errors.As(err, &invalid) {
			// Whichever writer reached a terminal state first won; this
			// conflicting delivery is recorded, not applied.
			telemetry.TransitionAnomalies.WithLabelValues("webhook").Inc()
			i.audit.RecordAnomaly(ctx, "webhook_conflicting_terminal", transactionID, invalid.Error())
			telemetry.Logger.Warn("webhook attempted terminal regression",
				zap.String("transaction_id", transactionID),
				zap.String("from", string(invalid.From)),
				zap.String("to", string(invalid.To)),
			)
			event.Processed = true
			telemetry.WebhooksReceived.WithLabelValues(providerName, "applied").Inc()
			return event, nil
		}
		return event, err
	}

	if update.ErrorMessage != "" {
		telemetry.Logger.Info("webhook carried provider error detail",
			zap.String("transaction_id", transactionID),
			zap.String("detail", update.ErrorMessage),
		)
	}

	i.audit.RecordTransition(ctx, models.TransitionEvent{
		TransactionID: tx.ID,
		To:            tx.Status,
		Source:        "webhook",
		OccurredAt:    time.Now().UTC(),
	})

	event.Processed = true
	telemetry.WebhooksReceived.WithLabelValues(providerName, "applied").Inc()
	telemetry.Logger.Info("webhook applied",
		zap.String("provider", providerName),
		zap.String("event_id", update.ProviderEventID),
		zap.String("transaction_id", transactionID),
		zap.String("status", string(tx.Status)),
	)
	return event, nil
}

// resolveTransaction maps a provider payment id back to the internal
// transaction when the payload carried no reference.
func (i *Ingestor) resolveTransaction(ctx context.Context, providerPaymentID string) (string, error) {
	if providerPaymentID == "" {
		return "", fmt.Errorf("webhook payload carries no transaction reference")
	}
	recent, err := i.ledger.ListRecent(ctx, 0)
	if err != nil {
		return "", err
	}
	for _, tx := range recent {
		if tx.ProviderPaymentID == providerPaymentID {
			return tx.ID, nil
		}
	}
	return "", fmt.Errorf("no transaction for provider payment %s", providerPaymentID)
}
