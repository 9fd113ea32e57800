// Package ledger holds the authoritative transaction record. Two backends
// implement the same contract: an in-memory store used in tests and
// single-node deployments, and a Postgres store for durable setups.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

// MemoryLedger keeps transactions, their transition history and refunds in
// process memory. Safe for concurrent use.
type MemoryLedger struct {
	mu           sync.RWMutex
	transactions map[string]*models.Transaction
	history      map[string][]models.TransitionEvent
	refunds      map[string][]*models.RefundRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		transactions: make(map[string]*models.Transaction),
		history:      make(map[string][]models.TransitionEvent),
		refunds:      make(map[string][]*models.RefundRecord),
	}
}

func (l *MemoryLedger) Create(ctx context.Context, tx *models.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.transactions[tx.ID]; ok {
		return &models.DuplicateTransactionError{TransactionID: tx.ID}
	}

	now := time.Now().UTC()
	stored := cloneTransaction(tx)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.RefundedAmount.IsZero() {
		stored.RefundedAmount = decimal.Zero
	}

	l.transactions[tx.ID] = stored
	l.history[tx.ID] = append(l.history[tx.ID], models.TransitionEvent{
		TransactionID: tx.ID,
		From:          "",
		To:            stored.Status,
		Source:        "create",
		OccurredAt:    now,
	})

	tx.CreatedAt = now
	tx.UpdatedAt = now
	return nil
}

func (l *MemoryLedger) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, source, raw string) (*models.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.transactions[id]
	if !ok {
		return nil, &models.TransactionNotFoundError{TransactionID: id}
	}

	if !stored.Status.CanTransition(status) {
		if stored.Status == status {
			// Reapplying the current status is a no-op, not an anomaly.
			return cloneTransaction(stored), nil
		}
		return nil, &models.InvalidTransitionError{TransactionID: id, From: stored.Status, To: status}
	}

	now := time.Now().UTC()
	l.history[id] = append(l.history[id], models.TransitionEvent{
		TransactionID: id,
		From:          stored.Status,
		To:            status,
		Source:        source,
		Raw:           raw,
		OccurredAt:    now,
	})
	stored.Status = status
	stored.UpdatedAt = now

	return cloneTransaction(stored), nil
}

func (l *MemoryLedger) SetProviderDetails(ctx context.Context, id, providerPaymentID, redirectURL string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.transactions[id]
	if !ok {
		return &models.TransactionNotFoundError{TransactionID: id}
	}
	if providerPaymentID != "" {
		stored.ProviderPaymentID = providerPaymentID
	}
	if redirectURL != "" {
		stored.RedirectURL = redirectURL
	}
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (l *MemoryLedger) SetError(ctx context.Context, id, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.transactions[id]
	if !ok {
		return &models.TransactionNotFoundError{TransactionID: id}
	}
	stored.Error = message
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, id string) (*models.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stored, ok := l.transactions[id]
	if !ok {
		return nil, &models.TransactionNotFoundError{TransactionID: id}
	}
	return cloneTransaction(stored), nil
}

func (l *MemoryLedger) ListRecent(ctx context.Context, limit int) ([]*models.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := make([]*models.Transaction, 0, len(l.transactions))
	for _, tx := range l.transactions {
		all = append(all, cloneTransaction(tx))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (l *MemoryLedger) ListByCustomer(ctx context.Context, email string, limit int) ([]*models.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []*models.Transaction
	for _, tx := range l.transactions {
		if tx.CustomerEmail == email {
			matched = append(matched, cloneTransaction(tx))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (l *MemoryLedger) History(ctx context.Context, id string) ([]models.TransitionEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.transactions[id]; !ok {
		return nil, &models.TransactionNotFoundError{TransactionID: id}
	}
	events := make([]models.TransitionEvent, len(l.history[id]))
	copy(events, l.history[id])
	return events, nil
}

func (l *MemoryLedger) AddRefund(ctx context.Context, refund *models.RefundRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.transactions[refund.TransactionID]; !ok {
		return &models.TransactionNotFoundError{TransactionID: refund.TransactionID}
	}
	stored := *refund
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
		refund.CreatedAt = stored.CreatedAt
	}
	l.refunds[refund.TransactionID] = append(l.refunds[refund.TransactionID], &stored)
	return nil
}

// ApplyRefund raises the refunded counter, rejecting any amount that would
// push the sum of completed refunds past the original charge.
func (l *MemoryLedger) ApplyRefund(ctx context.Context, id string, amount decimal.Decimal) (*models.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.transactions[id]
	if !ok {
		return nil, &models.TransactionNotFoundError{TransactionID: id}
	}

	remaining := stored.Amount.Sub(stored.RefundedAmount)
	if amount.GreaterThan(remaining) {
		return nil, &models.InsufficientRefundableBalanceError{
			TransactionID: id,
			Requested:     amount.String(),
			Remaining:     remaining.String(),
		}
	}

	stored.RefundedAmount = stored.RefundedAmount.Add(amount)
	stored.UpdatedAt = time.Now().UTC()
	return cloneTransaction(stored), nil
}

func (l *MemoryLedger) ListRefunds(ctx context.Context, transactionID string) ([]*models.RefundRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := l.refunds[transactionID]
	out := make([]*models.RefundRecord, len(records))
	for i, r := range records {
		clone := *r
		out[i] = &clone
	}
	return out, nil
}

func cloneTransaction(tx *models.Transaction) *models.Transaction {
	clone := *tx
	if tx.Metadata != nil {
		clone.Metadata = make(map[string]string, len(tx.Metadata))
		for k, v := range tx.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
