package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

func newTransaction(id string) *models.Transaction {
	return &models.Transaction{
		ID:            id,
		Provider:      "stripe",
		Status:        models.StatusPending,
		Amount:        decimal.RequireFromString("100.00"),
		Currency:      "USD",
		CustomerEmail: "a@b.com",
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	require.NoError(t, l.Create(ctx, newTransaction("txn_1")))

	err := l.Create(ctx, newTransaction("txn_1"))
	var dup *models.DuplicateTransactionError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "txn_1", dup.TransactionID)
}

func TestUpdateStatusNeverRegressesFromTerminal(t *testing.T) {
	terminal := []models.TransactionStatus{
		models.StatusFailed, models.StatusCancelled, models.StatusRefunded,
	}
	for _, status := range terminal {
		l := NewMemoryLedger()
		ctx := context.Background()
		require.NoError(t, l.Create(ctx, newTransaction("txn_1")))

		_, err := l.UpdateStatus(ctx, "txn_1", status, "adapter", "")
		require.NoError(t, err)

		for _, next := range []models.TransactionStatus{
			models.StatusPending, models.StatusCompleted, models.StatusCancelled,
		} {
			if next == status {
				continue
			}
			_, err := l.UpdateStatus(ctx, "txn_1", next, "webhook", "")
			var invalid *models.InvalidTransitionError
			require.ErrorAs(t, err, &invalid, "%s -> %s should be rejected", status, next)

			got, getErr := l.Get(ctx, "txn_1")
			require.NoError(t, getErr)
			require.Equal(t, status, got.Status)
		}
	}
}

func TestUpdateStatusSameStatusIsNoOp(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Create(ctx, newTransaction("txn_1")))

	_, err := l.UpdateStatus(ctx, "txn_1", models.StatusCompleted, "adapter", "")
	require.NoError(t, err)

	tx, err := l.UpdateStatus(ctx, "txn_1", models.StatusCompleted, "webhook", "")
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, tx.Status)

	// The no-op must not append a history entry.
	history, err := l.History(ctx, "txn_1")
	require.NoError(t, err)
	require.Len(t, history, 2) // create + completed
}

func TestCompletedToRefundedIsAllowed(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Create(ctx, newTransaction("txn_1")))

	_, err := l.UpdateStatus(ctx, "txn_1", models.StatusCompleted, "adapter", "")
	require.NoError(t, err)
	tx, err := l.UpdateStatus(ctx, "txn_1", models.StatusRefunded, "refund", "")
	require.NoError(t, err)
	require.Equal(t, models.StatusRefunded, tx.Status)
}

func TestHistoryRetainsEveryTransition(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Create(ctx, newTransaction("txn_1")))
	_, err := l.UpdateStatus(ctx, "txn_1", models.StatusCompleted, "adapter", `{"status":"succeeded"}`)
	require.NoError(t, err)
	_, err = l.UpdateStatus(ctx, "txn_1", models.StatusRefunded, "refund", "")
	require.NoError(t, err)

	history, err := l.History(ctx, "txn_1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, models.StatusPending, history[0].To)
	require.Equal(t, "create", history[0].Source)
	require.Equal(t, models.StatusCompleted, history[1].To)
	require.Equal(t, "adapter", history[1].Source)
	require.Equal(t, `{"status":"succeeded"}`, history[1].Raw)
	require.Equal(t, models.StatusRefunded, history[2].To)
}

func TestGetUnknownTransaction(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.Get(context.Background(), "missing")
	var notFound *models.TransactionNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestApplyRefundEnforcesBound(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Create(ctx, newTransaction("txn_1")))

	_, err := l.ApplyRefund(ctx, "txn_1", decimal.RequireFromString("40.00"))
	require.NoError(t, err)
	tx, err := l.ApplyRefund(ctx, "txn_1", decimal.RequireFromString("60.00"))
	require.NoError(t, err)
	require.True(t, tx.RemainingRefundable().IsZero())

	_, err = l.ApplyRefund(ctx, "txn_1", decimal.RequireFromString("0.01"))
	var insufficient *models.InsufficientRefundableBalanceError
	require.ErrorAs(t, err, &insufficient)
}

func TestApplyRefundConcurrentOverdraw(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Create(ctx, newTransaction("txn_1")))

	// Ten concurrent refunds of 15.00 against 100.00: at most six may win.
	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.ApplyRefund(ctx, "txn_1", decimal.RequireFromString("15.00")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 6, succeeded)
	tx, err := l.Get(ctx, "txn_1")
	require.NoError(t, err)
	require.True(t, tx.RefundedAmount.LessThanOrEqual(tx.Amount))
}

func TestListByCustomer(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	a := newTransaction("txn_a")
	a.CustomerEmail = "a@b.com"
	b := newTransaction("txn_b")
	b.CustomerEmail = "c@d.com"
	require.NoError(t, l.Create(ctx, a))
	require.NoError(t, l.Create(ctx, b))

	got, err := l.ListByCustomer(ctx, "a@b.com", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "txn_a", got[0].ID)
}

func TestGetReturnsSnapshot(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	tx := newTransaction("txn_1")
	tx.Metadata = map[string]string{"plan": "pro"}
	require.NoError(t, l.Create(ctx, tx))

	got, err := l.Get(ctx, "txn_1")
	require.NoError(t, err)
	got.Status = models.StatusCompleted
	got.Metadata["plan"] = "mutated"

	again, err := l.Get(ctx, "txn_1")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, again.Status)
	require.Equal(t, "pro", again.Metadata["plan"])
}

func TestRefundRecords(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Create(ctx, newTransaction("txn_1")))

	err := l.AddRefund(ctx, &models.RefundRecord{
		ID:            "re_1",
		TransactionID: "txn_1",
		Amount:        decimal.RequireFromString("40.00"),
		Currency:      "USD",
		Status:        models.RefundCompleted,
	})
	require.NoError(t, err)

	records, err := l.ListRefunds(ctx, "txn_1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "re_1", records[0].ID)
	require.False(t, records[0].CreatedAt.IsZero())

	err = l.AddRefund(ctx, &models.RefundRecord{ID: "re_2", TransactionID: "missing"})
	var notFound *models.TransactionNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestKeyedLockSerializesPerID(t *testing.T) {
	locks := NewKeyedLock()

	var mu sync.Mutex
	inCritical := map[string]int{}
	maxSeen := map[string]int{}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := "txn_a"
		if i%2 == 0 {
			id = "txn_b"
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			unlock := locks.Lock(id)
			mu.Lock()
			inCritical[id]++
			if inCritical[id] > maxSeen[id] {
				maxSeen[id] = inCritical[id]
			}
			mu.Unlock()

			mu.Lock()
			inCritical[id]--
			mu.Unlock()
			unlock()
		}(id)
	}
	wg.Wait()

	require.LessOrEqual(t, maxSeen["txn_a"], 1)
	require.LessOrEqual(t, maxSeen["txn_b"], 1)
}

func TestErrorsAreTyped(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	require.NoError(t, l.Create(ctx, newTransaction("txn_1")))
	_, err := l.UpdateStatus(ctx, "txn_1", models.StatusFailed, "adapter", "")
	require.NoError(t, err)

	_, err = l.UpdateStatus(ctx, "txn_1", models.StatusCompleted, "verify", "")
	require.True(t, errors.As(err, new(*models.InvalidTransitionError)))
}
