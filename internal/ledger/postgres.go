package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

// PostgresLedger is the durable backend. Status changes use a
// compare-and-swap UPDATE so concurrent writers cannot race a transaction
// out of a terminal state, and every accepted transition lands in
// transaction_events.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(64) PRIMARY KEY,
			provider VARCHAR(32) NOT NULL,
			provider_payment_id VARCHAR(128),
			status VARCHAR(16) NOT NULL,
			amount NUMERIC(18,6) NOT NULL,
			currency CHAR(3) NOT NULL,
			fee_amount NUMERIC(18,6) NOT NULL DEFAULT 0,
			fee_currency CHAR(3) NOT NULL DEFAULT 'USD',
			refunded_amount NUMERIC(18,6) NOT NULL DEFAULT 0,
			customer_email VARCHAR(255) NOT NULL,
			description TEXT,
			redirect_url TEXT,
			error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_email ON transactions(customer_email)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS transaction_events (
			id BIGSERIAL PRIMARY KEY,
			transaction_id VARCHAR(64) NOT NULL,
			from_status VARCHAR(16) NOT NULL,
			to_status VARCHAR(16) NOT NULL,
			source VARCHAR(32) NOT NULL,
			raw TEXT,
			occurred_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_events_txn ON transaction_events(transaction_id)`,
		`CREATE TABLE IF NOT EXISTS refunds (
			id VARCHAR(64) PRIMARY KEY,
			transaction_id VARCHAR(64) NOT NULL,
			provider_refund_id VARCHAR(128),
			amount NUMERIC(18,6) NOT NULL,
			currency CHAR(3) NOT NULL,
			status VARCHAR(16) NOT NULL,
			reason TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refunds_txn ON refunds(transaction_id)`,
	}

	for _, query := range queries {
		if _, err := l.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (l *PostgresLedger) Create(ctx context.Context, tx *models.Transaction) error {
	now := time.Now().UTC()
	result, err := l.db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, provider, provider_payment_id, status, amount, currency,
			 fee_amount, fee_currency, refunded_amount, customer_email,
			 description, redirect_url, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (id) DO NOTHING
	`, tx.ID, tx.Provider, tx.ProviderPaymentID, tx.Status, tx.Amount, tx.Currency,
		tx.Fee.Amount, tx.Fee.Currency, tx.CustomerEmail,
		tx.Description, tx.RedirectURL, tx.Error, now)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.DuplicateTransactionError{TransactionID: tx.ID}
	}

	tx.CreatedAt = now
	tx.UpdatedAt = now

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO transaction_events (transaction_id, from_status, to_status, source, occurred_at)
		VALUES ($1, '', $2, 'create', $3)
	`, tx.ID, tx.Status, now)
	return err
}

func (l *PostgresLedger) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, source, raw string) (*models.Transaction, error) {
	current, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !current.Status.CanTransition(status) {
		if current.Status == status {
			return current, nil
		}
		return nil, &models.InvalidTransitionError{TransactionID: id, From: current.Status, To: status}
	}

	now := time.Now().UTC()
	result, err := l.db.ExecContext(ctx, `
		UPDATE transactions SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, status, now, id, current.Status)
	if err != nil {
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Lost a race; the row moved under us. Re-read and report.
		latest, getErr := l.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &models.InvalidTransitionError{TransactionID: id, From: latest.Status, To: status}
	}

	if _, err := l.db.ExecContext(ctx, `
		INSERT INTO transaction_events (transaction_id, from_status, to_status, source, raw, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, current.Status, status, source, raw, now); err != nil {
		return nil, err
	}

	current.Status = status
	current.UpdatedAt = now
	return current, nil
}

func (l *PostgresLedger) SetProviderDetails(ctx context.Context, id, providerPaymentID, redirectURL string) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE transactions
		SET provider_payment_id = COALESCE(NULLIF($1, ''), provider_payment_id),
		    redirect_url = COALESCE(NULLIF($2, ''), redirect_url),
		    updated_at = NOW()
		WHERE id = $3
	`, providerPaymentID, redirectURL, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.TransactionNotFoundError{TransactionID: id}
	}
	return nil
}

func (l *PostgresLedger) SetError(ctx context.Context, id, message string) error {
	result, err := l.db.ExecContext(ctx,
		`UPDATE transactions SET error = $1, updated_at = NOW() WHERE id = $2`, message, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.TransactionNotFoundError{TransactionID: id}
	}
	return nil
}

const transactionColumns = `id, provider, COALESCE(provider_payment_id, ''), status, amount, currency,
	fee_amount, fee_currency, refunded_amount, customer_email,
	COALESCE(description, ''), COALESCE(redirect_url, ''), COALESCE(error, ''), created_at, updated_at`

func (l *PostgresLedger) Get(ctx context.Context, id string) (*models.Transaction, error) {
	row := l.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1`, transactionColumns), id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, &models.TransactionNotFoundError{TransactionID: id}
	}
	return tx, err
}

func (l *PostgresLedger) ListRecent(ctx context.Context, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM transactions ORDER BY created_at DESC LIMIT $1`, transactionColumns), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (l *PostgresLedger) ListByCustomer(ctx context.Context, email string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM transactions WHERE customer_email = $1 ORDER BY created_at DESC LIMIT $2`, transactionColumns),
		email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (l *PostgresLedger) History(ctx context.Context, id string) ([]models.TransitionEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT transaction_id, from_status, to_status, source, COALESCE(raw, ''), occurred_at
		FROM transaction_events WHERE transaction_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.TransitionEvent
	for rows.Next() {
		var ev models.TransitionEvent
		if err := rows.Scan(&ev.TransactionID, &ev.From, &ev.To, &ev.Source, &ev.Raw, &ev.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, &models.TransactionNotFoundError{TransactionID: id}
	}
	return events, rows.Err()
}

func (l *PostgresLedger) AddRefund(ctx context.Context, refund *models.RefundRecord) error {
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO refunds (id, transaction_id, provider_refund_id, amount, currency, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, refund.ID, refund.TransactionID, refund.ProviderRefundID, refund.Amount,
		refund.Currency, refund.Status, refund.Reason, refund.CreatedAt)
	return err
}

func (l *PostgresLedger) ApplyRefund(ctx context.Context, id string, amount decimal.Decimal) (*models.Transaction, error) {
	// The WHERE clause enforces the refund bound atomically.
	result, err := l.db.ExecContext(ctx, `
		UPDATE transactions
		SET refunded_amount = refunded_amount + $1, updated_at = NOW()
		WHERE id = $2 AND refunded_amount + $1 <= amount
	`, amount, id)
	if err != nil {
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		current, getErr := l.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &models.InsufficientRefundableBalanceError{
			TransactionID: id,
			Requested:     amount.String(),
			Remaining:     current.RemainingRefundable().String(),
		}
	}
	return l.Get(ctx, id)
}

func (l *PostgresLedger) ListRefunds(ctx context.Context, transactionID string) ([]*models.RefundRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, transaction_id, COALESCE(provider_refund_id, ''), amount, currency, status, COALESCE(reason, ''), created_at
		FROM refunds WHERE transaction_id = $1 ORDER BY created_at
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.RefundRecord
	for rows.Next() {
		var r models.RefundRecord
		if err := rows.Scan(&r.ID, &r.TransactionID, &r.ProviderRefundID, &r.Amount,
			&r.Currency, &r.Status, &r.Reason, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	err := row.Scan(&tx.ID, &tx.Provider, &tx.ProviderPaymentID, &tx.Status,
		&tx.Amount, &tx.Currency, &tx.Fee.Amount, &tx.Fee.Currency,
		&tx.RefundedAmount, &tx.CustomerEmail, &tx.Description,
		&tx.RedirectURL, &tx.Error, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func collectTransactions(rows *sql.Rows) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
