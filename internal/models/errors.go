package models

import "fmt"

// ValidationError marks bad caller input. Requests carrying one never reach
// a provider.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ProviderError is a processor-side rejection or failure. The transaction is
// persisted as failed with the provider detail attached.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error (http %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Retryable reports whether a second attempt against the provider can
// succeed. Only transport-level failures and 5xx responses qualify.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// AmbiguousOutcomeError means the call was cancelled or timed out before the
// provider answered. VerifyPayment is the recovery path.
type AmbiguousOutcomeError struct {
	TransactionID string
	Cause         error
}

func (e *AmbiguousOutcomeError) Error() string {
	return fmt.Sprintf("ambiguous outcome for transaction %s: %v", e.TransactionID, e.Cause)
}

func (e *AmbiguousOutcomeError) Unwrap() error { return e.Cause }

// DuplicateTransactionError signals a Create with an id the ledger already
// holds. Always a programming or integration bug, never swallowed.
type DuplicateTransactionError struct {
	TransactionID string
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("transaction %s already exists", e.TransactionID)
}

// InvalidTransitionError signals an attempted regression out of a terminal
// status.
type InvalidTransitionError struct {
	TransactionID string
	From          TransactionStatus
	To            TransactionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for transaction %s", e.From, e.To, e.TransactionID)
}

// SignatureVerificationError is a webhook authentication failure. Security
// relevant: logged distinctly and the payload is never parsed.
type SignatureVerificationError struct {
	Provider string
	Reason   string
}

func (e *SignatureVerificationError) Error() string {
	return fmt.Sprintf("webhook signature verification failed for %s: %s", e.Provider, e.Reason)
}

// InsufficientRefundableBalanceError rejects refunds that would overdraw the
// parent transaction.
type InsufficientRefundableBalanceError struct {
	TransactionID string
	Requested     string
	Remaining     string
}

func (e *InsufficientRefundableBalanceError) Error() string {
	return fmt.Sprintf("refund of %s exceeds remaining refundable %s on transaction %s",
		e.Requested, e.Remaining, e.TransactionID)
}

// TransactionNotFoundError marks a ledger miss.
type TransactionNotFoundError struct {
	TransactionID string
}

func (e *TransactionNotFoundError) Error() string {
	return fmt.Sprintf("transaction %s not found", e.TransactionID)
}
