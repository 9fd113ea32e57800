package interfaces

import (
	"context"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

// DedupeStore remembers webhook dedupe keys. MarkProcessed returns false
// when the key was already present, which makes redelivery a no-op.
type DedupeStore interface {
	MarkProcessed(ctx context.Context, key string) (bool, error)
}

// TransactionLocker serializes status mutations per transaction id. Lock
// blocks until the id is free and returns the matching unlock. Unrelated
// transactions never contend.
type TransactionLocker interface {
	Lock(id string) (unlock func())
}

// AuditSink receives a copy of every state transition and every rejected or
// suspicious operation. Fire-and-forget: a failing sink must never block a
// payment.
type AuditSink interface {
	RecordTransition(ctx context.Context, event models.TransitionEvent)
	RecordAnomaly(ctx context.Context, kind, transactionID, detail string)
}
