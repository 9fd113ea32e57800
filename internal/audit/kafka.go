// Package audit fans state transitions and anomalies out to an external
// sink. Delivery is fire-and-forget: a broken sink is logged and the
// payment path carries on.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/telemetry"
)

const publishTimeout = 5 * time.Second

// KafkaSink publishes audit records to a Kafka topic keyed by transaction
// id.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers),
			Topic:    "payment.audit",
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func (s *KafkaSink) RecordTransition(ctx context.Context, event models.TransitionEvent) {
	payload := map[string]any{
		"kind":           "transition",
		"transaction_id": event.TransactionID,
		"from":           event.From,
		"to":             event.To,
		"source":         event.Source,
		"timestamp":      event.OccurredAt,
	}
	s.publish(event.TransactionID, payload)
}

func (s *KafkaSink) RecordAnomaly(ctx context.Context, kind, transactionID, detail string) {
	payload := map[string]any{
		"kind":           "anomaly",
		"anomaly":        kind,
		"transaction_id": transactionID,
		"detail":         detail,
		"timestamp":      time.Now().UTC(),
	}
	s.publish(transactionID, payload)
}

func (s *KafkaSink) publish(key string, payload map[string]any) {
	data, _ := json.Marshal(payload)
	// Detached context: the audit copy must not inherit a caller deadline
	// that is already spent.
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data}); err != nil {
		telemetry.Logger.Warn("audit publish failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// LogSink writes audit records to the structured log only. Used when no
// broker is configured and in tests.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) RecordTransition(ctx context.Context, event models.TransitionEvent) {
	telemetry.Logger.Info("audit transition",
		zap.String("transaction_id", event.TransactionID),
		zap.String("from", string(event.From)),
		zap.String("to", string(event.To)),
		zap.String("source", event.Source),
	)
}

func (s *LogSink) RecordAnomaly(ctx context.Context, kind, transactionID, detail string) {
	telemetry.Logger.Warn("audit anomaly",
		zap.String("anomaly", kind),
		zap.String("transaction_id", transactionID),
		zap.String("detail", detail),
	)
}
