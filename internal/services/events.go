package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/infrastructure/kafka"
	"github.com/honeynil/RentalSettlementService/internal/models"
)

// publisher sends domain events after the storage transaction has committed.
// Failures are only logged.
type publisher struct {
	producer kafka.KafkaProducer
}

func (p publisher) emit(ctx context.Context, topic, key string, event map[string]interface{}) {
	if p.producer == nil {
		return
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal kafka event", "topic", topic, "key", key, "error", err)
		return
	}
	if err := p.producer.Send(context.WithoutCancel(ctx), topic, key, eventBytes); err != nil {
		slog.Error("failed to publish event", "topic", topic, "key", key, "event_type", event["event_type"], "error", err)
	}
}

func (p publisher) walletTransaction(ctx context.Context, tx *models.WalletTransaction) {
	p.emit(ctx, kafka.TopicWalletTransactions, tx.UserID, map[string]interface{}{
		"event_type":     "wallet_" + string(tx.Type),
		"transaction_id": tx.ID,
		"user_id":        tx.UserID,
		"amount":         tx.Amount.StringFixed(2),
		"balance_after":  tx.BalanceAfter.StringFixed(2),
		"source":         tx.Source,
		"created_at":     tx.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (p publisher) booking(ctx context.Context, eventType string, b *models.Booking) {
	event := map[string]interface{}{
		"event_type":     eventType,
		"booking_id":     b.ID,
		"user_id":        b.UserID,
		"vehicle_id":     b.VehicleID,
		"status":         b.Status,
		"payment_status": b.PaymentStatus,
		"total_amount":   b.TotalAmount.StringFixed(2),
	}
	if b.RefundAmount.Valid {
		event["refund_amount"] = b.RefundAmount.Decimal.StringFixed(2)
	}
	if b.PlatformCommission.Valid && b.OwnerEarnings.Valid {
		event["platform_commission"] = b.PlatformCommission.Decimal.StringFixed(2)
		event["owner_earnings"] = b.OwnerEarnings.Decimal.StringFixed(2)
	}
	if b.LateFee.Valid {
		event["late_fee"] = b.LateFee.Decimal.StringFixed(2)
	}
	p.emit(ctx, kafka.TopicBookings, b.ID, event)
}
