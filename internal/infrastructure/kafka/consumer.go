package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/honeynil/RentalSettlementService/internal/infrastructure/redis"
	"github.com/honeynil/RentalSettlementService/internal/models"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const (
	EventMembershipPaymentCaptured = "membership_payment_captured"
	EventBookingPaymentCaptured    = "booking_payment_captured"
)

// MembershipActivator and PaymentConfirmer are the parts of the membership and
// booking services that payment events drive.
type MembershipActivator interface {
	PurchaseMembership(ctx context.Context, userID string, method models.PaymentMethod) (*models.User, error)
}

type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, bookingID string) (*models.Booking, error)
}

type PaymentEvent struct {
	EventType string `json:"event_type"`
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id,omitempty"`
	BookingID string `json:"booking_id,omitempty"`
}

// messageReader is the part of *kafka.Reader the consumer drives. Offsets are
// committed explicitly, so a message is only acknowledged once handled.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader      messageReader
	memberships MembershipActivator
	bookings    PaymentConfirmer
	dedup       *redis.Deduplicator
	newBackOff  func() backoff.BackOff
}

// retryBackOff never gives up: a message that keeps failing holds its
// partition until it succeeds or the consumer stops.
func retryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func NewConsumer(brokers []string, groupID string, memberships MembershipActivator, bookings PaymentConfirmer, dedup *redis.Deduplicator) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    TopicPayments,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		memberships: memberships,
		bookings:    bookings,
		dedup:       dedup,
		newBackOff:  retryBackOff,
	}
}

// Consume reads payment events until ctx is cancelled or the reader is
// closed. An offset is committed only after its message was applied or
// rejected for good; a stop mid-retry leaves it for redelivery.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, io.EOF) {
				slog.Info("payment consumer stopped")
				return
			}
			slog.Error("failed to fetch Kafka message", "topic", TopicPayments, "error", err)
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
		if err := c.process(ctx, msg); err != nil {
			slog.Warn("payment event left uncommitted", "offset", msg.Offset, "key", string(msg.Key), "error", err)
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			slog.Error("failed to commit Kafka message", "offset", msg.Offset, "key", string(msg.Key), "error", err)
		}
	}
}

// process retries HandleMessage on transient errors. Malformed events are
// logged and reported as handled so they do not block the partition.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	op := func() error {
		err := c.HandleMessage(ctx, msg)
		if stderrors.Is(err, pkgerrors.ErrInvalidInput) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("retrying payment event", "offset", msg.Offset, "key", string(msg.Key), "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify)
	if stderrors.Is(err, pkgerrors.ErrInvalidInput) {
		slog.Error("dropping malformed payment event", "offset", msg.Offset, "key", string(msg.Key), "error", err)
		return nil
	}
	return err
}

// HandleMessage applies one payment event. Each payment id is applied once;
// the claim is released on failure so a redelivery can retry it.
func (c *Consumer) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("%w: failed to unmarshal payment event: %v", pkgerrors.ErrInvalidInput, err)
	}
	if event.PaymentID == "" {
		return fmt.Errorf("%w: missing payment_id", pkgerrors.ErrInvalidInput)
	}

	claimed, err := c.dedup.Claim(ctx, event.PaymentID)
	if err != nil {
		return err
	}
	if !claimed {
		slog.Info("payment event already processed", "payment_id", event.PaymentID)
		return nil
	}

	err = c.apply(ctx, event)
	switch {
	case err == nil:
		c.dedup.Complete(ctx, event.PaymentID)
		return nil
	case stderrors.Is(err, pkgerrors.ErrAlreadyMember),
		stderrors.Is(err, pkgerrors.ErrInvalidBookingTransition),
		stderrors.Is(err, pkgerrors.ErrInvalidInput):
		// Retrying cannot succeed; the payment needs manual reconciliation.
		slog.Warn("payment event rejected", "payment_id", event.PaymentID, "event_type", event.EventType, "error", err)
		c.dedup.Complete(ctx, event.PaymentID)
		return nil
	default:
		c.dedup.Release(ctx, event.PaymentID)
		return err
	}
}

func (c *Consumer) apply(ctx context.Context, event PaymentEvent) error {
	switch event.EventType {
	case EventMembershipPaymentCaptured:
		if event.UserID == "" {
			return fmt.Errorf("%w: missing user_id", pkgerrors.ErrInvalidInput)
		}
		if _, err := c.memberships.PurchaseMembership(ctx, event.UserID, models.PaymentMethodOnline); err != nil {
			return err
		}
		slog.Info("membership activated from payment", "payment_id", event.PaymentID, "user_id", event.UserID)
	case EventBookingPaymentCaptured:
		if event.BookingID == "" {
			return fmt.Errorf("%w: missing booking_id", pkgerrors.ErrInvalidInput)
		}
		if _, err := c.bookings.ConfirmPayment(ctx, event.BookingID); err != nil {
			return err
		}
		slog.Info("booking confirmed from payment", "payment_id", event.PaymentID, "booking_id", event.BookingID)
	default:
		return fmt.Errorf("%w: unknown event type %q", pkgerrors.ErrInvalidInput, event.EventType)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
