package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/infrastructure/kafka"
	"github.com/honeynil/RentalSettlementService/internal/infrastructure/observability"
	"github.com/honeynil/RentalSettlementService/internal/models"
	"github.com/honeynil/RentalSettlementService/internal/repository"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	platformCommissionRate = decimal.NewFromFloat(0.30)
	hundred                = decimal.NewFromInt(100)
)

type BookingService interface {
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	QuoteBooking(ctx context.Context, req QuoteRequest) (*models.BookingQuote, error)
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, now time.Time) (*models.CancellationResult, error)
	ConfirmPayment(ctx context.Context, bookingID string) (*models.Booking, error)
	StartRental(ctx context.Context, bookingID string) (*models.Booking, error)
	CompleteRental(ctx context.Context, bookingID string, actualReturn time.Time) (*models.Booking, *models.LateReturnCharge, error)
}

type QuoteRequest struct {
	UserID      string
	Start       time.Time
	End         time.Time
	HourlyRate  decimal.Decimal
	DeliveryFee decimal.Decimal
}

type CreateBookingRequest struct {
	QuoteRequest
	VehicleID string
}

type bookingService struct {
	store  repository.Store
	events publisher
	now    func() time.Time
}

func NewBookingService(store repository.Store, producer kafka.KafkaProducer, opts ...Option) *bookingService {
	o := newOptions(opts)
	return &bookingService{
		store:  store,
		events: publisher{producer: producer},
		now:    o.now,
	}
}

// RefundPercentage maps the time left before pickup to a refund tier. Each
// tier includes its lower bound.
func RefundPercentage(untilStart time.Duration) int32 {
	switch {
	case untilStart < 24*time.Hour:
		return 60
	case untilStart < 72*time.Hour:
		return 80
	default:
		return 98
	}
}

// ComputePaymentSplit takes 30% for the platform and derives the owner share
// by subtraction, so the two always add up to total.
func ComputePaymentSplit(total decimal.Decimal) models.PaymentSplit {
	commission := total.Mul(platformCommissionRate).Round(2)
	return models.PaymentSplit{
		PlatformCommission: commission,
		OwnerEarnings:      total.Sub(commission),
	}
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "GetBooking")
	defer span.End()

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return booking, nil
}

func (s *bookingService) QuoteBooking(ctx context.Context, req QuoteRequest) (*models.BookingQuote, error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "QuoteBooking")
	defer span.End()

	if !req.End.After(req.Start) {
		span.SetStatus(codes.Error, "invalid booking window")
		return nil, fmt.Errorf("%w: end must be after start", pkgerrors.ErrInvalidInput)
	}
	if !req.HourlyRate.IsPositive() || req.DeliveryFee.IsNegative() {
		span.SetStatus(codes.Error, "invalid pricing")
		return nil, pkgerrors.ErrInvalidAmount
	}

	member, err := hasActiveMembership(ctx, s.store, req.UserID, s.now())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	duration := req.End.Sub(req.Start)
	benefits := benefitsFor(member, duration)
	minutes := decimal.NewFromInt(int64(duration / time.Minute))

	quote := &models.BookingQuote{
		Hours:       minutes.Div(minutesPerHour).Round(2),
		BaseAmount:  minutes.Mul(req.HourlyRate).Div(minutesPerHour).Round(2),
		DeliveryFee: req.DeliveryFee.Round(2),
		Benefits:    benefits,
	}
	if benefits.HasFreeDelivery {
		quote.DeliveryFee = decimal.Zero
	}
	quote.TotalAmount = quote.BaseAmount.Add(quote.DeliveryFee)
	return quote, nil
}

func (s *bookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "CreateBooking")
	defer span.End()

	if req.VehicleID == "" {
		return nil, fmt.Errorf("%w: vehicle_id is required", pkgerrors.ErrInvalidInput)
	}

	quote, err := s.QuoteBooking(ctx, req.QuoteRequest)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	booking := &models.Booking{
		UserID:        req.UserID,
		VehicleID:     req.VehicleID,
		StartDate:     req.Start,
		EndDate:       req.End,
		HourlyRate:    req.HourlyRate.Round(2),
		TotalAmount:   quote.TotalAmount,
		Status:        models.BookingPending,
		PaymentStatus: models.PaymentPending,
	}
	if err := s.store.Bookings().Create(ctx, booking); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create booking")
		slog.Error("failed to create booking", "user_id", req.UserID, "vehicle_id", req.VehicleID, "error", err)
		return nil, err
	}

	slog.Info("booking created", "booking_id", booking.ID, "user_id", booking.UserID, "total_amount", booking.TotalAmount)
	s.events.booking(ctx, "booking_created", booking)
	return booking, nil
}

// CancelBooking refunds by tier and marks the booking cancelled. A second call
// fails with ErrAlreadyCancelled and leaves the first result untouched.
func (s *bookingService) CancelBooking(ctx context.Context, bookingID string, now time.Time) (*models.CancellationResult, error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "CancelBooking")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	var result *models.CancellationResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		booking, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status == models.BookingCancelled {
			return pkgerrors.ErrAlreadyCancelled
		}
		if !booking.CanTransitionTo(models.BookingCancelled) {
			return pkgerrors.ErrBookingNotCancellable
		}

		percentage := RefundPercentage(booking.StartDate.Sub(now))
		refund := booking.TotalAmount.Mul(decimal.NewFromInt32(percentage)).Div(hundred).Round(2)
		if err := tx.Bookings().MarkCancelled(ctx, booking.ID, refund, now); err != nil {
			return err
		}

		booking.Status = models.BookingCancelled
		booking.PaymentStatus = models.PaymentPartiallyRefunded
		booking.RefundAmount = decimal.NewNullDecimal(refund)
		booking.CancelledAt = &now
		result = &models.CancellationResult{
			Booking:          booking,
			RefundAmount:     refund,
			RefundPercentage: percentage,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancellation failed")
		slog.Warn("booking cancellation rejected", "booking_id", bookingID, "error", err)
		return nil, err
	}

	observability.RefundsIssued.WithLabelValues(strconv.Itoa(int(result.RefundPercentage))).Inc()
	slog.Info("booking cancelled", "booking_id", bookingID, "refund_amount", result.RefundAmount, "refund_percentage", result.RefundPercentage)
	s.events.booking(ctx, "booking_cancelled", result.Booking)
	return result, nil
}

// ConfirmPayment records a captured payment and settles the platform/owner
// split.
func (s *bookingService) ConfirmPayment(ctx context.Context, bookingID string) (*models.Booking, error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "ConfirmPayment")
	defer span.End()

	booking, err := s.transition(ctx, bookingID, models.BookingConfirmed, func(ctx context.Context, tx repository.Store, b *models.Booking) error {
		if err := tx.Bookings().UpdateStatus(ctx, b.ID, models.BookingConfirmed, models.PaymentPaid); err != nil {
			return err
		}
		split := ComputePaymentSplit(b.TotalAmount)
		if err := tx.Bookings().SetSplit(ctx, b.ID, split); err != nil {
			return err
		}
		b.Status = models.BookingConfirmed
		b.PaymentStatus = models.PaymentPaid
		b.PlatformCommission = decimal.NewNullDecimal(split.PlatformCommission)
		b.OwnerEarnings = decimal.NewNullDecimal(split.OwnerEarnings)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment confirmation failed")
		return nil, err
	}

	slog.Info("booking payment confirmed", "booking_id", booking.ID, "platform_commission", booking.PlatformCommission.Decimal, "owner_earnings", booking.OwnerEarnings.Decimal)
	s.events.booking(ctx, "booking_confirmed", booking)
	return booking, nil
}

func (s *bookingService) StartRental(ctx context.Context, bookingID string) (*models.Booking, error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "StartRental")
	defer span.End()

	booking, err := s.transition(ctx, bookingID, models.BookingActive, func(ctx context.Context, tx repository.Store, b *models.Booking) error {
		if err := tx.Bookings().UpdateStatus(ctx, b.ID, models.BookingActive, b.PaymentStatus); err != nil {
			return err
		}
		b.Status = models.BookingActive
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pickup failed")
		return nil, err
	}

	slog.Info("rental started", "booking_id", booking.ID)
	s.events.booking(ctx, "rental_started", booking)
	return booking, nil
}

// CompleteRental closes the rental and stores the late-return fee, if any,
// computed against the scheduled end date at the rate the booking was priced at.
func (s *bookingService) CompleteRental(ctx context.Context, bookingID string, actualReturn time.Time) (*models.Booking, *models.LateReturnCharge, error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "CompleteRental")
	defer span.End()

	var charge *models.LateReturnCharge
	booking, err := s.transition(ctx, bookingID, models.BookingCompleted, func(ctx context.Context, tx repository.Store, b *models.Booking) error {
		var err error
		charge, err = lateReturnCharge(ctx, tx, b.UserID, b.EndDate, actualReturn, b.HourlyRate, b.Duration(), s.now())
		if err != nil {
			return err
		}
		if err := tx.Bookings().UpdateStatus(ctx, b.ID, models.BookingCompleted, b.PaymentStatus); err != nil {
			return err
		}
		if err := tx.Bookings().SetLateFee(ctx, b.ID, charge.LateCharge); err != nil {
			return err
		}
		b.Status = models.BookingCompleted
		b.LateFee = decimal.NewNullDecimal(charge.LateCharge)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "return failed")
		return nil, nil, err
	}

	slog.Info("rental completed", "booking_id", booking.ID, "late_minutes", charge.LateMinutes, "late_fee", charge.LateCharge)
	s.events.booking(ctx, "rental_completed", booking)
	return booking, charge, nil
}

// transition locks the booking, checks the lifecycle allows next and runs
// apply in the same transaction.
func (s *bookingService) transition(ctx context.Context, bookingID string, next models.BookingStatus, apply func(ctx context.Context, tx repository.Store, b *models.Booking) error) (*models.Booking, error) {
	var booking *models.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		booking, err = tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !booking.CanTransitionTo(next) {
			slog.Warn("invalid booking transition", "booking_id", bookingID, "from", booking.Status, "to", next)
			return fmt.Errorf("%w: %s -> %s", pkgerrors.ErrInvalidBookingTransition, booking.Status, next)
		}
		return apply(ctx, tx, booking)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}
