package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/models"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const bookingColumns = `id, user_id, vehicle_id, start_date, end_date, hourly_rate, total_amount, status, payment_status, refund_amount, cancelled_at, platform_commission, owner_earnings, late_fee, created_at`

type PostgresBookingRepository struct {
	q sqlx.ExtContext
}

func NewPostgresBookingRepository(q sqlx.ExtContext) *PostgresBookingRepository {
	return &PostgresBookingRepository{q: q}
}

func (r *PostgresBookingRepository) Create(ctx context.Context, booking *models.Booking) (err error) {
	ctx, done := instrument(ctx, "booking-repository", "CreateBooking")
	defer done(&err)

	if booking == nil {
		err = pkgerrors.ErrNilBooking
		return err
	}
	if !booking.EndDate.After(booking.StartDate) {
		err = fmt.Errorf("%w: end date must be after start date", pkgerrors.ErrInvalidInput)
		return err
	}

	query := `INSERT INTO bookings (user_id, vehicle_id, start_date, end_date, hourly_rate, total_amount, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`
	err = r.q.QueryRowxContext(ctx, query,
		booking.UserID, booking.VehicleID, booking.StartDate, booking.EndDate,
		booking.HourlyRate, booking.TotalAmount, booking.Status, booking.PaymentStatus,
	).Scan(&booking.ID, &booking.CreatedAt)
	if err != nil {
		slog.Error("failed to create booking", "method", "Create", "user_id", booking.UserID, "vehicle_id", booking.VehicleID, "error", err)
		err = fmt.Errorf("failed to create booking: %w", err)
		return err
	}

	slog.Info("booking created", "method", "Create", "id", booking.ID, "user_id", booking.UserID)
	return nil
}

func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (_ *models.Booking, err error) {
	ctx, done := instrument(ctx, "booking-repository", "GetBookingByID")
	defer done(&err)
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *PostgresBookingRepository) GetForUpdate(ctx context.Context, id string) (_ *models.Booking, err error) {
	ctx, done := instrument(ctx, "booking-repository", "GetBookingForUpdate")
	defer done(&err)
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresBookingRepository) get(ctx context.Context, query, id string) (*models.Booking, error) {
	var booking models.Booking
	err := sqlx.GetContext(ctx, r.q, &booking, query, id)
	if lookupMissed(err) {
		return nil, pkgerrors.ErrBookingNotFound
	}
	if err != nil {
		slog.Error("failed to get booking", "booking_id", id, "error", err)
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

func (r *PostgresBookingRepository) UpdateStatus(ctx context.Context, id string, status models.BookingStatus, paymentStatus models.PaymentStatus) (err error) {
	ctx, done := instrument(ctx, "booking-repository", "UpdateBookingStatus")
	defer done(&err)

	err = execOne(ctx, r.q, pkgerrors.ErrBookingNotFound,
		`UPDATE bookings SET status = $1, payment_status = $2 WHERE id = $3`, status, paymentStatus, id)
	if err != nil && !stderrors.Is(err, pkgerrors.ErrBookingNotFound) {
		err = fmt.Errorf("failed to update booking status: %w", err)
	}
	return err
}

// MarkCancelled refuses to touch a booking that is already cancelled.
func (r *PostgresBookingRepository) MarkCancelled(ctx context.Context, id string, refund decimal.Decimal, cancelledAt time.Time) (err error) {
	ctx, done := instrument(ctx, "booking-repository", "MarkBookingCancelled")
	defer done(&err)

	err = execOne(ctx, r.q, pkgerrors.ErrAlreadyCancelled,
		`UPDATE bookings SET status = $1, payment_status = $2, refund_amount = $3, cancelled_at = $4 WHERE id = $5 AND status <> $1`,
		models.BookingCancelled, models.PaymentPartiallyRefunded, refund, cancelledAt, id)
	if err != nil && !stderrors.Is(err, pkgerrors.ErrAlreadyCancelled) {
		slog.Error("failed to cancel booking", "method", "MarkCancelled", "booking_id", id, "error", err)
		err = fmt.Errorf("failed to cancel booking: %w", err)
	}
	return err
}

func (r *PostgresBookingRepository) SetSplit(ctx context.Context, id string, split models.PaymentSplit) (err error) {
	ctx, done := instrument(ctx, "booking-repository", "SetBookingSplit")
	defer done(&err)

	err = execOne(ctx, r.q, pkgerrors.ErrBookingNotFound,
		`UPDATE bookings SET platform_commission = $1, owner_earnings = $2 WHERE id = $3`,
		split.PlatformCommission, split.OwnerEarnings, id)
	if err != nil && !stderrors.Is(err, pkgerrors.ErrBookingNotFound) {
		err = fmt.Errorf("failed to set payment split: %w", err)
	}
	return err
}

func (r *PostgresBookingRepository) SetLateFee(ctx context.Context, id string, fee decimal.Decimal) (err error) {
	ctx, done := instrument(ctx, "booking-repository", "SetBookingLateFee")
	defer done(&err)

	err = execOne(ctx, r.q, pkgerrors.ErrBookingNotFound,
		`UPDATE bookings SET late_fee = $1 WHERE id = $2`, fee, id)
	if err != nil && !stderrors.Is(err, pkgerrors.ErrBookingNotFound) {
		err = fmt.Errorf("failed to set late fee: %w", err)
	}
	return err
}
