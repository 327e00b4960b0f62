package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/RentalSettlementService/internal/models"
	repository "github.com/honeynil/RentalSettlementService/internal/repository/postgres"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingColumns = []string{"id", "user_id", "vehicle_id", "start_date", "end_date", "hourly_rate", "total_amount", "status", "payment_status", "refund_amount", "cancelled_at", "platform_commission", "owner_earnings", "late_fee", "created_at"}

func TestPostgresBookingRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPostgresBookingRepository(db)
	ctx := context.Background()
	start := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	t.Run("NilBooking", func(t *testing.T) {
		assert.ErrorIs(t, repo.Create(ctx, nil), pkgerrors.ErrNilBooking)
	})

	t.Run("EmptyWindow", func(t *testing.T) {
		err := repo.Create(ctx, &models.Booking{UserID: "user-1", StartDate: start, EndDate: start})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		booking := &models.Booking{
			UserID:        "user-1",
			VehicleID:     "vehicle-1",
			StartDate:     start,
			EndDate:       start.Add(5 * time.Hour),
			HourlyRate:    decimal.NewFromInt(100),
			TotalAmount:   decimal.NewFromInt(520),
			Status:        models.BookingPending,
			PaymentStatus: models.PaymentPending,
		}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO bookings (user_id, vehicle_id, start_date, end_date, hourly_rate, total_amount, status, payment_status)`)).
			WithArgs("user-1", "vehicle-1", booking.StartDate, booking.EndDate, booking.HourlyRate, booking.TotalAmount, models.BookingPending, models.PaymentPending).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("booking-1", start.Add(-time.Hour)))

		require.NoError(t, repo.Create(ctx, booking))
		assert.Equal(t, "booking-1", booking.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresBookingRepository_GetForUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPostgresBookingRepository(db)
	ctx := context.Background()
	query := regexp.QuoteMeta(`FROM bookings WHERE id = $1 FOR UPDATE`)
	start := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("booking-1").
			WillReturnRows(sqlmock.NewRows(bookingColumns).
				AddRow("booking-1", "user-1", "vehicle-1", start, start.Add(5*time.Hour), "100.00", "520.00", "confirmed", "paid",
					nil, nil, "156.00", "364.00", nil, start.Add(-time.Hour)))

		booking, err := repo.GetForUpdate(ctx, "booking-1")
		require.NoError(t, err)
		assert.Equal(t, models.BookingConfirmed, booking.Status)
		assert.Equal(t, 5*time.Hour, booking.Duration())
		assert.Equal(t, "100.00", booking.HourlyRate.StringFixed(2))
		assert.True(t, booking.PlatformCommission.Valid)
		assert.Equal(t, "156.00", booking.PlatformCommission.Decimal.StringFixed(2))
		assert.False(t, booking.RefundAmount.Valid)
		assert.Nil(t, booking.CancelledAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("missing").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetForUpdate(ctx, "missing")
		assert.ErrorIs(t, err, pkgerrors.ErrBookingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MalformedID", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("../etc").
			WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "../etc"`})

		_, err := repo.GetForUpdate(ctx, "../etc")
		assert.ErrorIs(t, err, pkgerrors.ErrBookingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("booking-1").
			WillReturnError(&pq.Error{Code: "57014", Message: "canceling statement due to statement timeout"})

		_, err := repo.GetForUpdate(ctx, "booking-1")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, pkgerrors.ErrBookingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresBookingRepository_MarkCancelled(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPostgresBookingRepository(db)
	ctx := context.Background()
	update := regexp.QuoteMeta(`UPDATE bookings SET status = $1, payment_status = $2, refund_amount = $3, cancelled_at = $4 WHERE id = $5 AND status <> $1`)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	refund := decimal.NewFromInt(1200)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(update).
			WithArgs(models.BookingCancelled, models.PaymentPartiallyRefunded, refund, now, "booking-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkCancelled(ctx, "booking-1", refund, now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyCancelled", func(t *testing.T) {
		mock.ExpectExec(update).
			WithArgs(models.BookingCancelled, models.PaymentPartiallyRefunded, refund, now, "booking-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkCancelled(ctx, "booking-1", refund, now)
		assert.ErrorIs(t, err, pkgerrors.ErrAlreadyCancelled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectExec(update).WillReturnError(errors.New("connection refused"))

		err := repo.MarkCancelled(ctx, "booking-1", refund, now)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, pkgerrors.ErrAlreadyCancelled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresBookingRepository_Settlement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPostgresBookingRepository(db)
	ctx := context.Background()

	t.Run("UpdateStatus", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET status = $1, payment_status = $2 WHERE id = $3`)).
			WithArgs(models.BookingConfirmed, models.PaymentPaid, "booking-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdateStatus(ctx, "booking-1", models.BookingConfirmed, models.PaymentPaid))
	})

	t.Run("SetSplit", func(t *testing.T) {
		split := models.PaymentSplit{PlatformCommission: decimal.NewFromInt(300), OwnerEarnings: decimal.NewFromInt(700)}
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET platform_commission = $1, owner_earnings = $2 WHERE id = $3`)).
			WithArgs(split.PlatformCommission, split.OwnerEarnings, "booking-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.SetSplit(ctx, "booking-1", split))
	})

	t.Run("SetLateFeeMissingBooking", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET late_fee = $1 WHERE id = $2`)).
			WithArgs(decimal.RequireFromString("66.67"), "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SetLateFee(ctx, "missing", decimal.RequireFromString("66.67"))
		assert.ErrorIs(t, err, pkgerrors.ErrBookingNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
