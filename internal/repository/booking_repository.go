package repository

import (
	"context"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/models"
	"github.com/shopspring/decimal"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	GetForUpdate(ctx context.Context, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id string, status models.BookingStatus, paymentStatus models.PaymentStatus) error
	MarkCancelled(ctx context.Context, id string, refund decimal.Decimal, cancelledAt time.Time) error
	SetSplit(ctx context.Context, id string, split models.PaymentSplit) error
	SetLateFee(ctx context.Context, id string, fee decimal.Decimal) error
}
