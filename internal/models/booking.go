package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Booking struct {
	ID                 string              `json:"id" db:"id"`
	UserID             string              `json:"user_id" db:"user_id"`
	VehicleID          string              `json:"vehicle_id" db:"vehicle_id"`
	StartDate          time.Time           `json:"start_date" db:"start_date"`
	EndDate            time.Time           `json:"end_date" db:"end_date"`
	HourlyRate         decimal.Decimal     `json:"hourly_rate" db:"hourly_rate"`
	TotalAmount        decimal.Decimal     `json:"total_amount" db:"total_amount"`
	Status             BookingStatus       `json:"status" db:"status"`
	PaymentStatus      PaymentStatus       `json:"payment_status" db:"payment_status"`
	RefundAmount       decimal.NullDecimal `json:"refund_amount" db:"refund_amount"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty" db:"cancelled_at"`
	PlatformCommission decimal.NullDecimal `json:"platform_commission" db:"platform_commission"`
	OwnerEarnings      decimal.NullDecimal `json:"owner_earnings" db:"owner_earnings"`
	LateFee            decimal.NullDecimal `json:"late_fee" db:"late_fee"`
	CreatedAt          time.Time           `json:"created_at" db:"created_at"`
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentFailed            PaymentStatus = "failed"
)

// Duration is the scheduled rental length.
func (b *Booking) Duration() time.Duration {
	return b.EndDate.Sub(b.StartDate)
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
// Cancellation is allowed from every state before completion.
func (b *Booking) CanTransitionTo(next BookingStatus) bool {
	switch next {
	case BookingConfirmed:
		return b.Status == BookingPending
	case BookingActive:
		return b.Status == BookingConfirmed
	case BookingCompleted:
		return b.Status == BookingActive
	case BookingCancelled:
		return b.Status == BookingPending || b.Status == BookingConfirmed || b.Status == BookingActive
	}
	return false
}
