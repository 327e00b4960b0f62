package models

import "github.com/shopspring/decimal"

type CancellationResult struct {
	Booking          *Booking        `json:"booking"`
	RefundAmount     decimal.Decimal `json:"refund_amount"`
	RefundPercentage int32           `json:"refund_percentage"`
}

type PaymentSplit struct {
	PlatformCommission decimal.Decimal `json:"platform_commission"`
	OwnerEarnings      decimal.Decimal `json:"owner_earnings"`
}

type BookingQuote struct {
	Hours       decimal.Decimal    `json:"hours"`
	BaseAmount  decimal.Decimal    `json:"base_amount"`
	DeliveryFee decimal.Decimal    `json:"delivery_fee"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Benefits    MembershipBenefits `json:"benefits"`
}

type LedgerReport struct {
	UserID        string          `json:"user_id"`
	StoredBalance decimal.Decimal `json:"stored_balance"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	Consistent    bool            `json:"consistent"`
}
