package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletTransaction struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	Type         TransactionType `json:"type" db:"type"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after" db:"balance_after"`
	Source       string          `json:"source" db:"source"`
	Description  string          `json:"description" db:"description"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	ReferralID   *string         `json:"referral_id,omitempty" db:"referral_id"`
	BookingID    *string         `json:"booking_id,omitempty" db:"booking_id"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

type TransactionType string

const (
	TypeCredit TransactionType = "credit"
	TypeDebit  TransactionType = "debit"
)

// Provenance tags stored in WalletTransaction.Source.
const (
	SourceReferral           = "referral"
	SourceMembershipPurchase = "membership_purchase"
)

// IsExpiredAt reports whether the transaction is a credit whose expiry has passed.
func (t *WalletTransaction) IsExpiredAt(now time.Time) bool {
	return t.Type == TypeCredit && t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
