package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Referral struct {
	ID         string          `json:"id" db:"id"`
	ReferrerID string          `json:"referrer_id" db:"referrer_id"`
	RefereeID  string          `json:"referee_id" db:"referee_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Status     ReferralStatus  `json:"status" db:"status"`
	ExpiresAt  time.Time       `json:"expires_at" db:"expires_at"`
	CreditedAt *time.Time      `json:"credited_at,omitempty" db:"credited_at"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

type ReferralStatus string

const (
	ReferralPending  ReferralStatus = "pending"
	ReferralCredited ReferralStatus = "credited"
)
