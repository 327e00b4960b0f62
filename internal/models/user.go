package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID                    string          `json:"id" db:"id"`
	Name                  string          `json:"name" db:"name"`
	Email                 string          `json:"email" db:"email"`
	WalletBalance         decimal.Decimal `json:"wallet_balance" db:"wallet_balance"`
	HasMembership         bool            `json:"has_membership" db:"has_membership"`
	MembershipPurchasedAt *time.Time      `json:"membership_purchased_at,omitempty" db:"membership_purchased_at"`
	MembershipExpiresAt   *time.Time      `json:"membership_expires_at,omitempty" db:"membership_expires_at"`
	ReferralCode          *string         `json:"referral_code,omitempty" db:"referral_code"`
	ReferredBy            *string         `json:"referred_by,omitempty" db:"referred_by"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
}

// HasActiveMembership reports whether the membership flag is set and the expiry
// is strictly after now.
func (u *User) HasActiveMembership(now time.Time) bool {
	return u.HasMembership && u.MembershipExpiresAt != nil && u.MembershipExpiresAt.After(now)
}
