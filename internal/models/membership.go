package models

import "github.com/shopspring/decimal"

type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodOnline PaymentMethod = "online"
)

type MembershipBenefits struct {
	HasFreeDelivery  bool `json:"has_free_delivery"`
	HasLateFeeWaiver bool `json:"has_late_fee_waiver"`
}

type LateReturnCharge struct {
	IsLate            bool            `json:"is_late"`
	LateMinutes       int64           `json:"late_minutes"`
	ChargeableMinutes int64           `json:"chargeable_minutes"`
	WaivedMinutes     int64           `json:"waived_minutes"`
	LateFeeWaived     bool            `json:"late_fee_waived"`
	LateCharge        decimal.Decimal `json:"late_charge"`
}
