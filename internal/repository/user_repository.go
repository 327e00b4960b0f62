package repository

import (
	"context"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/models"
	"github.com/shopspring/decimal"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
	// GetForUpdate loads the user and holds its row lock until the enclosing
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.User, error)
	SetBalance(ctx context.Context, id string, balance decimal.Decimal) error
	SetMembership(ctx context.Context, id string, purchasedAt, expiresAt time.Time) error
	SetReferralCode(ctx context.Context, id, code string) error
	SetReferredBy(ctx context.Context, id, referrerID string) error
}
