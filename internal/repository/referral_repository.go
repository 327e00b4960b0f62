package repository

import (
	"context"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/models"
)

type ReferralRepository interface {
	Create(ctx context.Context, referral *models.Referral) error
	GetByID(ctx context.Context, id string) (*models.Referral, error)
	MarkCredited(ctx context.Context, id string, creditedAt time.Time) error
	ListByReferrer(ctx context.Context, referrerID string) ([]models.Referral, error)
}
