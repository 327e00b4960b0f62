package repository

import (
	"context"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/models"
	"github.com/shopspring/decimal"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.WalletTransaction) error
	GetByID(ctx context.Context, id string) (*models.WalletTransaction, error)
	// ListByUser returns at most limit transactions, oldest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error)
	SumExpiredCredits(ctx context.Context, userID string, now time.Time) (decimal.Decimal, error)
	// LedgerBalance replays the full log: sum of credits minus sum of debits.
	LedgerBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}
