package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/models"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const transactionColumns = `id, user_id, type, amount, balance_after, source, description, expires_at, referral_id, booking_id, created_at`

type PostgresTransactionRepository struct {
	q sqlx.ExtContext
}

func NewPostgresTransactionRepository(q sqlx.ExtContext) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{q: q}
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.WalletTransaction) (err error) {
	ctx, done := instrument(ctx, "transaction-repository", "CreateTransaction")
	defer done(&err)

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return err
	}

	if tx.Type != models.TypeCredit && tx.Type != models.TypeDebit {
		err = pkgerrors.ErrInvalidTransactionType
		slog.Error("invalid transaction type", "method", "Create", "type", tx.Type, "error", err)
		return err
	}

	if !tx.Amount.IsPositive() {
		err = pkgerrors.ErrInvalidAmount
		slog.Error("amount must be positive", "method", "Create", "amount", tx.Amount, "error", err)
		return err
	}

	if tx.Type == models.TypeDebit && tx.ExpiresAt != nil {
		err = fmt.Errorf("%w: only credits can expire", pkgerrors.ErrInvalidInput)
		return err
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("user_id", tx.UserID),
		attribute.String("type", string(tx.Type)),
		attribute.String("amount", tx.Amount.String()),
		attribute.String("source", tx.Source),
	)

	query := `INSERT INTO wallet_transactions (user_id, type, amount, balance_after, source, description, expires_at, referral_id, booking_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`
	err = r.q.QueryRowxContext(ctx, query,
		tx.UserID, tx.Type, tx.Amount, tx.BalanceAfter, tx.Source, tx.Description,
		nullableTime(tx.ExpiresAt), nullableString(tx.ReferralID), nullableString(tx.BookingID),
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		slog.Error("failed to create transaction", "method", "Create", "user_id", tx.UserID, "type", tx.Type, "error", err)
		err = fmt.Errorf("failed to create transaction: %w", err)
		return err
	}

	slog.Info("transaction created", "method", "Create", "id", tx.ID, "user_id", tx.UserID, "type", tx.Type, "source", tx.Source)
	return nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id string) (_ *models.WalletTransaction, err error) {
	ctx, done := instrument(ctx, "transaction-repository", "GetTransactionByID")
	defer done(&err)

	var tx models.WalletTransaction
	err = sqlx.GetContext(ctx, r.q, &tx, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1`, id)
	if lookupMissed(err) {
		err = pkgerrors.ErrTransactionNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		err = fmt.Errorf("failed to get transaction by id: %w", err)
		return nil, err
	}
	return &tx, nil
}

func (r *PostgresTransactionRepository) ListByUser(ctx context.Context, userID string, limit int) (_ []models.WalletTransaction, err error) {
	ctx, done := instrument(ctx, "transaction-repository", "ListTransactionsByUser")
	defer done(&err)

	txs := []models.WalletTransaction{}
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at ASC, seq ASC LIMIT $2`
	if err = sqlx.SelectContext(ctx, r.q, &txs, query, userID, limit); err != nil {
		slog.Error("failed to list transactions", "method", "ListByUser", "user_id", userID, "error", err)
		err = fmt.Errorf("failed to list transactions: %w", err)
		return nil, err
	}
	return txs, nil
}

func (r *PostgresTransactionRepository) SumExpiredCredits(ctx context.Context, userID string, now time.Time) (_ decimal.Decimal, err error) {
	ctx, done := instrument(ctx, "transaction-repository", "SumExpiredCredits")
	defer done(&err)

	var sum decimal.Decimal
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM wallet_transactions
		WHERE user_id = $1 AND type = 'credit' AND expires_at IS NOT NULL AND expires_at < $2
	`
	if err = r.q.QueryRowxContext(ctx, query, userID, now).Scan(&sum); err != nil {
		slog.Error("failed to sum expired credits", "method", "SumExpiredCredits", "user_id", userID, "error", err)
		err = fmt.Errorf("failed to sum expired credits: %w", err)
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *PostgresTransactionRepository) LedgerBalance(ctx context.Context, userID string) (_ decimal.Decimal, err error) {
	ctx, done := instrument(ctx, "transaction-repository", "LedgerBalance")
	defer done(&err)

	var balance decimal.Decimal
	query := `
		SELECT COALESCE(SUM(
			CASE
				WHEN type = 'credit' THEN amount
				WHEN type = 'debit' THEN -amount
				ELSE 0
			END
		), 0) as balance
		FROM wallet_transactions
		WHERE user_id = $1
	`
	if err = r.q.QueryRowxContext(ctx, query, userID).Scan(&balance); err != nil {
		slog.Error("failed to get ledger balance", "method", "LedgerBalance", "user_id", userID, "error", err)
		err = fmt.Errorf("failed to get balance: %w", err)
		return decimal.Zero, err
	}
	return balance, nil
}
