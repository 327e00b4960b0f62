package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/honeynil/RentalSettlementService/internal/infrastructure/kafka"
	"github.com/honeynil/RentalSettlementService/internal/infrastructure/observability"
	"github.com/honeynil/RentalSettlementService/internal/models"
	"github.com/honeynil/RentalSettlementService/internal/repository"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultHistoryLimit = 50

type WalletService interface {
	Credit(ctx context.Context, req CreditRequest) (*models.WalletTransaction, error)
	Debit(ctx context.Context, req DebitRequest) (*models.WalletTransaction, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	GetActiveBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	GetTransactionHistory(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error)
	VerifyLedger(ctx context.Context, userID string) (*models.LedgerReport, error)
}

type CreditRequest struct {
	UserID      string
	Amount      decimal.Decimal
	Source      string
	Description string
	ExpiresAt   *time.Time
	ReferralID  *string
	BookingID   *string
}

type DebitRequest struct {
	UserID      string
	Amount      decimal.Decimal
	Source      string
	Description string
	BookingID   *string
}

type walletService struct {
	store  repository.Store
	events publisher
	now    func() time.Time
}

func NewWalletService(store repository.Store, producer kafka.KafkaProducer, opts ...Option) *walletService {
	o := newOptions(opts)
	return &walletService{
		store:  store,
		events: publisher{producer: producer},
		now:    o.now,
	}
}

func (s *walletService) Credit(ctx context.Context, req CreditRequest) (*models.WalletTransaction, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "Credit")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", req.UserID), attribute.String("amount", req.Amount.String()))

	var entry *models.WalletTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		entry, err = s.applyCredit(ctx, tx, req)
		return err
	})
	if err != nil {
		observability.WalletOperations.WithLabelValues("credit", outcome(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "credit failed")
		return nil, err
	}

	observability.WalletOperations.WithLabelValues("credit", "success").Inc()
	s.events.walletTransaction(ctx, entry)
	return entry, nil
}

func (s *walletService) Debit(ctx context.Context, req DebitRequest) (*models.WalletTransaction, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "Debit")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", req.UserID), attribute.String("amount", req.Amount.String()))

	var entry *models.WalletTransaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		entry, err = s.applyDebit(ctx, tx, req)
		return err
	})
	if err != nil {
		observability.WalletOperations.WithLabelValues("debit", outcome(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "debit failed")
		return nil, err
	}

	observability.WalletOperations.WithLabelValues("debit", "success").Inc()
	s.events.walletTransaction(ctx, entry)
	return entry, nil
}

// validAmount accepts positive amounts in whole cents. Balances are stored with
// two decimals, so a finer amount would make the scalar and the ledger round
// differently.
func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

// applyCredit locks the user row, moves the scalar balance and appends the
// ledger entry. It must run inside tx.
func (s *walletService) applyCredit(ctx context.Context, tx repository.Store, req CreditRequest) (*models.WalletTransaction, error) {
	if !validAmount(req.Amount) {
		slog.Warn("rejected credit amount", "user_id", req.UserID, "amount", req.Amount)
		return nil, pkgerrors.ErrInvalidAmount
	}

	user, err := tx.Users().GetForUpdate(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	newBalance := user.WalletBalance.Add(req.Amount)
	if err := tx.Users().SetBalance(ctx, user.ID, newBalance); err != nil {
		slog.Error("failed to update balance", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	entry := &models.WalletTransaction{
		UserID:       user.ID,
		Type:         models.TypeCredit,
		Amount:       req.Amount,
		BalanceAfter: newBalance,
		Source:       req.Source,
		Description:  req.Description,
		ExpiresAt:    req.ExpiresAt,
		ReferralID:   req.ReferralID,
		BookingID:    req.BookingID,
	}
	if err := tx.Transactions().Create(ctx, entry); err != nil {
		return nil, err
	}

	observability.WithContext(ctx, "user_id", user.ID).Info("wallet credited", "amount", req.Amount, "balance_after", newBalance, "source", req.Source)
	return entry, nil
}

// applyDebit is the debit counterpart of applyCredit. An insufficient balance
// is detected before any write so the rejection leaves no trace.
func (s *walletService) applyDebit(ctx context.Context, tx repository.Store, req DebitRequest) (*models.WalletTransaction, error) {
	if !validAmount(req.Amount) {
		slog.Warn("rejected debit amount", "user_id", req.UserID, "amount", req.Amount)
		return nil, pkgerrors.ErrInvalidAmount
	}

	user, err := tx.Users().GetForUpdate(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if req.Amount.GreaterThan(user.WalletBalance) {
		slog.Warn("insufficient balance", "user_id", user.ID, "balance", user.WalletBalance, "amount", req.Amount)
		return nil, pkgerrors.ErrInsufficientBalance
	}

	newBalance := user.WalletBalance.Sub(req.Amount)
	if err := tx.Users().SetBalance(ctx, user.ID, newBalance); err != nil {
		slog.Error("failed to update balance", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	entry := &models.WalletTransaction{
		UserID:       user.ID,
		Type:         models.TypeDebit,
		Amount:       req.Amount,
		BalanceAfter: newBalance,
		Source:       req.Source,
		Description:  req.Description,
		BookingID:    req.BookingID,
	}
	if err := tx.Transactions().Create(ctx, entry); err != nil {
		return nil, err
	}

	observability.WithContext(ctx, "user_id", user.ID).Info("wallet debited", "amount", req.Amount, "balance_after", newBalance, "source", req.Source)
	return entry, nil
}

func (s *walletService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "GetBalance")
	defer span.End()

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return decimal.Zero, err
	}
	return user.WalletBalance, nil
}

// GetActiveBalance is the stored balance minus every credit whose expiry has
// passed, floored at zero. Nothing is written.
func (s *walletService) GetActiveBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "GetActiveBalance")
	defer span.End()

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return decimal.Zero, err
	}
	active, err := activeBalance(ctx, s.store, user, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compute active balance")
		return decimal.Zero, err
	}
	return active, nil
}

func activeBalance(ctx context.Context, store repository.Store, user *models.User, now time.Time) (decimal.Decimal, error) {
	expired, err := store.Transactions().SumExpiredCredits(ctx, user.ID, now)
	if err != nil {
		slog.Error("failed to sum expired credits", "user_id", user.ID, "error", err)
		return decimal.Zero, fmt.Errorf("%w: failed to sum expired credits", pkgerrors.ErrInternal)
	}
	active := user.WalletBalance.Sub(expired)
	if active.IsNegative() {
		return decimal.Zero, nil
	}
	return active, nil
}

func (s *walletService) GetTransactionHistory(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "GetTransactionHistory")
	defer span.End()

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	transactions, err := s.store.Transactions().ListByUser(ctx, userID, limit)
	if err != nil {
		slog.Error("failed to get transaction history", "user_id", userID, "error", err)
		span.RecordError(err)
		return nil, err
	}

	slog.Info("transaction history retrieved", "user_id", userID, "count", len(transactions))
	return transactions, nil
}

// VerifyLedger replays the transaction log and compares it with the stored
// balance. Both reads share one transaction so a concurrent write cannot land
// between them.
func (s *walletService) VerifyLedger(ctx context.Context, userID string) (*models.LedgerReport, error) {
	tracer := otel.Tracer("wallet-service")
	ctx, span := tracer.Start(ctx, "VerifyLedger")
	defer span.End()

	report := &models.LedgerReport{UserID: userID}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		user, err := tx.Users().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		ledger, err := tx.Transactions().LedgerBalance(ctx, userID)
		if err != nil {
			return err
		}
		report.StoredBalance = user.WalletBalance
		report.LedgerBalance = ledger
		report.Consistent = user.WalletBalance.Equal(ledger)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger verification failed")
		return nil, err
	}

	if !report.Consistent {
		observability.WithContext(ctx, "user_id", userID).Error("wallet ledger diverged", "stored", report.StoredBalance, "ledger", report.LedgerBalance)
	}
	return report, nil
}

// outcome labels a failed operation for metrics.
func outcome(err error) string {
	switch {
	case stderrors.Is(err, pkgerrors.ErrInsufficientBalance),
		stderrors.Is(err, pkgerrors.ErrInvalidAmount),
		stderrors.Is(err, pkgerrors.ErrUserNotFound),
		stderrors.Is(err, pkgerrors.ErrAlreadyMember):
		return "rejected"
	default:
		return "error"
	}
}
