package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/honeynil/RentalSettlementService/internal/repository"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is the PostgreSQL implementation of repository.Store.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

func (s *Store) Users() repository.UserRepository {
	return NewPostgresUserRepository(s.q)
}

func (s *Store) Transactions() repository.TransactionRepository {
	return NewPostgresTransactionRepository(s.q)
}

func (s *Store) Referrals() repository.ReferralRepository {
	return NewPostgresReferralRepository(s.q)
}

func (s *Store) Bookings() repository.BookingRepository {
	return NewPostgresBookingRepository(s.q)
}

// WithinTx joins the current transaction when s is already transaction-bound.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) (err error) {
	if s.db == nil {
		return fn(ctx, s)
	}

	dbTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "WithinTx", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = dbTx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, &Store{q: dbTx}); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "method", "WithinTx", "error", rbErr)
			return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
		}
		return err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "WithinTx", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
