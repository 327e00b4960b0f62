// Package memory provides an in-process repository.Store used by tests and by
// STORAGE_DRIVER=memory for local runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/RentalSettlementService/internal/models"
	"github.com/honeynil/RentalSettlementService/internal/repository"
)

type data struct {
	users        map[string]models.User
	transactions []models.WalletTransaction
	referrals    []models.Referral
	bookings     map[string]models.Booking
}

func (d *data) clone() *data {
	c := &data{
		users:        make(map[string]models.User, len(d.users)),
		transactions: make([]models.WalletTransaction, len(d.transactions)),
		referrals:    make([]models.Referral, len(d.referrals)),
		bookings:     make(map[string]models.Booking, len(d.bookings)),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	copy(c.transactions, d.transactions)
	copy(c.referrals, d.referrals)
	for k, v := range d.bookings {
		c.bookings[k] = v
	}
	return c
}

// Store serializes every operation behind one mutex. A transaction holds the
// mutex for its whole duration, which gives the same per-user serialization a
// row lock gives in PostgreSQL (coarser, but equivalent for correctness).
type Store struct {
	mu   *sync.Mutex
	data *data
	inTx bool
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		mu: &sync.Mutex{},
		data: &data{
			users:    make(map[string]models.User),
			bookings: make(map[string]models.Booking),
		},
		now: time.Now,
	}
}

// WithClock overrides the timestamp source used for created_at columns.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Users() repository.UserRepository               { return &userRepo{s: s} }
func (s *Store) Transactions() repository.TransactionRepository { return &transactionRepo{s: s} }
func (s *Store) Referrals() repository.ReferralRepository       { return &referralRepo{s: s} }
func (s *Store) Bookings() repository.BookingRepository         { return &bookingRepo{s: s} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &Store{mu: s.mu, data: s.data, inTx: true, now: s.now}
	if err := fn(ctx, tx); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}
