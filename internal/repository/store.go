package repository

import "context"

// Store groups the repositories that share one storage handle.
type Store interface {
	Users() UserRepository
	Transactions() TransactionRepository
	Referrals() ReferralRepository
	Bookings() BookingRepository
	// WithinTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
