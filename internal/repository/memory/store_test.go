package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/models"
	"github.com/honeynil/RentalSettlementService/internal/repository"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WithinTxRollback(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	user := &models.User{Name: "Anna", Email: "anna@example.com"}
	require.NoError(t, store.Users().Create(ctx, user))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		require.NoError(t, tx.Users().SetBalance(ctx, user.ID, decimal.NewFromInt(50)))
		require.NoError(t, tx.Transactions().Create(ctx, &models.WalletTransaction{
			UserID:       user.ID,
			Type:         models.TypeCredit,
			Amount:       decimal.NewFromInt(50),
			BalanceAfter: decimal.NewFromInt(50),
			Source:       models.SourceReferral,
		}))
		require.NoError(t, tx.Users().SetReferredBy(ctx, user.ID, "someone"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.WalletBalance.IsZero())
	assert.Nil(t, got.ReferredBy)

	txs, err := store.Transactions().ListByUser(ctx, user.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStore_WithinTxCommit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	user := &models.User{Name: "Anna", Email: "anna@example.com"}
	require.NoError(t, store.Users().Create(ctx, user))

	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return tx.WithinTx(ctx, func(ctx context.Context, inner repository.Store) error {
			return inner.Users().SetBalance(ctx, user.ID, decimal.NewFromInt(25))
		})
	})
	require.NoError(t, err)

	got, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "25.00", got.WalletBalance.StringFixed(2))
}

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first := &models.User{Name: "Anna", Email: "anna@example.com"}
	require.NoError(t, store.Users().Create(ctx, first))
	assert.NotEmpty(t, first.ID)

	assert.ErrorIs(t, store.Users().Create(ctx, &models.User{Name: "Other", Email: "anna@example.com"}), pkgerrors.ErrUserAlreadyExists)
	assert.ErrorIs(t, store.Users().SetBalance(ctx, first.ID, decimal.NewFromInt(-1)), pkgerrors.ErrInsufficientBalance)

	require.NoError(t, store.Users().SetReferralCode(ctx, first.ID, "RENTANNA0001"))
	found, err := store.Users().GetByReferralCode(ctx, "RENTANNA0001")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	require.NoError(t, store.Users().SetReferralCode(ctx, first.ID, "RENTANNA0001"))

	second := &models.User{Name: "Boris", Email: "boris@example.com"}
	require.NoError(t, store.Users().Create(ctx, second))
	assert.ErrorIs(t, store.Users().SetReferralCode(ctx, second.ID, "RENTANNA0001"), pkgerrors.ErrReferralCodeTaken)
	got, err := store.Users().GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReferralCode)

	require.NoError(t, store.Users().SetReferredBy(ctx, first.ID, "referrer"))
	assert.ErrorIs(t, store.Users().SetReferredBy(ctx, first.ID, "other"), pkgerrors.ErrReferralAlreadyUsed)
}

func TestStore_Transactions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	store := NewStore().WithClock(func() time.Time { return now })
	user := &models.User{Name: "Anna", Email: "anna@example.com"}
	require.NoError(t, store.Users().Create(ctx, user))

	expired := now.Add(-time.Minute)
	current := now.Add(time.Hour)
	entries := []models.WalletTransaction{
		{UserID: user.ID, Type: models.TypeCredit, Amount: decimal.NewFromInt(100)},
		{UserID: user.ID, Type: models.TypeCredit, Amount: decimal.NewFromInt(50), ExpiresAt: &expired},
		{UserID: user.ID, Type: models.TypeCredit, Amount: decimal.NewFromInt(20), ExpiresAt: &current},
		{UserID: user.ID, Type: models.TypeDebit, Amount: decimal.NewFromInt(30)},
	}
	for i := range entries {
		require.NoError(t, store.Transactions().Create(ctx, &entries[i]))
	}

	assert.ErrorIs(t, store.Transactions().Create(ctx, &models.WalletTransaction{UserID: "missing", Type: models.TypeCredit, Amount: decimal.NewFromInt(1)}), pkgerrors.ErrUserNotFound)
	assert.ErrorIs(t, store.Transactions().Create(ctx, &models.WalletTransaction{UserID: user.ID, Type: models.TypeDebit, Amount: decimal.NewFromInt(1), ExpiresAt: &current}), pkgerrors.ErrInvalidInput)

	sum, err := store.Transactions().SumExpiredCredits(ctx, user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, "50.00", sum.StringFixed(2))

	ledger, err := store.Transactions().LedgerBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "140.00", ledger.StringFixed(2))

	limited, err := store.Transactions().ListByUser(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, entries[0].ID, limited[0].ID)

	got, err := store.Transactions().GetByID(ctx, entries[3].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TypeDebit, got.Type)
}

func TestStore_Bookings(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	start := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	booking := &models.Booking{UserID: "user-1", StartDate: start, EndDate: start.Add(time.Hour), Status: models.BookingPending}
	require.NoError(t, store.Bookings().Create(ctx, booking))

	require.NoError(t, store.Bookings().MarkCancelled(ctx, booking.ID, decimal.NewFromInt(10), start))
	assert.ErrorIs(t, store.Bookings().MarkCancelled(ctx, booking.ID, decimal.NewFromInt(10), start), pkgerrors.ErrAlreadyCancelled)

	got, err := store.Bookings().GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	assert.Equal(t, "10.00", got.RefundAmount.Decimal.StringFixed(2))

	_, err = store.Bookings().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrBookingNotFound)
}
