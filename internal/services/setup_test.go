package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/models"
	"github.com/honeynil/RentalSettlementService/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProducer struct {
	mock.Mock
}

func (m *mockProducer) Send(ctx context.Context, topic, key string, value []byte) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func (m *mockProducer) Close() error {
	return m.Called().Error(0)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store      *memory.Store
	clock      *fakeClock
	producer   *mockProducer
	wallet     *walletService
	referral   *referralService
	membership *membershipService
	booking    *bookingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore().WithClock(clock.Now)
	producer := &mockProducer{}
	producer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	wallet := NewWalletService(store, producer, WithClock(clock.Now))
	return &testEnv{
		store:      store,
		clock:      clock,
		producer:   producer,
		wallet:     wallet,
		referral:   NewReferralService(store, wallet, producer, WithClock(clock.Now)),
		membership: NewMembershipService(store, wallet, producer, WithClock(clock.Now)),
		booking:    NewBookingService(store, producer, WithClock(clock.Now)),
	}
}

func (e *testEnv) createUser(t *testing.T, email string) *models.User {
	t.Helper()
	user := &models.User{Name: email, Email: email, WalletBalance: decimal.Zero}
	require.NoError(t, e.store.Users().Create(context.Background(), user))
	return user
}

// fund credits amount without expiry so the ledger stays consistent.
func (e *testEnv) fund(t *testing.T, userID string, amount string) {
	t.Helper()
	_, err := e.wallet.Credit(context.Background(), CreditRequest{
		UserID: userID,
		Amount: decimal.RequireFromString(amount),
		Source: "top_up",
	})
	require.NoError(t, err)
}

func (e *testEnv) assertLedgerConsistent(t *testing.T, userID string) {
	t.Helper()
	report, err := e.wallet.VerifyLedger(context.Background(), userID)
	require.NoError(t, err)
	require.Truef(t, report.Consistent, "stored %s, ledger %s", report.StoredBalance, report.LedgerBalance)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
