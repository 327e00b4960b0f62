package kafka

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/honeynil/RentalSettlementService/internal/infrastructure/redis"
	"github.com/honeynil/RentalSettlementService/internal/models"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRedis struct {
	mock.Mock
}

func (m *mockRedis) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *mockRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *mockRedis) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockRedis) Close() error {
	return m.Called().Error(0)
}

type mockMemberships struct {
	mock.Mock
}

func (m *mockMemberships) PurchaseMembership(ctx context.Context, userID string, method models.PaymentMethod) (*models.User, error) {
	args := m.Called(ctx, userID, method)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) ConfirmPayment(ctx context.Context, bookingID string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID)
	booking, _ := args.Get(0).(*models.Booking)
	return booking, args.Error(1)
}

func newTestConsumer() (*Consumer, *mockRedis, *mockMemberships, *mockBookings) {
	redisClient := &mockRedis{}
	memberships := &mockMemberships{}
	bookings := &mockBookings{}
	consumer := &Consumer{
		memberships: memberships,
		bookings:    bookings,
		dedup:       redis.NewDeduplicator(redisClient, "payment", time.Hour),
		newBackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
	return consumer, redisClient, memberships, bookings
}

// stubReader hands out queued messages, then reports io.EOF like a closed reader.
type stubReader struct {
	queue     []kafka.Message
	committed []kafka.Message
	onCommit  func()
}

func (r *stubReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if len(r.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *stubReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if r.onCommit != nil {
		r.onCommit()
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *stubReader) Close() error { return nil }

func TestConsumer_HandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("membership payment activates membership", func(t *testing.T) {
		consumer, redisClient, memberships, _ := newTestConsumer()
		redisClient.On("SetNX", mock.Anything, "payment:pay-1", "pending", time.Hour).Return(true, nil)
		redisClient.On("Set", mock.Anything, "payment:pay-1", "done", time.Hour).Return(nil)
		memberships.On("PurchaseMembership", mock.Anything, "user-1", models.PaymentMethodOnline).Return(&models.User{ID: "user-1"}, nil)

		err := consumer.HandleMessage(ctx, kafka.Message{
			Value: []byte(`{"event_type":"membership_payment_captured","payment_id":"pay-1","user_id":"user-1"}`),
		})
		assert.NoError(t, err)
		memberships.AssertExpectations(t)
		redisClient.AssertExpectations(t)
	})

	t.Run("booking payment confirms booking", func(t *testing.T) {
		consumer, redisClient, _, bookings := newTestConsumer()
		redisClient.On("SetNX", mock.Anything, "payment:pay-2", "pending", time.Hour).Return(true, nil)
		redisClient.On("Set", mock.Anything, "payment:pay-2", "done", time.Hour).Return(nil)
		bookings.On("ConfirmPayment", mock.Anything, "booking-1").Return(&models.Booking{ID: "booking-1"}, nil)

		err := consumer.HandleMessage(ctx, kafka.Message{
			Value: []byte(`{"event_type":"booking_payment_captured","payment_id":"pay-2","booking_id":"booking-1"}`),
		})
		assert.NoError(t, err)
		bookings.AssertExpectations(t)
	})

	t.Run("duplicate delivery is skipped", func(t *testing.T) {
		consumer, redisClient, memberships, _ := newTestConsumer()
		redisClient.On("SetNX", mock.Anything, "payment:pay-1", "pending", time.Hour).Return(false, nil)

		err := consumer.HandleMessage(ctx, kafka.Message{
			Value: []byte(`{"event_type":"membership_payment_captured","payment_id":"pay-1","user_id":"user-1"}`),
		})
		assert.NoError(t, err)
		memberships.AssertNotCalled(t, "PurchaseMembership", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("transient failure releases the claim", func(t *testing.T) {
		consumer, redisClient, _, bookings := newTestConsumer()
		redisClient.On("SetNX", mock.Anything, "payment:pay-3", "pending", time.Hour).Return(true, nil)
		redisClient.On("Del", mock.Anything, "payment:pay-3").Return(nil)
		bookings.On("ConfirmPayment", mock.Anything, "booking-1").Return(nil, errors.New("connection reset"))

		err := consumer.HandleMessage(ctx, kafka.Message{
			Value: []byte(`{"event_type":"booking_payment_captured","payment_id":"pay-3","booking_id":"booking-1"}`),
		})
		assert.Error(t, err)
		redisClient.AssertCalled(t, "Del", mock.Anything, "payment:pay-3")
	})

	t.Run("already member is not retried", func(t *testing.T) {
		consumer, redisClient, memberships, _ := newTestConsumer()
		redisClient.On("SetNX", mock.Anything, "payment:pay-4", "pending", time.Hour).Return(true, nil)
		redisClient.On("Set", mock.Anything, "payment:pay-4", "done", time.Hour).Return(nil)
		memberships.On("PurchaseMembership", mock.Anything, "user-1", models.PaymentMethodOnline).Return(nil, pkgerrors.ErrAlreadyMember)

		err := consumer.HandleMessage(ctx, kafka.Message{
			Value: []byte(`{"event_type":"membership_payment_captured","payment_id":"pay-4","user_id":"user-1"}`),
		})
		assert.NoError(t, err)
		redisClient.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
	})

	t.Run("malformed payload", func(t *testing.T) {
		consumer, redisClient, _, _ := newTestConsumer()

		err := consumer.HandleMessage(ctx, kafka.Message{Value: []byte(`{`)})
		assert.Error(t, err)
		err = consumer.HandleMessage(ctx, kafka.Message{Value: []byte(`{"event_type":"booking_payment_captured"}`)})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		redisClient.AssertNotCalled(t, "SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("redis unavailable", func(t *testing.T) {
		consumer, redisClient, _, bookings := newTestConsumer()
		redisClient.On("SetNX", mock.Anything, "payment:pay-5", "pending", time.Hour).Return(false, errors.New("dial tcp: refused"))

		err := consumer.HandleMessage(ctx, kafka.Message{
			Value: []byte(`{"event_type":"booking_payment_captured","payment_id":"pay-5","booking_id":"booking-1"}`),
		})
		assert.Error(t, err)
		bookings.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
	})
}

func TestConsumer_Consume(t *testing.T) {
	membershipMsg := kafka.Message{
		Offset: 7,
		Value:  []byte(`{"event_type":"membership_payment_captured","payment_id":"pay-9","user_id":"user-1"}`),
	}

	t.Run("commits only after a retried event succeeds", func(t *testing.T) {
		consumer, redisClient, memberships, _ := newTestConsumer()
		reader := &stubReader{queue: []kafka.Message{membershipMsg}}
		consumer.reader = reader

		redisClient.On("SetNX", mock.Anything, "payment:pay-9", "pending", time.Hour).Return(true, nil)
		redisClient.On("Del", mock.Anything, "payment:pay-9").Return(nil).Once()
		redisClient.On("Set", mock.Anything, "payment:pay-9", "done", time.Hour).Return(nil).Once()
		memberships.On("PurchaseMembership", mock.Anything, "user-1", models.PaymentMethodOnline).
			Return(nil, errors.New("connection reset")).Once()
		memberships.On("PurchaseMembership", mock.Anything, "user-1", models.PaymentMethodOnline).
			Return(&models.User{ID: "user-1"}, nil).Once()
		reader.onCommit = func() {
			memberships.AssertNumberOfCalls(t, "PurchaseMembership", 2)
			redisClient.AssertCalled(t, "Set", mock.Anything, "payment:pay-9", "done", time.Hour)
		}

		consumer.Consume(context.Background())

		assert.Len(t, reader.committed, 1)
		assert.Equal(t, int64(7), reader.committed[0].Offset)
		redisClient.AssertExpectations(t)
		memberships.AssertExpectations(t)
	})

	t.Run("stopping mid-retry leaves the offset uncommitted", func(t *testing.T) {
		consumer, redisClient, memberships, _ := newTestConsumer()
		next := kafka.Message{Offset: 8, Value: []byte(`{"event_type":"booking_payment_captured","payment_id":"pay-10","booking_id":"booking-1"}`)}
		reader := &stubReader{queue: []kafka.Message{membershipMsg, next}}
		consumer.reader = reader
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		redisClient.On("SetNX", mock.Anything, "payment:pay-9", "pending", time.Hour).Return(true, nil)
		redisClient.On("Del", mock.Anything, "payment:pay-9").Return(nil)
		memberships.On("PurchaseMembership", mock.Anything, "user-1", models.PaymentMethodOnline).
			Run(func(mock.Arguments) { cancel() }).
			Return(nil, errors.New("connection reset"))

		consumer.Consume(ctx)

		assert.Empty(t, reader.committed)
		assert.Len(t, reader.queue, 1, "next message is not fetched")
		redisClient.AssertNotCalled(t, "Set", mock.Anything, "payment:pay-9", "done", time.Hour)
	})

	t.Run("malformed event is committed without retry", func(t *testing.T) {
		consumer, redisClient, memberships, _ := newTestConsumer()
		reader := &stubReader{queue: []kafka.Message{{Offset: 3, Value: []byte(`{`)}}}
		consumer.reader = reader

		consumer.Consume(context.Background())

		assert.Len(t, reader.committed, 1)
		redisClient.AssertNotCalled(t, "SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		memberships.AssertNotCalled(t, "PurchaseMembership", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejected event is committed once", func(t *testing.T) {
		consumer, redisClient, memberships, _ := newTestConsumer()
		reader := &stubReader{queue: []kafka.Message{membershipMsg}}
		consumer.reader = reader

		redisClient.On("SetNX", mock.Anything, "payment:pay-9", "pending", time.Hour).Return(true, nil).Once()
		redisClient.On("Set", mock.Anything, "payment:pay-9", "done", time.Hour).Return(nil).Once()
		memberships.On("PurchaseMembership", mock.Anything, "user-1", models.PaymentMethodOnline).
			Return(nil, pkgerrors.ErrAlreadyMember).Once()

		consumer.Consume(context.Background())

		assert.Len(t, reader.committed, 1)
		redisClient.AssertExpectations(t)
		memberships.AssertExpectations(t)
	})
}
