package service

import (
	"context"
	"log/slog"
	"time"

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

const (
	MembershipDuration = 365 * 24 * time.Hour

	freeDeliveryMinDuration  = 24 * time.Hour
	lateFeeWaiverMaxDuration = 8 * time.Hour
	lateReturnGraceMinutes   = 30
)

var (
	MembershipPrice      = decimal.NewFromInt(999)
	lateReturnMultiplier = decimal.NewFromInt(2)
	minutesPerHour       = decimal.NewFromInt(60)
)

type MembershipService interface {
	PurchaseMembership(ctx context.Context, userID string, method models.PaymentMethod) (*models.User, error)
	HasActiveMembership(ctx context.Context, userID string) (bool, error)
	CalculateMembershipBenefits(ctx context.Context, userID string, start, end time.Time) (models.MembershipBenefits, error)
	CalculateLateReturnCharge(ctx context.Context, userID string, scheduled, actual time.Time, hourlyRate decimal.Decimal, bookingDuration time.Duration) (*models.LateReturnCharge, error)
}

type membershipService struct {
	store  repository.Store
	wallet *walletService
	events publisher
	now    func() time.Time
}

func NewMembershipService(store repository.Store, wallet *walletService, producer kafka.KafkaProducer, opts ...Option) *membershipService {
	o := newOptions(opts)
	return &membershipService{
		store:  store,
		wallet: wallet,
		events: publisher{producer: producer},
		now:    o.now,
	}
}

// PurchaseMembership activates a 365 day membership. Wallet purchases are
// funded from the active balance, so expired credits cannot pay for it. Online
// purchases assume the gateway already captured the payment.
func (s *membershipService) PurchaseMembership(ctx context.Context, userID string, method models.PaymentMethod) (*models.User, error) {
	tracer := otel.Tracer("membership-service")
	ctx, span := tracer.Start(ctx, "PurchaseMembership")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID), attribute.String("method", string(method)))

	if method != models.PaymentMethodWallet && method != models.PaymentMethodOnline {
		span.SetStatus(codes.Error, "invalid payment method")
		observability.MembershipPurchases.WithLabelValues(string(method), "rejected").Inc()
		return nil, pkgerrors.ErrInvalidPaymentMethod
	}

	var (
		user  *models.User
		entry *models.WalletTransaction
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		user, err = tx.Users().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		now := s.now()
		if user.HasActiveMembership(now) {
			return pkgerrors.ErrAlreadyMember
		}

		if method == models.PaymentMethodWallet {
			active, err := activeBalance(ctx, tx, user, now)
			if err != nil {
				return err
			}
			if active.LessThan(MembershipPrice) {
				slog.Warn("insufficient active balance for membership", "user_id", userID, "active_balance", active)
				return pkgerrors.ErrInsufficientBalance
			}
			entry, err = s.wallet.applyDebit(ctx, tx, DebitRequest{
				UserID:      userID,
				Amount:      MembershipPrice,
				Source:      models.SourceMembershipPurchase,
				Description: "Annual membership",
			})
			if err != nil {
				return err
			}
			user.WalletBalance = entry.BalanceAfter
		}

		expiresAt := now.Add(MembershipDuration)
		if err := tx.Users().SetMembership(ctx, userID, now, expiresAt); err != nil {
			return err
		}
		user.HasMembership = true
		user.MembershipPurchasedAt = &now
		user.MembershipExpiresAt = &expiresAt
		return nil
	})
	if err != nil {
		observability.MembershipPurchases.WithLabelValues(string(method), outcome(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "membership purchase failed")
		slog.Warn("membership purchase failed", "user_id", userID, "method", method, "error", err)
		return nil, err
	}

	observability.MembershipPurchases.WithLabelValues(string(method), "success").Inc()
	slog.Info("membership purchased", "user_id", userID, "method", method, "expires_at", user.MembershipExpiresAt)

	if entry != nil {
		s.events.walletTransaction(ctx, entry)
	}
	s.events.emit(ctx, kafka.TopicMemberships, userID, map[string]interface{}{
		"event_type":   "membership_purchased",
		"user_id":      userID,
		"method":       method,
		"price":        MembershipPrice.StringFixed(2),
		"purchased_at": user.MembershipPurchasedAt.UTC().Format(time.RFC3339),
		"expires_at":   user.MembershipExpiresAt.UTC().Format(time.RFC3339),
	})
	return user, nil
}

func (s *membershipService) HasActiveMembership(ctx context.Context, userID string) (bool, error) {
	tracer := otel.Tracer("membership-service")
	ctx, span := tracer.Start(ctx, "HasActiveMembership")
	defer span.End()

	return hasActiveMembership(ctx, s.store, userID, s.now())
}

func hasActiveMembership(ctx context.Context, store repository.Store, userID string, now time.Time) (bool, error) {
	user, err := store.Users().GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.HasActiveMembership(now), nil
}

func (s *membershipService) CalculateMembershipBenefits(ctx context.Context, userID string, start, end time.Time) (models.MembershipBenefits, error) {
	tracer := otel.Tracer("membership-service")
	ctx, span := tracer.Start(ctx, "CalculateMembershipBenefits")
	defer span.End()

	if !end.After(start) {
		return models.MembershipBenefits{}, pkgerrors.ErrInvalidInput
	}

	active, err := hasActiveMembership(ctx, s.store, userID, s.now())
	if err != nil {
		span.RecordError(err)
		return models.MembershipBenefits{}, err
	}
	return benefitsFor(active, end.Sub(start)), nil
}

// benefitsFor never grants both: free delivery needs a day or more and the
// waiver needs under eight hours.
func benefitsFor(activeMember bool, duration time.Duration) models.MembershipBenefits {
	if !activeMember {
		return models.MembershipBenefits{}
	}
	return models.MembershipBenefits{
		HasFreeDelivery:  duration >= freeDeliveryMinDuration,
		HasLateFeeWaiver: duration < lateFeeWaiverMaxDuration,
	}
}

func (s *membershipService) CalculateLateReturnCharge(ctx context.Context, userID string, scheduled, actual time.Time, hourlyRate decimal.Decimal, bookingDuration time.Duration) (*models.LateReturnCharge, error) {
	tracer := otel.Tracer("membership-service")
	ctx, span := tracer.Start(ctx, "CalculateLateReturnCharge")
	defer span.End()

	charge, err := lateReturnCharge(ctx, s.store, userID, scheduled, actual, hourlyRate, bookingDuration, s.now())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return charge, nil
}

// lateReturnCharge bills late minutes at twice the hourly rate. Active members
// on bookings shorter than eight hours get the first 30 late minutes free.
func lateReturnCharge(ctx context.Context, store repository.Store, userID string, scheduled, actual time.Time, hourlyRate decimal.Decimal, bookingDuration time.Duration, now time.Time) (*models.LateReturnCharge, error) {
	if hourlyRate.IsNegative() {
		return nil, pkgerrors.ErrInvalidAmount
	}
	if !actual.After(scheduled) {
		return &models.LateReturnCharge{LateCharge: decimal.Zero}, nil
	}

	lateMinutes := int64(actual.Sub(scheduled) / time.Minute)
	charge := &models.LateReturnCharge{
		IsLate:            true,
		LateMinutes:       lateMinutes,
		ChargeableMinutes: lateMinutes,
	}

	if bookingDuration < lateFeeWaiverMaxDuration {
		member, err := hasActiveMembership(ctx, store, userID, now)
		if err != nil {
			return nil, err
		}
		if member {
			if lateMinutes <= lateReturnGraceMinutes {
				charge.WaivedMinutes = lateMinutes
				charge.ChargeableMinutes = 0
				charge.LateFeeWaived = true
			} else {
				charge.WaivedMinutes = lateReturnGraceMinutes
				charge.ChargeableMinutes = lateMinutes - lateReturnGraceMinutes
			}
		}
	}

	charge.LateCharge = decimal.NewFromInt(charge.ChargeableMinutes).
		Mul(hourlyRate).
		Mul(lateReturnMultiplier).
		Div(minutesPerHour).
		Round(2)
	return charge, nil
}
