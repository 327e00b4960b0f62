package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	stderrors "errors"

	"github.com/honeynil/RentalSettlementService/internal/infrastructure/kafka"
	"github.com/honeynil/RentalSettlementService/internal/models"
	"github.com/honeynil/RentalSettlementService/internal/repository"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	referralCodePrefix = "RENT"
	referralCodeLength = 8
	ReferralValidity   = 90 * 24 * time.Hour
)

var ReferralBonus = decimal.NewFromInt(50)

type ReferralService interface {
	GenerateReferralCode(ctx context.Context, userID string) (string, error)
	ProcessReferral(ctx context.Context, code, newUserID string) (*models.Referral, error)
	ListReferrals(ctx context.Context, referrerID string) ([]models.Referral, error)
}

type referralService struct {
	store  repository.Store
	wallet *walletService
	events publisher
	now    func() time.Time
}

func NewReferralService(store repository.Store, wallet *walletService, producer kafka.KafkaProducer, opts ...Option) *referralService {
	o := newOptions(opts)
	return &referralService{
		store:  store,
		wallet: wallet,
		events: publisher{producer: producer},
		now:    o.now,
	}
}

// ReferralCodeFor derives the code deterministically from the user id.
func ReferralCodeFor(userID string) string {
	fragment := strings.ReplaceAll(userID, "-", "")
	if len(fragment) > referralCodeLength {
		fragment = fragment[:referralCodeLength]
	}
	return referralCodePrefix + strings.ToUpper(fragment)
}

func (s *referralService) GenerateReferralCode(ctx context.Context, userID string) (string, error) {
	tracer := otel.Tracer("referral-service")
	ctx, span := tracer.Start(ctx, "GenerateReferralCode")
	defer span.End()

	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		span.RecordError(err)
		return "", err
	}

	code := ReferralCodeFor(userID)
	if err := s.store.Users().SetReferralCode(ctx, userID, code); err != nil {
		span.RecordError(err)
		if stderrors.Is(err, pkgerrors.ErrReferralCodeTaken) {
			span.SetStatus(codes.Error, "referral code taken")
			slog.Warn("referral code collision", "user_id", userID, "code", code)
			return "", err
		}
		span.SetStatus(codes.Error, "failed to store referral code")
		slog.Error("failed to store referral code", "user_id", userID, "error", err)
		return "", fmt.Errorf("%w: failed to store referral code", pkgerrors.ErrInternal)
	}

	slog.Info("referral code generated", "user_id", userID, "code", code)
	return code, nil
}

// ProcessReferral links newUserID to the owner of code and credits the owner.
// Linking, the referral row, the credit and the status flip commit together.
func (s *referralService) ProcessReferral(ctx context.Context, code, newUserID string) (*models.Referral, error) {
	tracer := otel.Tracer("referral-service")
	ctx, span := tracer.Start(ctx, "ProcessReferral")
	defer span.End()
	span.SetAttributes(attribute.String("code", code), attribute.String("user_id", newUserID))

	var (
		referral *models.Referral
		entry    *models.WalletTransaction
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		referrer, err := tx.Users().GetByReferralCode(ctx, code)
		if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			return pkgerrors.ErrInvalidReferralCode
		}
		if err != nil {
			return err
		}
		if referrer.ID == newUserID {
			return pkgerrors.ErrSelfReferral
		}

		referee, err := tx.Users().GetForUpdate(ctx, newUserID)
		if err != nil {
			return err
		}
		if referee.ReferredBy != nil {
			return pkgerrors.ErrReferralAlreadyUsed
		}
		if err := tx.Users().SetReferredBy(ctx, referee.ID, referrer.ID); err != nil {
			return err
		}

		now := s.now()
		referral = &models.Referral{
			ReferrerID: referrer.ID,
			RefereeID:  referee.ID,
			Amount:     ReferralBonus,
			Status:     models.ReferralPending,
			ExpiresAt:  now.Add(ReferralValidity),
		}
		if err := tx.Referrals().Create(ctx, referral); err != nil {
			return err
		}

		entry, err = s.wallet.applyCredit(ctx, tx, CreditRequest{
			UserID:      referrer.ID,
			Amount:      referral.Amount,
			Source:      models.SourceReferral,
			Description: "Referral bonus",
			ExpiresAt:   &referral.ExpiresAt,
			ReferralID:  &referral.ID,
		})
		if err != nil {
			return err
		}

		if err := tx.Referrals().MarkCredited(ctx, referral.ID, now); err != nil {
			return err
		}
		referral.Status = models.ReferralCredited
		referral.CreditedAt = &now
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "referral failed")
		slog.Warn("referral rejected", "code", code, "user_id", newUserID, "error", err)
		return nil, err
	}

	slog.Info("referral credited", "referral_id", referral.ID, "referrer_id", referral.ReferrerID, "referee_id", referral.RefereeID)
	s.events.emit(ctx, kafka.TopicReferrals, referral.ReferrerID, map[string]interface{}{
		"event_type":  "referral_credited",
		"referral_id": referral.ID,
		"referrer_id": referral.ReferrerID,
		"referee_id":  referral.RefereeID,
		"amount":      referral.Amount.StringFixed(2),
		"expires_at":  referral.ExpiresAt.UTC().Format(time.RFC3339),
	})
	s.events.walletTransaction(ctx, entry)
	return referral, nil
}

func (s *referralService) ListReferrals(ctx context.Context, referrerID string) ([]models.Referral, error) {
	tracer := otel.Tracer("referral-service")
	ctx, span := tracer.Start(ctx, "ListReferrals")
	defer span.End()

	referrals, err := s.store.Referrals().ListByReferrer(ctx, referrerID)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to list referrals", "referrer_id", referrerID, "error", err)
		return nil, err
	}
	return referrals, nil
}
