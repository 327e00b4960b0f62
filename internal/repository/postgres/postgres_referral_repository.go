package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/models"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/jmoiron/sqlx"
)

const referralColumns = `id, referrer_id, referee_id, amount, status, expires_at, credited_at, created_at`

type PostgresReferralRepository struct {
	q sqlx.ExtContext
}

func NewPostgresReferralRepository(q sqlx.ExtContext) *PostgresReferralRepository {
	return &PostgresReferralRepository{q: q}
}

func (r *PostgresReferralRepository) Create(ctx context.Context, referral *models.Referral) (err error) {
	ctx, done := instrument(ctx, "referral-repository", "CreateReferral")
	defer done(&err)

	if referral == nil {
		err = pkgerrors.ErrNilReferral
		return err
	}

	query := `INSERT INTO referrals (referrer_id, referee_id, amount, status, expires_at) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	err = r.q.QueryRowxContext(ctx, query,
		referral.ReferrerID, referral.RefereeID, referral.Amount, referral.Status, referral.ExpiresAt,
	).Scan(&referral.ID, &referral.CreatedAt)
	if err != nil {
		slog.Error("failed to create referral", "method", "Create", "referrer_id", referral.ReferrerID, "referee_id", referral.RefereeID, "error", err)
		err = fmt.Errorf("failed to create referral: %w", err)
		return err
	}

	slog.Info("referral created", "method", "Create", "id", referral.ID, "referrer_id", referral.ReferrerID)
	return nil
}

func (r *PostgresReferralRepository) GetByID(ctx context.Context, id string) (_ *models.Referral, err error) {
	ctx, done := instrument(ctx, "referral-repository", "GetReferralByID")
	defer done(&err)

	var referral models.Referral
	err = sqlx.GetContext(ctx, r.q, &referral, `SELECT `+referralColumns+` FROM referrals WHERE id = $1`, id)
	if lookupMissed(err) {
		err = pkgerrors.ErrReferralNotFound
		return nil, err
	}
	if err != nil {
		err = fmt.Errorf("failed to get referral: %w", err)
		return nil, err
	}
	return &referral, nil
}

func (r *PostgresReferralRepository) MarkCredited(ctx context.Context, id string, creditedAt time.Time) (err error) {
	ctx, done := instrument(ctx, "referral-repository", "MarkReferralCredited")
	defer done(&err)

	err = execOne(ctx, r.q, pkgerrors.ErrReferralNotFound,
		`UPDATE referrals SET status = $1, credited_at = $2 WHERE id = $3 AND status = $4`,
		models.ReferralCredited, creditedAt, id, models.ReferralPending)
	if err != nil && !stderrors.Is(err, pkgerrors.ErrReferralNotFound) {
		slog.Error("failed to mark referral credited", "method", "MarkCredited", "id", id, "error", err)
		err = fmt.Errorf("failed to mark referral credited: %w", err)
	}
	return err
}

func (r *PostgresReferralRepository) ListByReferrer(ctx context.Context, referrerID string) (_ []models.Referral, err error) {
	ctx, done := instrument(ctx, "referral-repository", "ListReferralsByReferrer")
	defer done(&err)

	referrals := []models.Referral{}
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE referrer_id = $1 ORDER BY created_at ASC`
	if err = sqlx.SelectContext(ctx, r.q, &referrals, query, referrerID); err != nil {
		err = fmt.Errorf("failed to list referrals: %w", err)
		return nil, err
	}
	return referrals, nil
}
