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
	"github.com/shopspring/decimal"
)

const userColumns = `id, name, email, wallet_balance, has_membership, membership_purchased_at, membership_expires_at, referral_code, referred_by, created_at`

type PostgresUserRepository struct {
	q sqlx.ExtContext
}

func NewPostgresUserRepository(q sqlx.ExtContext) *PostgresUserRepository {
	return &PostgresUserRepository{q: q}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) (err error) {
	ctx, done := instrument(ctx, "user-repository", "CreateUser")
	defer done(&err)

	if user == nil {
		err = pkgerrors.ErrNilUser
		return err
	}
	if user.Email == "" {
		err = fmt.Errorf("%w: email is required", pkgerrors.ErrInvalidInput)
		return err
	}

	query := `INSERT INTO users (name, email, wallet_balance) VALUES ($1, $2, $3) RETURNING id, created_at`
	err = r.q.QueryRowxContext(ctx, query, user.Name, user.Email, user.WalletBalance).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			slog.Warn("user already exists", "method", "Create", "email", user.Email)
			err = pkgerrors.ErrUserAlreadyExists
			return err
		}
		slog.Error("failed to create user", "method", "Create", "email", user.Email, "error", err)
		err = fmt.Errorf("failed to create user: %w", err)
		return err
	}

	slog.Info("user created", "method", "Create", "user_id", user.ID)
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (_ *models.User, err error) {
	ctx, done := instrument(ctx, "user-repository", "GetUserByID")
	defer done(&err)
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresUserRepository) GetForUpdate(ctx context.Context, id string) (_ *models.User, err error) {
	ctx, done := instrument(ctx, "user-repository", "GetUserForUpdate")
	defer done(&err)
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresUserRepository) GetByReferralCode(ctx context.Context, code string) (_ *models.User, err error) {
	ctx, done := instrument(ctx, "user-repository", "GetUserByReferralCode")
	defer done(&err)
	if code == "" {
		err = pkgerrors.ErrUserNotFound
		return nil, err
	}
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code)
}

func (r *PostgresUserRepository) get(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, r.q, &user, query, arg)
	if lookupMissed(err) {
		return nil, pkgerrors.ErrUserNotFound
	}
	if err != nil {
		slog.Error("failed to get user", "arg", arg, "error", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *PostgresUserRepository) SetBalance(ctx context.Context, id string, balance decimal.Decimal) (err error) {
	ctx, done := instrument(ctx, "user-repository", "SetBalance")
	defer done(&err)

	if balance.IsNegative() {
		err = pkgerrors.ErrInsufficientBalance
		return err
	}
	err = execOne(ctx, r.q, pkgerrors.ErrUserNotFound,
		`UPDATE users SET wallet_balance = $1 WHERE id = $2`, balance, id)
	if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		slog.Error("failed to set balance", "method", "SetBalance", "user_id", id, "error", err)
		err = fmt.Errorf("failed to set balance: %w", err)
	}
	return err
}

func (r *PostgresUserRepository) SetMembership(ctx context.Context, id string, purchasedAt, expiresAt time.Time) (err error) {
	ctx, done := instrument(ctx, "user-repository", "SetMembership")
	defer done(&err)

	err = execOne(ctx, r.q, pkgerrors.ErrUserNotFound,
		`UPDATE users SET has_membership = TRUE, membership_purchased_at = $1, membership_expires_at = $2 WHERE id = $3`,
		purchasedAt, expiresAt, id)
	if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		slog.Error("failed to set membership", "method", "SetMembership", "user_id", id, "error", err)
		err = fmt.Errorf("failed to set membership: %w", err)
	}
	return err
}

func (r *PostgresUserRepository) SetReferralCode(ctx context.Context, id, code string) (err error) {
	ctx, done := instrument(ctx, "user-repository", "SetReferralCode")
	defer done(&err)

	err = execOne(ctx, r.q, pkgerrors.ErrUserNotFound,
		`UPDATE users SET referral_code = $1 WHERE id = $2`, code, id)
	if pqCode(err) == uniqueViolation {
		slog.Warn("referral code taken", "method", "SetReferralCode", "user_id", id, "code", code)
		err = pkgerrors.ErrReferralCodeTaken
		return err
	}
	if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		slog.Error("failed to set referral code", "method", "SetReferralCode", "user_id", id, "error", err)
		err = fmt.Errorf("failed to set referral code: %w", err)
	}
	return err
}

// SetReferredBy only fills an empty referred_by; a second attempt reports
// ErrReferralAlreadyUsed.
func (r *PostgresUserRepository) SetReferredBy(ctx context.Context, id, referrerID string) (err error) {
	ctx, done := instrument(ctx, "user-repository", "SetReferredBy")
	defer done(&err)

	err = execOne(ctx, r.q, pkgerrors.ErrReferralAlreadyUsed,
		`UPDATE users SET referred_by = $1 WHERE id = $2 AND referred_by IS NULL`, referrerID, id)
	if err != nil && !stderrors.Is(err, pkgerrors.ErrReferralAlreadyUsed) {
		slog.Error("failed to set referrer", "method", "SetReferredBy", "user_id", id, "error", err)
		err = fmt.Errorf("failed to set referrer: %w", err)
	}
	return err
}
