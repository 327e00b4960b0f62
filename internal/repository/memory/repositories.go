package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/models"
	pkgerrors "github.com/honeynil/RentalSettlementService/pkg/errors"
	"github.com/shopspring/decimal"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Email == "" {
		return fmt.Errorf("%w: email is required", pkgerrors.ErrInvalidInput)
	}
	defer r.s.lock()()

	for _, u := range r.s.data.users {
		if u.Email == user.Email {
			return pkgerrors.ErrUserAlreadyExists
		}
	}
	if user.ID == "" {
		user.ID = newID()
	}
	user.CreatedAt = r.s.now()
	r.s.data.users[user.ID] = *user
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	defer r.s.lock()()
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	return &u, nil
}

func (r *userRepo) GetForUpdate(ctx context.Context, id string) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *userRepo) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	defer r.s.lock()()
	if code == "" {
		return nil, pkgerrors.ErrUserNotFound
	}
	for _, u := range r.s.data.users {
		if u.ReferralCode != nil && *u.ReferralCode == code {
			return &u, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r *userRepo) update(id string, fn func(u *models.User) error) error {
	defer r.s.lock()()
	u, ok := r.s.data.users[id]
	if !ok {
		return pkgerrors.ErrUserNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	r.s.data.users[id] = u
	return nil
}

func (r *userRepo) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return pkgerrors.ErrInsufficientBalance
	}
	return r.update(id, func(u *models.User) error {
		u.WalletBalance = balance
		return nil
	})
}

func (r *userRepo) SetMembership(ctx context.Context, id string, purchasedAt, expiresAt time.Time) error {
	return r.update(id, func(u *models.User) error {
		u.HasMembership = true
		u.MembershipPurchasedAt = &purchasedAt
		u.MembershipExpiresAt = &expiresAt
		return nil
	})
}

func (r *userRepo) SetReferralCode(ctx context.Context, id, code string) error {
	return r.update(id, func(u *models.User) error {
		for otherID, other := range r.s.data.users {
			if otherID != id && other.ReferralCode != nil && *other.ReferralCode == code {
				return pkgerrors.ErrReferralCodeTaken
			}
		}
		u.ReferralCode = &code
		return nil
	})
}

func (r *userRepo) SetReferredBy(ctx context.Context, id, referrerID string) error {
	return r.update(id, func(u *models.User) error {
		if u.ReferredBy != nil {
			return pkgerrors.ErrReferralAlreadyUsed
		}
		u.ReferredBy = &referrerID
		return nil
	})
}

type transactionRepo struct{ s *Store }

func (r *transactionRepo) Create(ctx context.Context, tx *models.WalletTransaction) error {
	if tx == nil {
		return pkgerrors.ErrNilTransaction
	}
	if tx.Type != models.TypeCredit && tx.Type != models.TypeDebit {
		return pkgerrors.ErrInvalidTransactionType
	}
	if !tx.Amount.IsPositive() {
		return pkgerrors.ErrInvalidAmount
	}
	if tx.Type == models.TypeDebit && tx.ExpiresAt != nil {
		return fmt.Errorf("%w: only credits can expire", pkgerrors.ErrInvalidInput)
	}
	defer r.s.lock()()

	if _, ok := r.s.data.users[tx.UserID]; !ok {
		return pkgerrors.ErrUserNotFound
	}
	tx.ID = newID()
	tx.CreatedAt = r.s.now()
	r.s.data.transactions = append(r.s.data.transactions, *tx)
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id string) (*models.WalletTransaction, error) {
	defer r.s.lock()()
	for _, tx := range r.s.data.transactions {
		if tx.ID == id {
			return &tx, nil
		}
	}
	return nil, pkgerrors.ErrTransactionNotFound
}

// ListByUser relies on append order, which matches creation order.
func (r *transactionRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error) {
	defer r.s.lock()()
	txs := []models.WalletTransaction{}
	for _, tx := range r.s.data.transactions {
		if tx.UserID != userID {
			continue
		}
		if limit > 0 && len(txs) == limit {
			break
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (r *transactionRepo) SumExpiredCredits(ctx context.Context, userID string, now time.Time) (decimal.Decimal, error) {
	defer r.s.lock()()
	sum := decimal.Zero
	for _, tx := range r.s.data.transactions {
		if tx.UserID == userID && tx.IsExpiredAt(now) {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum, nil
}

func (r *transactionRepo) LedgerBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	defer r.s.lock()()
	balance := decimal.Zero
	for _, tx := range r.s.data.transactions {
		if tx.UserID != userID {
			continue
		}
		switch tx.Type {
		case models.TypeCredit:
			balance = balance.Add(tx.Amount)
		case models.TypeDebit:
			balance = balance.Sub(tx.Amount)
		}
	}
	return balance, nil
}

type referralRepo struct{ s *Store }

func (r *referralRepo) Create(ctx context.Context, referral *models.Referral) error {
	if referral == nil {
		return pkgerrors.ErrNilReferral
	}
	defer r.s.lock()()
	referral.ID = newID()
	referral.CreatedAt = r.s.now()
	r.s.data.referrals = append(r.s.data.referrals, *referral)
	return nil
}

func (r *referralRepo) GetByID(ctx context.Context, id string) (*models.Referral, error) {
	defer r.s.lock()()
	for _, ref := range r.s.data.referrals {
		if ref.ID == id {
			return &ref, nil
		}
	}
	return nil, pkgerrors.ErrReferralNotFound
}

func (r *referralRepo) MarkCredited(ctx context.Context, id string, creditedAt time.Time) error {
	defer r.s.lock()()
	for i := range r.s.data.referrals {
		ref := &r.s.data.referrals[i]
		if ref.ID != id {
			continue
		}
		if ref.Status != models.ReferralPending {
			break
		}
		ref.Status = models.ReferralCredited
		ref.CreditedAt = &creditedAt
		return nil
	}
	return pkgerrors.ErrReferralNotFound
}

func (r *referralRepo) ListByReferrer(ctx context.Context, referrerID string) ([]models.Referral, error) {
	defer r.s.lock()()
	refs := []models.Referral{}
	for _, ref := range r.s.data.referrals {
		if ref.ReferrerID == referrerID {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

type bookingRepo struct{ s *Store }

func (r *bookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return pkgerrors.ErrNilBooking
	}
	if !booking.EndDate.After(booking.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", pkgerrors.ErrInvalidInput)
	}
	defer r.s.lock()()
	if booking.ID == "" {
		booking.ID = newID()
	}
	booking.CreatedAt = r.s.now()
	r.s.data.bookings[booking.ID] = *booking
	return nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	defer r.s.lock()()
	b, ok := r.s.data.bookings[id]
	if !ok {
		return nil, pkgerrors.ErrBookingNotFound
	}
	return &b, nil
}

func (r *bookingRepo) GetForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *bookingRepo) update(id string, fn func(b *models.Booking) error) error {
	defer r.s.lock()()
	b, ok := r.s.data.bookings[id]
	if !ok {
		return pkgerrors.ErrBookingNotFound
	}
	if err := fn(&b); err != nil {
		return err
	}
	r.s.data.bookings[id] = b
	return nil
}

func (r *bookingRepo) UpdateStatus(ctx context.Context, id string, status models.BookingStatus, paymentStatus models.PaymentStatus) error {
	return r.update(id, func(b *models.Booking) error {
		b.Status = status
		b.PaymentStatus = paymentStatus
		return nil
	})
}

func (r *bookingRepo) MarkCancelled(ctx context.Context, id string, refund decimal.Decimal, cancelledAt time.Time) error {
	return r.update(id, func(b *models.Booking) error {
		if b.Status == models.BookingCancelled {
			return pkgerrors.ErrAlreadyCancelled
		}
		b.Status = models.BookingCancelled
		b.PaymentStatus = models.PaymentPartiallyRefunded
		b.RefundAmount = decimal.NewNullDecimal(refund)
		b.CancelledAt = &cancelledAt
		return nil
	})
}

func (r *bookingRepo) SetSplit(ctx context.Context, id string, split models.PaymentSplit) error {
	return r.update(id, func(b *models.Booking) error {
		b.PlatformCommission = decimal.NewNullDecimal(split.PlatformCommission)
		b.OwnerEarnings = decimal.NewNullDecimal(split.OwnerEarnings)
		return nil
	})
}

func (r *bookingRepo) SetLateFee(ctx context.Context, id string, fee decimal.Decimal) error {
	return r.update(id, func(b *models.Booking) error {
		b.LateFee = decimal.NewNullDecimal(fee)
		return nil
	})
}
