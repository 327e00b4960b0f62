package errors

import (
	"errors"
)

var (
	ErrUserNotFound             = errors.New("user not found")
	ErrUserAlreadyExists        = errors.New("user already exists")
	ErrNilUser                  = errors.New("user is nil")
	ErrInsufficientBalance      = errors.New("insufficient wallet balance")
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrNilTransaction           = errors.New("transaction is nil")
	ErrInvalidTransactionType   = errors.New("invalid transaction type")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrInvalidReferralCode      = errors.New("invalid referral code")
	ErrReferralAlreadyUsed      = errors.New("referral already used")
	ErrSelfReferral             = errors.New("cannot use own referral code")
	ErrReferralNotFound         = errors.New("referral not found")
	ErrNilReferral              = errors.New("referral is nil")
	ErrReferralCodeTaken        = errors.New("referral code already taken")
	ErrAlreadyMember            = errors.New("membership already active")
	ErrInvalidPaymentMethod     = errors.New("invalid payment method")
	ErrBookingNotFound          = errors.New("booking not found")
	ErrNilBooking               = errors.New("booking is nil")
	ErrAlreadyCancelled         = errors.New("booking already cancelled")
	ErrBookingNotCancellable    = errors.New("booking can no longer be cancelled")
	ErrInvalidBookingTransition = errors.New("invalid booking status transition")
	ErrRequestAlreadyProcessed  = errors.New("request already processed")
	ErrInvalidInput             = errors.New("invalid input")
	ErrInternal                 = errors.New("internal error")
)
