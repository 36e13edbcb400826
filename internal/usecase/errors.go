package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrEmailTaken indicates an account already exists for the email address.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials indicates the email/password pair did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountUnverified indicates the account has not completed OTP verification.
	ErrAccountUnverified = errors.New("account not verified")
	// ErrAccountBlocked indicates the account is administratively blocked.
	ErrAccountBlocked = errors.New("account blocked")
	// ErrAlreadyVerified indicates the account is already verified and needs no code.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrVerificationCodeInvalid indicates the provided code is wrong or already used.
	ErrVerificationCodeInvalid = errors.New("verification code invalid")
	// ErrVerificationCodeExpired indicates no live code exists for the account.
	ErrVerificationCodeExpired = errors.New("verification code expired")
	// ErrTooManyAttempts indicates the attempt budget for the current code is spent.
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrPasswordPolicyViolation indicates the password fails complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
	// ErrSessionInvalid indicates the refresh token or session marker no longer grants access.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrUserNotFound indicates the referenced account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrProviderInvalid indicates an unsupported upstream provider was requested.
	ErrProviderInvalid = errors.New("unsupported ai provider")
	// ErrCreditsExhausted indicates the shared-key balance cannot cover the request.
	ErrCreditsExhausted = errors.New("insufficient credits")
	// ErrNoCredential indicates no usable upstream key could be resolved.
	ErrNoCredential = errors.New("no upstream credential available")
)

// CreditsError carries the balance detail behind ErrCreditsExhausted so callers can
// tell the user what the request would have cost.
type CreditsError struct {
	Required  int64
	Available int64
}

func (e *CreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

func (e *CreditsError) Unwrap() error { return ErrCreditsExhausted }
