package domain

import (
	"errors"
	"fmt"
	"time"
)

// OTP purposes. The subject key an OtpChallenge is scoped to is
// "<identity>#<purpose>", so the same email can hold independent
// challenges for email verification and password changes.
const (
	PurposeVerifyEmail    = "verify_email"
	PurposeChangePassword = "change_password"
)

const (
	// OTPTTL is how long a code stays valid after issuance.
	OTPTTL = 10 * time.Minute
	// OTPResendCooldown is the minimum gap between sends for one subject key.
	OTPResendCooldown = 60 * time.Second
	// OTPMaxAttempts is the verification attempt budget per challenge.
	OTPMaxAttempts = 5
)

// OtpChallenge is the stored state of one outstanding code.
// PK: subject_key. At most one row per subject key, so issuing a new
// challenge overwrites (and thereby invalidates) the previous one.
// ChallengeID fences conditional updates against superseded rows.
type OtpChallenge struct {
	SubjectKey        string     `json:"subject_key" dynamodbav:"subject_key"`
	ChallengeID       string     `json:"challenge_id" dynamodbav:"challenge_id"`
	CodeHash          string     `json:"-" dynamodbav:"code_hash"`
	IssuedAt          time.Time  `json:"issued_at" dynamodbav:"issued_at"`
	ExpiresAt         int64      `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
	AttemptsRemaining int        `json:"attempts_remaining" dynamodbav:"attempts_remaining"`
	ResendAvailableAt int64      `json:"resend_available_at" dynamodbav:"resend_available_at"`
	ConsumedAt        *time.Time `json:"consumed_at,omitempty" dynamodbav:"consumed_at,omitempty"`
}

// SubjectKey builds the challenge key for an identity and purpose.
func SubjectKey(identity, purpose string) string {
	return identity + "#" + purpose
}

// ErrOTPExpired marks a challenge past its TTL. Checked before the code
// itself, so an expired-but-correct code is still rejected.
var ErrOTPExpired = errors.New("otp expired")

// IncorrectCodeError reports a wrong code along with the attempts left.
type IncorrectCodeError struct {
	RemainingAttempts int
}

func (e *IncorrectCodeError) Error() string {
	return fmt.Sprintf("incorrect code, %d attempts remaining", e.RemainingAttempts)
}

func (e *IncorrectCodeError) Unwrap() error { return ErrUnauthorized }

// ExhaustedError reports an attempt budget hitting zero. A fresh challenge
// has already been issued and sent when NewCodeSent is true.
type ExhaustedError struct {
	NewCodeSent bool
}

func (e *ExhaustedError) Error() string { return "otp attempts exhausted" }

func (e *ExhaustedError) Unwrap() error { return ErrUnauthorized }

// RateLimitedError reports a resend attempted before the cooldown elapsed.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("resend available in %s", e.RetryAfter.Round(time.Second))
}
