package models

import "time"

// Machine-readable failure reasons recorded with login attempts. The attempt
// log is the sole source of truth for rate limiting, lockout, and CAPTCHA
// escalation; there is no separate mutable lock state.
const (
	FailureInvalidPassword  = "invalid_password"
	FailureCaptchaRequired  = "captcha_required"
	FailureInvalidCaptcha   = "invalid_captcha"
	FailureAccountSuspended = "account_suspended"
	FailureRateLimited      = "rate_limited"
	FailureAccountLocked    = "account_locked"
)

// LoginAttempt is an append-only audit row per login try. Rows are never
// updated; old ones are removed only by the retention sweep.
type LoginAttempt struct {
	ID                string
	Email             *string
	IPAddress         string
	Success           bool
	FailureReason     *string
	UserAgent         *string
	DeviceFingerprint *string
	AttemptedAt       time.Time
}
