// Package common defines shared constants and sentinel errors used across
// the identity service. Callers should use errors.Is to match these values;
// the HTTP layer maps them to generic caller-visible messages so internal
// detail never leaks outward.
package common

import "errors"

var (
	// Authentication errors. ErrorInvalidCredentials is deliberately the
	// same for "unknown email" and "wrong password".
	ErrorInvalidCredentials = errors.New("invalid credentials")
	ErrorAccountLocked      = errors.New("account locked")
	ErrorCaptchaRequired    = errors.New("captcha required")
	ErrorInvalidCaptcha     = errors.New("invalid captcha")
	ErrorInvalidToken       = errors.New("invalid token")
	ErrorTokenExpired       = errors.New("token expired")
	ErrorTokenRevoked       = errors.New("token revoked")

	// Authorization errors.
	ErrorPermissionDenied  = errors.New("permission denied")
	ErrorOwnershipRequired = errors.New("ownership required")

	// Quota errors.
	ErrorQuotaExceeded       = errors.New("quota exceeded")
	ErrorRenewNotAllowed     = errors.New("quota renewal not allowed")
	ErrorInvalidRenewProof   = errors.New("invalid renewal proof")
	ErrorIdempotencyConflict = errors.New("idempotency conflict")

	// Validation errors. Wrap ErrorValidation with detail via fmt.Errorf
	// ("%w: reason") so errors.Is still matches.
	ErrorValidation         = errors.New("validation error")
	ErrorEmailAlreadyExists = errors.New("email already exists")

	// Abuse-guard rejections.
	ErrorTooManyRequests     = errors.New("too many requests")
	ErrorDeviceLimitExceeded = errors.New("device limit exceeded")

	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Opaque internal failures (storage, hashing, signing).
	ErrorInternal = errors.New("internal error")
	ErrorHashing  = errors.New("hashing error")
)
