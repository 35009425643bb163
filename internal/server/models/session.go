package models

import "time"

// Revocation reasons stored on sessions.
const (
	RevokeReasonRefreshConsumed = "refresh_consumed"
	RevokeReasonLogout          = "user_logout"
	RevokeReasonLogoutAll       = "user_logout_all"
	RevokeReasonPasswordChanged = "password_changed"
	RevokeReasonAccountDeleted  = "account_deleted"
	RevokeReasonUserRevoked     = "user_revoked"
)

// Session is the durable record of one issued token pair. The ID doubles as
// the JWT jti claim. Only one-way digests of the tokens are stored; a leaked
// table yields no usable credentials. A revoked session is immutable.
type Session struct {
	ID     string
	UserID string

	AccessTokenHash  string
	RefreshTokenHash string

	IssuedAt   time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time

	IPAddress         *string
	UserAgent         *string
	DeviceFingerprint *string

	RevokedAt    *time.Time
	RevokeReason *string
}

// IsActive reports whether the session may authorize requests right now.
// Both conditions are evaluated at call time, never cached.
func (s *Session) IsActive() bool {
	return s.RevokedAt == nil && time.Now().Before(s.ExpiresAt)
}

// IsRevoked reports whether the session has been revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}
