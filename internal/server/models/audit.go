package models

import "time"

// Audit actions recorded for security-relevant operations.
const (
	AuditUserRegistered    = "user_registered"
	AuditUserLogin         = "user_login"
	AuditUserLogout        = "user_logout"
	AuditUserLogoutAll     = "user_logout_all"
	AuditGuestCreated      = "guest_created"
	AuditTokenRefreshed    = "token_refreshed"
	AuditAnomalyDetected   = "anomaly_detected"
	AuditPasswordChanged   = "password_changed"
	AuditProfileUpdated    = "profile_updated"
	AuditAccountDeleted    = "account_deleted"
	AuditSessionRevoked    = "session_revoked"
	AuditQuotaRenewed      = "quota_renewed"
	AuditUserStatusUpdated = "user_status_updated"
)

// AuditLog is an append-only structured record of a security-relevant
// action, kept for forensic review and archived before retention deletion.
type AuditLog struct {
	ID           string
	UserID       *string
	Action       string
	ResourceType *string
	ResourceID   *string
	IPAddress    *string
	UserAgent    *string
	OldValue     *string
	NewValue     *string
	Metadata     *string
	CreatedAt    time.Time
}
