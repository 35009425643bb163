// Package models defines the persistent entities of the identity service.
package models

import "time"

// User statuses. Status changes come from admin action or billing events.
const (
	StatusFree      = "free"
	StatusPremium   = "premium"
	StatusTrial     = "trial"
	StatusSuspended = "suspended"
)

// User is the identity record. Guests have no email and no password hash.
// Users are soft-deleted only; sessions keep referencing the row.
type User struct {
	ID    string
	Email *string

	// PasswordHash is never serialized outward.
	PasswordHash *string

	Status  string
	IsGuest bool

	DisplayName *string
	AvatarURL   *string

	AnalyticsConsent bool
	MarketingConsent bool
	Locale           string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
	DeletedAt   *time.Time
}
