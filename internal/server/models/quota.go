package models

import "time"

// Renewable period types.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Proof actions accepted for manual quota renewal.
const (
	RenewActionWatchAd = "watch_ad"
	RenewActionShare   = "share"
	RenewActionInvite  = "invite"
)

// UserQuota is a bounded, periodically renewable usage counter for one
// (user, quota type) pair. It is mutated only through the ledger's locked
// consume/renew/reset operations.
type UserQuota struct {
	ID        string
	UserID    string
	QuotaType string

	MaxAllowed   int
	CurrentUsage int

	PeriodType  *string
	PeriodStart *time.Time
	PeriodEnd   *time.Time

	CanRenew    bool
	RenewAction *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExceeded reports whether the quota has no headroom left.
func (q *UserQuota) IsExceeded() bool {
	return q.CurrentUsage >= q.MaxAllowed
}

// IsExpired reports whether the current period has elapsed. Quotas without
// a period never expire.
func (q *UserQuota) IsExpired() bool {
	return q.PeriodEnd != nil && time.Now().After(*q.PeriodEnd)
}

// Remaining returns the usable headroom, never negative.
func (q *UserQuota) Remaining() int {
	if r := q.MaxAllowed - q.CurrentUsage; r > 0 {
		return r
	}
	return 0
}

// QuotaConsumption is the idempotency ledger: one row per successful consume
// carrying a caller-supplied key. A retried consume with the same key finds
// the row and fails instead of double charging.
type QuotaConsumption struct {
	ID             string
	IdempotencyKey string
	UserID         string
	QuotaType      string
	ConsumedAt     time.Time
}
