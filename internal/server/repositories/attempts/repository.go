package attempts

import (
	"context"

	"github.com/quizforge/identity/internal/server/models"
)

// Repository stores the append-only login attempt log. All abuse decisions
// (rate limit, lockout, captcha escalation) derive from sliding-window
// counts over these rows.
type Repository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) (*models.LoginAttempt, error)
	CountRecentFailuresByIP(ctx context.Context, ipAddress string, windowMinutes int) (int64, error)
	CountRecentFailuresByEmail(ctx context.Context, email string, windowMinutes int) (int64, error)
	DeleteOlderThan(ctx context.Context, olderThanDays int) (int64, error)
}
