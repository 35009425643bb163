package sessions

import (
	"context"

	"github.com/quizforge/identity/internal/server/models"
)

// Repository persists JWT sessions. GetActiveByRefreshHashForUpdate takes a
// row lock, so callers must run it inside a transaction together with the
// Revoke that consumes the token.
type Repository interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	GetActiveByAccessHash(ctx context.Context, accessTokenHash string) (*models.Session, error)
	GetActiveByRefreshHashForUpdate(ctx context.Context, refreshTokenHash string) (*models.Session, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
	UpdateLastUsed(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string, reason string) error
	RevokeAllForUser(ctx context.Context, userID string, reason string) (int64, error)
	ListActiveForUser(ctx context.Context, userID string) ([]*models.Session, error)
	CountActiveForUser(ctx context.Context, userID string) (int64, error)
	IsKnownOrigin(ctx context.Context, userID string, ipAddress, deviceFingerprint *string) (bool, error)
	DeleteExpiredOlderThan(ctx context.Context, olderThanDays int) (int64, error)
}
