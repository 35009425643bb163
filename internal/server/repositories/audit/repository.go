package audit

import (
	"context"
	"time"

	"github.com/quizforge/identity/internal/server/models"
)

// Repository stores the append-only audit trail.
type Repository interface {
	Log(ctx context.Context, entry *models.AuditLog) (*models.AuditLog, error)
	ListForUser(ctx context.Context, userID string, limit int64) ([]*models.AuditLog, error)
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int64) ([]*models.AuditLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
