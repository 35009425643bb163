package quotas

import (
	"context"

	"github.com/quizforge/identity/internal/server/models"
)

// Repository persists usage quotas and the consumption idempotency ledger.
// GetForUpdate locks the quota row; the locked read, the usage mutation, and
// the consumption insert must share one transaction so concurrent consumes
// serialize on the row lock.
type Repository interface {
	Create(ctx context.Context, quota *models.UserQuota) (*models.UserQuota, error)
	Get(ctx context.Context, userID, quotaType string) (*models.UserQuota, error)
	GetForUpdate(ctx context.Context, userID, quotaType string) (*models.UserQuota, error)
	ListForUser(ctx context.Context, userID string) ([]*models.UserQuota, error)
	IncrementUsage(ctx context.Context, id string) (*models.UserQuota, error)
	ResetPeriodAndConsume(ctx context.Context, id string) (*models.UserQuota, error)
	ResetUsage(ctx context.Context, id string) (*models.UserQuota, error)
	UpdateLimit(ctx context.Context, userID, quotaType string, maxAllowed int) (*models.UserQuota, error)
	Reset(ctx context.Context, userID, quotaType string) (*models.UserQuota, error)
	ConsumptionExists(ctx context.Context, idempotencyKey string) (bool, error)
	InsertConsumption(ctx context.Context, c *models.QuotaConsumption) error
	DeleteConsumptionsOlderThan(ctx context.Context, olderThanDays int) (int64, error)
}
