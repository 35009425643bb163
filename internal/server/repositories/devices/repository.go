package devices

import (
	"context"

	"github.com/quizforge/identity/internal/server/models"
)

// Repository tracks device fingerprints per user. The distinct-guest count
// per fingerprint enforces the guest-per-device cap.
type Repository interface {
	Upsert(ctx context.Context, device *models.DeviceFingerprint) (*models.DeviceFingerprint, error)
	CountGuestsForFingerprint(ctx context.Context, fingerprint string) (int64, error)
	ListForUser(ctx context.Context, userID string) ([]*models.DeviceFingerprint, error)
}
