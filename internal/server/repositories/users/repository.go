package users

import (
	"context"

	"github.com/quizforge/identity/internal/server/models"
)

// ProfileUpdate carries the whitelisted mutable profile fields. Nil fields
// are left untouched.
type ProfileUpdate struct {
	DisplayName      *string
	AvatarURL        *string
	Locale           *string
	AnalyticsConsent *bool
	MarketingConsent *bool
}

// ListFilter narrows and pages the admin user listing.
type ListFilter struct {
	Status  *string
	IsGuest *bool
	Search  *string
	Limit   int64
	Offset  int64
}

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	UpdateStatus(ctx context.Context, id string, status string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]*models.User, error)
	Count(ctx context.Context, f ListFilter) (int64, error)
}
