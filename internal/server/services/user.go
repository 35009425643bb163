package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/dbx"
	"github.com/quizforge/identity/internal/logging"
	"github.com/quizforge/identity/internal/server/models"
	"github.com/quizforge/identity/internal/server/password"
	"github.com/quizforge/identity/internal/server/repositories/repomanager"
	"github.com/quizforge/identity/internal/server/repositories/users"
)

// UpdateProfileRequest carries the whitelisted mutable profile fields.
// Nil means "leave unchanged".
type UpdateProfileRequest struct {
	DisplayName      *string
	AvatarURL        *string
	Locale           *string
	AnalyticsConsent *bool
	MarketingConsent *bool
}

// ChangePasswordRequest is the typed input for ChangePassword.
type ChangePasswordRequest struct {
	CurrentPassword string
	NewPassword     string
}

// ListUsersRequest narrows and pages the admin user listing.
type ListUsersRequest struct {
	Status  *string
	IsGuest *bool
	Search  *string
	Limit   int64
	Offset  int64
}

// UserService handles account management: profile reads and updates,
// password changes, account deletion, session listing and revocation,
// and the admin operations.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *password.Hasher
	logger      logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, hasher *password.Hasher, logger logging.Logger) *UserService {
	return &UserService{db: db, repomanager: m, hasher: hasher, logger: logger}
}

// GetProfile returns the user's account record.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.logger.Error(ctx, "loading user", "error", err)
		return nil, common.ErrorInternal
	}
	return user, nil
}

// UpdateProfile applies the whitelisted profile fields. Display names are
// sanitized before they reach storage.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest, client ClientInfo) (*models.User, error) {
	upd := users.ProfileUpdate{
		AvatarURL:        req.AvatarURL,
		Locale:           req.Locale,
		AnalyticsConsent: req.AnalyticsConsent,
		MarketingConsent: req.MarketingConsent,
	}

	if req.DisplayName != nil {
		cleaned, err := SanitizeDisplayName(*req.DisplayName)
		if err != nil {
			return nil, err
		}
		upd.DisplayName = &cleaned
	}

	user, err := s.repomanager.Users(s.db).UpdateProfile(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.logger.Error(ctx, "updating profile", "error", err)
		return nil, common.ErrorInternal
	}

	s.audit(ctx, userID, models.AuditProfileUpdated, client, nil)
	s.logger.Info(ctx, "profile updated", "user_id", userID)
	return user, nil
}

// ChangePassword verifies the current password, then writes the new hash
// and revokes every session in one transaction. No session survives a
// password change. Guests have no password to change.
func (s *UserService) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest, client ClientInfo) error {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.logger.Error(ctx, "loading user", "error", err)
		return common.ErrorInternal
	}

	if user.IsGuest || user.PasswordHash == nil {
		return fmt.Errorf("%w: guests have no password", common.ErrorPermissionDenied)
	}

	if err := s.hasher.Compare(ctx, *user.PasswordHash, req.CurrentPassword); err != nil {
		if errors.Is(err, common.ErrorInvalidCredentials) {
			s.logger.Warn(ctx, "password change rejected", "user_id", userID)
			return common.ErrorInvalidCredentials
		}
		s.logger.Error(ctx, "verifying current password", "error", err)
		return common.ErrorInternal
	}

	if err := password.ValidateStrength(req.NewPassword); err != nil {
		return err
	}

	newHash, err := s.hasher.Hash(ctx, req.NewPassword)
	if err != nil {
		s.logger.Error(ctx, "hashing new password", "error", err)
		return common.ErrorInternal
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdatePassword(ctx, userID, newHash); err != nil {
			return err
		}
		_, err := s.repomanager.Sessions(tx).RevokeAllForUser(ctx, userID, models.RevokeReasonPasswordChanged)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "changing password", "error", err)
		return common.ErrorInternal
	}

	s.audit(ctx, userID, models.AuditPasswordChanged, client, nil)
	s.logger.Info(ctx, "password changed", "user_id", userID)
	return nil
}

// DeleteAccount soft-deletes the user and revokes every session in one
// transaction. Sessions keep referencing the soft-deleted row.
func (s *UserService) DeleteAccount(ctx context.Context, userID string, client ClientInfo) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).SoftDelete(ctx, userID); err != nil {
			return err
		}
		_, err := s.repomanager.Sessions(tx).RevokeAllForUser(ctx, userID, models.RevokeReasonAccountDeleted)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.logger.Error(ctx, "deleting account", "error", err)
		return common.ErrorInternal
	}

	s.audit(ctx, userID, models.AuditAccountDeleted, client, nil)
	s.logger.Info(ctx, "account deleted", "user_id", userID)
	return nil
}

// ListSessions returns the user's active sessions, most recently used
// first.
func (s *UserService) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions, err := s.repomanager.Sessions(s.db).ListActiveForUser(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "listing sessions", "error", err)
		return nil, common.ErrorInternal
	}
	return sessions, nil
}

// RevokeSession revokes one of the user's own sessions. A session owned by
// someone else reads as not-found, so the endpoint is no oracle for other
// users' session ids.
func (s *UserService) RevokeSession(ctx context.Context, userID, sessionID string, client ClientInfo) error {
	repo := s.repomanager.Sessions(s.db)

	session, err := repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.logger.Error(ctx, "loading session", "error", err)
		return common.ErrorInternal
	}

	if session.UserID != userID {
		return common.ErrorNotFound
	}

	if err := repo.Revoke(ctx, sessionID, models.RevokeReasonUserRevoked); err != nil {
		s.logger.Error(ctx, "revoking session", "error", err)
		return common.ErrorInternal
	}

	s.audit(ctx, userID, models.AuditSessionRevoked, client, &sessionID)
	s.logger.Info(ctx, "session revoked", "user_id", userID, "session_id", sessionID)
	return nil
}

// UpdateStatus changes a user's status. Admin operation. Suspending a
// user also revokes every session in the same transaction, so a
// suspended user cannot keep refreshing old tokens.
func (s *UserService) UpdateStatus(ctx context.Context, userID, status string, client ClientInfo) (*models.User, error) {
	switch status {
	case models.StatusFree, models.StatusPremium, models.StatusTrial, models.StatusSuspended:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrorValidation, status)
	}

	current, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.logger.Error(ctx, "loading user", "error", err)
		return nil, common.ErrorInternal
	}
	oldStatus := current.Status

	var user *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repomanager.Users(tx).UpdateStatus(ctx, userID, status)
		if err != nil {
			return err
		}
		if status == models.StatusSuspended {
			_, err = s.repomanager.Sessions(tx).RevokeAllForUser(ctx, userID, models.RevokeReasonUserRevoked)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.logger.Error(ctx, "updating user status", "error", err)
		return nil, common.ErrorInternal
	}

	s.auditStatusChange(ctx, userID, oldStatus, status, client)
	s.logger.Info(ctx, "user status updated", "user_id", userID,
		"old_status", oldStatus, "status", status)
	return user, nil
}

// ListUsers returns a page of users plus the unpaged total. Admin
// operation.
func (s *UserService) ListUsers(ctx context.Context, req ListUsersRequest) ([]*models.User, int64, error) {
	repo := s.repomanager.Users(s.db)

	filter := users.ListFilter{
		Status:  req.Status,
		IsGuest: req.IsGuest,
		Search:  req.Search,
		Limit:   req.Limit,
		Offset:  req.Offset,
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	list, err := repo.List(ctx, filter)
	if err != nil {
		s.logger.Error(ctx, "listing users", "error", err)
		return nil, 0, common.ErrorInternal
	}

	total, err := repo.Count(ctx, filter)
	if err != nil {
		s.logger.Error(ctx, "counting users", "error", err)
		return nil, 0, common.ErrorInternal
	}

	return list, total, nil
}

// auditStatusChange records an admin status change with the value it
// replaced, so the trail shows the transition and not just that one
// happened.
func (s *UserService) auditStatusChange(ctx context.Context, userID, oldStatus, newStatus string, client ClientInfo) {
	resourceType := "user"
	_, err := s.repomanager.Audit(s.db).Log(ctx, &models.AuditLog{
		ID:           uuid.NewString(),
		UserID:       &userID,
		Action:       models.AuditUserStatusUpdated,
		ResourceType: &resourceType,
		ResourceID:   &userID,
		OldValue:     &oldStatus,
		NewValue:     &newStatus,
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
	})
	if err != nil {
		s.logger.Error(ctx, "writing audit log", "action", models.AuditUserStatusUpdated, "error", err)
	}
}

func (s *UserService) audit(ctx context.Context, userID, action string, client ClientInfo, resourceID *string) {
	var resourceType *string
	if resourceID != nil {
		t := "jwt_session"
		resourceType = &t
	}
	_, err := s.repomanager.Audit(s.db).Log(ctx, &models.AuditLog{
		ID:           uuid.NewString(),
		UserID:       &userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
	})
	if err != nil {
		s.logger.Error(ctx, "writing audit log", "action", action, "error", err)
	}
}
