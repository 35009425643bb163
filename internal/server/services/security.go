// Package services contains the server-side business logic: the abuse
// guard, the identity orchestrator, the quota ledger, and account
// management.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/logging"
	"github.com/quizforge/identity/internal/server/captcha"
	"github.com/quizforge/identity/internal/server/config"
	"github.com/quizforge/identity/internal/server/models"
	"github.com/quizforge/identity/internal/server/repositories/repomanager"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// SecurityService is the abuse guard. Every decision is a sliding-window
// count over the durable attempt log; there is no mutable lock flag, so
// lockout and captcha demands expire on their own as failures age out.
type SecurityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	captcha     captcha.Verifier
	logger      logging.Logger

	ipWindowMinutes      int
	ipMaxFailures        int
	captchaWindowMinutes int
	captchaThreshold     int
	lockoutWindowMinutes int
	lockoutThreshold     int
	maxGuestsPerDevice   int
}

func NewSecurityService(db *sql.DB, m repomanager.RepositoryManager, verifier captcha.Verifier, cfg *config.Config, logger logging.Logger) *SecurityService {
	return &SecurityService{
		db:                   db,
		repomanager:          m,
		captcha:              verifier,
		logger:               logger,
		ipWindowMinutes:      cfg.LoginIPWindowMinutes,
		ipMaxFailures:        cfg.LoginIPMaxFailures,
		captchaWindowMinutes: cfg.CaptchaWindowMinutes,
		captchaThreshold:     cfg.CaptchaFailureThreshold,
		lockoutWindowMinutes: cfg.LockoutWindowMinutes,
		lockoutThreshold:     cfg.LockoutFailureThreshold,
		maxGuestsPerDevice:   cfg.DeviceFingerprintMaxGuests,
	}
}

// CheckLoginRateLimit rejects logins from an IP with too many recent
// failures.
func (s *SecurityService) CheckLoginRateLimit(ctx context.Context, ipAddress string) error {
	repo := s.repomanager.Attempts(s.db)

	failures, err := repo.CountRecentFailuresByIP(ctx, ipAddress, s.ipWindowMinutes)
	if err != nil {
		s.logger.Error(ctx, "counting ip failures", "error", err)
		return common.ErrorInternal
	}

	if failures >= int64(s.ipMaxFailures) {
		s.logger.Warn(ctx, "login rate limit exceeded", "ip", ipAddress, "failures", failures)
		return common.ErrorTooManyRequests
	}
	return nil
}

// CheckAccountLock rejects logins for an email with too many recent
// failures. The lock releases by itself once old failures fall out of the
// window.
func (s *SecurityService) CheckAccountLock(ctx context.Context, email string) error {
	repo := s.repomanager.Attempts(s.db)

	failures, err := repo.CountRecentFailuresByEmail(ctx, email, s.lockoutWindowMinutes)
	if err != nil {
		s.logger.Error(ctx, "counting account failures", "error", err)
		return common.ErrorInternal
	}

	if failures >= int64(s.lockoutThreshold) {
		s.logger.Warn(ctx, "account locked", "email", email, "failures", failures)
		return common.ErrorAccountLocked
	}
	return nil
}

// CheckCaptchaRequired reports whether recent failures for the email have
// crossed the captcha escalation threshold.
func (s *SecurityService) CheckCaptchaRequired(ctx context.Context, email string) (bool, error) {
	repo := s.repomanager.Attempts(s.db)

	failures, err := repo.CountRecentFailuresByEmail(ctx, email, s.captchaWindowMinutes)
	if err != nil {
		s.logger.Error(ctx, "counting captcha failures", "error", err)
		return false, common.ErrorInternal
	}

	return failures >= int64(s.captchaThreshold), nil
}

// VerifyCaptcha validates a client-supplied captcha token with the provider.
func (s *SecurityService) VerifyCaptcha(ctx context.Context, token string) error {
	return s.captcha.Verify(ctx, token)
}

// RecordLoginAttempt appends one row to the attempt log.
func (s *SecurityService) RecordLoginAttempt(ctx context.Context, email *string, ipAddress string, success bool, failureReason, userAgent, deviceFingerprint *string) error {
	repo := s.repomanager.Attempts(s.db)

	_, err := repo.Record(ctx, &models.LoginAttempt{
		ID:                uuid.NewString(),
		Email:             email,
		IPAddress:         ipAddress,
		Success:           success,
		FailureReason:     failureReason,
		UserAgent:         userAgent,
		DeviceFingerprint: deviceFingerprint,
	})
	if err != nil {
		s.logger.Error(ctx, "recording login attempt", "error", err)
		return common.ErrorInternal
	}
	return nil
}

// CheckGuestDeviceLimit rejects guest creation once a device fingerprint
// has accumulated the configured number of distinct guest accounts.
func (s *SecurityService) CheckGuestDeviceLimit(ctx context.Context, deviceFingerprint string) error {
	repo := s.repomanager.Devices(s.db)

	count, err := repo.CountGuestsForFingerprint(ctx, deviceFingerprint)
	if err != nil {
		s.logger.Error(ctx, "counting guests for device", "error", err)
		return common.ErrorInternal
	}

	if count >= int64(s.maxGuestsPerDevice) {
		s.logger.Warn(ctx, "device guest limit exceeded", "fingerprint", deviceFingerprint, "count", count)
		return common.ErrorDeviceLimitExceeded
	}
	return nil
}

// RegisterDevice upserts a (user, fingerprint) sighting.
func (s *SecurityService) RegisterDevice(ctx context.Context, userID, deviceFingerprint string) error {
	repo := s.repomanager.Devices(s.db)

	_, err := repo.Upsert(ctx, &models.DeviceFingerprint{
		ID:          uuid.NewString(),
		UserID:      userID,
		Fingerprint: deviceFingerprint,
	})
	if err != nil {
		s.logger.Error(ctx, "registering device", "error", err)
		return common.ErrorInternal
	}
	return nil
}

// SanitizeDisplayName strips HTML tags from a display name and enforces
// the 1..100 character bound.
func SanitizeDisplayName(name string) (string, error) {
	cleaned := strings.TrimSpace(htmlTagPattern.ReplaceAllString(name, ""))

	if cleaned == "" {
		return "", fmt.Errorf("%w: display name cannot be empty", common.ErrorValidation)
	}
	if len([]rune(cleaned)) > 100 {
		return "", fmt.Errorf("%w: display name too long", common.ErrorValidation)
	}
	return cleaned, nil
}
