package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/dbx"
	"github.com/quizforge/identity/internal/logging"
	"github.com/quizforge/identity/internal/server/auth"
	"github.com/quizforge/identity/internal/server/config"
	"github.com/quizforge/identity/internal/server/models"
	"github.com/quizforge/identity/internal/server/password"
	"github.com/quizforge/identity/internal/server/repositories/repomanager"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ClientInfo carries per-request transport metadata into the use cases.
type ClientInfo struct {
	IPAddress         *string
	UserAgent         *string
	DeviceFingerprint *string
}

func (c ClientInfo) ip() string {
	if c.IPAddress != nil {
		return *c.IPAddress
	}
	return "unknown"
}

// RegisterRequest is the typed input for Register.
type RegisterRequest struct {
	Email            string
	Password         string
	DisplayName      *string
	Locale           *string
	AnalyticsConsent *bool
	MarketingConsent *bool
}

// LoginRequest is the typed input for Login.
type LoginRequest struct {
	Email           string
	Password        string
	CaptchaResponse *string
}

// CreateGuestRequest is the typed input for CreateGuest.
type CreateGuestRequest struct {
	Locale *string
}

// AuthResponse bundles a freshly minted token pair with the public view of
// the authenticated user.
type AuthResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	User         *models.User
}

// GuestQuotaType is the quota seeded for every new guest account.
const GuestQuotaType = "quiz_plays"

// AuthService is the identity orchestrator: register, login, refresh,
// logout, and guest creation. It calls the abuse guard, the hasher, the
// token service, and the session store in a fixed order.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenService
	hasher      *password.Hasher
	security    *SecurityService
	logger      logging.Logger

	refreshTTL          time.Duration
	guestQuizQuota      int
	guestQuotaRenewable bool
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, tokens *auth.TokenService,
	hasher *password.Hasher, security *SecurityService, cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		db:                  db,
		repomanager:         m,
		tokens:              tokens,
		hasher:              hasher,
		security:            security,
		logger:              logger,
		refreshTTL:          cfg.RefreshTokenTTL,
		guestQuizQuota:      cfg.GuestQuizQuota,
		guestQuotaRenewable: cfg.GuestQuotaRenewable,
	}
}

// Register creates a permanent account and returns a first token pair.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, client ClientInfo) (*AuthResponse, error) {
	if err := password.ValidateStrength(req.Password); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}

	usersRepo := s.repomanager.Users(s.db)

	exists, err := usersRepo.EmailExists(ctx, email)
	if err != nil {
		s.logger.Error(ctx, "checking email existence", "error", err)
		return nil, common.ErrorInternal
	}
	if exists {
		return nil, common.ErrorEmailAlreadyExists
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		s.logger.Error(ctx, "hashing password", "error", err)
		return nil, common.ErrorInternal
	}

	var displayName *string
	if req.DisplayName != nil {
		cleaned, err := SanitizeDisplayName(*req.DisplayName)
		if err != nil {
			return nil, err
		}
		displayName = &cleaned
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        &email,
		PasswordHash: &hash,
		Status:       models.StatusFree,
		DisplayName:  displayName,
		Locale:       localeOrDefault(req.Locale),
	}
	if req.AnalyticsConsent != nil {
		user.AnalyticsConsent = *req.AnalyticsConsent
	}
	if req.MarketingConsent != nil {
		user.MarketingConsent = *req.MarketingConsent
	}

	user, err = usersRepo.Create(ctx, user)
	if err != nil {
		s.logger.Error(ctx, "creating user", "error", err)
		return nil, common.ErrorInternal
	}

	s.auditAction(ctx, &user.ID, models.AuditUserRegistered, client)

	resp, err := s.generateTokens(ctx, s.db, user, client)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return resp, nil
}

// Login verifies credentials under the full abuse guard pipeline: IP rate
// limit, account lock, captcha escalation, then password verification.
// Failures are recorded in the attempt log; the caller always sees the
// generic InvalidCredentials for a wrong email or password.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, client ClientInfo) (*AuthResponse, error) {
	ip := client.ip()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	// Every attempt lands in the log, including those the guard itself
	// turns away, so repeated hammering keeps the windows warm.
	if err := s.security.CheckLoginRateLimit(ctx, ip); err != nil {
		if errors.Is(err, common.ErrorTooManyRequests) {
			s.recordFailure(ctx, email, ip, models.FailureRateLimited, client)
		}
		return nil, err
	}
	if err := s.security.CheckAccountLock(ctx, email); err != nil {
		if errors.Is(err, common.ErrorAccountLocked) {
			s.recordFailure(ctx, email, ip, models.FailureAccountLocked, client)
		}
		return nil, err
	}

	captchaRequired, err := s.security.CheckCaptchaRequired(ctx, email)
	if err != nil {
		return nil, err
	}
	if captchaRequired {
		if req.CaptchaResponse == nil {
			s.recordFailure(ctx, email, ip, models.FailureCaptchaRequired, client)
			return nil, common.ErrorCaptchaRequired
		}
		if err := s.security.VerifyCaptcha(ctx, *req.CaptchaResponse); err != nil {
			if errors.Is(err, common.ErrorInvalidCaptcha) {
				s.recordFailure(ctx, email, ip, models.FailureInvalidCaptcha, client)
			}
			return nil, err
		}
	}

	usersRepo := s.repomanager.Users(s.db)
	user, err := usersRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// Unknown email is indistinguishable from a wrong password.
			s.recordFailure(ctx, email, ip, models.FailureInvalidPassword, client)
			return nil, common.ErrorInvalidCredentials
		}
		s.logger.Error(ctx, "loading user", "error", err)
		return nil, common.ErrorInternal
	}

	if user.PasswordHash == nil {
		// Guest account; it has no password to log in with.
		s.recordFailure(ctx, email, ip, models.FailureInvalidPassword, client)
		return nil, common.ErrorInvalidCredentials
	}

	if err := s.hasher.Compare(ctx, *user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, common.ErrorInvalidCredentials) {
			s.recordFailure(ctx, email, ip, models.FailureInvalidPassword, client)
			s.logger.Warn(ctx, "login failed", "email", email, "ip", ip)
			return nil, common.ErrorInvalidCredentials
		}
		s.logger.Error(ctx, "verifying password", "error", err)
		return nil, common.ErrorInternal
	}

	if user.Status == models.StatusSuspended {
		s.recordFailure(ctx, email, ip, models.FailureAccountSuspended, client)
		return nil, fmt.Errorf("%w: account_suspended", common.ErrorPermissionDenied)
	}

	if err := s.security.RecordLoginAttempt(ctx, &email, ip, true, nil, client.UserAgent, client.DeviceFingerprint); err != nil {
		return nil, err
	}

	if err := usersRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Error(ctx, "updating last login", "error", err)
		return nil, common.ErrorInternal
	}

	if client.DeviceFingerprint != nil {
		if err := s.security.RegisterDevice(ctx, user.ID, *client.DeviceFingerprint); err != nil {
			return nil, err
		}
	}

	s.auditAction(ctx, &user.ID, models.AuditUserLogin, client)

	resp, err := s.generateTokens(ctx, s.db, user, client)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID, "ip", ip)
	return resp, nil
}

// RefreshToken rotates a refresh token. The token is single use: the locked
// read and the revocation share one transaction, so of two concurrent
// refreshes only one wins and the loser sees an invalid token.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string, client ClientInfo) (*AuthResponse, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	refreshHash := auth.TokenHash(refreshToken)

	var oldSession *models.Session
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Sessions(tx)

		session, err := repo.GetActiveByRefreshHashForUpdate(ctx, refreshHash)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorInvalidToken
			}
			return err
		}
		if err := repo.Revoke(ctx, session.ID, models.RevokeReasonRefreshConsumed); err != nil {
			return err
		}
		oldSession = session
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorInvalidToken) {
			return nil, common.ErrorInvalidToken
		}
		s.logger.Error(ctx, "consuming refresh token", "error", err)
		return nil, common.ErrorInternal
	}

	if oldSession.UserID != claims.Subject {
		s.logger.Error(ctx, "session user mismatch", "session_user", oldSession.UserID, "token_user", claims.Subject)
		return nil, common.ErrorInvalidToken
	}

	usersRepo := s.repomanager.Users(s.db)
	user, err := usersRepo.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorInvalidToken
		}
		s.logger.Error(ctx, "loading user", "error", err)
		return nil, common.ErrorInternal
	}

	// Anomaly detection is log-only: an unseen IP and device is worth an
	// alert, not a refusal.
	sessionsRepo := s.repomanager.Sessions(s.db)
	known, err := sessionsRepo.IsKnownOrigin(ctx, user.ID, client.IPAddress, oldSession.DeviceFingerprint)
	if err != nil {
		s.logger.Error(ctx, "checking session origin", "error", err)
	} else if !known {
		s.logger.Warn(ctx, "anomaly detected during token refresh", "user_id", user.ID, "ip", client.ip())
		s.auditAction(ctx, &user.ID, models.AuditAnomalyDetected, client)
	}

	client.DeviceFingerprint = oldSession.DeviceFingerprint
	resp, err := s.generateTokens(ctx, s.db, user, client)
	if err != nil {
		return nil, err
	}

	s.auditAction(ctx, &user.ID, models.AuditTokenRefreshed, client)
	s.logger.Info(ctx, "token refreshed", "user_id", user.ID)
	return resp, nil
}

// Authenticate authorizes a request bearing an access token: the token must
// verify and its session must still be active. A valid token whose session
// is gone or revoked yields TokenRevoked. The last-used bump runs off the
// request path and is allowed to be lost.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*auth.AccessClaims, error) {
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Sessions(s.db)
	session, err := repo.GetActiveByAccessHash(ctx, auth.TokenHash(accessToken))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorTokenRevoked
		}
		s.logger.Error(ctx, "loading session", "error", err)
		return nil, common.ErrorInternal
	}

	go func() {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := repo.UpdateLastUsed(bctx, session.ID); err != nil {
			s.logger.Debug(bctx, "last-used bump failed", "session_id", session.ID, "error", err)
		}
	}()

	return claims, nil
}

// Logout revokes the session named by the access token's jti claim.
func (s *AuthService) Logout(ctx context.Context, accessToken string, client ClientInfo) error {
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return err
	}

	repo := s.repomanager.Sessions(s.db)
	if err := repo.Revoke(ctx, claims.ID, models.RevokeReasonLogout); err != nil {
		s.logger.Error(ctx, "revoking session", "error", err)
		return common.ErrorInternal
	}

	s.auditAction(ctx, &claims.Subject, models.AuditUserLogout, client)
	s.logger.Info(ctx, "user logged out", "user_id", claims.Subject, "session_id", claims.ID)
	return nil
}

// LogoutAll revokes every active session of the user and returns how many
// were revoked.
func (s *AuthService) LogoutAll(ctx context.Context, userID string, client ClientInfo) (int64, error) {
	repo := s.repomanager.Sessions(s.db)

	count, err := repo.RevokeAllForUser(ctx, userID, models.RevokeReasonLogoutAll)
	if err != nil {
		s.logger.Error(ctx, "revoking sessions", "error", err)
		return 0, common.ErrorInternal
	}

	s.auditAction(ctx, &userID, models.AuditUserLogoutAll, client)
	s.logger.Info(ctx, "all sessions logged out", "user_id", userID, "sessions_revoked", count)
	return count, nil
}

// CreateGuest creates a guest account under the device cap and seeds its
// default quota in the same transaction, so a guest row never exists
// without its quota.
func (s *AuthService) CreateGuest(ctx context.Context, req CreateGuestRequest, client ClientInfo) (*AuthResponse, error) {
	if client.DeviceFingerprint != nil {
		if err := s.security.CheckGuestDeviceLimit(ctx, *client.DeviceFingerprint); err != nil {
			return nil, err
		}
	}

	user := &models.User{
		ID:      uuid.NewString(),
		Status:  models.StatusFree,
		IsGuest: true,
		Locale:  localeOrDefault(req.Locale),
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).Create(ctx, user); err != nil {
			return err
		}

		now := time.Now()
		periodType := models.PeriodDaily
		periodEnd := now.Add(24 * time.Hour)
		renewAction := models.RenewActionWatchAd

		quota := &models.UserQuota{
			ID:          uuid.NewString(),
			UserID:      user.ID,
			QuotaType:   GuestQuotaType,
			MaxAllowed:  s.guestQuizQuota,
			CanRenew:    s.guestQuotaRenewable,
			RenewAction: &renewAction,
			PeriodType:  &periodType,
			PeriodStart: &now,
			PeriodEnd:   &periodEnd,
		}
		_, err := s.repomanager.Quotas(tx).Create(ctx, quota)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "creating guest", "error", err)
		return nil, common.ErrorInternal
	}

	if client.DeviceFingerprint != nil {
		if err := s.security.RegisterDevice(ctx, user.ID, *client.DeviceFingerprint); err != nil {
			return nil, err
		}
	}

	s.auditAction(ctx, &user.ID, models.AuditGuestCreated, client)

	resp, err := s.generateTokens(ctx, s.db, user, client)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "guest created", "user_id", user.ID)
	return resp, nil
}

// --- helpers below ---

func localeOrDefault(locale *string) string {
	if locale != nil && *locale != "" {
		return *locale
	}
	return "en"
}

// permissionSnapshot derives the permission list embedded in access tokens.
// The set of cases is closed and known at compile time.
func permissionSnapshot(user *models.User) []string {
	if user.IsGuest {
		return []string{"quiz:play:guest"}
	}
	switch user.Status {
	case models.StatusPremium:
		return []string{"quiz:play:premium", "quiz:create:own"}
	case models.StatusTrial:
		return []string{"quiz:play:premium"}
	case models.StatusSuspended:
		return nil
	default:
		return []string{"quiz:play:free"}
	}
}

func (s *AuthService) recordFailure(ctx context.Context, email, ip, reason string, client ClientInfo) {
	if err := s.security.RecordLoginAttempt(ctx, &email, ip, false, &reason, client.UserAgent, client.DeviceFingerprint); err != nil {
		s.logger.Error(ctx, "recording login failure", "error", err)
	}
}

func (s *AuthService) auditAction(ctx context.Context, userID *string, action string, client ClientInfo) {
	repo := s.repomanager.Audit(s.db)
	_, err := repo.Log(ctx, &models.AuditLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	if err != nil {
		s.logger.Error(ctx, "writing audit log", "action", action, "error", err)
	}
}

// generateTokens mints a token pair sharing one session id and persists the
// session row holding the token digests.
func (s *AuthService) generateTokens(ctx context.Context, db dbx.DBTX, user *models.User, client ClientInfo) (*AuthResponse, error) {
	sessionID := uuid.NewString()
	permissions := permissionSnapshot(user)

	accessToken, err := s.tokens.GenerateAccessToken(user.ID, user.Status, user.IsGuest, permissions, sessionID)
	if err != nil {
		s.logger.Error(ctx, "minting access token", "error", err)
		return nil, common.ErrorInternal
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(user.ID, sessionID)
	if err != nil {
		s.logger.Error(ctx, "minting refresh token", "error", err)
		return nil, common.ErrorInternal
	}

	session := &models.Session{
		ID:                sessionID,
		UserID:            user.ID,
		AccessTokenHash:   auth.TokenHash(accessToken),
		RefreshTokenHash:  auth.TokenHash(refreshToken),
		ExpiresAt:         time.Now().Add(s.refreshTTL),
		IPAddress:         client.IPAddress,
		UserAgent:         client.UserAgent,
		DeviceFingerprint: client.DeviceFingerprint,
	}
	if _, err := s.repomanager.Sessions(db).Create(ctx, session); err != nil {
		s.logger.Error(ctx, "persisting session", "error", err)
		return nil, common.ErrorInternal
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.tokens.AccessTTLSeconds(),
		User:         user,
	}, nil
}
