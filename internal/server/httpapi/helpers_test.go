package httpapi

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/logging"
	"github.com/quizforge/identity/internal/server/auth"
	"github.com/quizforge/identity/internal/server/models"
	"github.com/quizforge/identity/internal/server/services"
)

type errBoom struct{}

func (e errBoom) Error() string { return "boom" }

type nopLogger struct{}

func (n nopLogger) Debug(_ context.Context, _ string, _ ...any) {}
func (n nopLogger) Info(_ context.Context, _ string, _ ...any)  {}
func (n nopLogger) Warn(_ context.Context, _ string, _ ...any)  {}
func (n nopLogger) Error(_ context.Context, _ string, _ ...any) {}
func (n nopLogger) With(_ ...any) logging.Logger                { return n }

func testUser() *models.User {
	email := "user@example.com"
	name := "Test User"
	return &models.User{
		ID:          "user-1",
		Email:       &email,
		Status:      models.StatusFree,
		DisplayName: &name,
		Locale:      "en",
	}
}

func testAuthResponse() *services.AuthResponse {
	return &services.AuthResponse{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		TokenType:    "Bearer",
		ExpiresIn:    900,
		User:         testUser(),
	}
}

func testClaims(permissions ...string) *auth.AccessClaims {
	return &auth.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-1",
			ID:      "session-1",
		},
		Permissions: permissions,
	}
}

// fakeAuthService satisfies AuthService. Zero value rejects everything with
// an invalid token; set fields to steer individual tests.
type fakeAuthService struct {
	authResp  *services.AuthResponse
	authErr   error
	claims    *auth.AccessClaims
	claimsErr error

	logoutErr      error
	logoutAllCount int64

	lastAccessToken  string
	lastRefreshToken string
	lastRegister     services.RegisterRequest
	lastLogin        services.LoginRequest
	lastClient       services.ClientInfo
}

func (f *fakeAuthService) Register(_ context.Context, req services.RegisterRequest, client services.ClientInfo) (*services.AuthResponse, error) {
	f.lastRegister = req
	f.lastClient = client
	return f.authResp, f.authErr
}

func (f *fakeAuthService) Login(_ context.Context, req services.LoginRequest, client services.ClientInfo) (*services.AuthResponse, error) {
	f.lastLogin = req
	f.lastClient = client
	return f.authResp, f.authErr
}

func (f *fakeAuthService) RefreshToken(_ context.Context, refreshToken string, client services.ClientInfo) (*services.AuthResponse, error) {
	f.lastRefreshToken = refreshToken
	f.lastClient = client
	return f.authResp, f.authErr
}

func (f *fakeAuthService) Logout(_ context.Context, accessToken string, _ services.ClientInfo) error {
	f.lastAccessToken = accessToken
	return f.logoutErr
}

func (f *fakeAuthService) LogoutAll(_ context.Context, _ string, _ services.ClientInfo) (int64, error) {
	return f.logoutAllCount, f.logoutErr
}

func (f *fakeAuthService) CreateGuest(_ context.Context, _ services.CreateGuestRequest, client services.ClientInfo) (*services.AuthResponse, error) {
	f.lastClient = client
	return f.authResp, f.authErr
}

func (f *fakeAuthService) Authenticate(_ context.Context, accessToken string) (*auth.AccessClaims, error) {
	f.lastAccessToken = accessToken
	if f.claims == nil && f.claimsErr == nil {
		return nil, common.ErrorInvalidToken
	}
	return f.claims, f.claimsErr
}

type fakeUserService struct {
	user     *models.User
	userErr  error
	sessions []*models.Session
	users    []*models.User
	total    int64
	err      error

	lastUserID    string
	lastSessionID string
	lastStatus    string
	lastList      services.ListUsersRequest
	lastPassword  services.ChangePasswordRequest
	deleted       bool
}

func (f *fakeUserService) GetProfile(_ context.Context, userID string) (*models.User, error) {
	f.lastUserID = userID
	return f.user, f.userErr
}

func (f *fakeUserService) UpdateProfile(_ context.Context, userID string, _ services.UpdateProfileRequest, _ services.ClientInfo) (*models.User, error) {
	f.lastUserID = userID
	return f.user, f.userErr
}

func (f *fakeUserService) ChangePassword(_ context.Context, userID string, req services.ChangePasswordRequest, _ services.ClientInfo) error {
	f.lastUserID = userID
	f.lastPassword = req
	return f.err
}

func (f *fakeUserService) DeleteAccount(_ context.Context, userID string, _ services.ClientInfo) error {
	f.lastUserID = userID
	f.deleted = true
	return f.err
}

func (f *fakeUserService) ListSessions(_ context.Context, userID string) ([]*models.Session, error) {
	f.lastUserID = userID
	return f.sessions, f.err
}

func (f *fakeUserService) RevokeSession(_ context.Context, userID, sessionID string, _ services.ClientInfo) error {
	f.lastUserID = userID
	f.lastSessionID = sessionID
	return f.err
}

func (f *fakeUserService) UpdateStatus(_ context.Context, userID, status string, _ services.ClientInfo) (*models.User, error) {
	f.lastUserID = userID
	f.lastStatus = status
	return f.user, f.userErr
}

func (f *fakeUserService) ListUsers(_ context.Context, req services.ListUsersRequest) ([]*models.User, int64, error) {
	f.lastList = req
	return f.users, f.total, f.err
}

type fakeQuotaService struct {
	quota  *models.UserQuota
	quotas []*models.UserQuota
	err    error

	lastUserID    string
	lastQuotaType string
	lastKey       *string
	lastProof     services.RenewProof
	lastLimit     int
}

func (f *fakeQuotaService) Consume(_ context.Context, userID, quotaType string, key *string) (*models.UserQuota, error) {
	f.lastUserID = userID
	f.lastQuotaType = quotaType
	f.lastKey = key
	return f.quota, f.err
}

func (f *fakeQuotaService) Renew(_ context.Context, userID, quotaType string, proof services.RenewProof) (*models.UserQuota, error) {
	f.lastUserID = userID
	f.lastQuotaType = quotaType
	f.lastProof = proof
	return f.quota, f.err
}

func (f *fakeQuotaService) Get(_ context.Context, userID, quotaType string) (*models.UserQuota, error) {
	f.lastUserID = userID
	f.lastQuotaType = quotaType
	return f.quota, f.err
}

func (f *fakeQuotaService) List(_ context.Context, userID string) ([]*models.UserQuota, error) {
	f.lastUserID = userID
	return f.quotas, f.err
}

func (f *fakeQuotaService) UpdateLimit(_ context.Context, userID, quotaType string, maxAllowed int) (*models.UserQuota, error) {
	f.lastUserID = userID
	f.lastQuotaType = quotaType
	f.lastLimit = maxAllowed
	return f.quota, f.err
}

func (f *fakeQuotaService) Reset(_ context.Context, userID, quotaType string) (*models.UserQuota, error) {
	f.lastUserID = userID
	f.lastQuotaType = quotaType
	return f.quota, f.err
}

func newTestServer(authSvc *fakeAuthService, userSvc *fakeUserService, quotaSvc *fakeQuotaService) *Server {
	if authSvc == nil {
		authSvc = &fakeAuthService{}
	}
	if userSvc == nil {
		userSvc = &fakeUserService{}
	}
	if quotaSvc == nil {
		quotaSvc = &fakeQuotaService{}
	}
	return NewServer(authSvc, userSvc, quotaSvc, nil, 0, nopLogger{})
}
