package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/quizforge/identity/internal/logging"
	"github.com/quizforge/identity/internal/server/auth"
	"github.com/quizforge/identity/internal/server/models"
	"github.com/quizforge/identity/internal/server/services"
)

// AdminPermission gates the /admin route group. It is granted out of band,
// never by the standard permission snapshot.
const AdminPermission = "admin:manage"

// AuthService is the identity orchestrator surface the transport calls.
type AuthService interface {
	Register(ctx context.Context, req services.RegisterRequest, client services.ClientInfo) (*services.AuthResponse, error)
	Login(ctx context.Context, req services.LoginRequest, client services.ClientInfo) (*services.AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string, client services.ClientInfo) (*services.AuthResponse, error)
	Logout(ctx context.Context, accessToken string, client services.ClientInfo) error
	LogoutAll(ctx context.Context, userID string, client services.ClientInfo) (int64, error)
	CreateGuest(ctx context.Context, req services.CreateGuestRequest, client services.ClientInfo) (*services.AuthResponse, error)
	Authenticate(ctx context.Context, accessToken string) (*auth.AccessClaims, error)
}

// UserService is the account management surface.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, req services.UpdateProfileRequest, client services.ClientInfo) (*models.User, error)
	ChangePassword(ctx context.Context, userID string, req services.ChangePasswordRequest, client services.ClientInfo) error
	DeleteAccount(ctx context.Context, userID string, client services.ClientInfo) error
	ListSessions(ctx context.Context, userID string) ([]*models.Session, error)
	RevokeSession(ctx context.Context, userID, sessionID string, client services.ClientInfo) error
	UpdateStatus(ctx context.Context, userID, status string, client services.ClientInfo) (*models.User, error)
	ListUsers(ctx context.Context, req services.ListUsersRequest) ([]*models.User, int64, error)
}

// QuotaService is the quota ledger surface.
type QuotaService interface {
	Consume(ctx context.Context, userID, quotaType string, idempotencyKey *string) (*models.UserQuota, error)
	Renew(ctx context.Context, userID, quotaType string, proof services.RenewProof) (*models.UserQuota, error)
	Get(ctx context.Context, userID, quotaType string) (*models.UserQuota, error)
	List(ctx context.Context, userID string) ([]*models.UserQuota, error)
	UpdateLimit(ctx context.Context, userID, quotaType string, maxAllowed int) (*models.UserQuota, error)
	Reset(ctx context.Context, userID, quotaType string) (*models.UserQuota, error)
}

// Server wires the identity services to their HTTP routes.
type Server struct {
	auth    AuthService
	users   UserService
	quotas  QuotaService
	limiter Limiter
	rpm     int
	logger  logging.Logger
}

func NewServer(auth AuthService, users UserService, quotas QuotaService,
	limiter Limiter, requestsPerMinute int, logger logging.Logger) *Server {
	return &Server{
		auth:    auth,
		users:   users,
		quotas:  quotas,
		limiter: limiter,
		rpm:     requestsPerMinute,
		logger:  logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	if s.limiter != nil && s.rpm > 0 {
		r.Use(rateLimit(s.limiter, s.rpm, s.logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/guest", s.handleCreateGuest)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/logout", s.handleLogout)
			r.Post("/logout-all", s.handleLogoutAll)
		})
	})

	r.Route("/users/me", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/", s.handleGetProfile)
		r.Put("/", s.handleUpdateProfile)
		r.Delete("/", s.handleDeleteAccount)
		r.Post("/password", s.handleChangePassword)

		r.Get("/sessions", s.handleListSessions)
		r.Delete("/sessions/{sessionID}", s.handleRevokeSession)

		r.Get("/quotas", s.handleListQuotas)
		r.Get("/quotas/{quotaType}", s.handleGetQuota)
		r.Post("/quotas/{quotaType}/consume", s.handleConsumeQuota)
		r.Post("/quotas/{quotaType}/renew", s.handleRenewQuota)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(s.requirePermission(AdminPermission))
		r.Get("/users", s.handleAdminListUsers)
		r.Get("/users/{userID}", s.handleAdminGetUser)
		r.Put("/users/{userID}/status", s.handleAdminUpdateStatus)
		r.Put("/users/{userID}/quotas/{quotaType}/limit", s.handleAdminUpdateQuotaLimit)
		r.Post("/users/{userID}/quotas/{quotaType}/reset", s.handleAdminResetQuota)
	})

	return r
}
