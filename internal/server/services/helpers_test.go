package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/quizforge/identity/internal/dbx"
	"github.com/quizforge/identity/internal/logging"
	"github.com/quizforge/identity/internal/server/auth"
	"github.com/quizforge/identity/internal/server/config"
	"github.com/quizforge/identity/internal/server/models"
	"github.com/quizforge/identity/internal/server/password"
	attemptsrepo "github.com/quizforge/identity/internal/server/repositories/attempts"
	auditrepo "github.com/quizforge/identity/internal/server/repositories/audit"
	devicesrepo "github.com/quizforge/identity/internal/server/repositories/devices"
	quotasrepo "github.com/quizforge/identity/internal/server/repositories/quotas"
	sessionsrepo "github.com/quizforge/identity/internal/server/repositories/sessions"
	usersrepo "github.com/quizforge/identity/internal/server/repositories/users"
)

// --- shared helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger          { return n }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenSecret:          "access-secret",
		RefreshTokenSecret:         "refresh-secret",
		AccessTokenTTL:             15 * time.Minute,
		RefreshTokenTTL:            time.Hour,
		LoginIPWindowMinutes:       15,
		LoginIPMaxFailures:         5,
		CaptchaWindowMinutes:       15,
		CaptchaFailureThreshold:    3,
		LockoutWindowMinutes:       60,
		LockoutFailureThreshold:    10,
		DeviceFingerprintMaxGuests: 3,
		GuestQuizQuota:             5,
		GuestQuotaRenewable:        true,
	}
}

func testTokenService(cfg *config.Config) *auth.TokenService {
	return auth.NewTokenService(
		[]byte(cfg.AccessTokenSecret), []byte(cfg.RefreshTokenSecret),
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func strPtr(s string) *string { return &s }

// --- fake repositories ---

type fakeUsersRepo struct {
	createErr error
	created   []*models.User

	getByIDOut *models.User
	getByIDErr error

	getByEmailOut *models.User
	getByEmailErr error

	emailExistsOut bool
	emailExistsErr error

	updateProfileOut *models.User
	updateProfileErr error

	updatePasswordErr  error
	updatedPasswordFor string

	updateStatusOut *models.User
	updateStatusErr error

	updateLastLoginErr error

	softDeleteErr error
	softDeleted   []string

	listOut  []*models.User
	listErr  error
	countOut int64
	countErr error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, u)
	return u, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return f.getByIDOut, f.getByIDErr
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return f.getByEmailOut, f.getByEmailErr
}

func (f *fakeUsersRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return f.emailExistsOut, f.emailExistsErr
}

func (f *fakeUsersRepo) UpdateProfile(ctx context.Context, id string, upd usersrepo.ProfileUpdate) (*models.User, error) {
	return f.updateProfileOut, f.updateProfileErr
}

func (f *fakeUsersRepo) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	if f.updatePasswordErr != nil {
		return f.updatePasswordErr
	}
	f.updatedPasswordFor = id
	return nil
}

func (f *fakeUsersRepo) UpdateStatus(ctx context.Context, id string, status string) (*models.User, error) {
	return f.updateStatusOut, f.updateStatusErr
}

func (f *fakeUsersRepo) UpdateLastLogin(ctx context.Context, id string) error {
	return f.updateLastLoginErr
}

func (f *fakeUsersRepo) SoftDelete(ctx context.Context, id string) error {
	if f.softDeleteErr != nil {
		return f.softDeleteErr
	}
	f.softDeleted = append(f.softDeleted, id)
	return nil
}

func (f *fakeUsersRepo) List(ctx context.Context, lf usersrepo.ListFilter) ([]*models.User, error) {
	return f.listOut, f.listErr
}

func (f *fakeUsersRepo) Count(ctx context.Context, lf usersrepo.ListFilter) (int64, error) {
	return f.countOut, f.countErr
}

type fakeSessionsRepo struct {
	createErr error
	created   []*models.Session

	getActiveByAccessOut *models.Session
	getActiveByAccessErr error

	getActiveByRefreshOut *models.Session
	getActiveByRefreshErr error

	getByIDOut *models.Session
	getByIDErr error

	updateLastUsedErr error

	revokeErr     error
	revokedIDs    []string
	revokeReasons []string

	revokeAllOut    int64
	revokeAllErr    error
	revokeAllReason string

	listActiveOut []*models.Session
	listActiveErr error

	countActiveOut int64
	countActiveErr error

	isKnownOriginOut bool
	isKnownOriginErr error

	deleteExpiredOut int64
	deleteExpiredErr error
}

func (f *fakeSessionsRepo) Create(ctx context.Context, s *models.Session) (*models.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, s)
	return s, nil
}

func (f *fakeSessionsRepo) GetActiveByAccessHash(ctx context.Context, h string) (*models.Session, error) {
	return f.getActiveByAccessOut, f.getActiveByAccessErr
}

func (f *fakeSessionsRepo) GetActiveByRefreshHashForUpdate(ctx context.Context, h string) (*models.Session, error) {
	return f.getActiveByRefreshOut, f.getActiveByRefreshErr
}

func (f *fakeSessionsRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return f.getByIDOut, f.getByIDErr
}

func (f *fakeSessionsRepo) UpdateLastUsed(ctx context.Context, id string) error {
	return f.updateLastUsedErr
}

func (f *fakeSessionsRepo) Revoke(ctx context.Context, id string, reason string) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revokedIDs = append(f.revokedIDs, id)
	f.revokeReasons = append(f.revokeReasons, reason)
	return nil
}

func (f *fakeSessionsRepo) RevokeAllForUser(ctx context.Context, userID string, reason string) (int64, error) {
	if f.revokeAllErr != nil {
		return 0, f.revokeAllErr
	}
	f.revokeAllReason = reason
	return f.revokeAllOut, nil
}

func (f *fakeSessionsRepo) ListActiveForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	return f.listActiveOut, f.listActiveErr
}

func (f *fakeSessionsRepo) CountActiveForUser(ctx context.Context, userID string) (int64, error) {
	return f.countActiveOut, f.countActiveErr
}

func (f *fakeSessionsRepo) IsKnownOrigin(ctx context.Context, userID string, ip, fp *string) (bool, error) {
	return f.isKnownOriginOut, f.isKnownOriginErr
}

func (f *fakeSessionsRepo) DeleteExpiredOlderThan(ctx context.Context, days int) (int64, error) {
	return f.deleteExpiredOut, f.deleteExpiredErr
}

type fakeAttemptsRepo struct {
	recordErr error
	recorded  []*models.LoginAttempt

	// Failure counts keyed by window size, so one fake serves the rate
	// limit, lockout, and captcha checks in a single test.
	ipFailuresByWindow    map[int]int64
	ipFailuresErr         error
	emailFailuresByWindow map[int]int64
	emailFailuresErr      error

	deleteOut int64
	deleteErr error
}

func (f *fakeAttemptsRepo) Record(ctx context.Context, a *models.LoginAttempt) (*models.LoginAttempt, error) {
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	f.recorded = append(f.recorded, a)
	return a, nil
}

func (f *fakeAttemptsRepo) CountRecentFailuresByIP(ctx context.Context, ip string, windowMinutes int) (int64, error) {
	return f.ipFailuresByWindow[windowMinutes], f.ipFailuresErr
}

func (f *fakeAttemptsRepo) CountRecentFailuresByEmail(ctx context.Context, email string, windowMinutes int) (int64, error) {
	return f.emailFailuresByWindow[windowMinutes], f.emailFailuresErr
}

func (f *fakeAttemptsRepo) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	return f.deleteOut, f.deleteErr
}

type fakeDevicesRepo struct {
	upsertErr error
	upserted  []*models.DeviceFingerprint

	guestCountOut int64
	guestCountErr error

	listOut []*models.DeviceFingerprint
	listErr error
}

func (f *fakeDevicesRepo) Upsert(ctx context.Context, d *models.DeviceFingerprint) (*models.DeviceFingerprint, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserted = append(f.upserted, d)
	return d, nil
}

func (f *fakeDevicesRepo) CountGuestsForFingerprint(ctx context.Context, fp string) (int64, error) {
	return f.guestCountOut, f.guestCountErr
}

func (f *fakeDevicesRepo) ListForUser(ctx context.Context, userID string) ([]*models.DeviceFingerprint, error) {
	return f.listOut, f.listErr
}

type fakeQuotasRepo struct {
	createErr error
	created   []*models.UserQuota

	getOut *models.UserQuota
	getErr error

	getForUpdateOut *models.UserQuota
	getForUpdateErr error

	listOut []*models.UserQuota
	listErr error

	incrementOut *models.UserQuota
	incrementErr error
	incremented  []string

	resetPeriodOut *models.UserQuota
	resetPeriodErr error
	periodResets   []string

	resetUsageOut *models.UserQuota
	resetUsageErr error

	updateLimitOut *models.UserQuota
	updateLimitErr error

	resetOut *models.UserQuota
	resetErr error

	consumptionExistsOut bool
	consumptionExistsErr error

	insertConsumptionErr error
	consumptions         []*models.QuotaConsumption

	deleteConsumptionsOut int64
	deleteConsumptionsErr error
}

func (f *fakeQuotasRepo) Create(ctx context.Context, q *models.UserQuota) (*models.UserQuota, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, q)
	return q, nil
}

func (f *fakeQuotasRepo) Get(ctx context.Context, userID, quotaType string) (*models.UserQuota, error) {
	return f.getOut, f.getErr
}

func (f *fakeQuotasRepo) GetForUpdate(ctx context.Context, userID, quotaType string) (*models.UserQuota, error) {
	return f.getForUpdateOut, f.getForUpdateErr
}

func (f *fakeQuotasRepo) ListForUser(ctx context.Context, userID string) ([]*models.UserQuota, error) {
	return f.listOut, f.listErr
}

func (f *fakeQuotasRepo) IncrementUsage(ctx context.Context, id string) (*models.UserQuota, error) {
	if f.incrementErr != nil {
		return nil, f.incrementErr
	}
	f.incremented = append(f.incremented, id)
	return f.incrementOut, nil
}

func (f *fakeQuotasRepo) ResetPeriodAndConsume(ctx context.Context, id string) (*models.UserQuota, error) {
	if f.resetPeriodErr != nil {
		return nil, f.resetPeriodErr
	}
	f.periodResets = append(f.periodResets, id)
	return f.resetPeriodOut, nil
}

func (f *fakeQuotasRepo) ResetUsage(ctx context.Context, id string) (*models.UserQuota, error) {
	return f.resetUsageOut, f.resetUsageErr
}

func (f *fakeQuotasRepo) UpdateLimit(ctx context.Context, userID, quotaType string, maxAllowed int) (*models.UserQuota, error) {
	return f.updateLimitOut, f.updateLimitErr
}

func (f *fakeQuotasRepo) Reset(ctx context.Context, userID, quotaType string) (*models.UserQuota, error) {
	return f.resetOut, f.resetErr
}

func (f *fakeQuotasRepo) ConsumptionExists(ctx context.Context, key string) (bool, error) {
	return f.consumptionExistsOut, f.consumptionExistsErr
}

func (f *fakeQuotasRepo) InsertConsumption(ctx context.Context, c *models.QuotaConsumption) error {
	if f.insertConsumptionErr != nil {
		return f.insertConsumptionErr
	}
	f.consumptions = append(f.consumptions, c)
	return nil
}

func (f *fakeQuotasRepo) DeleteConsumptionsOlderThan(ctx context.Context, days int) (int64, error) {
	return f.deleteConsumptionsOut, f.deleteConsumptionsErr
}

type fakeAuditRepo struct {
	logErr error
	logged []*models.AuditLog
}

func (f *fakeAuditRepo) Log(ctx context.Context, e *models.AuditLog) (*models.AuditLog, error) {
	if f.logErr != nil {
		return nil, f.logErr
	}
	f.logged = append(f.logged, e)
	return e, nil
}

func (f *fakeAuditRepo) ListForUser(ctx context.Context, userID string, limit int64) ([]*models.AuditLog, error) {
	return nil, nil
}

func (f *fakeAuditRepo) ListOlderThan(ctx context.Context, cutoff time.Time, limit int64) ([]*models.AuditLog, error) {
	return nil, nil
}

func (f *fakeAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// fakeRepoManager vends the same fake instances regardless of the handle,
// so repository state is observable across transactions.
type fakeRepoManager struct {
	users    *fakeUsersRepo
	sessions *fakeSessionsRepo
	attempts *fakeAttemptsRepo
	devices  *fakeDevicesRepo
	quotas   *fakeQuotasRepo
	audit    *fakeAuditRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:    &fakeUsersRepo{},
		sessions: &fakeSessionsRepo{},
		attempts: &fakeAttemptsRepo{},
		devices:  &fakeDevicesRepo{},
		quotas:   &fakeQuotasRepo{},
		audit:    &fakeAuditRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.users }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository { return m.sessions }
func (m *fakeRepoManager) Attempts(db dbx.DBTX) attemptsrepo.Repository { return m.attempts }
func (m *fakeRepoManager) Devices(db dbx.DBTX) devicesrepo.Repository   { return m.devices }
func (m *fakeRepoManager) Quotas(db dbx.DBTX) quotasrepo.Repository     { return m.quotas }
func (m *fakeRepoManager) Audit(db dbx.DBTX) auditrepo.Repository       { return m.audit }

type fakeVerifier struct {
	err    error
	tokens []string
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) error {
	if f.err != nil {
		return f.err
	}
	f.tokens = append(f.tokens, token)
	return nil
}

func newTestSecurityService(db *sql.DB, rm *fakeRepoManager, verifier *fakeVerifier) *SecurityService {
	if verifier == nil {
		verifier = &fakeVerifier{}
	}
	return NewSecurityService(db, rm, verifier, testConfig(), nopLogger{})
}

func newTestAuthService(db *sql.DB, rm *fakeRepoManager, verifier *fakeVerifier) *AuthService {
	cfg := testConfig()
	hasher := password.NewHasher(password.MinCost)
	security := newTestSecurityService(db, rm, verifier)
	return NewAuthService(db, rm, testTokenService(cfg), hasher, security, cfg, nopLogger{})
}
