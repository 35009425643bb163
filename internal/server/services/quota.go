package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/dbx"
	"github.com/quizforge/identity/internal/logging"
	"github.com/quizforge/identity/internal/server/models"
	"github.com/quizforge/identity/internal/server/repositories/repomanager"
)

// RenewProof is the caller-supplied evidence for a manual quota renewal.
// Verifying the proof's authenticity belongs to the originating system;
// this service only enforces that the action tag matches the quota's
// configured renew action.
type RenewProof struct {
	Action  string
	Payload string
}

// QuotaService is the quota ledger. Consume and Renew run their locked
// read and mutation inside one transaction; the row lock is the only
// serialization mechanism, so concurrent calls line up on it instead of
// racing past the exceeded check.
type QuotaService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewQuotaService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *QuotaService {
	return &QuotaService{db: db, repomanager: m, logger: logger}
}

// Consume atomically charges one unit of the quota. With an idempotency
// key, a duplicate call fails with IdempotencyConflict instead of double
// charging. An elapsed period resets usage to 1 and rolls the period
// forward instead of incrementing.
func (s *QuotaService) Consume(ctx context.Context, userID, quotaType string, idempotencyKey *string) (*models.UserQuota, error) {
	var result *models.UserQuota

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Quotas(tx)

		if idempotencyKey != nil {
			exists, err := repo.ConsumptionExists(ctx, *idempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return common.ErrorIdempotencyConflict
			}
		}

		quota, err := repo.GetForUpdate(ctx, userID, quotaType)
		if err != nil {
			return err
		}

		if quota.IsExceeded() {
			return common.ErrorQuotaExceeded
		}

		if quota.IsExpired() {
			result, err = repo.ResetPeriodAndConsume(ctx, quota.ID)
		} else {
			result, err = repo.IncrementUsage(ctx, quota.ID)
		}
		if err != nil {
			return err
		}

		if idempotencyKey != nil {
			return repo.InsertConsumption(ctx, &models.QuotaConsumption{
				ID:             uuid.NewString(),
				IdempotencyKey: *idempotencyKey,
				UserID:         userID,
				QuotaType:      quotaType,
			})
		}
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, common.ErrorIdempotencyConflict),
			errors.Is(err, common.ErrorQuotaExceeded),
			errors.Is(err, common.ErrorNotFound):
			return nil, err
		default:
			s.logger.Error(ctx, "consuming quota", "user_id", userID, "quota_type", quotaType, "error", err)
			return nil, common.ErrorInternal
		}
	}

	return result, nil
}

// Renew resets usage to zero after a proof whose action tag matches the
// quota's configured renew action.
func (s *QuotaService) Renew(ctx context.Context, userID, quotaType string, proof RenewProof) (*models.UserQuota, error) {
	var result *models.UserQuota

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Quotas(tx)

		quota, err := repo.GetForUpdate(ctx, userID, quotaType)
		if err != nil {
			return err
		}

		if !quota.CanRenew {
			return common.ErrorRenewNotAllowed
		}
		if quota.RenewAction == nil || *quota.RenewAction != proof.Action {
			return common.ErrorInvalidRenewProof
		}

		result, err = repo.ResetUsage(ctx, quota.ID)
		return err
	})

	if err != nil {
		switch {
		case errors.Is(err, common.ErrorRenewNotAllowed),
			errors.Is(err, common.ErrorInvalidRenewProof),
			errors.Is(err, common.ErrorNotFound):
			return nil, err
		default:
			s.logger.Error(ctx, "renewing quota", "user_id", userID, "quota_type", quotaType, "error", err)
			return nil, common.ErrorInternal
		}
	}

	s.auditRenewal(ctx, userID, quotaType, proof.Action)
	s.logger.Info(ctx, "quota renewed", "user_id", userID, "quota_type", quotaType, "action", proof.Action)
	return result, nil
}

// Get returns one quota of the user.
func (s *QuotaService) Get(ctx context.Context, userID, quotaType string) (*models.UserQuota, error) {
	repo := s.repomanager.Quotas(s.db)

	quota, err := repo.Get(ctx, userID, quotaType)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.logger.Error(ctx, "loading quota", "error", err)
		return nil, common.ErrorInternal
	}
	return quota, nil
}

// List returns all quotas of the user.
func (s *QuotaService) List(ctx context.Context, userID string) ([]*models.UserQuota, error) {
	repo := s.repomanager.Quotas(s.db)

	quotas, err := repo.ListForUser(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "listing quotas", "error", err)
		return nil, common.ErrorInternal
	}
	return quotas, nil
}

// UpdateLimit changes a quota's bound. Admin operation.
func (s *QuotaService) UpdateLimit(ctx context.Context, userID, quotaType string, maxAllowed int) (*models.UserQuota, error) {
	repo := s.repomanager.Quotas(s.db)

	quota, err := repo.UpdateLimit(ctx, userID, quotaType, maxAllowed)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.logger.Error(ctx, "updating quota limit", "error", err)
		return nil, common.ErrorInternal
	}
	return quota, nil
}

// Reset zeroes a quota's usage without proof. Admin operation.
func (s *QuotaService) Reset(ctx context.Context, userID, quotaType string) (*models.UserQuota, error) {
	repo := s.repomanager.Quotas(s.db)

	quota, err := repo.Reset(ctx, userID, quotaType)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.logger.Error(ctx, "resetting quota", "error", err)
		return nil, common.ErrorInternal
	}
	return quota, nil
}

func (s *QuotaService) auditRenewal(ctx context.Context, userID, quotaType, action string) {
	resourceType := "user_quota"
	metadata := `{"quota_type":"` + quotaType + `","renew_action":"` + action + `"}`
	_, err := s.repomanager.Audit(s.db).Log(ctx, &models.AuditLog{
		ID:           uuid.NewString(),
		UserID:       &userID,
		Action:       models.AuditQuotaRenewed,
		ResourceType: &resourceType,
		Metadata:     &metadata,
	})
	if err != nil {
		s.logger.Error(ctx, "writing audit log", "action", models.AuditQuotaRenewed, "error", err)
	}
}
