package quotas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/dbx"
	"github.com/quizforge/identity/internal/server/models"
)

const quotaColumns = `id, user_id, quota_type, max_allowed, current_usage, period_type,
	 period_start, period_end, can_renew, renew_action, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanQuota(row *sql.Row) (*models.UserQuota, error) {
	q := &models.UserQuota{}
	err := row.Scan(&q.ID, &q.UserID, &q.QuotaType, &q.MaxAllowed, &q.CurrentUsage,
		&q.PeriodType, &q.PeriodStart, &q.PeriodEnd, &q.CanRenew, &q.RenewAction,
		&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return q, nil
}

func (r *PostgresRepository) Create(ctx context.Context, quota *models.UserQuota) (*models.UserQuota, error) {

	query :=
		`INSERT INTO user_quotas (id, user_id, quota_type, max_allowed, current_usage, can_renew, renew_action, period_type, period_start, period_end)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		quota.ID, quota.UserID, quota.QuotaType, quota.MaxAllowed,
		quota.CanRenew, quota.RenewAction, quota.PeriodType, quota.PeriodStart, quota.PeriodEnd).
		Scan(&quota.CreatedAt, &quota.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return quota, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, quotaType string) (*models.UserQuota, error) {
	query := `SELECT ` + quotaColumns + ` FROM user_quotas
	 WHERE user_id = $1 AND quota_type = $2
	 `

	return scanQuota(r.db.QueryRowContext(ctx, query, userID, quotaType))
}

// GetForUpdate locks the quota row for the remainder of the enclosing
// transaction. Concurrent consumes of the same quota queue here.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, userID, quotaType string) (*models.UserQuota, error) {
	query := `SELECT ` + quotaColumns + ` FROM user_quotas
	 WHERE user_id = $1 AND quota_type = $2
	 FOR UPDATE
	 `

	return scanQuota(r.db.QueryRowContext(ctx, query, userID, quotaType))
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]*models.UserQuota, error) {
	query := `SELECT ` + quotaColumns + ` FROM user_quotas
	 WHERE user_id = $1
	 ORDER BY quota_type
	 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.UserQuota
	for rows.Next() {
		q := &models.UserQuota{}
		err := rows.Scan(&q.ID, &q.UserID, &q.QuotaType, &q.MaxAllowed, &q.CurrentUsage,
			&q.PeriodType, &q.PeriodStart, &q.PeriodEnd, &q.CanRenew, &q.RenewAction,
			&q.CreatedAt, &q.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) IncrementUsage(ctx context.Context, id string) (*models.UserQuota, error) {
	query :=
		`UPDATE user_quotas SET current_usage = current_usage + 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING ` + quotaColumns

	return scanQuota(r.db.QueryRowContext(ctx, query, id))
}

// ResetPeriodAndConsume rolls an elapsed period forward and charges the
// first unit of the fresh period in one statement.
func (r *PostgresRepository) ResetPeriodAndConsume(ctx context.Context, id string) (*models.UserQuota, error) {
	query :=
		`UPDATE user_quotas
		 SET current_usage = 1,
		     period_start = NOW(),
		     period_end = CASE
		         WHEN period_type = 'daily' THEN NOW() + INTERVAL '1 day'
		         WHEN period_type = 'weekly' THEN NOW() + INTERVAL '7 days'
		         WHEN period_type = 'monthly' THEN NOW() + INTERVAL '1 month'
		         ELSE period_end
		     END,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING ` + quotaColumns

	return scanQuota(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) ResetUsage(ctx context.Context, id string) (*models.UserQuota, error) {
	query :=
		`UPDATE user_quotas SET current_usage = 0, updated_at = NOW()
		 WHERE id = $1
		 RETURNING ` + quotaColumns

	return scanQuota(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateLimit(ctx context.Context, userID, quotaType string, maxAllowed int) (*models.UserQuota, error) {
	query :=
		`UPDATE user_quotas SET max_allowed = $1, updated_at = NOW()
		 WHERE user_id = $2 AND quota_type = $3
		 RETURNING ` + quotaColumns

	return scanQuota(r.db.QueryRowContext(ctx, query, maxAllowed, userID, quotaType))
}

func (r *PostgresRepository) Reset(ctx context.Context, userID, quotaType string) (*models.UserQuota, error) {
	query :=
		`UPDATE user_quotas SET current_usage = 0, updated_at = NOW()
		 WHERE user_id = $1 AND quota_type = $2
		 RETURNING ` + quotaColumns

	return scanQuota(r.db.QueryRowContext(ctx, query, userID, quotaType))
}

func (r *PostgresRepository) ConsumptionExists(ctx context.Context, idempotencyKey string) (bool, error) {
	query :=
		`SELECT EXISTS(SELECT 1 FROM quota_consumptions WHERE idempotency_key = $1)
		 `

	var exists bool
	err := r.db.QueryRowContext(ctx, query, idempotencyKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

func (r *PostgresRepository) InsertConsumption(ctx context.Context, c *models.QuotaConsumption) error {
	query :=
		`INSERT INTO quota_consumptions (id, idempotency_key, user_id, quota_type)
		 VALUES ($1, $2, $3, $4)
		 `

	_, err := r.db.ExecContext(ctx, query, c.ID, c.IdempotencyKey, c.UserID, c.QuotaType)
	if err != nil {
		// Two concurrent consumes with one key can both pass the existence
		// check before either commits; the unique index decides the loser.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return common.ErrorIdempotencyConflict
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) DeleteConsumptionsOlderThan(ctx context.Context, olderThanDays int) (int64, error) {
	query :=
		`DELETE FROM quota_consumptions
		 WHERE consumed_at < NOW() - INTERVAL '1 day' * $1
		 `

	res, err := r.db.ExecContext(ctx, query, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}
