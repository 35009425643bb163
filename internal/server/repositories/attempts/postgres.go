package attempts

import (
	"context"
	"fmt"

	"github.com/quizforge/identity/internal/dbx"
	"github.com/quizforge/identity/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Record(ctx context.Context, attempt *models.LoginAttempt) (*models.LoginAttempt, error) {

	query :=
		`INSERT INTO login_attempts (id, email, ip_address, success, failure_reason, user_agent, device_fingerprint)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING attempted_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		attempt.ID, attempt.Email, attempt.IPAddress, attempt.Success,
		attempt.FailureReason, attempt.UserAgent, attempt.DeviceFingerprint).
		Scan(&attempt.AttemptedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return attempt, nil
}

func (r *PostgresRepository) CountRecentFailuresByIP(ctx context.Context, ipAddress string, windowMinutes int) (int64, error) {
	query :=
		`SELECT COUNT(*) FROM login_attempts
		 WHERE ip_address = $1 AND success = false
		   AND attempted_at > NOW() - INTERVAL '1 minute' * $2
		 `

	var count int64
	err := r.db.QueryRowContext(ctx, query, ipAddress, windowMinutes).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func (r *PostgresRepository) CountRecentFailuresByEmail(ctx context.Context, email string, windowMinutes int) (int64, error) {
	query :=
		`SELECT COUNT(*) FROM login_attempts
		 WHERE email = $1 AND success = false
		   AND attempted_at > NOW() - INTERVAL '1 minute' * $2
		 `

	var count int64
	err := r.db.QueryRowContext(ctx, query, email, windowMinutes).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, olderThanDays int) (int64, error) {
	query :=
		`DELETE FROM login_attempts
		 WHERE attempted_at < NOW() - INTERVAL '1 day' * $1
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
