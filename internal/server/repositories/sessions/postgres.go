package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/dbx"
	"github.com/quizforge/identity/internal/server/models"
)

const sessionColumns = `id, user_id, access_token_hash, refresh_token_hash, issued_at, expires_at,
	 last_used_at, ip_address, user_agent, device_fingerprint, revoked_at, revoke_reason`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanSession(row *sql.Row) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(&s.ID, &s.UserID, &s.AccessTokenHash, &s.RefreshTokenHash,
		&s.IssuedAt, &s.ExpiresAt, &s.LastUsedAt,
		&s.IPAddress, &s.UserAgent, &s.DeviceFingerprint,
		&s.RevokedAt, &s.RevokeReason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {

	query :=
		`INSERT INTO jwt_sessions (id, user_id, access_token_hash, refresh_token_hash, expires_at, ip_address, user_agent, device_fingerprint)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING issued_at, last_used_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		session.ID, session.UserID, session.AccessTokenHash, session.RefreshTokenHash,
		session.ExpiresAt, session.IPAddress, session.UserAgent, session.DeviceFingerprint).
		Scan(&session.IssuedAt, &session.LastUsedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return session, nil
}

func (r *PostgresRepository) GetActiveByAccessHash(ctx context.Context, accessTokenHash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM jwt_sessions
	 WHERE access_token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
	 `

	return scanSession(r.db.QueryRowContext(ctx, query, accessTokenHash))
}

// GetActiveByRefreshHashForUpdate locks the matching row so the caller can
// revoke it in the same transaction, making the refresh token single use.
func (r *PostgresRepository) GetActiveByRefreshHashForUpdate(ctx context.Context, refreshTokenHash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM jwt_sessions
	 WHERE refresh_token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
	 FOR UPDATE
	 `

	return scanSession(r.db.QueryRowContext(ctx, query, refreshTokenHash))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM jwt_sessions
	 WHERE id = $1
	 `

	return scanSession(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateLastUsed(ctx context.Context, id string) error {
	query :=
		`UPDATE jwt_sessions SET last_used_at = NOW()
		 WHERE id = $1
		 `

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// Revoke marks a session revoked. A session already revoked is left as is:
// the first reason wins.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, reason string) error {
	query :=
		`UPDATE jwt_sessions SET revoked_at = NOW(), revoke_reason = $1
		 WHERE id = $2 AND revoked_at IS NULL
		 `

	_, err := r.db.ExecContext(ctx, query, reason, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string, reason string) (int64, error) {
	query :=
		`UPDATE jwt_sessions SET revoked_at = NOW(), revoke_reason = $1
		 WHERE user_id = $2 AND revoked_at IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, reason, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}

func (r *PostgresRepository) ListActiveForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM jwt_sessions
	 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > NOW()
	 ORDER BY last_used_at DESC
	 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Session
	for rows.Next() {
		s := &models.Session{}
		err := rows.Scan(&s.ID, &s.UserID, &s.AccessTokenHash, &s.RefreshTokenHash,
			&s.IssuedAt, &s.ExpiresAt, &s.LastUsedAt,
			&s.IPAddress, &s.UserAgent, &s.DeviceFingerprint,
			&s.RevokedAt, &s.RevokeReason)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) CountActiveForUser(ctx context.Context, userID string) (int64, error) {
	query :=
		`SELECT COUNT(*) FROM jwt_sessions
		 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > NOW()
		 `

	var count int64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

// IsKnownOrigin reports whether the user has ever held a session from this
// IP or device. A false result signals a login anomaly.
func (r *PostgresRepository) IsKnownOrigin(ctx context.Context, userID string, ipAddress, deviceFingerprint *string) (bool, error) {
	query :=
		`SELECT EXISTS(
		    SELECT 1 FROM jwt_sessions
		    WHERE user_id = $1
		      AND ((ip_address = $2 AND $2 IS NOT NULL) OR (device_fingerprint = $3 AND $3 IS NOT NULL))
		 )
		 `

	var known bool
	err := r.db.QueryRowContext(ctx, query, userID, ipAddress, deviceFingerprint).Scan(&known)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return known, nil
}

func (r *PostgresRepository) DeleteExpiredOlderThan(ctx context.Context, olderThanDays int) (int64, error) {
	query :=
		`DELETE FROM jwt_sessions
		 WHERE expires_at < NOW() - INTERVAL '1 day' * $1
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
