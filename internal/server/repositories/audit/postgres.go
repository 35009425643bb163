package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/quizforge/identity/internal/dbx"
	"github.com/quizforge/identity/internal/server/models"
)

const auditColumns = `id, user_id, action, resource_type, resource_id, ip_address, user_agent,
	 old_value, new_value, metadata, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Log(ctx context.Context, entry *models.AuditLog) (*models.AuditLog, error) {

	query :=
		`INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, ip_address, user_agent, old_value, new_value, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.IPAddress, entry.UserAgent, entry.OldValue, entry.NewValue, entry.Metadata).
		Scan(&entry.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entry, nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string, limit int64) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs
	 WHERE user_id = $1
	 ORDER BY created_at DESC
	 LIMIT $2
	 `

	return r.queryList(ctx, query, userID, limit)
}

// ListOlderThan pages through entries due for archival, oldest first, so the
// retention sweep can copy them out before deleting.
func (r *PostgresRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int64) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs
	 WHERE created_at < $1
	 ORDER BY created_at ASC
	 LIMIT $2
	 `

	return r.queryList(ctx, query, cutoff, limit)
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query :=
		`DELETE FROM audit_logs
		 WHERE created_at < $1
		 `

	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}

func (r *PostgresRepository) queryList(ctx context.Context, query string, args ...any) ([]*models.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditLog
	for rows.Next() {
		e := &models.AuditLog{}
		err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.IPAddress, &e.UserAgent, &e.OldValue, &e.NewValue, &e.Metadata, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
