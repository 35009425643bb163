package devices

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

// Upsert records a sighting of (user, fingerprint), bumping last_seen_at on
// repeat visits.
func (r *PostgresRepository) Upsert(ctx context.Context, device *models.DeviceFingerprint) (*models.DeviceFingerprint, error) {

	query :=
		`INSERT INTO device_fingerprints (id, user_id, fingerprint)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, fingerprint) DO UPDATE SET last_seen_at = NOW()
		 RETURNING id, first_seen_at, last_seen_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		device.ID, device.UserID, device.Fingerprint).
		Scan(&device.ID, &device.FirstSeenAt, &device.LastSeenAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return device, nil
}

func (r *PostgresRepository) CountGuestsForFingerprint(ctx context.Context, fingerprint string) (int64, error) {
	query :=
		`SELECT COUNT(DISTINCT df.user_id)
		 FROM device_fingerprints df
		 INNER JOIN users u ON df.user_id = u.id
		 WHERE df.fingerprint = $1 AND u.is_guest = true AND u.deleted_at IS NULL
		 `

	var count int64
	err := r.db.QueryRowContext(ctx, query, fingerprint).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]*models.DeviceFingerprint, error) {
	query :=
		`SELECT id, user_id, fingerprint, first_seen_at, last_seen_at
		 FROM device_fingerprints
		 WHERE user_id = $1
		 ORDER BY last_seen_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.DeviceFingerprint
	for rows.Next() {
		d := &models.DeviceFingerprint{}
		if err := rows.Scan(&d.ID, &d.UserID, &d.Fingerprint, &d.FirstSeenAt, &d.LastSeenAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
