package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/dbx"
	"github.com/quizforge/identity/internal/server/models"
)

const userColumns = `id, email, password_hash, status, is_guest, display_name, avatar_url,
	 analytics_consent, marketing_consent, locale, created_at, updated_at, last_login_at, deleted_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Status, &u.IsGuest,
		&u.DisplayName, &u.AvatarURL, &u.AnalyticsConsent, &u.MarketingConsent,
		&u.Locale, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt, &u.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// Create inserts a user row. The caller assigns the id; guests arrive with
// nil email and password hash.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (id, email, password_hash, status, is_guest, display_name, locale, analytics_consent, marketing_consent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Status, user.IsGuest,
		user.DisplayName, user.Locale, user.AnalyticsConsent, user.MarketingConsent).
		Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
	 WHERE id = $1 AND deleted_at IS NULL
	 `

	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
	 WHERE email = $1 AND deleted_at IS NULL
	 `

	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query :=
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1 AND deleted_at IS NULL)
		 `

	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

// UpdateProfile applies only the non-nil whitelisted fields. The statement
// is fixed; a nil parameter leaves its column unchanged via COALESCE.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	query :=
		`UPDATE users
		 SET display_name = COALESCE($2, display_name),
		     avatar_url = COALESCE($3, avatar_url),
		     locale = COALESCE($4, locale),
		     analytics_consent = COALESCE($5, analytics_consent),
		     marketing_consent = COALESCE($6, marketing_consent),
		     updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING ` + userColumns

	return scanUser(r.db.QueryRowContext(ctx, query, id,
		upd.DisplayName, upd.AvatarURL, upd.Locale, upd.AnalyticsConsent, upd.MarketingConsent))
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	query :=
		`UPDATE users SET password_hash = $1, updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, passwordHash, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status string) (*models.User, error) {
	query :=
		`UPDATE users SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL
		 RETURNING ` + userColumns

	return scanUser(r.db.QueryRowContext(ctx, query, status, id))
}

func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string) error {
	query :=
		`UPDATE users SET last_login_at = NOW(), updated_at = NOW()
		 WHERE id = $1
		 `

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	query :=
		`UPDATE users SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

// The list queries are fixed statements; a nil filter value disables its
// predicate. No SQL is assembled at run time.
const listWhere = `deleted_at IS NULL
	 AND ($1::text IS NULL OR status = $1)
	 AND ($2::boolean IS NULL OR is_guest = $2)
	 AND ($3::text IS NULL OR email ILIKE '%' || $3 || '%' OR display_name ILIKE '%' || $3 || '%')`

func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
	 WHERE ` + listWhere + `
	 ORDER BY created_at DESC LIMIT $4 OFFSET $5`

	rows, err := r.db.QueryContext(ctx, query, f.Status, f.IsGuest, f.Search, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u := &models.User{}
		err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Status, &u.IsGuest,
			&u.DisplayName, &u.AvatarURL, &u.AnalyticsConsent, &u.MarketingConsent,
			&u.Locale, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt, &u.DeletedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Count(ctx context.Context, f ListFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM users WHERE ` + listWhere

	var count int64
	err := r.db.QueryRowContext(ctx, query, f.Status, f.IsGuest, f.Search).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}
