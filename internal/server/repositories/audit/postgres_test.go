package audit

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/quizforge/identity/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func auditRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "action", "resource_type", "resource_id", "ip_address", "user_agent",
		"old_value", "new_value", "metadata", "created_at",
	})
}

func strPtr(s string) *string { return &s }

func TestLog_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+audit_logs\s*\(id,\s*user_id,\s*action,.*RETURNING\s+created_at`

	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs("l-1", "u-1", models.AuditUserLogin, nil, nil, "1.2.3.4", nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	e := &models.AuditLog{
		ID: "l-1", UserID: strPtr("u-1"), Action: models.AuditUserLogin,
		IPAddress: strPtr("1.2.3.4"),
	}
	got, err := repo.Log(context.Background(), e)
	if err != nil {
		t.Fatalf("Log error: %v", err)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at not populated: %+v", got)
	}
}

func TestListForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)SELECT\s+id,.*FROM\s+audit_logs\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$2`

	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs("u-1", int64(50)).
		WillReturnRows(auditRows().
			AddRow("l-1", "u-1", "user_login", nil, nil, nil, nil, nil, nil, nil, now))

	got, err := repo.ListForUser(context.Background(), "u-1", 50)
	if err != nil {
		t.Fatalf("ListForUser error: %v", err)
	}
	if len(got) != 1 || got[0].Action != "user_login" {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestListOlderThan(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)SELECT\s+id,.*FROM\s+audit_logs\s+WHERE\s+created_at\s*<\s*\$1\s+ORDER\s+BY\s+created_at\s+ASC\s+LIMIT\s+\$2`

	cutoff := time.Now().AddDate(0, 0, -365)
	mock.ExpectQuery(q).
		WithArgs(cutoff, int64(1000)).
		WillReturnRows(auditRows())

	got, err := repo.ListOlderThan(context.Background(), cutoff, 1000)
	if err != nil {
		t.Fatalf("ListOlderThan error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestDeleteOlderThan_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cutoff := time.Now()
	mock.ExpectExec(`DELETE\s+FROM\s+audit_logs\s+WHERE\s+created_at\s*<\s*\$1`).
		WithArgs(cutoff).
		WillReturnError(errors.New("db down"))

	_, err := repo.DeleteOlderThan(context.Background(), cutoff)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
