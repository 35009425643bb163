package attempts

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

func strPtr(s string) *string { return &s }

func TestRecord_Failure(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+login_attempts\s*\(id,\s*email,\s*ip_address,\s*success,\s*failure_reason,.*RETURNING\s+attempted_at`

	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs("a-1", "a@b.c", "1.2.3.4", false, models.FailureInvalidPassword, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"attempted_at"}).AddRow(now))

	a := &models.LoginAttempt{
		ID: "a-1", Email: strPtr("a@b.c"), IPAddress: "1.2.3.4",
		FailureReason: strPtr(models.FailureInvalidPassword),
	}
	got, err := repo.Record(context.Background(), a)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if !got.AttemptedAt.Equal(now) {
		t.Fatalf("attempted_at not populated: %+v", got)
	}
}

func TestCountRecentFailuresByIP(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)SELECT\s+COUNT\(\*\)\s+FROM\s+login_attempts\s+WHERE\s+ip_address\s*=\s*\$1\s+AND\s+success\s*=\s*false\s+AND\s+attempted_at\s*>\s*NOW\(\)\s*-\s*INTERVAL\s+'1 minute'\s*\*\s*\$2`

	mock.ExpectQuery(q).
		WithArgs("1.2.3.4", 15).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))

	got, err := repo.CountRecentFailuresByIP(context.Background(), "1.2.3.4", 15)
	if err != nil {
		t.Fatalf("CountRecentFailuresByIP error: %v", err)
	}
	if got != 5 {
		t.Fatalf("unexpected count: %d", got)
	}
}

func TestCountRecentFailuresByEmail_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)\s+FROM\s+login_attempts\s+WHERE\s+email`).
		WithArgs("a@b.c", 60).
		WillReturnError(errors.New("db down"))

	_, err := repo.CountRecentFailuresByEmail(context.Background(), "a@b.c", 60)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+login_attempts\s+WHERE\s+attempted_at`).
		WithArgs(90).
		WillReturnResult(sqlmock.NewResult(0, 40))

	n, err := repo.DeleteOlderThan(context.Background(), 90)
	if err != nil {
		t.Fatalf("DeleteOlderThan error: %v", err)
	}
	if n != 40 {
		t.Fatalf("unexpected count: %d", n)
	}
}
