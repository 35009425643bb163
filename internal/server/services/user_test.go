package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/server/models"
	"github.com/quizforge/identity/internal/server/password"
)

func newTestUserService(db *sql.DB, rm *fakeRepoManager) *UserService {
	return NewUserService(db, rm, password.NewHasher(password.MinCost), nopLogger{})
}

func TestGetProfile(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	rm.users.getByIDOut = &models.User{ID: "u1", Status: models.StatusFree}
	s := newTestUserService(db, rm)

	u, err := s.GetProfile(context.Background(), "u1")
	if err != nil || u.ID != "u1" {
		t.Fatalf("GetProfile: %+v %v", u, err)
	}

	rm.users.getByIDOut = nil
	rm.users.getByIDErr = common.ErrorNotFound
	if _, err := s.GetProfile(context.Background(), "ghost"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestUpdateProfile_SanitizesDisplayName(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	rm.users.updateProfileOut = &models.User{ID: "u1"}
	s := newTestUserService(db, rm)

	_, err := s.UpdateProfile(context.Background(), "u1",
		UpdateProfileRequest{DisplayName: strPtr("<script>x</script>")}, ClientInfo{})
	if !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("tag-only name must fail validation, got %v", err)
	}

	u, err := s.UpdateProfile(context.Background(), "u1",
		UpdateProfileRequest{DisplayName: strPtr("  Bob  ")}, ClientInfo{})
	if err != nil || u == nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if len(rm.audit.logged) != 1 || rm.audit.logged[0].Action != models.AuditProfileUpdated {
		t.Fatalf("audit: %+v", rm.audit.logged)
	}
}

func TestChangePassword_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := newFakeRepoManager()
	s := newTestUserService(db, rm)

	hash, err := s.hasher.Hash(context.Background(), "OldPass1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	rm.users.getByIDOut = &models.User{ID: "u1", PasswordHash: &hash}

	err = s.ChangePassword(context.Background(), "u1",
		ChangePasswordRequest{CurrentPassword: "OldPass1", NewPassword: "NewPass1"}, ClientInfo{})
	if err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}

	if rm.users.updatedPasswordFor != "u1" {
		t.Fatalf("password not updated")
	}
	if rm.sessions.revokeAllReason != models.RevokeReasonPasswordChanged {
		t.Fatalf("sessions not revoked: %q", rm.sessions.revokeAllReason)
	}
	if len(rm.audit.logged) != 1 || rm.audit.logged[0].Action != models.AuditPasswordChanged {
		t.Fatalf("audit: %+v", rm.audit.logged)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestChangePassword_Rejections(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	// Guests have no password.
	rmGuest := newFakeRepoManager()
	rmGuest.users.getByIDOut = &models.User{ID: "g1", IsGuest: true}
	sGuest := newTestUserService(db, rmGuest)
	err := sGuest.ChangePassword(context.Background(), "g1",
		ChangePasswordRequest{CurrentPassword: "x", NewPassword: "NewPass1"}, ClientInfo{})
	if !errors.Is(err, common.ErrorPermissionDenied) {
		t.Fatalf("guest: want ErrorPermissionDenied, got %v", err)
	}

	// Wrong current password.
	rmWrong := newFakeRepoManager()
	sWrong := newTestUserService(db, rmWrong)
	hash, _ := sWrong.hasher.Hash(context.Background(), "OldPass1")
	rmWrong.users.getByIDOut = &models.User{ID: "u1", PasswordHash: &hash}
	err = sWrong.ChangePassword(context.Background(), "u1",
		ChangePasswordRequest{CurrentPassword: "WrongPass1", NewPassword: "NewPass1"}, ClientInfo{})
	if !errors.Is(err, common.ErrorInvalidCredentials) {
		t.Fatalf("wrong current: want ErrorInvalidCredentials, got %v", err)
	}

	// Weak new password, checked only after the current one verifies.
	err = sWrong.ChangePassword(context.Background(), "u1",
		ChangePasswordRequest{CurrentPassword: "OldPass1", NewPassword: "weak"}, ClientInfo{})
	if !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("weak new: want ErrorValidation, got %v", err)
	}
	if rmWrong.users.updatedPasswordFor != "" {
		t.Fatalf("password must not change on rejection")
	}
}

func TestDeleteAccount(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := newFakeRepoManager()
	s := newTestUserService(db, rm)

	if err := s.DeleteAccount(context.Background(), "u1", ClientInfo{}); err != nil {
		t.Fatalf("DeleteAccount error: %v", err)
	}
	if len(rm.users.softDeleted) != 1 || rm.users.softDeleted[0] != "u1" {
		t.Fatalf("soft delete: %+v", rm.users.softDeleted)
	}
	if rm.sessions.revokeAllReason != models.RevokeReasonAccountDeleted {
		t.Fatalf("sessions not revoked: %q", rm.sessions.revokeAllReason)
	}
}

func TestRevokeSession_Ownership(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	rm.sessions.getByIDOut = &models.Session{ID: "sess-1", UserID: "someone-else"}
	s := newTestUserService(db, rm)

	// A foreign session reads as not-found, never as "exists but forbidden".
	err := s.RevokeSession(context.Background(), "u1", "sess-1", ClientInfo{})
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
	if len(rm.sessions.revokedIDs) != 0 {
		t.Fatalf("foreign session must not be revoked")
	}
}

func TestRevokeSession_Success(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	rm.sessions.getByIDOut = &models.Session{ID: "sess-1", UserID: "u1"}
	s := newTestUserService(db, rm)

	if err := s.RevokeSession(context.Background(), "u1", "sess-1", ClientInfo{}); err != nil {
		t.Fatalf("RevokeSession error: %v", err)
	}
	if len(rm.sessions.revokedIDs) != 1 || rm.sessions.revokeReasons[0] != models.RevokeReasonUserRevoked {
		t.Fatalf("revoke: ids=%v reasons=%v", rm.sessions.revokedIDs, rm.sessions.revokeReasons)
	}
}

func TestUpdateStatus(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	s := newTestUserService(db, rm)

	// Unknown status is refused before any write.
	if _, err := s.UpdateStatus(context.Background(), "u1", "vip", ClientInfo{}); !errors.Is(err, common.ErrorValidation) {
		t.Fatalf("unknown status: want ErrorValidation, got %v", err)
	}

	// Suspension revokes all sessions in the same transaction.
	mock.ExpectBegin()
	mock.ExpectCommit()
	rm.users.getByIDOut = &models.User{ID: "u1", Status: models.StatusFree}
	rm.users.updateStatusOut = &models.User{ID: "u1", Status: models.StatusSuspended}

	u, err := s.UpdateStatus(context.Background(), "u1", models.StatusSuspended, ClientInfo{})
	if err != nil || u.Status != models.StatusSuspended {
		t.Fatalf("UpdateStatus: %+v %v", u, err)
	}
	if rm.sessions.revokeAllReason != models.RevokeReasonUserRevoked {
		t.Fatalf("sessions not revoked on suspension: %q", rm.sessions.revokeAllReason)
	}

	// The audit row carries the transition, not just the action.
	if len(rm.audit.logged) != 1 {
		t.Fatalf("audit: %+v", rm.audit.logged)
	}
	entry := rm.audit.logged[0]
	if entry.Action != models.AuditUserStatusUpdated {
		t.Fatalf("audit action: %q", entry.Action)
	}
	if entry.OldValue == nil || *entry.OldValue != models.StatusFree ||
		entry.NewValue == nil || *entry.NewValue != models.StatusSuspended {
		t.Fatalf("audit old/new values: %+v", entry)
	}

	// A premium upgrade leaves sessions alone.
	mock.ExpectBegin()
	mock.ExpectCommit()
	rm2 := newFakeRepoManager()
	rm2.users.getByIDOut = &models.User{ID: "u1", Status: models.StatusFree}
	rm2.users.updateStatusOut = &models.User{ID: "u1", Status: models.StatusPremium}
	s2 := newTestUserService(db, rm2)

	if _, err := s2.UpdateStatus(context.Background(), "u1", models.StatusPremium, ClientInfo{}); err != nil {
		t.Fatalf("UpdateStatus premium: %v", err)
	}
	if rm2.sessions.revokeAllReason != "" {
		t.Fatalf("premium upgrade must not revoke sessions")
	}
}

func TestListUsers_ClampsLimit(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	rm.users.listOut = []*models.User{{ID: "u1"}}
	rm.users.countOut = 42
	s := newTestUserService(db, rm)

	list, total, err := s.ListUsers(context.Background(), ListUsersRequest{Limit: 5000})
	if err != nil || len(list) != 1 || total != 42 {
		t.Fatalf("ListUsers: list=%v total=%d err=%v", list, total, err)
	}
}
