package repomanager

import (
	"context"
	"database/sql"

	"github.com/quizforge/identity/internal/dbx"
	"github.com/quizforge/identity/internal/server/repositories/attempts"
	"github.com/quizforge/identity/internal/server/repositories/audit"
	"github.com/quizforge/identity/internal/server/repositories/devices"
	"github.com/quizforge/identity/internal/server/repositories/quotas"
	"github.com/quizforge/identity/internal/server/repositories/sessions"
	"github.com/quizforge/identity/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so a service can
// run several repositories against one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Attempts(db dbx.DBTX) attempts.Repository
	Devices(db dbx.DBTX) devices.Repository
	Quotas(db dbx.DBTX) quotas.Repository
	Audit(db dbx.DBTX) audit.Repository
}
