// Command maintenance runs the retention sweeps once and exits. It is meant
// to be scheduled (cron or an equivalent) rather than kept running.
package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/quizforge/identity/internal/logging"
	"github.com/quizforge/identity/internal/server/config"
	"github.com/quizforge/identity/internal/server/maintenance"
	"github.com/quizforge/identity/internal/server/repositories/repomanager"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	uploader, err := maintenance.NewS3Uploader(ctx, cfg)
	if err != nil {
		log.Fatalf("s3 init error: %v", err)
	}

	svc := maintenance.NewService(db, rm, cfg, uploader, logger)
	if err := svc.Run(ctx); err != nil {
		log.Fatalf("maintenance run: %v", err)
	}
}
