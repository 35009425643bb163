// Package server initializes and runs the identity server. It opens the
// database, runs migrations, wires the services to the HTTP transport, and
// handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/quizforge/identity/internal/logging"
	"github.com/quizforge/identity/internal/server/auth"
	"github.com/quizforge/identity/internal/server/captcha"
	"github.com/quizforge/identity/internal/server/config"
	"github.com/quizforge/identity/internal/server/httpapi"
	"github.com/quizforge/identity/internal/server/password"
	"github.com/quizforge/identity/internal/server/repositories/repomanager"
	"github.com/quizforge/identity/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	redis      *redis.Client
	httpServer *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	tokens := auth.NewTokenService(
		[]byte(cfg.AccessTokenSecret), []byte(cfg.RefreshTokenSecret),
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	hasher := password.NewHasher(cfg.BcryptCost)
	verifier := captcha.NewHCaptchaVerifier(cfg.HCaptchaSecret, cfg.HCaptchaEnabled)

	security := services.NewSecurityService(db, rm, verifier, cfg, logger)
	authService := services.NewAuthService(db, rm, tokens, hasher, security, cfg, logger)
	userService := services.NewUserService(db, rm, hasher, logger)
	quotaService := services.NewQuotaService(db, rm, logger)

	var redisClient *redis.Client
	var limiter httpapi.Limiter
	if cfg.RedisAddr != "" && cfg.RequestsPerMinute > 0 {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = httpapi.NewRedisLimiter(redisClient, "rl")
	}

	api := httpapi.NewServer(authService, userService, quotaService,
		limiter, cfg.RequestsPerMinute, logger)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP until the context is cancelled or a termination signal
// arrives, then drains in-flight requests.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "identity server listening", "addr", app.config.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "http shutdown", "error", err)
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "closing redis", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}

	return nil
}
