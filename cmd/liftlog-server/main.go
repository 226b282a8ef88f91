package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"liftlog/internal/config"
	"liftlog/internal/handler"
	"liftlog/internal/middleware"
	"liftlog/internal/observability"
	"liftlog/internal/repository/postgres"
	"liftlog/internal/security"
	"liftlog/internal/service"
)

const (
	connectTimeout  = 10 * time.Second
	migrateTimeout  = time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("liftlog server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting liftlog server",
		slog.String("environment", cfg.Environment),
		slog.Bool("secure_cookies", cfg.SecureCookies))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connCtx, connCancel := context.WithTimeout(ctx, connectTimeout)
	db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
	connCancel()
	if err != nil {
		return err
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(ctx, migrateTimeout)
	err = postgres.Migrate(migrateCtx, db)
	migrateCancel()
	if err != nil {
		return err
	}

	userRepo, err := postgres.NewUserRepository(db, postgres.NewTxManager(db))
	if err != nil {
		return fmt.Errorf("failed to prepare user repository: %w", err)
	}
	defer userRepo.Close()

	sessionRepo, err := postgres.NewSessionRepository(db)
	if err != nil {
		return fmt.Errorf("failed to prepare session repository: %w", err)
	}
	defer sessionRepo.Close()

	authService := service.NewAuthService(userRepo, sessionRepo)

	views, err := handler.NewViews()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	sweeper := service.NewSessionSweeper(authService, cfg.SessionCleanupInterval)
	go sweeper.Run(ctx)

	loginLimiter := middleware.NewRateLimiter(cfg.LoginRatePerSecond, cfg.LoginRateBurst)
	defer loginLimiter.Stop()

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handler.NewRouter(handler.RouterConfig{
			AuthService:    authService,
			Binder:         middleware.NewCookieBinder(cfg.SecureCookies),
			Views:          views,
			CSRF:           security.NewCSRFSigner(cfg.SessionSecret),
			LoginLimiter:   loginLimiter,
			DB:             db,
			RequestLogging: true,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("liftlog server listening", slog.String("port", cfg.Port))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}
