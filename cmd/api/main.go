package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veslo/accounts/internal/app/migrate"
	httpx "github.com/veslo/accounts/internal/http"
	"github.com/veslo/accounts/internal/repository/postgres"
	"github.com/veslo/accounts/internal/service/audit"
	"github.com/veslo/accounts/internal/service/auth"
	"github.com/veslo/accounts/internal/service/mail"
	"github.com/veslo/accounts/internal/service/user"
	"github.com/veslo/accounts/internal/ws"
	"github.com/veslo/accounts/pkg/config"
	"github.com/veslo/accounts/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("accounts", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	auditHub := ws.NewHub()
	defer auditHub.Close()

	var sender mail.Sender
	if addr := strings.TrimSpace(cfg.SMTPAddr); addr != "" {
		sender = mail.NewSMTPSender(addr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	} else {
		log.Warn("no SMTP endpoint configured, reset mails are log only")
		sender = mail.NewLogSender(log)
	}

	auditSvc := audit.New(repo, auditHub, log)
	userSvc := user.New(repo, repo, auditSvc, log, cfg.PasswordMinLength)
	authSvc := auth.New(repo, repo, userSvc, sender, auditSvc, log, cfg)
	go authSvc.RunTokenSweeper(ctx)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, userSvc, auditSvc, limiter, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("accounts server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("accounts server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
