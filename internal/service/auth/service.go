package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"log/slog"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/repository"
	"github.com/veslo/accounts/internal/service/audit"
	mailer "github.com/veslo/accounts/internal/service/mail"
	"github.com/veslo/accounts/internal/service/user"
	"github.com/veslo/accounts/pkg/config"
	"github.com/veslo/accounts/pkg/crypto"
	jwtpkg "github.com/veslo/accounts/pkg/jwt"
)

var (
	ErrEmailRequired      = errors.New("auth: email required")
	ErrEmailInvalid       = errors.New("auth: email address invalid")
	ErrEmailRegistered    = errors.New("auth: a user with this email is already registered")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountInactive    = errors.New("auth: account is inactive")
	ErrWrongPassword      = errors.New("auth: current password is incorrect")
)

// Service handles authentication workflows.
type Service struct {
	users    repository.UserRepository
	resets   repository.ResetTokenRepository
	accounts user.Service
	mailer   mailer.Sender
	audit    audit.Service
	logger   *slog.Logger
	cfg      config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, resets repository.ResetTokenRepository, accounts user.Service, sender mailer.Sender, auditSvc audit.Service, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, resets: resets, accounts: accounts, mailer: sender, audit: auditSvc, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// RegisterInput carries self-signup fields. Email is mandatory here; phone
// or username only accounts are created through the admin path.
type RegisterInput struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
	Password  string
}

// Register signs up a new account and issues tokens.
func (s Service) Register(ctx context.Context, in RegisterInput) (*domain.User, TokenPair, error) {
	email := user.NormalizeEmail(in.Email)
	if email == "" {
		return nil, TokenPair{}, ErrEmailRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, TokenPair{}, ErrEmailInvalid
	}
	taken, err := s.users.EmailTaken(ctx, email)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if taken {
		return nil, TokenPair{}, fmt.Errorf("%w: %w", ErrEmailRegistered, repository.ErrConflict)
	}
	account, err := s.accounts.Create(ctx, user.CreateInput{
		Email:     email,
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Password:  in.Password,
		Role:      domain.RoleUser,
	})
	if err != nil {
		return nil, TokenPair{}, err
	}
	tokens, err := s.issueTokens(account)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", account.ID)
	return account, tokens, nil
}

// Login authenticates a user by email and returns tokens.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	account, err := s.users.GetUserByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if !account.IsActive {
		return nil, TokenPair{}, ErrAccountInactive
	}
	if err := crypto.ComparePassword(account.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(account)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.audit.Record(ctx, domain.AuditEvent{UserID: account.ID, ActorID: account.ID, Action: domain.AuditUserLogin})
	s.logger.Info("user logged in", "user_id", account.ID)
	return account, tokens, nil
}

// Authorize validates a bearer token and returns the associated user and claims.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, errors.New("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	account, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !account.IsActive {
		return nil, nil, ErrAccountInactive
	}
	return account, claims, nil
}

// ChangePassword verifies the old password and stores a new hash.
func (s Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	account, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := crypto.ComparePassword(account.PasswordHash, oldPassword); err != nil {
		return ErrWrongPassword
	}
	if err := user.ValidatePassword(newPassword, s.cfg.PasswordMinLength); err != nil {
		return err
	}
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	s.audit.Record(ctx, domain.AuditEvent{UserID: userID, ActorID: userID, Action: domain.AuditPasswordChanged})
	s.logger.Info("password changed", "user_id", userID)
	return nil
}

func (s Service) issueTokens(account *domain.User) (TokenPair, error) {
	role := string(account.Role)
	access, err := jwtpkg.GenerateToken(account.ID, role, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(account.ID, role, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}
