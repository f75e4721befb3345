package auth

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/repository"
	"github.com/veslo/accounts/internal/service/audit"
	"github.com/veslo/accounts/internal/service/user"
	"github.com/veslo/accounts/pkg/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.APIConfig {
	return config.APIConfig{
		JWTSecret:         "test-secret",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   24 * time.Hour,
		PasswordMinLength: 8,
		ResetTokenTTL:     30 * time.Minute,
		ResetBaseURL:      "https://accounts.test/reset",
	}
}

func newService(users *userRepoMock, resets *resetRepoMock, sender *senderMock) Service {
	if users == nil {
		users = &userRepoMock{}
	}
	if resets == nil {
		resets = &resetRepoMock{}
	}
	if sender == nil {
		sender = &senderMock{}
	}
	logger := newLogger()
	auditSvc := audit.New(nil, nil, logger)
	accounts := user.New(users, &profileRepoMock{}, auditSvc, logger, 8)
	return New(users, resets, accounts, sender, auditSvc, logger, testConfig())
}

type userRepoMock struct {
	createFunc            func(ctx context.Context, user *domain.User, profile *domain.Profile) error
	getByIDFunc           func(ctx context.Context, id string) (*domain.User, error)
	getByEmailFunc        func(ctx context.Context, email string) (*domain.User, error)
	getByUsernameFunc     func(ctx context.Context, username string) (*domain.User, error)
	emailTakenFunc        func(ctx context.Context, email string) (bool, error)
	updateFunc            func(ctx context.Context, user *domain.User) error
	updateWithProfileFunc func(ctx context.Context, user *domain.User, profile *domain.Profile) error
	updatePasswordFunc    func(ctx context.Context, id string, hash []byte) error
	updateRoleFunc        func(ctx context.Context, id string, role domain.Role, staff bool) error
	setActiveFunc         func(ctx context.Context, id string, active bool) error
	searchFunc            func(ctx context.Context, query string, limit, offset int) ([]domain.User, error)
}

func (m *userRepoMock) CreateUser(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, user, profile)
	}
	return nil
}

func (m *userRepoMock) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoMock) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.getByEmailFunc != nil {
		return m.getByEmailFunc(ctx, email)
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoMock) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.getByUsernameFunc != nil {
		return m.getByUsernameFunc(ctx, username)
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoMock) EmailTaken(ctx context.Context, email string) (bool, error) {
	if m.emailTakenFunc != nil {
		return m.emailTakenFunc(ctx, email)
	}
	return false, nil
}

func (m *userRepoMock) UpdateUser(ctx context.Context, user *domain.User) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, user)
	}
	return nil
}

func (m *userRepoMock) UpdateUserWithProfile(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	if m.updateWithProfileFunc != nil {
		return m.updateWithProfileFunc(ctx, user, profile)
	}
	return nil
}

func (m *userRepoMock) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	if m.updatePasswordFunc != nil {
		return m.updatePasswordFunc(ctx, id, hash)
	}
	return nil
}

func (m *userRepoMock) UpdateRole(ctx context.Context, id string, role domain.Role, staff bool) error {
	if m.updateRoleFunc != nil {
		return m.updateRoleFunc(ctx, id, role, staff)
	}
	return nil
}

func (m *userRepoMock) SetActive(ctx context.Context, id string, active bool) error {
	if m.setActiveFunc != nil {
		return m.setActiveFunc(ctx, id, active)
	}
	return nil
}

func (m *userRepoMock) SearchUsers(ctx context.Context, query string, limit, offset int) ([]domain.User, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, query, limit, offset)
	}
	return nil, nil
}

type profileRepoMock struct {
	getFunc func(ctx context.Context, userID string) (*domain.Profile, error)
}

func (m *profileRepoMock) GetProfileByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, userID)
	}
	return nil, repository.ErrNotFound
}

type resetRepoMock struct {
	createFunc        func(ctx context.Context, token *domain.PasswordResetToken) error
	getFunc           func(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error)
	consumeFunc       func(ctx context.Context, tokenHash string) (string, error)
	expireFunc        func(ctx context.Context, userID string) error
	deleteExpiredFunc func(ctx context.Context, before time.Time) (int64, error)
}

func (m *resetRepoMock) CreateResetToken(ctx context.Context, token *domain.PasswordResetToken) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, token)
	}
	return nil
}

func (m *resetRepoMock) GetResetToken(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, tokenHash)
	}
	return nil, repository.ErrNotFound
}

func (m *resetRepoMock) ConsumeResetToken(ctx context.Context, tokenHash string) (string, error) {
	if m.consumeFunc != nil {
		return m.consumeFunc(ctx, tokenHash)
	}
	return "", repository.ErrInvalidArgument
}

func (m *resetRepoMock) ExpirePendingTokens(ctx context.Context, userID string) error {
	if m.expireFunc != nil {
		return m.expireFunc(ctx, userID)
	}
	return nil
}

func (m *resetRepoMock) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	if m.deleteExpiredFunc != nil {
		return m.deleteExpiredFunc(ctx, before)
	}
	return 0, nil
}

type senderMock struct {
	sendFunc func(ctx context.Context, to, link string) error
}

func (m *senderMock) SendPasswordReset(ctx context.Context, to, link string) error {
	if m.sendFunc != nil {
		return m.sendFunc(ctx, to, link)
	}
	return nil
}
