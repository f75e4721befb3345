package user

import (
	"context"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/repository"
)

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
