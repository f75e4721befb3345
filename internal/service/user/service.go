package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/repository"
	"github.com/veslo/accounts/internal/service/audit"
	"github.com/veslo/accounts/pkg/crypto"
)

var (
	ErrIdentifierRequired = errors.New("user: email, phone number or username required")
	ErrUsernameRequired   = errors.New("user: username cannot be empty")
	ErrInvalidRole        = errors.New("user: unknown role")
)

// Service handles account lifecycle workflows.
type Service struct {
	users       repository.UserRepository
	profiles    repository.ProfileRepository
	audit       audit.Service
	logger      *slog.Logger
	passwordMin int
}

// New constructs a Service.
func New(users repository.UserRepository, profiles repository.ProfileRepository, auditSvc audit.Service, logger *slog.Logger, passwordMin int) Service {
	if passwordMin <= 0 {
		passwordMin = 8
	}
	return Service{users: users, profiles: profiles, audit: auditSvc, logger: logger, passwordMin: passwordMin}
}

// CreateInput carries fields for account creation.
type CreateInput struct {
	Email       string
	PhoneNumber string
	Username    string
	FirstName   string
	LastName    string
	Password    string
	Role        domain.Role
	Superuser   bool
	// ActorID identifies who performed the creation; empty for self signup.
	ActorID string
}

// Create registers an account. At least one of email, phone number or
// username must be provided; a missing username is derived from the email
// local part or the phone number. Superusers are forced to the admin role.
func (s Service) Create(ctx context.Context, in CreateInput) (*domain.User, error) {
	email := NormalizeEmail(in.Email)
	phone := strings.TrimSpace(in.PhoneNumber)
	username := strings.TrimSpace(in.Username)
	if email == "" && phone == "" && username == "" {
		return nil, ErrIdentifierRequired
	}
	if username == "" {
		username = DeriveUsername(email, phone)
	}
	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if in.Superuser {
		role = domain.RoleAdmin
	}
	if err := ValidatePassword(in.Password, s.passwordMin); err != nil {
		return nil, err
	}
	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PhoneNumber:  phone,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		IsStaff:      role.Staff(),
		IsSuperuser:  in.Superuser,
		DateJoined:   now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user, &domain.Profile{UserID: user.ID, UpdatedAt: now}); err != nil {
		return nil, err
	}
	s.logger.Info("user created", "user_id", user.ID, "username", user.Username, "role", user.Role)

	action := domain.AuditUserRegistered
	if in.ActorID != "" {
		action = domain.AuditUserCreated
	}
	s.audit.Record(ctx, domain.AuditEvent{
		UserID:  user.ID,
		ActorID: in.ActorID,
		Action:  action,
	})
	return user, nil
}

// Get returns a user and their profile.
func (s Service) Get(ctx context.Context, id string) (*domain.User, *domain.Profile, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	profile, err := s.profiles.GetProfileByUserID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, nil, err
		}
		profile = &domain.Profile{UserID: id}
	}
	return user, profile, nil
}

// ProfileInput carries partial profile changes.
type ProfileInput struct {
	Bio        *string `json:"bio"`
	AvatarURL  *string `json:"avatar_url"`
	TelegramID *string `json:"telegram_id"`
}

// UpdateInput carries partial account changes.
type UpdateInput struct {
	FirstName   *string       `json:"first_name"`
	LastName    *string       `json:"last_name"`
	Email       *string       `json:"email"`
	PhoneNumber *string       `json:"phone_number"`
	Username    *string       `json:"username"`
	Profile     *ProfileInput `json:"profile"`
}

// Update applies partial changes to a user and, when given, their profile.
// User and profile rows are written in a single transaction.
func (s Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.User, *domain.Profile, error) {
	user, profile, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if in.FirstName != nil {
		user.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		user.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Email != nil {
		email := NormalizeEmail(*in.Email)
		if email != user.Email && email != "" {
			taken, err := s.users.EmailTaken(ctx, email)
			if err != nil {
				return nil, nil, err
			}
			if taken {
				return nil, nil, fmt.Errorf("email %q: %w", email, repository.ErrConflict)
			}
		}
		user.Email = email
	}
	if in.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			return nil, nil, ErrUsernameRequired
		}
		user.Username = username
	}
	if user.Email == "" && user.PhoneNumber == "" && user.Username == "" {
		return nil, nil, ErrIdentifierRequired
	}

	if in.Profile != nil {
		if in.Profile.Bio != nil {
			profile.Bio = strings.TrimSpace(*in.Profile.Bio)
		}
		if in.Profile.AvatarURL != nil {
			profile.AvatarURL = strings.TrimSpace(*in.Profile.AvatarURL)
		}
		if in.Profile.TelegramID != nil {
			profile.TelegramID = strings.TrimSpace(*in.Profile.TelegramID)
		}
		profile.UserID = user.ID
		err = s.users.UpdateUserWithProfile(ctx, user, profile)
	} else {
		err = s.users.UpdateUser(ctx, user)
	}
	if err != nil {
		return nil, nil, err
	}
	s.audit.Record(ctx, domain.AuditEvent{
		UserID:  user.ID,
		ActorID: user.ID,
		Action:  domain.AuditUserUpdated,
	})
	return user, profile, nil
}

// UpdateRole assigns a role. Admin and manager roles grant the staff flag;
// demotion to the plain user role revokes it.
func (s Service) UpdateRole(ctx context.Context, actorID, id string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	staff := role.Staff()
	if err := s.users.UpdateRole(ctx, id, role, staff); err != nil {
		return nil, err
	}
	detail := fmt.Sprintf(`{"from":%q,"to":%q}`, user.Role, role)
	s.audit.Record(ctx, domain.AuditEvent{
		UserID:  id,
		ActorID: actorID,
		Action:  domain.AuditRoleChanged,
		Detail:  []byte(detail),
	})
	s.logger.Info("role updated", "user_id", id, "actor_id", actorID, "role", role)
	user.Role = role
	user.IsStaff = staff
	return user, nil
}

// SetActive toggles the active flag for an account.
func (s Service) SetActive(ctx context.Context, actorID, id string, active bool) error {
	if err := s.users.SetActive(ctx, id, active); err != nil {
		return err
	}
	detail := fmt.Sprintf(`{"active":%t}`, active)
	s.audit.Record(ctx, domain.AuditEvent{
		UserID:  id,
		ActorID: actorID,
		Action:  domain.AuditUserActiveChanged,
		Detail:  []byte(detail),
	})
	s.logger.Info("active flag updated", "user_id", id, "actor_id", actorID, "active", active)
	return nil
}

// List searches users by username, email, phone or names.
func (s Service) List(ctx context.Context, search string, limit, offset int) ([]domain.User, error) {
	return s.users.SearchUsers(ctx, search, limit, offset)
}

// NormalizeEmail canonicalizes an email address. The whole address is
// lowercased; treating mixed-case local parts as distinct identities is an
// operational trap.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DeriveUsername picks a username from the email local part, falling back to
// the phone number.
func DeriveUsername(email, phone string) string {
	value := email
	if value == "" {
		value = phone
	}
	if idx := strings.IndexByte(value, '@'); idx > 0 {
		return value[:idx]
	}
	return value
}
