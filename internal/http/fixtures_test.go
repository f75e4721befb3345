package httpx

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/repository"
	"github.com/veslo/accounts/internal/service/audit"
	"github.com/veslo/accounts/internal/service/auth"
	"github.com/veslo/accounts/internal/service/user"
	"github.com/veslo/accounts/internal/ws"
	"github.com/veslo/accounts/pkg/config"
	"github.com/veslo/accounts/pkg/crypto"
	jwtpkg "github.com/veslo/accounts/pkg/jwt"
)

const testJWTSecret = "router-secret"

// fixtureStore is an in-memory stand-in for the postgres repository.
type fixtureStore struct {
	mu          sync.Mutex
	users       map[string]*domain.User
	profiles    map[string]*domain.Profile
	resets      map[string]*domain.PasswordResetToken
	events      []domain.AuditEvent
	nextEventID int64
}

func newFixtureStore() *fixtureStore {
	return &fixtureStore{
		users:    make(map[string]*domain.User),
		profiles: make(map[string]*domain.Profile),
		resets:   make(map[string]*domain.PasswordResetToken),
	}
}

func (s *fixtureStore) CreateUser(_ context.Context, u *domain.User, p *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || (u.Email != "" && existing.Email == u.Email) {
			return repository.ErrConflict
		}
	}
	clone := *u
	s.users[u.ID] = &clone
	if p != nil {
		profile := *p
		s.profiles[u.ID] = &profile
	}
	return nil
}

func (s *fixtureStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *fixtureStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email && email != "" {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fixtureStore) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fixtureStore) EmailTaken(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email && email != "" {
			return true, nil
		}
	}
	return false, nil
}

func (s *fixtureStore) UpdateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *fixtureStore) UpdateUserWithProfile(ctx context.Context, u *domain.User, p *domain.Profile) error {
	if err := s.UpdateUser(ctx, u); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	profile := *p
	s.profiles[u.ID] = &profile
	return nil
}

func (s *fixtureStore) UpdatePassword(_ context.Context, id string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *fixtureStore) UpdateRole(_ context.Context, id string, role domain.Role, staff bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	u.IsStaff = staff
	return nil
}

func (s *fixtureStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (s *fixtureStore) SearchUsers(_ context.Context, query string, limit, offset int) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	query = strings.ToLower(strings.TrimSpace(query))
	matched := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if query == "" ||
			strings.Contains(strings.ToLower(u.Username), query) ||
			strings.Contains(strings.ToLower(u.Email), query) ||
			strings.Contains(strings.ToLower(u.FirstName), query) ||
			strings.Contains(strings.ToLower(u.LastName), query) ||
			strings.Contains(u.PhoneNumber, query) {
			matched = append(matched, *u)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *fixtureStore) GetProfileByUserID(_ context.Context, userID string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *fixtureStore) CreateResetToken(_ context.Context, token *domain.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *token
	s.resets[token.TokenHash] = &clone
	return nil
}

func (s *fixtureStore) GetResetToken(_ context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.resets[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *token
	return &clone, nil
}

func (s *fixtureStore) ConsumeResetToken(_ context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.resets[tokenHash]
	if !ok || token.Status != domain.ResetTokenStatusPending || time.Now().After(token.ExpiresAt) {
		return "", repository.ErrInvalidArgument
	}
	now := time.Now().UTC()
	token.Status = domain.ResetTokenStatusUsed
	token.UsedAt = &now
	return token.UserID, nil
}

func (s *fixtureStore) ExpirePendingTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.resets {
		if token.UserID == userID && token.Status == domain.ResetTokenStatusPending {
			token.Status = domain.ResetTokenStatusExpired
		}
	}
	return nil
}

func (s *fixtureStore) DeleteExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for hash, token := range s.resets {
		if token.ExpiresAt.Before(before) {
			delete(s.resets, hash)
			removed++
		}
	}
	return removed, nil
}

func (s *fixtureStore) InsertAuditEvent(_ context.Context, event *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	event.ID = s.nextEventID
	s.events = append(s.events, *event)
	return nil
}

func (s *fixtureStore) ListAuditEvents(_ context.Context, userID string, limit, offset int) ([]domain.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]domain.AuditEvent, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0; i-- {
		if userID == "" || s.events[i].UserID == userID {
			matched = append(matched, s.events[i])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

type captureSender struct {
	mu    sync.Mutex
	to    []string
	links []string
}

func (c *captureSender) SendPasswordReset(_ context.Context, to, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.to = append(c.to, to)
	c.links = append(c.links, link)
	return nil
}

func (c *captureSender) lastLink() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.links) == 0 {
		return ""
	}
	return c.links[len(c.links)-1]
}

type testEnv struct {
	router *Router
	store  *fixtureStore
	mailer *captureSender
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newFixtureStore()
	mailer := &captureSender{}
	hub := ws.NewHub()
	t.Cleanup(hub.Close)

	cfg := config.APIConfig{
		JWTSecret:         testJWTSecret,
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   time.Hour,
		PasswordMinLength: 8,
		ResetTokenTTL:     30 * time.Minute,
		ResetBaseURL:      "https://accounts.test/password-reset",
	}
	auditSvc := audit.New(store, hub, logger)
	userSvc := user.New(store, store, auditSvc, logger, cfg.PasswordMinLength)
	authSvc := auth.New(store, store, userSvc, mailer, auditSvc, logger, cfg)

	router := NewRouter(logger, authSvc, userSvc, auditSvc, nil, nil)
	t.Cleanup(router.Close)
	return &testEnv{router: router, store: store, mailer: mailer}
}

func (e *testEnv) seedUser(t *testing.T, email string, role domain.Role, password string) *domain.User {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	account := &domain.User{
		ID:           uuid.NewString(),
		Username:     user.DeriveUsername(email, ""),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		IsStaff:      role.Staff(),
		DateJoined:   now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateUser(context.Background(), account, &domain.Profile{UserID: account.ID, UpdatedAt: now}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return account
}

func (e *testEnv) token(t *testing.T, account *domain.User) string {
	t.Helper()
	token, err := jwtpkg.GenerateToken(account.ID, string(account.Role), testJWTSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}
