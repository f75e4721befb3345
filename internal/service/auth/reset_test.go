package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/repository"
	"github.com/veslo/accounts/pkg/crypto"
)

func TestRequestPasswordResetIssuesToken(t *testing.T) {
	account := &domain.User{ID: "user-1", Email: "ivan@example.com", IsActive: true}
	var expired string
	var created *domain.PasswordResetToken
	users := &userRepoMock{
		getByEmailFunc: func(_ context.Context, email string) (*domain.User, error) {
			if email != account.Email {
				return nil, repository.ErrNotFound
			}
			return account, nil
		},
	}
	resets := &resetRepoMock{
		expireFunc: func(_ context.Context, userID string) error {
			expired = userID
			return nil
		},
		createFunc: func(_ context.Context, token *domain.PasswordResetToken) error {
			created = token
			return nil
		},
	}
	var sentTo, sentLink string
	sender := &senderMock{
		sendFunc: func(_ context.Context, to, link string) error {
			sentTo = to
			sentLink = link
			return nil
		},
	}
	svc := newService(users, resets, sender)

	if err := svc.RequestPasswordReset(context.Background(), "Ivan@Example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired != account.ID {
		t.Fatalf("expected pending tokens to be expired for %q, got %q", account.ID, expired)
	}
	if created == nil {
		t.Fatalf("expected a reset token to be stored")
	}
	if created.Status != domain.ResetTokenStatusPending || created.UserID != account.ID {
		t.Fatalf("unexpected token record: status=%s user=%s", created.Status, created.UserID)
	}
	if created.ExpiresAt.IsZero() {
		t.Fatalf("expected an expiry on the token")
	}
	if sentTo != account.Email {
		t.Fatalf("expected mail to %q, got %q", account.Email, sentTo)
	}

	parsed, err := url.Parse(sentLink)
	if err != nil {
		t.Fatalf("parse reset link: %v", err)
	}
	plain := parsed.Query().Get("token")
	if plain == "" {
		t.Fatalf("expected the link to carry a token, got %q", sentLink)
	}
	if strings.Contains(sentLink, created.TokenHash) {
		t.Fatalf("the mailed link must not contain the stored digest")
	}
	if crypto.DigestToken(plain) != created.TokenHash {
		t.Fatalf("stored digest does not match the mailed token")
	}
}

func TestRequestPasswordResetHidesUnknownEmail(t *testing.T) {
	resets := &resetRepoMock{
		createFunc: func(_ context.Context, _ *domain.PasswordResetToken) error {
			t.Fatalf("no token should be created for an unknown email")
			return nil
		},
	}
	sender := &senderMock{
		sendFunc: func(_ context.Context, _, _ string) error {
			t.Fatalf("no mail should be sent for an unknown email")
			return nil
		},
	}
	svc := newService(nil, resets, sender)

	if err := svc.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
}

func TestRequestPasswordResetSkipsInactiveAccount(t *testing.T) {
	users := &userRepoMock{
		getByEmailFunc: func(_ context.Context, _ string) (*domain.User, error) {
			return &domain.User{ID: "user-1", Email: "ivan@example.com", IsActive: false}, nil
		},
	}
	resets := &resetRepoMock{
		createFunc: func(_ context.Context, _ *domain.PasswordResetToken) error {
			t.Fatalf("no token should be created for an inactive account")
			return nil
		},
	}
	svc := newService(users, resets, nil)

	if err := svc.RequestPasswordReset(context.Background(), "ivan@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
}

func TestConfirmPasswordReset(t *testing.T) {
	token, err := crypto.RandomToken(32)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	var stored []byte
	users := &userRepoMock{
		updatePasswordFunc: func(_ context.Context, id string, hash []byte) error {
			if id != "user-1" {
				t.Fatalf("unexpected user id: %q", id)
			}
			stored = hash
			return nil
		},
	}
	resets := &resetRepoMock{
		consumeFunc: func(_ context.Context, tokenHash string) (string, error) {
			if tokenHash != crypto.DigestToken(token) {
				return "", repository.ErrInvalidArgument
			}
			return "user-1", nil
		},
	}
	svc := newService(users, resets, nil)

	if err := svc.ConfirmPasswordReset(context.Background(), token, "NewPass123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := crypto.ComparePassword(stored, "NewPass123"); err != nil {
		t.Fatalf("expected stored hash to match the new password: %v", err)
	}

	if err := svc.ConfirmPasswordReset(context.Background(), "bogus-token", "NewPass123"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}
}
