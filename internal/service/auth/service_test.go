package auth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/crewkit/crewkit/internal/apperr"
	"github.com/crewkit/crewkit/internal/domain"
	"github.com/crewkit/crewkit/internal/repository"
	"github.com/crewkit/crewkit/pkg/config"
	"github.com/crewkit/crewkit/pkg/crypto"
)

type fakeUserRepository struct {
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]*domain.User),
	}
}

func (f *fakeUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	if _, ok := f.byEmail[user.Email]; ok {
		return repository.ErrConflict
	}
	clone := *user
	f.byID[user.ID] = &clone
	f.byEmail[user.Email] = &clone
	return nil
}

func (f *fakeUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepository) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	user, ok := f.byID[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepository) UpdateUser(ctx context.Context, user *domain.User) error {
	if _, ok := f.byID[user.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *user
	f.byID[user.ID] = &clone
	f.byEmail[user.Email] = &clone
	return nil
}

type ledgerSpy struct {
	records []domain.ActivityRecord
}

func (l *ledgerSpy) Record(ctx context.Context, record domain.ActivityRecord) error {
	l.records = append(l.records, record)
	return nil
}

func newService(users *fakeUserRepository, ledger *ledgerSpy) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
	return New(users, ledger, log, cfg)
}

func TestSignupNormalizesAndRecords(t *testing.T) {
	users := newFakeUserRepository()
	ledger := &ledgerSpy{}
	svc := newService(users, ledger)

	user, tokens, err := svc.Signup(context.Background(), "  Alice  ", "Alice@Example.COM", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if user.Name != "Alice" {
		t.Fatalf("name should be trimmed, got %q", user.Name)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email should be lowercased, got %q", user.Email)
	}
	if user.Role != domain.RoleMember {
		t.Fatalf("new accounts default to member, got %q", user.Role)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if err := crypto.ComparePassword(user.PasswordHash, "hunter2hunter2"); err != nil {
		t.Fatalf("stored hash does not match the password: %v", err)
	}
	if len(ledger.records) != 1 || ledger.records[0].Action != domain.ActionUserRegistered {
		t.Fatalf("expected a user_registered entry, got %+v", ledger.records)
	}
}

func TestSignupValidation(t *testing.T) {
	svc := newService(newFakeUserRepository(), &ledgerSpy{})
	cases := []struct {
		name     string
		userName string
		email    string
		password string
	}{
		{name: "short name", userName: "A", email: "a@b.com", password: "hunter2hunter2"},
		{name: "bad email", userName: "Alice", email: "not-an-email", password: "hunter2hunter2"},
		{name: "short password", userName: "Alice", email: "a@b.com", password: "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Signup(context.Background(), tc.userName, tc.email, tc.password)
			if !apperr.Is(err, apperr.KindBadRequest) {
				t.Fatalf("expected bad request, got %v", err)
			}
		})
	}
}

func TestSignupDuplicateEmailConflicts(t *testing.T) {
	svc := newService(newFakeUserRepository(), &ledgerSpy{})
	if _, _, err := svc.Signup(context.Background(), "Alice", "a@b.com", "hunter2hunter2"); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	_, _, err := svc.Signup(context.Background(), "Impostor", "A@B.com", "hunter2hunter2")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLoginDoesNotRevealWhichFieldWasWrong(t *testing.T) {
	users := newFakeUserRepository()
	ledger := &ledgerSpy{}
	svc := newService(users, ledger)
	if _, _, err := svc.Signup(context.Background(), "Alice", "a@b.com", "hunter2hunter2"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	_, _, err := svc.Login(context.Background(), "a@b.com", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, _, err = svc.Login(context.Background(), "nobody@b.com", "hunter2hunter2")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	user, tokens, err := svc.Login(context.Background(), "A@B.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("valid login failed: %v", err)
	}
	if user.Email != "a@b.com" || tokens.AccessToken == "" {
		t.Fatalf("unexpected login result: %+v", user)
	}
	last := ledger.records[len(ledger.records)-1]
	if last.Action != domain.ActionUserLogin {
		t.Fatalf("expected a user_login entry, got %s", last.Action)
	}
}

func TestAuthorizeRoundTrip(t *testing.T) {
	users := newFakeUserRepository()
	svc := newService(users, &ledgerSpy{})
	signedUp, tokens, err := svc.Signup(context.Background(), "Alice", "a@b.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	user, claims, err := svc.Authorize(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if user.ID != signedUp.ID || claims.UserID != signedUp.ID {
		t.Fatal("token does not resolve back to its user")
	}

	if _, _, err := svc.Authorize(context.Background(), "not-a-token"); err == nil {
		t.Fatal("expected garbage tokens to be rejected")
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	users := newFakeUserRepository()
	svc := newService(users, &ledgerSpy{})
	signedUp, tokens, err := svc.Signup(context.Background(), "Alice", "a@b.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Fatal("expected a new access token")
	}
	if refreshed.RefreshToken != tokens.RefreshToken {
		t.Fatal("the refresh token must not be rotated")
	}
	user, claims, err := svc.Authorize(context.Background(), refreshed.AccessToken)
	if err != nil {
		t.Fatalf("refreshed token rejected: %v", err)
	}
	if user.ID != signedUp.ID || claims.UserID != signedUp.ID {
		t.Fatal("refreshed token does not resolve back to its user")
	}
}

func TestRefreshRejectsBadTokens(t *testing.T) {
	users := newFakeUserRepository()
	svc := newService(users, &ledgerSpy{})
	_, tokens, err := svc.Signup(context.Background(), "Alice", "a@b.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	for _, token := range []string{"", "   ", "not-a-token"} {
		if _, err := svc.Refresh(context.Background(), token); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("token %q: expected invalid refresh token, got %v", token, err)
		}
	}

	// A valid token whose account is gone is just as invalid.
	users.byID = map[string]*domain.User{}
	if _, err := svc.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid refresh token for a deleted user, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	users := newFakeUserRepository()
	svc := newService(users, &ledgerSpy{})
	signedUp, _, err := svc.Signup(context.Background(), "Alice", "a@b.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	updated, err := svc.UpdateProfile(context.Background(), signedUp.ID, "Alice Cooper")
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if updated.Name != "Alice Cooper" {
		t.Fatalf("unexpected name %q", updated.Name)
	}
	if _, err := svc.UpdateProfile(context.Background(), signedUp.ID, "X"); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
	if _, err := svc.UpdateProfile(context.Background(), "ghost", "Someone"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
