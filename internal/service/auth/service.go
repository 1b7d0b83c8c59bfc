package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/crewkit/crewkit/internal/apperr"
	"github.com/crewkit/crewkit/internal/domain"
	"github.com/crewkit/crewkit/internal/repository"
	"github.com/crewkit/crewkit/internal/service/activity"
	"github.com/crewkit/crewkit/pkg/config"
	"github.com/crewkit/crewkit/pkg/crypto"
	jwtpkg "github.com/crewkit/crewkit/pkg/jwt"
)

// ErrInvalidCredentials is returned on any email/password mismatch so the
// response does not reveal whether the account exists.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrInvalidRefreshToken covers every refresh failure, including tokens
// whose user no longer exists.
var ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	ledger activity.Recorder
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, ledger activity.Recorder, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, ledger: ledger, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// Signup registers a new user account.
func (s Service) Signup(ctx context.Context, name, email, password string) (*domain.User, TokenPair, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 100 {
		return nil, TokenPair{}, apperr.New(apperr.KindBadRequest, "name must be between 2 and 100 characters")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, TokenPair{}, apperr.New(apperr.KindBadRequest, "a valid email address is required")
	}
	if len(password) < 8 {
		return nil, TokenPair{}, apperr.New(apperr.KindBadRequest, "password must be at least 8 characters")
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, TokenPair{}, apperr.New(apperr.KindConflict, "an account with this email already exists")
		}
		return nil, TokenPair{}, err
	}
	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionUserRegistered,
		UserID:      user.ID,
		Description: user.Name + " registered",
	}); err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, tokens, nil
}

// Login authenticates a user and returns tokens.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.ledger.Record(ctx, domain.ActivityRecord{
		Action:      domain.ActionUserLogin,
		UserID:      user.ID,
		Description: user.Name + " logged in",
	}); err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated and stays valid until it expires.
func (s Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	trimmed := strings.TrimSpace(refreshToken)
	if trimmed == "" {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}
	access, err := jwtpkg.GenerateToken(user.ID, user.Email, string(user.Role), s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	s.logger.Debug("access token refreshed", "user_id", user.ID)
	return TokenPair{AccessToken: access, RefreshToken: trimmed, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}

// Authorize validates a bearer token and returns the associated user.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, errors.New("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// Profile returns the user's own account.
func (s Service) Profile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile changes the user's display name.
func (s Service) UpdateProfile(ctx context.Context, userID, name string) (*domain.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 100 {
		return nil, apperr.New(apperr.KindBadRequest, "name must be between 2 and 100 characters")
	}
	user.Name = name
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("profile updated", "user_id", user.ID)
	return user, nil
}

func (s Service) issueTokens(user *domain.User) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(user.ID, user.Email, string(user.Role), s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(user.ID, user.Email, string(user.Role), s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}
