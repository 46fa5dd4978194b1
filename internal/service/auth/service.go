package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
	jwtpkg "github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/jwt"
)

// ErrUnauthorized is returned for missing, invalid or expired credentials.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Service verifies bearer tokens and resolves them to internal users.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, logger: logger, cfg: cfg}
}

// Authorize validates a bearer token and returns the associated user and claims.
// Tokens signed with AUTH_JWT_PUBLIC_KEY are accepted when it is configured;
// otherwise tokens must be HS256-signed with JWT_SECRET. A user seen for the first
// time is provisioned from the token claims.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, fmt.Errorf("%w: token required", ErrUnauthorized)
	}
	claims, err := s.parse(trimmed)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	user, err := s.users.GetUserByExternalID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		user, err = s.provision(ctx, claims)
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, fmt.Errorf("%w: account disabled", ErrUnauthorized)
	}
	return user, claims, nil
}

// IssueToken signs an HS256 token for a subject. It backs local development logins.
func (s Service) IssueToken(subject, email string) (string, error) {
	return jwtpkg.GenerateToken(subject, email, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
}

func (s Service) parse(token string) (*jwtpkg.Claims, error) {
	if s.cfg.AuthPublicKey != "" {
		return jwtpkg.ParseRS256(token, s.cfg.AuthPublicKey, s.cfg.AuthIssuer)
	}
	return jwtpkg.Parse(token, s.cfg.JWTSecret)
}

func (s Service) provision(ctx context.Context, claims *jwtpkg.Claims) (*domain.User, error) {
	email := strings.TrimSpace(claims.Email)
	if email == "" {
		email = claims.Subject + "@unknown.com"
	}
	profile := domain.UserProfile{
		ExternalID:      claims.Subject,
		Email:           email,
		FirstName:       optional(claims.FirstName),
		LastName:        optional(claims.LastName),
		Username:        optional(claims.Username),
		ProfileImageURL: optional(claims.ImageURL),
	}
	user := &domain.User{
		ID:              uuid.NewString(),
		ExternalID:      profile.ExternalID,
		Email:           profile.Email,
		FullName:        profile.FullName(),
		FirstName:       profile.FirstName,
		LastName:        profile.LastName,
		Username:        profile.Username,
		ProfileImageURL: profile.ProfileImageURL,
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Another request provisioned the same subject first.
			return s.users.GetUserByExternalID(ctx, claims.Subject)
		}
		return nil, err
	}
	s.logger.Info("user auto-provisioned", "user_id", user.ID, "external_id", user.ExternalID)
	return user, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
