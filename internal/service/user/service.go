package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/crypto"
)

const recentProjects = 5

// Overview is the dashboard summary of a user.
type Overview struct {
	User         *domain.User        `json:"user"`
	GitHub       GitHubSummary       `json:"github"`
	GCPConnected bool                `json:"gcp_connected"`
	Repositories RepositoriesSummary `json:"repositories"`
	Projects     ProjectsSummary     `json:"projects"`
}

// GitHubSummary describes the user's GitHub connection.
type GitHubSummary struct {
	Connected      bool    `json:"connected"`
	Username       *string `json:"username"`
	AvatarURL      *string `json:"avatar_url"`
	InstallationID *int64  `json:"installation_id"`
}

// RepositoriesSummary lists imported repositories.
type RepositoriesSummary struct {
	Count int                 `json:"count"`
	Items []domain.Repository `json:"items"`
}

// ProjectsSummary holds the project total and the most recently updated projects.
type ProjectsSummary struct {
	Count int              `json:"count"`
	Items []domain.Project `json:"items"`
}

// Service manages user accounts.
type Service struct {
	users         repository.UserRepository
	installations repository.InstallationRepository
	repos         repository.CodeRepository
	projects      repository.ProjectRepository
	logger        *slog.Logger
	cfg           config.APIConfig
}

// New constructs a user service.
func New(users repository.UserRepository, installations repository.InstallationRepository, repos repository.CodeRepository, projects repository.ProjectRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{
		users:         users,
		installations: installations,
		repos:         repos,
		projects:      projects,
		logger:        logger,
		cfg:           cfg,
	}
}

var (
	errGCPProjectRequired = fmt.Errorf("%w: gcp project id is required", repository.ErrInvalidArgument)
	errGCPKeyInvalid      = fmt.Errorf("%w: service account key must be a JSON object", repository.ErrInvalidArgument)
)

// HandleClerkEvent applies an identity-provider webhook. Malformed payloads and
// unknown users are logged and skipped so the provider does not retry them.
func (s Service) HandleClerkEvent(ctx context.Context, event ClerkEvent) error {
	switch event.Type {
	case EventUserCreated:
		profile, ok := event.Data.Profile()
		if !ok {
			s.logger.Warn("clerk user payload incomplete", "event", event.Type, "external_id", event.Data.ID)
			return nil
		}
		_, err := s.Provision(ctx, profile)
		return err
	case EventUserUpdated:
		profile, ok := event.Data.Profile()
		if !ok {
			s.logger.Warn("clerk user payload incomplete", "event", event.Type, "external_id", event.Data.ID)
			return nil
		}
		return s.applyProfile(ctx, profile)
	case EventUserDeleted:
		return s.deactivate(ctx, event.Data.ID)
	default:
		s.logger.Info("ignoring clerk event", "event", event.Type)
		return nil
	}
}

// Provision creates a user for profile unless one already exists for its subject.
func (s Service) Provision(ctx context.Context, profile domain.UserProfile) (*domain.User, error) {
	existing, err := s.users.GetUserByExternalID(ctx, profile.ExternalID)
	if err == nil {
		s.logger.Info("user already provisioned", "user_id", existing.ID, "external_id", profile.ExternalID)
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	user := &domain.User{
		ID:        uuid.NewString(),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	applyProfile(user, profile)
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return s.users.GetUserByExternalID(ctx, profile.ExternalID)
		}
		return nil, err
	}
	s.logger.Info("user created", "user_id", user.ID, "external_id", user.ExternalID)
	return user, nil
}

func (s Service) applyProfile(ctx context.Context, profile domain.UserProfile) error {
	user, err := s.users.GetUserByExternalID(ctx, profile.ExternalID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("user not found for update", "external_id", profile.ExternalID)
		return nil
	}
	if err != nil {
		return err
	}
	applyProfile(user, profile)
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info("user updated", "user_id", user.ID, "external_id", user.ExternalID)
	return nil
}

func (s Service) deactivate(ctx context.Context, externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		s.logger.Warn("clerk delete event without user id")
		return nil
	}
	user, err := s.users.GetUserByExternalID(ctx, externalID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("user not found for deletion", "external_id", externalID)
		return nil
	}
	if err != nil {
		return err
	}
	user.IsActive = false
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info("user deactivated", "user_id", user.ID, "external_id", externalID)
	return nil
}

// Me returns the user record.
func (s Service) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: user not found", repository.ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}

// Overview gathers the user, GitHub connection, imported repositories and recent projects.
func (s Service) Overview(ctx context.Context, userID string) (Overview, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	overview := Overview{
		User:         user,
		GCPConnected: user.GCPConnected(),
		GitHub: GitHubSummary{
			Username:  user.GitHubUsername,
			AvatarURL: user.GitHubAvatarURL,
		},
	}

	inst, err := s.installations.GetActiveInstallationByUser(ctx, userID)
	switch {
	case err == nil:
		overview.GitHub.Connected = true
		overview.GitHub.InstallationID = &inst.InstallationID
	case !errors.Is(err, repository.ErrNotFound):
		return Overview{}, err
	}

	repos, err := s.repos.ListRepositoriesByUser(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	overview.Repositories = RepositoriesSummary{Count: len(repos), Items: repos}

	projects, total, err := s.projects.ListProjectsByUser(ctx, userID, 0, recentProjects)
	if err != nil {
		return Overview{}, err
	}
	overview.Projects = ProjectsSummary{Count: total, Items: projects}
	return overview, nil
}

// ConnectGCP stores a GCP project id and an encrypted service account key for the user.
func (s Service) ConnectGCP(ctx context.Context, userID, projectID, serviceAccountKey string) (*domain.User, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errGCPProjectRequired
	}
	var key map[string]any
	if err := json.Unmarshal([]byte(serviceAccountKey), &key); err != nil || len(key) == 0 {
		return nil, errGCPKeyInvalid
	}
	sealed, err := crypto.EncryptString(s.cfg.EncryptionKey, serviceAccountKey)
	if err != nil {
		return nil, fmt.Errorf("seal service account key: %w", err)
	}
	if err := s.users.UpdateGCPCredentials(ctx, userID, projectID, sealed, time.Now().UTC()); err != nil {
		return nil, err
	}
	s.logger.Info("gcp credentials linked", "user_id", userID, "gcp_project_id", projectID)
	return s.Me(ctx, userID)
}

func applyProfile(user *domain.User, profile domain.UserProfile) {
	user.ExternalID = profile.ExternalID
	user.Email = profile.Email
	user.FullName = profile.FullName()
	user.FirstName = profile.FirstName
	user.LastName = profile.LastName
	user.Username = profile.Username
	user.ProfileImageURL = profile.ProfileImageURL
	user.GitHubUsername = profile.GitHubUsername
	user.GitHubID = profile.GitHubID
	user.GitHubAvatarURL = profile.GitHubAvatarURL
}
