package installation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/github"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
)

// GitHub is the subset of the GitHub client the service depends on.
type GitHub interface {
	Installation(ctx context.Context, installationID int64) (*github.Installation, error)
	ListRepositories(ctx context.Context, installationID int64) ([]github.Repo, error)
	CountRepositories(ctx context.Context, installationID int64) (int, error)
	GetRepository(ctx context.Context, installationID int64, fullName string) (*github.Repo, error)
}

// Status summarizes a user's GitHub connection.
type Status struct {
	Connected         bool                 `json:"connected"`
	Installation      *domain.Installation `json:"installation"`
	RepositoriesCount int                  `json:"repositories_count"`
}

// Service links GitHub App installations to users and imports repositories.
type Service struct {
	installations repository.InstallationRepository
	repos         repository.CodeRepository
	github        GitHub
	logger        *slog.Logger
	cfg           config.APIConfig
}

// New constructs an installation service.
func New(installations repository.InstallationRepository, repos repository.CodeRepository, gh GitHub, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{installations: installations, repos: repos, github: gh, logger: logger, cfg: cfg}
}

var (
	errInvalidInstallationID = fmt.Errorf("%w: installation_id must be a positive integer", repository.ErrInvalidArgument)
	errInstallationTaken     = fmt.Errorf("%w: installation is linked to another account", repository.ErrConflict)
	errNoInstallation        = fmt.Errorf("%w: no active github installation", repository.ErrNotFound)
	errAppNameMissing        = errors.New("github app name is not configured")
)

// InstallURL returns the GitHub page where the App can be installed.
func (s Service) InstallURL(state string) (string, error) {
	name := strings.TrimSpace(s.cfg.GitHubAppName)
	if name == "" {
		return "", errAppNameMissing
	}
	target := "https://github.com/apps/" + url.PathEscape(name) + "/installations/new"
	if state != "" {
		target += "?" + url.Values{"state": {state}}.Encode()
	}
	return target, nil
}

// CallbackURL returns the frontend location GitHub's setup callback forwards to.
func (s Service) CallbackURL(installationID, setupAction string) string {
	query := url.Values{}
	if installationID != "" {
		query.Set("installation_id", installationID)
	}
	if setupAction != "" {
		query.Set("setup_action", setupAction)
	}
	target := s.cfg.FrontendURL + "/projects/import"
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

// ParseInstallationID validates a textual installation identifier.
func ParseInstallationID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidInstallationID
	}
	return id, nil
}

// Connect links installationID to userID after confirming it with GitHub.
// Other active installations of the user are deactivated.
func (s Service) Connect(ctx context.Context, userID string, installationID int64) (*domain.Installation, error) {
	if installationID <= 0 {
		return nil, errInvalidInstallationID
	}
	existing, err := s.installations.GetInstallationByGitHubID(ctx, installationID)
	switch {
	case err == nil && existing.UserID != userID:
		return nil, errInstallationTaken
	case err == nil:
		if !existing.IsActive {
			if err := s.installations.SetInstallationActive(ctx, installationID, true); err != nil {
				return nil, err
			}
			existing.IsActive = true
		}
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	info, err := s.github.Installation(ctx, installationID)
	if err != nil {
		return nil, err
	}
	inst := &domain.Installation{
		ID:               uuid.NewString(),
		UserID:           userID,
		InstallationID:   installationID,
		AccountName:      info.AccountLogin,
		AccountType:      info.AccountType,
		AccountAvatarURL: info.AvatarURL,
		IsActive:         true,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.installations.LinkInstallation(ctx, inst); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, errInstallationTaken
		}
		return nil, err
	}
	s.logger.Info("github installation linked", "installation_id", installationID, "account", inst.AccountName, "user_id", userID)
	return inst, nil
}

// Active returns the user's active installation.
func (s Service) Active(ctx context.Context, userID string) (*domain.Installation, error) {
	inst, err := s.installations.GetActiveInstallationByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errNoInstallation
		}
		return nil, err
	}
	return inst, nil
}

// Status reports whether the user has an active installation. The repository
// count is fetched live and degrades to zero when GitHub cannot be reached.
func (s Service) Status(ctx context.Context, userID string) (Status, error) {
	inst, err := s.Active(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	count, err := s.github.CountRepositories(ctx, inst.InstallationID)
	if err != nil {
		s.logger.Warn("failed to count installation repositories", "installation_id", inst.InstallationID, "error", err)
		count = 0
	}
	return Status{Connected: true, Installation: inst, RepositoriesCount: count}, nil
}

// Repositories lists the repositories visible to the user's installation.
func (s Service) Repositories(ctx context.Context, userID string) ([]github.Repo, error) {
	inst, err := s.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.github.ListRepositories(ctx, inst.InstallationID)
}

// ImportRepository fetches fullName through the installation and stores it for the user.
// Importing the same repository again refreshes its metadata.
func (s Service) ImportRepository(ctx context.Context, userID, fullName string) (*domain.Repository, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full_name is required", repository.ErrInvalidArgument)
	}
	inst, err := s.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	remote, err := s.github.GetRepository(ctx, inst.InstallationID, fullName)
	if err != nil {
		return nil, err
	}
	installationRef := inst.ID
	repo := &domain.Repository{
		ID:             uuid.NewString(),
		UserID:         userID,
		InstallationID: &installationRef,
		GitHubID:       remote.GitHubID,
		Name:           remote.Name,
		FullName:       remote.FullName,
		Description:    remote.Description,
		HTMLURL:        remote.HTMLURL,
		CloneURL:       remote.CloneURL,
		SSHURL:         remote.SSHURL,
		Language:       remote.Language,
		DefaultBranch:  remote.DefaultBranch,
		IsPrivate:      remote.Private,
		IsFork:         remote.Fork,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repos.UpsertRepository(ctx, repo); err != nil {
		return nil, err
	}
	s.logger.Info("repository imported", "repository_id", repo.ID, "full_name", repo.FullName, "user_id", userID)
	return repo, nil
}

// Imported lists repositories the user has imported.
func (s Service) Imported(ctx context.Context, userID string) ([]domain.Repository, error) {
	return s.repos.ListRepositoriesByUser(ctx, userID)
}

// HandleEvent applies a GitHub installation webhook action. Unknown installations
// and actions are ignored.
func (s Service) HandleEvent(ctx context.Context, action string, installationID int64) error {
	var active bool
	switch action {
	case "deleted", "suspend":
		active = false
	case "unsuspend":
		active = true
	default:
		s.logger.Debug("ignoring installation action", "action", action, "installation_id", installationID)
		return nil
	}
	if err := s.installations.SetInstallationActive(ctx, installationID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("installation event for unknown installation", "action", action, "installation_id", installationID)
			return nil
		}
		return err
	}
	s.logger.Info("installation state updated", "action", action, "installation_id", installationID, "active", active)
	return nil
}
