package repository

import (
	"context"
	"time"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
)

// UserRepository persists users provisioned from the identity provider.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	UpdateGCPCredentials(ctx context.Context, userID, projectID string, sealedKey []byte, connectedAt time.Time) error
}

// InstallationRepository persists GitHub App installations.
type InstallationRepository interface {
	// LinkInstallation deactivates the user's other installations and stores the new one atomically.
	LinkInstallation(ctx context.Context, installation *domain.Installation) error
	GetInstallationByGitHubID(ctx context.Context, installationID int64) (*domain.Installation, error)
	GetActiveInstallationByUser(ctx context.Context, userID string) (*domain.Installation, error)
	// SetInstallationActive toggles an installation. Activating one deactivates the owner's others atomically.
	SetInstallationActive(ctx context.Context, installationID int64, active bool) error
}

// CodeRepository persists imported GitHub repositories.
type CodeRepository interface {
	// UpsertRepository inserts or refreshes a repository keyed by GitHub id.
	// A repository already imported by another user yields ErrConflict.
	UpsertRepository(ctx context.Context, repo *domain.Repository) error
	GetRepositoryForUser(ctx context.Context, id, userID string) (*domain.Repository, error)
	ListRepositoriesByUser(ctx context.Context, userID string) ([]domain.Repository, error)
}

// ProjectRepository persists projects.
type ProjectRepository interface {
	// CreateProject inserts a project. ErrSlugTaken signals an (owner, slug) collision.
	CreateProject(ctx context.Context, project *domain.Project) error
	ProjectExistsForRepository(ctx context.Context, repositoryID string) (bool, error)
	SlugExists(ctx context.Context, userID, slug string) (bool, error)
	GetProjectForUser(ctx context.Context, id, userID string) (*domain.Project, error)
	// ListProjectsByUser returns one page ordered by updated_at desc and the owner's total count.
	ListProjectsByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Project, int, error)
	// UpdateProject writes patchable fields and refreshes updated_at.
	UpdateProject(ctx context.Context, project *domain.Project) error
	// TransitionProject locks the project row, lets apply mutate the workflow fields and persists them.
	// An error from apply aborts the change.
	TransitionProject(ctx context.Context, id, userID string, apply func(*domain.Project) error) (*domain.Project, error)
	DeleteProject(ctx context.Context, id, userID string) (bool, error)
}

// ResourceRepository reads cloud resources and deployment templates.
type ResourceRepository interface {
	ListCloudResources(ctx context.Context, projectID string) ([]domain.CloudResource, error)
	ListActiveTemplates(ctx context.Context) ([]domain.DeploymentTemplate, error)
}
