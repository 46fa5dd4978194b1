// Package memory provides an in-process implementation of the repository interfaces.
// It mirrors the postgres constraints and is used to exercise services without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
)

// Store keeps every aggregate in maps guarded by one mutex.
type Store struct {
	mu            sync.Mutex
	users         map[string]domain.User
	installations map[int64]domain.Installation
	repositories  map[string]domain.Repository
	projects      map[string]domain.Project
	resources     map[string][]domain.CloudResource
	templates     []domain.DeploymentTemplate

	// Now supplies timestamps for writes. Tests may replace it.
	Now func() time.Time
}

var (
	_ repository.UserRepository         = (*Store)(nil)
	_ repository.InstallationRepository = (*Store)(nil)
	_ repository.CodeRepository         = (*Store)(nil)
	_ repository.ProjectRepository      = (*Store)(nil)
	_ repository.ResourceRepository     = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:         make(map[string]domain.User),
		installations: make(map[int64]domain.Installation),
		repositories:  make(map[string]domain.Repository),
		projects:      make(map[string]domain.Project),
		resources:     make(map[string][]domain.CloudResource),
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// AddCloudResource seeds a cloud resource for a project.
func (s *Store) AddCloudResource(resource domain.CloudResource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[resource.ProjectID] = append(s.resources[resource.ProjectID], resource)
}

// AddTemplate seeds a deployment template.
func (s *Store) AddTemplate(template domain.DeploymentTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = append(s.templates, template)
}

// CreateUser inserts a user, enforcing unique subject and email.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.ExternalID == user.ExternalID || existing.Email == user.Email {
			return fmt.Errorf("%w: user exists", repository.ErrConflict)
		}
	}
	now := s.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt
	if user.PreferredCloudProvider == "" {
		user.PreferredCloudProvider = domain.CloudGCP
	}
	s.users[user.ID] = *user
	return nil
}

// GetUserByID retrieves a user by identifier.
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

// GetUserByExternalID retrieves a user by identity-provider subject.
func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.ExternalID == externalID {
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

// UpdateUser writes profile fields and the active flag.
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	user.CreatedAt = existing.CreatedAt
	user.GCPProjectID = existing.GCPProjectID
	user.GCPServiceAccountKey = existing.GCPServiceAccountKey
	user.GCPConnectedAt = existing.GCPConnectedAt
	user.UpdatedAt = s.Now()
	s.users[user.ID] = *user
	return nil
}

// UpdateGCPCredentials stores the sealed service account key for a user.
func (s *Store) UpdateGCPCredentials(ctx context.Context, userID, projectID string, sealedKey []byte, connectedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.GCPProjectID = &projectID
	user.GCPServiceAccountKey = append([]byte(nil), sealedKey...)
	user.GCPConnectedAt = &connectedAt
	user.UpdatedAt = s.Now()
	s.users[userID] = user
	return nil
}

// LinkInstallation deactivates the user's other installations and stores the new one.
func (s *Store) LinkInstallation(ctx context.Context, installation *domain.Installation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.installations[installation.InstallationID]; ok {
		return fmt.Errorf("%w: installation exists", repository.ErrConflict)
	}
	now := s.Now()
	for id, existing := range s.installations {
		if existing.UserID == installation.UserID && existing.IsActive {
			existing.IsActive = false
			existing.UpdatedAt = now
			s.installations[id] = existing
		}
	}
	if installation.CreatedAt.IsZero() {
		installation.CreatedAt = now
	}
	installation.UpdatedAt = installation.CreatedAt
	installation.IsActive = true
	s.installations[installation.InstallationID] = *installation
	return nil
}

// GetInstallationByGitHubID fetches an installation by its GitHub identifier.
func (s *Store) GetInstallationByGitHubID(ctx context.Context, installationID int64) (*domain.Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.installations[installationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inst, nil
}

// GetActiveInstallationByUser returns the user's active installation.
func (s *Store) GetActiveInstallationByUser(ctx context.Context, userID string) (*domain.Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *domain.Installation
	for _, inst := range s.installations {
		if inst.UserID != userID || !inst.IsActive {
			continue
		}
		if found == nil || inst.UpdatedAt.After(found.UpdatedAt) {
			copy := inst
			found = &copy
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

// SetInstallationActive toggles the active flag of an installation. Activating it
// deactivates the owner's other installations.
func (s *Store) SetInstallationActive(ctx context.Context, installationID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.installations[installationID]
	if !ok {
		return repository.ErrNotFound
	}
	now := s.Now()
	if active {
		for id, other := range s.installations {
			if id != installationID && other.UserID == inst.UserID && other.IsActive {
				other.IsActive = false
				other.UpdatedAt = now
				s.installations[id] = other
			}
		}
	}
	inst.IsActive = active
	inst.UpdatedAt = now
	s.installations[installationID] = inst
	return nil
}

// UpsertRepository inserts a repository keyed by GitHub id.
func (s *Store) UpsertRepository(ctx context.Context, repo *domain.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	if repo.DefaultBranch == "" {
		repo.DefaultBranch = "main"
	}
	repo.IsConnected = true
	for id, existing := range s.repositories {
		if existing.GitHubID != repo.GitHubID {
			continue
		}
		if existing.UserID != repo.UserID {
			return fmt.Errorf("%w: repository imported by another account", repository.ErrConflict)
		}
		repo.ID = existing.ID
		repo.CreatedAt = existing.CreatedAt
		repo.UpdatedAt = now
		s.repositories[id] = *repo
		return nil
	}
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = now
	}
	repo.UpdatedAt = repo.CreatedAt
	s.repositories[repo.ID] = *repo
	return nil
}

// GetRepositoryForUser returns a repository only when owned by userID.
func (s *Store) GetRepositoryForUser(ctx context.Context, id, userID string) (*domain.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repositories[id]
	if !ok || repo.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return &repo, nil
}

// ListRepositoriesByUser returns the user's repositories, newest first.
func (s *Store) ListRepositoriesByUser(ctx context.Context, userID string) ([]domain.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repos := make([]domain.Repository, 0)
	for _, repo := range s.repositories {
		if repo.UserID == userID {
			repos = append(repos, repo)
		}
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].CreatedAt.After(repos[j].CreatedAt) })
	return repos, nil
}

// CreateProject inserts a project, enforcing (owner, slug) and repository uniqueness.
func (s *Store) CreateProject(ctx context.Context, project *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.projects {
		if existing.UserID == project.UserID && existing.Slug == project.Slug {
			return repository.ErrSlugTaken
		}
		if existing.RepositoryID == project.RepositoryID {
			return fmt.Errorf("%w: project already exists for repository", repository.ErrConflict)
		}
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = s.Now()
	}
	project.UpdatedAt = project.CreatedAt
	s.projects[project.ID] = cloneProject(*project)
	return nil
}

// ProjectExistsForRepository reports whether a repository is already bound to a project.
func (s *Store) ProjectExistsForRepository(ctx context.Context, repositoryID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.RepositoryID == repositoryID {
			return true, nil
		}
	}
	return false, nil
}

// SlugExists reports whether userID already owns a project with slug.
func (s *Store) SlugExists(ctx context.Context, userID, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.UserID == userID && p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// GetProjectForUser returns a project only when owned by userID.
func (s *Store) GetProjectForUser(ctx context.Context, id, userID string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.UserID != userID {
		return nil, repository.ErrNotFound
	}
	out := cloneProject(p)
	return &out, nil
}

// ListProjectsByUser returns one page ordered by updated_at desc and the total count.
func (s *Store) ListProjectsByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Project, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := make([]domain.Project, 0)
	for _, p := range s.projects {
		if p.UserID == userID {
			owned = append(owned, cloneProject(p))
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].UpdatedAt.Equal(owned[j].UpdatedAt) {
			return owned[i].ID < owned[j].ID
		}
		return owned[i].UpdatedAt.After(owned[j].UpdatedAt)
	})
	total := len(owned)
	if offset >= total {
		return []domain.Project{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return owned[offset:end], total, nil
}

// UpdateProject writes the patchable fields of a project.
func (s *Store) UpdateProject(ctx context.Context, project *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.projects[project.ID]
	if !ok || existing.UserID != project.UserID {
		return repository.ErrNotFound
	}
	existing.Name = project.Name
	existing.Description = project.Description
	existing.BuildCommand = project.BuildCommand
	existing.StartCommand = project.StartCommand
	existing.InstallCommand = project.InstallCommand
	existing.RootDirectory = project.RootDirectory
	existing.SealedEnvironment = project.SealedEnvironment
	existing.CloudProvider = project.CloudProvider
	existing.CloudRegion = project.CloudRegion
	existing.CloudProjectID = project.CloudProjectID
	existing.TemplateCustomizations = project.TemplateCustomizations
	existing.UpdatedAt = s.Now()
	project.UpdatedAt = existing.UpdatedAt
	s.projects[project.ID] = cloneProject(existing)
	return nil
}

// TransitionProject applies a workflow change while holding the store lock.
func (s *Store) TransitionProject(ctx context.Context, id, userID string, apply func(*domain.Project) error) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.projects[id]
	if !ok || existing.UserID != userID {
		return nil, repository.ErrNotFound
	}
	working := cloneProject(existing)
	if err := apply(&working); err != nil {
		return nil, err
	}
	existing.Status = working.Status
	existing.DeploymentStatus = working.DeploymentStatus
	existing.CurrentAgent = working.CurrentAgent
	existing.WorkflowPhase = working.WorkflowPhase
	existing.Coordination = working.Coordination
	existing.DeployedAt = working.DeployedAt
	existing.UpdatedAt = s.Now()
	s.projects[id] = cloneProject(existing)
	out := cloneProject(existing)
	return &out, nil
}

// DeleteProject removes a project and its cloud resources.
func (s *Store) DeleteProject(ctx context.Context, id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.UserID != userID {
		return false, nil
	}
	delete(s.projects, id)
	delete(s.resources, id)
	return true, nil
}

// ListCloudResources returns resources recorded for a project.
func (s *Store) ListCloudResources(ctx context.Context, projectID string) ([]domain.CloudResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CloudResource{}, s.resources[projectID]...), nil
}

// ListActiveTemplates returns active deployment templates.
func (s *Store) ListActiveTemplates(ctx context.Context) ([]domain.DeploymentTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DeploymentTemplate, 0, len(s.templates))
	for _, tpl := range s.templates {
		if tpl.IsActive {
			out = append(out, tpl)
		}
	}
	return out, nil
}

// cloneProject copies the slices and maps of p so callers cannot alias stored state.
func cloneProject(p domain.Project) domain.Project {
	p.Coordination.PhaseHistory = append([]domain.WorkflowPhase(nil), p.Coordination.PhaseHistory...)
	p.Coordination.WorkflowConfig = cloneMap(p.Coordination.WorkflowConfig)
	p.Coordination.Metadata = cloneMap(p.Coordination.Metadata)
	p.DeploymentConfig = cloneMap(p.DeploymentConfig)
	p.TemplateCustomizations = cloneMap(p.TemplateCustomizations)
	p.SealedEnvironment = append([]byte(nil), p.SealedEnvironment...)
	if p.EnvironmentVariables != nil {
		env := make(map[string]string, len(p.EnvironmentVariables))
		for k, v := range p.EnvironmentVariables {
			env[k] = v
		}
		p.EnvironmentVariables = env
	}
	return p
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
