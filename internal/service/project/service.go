package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/slug"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/crypto"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	defaultTemplateID    = "gcp-cloud-run"
	defaultRegion        = "us-central1"
	defaultRootDirectory = "./"
	defaultListLimit     = 50
	maxListLimit         = 100
)

// CreateInput encapsulates project creation attributes.
type CreateInput struct {
	RepositoryID string  `json:"repository_id"`
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	TemplateID   string  `json:"template_id"`
}

// WorkflowConfig is the caller-supplied configuration recorded when a workflow starts.
type WorkflowConfig struct {
	WorkflowType     string         `json:"workflow_type"`
	CloudProvider    string         `json:"cloud_provider"`
	DeploymentConfig map[string]any `json:"deployment_config"`
}

// ListResult is one page of projects plus the owner's total.
type ListResult struct {
	Projects []domain.Project `json:"projects"`
	Total    int              `json:"total"`
	Skip     int              `json:"skip"`
	Limit    int              `json:"limit"`
}

// Notifier receives serialized project events.
type Notifier interface {
	Broadcast(projectID string, payload []byte)
}

// Event is published whenever a project changes.
type Event struct {
	Type          string                `json:"type"`
	ProjectID     string                `json:"project_id"`
	Status        domain.ProjectStatus  `json:"status"`
	WorkflowPhase *domain.WorkflowPhase `json:"workflow_phase"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Service orchestrates project management.
type Service struct {
	projects  repository.ProjectRepository
	repos     repository.CodeRepository
	resources repository.ResourceRepository
	slugs     slug.Generator
	notifier  Notifier
	logger    *slog.Logger
	cfg       config.APIConfig
}

// New returns a project service.
func New(projects repository.ProjectRepository, repos repository.CodeRepository, resources repository.ResourceRepository, notifier Notifier, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{
		projects:  projects,
		repos:     repos,
		resources: resources,
		slugs:     slug.NewGenerator(projects),
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

var (
	errInvalidProjectName = fmt.Errorf("%w: project name must be 1-%d characters", repository.ErrInvalidArgument, maxNameLength)
	errInvalidDescription = fmt.Errorf("%w: description must be at most %d characters", repository.ErrInvalidArgument, maxDescriptionLength)
	errInvalidProvider    = fmt.Errorf("%w: cloud provider must be gcp, aws or azure", repository.ErrInvalidArgument)
	errInvalidRegion      = fmt.Errorf("%w: cloud region must not be empty", repository.ErrInvalidArgument)
	errInvalidRootDir     = fmt.Errorf("%w: root directory must not be empty", repository.ErrInvalidArgument)
	errRepositoryAccess   = fmt.Errorf("%w: repository not found or access denied", repository.ErrNotFound)
	errProjectNotFound    = fmt.Errorf("%w: project not found", repository.ErrNotFound)
	errProjectExists      = fmt.Errorf("%w: project already exists for this repository", repository.ErrConflict)
	errSlugExhausted      = fmt.Errorf("%w: could not allocate a unique slug", repository.ErrConflict)

	// ErrInvalidTransition reports a named transition fired from a status that does not allow it.
	ErrInvalidTransition = fmt.Errorf("%w: transition not allowed from current status", repository.ErrConflict)
)

// Create converts an imported repository owned by owner into a project.
func (s Service) Create(ctx context.Context, owner string, input CreateInput) (*domain.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, errInvalidProjectName
	}
	description, err := normalizeDescription(input.Description)
	if err != nil {
		return nil, err
	}
	templateID := strings.TrimSpace(input.TemplateID)
	if templateID == "" {
		templateID = defaultTemplateID
	}
	if !validID(input.RepositoryID) {
		return nil, errRepositoryAccess
	}

	repo, err := s.repos.GetRepositoryForUser(ctx, input.RepositoryID, owner)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errRepositoryAccess
		}
		return nil, err
	}
	exists, err := s.projects.ProjectExistsForRepository(ctx, repo.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errProjectExists
	}

	var language string
	if repo.Language != nil {
		language = *repo.Language
	}
	base := slug.Normalize(name)
	attempts := s.cfg.SlugInsertTries
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		candidate, err := s.slugs.MakeUnique(ctx, base, owner)
		if err != nil {
			return nil, err
		}
		project := &domain.Project{
			ID:               uuid.NewString(),
			UserID:           owner,
			RepositoryID:     repo.ID,
			Name:             name,
			Slug:             candidate,
			Description:      description,
			Status:           domain.StatusInitializing,
			DeploymentStatus: domain.DeploymentNotStarted,
			Framework:        domain.FrameworkForLanguage(language),
			RootDirectory:    defaultRootDirectory,
			CloudProvider:    domain.CloudGCP,
			CloudRegion:      defaultRegion,
			TemplateID:       templateID,
			CreatedAt:        time.Now().UTC(),
		}
		err = s.projects.CreateProject(ctx, project)
		if errors.Is(err, repository.ErrSlugTaken) {
			s.logger.Warn("slug collision on insert, retrying", "slug", candidate, "user_id", owner, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("project created", "project_id", project.ID, "repository_id", repo.ID, "slug", project.Slug, "user_id", owner)
		s.publish("project.created", *project)
		return project, nil
	}
	return nil, errSlugExhausted
}

// Get returns a project owned by owner. Projects of other users are reported as not found.
func (s Service) Get(ctx context.Context, projectID, owner string) (*domain.Project, error) {
	if !validID(projectID) {
		return nil, errProjectNotFound
	}
	project, err := s.projects.GetProjectForUser(ctx, projectID, owner)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errProjectNotFound
		}
		return nil, err
	}
	s.openEnvironment(project)
	return project, nil
}

// List returns the owner's projects, most recently updated first.
func (s Service) List(ctx context.Context, owner string, skip, limit int) (ListResult, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	projects, total, err := s.projects.ListProjectsByUser(ctx, owner, skip, limit)
	if err != nil {
		return ListResult{}, err
	}
	for i := range projects {
		s.openEnvironment(&projects[i])
	}
	return ListResult{Projects: projects, Total: total, Skip: skip, Limit: limit}, nil
}

// Update applies patch to a project. An empty patch returns the project unchanged.
func (s Service) Update(ctx context.Context, projectID, owner string, patch domain.ProjectPatch) (*domain.Project, error) {
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}
	project, err := s.Get(ctx, projectID, owner)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return project, nil
	}
	patch.Apply(project)
	// Untouched variables keep their stored ciphertext, even when it no longer decrypts.
	if patch.EnvironmentVariables != nil {
		if err := s.sealEnvironment(project); err != nil {
			return nil, err
		}
	}
	if err := s.projects.UpdateProject(ctx, project); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errProjectNotFound
		}
		return nil, err
	}
	s.logger.Info("project updated", "project_id", project.ID, "user_id", owner)
	s.publish("project.updated", *project)
	return project, nil
}

// Delete removes a project and its dependents. It reports whether a project was removed.
func (s Service) Delete(ctx context.Context, projectID, owner string) (bool, error) {
	if !validID(projectID) {
		return false, nil
	}
	deleted, err := s.projects.DeleteProject(ctx, projectID, owner)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("project deleted", "project_id", projectID, "user_id", owner)
		s.publish("project.deleted", domain.Project{ID: projectID, UpdatedAt: time.Now().UTC()})
	}
	return deleted, nil
}

// StartWorkflow marks the project as analyzing. It returns false without error when the
// project is not visible to owner or a workflow is already in flight.
func (s Service) StartWorkflow(ctx context.Context, projectID, owner string, cfg WorkflowConfig) (bool, error) {
	_, err := s.transition(ctx, projectID, owner, domain.TransitionStart, func(p *domain.Project) {
		p.Coordination.WorkflowConfig = cfg.asMap()
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, ErrInvalidTransition):
		return false, nil
	default:
		return false, err
	}
}

// Transition fires a named status change. reason is recorded for failures.
func (s Service) Transition(ctx context.Context, projectID, owner string, t domain.Transition, reason string) (*domain.Project, error) {
	return s.transition(ctx, projectID, owner, t, func(p *domain.Project) {
		if t == domain.TransitionFail {
			p.Coordination.FailureReason = strings.TrimSpace(reason)
		}
	})
}

// WorkflowStatus returns the workflow projection of a project.
func (s Service) WorkflowStatus(ctx context.Context, projectID, owner string) (*domain.WorkflowStatus, error) {
	project, err := s.Get(ctx, projectID, owner)
	if err != nil {
		return nil, err
	}
	status := domain.StatusOf(*project)
	return &status, nil
}

func (s Service) transition(ctx context.Context, projectID, owner string, t domain.Transition, extra func(*domain.Project)) (*domain.Project, error) {
	if !validID(projectID) {
		return nil, errProjectNotFound
	}
	var from domain.ProjectStatus
	project, err := s.projects.TransitionProject(ctx, projectID, owner, func(p *domain.Project) error {
		from = p.Status
		if !t.Allows(p.Status) {
			return ErrInvalidTransition
		}
		applyTransition(p, t, time.Now().UTC())
		if extra != nil {
			extra(p)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errProjectNotFound
		}
		if errors.Is(err, ErrInvalidTransition) {
			s.logger.Info("project transition rejected", "project_id", projectID, "transition", t, "status", from)
			return nil, fmt.Errorf("%w: cannot %s a project in status %s", ErrInvalidTransition, t, from)
		}
		return nil, err
	}
	s.openEnvironment(project)
	s.logger.Info("project transitioned", "project_id", projectID, "transition", t, "from", from, "to", project.Status, "user_id", owner)
	s.publish("project."+string(t), *project)
	return project, nil
}

func (s Service) sealEnvironment(project *domain.Project) error {
	if len(project.EnvironmentVariables) == 0 {
		project.SealedEnvironment = nil
		return nil
	}
	sealed, err := crypto.EncryptJSON(s.cfg.EncryptionKey, project.EnvironmentVariables)
	if err != nil {
		return fmt.Errorf("seal environment variables: %w", err)
	}
	project.SealedEnvironment = sealed
	return nil
}

func (s Service) openEnvironment(project *domain.Project) {
	project.EnvironmentVariables = map[string]string{}
	if len(project.SealedEnvironment) == 0 {
		return
	}
	if err := crypto.DecryptJSON(s.cfg.EncryptionKey, project.SealedEnvironment, &project.EnvironmentVariables); err != nil {
		s.logger.Warn("failed to decrypt environment variables", "project_id", project.ID, "error", err)
		project.EnvironmentVariables = map[string]string{}
	}
}

func (s Service) publish(eventType string, project domain.Project) {
	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(Event{
		Type:          eventType,
		ProjectID:     project.ID,
		Status:        project.Status,
		WorkflowPhase: project.WorkflowPhase,
		UpdatedAt:     project.UpdatedAt,
	})
	if err != nil {
		s.logger.Warn("failed to encode project event", "project_id", project.ID, "error", err)
		return
	}
	s.notifier.Broadcast(project.ID, payload)
}

func (c WorkflowConfig) asMap() map[string]any {
	out := map[string]any{
		"workflow_type":  c.WorkflowType,
		"cloud_provider": c.CloudProvider,
	}
	if c.WorkflowType == "" {
		out["workflow_type"] = "full_deployment"
	}
	if c.CloudProvider == "" {
		out["cloud_provider"] = domain.CloudGCP
	}
	if c.DeploymentConfig != nil {
		out["deployment_config"] = c.DeploymentConfig
	}
	return out
}

func normalizeDescription(description *string) (*string, error) {
	if description == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*description)
	if utf8.RuneCountInString(trimmed) > maxDescriptionLength {
		return nil, errInvalidDescription
	}
	if trimmed == "" {
		return nil, nil
	}
	return &trimmed, nil
}

func validatePatch(patch *domain.ProjectPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" || utf8.RuneCountInString(name) > maxNameLength {
			return errInvalidProjectName
		}
		patch.Name = &name
	}
	if patch.Description != nil {
		description, err := normalizeDescription(patch.Description)
		if err != nil {
			return err
		}
		if description == nil {
			empty := ""
			description = &empty
		}
		patch.Description = description
	}
	if patch.CloudProvider != nil && !domain.ValidCloudProvider(*patch.CloudProvider) {
		return errInvalidProvider
	}
	if patch.CloudRegion != nil && strings.TrimSpace(*patch.CloudRegion) == "" {
		return errInvalidRegion
	}
	if patch.RootDirectory != nil && strings.TrimSpace(*patch.RootDirectory) == "" {
		return errInvalidRootDir
	}
	return nil
}

func validID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}
