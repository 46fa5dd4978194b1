package project

import (
	"context"
	"time"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
)

// View is the detail representation of a project.
type View struct {
	domain.Project
	FrameworkInfo  *domain.FrameworkInfo  `json:"framework_info"`
	RepositoryName *string                `json:"repository_name"`
	Resources      []domain.CloudResource `json:"resources"`
}

// applyTransition mutates p for transition t. The caller has already checked t.Allows.
func applyTransition(p *domain.Project, t domain.Transition, now time.Time) {
	switch t {
	case domain.TransitionStart:
		agent := domain.AgentRepositoryAnalyzer
		phase := domain.PhaseAnalysis
		p.Status = domain.StatusAnalyzing
		p.CurrentAgent = &agent
		p.WorkflowPhase = &phase
		p.Coordination.WorkflowStarted = true
		p.Coordination.PhaseHistory = append(p.Coordination.PhaseHistory, phase)
		p.Coordination.PausedFrom = ""
		p.Coordination.FailureReason = ""
	case domain.TransitionComplete:
		phase := domain.PhaseDeployment
		p.Status = domain.StatusDeployed
		p.DeploymentStatus = domain.DeploymentDeployed
		p.CurrentAgent = nil
		p.WorkflowPhase = &phase
		p.DeployedAt = &now
		p.Coordination.PhaseHistory = append(p.Coordination.PhaseHistory, phase)
	case domain.TransitionFail:
		p.Status = domain.StatusFailed
		p.CurrentAgent = nil
		p.Coordination.PausedFrom = ""
		if p.DeploymentStatus != domain.DeploymentNotStarted && p.DeploymentStatus != domain.DeploymentDeployed {
			p.DeploymentStatus = domain.DeploymentFailed
		}
	case domain.TransitionPause:
		p.Coordination.PausedFrom = p.Status
		p.Status = domain.StatusPaused
	case domain.TransitionResume:
		resumed := p.Coordination.PausedFrom
		if !resumed.InFlight() {
			resumed = domain.StatusAnalyzing
		}
		p.Status = resumed
		p.Coordination.PausedFrom = ""
	}
}

// Describe enriches a project with framework info, repository name and cloud resources.
func (s Service) Describe(ctx context.Context, project domain.Project) (View, error) {
	view := View{Project: project, Resources: []domain.CloudResource{}}
	if project.Framework != nil {
		info := project.Framework.Info()
		view.FrameworkInfo = &info
	}
	repo, err := s.repos.GetRepositoryForUser(ctx, project.RepositoryID, project.UserID)
	if err == nil {
		name := repo.FullName
		view.RepositoryName = &name
	} else {
		s.logger.Debug("repository lookup for project view failed", "project_id", project.ID, "error", err)
	}
	resources, err := s.resources.ListCloudResources(ctx, project.ID)
	if err != nil {
		return View{}, err
	}
	view.Resources = append(view.Resources, resources...)
	return view, nil
}

// Templates lists the active deployment templates.
func (s Service) Templates(ctx context.Context) ([]domain.DeploymentTemplate, error) {
	return s.resources.ListActiveTemplates(ctx)
}
