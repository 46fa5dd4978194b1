package domain

import "time"

// ProjectStatus is the coarse workflow marker of a project.
type ProjectStatus string

const (
	StatusInitializing ProjectStatus = "initializing"
	StatusAnalyzing    ProjectStatus = "analyzing"
	StatusPlanning     ProjectStatus = "planning"
	StatusGenerating   ProjectStatus = "generating"
	StatusConfiguring  ProjectStatus = "configuring"
	StatusDeploying    ProjectStatus = "deploying"
	StatusDeployed     ProjectStatus = "deployed"
	StatusFailed       ProjectStatus = "failed"
	StatusPaused       ProjectStatus = "paused"
)

// InFlightStatuses are the statuses during which a workflow is considered running.
var InFlightStatuses = []ProjectStatus{StatusAnalyzing, StatusPlanning, StatusGenerating, StatusDeploying}

// InFlight reports whether a workflow is currently running.
func (s ProjectStatus) InFlight() bool {
	for _, candidate := range InFlightStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Terminal reports whether no further service-driven transition applies.
func (s ProjectStatus) Terminal() bool {
	return s == StatusDeployed || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case StatusInitializing, StatusAnalyzing, StatusPlanning, StatusGenerating,
		StatusConfiguring, StatusDeploying, StatusDeployed, StatusFailed, StatusPaused:
		return true
	}
	return false
}

// DeploymentStatus tracks infrastructure provisioning independently of ProjectStatus.
type DeploymentStatus string

const (
	DeploymentNotStarted   DeploymentStatus = "not_started"
	DeploymentPlanning     DeploymentStatus = "planning"
	DeploymentProvisioning DeploymentStatus = "provisioning"
	DeploymentConfiguring  DeploymentStatus = "configuring"
	DeploymentDeploying    DeploymentStatus = "deploying"
	DeploymentDeployed     DeploymentStatus = "deployed"
	DeploymentFailed       DeploymentStatus = "failed"
	DeploymentDestroying   DeploymentStatus = "destroying"
	DeploymentDestroyed    DeploymentStatus = "destroyed"
)

// Cloud providers accepted on projects.
const (
	CloudGCP   = "gcp"
	CloudAWS   = "aws"
	CloudAzure = "azure"
)

// ValidCloudProvider reports whether provider is supported.
func ValidCloudProvider(provider string) bool {
	return provider == CloudGCP || provider == CloudAWS || provider == CloudAzure
}

// Project describes a deployable unit derived from an imported repository.
type Project struct {
	ID                     string            `json:"id"`
	UserID                 string            `json:"user_id"`
	RepositoryID           string            `json:"repository_id"`
	Name                   string            `json:"name"`
	Slug                   string            `json:"slug"`
	Description            *string           `json:"description"`
	Status                 ProjectStatus     `json:"status"`
	DeploymentStatus       DeploymentStatus  `json:"deployment_status"`
	Framework              *FrameworkType    `json:"framework"`
	FrameworkVersion       *string           `json:"framework_version"`
	RootDirectory          string            `json:"root_directory"`
	CurrentAgent           *string           `json:"current_agent"`
	WorkflowPhase          *WorkflowPhase    `json:"workflow_phase"`
	Coordination           Coordination      `json:"agent_coordination_data"`
	BuildCommand           *string           `json:"build_command"`
	StartCommand           *string           `json:"start_command"`
	InstallCommand         *string           `json:"install_command"`
	EnvironmentVariables   map[string]string `json:"environment_variables"`
	SealedEnvironment      []byte            `json:"-"`
	CloudProvider          string            `json:"cloud_provider"`
	CloudRegion            string            `json:"cloud_region"`
	CloudProjectID         *string           `json:"cloud_project_id"`
	DeploymentURL          *string           `json:"deployment_url"`
	DeploymentConfig       map[string]any    `json:"deployment_config"`
	TemplateID             string            `json:"template_id"`
	TemplateCustomizations map[string]any    `json:"template_customizations"`
	EstimatedMonthlyCost   *float64          `json:"estimated_monthly_cost"`
	ActualMonthlyCost      *float64          `json:"actual_monthly_cost"`
	DeployedAt             *time.Time        `json:"deployed_at"`
	LastDeploymentAttempt  *time.Time        `json:"last_deployment_attempt"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

// ProjectPatch lists the fields a generic update may change.
// Status and deployment status are only reachable through named transitions.
type ProjectPatch struct {
	Name                   *string            `json:"name"`
	Description            *string            `json:"description"`
	BuildCommand           *string            `json:"build_command"`
	StartCommand           *string            `json:"start_command"`
	InstallCommand         *string            `json:"install_command"`
	RootDirectory          *string            `json:"root_directory"`
	EnvironmentVariables   *map[string]string `json:"environment_variables"`
	CloudProvider          *string            `json:"cloud_provider"`
	CloudRegion            *string            `json:"cloud_region"`
	CloudProjectID         *string            `json:"cloud_project_id"`
	TemplateCustomizations *map[string]any    `json:"template_customizations"`
}

// Empty reports whether the patch changes nothing.
func (p ProjectPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.BuildCommand == nil &&
		p.StartCommand == nil && p.InstallCommand == nil && p.RootDirectory == nil &&
		p.EnvironmentVariables == nil && p.CloudProvider == nil && p.CloudRegion == nil &&
		p.CloudProjectID == nil && p.TemplateCustomizations == nil
}

// Apply copies the set fields of p onto project.
func (p ProjectPatch) Apply(project *Project) {
	if p.Name != nil {
		project.Name = *p.Name
	}
	if p.Description != nil {
		project.Description = p.Description
	}
	if p.BuildCommand != nil {
		project.BuildCommand = p.BuildCommand
	}
	if p.StartCommand != nil {
		project.StartCommand = p.StartCommand
	}
	if p.InstallCommand != nil {
		project.InstallCommand = p.InstallCommand
	}
	if p.RootDirectory != nil {
		project.RootDirectory = *p.RootDirectory
	}
	if p.EnvironmentVariables != nil {
		project.EnvironmentVariables = *p.EnvironmentVariables
	}
	if p.CloudProvider != nil {
		project.CloudProvider = *p.CloudProvider
	}
	if p.CloudRegion != nil {
		project.CloudRegion = *p.CloudRegion
	}
	if p.CloudProjectID != nil {
		project.CloudProjectID = p.CloudProjectID
	}
	if p.TemplateCustomizations != nil {
		project.TemplateCustomizations = *p.TemplateCustomizations
	}
}

// WorkflowStatus is the read-only workflow projection of a project.
type WorkflowStatus struct {
	ProjectID     string         `json:"project_id"`
	CurrentAgent  *string        `json:"current_agent"`
	WorkflowPhase *WorkflowPhase `json:"workflow_phase"`
	Status        ProjectStatus  `json:"status"`
	Coordination  Coordination   `json:"agent_coordination_data"`
	LastUpdated   time.Time      `json:"last_updated"`
}

// StatusOf projects the workflow fields of p.
func StatusOf(p Project) WorkflowStatus {
	return WorkflowStatus{
		ProjectID:     p.ID,
		CurrentAgent:  p.CurrentAgent,
		WorkflowPhase: p.WorkflowPhase,
		Status:        p.Status,
		Coordination:  p.Coordination,
		LastUpdated:   p.UpdatedAt,
	}
}
