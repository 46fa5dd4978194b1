package domain

import "time"

// CloudResource is infrastructure recorded against a project.
type CloudResource struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"`
	ResourceType string         `json:"resource_type"`
	ResourceName string         `json:"resource_name"`
	ResourceID   *string        `json:"resource_id"`
	Status       string         `json:"status"`
	Region       *string        `json:"region"`
	Config       map[string]any `json:"config"`
	MonthlyCost  *float64       `json:"monthly_cost"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DeploymentTemplate describes a selectable deployment target.
type DeploymentTemplate struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   *string        `json:"description"`
	CloudProvider string         `json:"cloud_provider"`
	Frameworks    []string       `json:"frameworks"`
	Defaults      map[string]any `json:"defaults"`
	IsActive      bool           `json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
}
