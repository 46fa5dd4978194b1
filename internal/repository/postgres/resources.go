package postgres

import (
	"context"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
)

// ListCloudResources returns resources recorded for a project.
func (r *Repository) ListCloudResources(ctx context.Context, projectID string) ([]domain.CloudResource, error) {
	const query = `SELECT id, project_id, resource_type, resource_name, resource_id, status, region, config, monthly_cost, created_at, updated_at
		FROM cloud_resources WHERE project_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	resources := make([]domain.CloudResource, 0)
	for rows.Next() {
		var (
			res    domain.CloudResource
			config []byte
		)
		if err := rows.Scan(&res.ID, &res.ProjectID, &res.ResourceType, &res.ResourceName, &res.ResourceID, &res.Status, &res.Region, &config, &res.MonthlyCost, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, mapError(err)
		}
		if err := decodeJSON(config, &res.Config); err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}

// ListActiveTemplates returns deployment templates available for new projects.
func (r *Repository) ListActiveTemplates(ctx context.Context) ([]domain.DeploymentTemplate, error) {
	const query = `SELECT id, name, description, cloud_provider, frameworks, defaults, is_active, created_at
		FROM deployment_templates WHERE is_active ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	templates := make([]domain.DeploymentTemplate, 0)
	for rows.Next() {
		var (
			tpl      domain.DeploymentTemplate
			defaults []byte
		)
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Description, &tpl.CloudProvider, &tpl.Frameworks, &defaults, &tpl.IsActive, &tpl.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		if err := decodeJSON(defaults, &tpl.Defaults); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}
