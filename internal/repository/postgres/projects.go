package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
)

const projectColumns = `id, user_id, repository_id, name, slug, description, status, deployment_status,
	framework, framework_version, root_directory, current_agent, workflow_phase, agent_coordination_data,
	build_command, start_command, install_command, environment_variables, cloud_provider, cloud_region,
	cloud_project_id, deployment_url, deployment_config, template_id, template_customizations,
	estimated_monthly_cost, actual_monthly_cost, deployed_at, last_deployment_attempt, created_at, updated_at`

// CreateProject inserts a project row.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects (id, user_id, repository_id, name, slug, description, status, deployment_status,
		framework, framework_version, root_directory, agent_coordination_data, environment_variables,
		cloud_provider, cloud_region, deployment_config, template_id, template_customizations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
		RETURNING created_at, updated_at`
	coordination, err := encodeJSON(project.Coordination)
	if err != nil {
		return err
	}
	deploymentConfig, err := encodeJSON(project.DeploymentConfig)
	if err != nil {
		return err
	}
	customizations, err := encodeJSON(project.TemplateCustomizations)
	if err != nil {
		return err
	}
	var framework any
	if project.Framework != nil {
		framework = string(*project.Framework)
	}
	err = r.pool.QueryRow(ctx, query,
		project.ID,
		project.UserID,
		project.RepositoryID,
		project.Name,
		project.Slug,
		stringPtrToNil(project.Description),
		string(project.Status),
		string(project.DeploymentStatus),
		framework,
		stringPtrToNil(project.FrameworkVersion),
		project.RootDirectory,
		coordination,
		bytesToNil(project.SealedEnvironment),
		project.CloudProvider,
		project.CloudRegion,
		deploymentConfig,
		project.TemplateID,
		customizations,
		project.CreatedAt,
	).Scan(&project.CreatedAt, &project.UpdatedAt)
	return mapError(err)
}

// ProjectExistsForRepository reports whether a repository is already bound to a project.
func (r *Repository) ProjectExistsForRepository(ctx context.Context, repositoryID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM projects WHERE repository_id = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, repositoryID).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

// SlugExists reports whether userID already owns a project with slug.
func (r *Repository) SlugExists(ctx context.Context, userID, slug string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM projects WHERE user_id = $1 AND slug = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, slug).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

// GetProjectForUser returns a project only when owned by userID.
func (r *Repository) GetProjectForUser(ctx context.Context, id, userID string) (*domain.Project, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 AND user_id = $2`, id, userID)
	return scanProject(row)
}

// ListProjectsByUser returns a page of projects ordered by most recent update and the total count.
func (r *Repository) ListProjectsByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Project, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM projects WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}
	const query = `SELECT ` + projectColumns + ` FROM projects
		WHERE user_id = $1
		ORDER BY updated_at DESC, id
		OFFSET $2 LIMIT $3`
	rows, err := r.pool.Query(ctx, query, userID, offset, limit)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, *project)
	}
	return projects, total, rows.Err()
}

// UpdateProject writes the patchable columns of a project.
func (r *Repository) UpdateProject(ctx context.Context, project *domain.Project) error {
	const query = `UPDATE projects SET
		name = $3,
		description = $4,
		build_command = $5,
		start_command = $6,
		install_command = $7,
		root_directory = $8,
		environment_variables = $9,
		cloud_provider = $10,
		cloud_region = $11,
		cloud_project_id = $12,
		template_customizations = $13,
		updated_at = NOW()
	WHERE id = $1 AND user_id = $2
	RETURNING updated_at`
	customizations, err := encodeJSON(project.TemplateCustomizations)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx, query,
		project.ID,
		project.UserID,
		project.Name,
		stringPtrToNil(project.Description),
		stringPtrToNil(project.BuildCommand),
		stringPtrToNil(project.StartCommand),
		stringPtrToNil(project.InstallCommand),
		project.RootDirectory,
		bytesToNil(project.SealedEnvironment),
		project.CloudProvider,
		project.CloudRegion,
		stringPtrToNil(project.CloudProjectID),
		customizations,
	).Scan(&project.UpdatedAt)
	return mapError(err)
}

// TransitionProject applies a guarded workflow change under a row lock.
func (r *Repository) TransitionProject(ctx context.Context, id, userID string, apply func(*domain.Project) error) (*domain.Project, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID)
	project, err := scanProject(row)
	if err != nil {
		return nil, err
	}
	if err := apply(project); err != nil {
		return nil, err
	}

	coordination, err := encodeJSON(project.Coordination)
	if err != nil {
		return nil, err
	}
	var phase any
	if project.WorkflowPhase != nil {
		phase = string(*project.WorkflowPhase)
	}
	const update = `UPDATE projects SET
		status = $2,
		deployment_status = $3,
		current_agent = $4,
		workflow_phase = $5,
		agent_coordination_data = $6,
		deployed_at = $7,
		updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at`
	if err := tx.QueryRow(ctx, update,
		project.ID,
		string(project.Status),
		string(project.DeploymentStatus),
		stringPtrToNil(project.CurrentAgent),
		phase,
		coordination,
		timePtrToNil(project.DeployedAt),
	).Scan(&project.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return project, nil
}

// DeleteProject removes a project; dependent rows cascade.
func (r *Repository) DeleteProject(ctx context.Context, id, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var (
		p              domain.Project
		status         string
		deployment     string
		framework      *string
		phase          *string
		coordination   []byte
		deployConfig   []byte
		customizations []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.RepositoryID,
		&p.Name,
		&p.Slug,
		&p.Description,
		&status,
		&deployment,
		&framework,
		&p.FrameworkVersion,
		&p.RootDirectory,
		&p.CurrentAgent,
		&phase,
		&coordination,
		&p.BuildCommand,
		&p.StartCommand,
		&p.InstallCommand,
		&p.SealedEnvironment,
		&p.CloudProvider,
		&p.CloudRegion,
		&p.CloudProjectID,
		&p.DeploymentURL,
		&deployConfig,
		&p.TemplateID,
		&customizations,
		&p.EstimatedMonthlyCost,
		&p.ActualMonthlyCost,
		&p.DeployedAt,
		&p.LastDeploymentAttempt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	p.Status = domain.ProjectStatus(status)
	p.DeploymentStatus = domain.DeploymentStatus(deployment)
	if framework != nil {
		value := domain.FrameworkType(*framework)
		p.Framework = &value
	}
	if phase != nil {
		value := domain.WorkflowPhase(*phase)
		p.WorkflowPhase = &value
	}
	if err := decodeJSON(coordination, &p.Coordination); err != nil {
		return nil, err
	}
	if err := decodeJSON(deployConfig, &p.DeploymentConfig); err != nil {
		return nil, err
	}
	if err := decodeJSON(customizations, &p.TemplateCustomizations); err != nil {
		return nil, err
	}
	return &p, nil
}
