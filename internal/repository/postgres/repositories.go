package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
)

const repositoryColumns = `id, user_id, installation_id, github_id, name, full_name, description, html_url, clone_url,
	ssh_url, language, default_branch, is_private, is_fork, is_connected, last_analyzed_at, created_at, updated_at`

// UpsertRepository inserts a repository or refreshes metadata when the same user imports it again.
func (r *Repository) UpsertRepository(ctx context.Context, repo *domain.Repository) error {
	const query = `INSERT INTO repositories (id, user_id, installation_id, github_id, name, full_name, description, html_url,
		clone_url, ssh_url, language, default_branch, is_private, is_fork, is_connected, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, TRUE, $15, $15)
		ON CONFLICT (github_id) DO UPDATE SET
			installation_id = EXCLUDED.installation_id,
			name = EXCLUDED.name,
			full_name = EXCLUDED.full_name,
			description = EXCLUDED.description,
			html_url = EXCLUDED.html_url,
			clone_url = EXCLUDED.clone_url,
			ssh_url = EXCLUDED.ssh_url,
			language = EXCLUDED.language,
			default_branch = EXCLUDED.default_branch,
			is_private = EXCLUDED.is_private,
			is_fork = EXCLUDED.is_fork,
			is_connected = TRUE,
			updated_at = NOW()
		WHERE repositories.user_id = EXCLUDED.user_id
		RETURNING id, created_at, updated_at`
	branch := repo.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	err := r.pool.QueryRow(ctx, query,
		repo.ID,
		repo.UserID,
		stringPtrToNil(repo.InstallationID),
		repo.GitHubID,
		repo.Name,
		repo.FullName,
		stringPtrToNil(repo.Description),
		repo.HTMLURL,
		repo.CloneURL,
		stringPtrToNil(repo.SSHURL),
		stringPtrToNil(repo.Language),
		branch,
		repo.IsPrivate,
		repo.IsFork,
		repo.CreatedAt,
	).Scan(&repo.ID, &repo.CreatedAt, &repo.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflicting row belongs to another user, so the WHERE clause skipped the update.
		return fmt.Errorf("%w: repository imported by another account", repository.ErrConflict)
	}
	if err != nil {
		return mapError(err)
	}
	repo.DefaultBranch = branch
	repo.IsConnected = true
	return nil
}

// GetRepositoryForUser returns a repository only when owned by userID.
func (r *Repository) GetRepositoryForUser(ctx context.Context, id, userID string) (*domain.Repository, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = $1 AND user_id = $2`, id, userID)
	return scanRepository(row)
}

// ListRepositoriesByUser returns the user's imported repositories, newest first.
func (r *Repository) ListRepositoriesByUser(ctx context.Context, userID string) ([]domain.Repository, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	repos := make([]domain.Repository, 0)
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *repo)
	}
	return repos, rows.Err()
}

func scanRepository(row pgx.Row) (*domain.Repository, error) {
	var repo domain.Repository
	if err := row.Scan(
		&repo.ID,
		&repo.UserID,
		&repo.InstallationID,
		&repo.GitHubID,
		&repo.Name,
		&repo.FullName,
		&repo.Description,
		&repo.HTMLURL,
		&repo.CloneURL,
		&repo.SSHURL,
		&repo.Language,
		&repo.DefaultBranch,
		&repo.IsPrivate,
		&repo.IsFork,
		&repo.IsConnected,
		&repo.LastAnalyzedAt,
		&repo.CreatedAt,
		&repo.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &repo, nil
}
