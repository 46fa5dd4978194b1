package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
)

const userColumns = `id, clerk_user_id, email, full_name, first_name, last_name, username, profile_image_url,
	github_username, github_id, github_avatar_url, gcp_project_id, gcp_service_account_key, gcp_connected_at,
	preferred_cloud_provider, is_active, created_at, updated_at`

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, clerk_user_id, email, full_name, first_name, last_name, username,
		profile_image_url, github_username, github_id, github_avatar_url, preferred_cloud_provider, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING created_at, updated_at`
	provider := user.PreferredCloudProvider
	if provider == "" {
		provider = domain.CloudGCP
	}
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.ExternalID,
		user.Email,
		stringPtrToNil(user.FullName),
		stringPtrToNil(user.FirstName),
		stringPtrToNil(user.LastName),
		stringPtrToNil(user.Username),
		stringPtrToNil(user.ProfileImageURL),
		stringPtrToNil(user.GitHubUsername),
		stringPtrToNil(user.GitHubID),
		stringPtrToNil(user.GitHubAvatarURL),
		provider,
		user.IsActive,
		user.CreatedAt,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	return mapError(err)
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByExternalID retrieves a user by identity-provider subject.
func (r *Repository) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE clerk_user_id = $1`, externalID)
	return scanUser(row)
}

// UpdateUser writes profile fields and the active flag.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users SET
		email = $2,
		full_name = $3,
		first_name = $4,
		last_name = $5,
		username = $6,
		profile_image_url = $7,
		github_username = $8,
		github_id = $9,
		github_avatar_url = $10,
		is_active = $11,
		updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		stringPtrToNil(user.FullName),
		stringPtrToNil(user.FirstName),
		stringPtrToNil(user.LastName),
		stringPtrToNil(user.Username),
		stringPtrToNil(user.ProfileImageURL),
		stringPtrToNil(user.GitHubUsername),
		stringPtrToNil(user.GitHubID),
		stringPtrToNil(user.GitHubAvatarURL),
		user.IsActive,
	).Scan(&user.UpdatedAt)
	return mapError(err)
}

// UpdateGCPCredentials stores the sealed service account key for a user.
func (r *Repository) UpdateGCPCredentials(ctx context.Context, userID, projectID string, sealedKey []byte, connectedAt time.Time) error {
	const query = `UPDATE users SET gcp_project_id = $2, gcp_service_account_key = $3, gcp_connected_at = $4, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, userID, nilIfEmpty(projectID), bytesToNil(sealedKey), connectedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID,
		&u.ExternalID,
		&u.Email,
		&u.FullName,
		&u.FirstName,
		&u.LastName,
		&u.Username,
		&u.ProfileImageURL,
		&u.GitHubUsername,
		&u.GitHubID,
		&u.GitHubAvatarURL,
		&u.GCPProjectID,
		&u.GCPServiceAccountKey,
		&u.GCPConnectedAt,
		&u.PreferredCloudProvider,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}
