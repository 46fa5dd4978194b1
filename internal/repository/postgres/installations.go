package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
)

const installationColumns = `id, user_id, installation_id, account_name, account_type, account_avatar_url, is_active, created_at, updated_at`

// LinkInstallation deactivates the user's previous installations and inserts the new one.
func (r *Repository) LinkInstallation(ctx context.Context, installation *domain.Installation) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const deactivate = `UPDATE github_installations SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND is_active AND installation_id <> $2`
	if _, err := tx.Exec(ctx, deactivate, installation.UserID, installation.InstallationID); err != nil {
		return mapError(err)
	}

	const insert = `INSERT INTO github_installations (id, user_id, installation_id, account_name, account_type, account_avatar_url, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $7)
		RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, insert,
		installation.ID,
		installation.UserID,
		installation.InstallationID,
		installation.AccountName,
		installation.AccountType,
		stringPtrToNil(installation.AccountAvatarURL),
		installation.CreatedAt,
	).Scan(&installation.CreatedAt, &installation.UpdatedAt); err != nil {
		return mapError(err)
	}
	installation.IsActive = true
	return tx.Commit(ctx)
}

// GetInstallationByGitHubID fetches an installation by its GitHub identifier.
func (r *Repository) GetInstallationByGitHubID(ctx context.Context, installationID int64) (*domain.Installation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+installationColumns+` FROM github_installations WHERE installation_id = $1`, installationID)
	return scanInstallation(row)
}

// GetActiveInstallationByUser returns the user's active installation.
func (r *Repository) GetActiveInstallationByUser(ctx context.Context, userID string) (*domain.Installation, error) {
	const query = `SELECT ` + installationColumns + ` FROM github_installations
		WHERE user_id = $1 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1`
	return scanInstallation(r.pool.QueryRow(ctx, query, userID))
}

// SetInstallationActive toggles the active flag of an installation. Activating it also
// deactivates the owner's other installations in the same transaction.
func (r *Repository) SetInstallationActive(ctx context.Context, installationID int64, active bool) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var userID string
	const lock = `SELECT user_id FROM github_installations WHERE installation_id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, lock, installationID).Scan(&userID); err != nil {
		return mapError(err)
	}
	if active {
		const deactivate = `UPDATE github_installations SET is_active = FALSE, updated_at = NOW()
			WHERE user_id = $1 AND is_active AND installation_id <> $2`
		if _, err := tx.Exec(ctx, deactivate, userID, installationID); err != nil {
			return mapError(err)
		}
	}
	const update = `UPDATE github_installations SET is_active = $2, updated_at = NOW() WHERE installation_id = $1`
	if _, err := tx.Exec(ctx, update, installationID, active); err != nil {
		return mapError(err)
	}
	return tx.Commit(ctx)
}

func scanInstallation(row pgx.Row) (*domain.Installation, error) {
	var inst domain.Installation
	if err := row.Scan(
		&inst.ID,
		&inst.UserID,
		&inst.InstallationID,
		&inst.AccountName,
		&inst.AccountType,
		&inst.AccountAvatarURL,
		&inst.IsActive,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &inst, nil
}
