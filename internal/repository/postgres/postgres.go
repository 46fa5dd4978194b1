package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository         = (*Repository)(nil)
	_ repository.InstallationRepository = (*Repository)(nil)
	_ repository.CodeRepository         = (*Repository)(nil)
	_ repository.ProjectRepository      = (*Repository)(nil)
	_ repository.ResourceRepository     = (*Repository)(nil)
)

const (
	constraintProjectSlug       = "projects_user_id_slug_key"
	constraintProjectRepository = "projects_repository_id_key"
)

// mapError translates driver errors into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == constraintProjectSlug {
				return repository.ErrSlugTaken
			}
			if pgErr.ConstraintName == constraintProjectRepository {
				return fmt.Errorf("%w: project already exists for repository", repository.ErrConflict)
			}
			return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: referenced record missing", repository.ErrInvalidArgument)
		case "23514", "22P02":
			return fmt.Errorf("%w: %s", repository.ErrInvalidArgument, pgErr.Message)
		}
	}
	return err
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func stringPtrToNil(v *string) any {
	if v == nil {
		return nil
	}
	if strings.TrimSpace(*v) == "" {
		return nil
	}
	return *v
}

func bytesToNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func timePtrToNil(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

// encodeJSON renders v for a JSONB column; nil maps become an empty object.
func encodeJSON(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	if string(raw) == "null" {
		return json.RawMessage(`{}`), nil
	}
	return raw, nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}
