package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
)

func TestMapErrorTranslatesDriverErrors(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{name: "no rows", in: pgx.ErrNoRows, want: repository.ErrNotFound},
		{name: "wrapped no rows", in: fmt.Errorf("scan project: %w", pgx.ErrNoRows), want: repository.ErrNotFound},
		{name: "slug collision", in: &pgconn.PgError{Code: "23505", ConstraintName: constraintProjectSlug}, want: repository.ErrSlugTaken},
		{name: "wrapped slug collision", in: fmt.Errorf("insert project: %w", &pgconn.PgError{Code: "23505", ConstraintName: constraintProjectSlug}), want: repository.ErrSlugTaken},
		{name: "repository already has project", in: &pgconn.PgError{Code: "23505", ConstraintName: constraintProjectRepository}, want: repository.ErrConflict},
		{name: "other unique violation", in: &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}, want: repository.ErrConflict},
		{name: "foreign key", in: &pgconn.PgError{Code: "23503"}, want: repository.ErrInvalidArgument},
		{name: "check constraint", in: &pgconn.PgError{Code: "23514", Message: "violates check"}, want: repository.ErrInvalidArgument},
		{name: "bad text representation", in: &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}, want: repository.ErrInvalidArgument},
	}
	for _, tc := range cases {
		got := mapError(tc.in)
		if !errors.Is(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestMapErrorOnlySlugConstraintIsSlugTaken(t *testing.T) {
	for _, constraint := range []string{constraintProjectRepository, "users_email_key", ""} {
		got := mapError(&pgconn.PgError{Code: "23505", ConstraintName: constraint})
		if errors.Is(got, repository.ErrSlugTaken) {
			t.Fatalf("constraint %q: expected plain conflict, got slug taken", constraint)
		}
	}
}

func TestMapErrorPassesThroughUnknownErrors(t *testing.T) {
	if mapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	boom := errors.New("connection reset")
	if got := mapError(boom); got != boom {
		t.Fatalf("expected unknown error unchanged, got %v", got)
	}
	deadlock := &pgconn.PgError{Code: "40P01"}
	got := mapError(deadlock)
	if errors.Is(got, repository.ErrConflict) || errors.Is(got, repository.ErrInvalidArgument) || errors.Is(got, repository.ErrNotFound) {
		t.Fatalf("expected unmapped pg code to stay unmapped, got %v", got)
	}
}
