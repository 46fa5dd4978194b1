// Package migrate applies the goose SQL migrations in db/migrations.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const commandTimeout = time.Minute

// Runner drives goose against the shared connection pool.
type Runner struct {
	pool *pgxpool.Pool
	dir  string
	log  *slog.Logger
}

// New validates the migrations directory and returns a runner. dsn is only checked for presence;
// goose reuses pool through the pgx stdlib adapter.
func New(pool *pgxpool.Pool, dsn, migrationsDir string, log *slog.Logger) (Runner, error) {
	if pool == nil {
		return Runner{}, errors.New("nil pool provided")
	}
	if dsn == "" {
		return Runner{}, errors.New("empty database dsn")
	}
	if migrationsDir == "" {
		return Runner{}, errors.New("empty migrations directory")
	}
	info, err := os.Stat(migrationsDir)
	if err != nil {
		return Runner{}, fmt.Errorf("locate migrations dir: %w", err)
	}
	if !info.IsDir() {
		return Runner{}, fmt.Errorf("migrations path %q is not a directory", migrationsDir)
	}
	if log == nil {
		log = slog.Default()
	}
	return Runner{pool: pool, dir: migrationsDir, log: log}, nil
}

// Ensure applies every pending migration.
func (r Runner) Ensure(ctx context.Context) error {
	return r.withProvider(ctx, func(ctx context.Context, p *goose.Provider) error {
		results, err := p.Up(ctx)
		for _, res := range results {
			r.logResult(res)
		}
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		version, err := p.GetDBVersion(ctx)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		r.log.Info("migrations applied", "count", len(results), "version", version)
		return nil
	})
}

// Status logs every known migration with its state.
func (r Runner) Status(ctx context.Context) error {
	return r.withProvider(ctx, func(ctx context.Context, p *goose.Provider) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		for _, st := range statuses {
			attrs := []any{"version", st.Source.Version, "path", st.Source.Path, "state", string(st.State)}
			if !st.AppliedAt.IsZero() {
				attrs = append(attrs, "applied_at", st.AppliedAt.UTC().Format(time.RFC3339))
			}
			r.log.Info("migration", attrs...)
		}
		return nil
	})
}

// Down rolls back the latest migration, or every migration above targetVersion when it is positive.
func (r Runner) Down(ctx context.Context, targetVersion int64) error {
	return r.withProvider(ctx, func(ctx context.Context, p *goose.Provider) error {
		if targetVersion > 0 {
			r.log.Info("rolling back migrations", "target", targetVersion)
			results, err := p.DownTo(ctx, targetVersion)
			for _, res := range results {
				r.logResult(res)
			}
			if err != nil {
				return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
			}
			return nil
		}
		r.log.Info("rolling back latest migration")
		res, err := p.Down(ctx)
		if res != nil {
			r.logResult(res)
		}
		if err != nil {
			return fmt.Errorf("rollback latest migration: %w", err)
		}
		return nil
	})
}

// Ping ensures the database connection is alive.
func (r Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r Runner) Close() {
	r.pool.Close()
}

func (r Runner) withProvider(ctx context.Context, fn func(context.Context, *goose.Provider) error) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer func(db *sql.DB) { _ = db.Close() }(db)

	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(r.dir))
	if err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return fn(runCtx, provider)
}

func (r Runner) logResult(res *goose.MigrationResult) {
	if res == nil || res.Source == nil {
		return
	}
	attrs := []any{"version", res.Source.Version, "direction", res.Direction, "duration_ms", res.Duration.Milliseconds()}
	if res.Error != nil {
		r.log.Error("migration failed", append(attrs, "error", res.Error)...)
		return
	}
	r.log.Info("migration applied", attrs...)
}
