package main

import (
	"context"
	"flag"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/app/migrate"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()

	command := flag.String("command", "up", "migration command: up, status or down")
	dir := flag.String("dir", cfg.MigrationsDir, "directory holding goose SQL migrations")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "roll back to this version instead of one step (down only)")
	flag.Parse()

	log := logger.New("migrate", logger.Level(cfg.Debug))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, *dir, log)
	if err != nil {
		pool.Close()
		log.Error("failed to configure migration runner", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	commands := map[string]func(context.Context) error{
		"up":     runner.Ensure,
		"status": runner.Status,
		"down": func(ctx context.Context) error {
			return runner.Down(ctx, *target)
		},
	}
	run, ok := commands[strings.ToLower(strings.TrimSpace(*command))]
	if !ok {
		known := make([]string, 0, len(commands))
		for name := range commands {
			known = append(known, name)
		}
		sort.Strings(known)
		log.Error("unsupported command", "command", *command, "supported", strings.Join(known, ","))
		runner.Close()
		os.Exit(2)
	}

	if err := runner.Ping(ctx); err != nil {
		log.Error("database unreachable", "error", err)
		runner.Close()
		os.Exit(1)
	}
	if err := run(ctx); err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		runner.Close()
		os.Exit(1)
	}

	log.Info("migration command completed", "command", *command, "dir", *dir)
}
