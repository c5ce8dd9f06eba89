package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/app/migrate"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/config"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", 2*time.Minute, "command timeout")
	target := flag.Int64("target", 0, "down: roll back every migration above this version")
	flag.Parse()

	cfg, err := config.LoadAPIConfig()
	log := logger.New("migrate", logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migration runner", "error", err)
		os.Exit(1)
	}
	if err := run(ctx, runner, *command, *target, log); err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
	log.Info("migration command completed", "command", *command)
}

func run(ctx context.Context, runner migrate.Runner, command string, target int64, log *slog.Logger) error {
	if err := runner.Ping(ctx); err != nil {
		return err
	}
	switch command {
	case "up":
		return runner.Ensure(ctx)
	case "down":
		return runner.Down(ctx, target)
	case "status":
		states, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, m := range states {
			state, at := "pending", "-"
			if m.Applied {
				state, at = "applied", m.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", m.Version, state, at, m.Path)
		}
		return tw.Flush()
	default:
		log.Warn("unknown command, expected up, status or down", "command", command)
		return fmt.Errorf("unsupported command %q", command)
	}
}
