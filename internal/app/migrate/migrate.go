package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/db/migrations"
)

const commandTimeout = time.Minute

// Runner applies the schema migrations of the ledger database through goose.
type Runner struct {
	pool   *pgxpool.Pool
	source string
	fsys   fs.FS
	log    *slog.Logger
}

// Migration is the state of one migration file.
type Migration struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// New returns a runner on pool. An empty migrationsDir selects the migrations
// embedded in the binary.
func New(pool *pgxpool.Pool, migrationsDir string, log *slog.Logger) (Runner, error) {
	if pool == nil {
		return Runner{}, errors.New("nil pool provided")
	}
	if log == nil {
		log = slog.Default()
	}
	if migrationsDir == "" {
		return Runner{pool: pool, source: "embedded", fsys: migrations.FS, log: log}, nil
	}
	info, err := os.Stat(migrationsDir)
	if err != nil {
		return Runner{}, fmt.Errorf("locate migrations dir: %w", err)
	}
	if !info.IsDir() {
		return Runner{}, fmt.Errorf("migrations path %s is not a directory", migrationsDir)
	}
	return Runner{pool: pool, source: migrationsDir, fsys: os.DirFS(migrationsDir), log: log}, nil
}

// Ensure applies every pending migration.
func (r Runner) Ensure(ctx context.Context) error {
	return r.withProvider(ctx, func(ctx context.Context, p *goose.Provider) error {
		r.log.Info("applying migrations", "source", r.source)
		results, err := p.Up(ctx)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		for _, res := range results {
			r.log.Info("migration applied", "version", res.Source.Version, "path", res.Source.Path, "duration", res.Duration)
		}
		r.log.Info("migrations up to date", "applied", len(results))
		return nil
	})
}

// Status lists every known migration in version order.
func (r Runner) Status(ctx context.Context) ([]Migration, error) {
	var out []Migration
	err := r.withProvider(ctx, func(ctx context.Context, p *goose.Provider) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		out = make([]Migration, 0, len(statuses))
		for _, st := range statuses {
			out = append(out, Migration{
				Version:   st.Source.Version,
				Path:      st.Source.Path,
				Applied:   st.State == goose.StateApplied,
				AppliedAt: st.AppliedAt,
			})
		}
		return nil
	})
	return out, err
}

// Down rolls back the latest migration, or every migration above targetVersion
// when it is positive.
func (r Runner) Down(ctx context.Context, targetVersion int64) error {
	return r.withProvider(ctx, func(ctx context.Context, p *goose.Provider) error {
		if targetVersion > 0 {
			r.log.Info("rolling back migrations", "target", targetVersion)
			results, err := p.DownTo(ctx, targetVersion)
			if err != nil {
				return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
			}
			r.log.Info("rollback complete", "reverted", len(results))
			return nil
		}
		res, err := p.Down(ctx)
		if err != nil {
			return fmt.Errorf("rollback latest migration: %w", err)
		}
		r.log.Info("rollback complete", "version", res.Source.Version)
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

// withProvider runs fn against a goose provider sharing the runner's pool.
func (r Runner) withProvider(ctx context.Context, fn func(context.Context, *goose.Provider) error) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer func(db *sql.DB) { _ = db.Close() }(db)

	provider, err := goose.NewProvider(goose.DialectPostgres, db, r.fsys)
	if err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return fn(runCtx, provider)
}
