package postgres

import (
	"context"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
)

const environmentColumns = `id, app_id, name, created_at`

func scanEnvironment(row rowScanner) (domain.Environment, error) {
	var env domain.Environment
	err := row.Scan(&env.ID, &env.AppID, &env.Name, &env.CreatedAt)
	return env, err
}

// CreateEnvironment inserts env and assigns its ID.
func (r *Repository) CreateEnvironment(ctx context.Context, env *domain.Environment) error {
	const query = `INSERT INTO environments (app_id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (app_id, name) DO NOTHING
		RETURNING id, created_at`
	env.CreatedAt = nowUTC(env.CreatedAt)
	err := r.db(ctx).QueryRow(ctx, query, env.AppID, env.Name, env.CreatedAt).Scan(&env.ID, &env.CreatedAt)
	return mapInsertError(err)
}

// UpdateEnvironment renames env.ID and moves it to env.AppID.
func (r *Repository) UpdateEnvironment(ctx context.Context, env *domain.Environment) error {
	const query = `UPDATE environments SET app_id = $2, name = $3 WHERE id = $1`
	tag, err := r.db(ctx).Exec(ctx, query, env.ID, env.AppID, env.Name)
	if err != nil {
		return mapWriteError(err, repository.ErrInvalidArgument)
	}
	return requireAffected(tag)
}

// DeleteEnvironment removes an environment no deployment references.
func (r *Repository) DeleteEnvironment(ctx context.Context, id int64) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM environments WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err, repository.ErrConflict)
	}
	return requireAffected(tag)
}

// GetEnvironmentByID fetches an environment by identifier.
func (r *Repository) GetEnvironmentByID(ctx context.Context, id int64) (*domain.Environment, error) {
	env, err := scanEnvironment(r.db(ctx).QueryRow(ctx, `SELECT `+environmentColumns+` FROM environments WHERE id = $1`, id))
	if err != nil {
		return nil, mapReadError(err)
	}
	return &env, nil
}

// GetEnvironment fetches the environment called name owned by appID.
func (r *Repository) GetEnvironment(ctx context.Context, appID int64, name string) (*domain.Environment, error) {
	const query = `SELECT ` + environmentColumns + ` FROM environments WHERE app_id = $1 AND name = $2`
	env, err := scanEnvironment(r.db(ctx).QueryRow(ctx, query, appID, name))
	if err != nil {
		return nil, mapReadError(err)
	}
	return &env, nil
}

// ListEnvironmentsByApp returns the environments of appID in creation order.
func (r *Repository) ListEnvironmentsByApp(ctx context.Context, appID int64) ([]domain.Environment, error) {
	const query = `SELECT ` + environmentColumns + ` FROM environments WHERE app_id = $1 ORDER BY id`
	rows, err := r.db(ctx).Query(ctx, query, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	envs := make([]domain.Environment, 0)
	for rows.Next() {
		env, err := scanEnvironment(rows)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, rows.Err()
}
