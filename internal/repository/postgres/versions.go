package postgres

import (
	"context"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
)

const versionColumns = `id, app_id, name, description, created_at`

func scanVersion(row rowScanner) (domain.Version, error) {
	var v domain.Version
	err := row.Scan(&v.ID, &v.AppID, &v.Name, &v.Description, &v.CreatedAt)
	return v, err
}

// CreateVersion inserts version. The id comes from a sequence, so it grows with creation order.
func (r *Repository) CreateVersion(ctx context.Context, version *domain.Version) error {
	const query = `INSERT INTO versions (app_id, name, description, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (app_id, name) DO NOTHING
		RETURNING id, created_at`
	version.CreatedAt = nowUTC(version.CreatedAt)
	err := r.db(ctx).QueryRow(ctx, query, version.AppID, version.Name, version.Description, version.CreatedAt).
		Scan(&version.ID, &version.CreatedAt)
	return mapInsertError(err)
}

// UpdateVersion rewrites the name and description of version.ID.
func (r *Repository) UpdateVersion(ctx context.Context, version *domain.Version) error {
	const query = `UPDATE versions SET name = $2, description = $3 WHERE id = $1`
	tag, err := r.db(ctx).Exec(ctx, query, version.ID, version.Name, version.Description)
	if err != nil {
		return mapWriteError(err, repository.ErrInvalidArgument)
	}
	return requireAffected(tag)
}

// DeleteVersion removes a version no deployment references.
func (r *Repository) DeleteVersion(ctx context.Context, id int64) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM versions WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err, repository.ErrConflict)
	}
	return requireAffected(tag)
}

// GetVersionByID fetches a version by identifier.
func (r *Repository) GetVersionByID(ctx context.Context, id int64) (*domain.Version, error) {
	v, err := scanVersion(r.db(ctx).QueryRow(ctx, `SELECT `+versionColumns+` FROM versions WHERE id = $1`, id))
	if err != nil {
		return nil, mapReadError(err)
	}
	return &v, nil
}

// GetVersion fetches the version called name of appID.
func (r *Repository) GetVersion(ctx context.Context, appID int64, name string) (*domain.Version, error) {
	const query = `SELECT ` + versionColumns + ` FROM versions WHERE app_id = $1 AND name = $2`
	v, err := scanVersion(r.db(ctx).QueryRow(ctx, query, appID, name))
	if err != nil {
		return nil, mapReadError(err)
	}
	return &v, nil
}

// ListVersionsByApp returns the versions of appID in creation order.
func (r *Repository) ListVersionsByApp(ctx context.Context, appID int64) ([]domain.Version, error) {
	rows, err := r.db(ctx).Query(ctx, `SELECT `+versionColumns+` FROM versions WHERE app_id = $1 ORDER BY id`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]domain.Version, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
