package postgres

import (
	"context"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
)

const appColumns = `id, key, name, parent_id, archived_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApp(row rowScanner) (domain.App, error) {
	var app domain.App
	err := row.Scan(&app.ID, &app.Key, &app.Name, &app.ParentID, &app.ArchivedAt, &app.CreatedAt)
	return app, err
}

// CreateApp inserts app and assigns its ID.
func (r *Repository) CreateApp(ctx context.Context, app *domain.App) error {
	const query = `INSERT INTO apps (key, name, parent_id, archived_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO NOTHING
		RETURNING id, created_at`
	app.CreatedAt = nowUTC(app.CreatedAt)
	err := r.db(ctx).QueryRow(ctx, query, app.Key, app.Name, app.ParentID, app.ArchivedAt, app.CreatedAt).
		Scan(&app.ID, &app.CreatedAt)
	return mapInsertError(err)
}

// UpdateApp rewrites key, name, parent and archive stamp of app.ID.
func (r *Repository) UpdateApp(ctx context.Context, app *domain.App) error {
	const query = `UPDATE apps SET key = $2, name = $3, parent_id = $4, archived_at = $5 WHERE id = $1`
	tag, err := r.db(ctx).Exec(ctx, query, app.ID, app.Key, app.Name, app.ParentID, app.ArchivedAt)
	if err != nil {
		return mapWriteError(err, repository.ErrInvalidArgument)
	}
	return requireAffected(tag)
}

// DeleteApp removes an app row. Remaining components, versions or environments
// surface as repository.ErrConflict.
func (r *Repository) DeleteApp(ctx context.Context, id int64) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM apps WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err, repository.ErrConflict)
	}
	return requireAffected(tag)
}

// GetAppByID fetches an app by identifier.
func (r *Repository) GetAppByID(ctx context.Context, id int64) (*domain.App, error) {
	app, err := scanApp(r.db(ctx).QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE id = $1`, id))
	if err != nil {
		return nil, mapReadError(err)
	}
	return &app, nil
}

// GetAppByKey fetches an app by key, archived keys included.
func (r *Repository) GetAppByKey(ctx context.Context, key string) (*domain.App, error) {
	app, err := scanApp(r.db(ctx).QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE key = $1`, key))
	if err != nil {
		return nil, mapReadError(err)
	}
	return &app, nil
}

// AppKeyExists reports whether any row uses key.
func (r *Repository) AppKeyExists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := r.db(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM apps WHERE key = $1)`, key).Scan(&found)
	return found, err
}

// ListComponents returns the direct children of parentID in creation order.
func (r *Repository) ListComponents(ctx context.Context, parentID int64) ([]domain.App, error) {
	return r.listApps(ctx, `SELECT `+appColumns+` FROM apps WHERE parent_id = $1 ORDER BY id`, parentID)
}

// ListApps returns every app in creation order.
func (r *Repository) ListApps(ctx context.Context) ([]domain.App, error) {
	return r.listApps(ctx, `SELECT `+appColumns+` FROM apps ORDER BY id`)
}

func (r *Repository) listApps(ctx context.Context, query string, args ...any) ([]domain.App, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apps := make([]domain.App, 0)
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
