package memory

import (
	"context"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
)

// appRecord flattens the optional parent so it can be indexed. ParentID 0 means none.
type appRecord struct {
	ID         int64
	Key        string
	Name       string
	ParentID   int64
	ArchivedAt *time.Time
	CreatedAt  time.Time
}

func toAppRecord(app *domain.App) *appRecord {
	rec := &appRecord{
		ID:         app.ID,
		Key:        app.Key,
		Name:       app.Name,
		ArchivedAt: app.ArchivedAt,
		CreatedAt:  app.CreatedAt,
	}
	if app.ParentID != nil {
		rec.ParentID = *app.ParentID
	}
	return rec
}

func (r appRecord) toDomain() domain.App {
	app := domain.App{
		ID:         r.ID,
		Key:        r.Key,
		Name:       r.Name,
		ArchivedAt: r.ArchivedAt,
		CreatedAt:  r.CreatedAt,
	}
	if r.ParentID != 0 {
		parent := r.ParentID
		app.ParentID = &parent
	}
	return app
}

// CreateApp inserts app and assigns its ID.
func (s *Store) CreateApp(ctx context.Context, app *domain.App) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		taken, err := exists(txn, tableApps, indexKey, app.Key)
		if err != nil {
			return err
		}
		if taken {
			return repository.ErrConflict
		}
		if err := requireParent(txn, app.ParentID); err != nil {
			return err
		}
		id, err := nextID(txn, tableApps)
		if err != nil {
			return err
		}
		app.ID = id
		return txn.Insert(tableApps, toAppRecord(app))
	})
}

// UpdateApp replaces the stored row of app.ID.
func (s *Store) UpdateApp(ctx context.Context, app *domain.App) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		current, err := txn.First(tableApps, indexID, app.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return repository.ErrNotFound
		}
		other, err := txn.First(tableApps, indexKey, app.Key)
		if err != nil {
			return err
		}
		if other != nil && other.(*appRecord).ID != app.ID {
			return repository.ErrConflict
		}
		if err := requireParent(txn, app.ParentID); err != nil {
			return err
		}
		return txn.Insert(tableApps, toAppRecord(app))
	})
}

// DeleteApp removes an app that no longer owns components, versions or environments.
func (s *Store) DeleteApp(ctx context.Context, id int64) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		raw, err := txn.First(tableApps, indexID, id)
		if err != nil {
			return err
		}
		if raw == nil {
			return repository.ErrNotFound
		}
		for _, dep := range []struct{ table, index string }{
			{tableApps, indexParent},
			{tableVersions, indexApp},
			{tableEnvironments, indexApp},
		} {
			referenced, err := exists(txn, dep.table, dep.index, id)
			if err != nil {
				return err
			}
			if referenced {
				return repository.ErrConflict
			}
		}
		return txn.Delete(tableApps, raw)
	})
}

// GetAppByID fetches an app by identifier.
func (s *Store) GetAppByID(ctx context.Context, id int64) (*domain.App, error) {
	raw, err := s.read(ctx).First(tableApps, indexID, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, repository.ErrNotFound
	}
	app := raw.(*appRecord).toDomain()
	return &app, nil
}

// GetAppByKey fetches an app by key, archived keys included.
func (s *Store) GetAppByKey(ctx context.Context, key string) (*domain.App, error) {
	raw, err := s.read(ctx).First(tableApps, indexKey, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, repository.ErrNotFound
	}
	app := raw.(*appRecord).toDomain()
	return &app, nil
}

// AppKeyExists reports whether any row uses key.
func (s *Store) AppKeyExists(ctx context.Context, key string) (bool, error) {
	return exists(s.read(ctx), tableApps, indexKey, key)
}

// ListComponents returns the direct children of parentID in creation order.
func (s *Store) ListComponents(ctx context.Context, parentID int64) ([]domain.App, error) {
	return s.listApps(s.read(ctx), indexParent, parentID)
}

// ListApps returns every app in creation order.
func (s *Store) ListApps(ctx context.Context) ([]domain.App, error) {
	return s.listApps(s.read(ctx), indexID)
}

func (s *Store) listApps(txn *memdb.Txn, index string, args ...any) ([]domain.App, error) {
	records, err := collect[appRecord](txn, tableApps, index, args...)
	if err != nil {
		return nil, err
	}
	sortByID(records, func(r appRecord) int64 { return r.ID }, false)
	apps := make([]domain.App, 0, len(records))
	for _, rec := range records {
		apps = append(apps, rec.toDomain())
	}
	return apps, nil
}

func requireParent(txn *memdb.Txn, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	found, err := exists(txn, tableApps, indexID, *parentID)
	if err != nil {
		return err
	}
	if !found {
		return repository.ErrInvalidArgument
	}
	return nil
}
