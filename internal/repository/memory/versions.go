package memory

import (
	"context"

	"github.com/hashicorp/go-memdb"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
)

// CreateVersion inserts version and assigns the next ID.
func (s *Store) CreateVersion(ctx context.Context, version *domain.Version) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		if err := requireApp(txn, version.AppID); err != nil {
			return err
		}
		taken, err := exists(txn, tableVersions, indexAppName, version.AppID, version.Name)
		if err != nil {
			return err
		}
		if taken {
			return repository.ErrConflict
		}
		id, err := nextID(txn, tableVersions)
		if err != nil {
			return err
		}
		version.ID = id
		stored := *version
		return txn.Insert(tableVersions, &stored)
	})
}

// UpdateVersion replaces the stored row of version.ID.
func (s *Store) UpdateVersion(ctx context.Context, version *domain.Version) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		current, err := txn.First(tableVersions, indexID, version.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return repository.ErrNotFound
		}
		other, err := txn.First(tableVersions, indexAppName, version.AppID, version.Name)
		if err != nil {
			return err
		}
		if other != nil && other.(*domain.Version).ID != version.ID {
			return repository.ErrConflict
		}
		stored := *version
		return txn.Insert(tableVersions, &stored)
	})
}

// DeleteVersion removes a version no deployment references.
func (s *Store) DeleteVersion(ctx context.Context, id int64) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		raw, err := txn.First(tableVersions, indexID, id)
		if err != nil {
			return err
		}
		if raw == nil {
			return repository.ErrNotFound
		}
		referenced, err := exists(txn, tableDeployments, indexVersion, id)
		if err != nil {
			return err
		}
		if referenced {
			return repository.ErrConflict
		}
		return txn.Delete(tableVersions, raw)
	})
}

// GetVersionByID fetches a version by identifier.
func (s *Store) GetVersionByID(ctx context.Context, id int64) (*domain.Version, error) {
	return first[domain.Version](s.read(ctx), tableVersions, indexID, id)
}

// GetVersion fetches the version called name of appID.
func (s *Store) GetVersion(ctx context.Context, appID int64, name string) (*domain.Version, error) {
	return first[domain.Version](s.read(ctx), tableVersions, indexAppName, appID, name)
}

// ListVersionsByApp returns the versions of appID in creation order.
func (s *Store) ListVersionsByApp(ctx context.Context, appID int64) ([]domain.Version, error) {
	versions, err := collect[domain.Version](s.read(ctx), tableVersions, indexApp, appID)
	if err != nil {
		return nil, err
	}
	sortByID(versions, func(v domain.Version) int64 { return v.ID }, false)
	return versions, nil
}
