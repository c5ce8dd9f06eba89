package memory

import (
	"context"

	"github.com/hashicorp/go-memdb"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
)

// CreateEnvironment inserts env and assigns its ID.
func (s *Store) CreateEnvironment(ctx context.Context, env *domain.Environment) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		if err := requireApp(txn, env.AppID); err != nil {
			return err
		}
		taken, err := exists(txn, tableEnvironments, indexAppName, env.AppID, env.Name)
		if err != nil {
			return err
		}
		if taken {
			return repository.ErrConflict
		}
		id, err := nextID(txn, tableEnvironments)
		if err != nil {
			return err
		}
		env.ID = id
		stored := *env
		return txn.Insert(tableEnvironments, &stored)
	})
}

// UpdateEnvironment replaces the stored row of env.ID.
func (s *Store) UpdateEnvironment(ctx context.Context, env *domain.Environment) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		current, err := txn.First(tableEnvironments, indexID, env.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return repository.ErrNotFound
		}
		if err := requireApp(txn, env.AppID); err != nil {
			return err
		}
		other, err := txn.First(tableEnvironments, indexAppName, env.AppID, env.Name)
		if err != nil {
			return err
		}
		if other != nil && other.(*domain.Environment).ID != env.ID {
			return repository.ErrConflict
		}
		stored := *env
		return txn.Insert(tableEnvironments, &stored)
	})
}

// DeleteEnvironment removes an environment no deployment references.
func (s *Store) DeleteEnvironment(ctx context.Context, id int64) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		raw, err := txn.First(tableEnvironments, indexID, id)
		if err != nil {
			return err
		}
		if raw == nil {
			return repository.ErrNotFound
		}
		referenced, err := exists(txn, tableDeployments, indexEnv, id)
		if err != nil {
			return err
		}
		if referenced {
			return repository.ErrConflict
		}
		return txn.Delete(tableEnvironments, raw)
	})
}

// GetEnvironmentByID fetches an environment by identifier.
func (s *Store) GetEnvironmentByID(ctx context.Context, id int64) (*domain.Environment, error) {
	return first[domain.Environment](s.read(ctx), tableEnvironments, indexID, id)
}

// GetEnvironment fetches the environment called name owned by appID.
func (s *Store) GetEnvironment(ctx context.Context, appID int64, name string) (*domain.Environment, error) {
	return first[domain.Environment](s.read(ctx), tableEnvironments, indexAppName, appID, name)
}

// ListEnvironmentsByApp returns the environments of appID in creation order.
func (s *Store) ListEnvironmentsByApp(ctx context.Context, appID int64) ([]domain.Environment, error) {
	envs, err := collect[domain.Environment](s.read(ctx), tableEnvironments, indexApp, appID)
	if err != nil {
		return nil, err
	}
	sortByID(envs, func(e domain.Environment) int64 { return e.ID }, false)
	return envs, nil
}

func first[T any](txn *memdb.Txn, table, index string, args ...any) (*T, error) {
	raw, err := txn.First(table, index, args...)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, repository.ErrNotFound
	}
	out := *raw.(*T)
	return &out, nil
}

func requireApp(txn *memdb.Txn, appID int64) error {
	found, err := exists(txn, tableApps, indexID, appID)
	if err != nil {
		return err
	}
	if !found {
		return repository.ErrInvalidArgument
	}
	return nil
}
