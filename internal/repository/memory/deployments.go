package memory

import (
	"context"

	"github.com/hashicorp/go-memdb"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
)

// CreateDeployment appends to the ledger. A second row for the same
// (environment, version) pair is refused with repository.ErrConflict.
func (s *Store) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		for _, ref := range []struct {
			table string
			id    int64
		}{{tableEnvironments, deployment.EnvironmentID}, {tableVersions, deployment.VersionID}} {
			found, err := exists(txn, ref.table, indexID, ref.id)
			if err != nil {
				return err
			}
			if !found {
				return repository.ErrInvalidArgument
			}
		}
		taken, err := exists(txn, tableDeployments, indexEnvVersion, deployment.EnvironmentID, deployment.VersionID)
		if err != nil {
			return err
		}
		if taken {
			return repository.ErrConflict
		}
		id, err := nextID(txn, tableDeployments)
		if err != nil {
			return err
		}
		deployment.ID = id
		stored := *deployment
		return txn.Insert(tableDeployments, &stored)
	})
}

// DeleteDeployment removes one ledger row.
func (s *Store) DeleteDeployment(ctx context.Context, id int64) error {
	return s.write(ctx, func(txn *memdb.Txn) error {
		raw, err := txn.First(tableDeployments, indexID, id)
		if err != nil {
			return err
		}
		if raw == nil {
			return repository.ErrNotFound
		}
		return txn.Delete(tableDeployments, raw)
	})
}

// GetDeployment fetches the deployment of versionID to environmentID.
func (s *Store) GetDeployment(ctx context.Context, environmentID, versionID int64) (*domain.Deployment, error) {
	return first[domain.Deployment](s.read(ctx), tableDeployments, indexEnvVersion, environmentID, versionID)
}

// GetLatestDeploymentForApp returns the deployment with the highest ID among the
// deployments of every version of appID.
func (s *Store) GetLatestDeploymentForApp(ctx context.Context, appID int64) (*domain.Deployment, error) {
	txn := s.read(ctx)
	versions, err := collect[domain.Version](txn, tableVersions, indexApp, appID)
	if err != nil {
		return nil, err
	}
	var latest *domain.Deployment
	for _, v := range versions {
		deployments, err := collect[domain.Deployment](txn, tableDeployments, indexVersion, v.ID)
		if err != nil {
			return nil, err
		}
		for i := range deployments {
			if latest == nil || deployments[i].ID > latest.ID {
				latest = &deployments[i]
			}
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

// ListDeployments returns the whole ledger, newest first.
func (s *Store) ListDeployments(ctx context.Context) ([]domain.Deployment, error) {
	return s.listDeployments(ctx, true, indexID)
}

// ListDeploymentsByEnvironment returns the deployments to environmentID in creation order.
func (s *Store) ListDeploymentsByEnvironment(ctx context.Context, environmentID int64) ([]domain.Deployment, error) {
	return s.listDeployments(ctx, false, indexEnv, environmentID)
}

// ListDeploymentsByVersion returns the deployments of versionID in creation order.
func (s *Store) ListDeploymentsByVersion(ctx context.Context, versionID int64) ([]domain.Deployment, error) {
	return s.listDeployments(ctx, false, indexVersion, versionID)
}

// ListDeploymentsByRelease returns the deployments recorded by one release call.
func (s *Store) ListDeploymentsByRelease(ctx context.Context, releaseID string) ([]domain.Deployment, error) {
	if releaseID == "" {
		return []domain.Deployment{}, nil
	}
	return s.listDeployments(ctx, false, indexRelease, releaseID)
}

func (s *Store) listDeployments(ctx context.Context, desc bool, index string, args ...any) ([]domain.Deployment, error) {
	deployments, err := collect[domain.Deployment](s.read(ctx), tableDeployments, index, args...)
	if err != nil {
		return nil, err
	}
	sortByID(deployments, func(d domain.Deployment) int64 { return d.ID }, desc)
	return deployments, nil
}
