package postgres

import (
	"context"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
)

const deploymentColumns = `d.id, d.environment_id, d.version_id, d.release_id, d.ticket_reference, d.deployed_at`

func scanDeployment(row rowScanner) (domain.Deployment, error) {
	var d domain.Deployment
	err := row.Scan(&d.ID, &d.EnvironmentID, &d.VersionID, &d.ReleaseID, &d.TicketReference, &d.DeployedAt)
	return d, err
}

// CreateDeployment appends to the ledger. The unique (environment_id, version_id)
// constraint is the serialization point between concurrent releases.
func (r *Repository) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	const query = `INSERT INTO deployments (environment_id, version_id, release_id, ticket_reference, deployed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (environment_id, version_id) DO NOTHING
		RETURNING id`
	deployment.DeployedAt = nowUTC(deployment.DeployedAt)
	err := r.db(ctx).QueryRow(ctx, query,
		deployment.EnvironmentID,
		deployment.VersionID,
		deployment.ReleaseID,
		deployment.TicketReference,
		deployment.DeployedAt,
	).Scan(&deployment.ID)
	return mapInsertError(err)
}

// DeleteDeployment removes one ledger row.
func (r *Repository) DeleteDeployment(ctx context.Context, id int64) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM deployments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(tag)
}

// GetDeployment fetches the deployment of versionID to environmentID.
func (r *Repository) GetDeployment(ctx context.Context, environmentID, versionID int64) (*domain.Deployment, error) {
	const query = `SELECT ` + deploymentColumns + ` FROM deployments d WHERE d.environment_id = $1 AND d.version_id = $2`
	d, err := scanDeployment(r.db(ctx).QueryRow(ctx, query, environmentID, versionID))
	if err != nil {
		return nil, mapReadError(err)
	}
	return &d, nil
}

// GetLatestDeploymentForApp returns the deployment with the highest id among the
// deployments of every version of appID.
func (r *Repository) GetLatestDeploymentForApp(ctx context.Context, appID int64) (*domain.Deployment, error) {
	const query = `SELECT ` + deploymentColumns + `
		FROM deployments d
		INNER JOIN versions v ON v.id = d.version_id
		WHERE v.app_id = $1
		ORDER BY d.id DESC
		LIMIT 1`
	d, err := scanDeployment(r.db(ctx).QueryRow(ctx, query, appID))
	if err != nil {
		return nil, mapReadError(err)
	}
	return &d, nil
}

// ListDeployments returns the whole ledger, newest first.
func (r *Repository) ListDeployments(ctx context.Context) ([]domain.Deployment, error) {
	return r.listDeployments(ctx, `SELECT `+deploymentColumns+` FROM deployments d ORDER BY d.id DESC`)
}

// ListDeploymentsByEnvironment returns the deployments to environmentID in creation order.
func (r *Repository) ListDeploymentsByEnvironment(ctx context.Context, environmentID int64) ([]domain.Deployment, error) {
	return r.listDeployments(ctx, `SELECT `+deploymentColumns+` FROM deployments d WHERE d.environment_id = $1 ORDER BY d.id`, environmentID)
}

// ListDeploymentsByVersion returns the deployments of versionID in creation order.
func (r *Repository) ListDeploymentsByVersion(ctx context.Context, versionID int64) ([]domain.Deployment, error) {
	return r.listDeployments(ctx, `SELECT `+deploymentColumns+` FROM deployments d WHERE d.version_id = $1 ORDER BY d.id`, versionID)
}

// ListDeploymentsByRelease returns the deployments recorded by one release call.
func (r *Repository) ListDeploymentsByRelease(ctx context.Context, releaseID string) ([]domain.Deployment, error) {
	if releaseID == "" {
		return []domain.Deployment{}, nil
	}
	return r.listDeployments(ctx, `SELECT `+deploymentColumns+` FROM deployments d WHERE d.release_id = $1 ORDER BY d.id`, releaseID)
}

func (r *Repository) listDeployments(ctx context.Context, query string, args ...any) ([]domain.Deployment, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deployments := make([]domain.Deployment, 0)
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	return deployments, rows.Err()
}
