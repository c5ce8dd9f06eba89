package repository

import (
	"context"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
)

// AppRepository persists the app forest. Keys are unique across all rows, archived ones included.
type AppRepository interface {
	CreateApp(ctx context.Context, app *domain.App) error
	UpdateApp(ctx context.Context, app *domain.App) error
	DeleteApp(ctx context.Context, id int64) error
	GetAppByID(ctx context.Context, id int64) (*domain.App, error)
	GetAppByKey(ctx context.Context, key string) (*domain.App, error)
	AppKeyExists(ctx context.Context, key string) (bool, error)
	ListComponents(ctx context.Context, parentID int64) ([]domain.App, error)
	ListApps(ctx context.Context) ([]domain.App, error)
}

// EnvironmentRepository persists environments of project roots.
type EnvironmentRepository interface {
	CreateEnvironment(ctx context.Context, env *domain.Environment) error
	UpdateEnvironment(ctx context.Context, env *domain.Environment) error
	DeleteEnvironment(ctx context.Context, id int64) error
	GetEnvironmentByID(ctx context.Context, id int64) (*domain.Environment, error)
	GetEnvironment(ctx context.Context, appID int64, name string) (*domain.Environment, error)
	ListEnvironmentsByApp(ctx context.Context, appID int64) ([]domain.Environment, error)
}

// VersionRepository persists versions. IDs are assigned in creation order.
type VersionRepository interface {
	CreateVersion(ctx context.Context, version *domain.Version) error
	UpdateVersion(ctx context.Context, version *domain.Version) error
	DeleteVersion(ctx context.Context, id int64) error
	GetVersionByID(ctx context.Context, id int64) (*domain.Version, error)
	GetVersion(ctx context.Context, appID int64, name string) (*domain.Version, error)
	ListVersionsByApp(ctx context.Context, appID int64) ([]domain.Version, error)
}

// DeploymentRepository persists the deployment ledger. (environment, version) is unique.
type DeploymentRepository interface {
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	DeleteDeployment(ctx context.Context, id int64) error
	GetDeployment(ctx context.Context, environmentID, versionID int64) (*domain.Deployment, error)
	GetLatestDeploymentForApp(ctx context.Context, appID int64) (*domain.Deployment, error)
	ListDeployments(ctx context.Context) ([]domain.Deployment, error)
	ListDeploymentsByEnvironment(ctx context.Context, environmentID int64) ([]domain.Deployment, error)
	ListDeploymentsByVersion(ctx context.Context, versionID int64) ([]domain.Deployment, error)
	ListDeploymentsByRelease(ctx context.Context, releaseID string) ([]domain.Deployment, error)
}

// Transactor runs fn inside one storage transaction. The transaction travels in the
// context handed to fn; repositories called with that context join it, and nested
// calls reuse the outer transaction. Returning an error from fn rolls back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is a complete storage backend.
type Store interface {
	AppRepository
	EnvironmentRepository
	VersionRepository
	DeploymentRepository
	Transactor
	Ping(ctx context.Context) error
	Close()
}
