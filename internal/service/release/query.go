package release

import (
	"context"
	"fmt"
	"sort"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/app"
)

// resolver joins deployments with their environment, version and app, caching lookups.
type resolver struct {
	store    repository.Store
	apps     map[int64]*domain.App
	envs     map[int64]*domain.Environment
	versions map[int64]*domain.Version
}

func newResolver(store repository.Store) *resolver {
	return &resolver{
		store:    store,
		apps:     map[int64]*domain.App{},
		envs:     map[int64]*domain.Environment{},
		versions: map[int64]*domain.Version{},
	}
}

func (r *resolver) app(ctx context.Context, id int64) (*domain.App, error) {
	if a, ok := r.apps[id]; ok {
		return a, nil
	}
	a, err := r.store.GetAppByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve app %d: %w", id, err)
	}
	r.apps[id] = a
	return a, nil
}

func (r *resolver) env(ctx context.Context, id int64) (*domain.Environment, error) {
	if e, ok := r.envs[id]; ok {
		return e, nil
	}
	e, err := r.store.GetEnvironmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve environment %d: %w", id, err)
	}
	r.envs[id] = e
	return e, nil
}

func (r *resolver) version(ctx context.Context, id int64) (*domain.Version, error) {
	if v, ok := r.versions[id]; ok {
		return v, nil
	}
	v, err := r.store.GetVersionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve version %d: %w", id, err)
	}
	r.versions[id] = v
	return v, nil
}

func (r *resolver) view(ctx context.Context, d domain.Deployment) (domain.DeploymentView, error) {
	env, err := r.env(ctx, d.EnvironmentID)
	if err != nil {
		return domain.DeploymentView{}, err
	}
	v, err := r.version(ctx, d.VersionID)
	if err != nil {
		return domain.DeploymentView{}, err
	}
	a, err := r.app(ctx, v.AppID)
	if err != nil {
		return domain.DeploymentView{}, err
	}
	return domain.DeploymentView{
		ID:              d.ID,
		AppKey:          a.Key,
		AppName:         a.Name,
		EnvironmentName: env.Name,
		VersionName:     v.Name,
		VersionID:       v.ID,
		ReleaseID:       d.ReleaseID,
		TicketReference: d.TicketReference,
		DeployedAt:      d.DeployedAt,
	}, nil
}

// ListDeployments returns the whole ledger, newest first.
func (s Service) ListDeployments(ctx context.Context) ([]domain.DeploymentView, error) {
	deployments, err := s.ledger.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	r := newResolver(s.store)
	views := make([]domain.DeploymentView, 0, len(deployments))
	for _, d := range deployments {
		view, err := r.view(ctx, d)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// AppDetail describes key, archived apps included: its environments, direct
// components and the versions of it and every component with their deployments.
func (s Service) AppDetail(ctx context.Context, key string) (*domain.AppDetail, error) {
	a, err := s.apps.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, *a, newResolver(s.store))
}

// AllAppDetails describes every live project.
func (s Service) AllAppDetails(ctx context.Context) ([]domain.AppDetail, error) {
	projects, err := s.liveProjects(ctx)
	if err != nil {
		return nil, err
	}
	r := newResolver(s.store)
	details := make([]domain.AppDetail, 0, len(projects))
	for _, p := range projects {
		d, err := s.detail(ctx, p, r)
		if err != nil {
			return nil, err
		}
		details = append(details, *d)
	}
	return details, nil
}

func (s Service) detail(ctx context.Context, a domain.App, r *resolver) (*domain.AppDetail, error) {
	detail := &domain.AppDetail{
		Key:          a.Key,
		Name:         a.Name,
		ArchivedAt:   a.ArchivedAt,
		Environments: []string{},
		Components:   []domain.ComponentRef{},
		Versions:     map[string][]domain.VersionDetail{},
	}
	if parent, err := s.apps.Parent(ctx, a); err != nil {
		return nil, fmt.Errorf("resolve parent of %s: %w", a.Key, err)
	} else if parent != nil {
		detail.ParentKey = parent.Key
	}

	envs, err := s.envs.List(ctx, a.Key)
	if err != nil {
		return nil, err
	}
	for _, e := range envs {
		detail.Environments = append(detail.Environments, e.Name)
	}

	components, err := s.apps.Components(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	for _, c := range components {
		if c.IsArchived() && !a.IsArchived() {
			continue
		}
		detail.Components = append(detail.Components, domain.ComponentRef{Key: c.Key, Name: c.Name})
	}

	nodes, err := s.apps.Subtree(ctx, a)
	if err != nil {
		return nil, err
	}
	for _, node := range nodes {
		if node.IsArchived() && !a.IsArchived() {
			continue
		}
		versions, err := s.versionDetails(ctx, node, r)
		if err != nil {
			return nil, err
		}
		detail.Versions[node.Key] = versions
	}
	return detail, nil
}

// versionDetails lists the versions of a, newest first.
func (s Service) versionDetails(ctx context.Context, a domain.App, r *resolver) ([]domain.VersionDetail, error) {
	versions, err := s.store.ListVersionsByApp(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list versions of %s: %w", a.Key, err)
	}
	details := make([]domain.VersionDetail, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		deployments, err := s.store.ListDeploymentsByVersion(ctx, v.ID)
		if err != nil {
			return nil, fmt.Errorf("list deployments of %s %s: %w", a.Key, v.Name, err)
		}
		stamps := make(map[string]domain.DeploymentStamp, len(deployments))
		for _, d := range deployments {
			env, err := r.env(ctx, d.EnvironmentID)
			if err != nil {
				return nil, err
			}
			stamps[env.Name] = domain.DeploymentStamp{DeployedAt: d.DeployedAt, TicketReference: d.TicketReference}
		}
		details = append(details, domain.VersionDetail{
			Name:        v.Name,
			Description: v.Description,
			CreatedAt:   v.CreatedAt,
			Deployments: stamps,
		})
	}
	return details, nil
}

// ProjectOverviews reports, for every live project, the latest deployment across the
// project and its components and the apps released together with it.
func (s Service) ProjectOverviews(ctx context.Context) ([]domain.ProjectOverview, error) {
	projects, err := s.liveProjects(ctx)
	if err != nil {
		return nil, err
	}
	r := newResolver(s.store)
	overviews := make([]domain.ProjectOverview, 0, len(projects))
	for _, p := range projects {
		overview := domain.ProjectOverview{Key: p.Key, Name: p.Name, ReleasedWith: []string{}}
		latest, err := s.latestInSubtree(ctx, p)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			view, err := r.view(ctx, *latest)
			if err != nil {
				return nil, err
			}
			overview.Latest = &view
			overview.ReleasedWith, err = s.releasedWith(ctx, *latest, view.AppKey, r)
			if err != nil {
				return nil, err
			}
		}
		overviews = append(overviews, overview)
	}
	return overviews, nil
}

func (s Service) latestInSubtree(ctx context.Context, project domain.App) (*domain.Deployment, error) {
	nodes, err := s.apps.Subtree(ctx, project)
	if err != nil {
		return nil, err
	}
	var latest *domain.Deployment
	for _, node := range nodes {
		d, err := s.ledger.LatestForApp(ctx, node.ID)
		if err != nil {
			return nil, err
		}
		if d == nil {
			continue
		}
		if latest == nil || d.DeployedAt.After(latest.DeployedAt) ||
			(d.DeployedAt.Equal(latest.DeployedAt) && d.ID > latest.ID) {
			latest = d
		}
	}
	return latest, nil
}

func (s Service) releasedWith(ctx context.Context, d domain.Deployment, appKey string, r *resolver) ([]string, error) {
	if d.ReleaseID == "" {
		return []string{appKey}, nil
	}
	siblings, err := s.ledger.ListByRelease(ctx, d.ReleaseID)
	if err != nil {
		return nil, fmt.Errorf("list release %s: %w", d.ReleaseID, err)
	}
	keys := []string{}
	seen := map[string]struct{}{}
	for _, sibling := range siblings {
		view, err := r.view(ctx, sibling)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[view.AppKey]; ok {
			continue
		}
		seen[view.AppKey] = struct{}{}
		keys = append(keys, view.AppKey)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s Service) liveProjects(ctx context.Context) ([]domain.App, error) {
	all, err := s.apps.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	projects := make([]domain.App, 0, len(all))
	for _, a := range all {
		if a.IsProject() && !a.IsArchived() {
			projects = append(projects, a)
		}
	}
	return projects, nil
}

// DeleteDeployment removes the deployment of versionName of appKey to envName.
func (s Service) DeleteDeployment(ctx context.Context, appKey, envName, versionName string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		v, err := s.versions.Get(ctx, appKey, versionName)
		if err != nil {
			return err
		}
		env, err := s.envs.Find(ctx, appKey, envName)
		if err != nil {
			return err
		}
		d, err := s.ledger.Find(ctx, env.ID, v.ID)
		if err != nil {
			return err
		}
		if d == nil {
			return domain.NotManaged(domain.EntityDeployment, app.NormalizeKey(appKey), env.Name, v.Name)
		}
		return s.ledger.Delete(ctx, *d)
	})
}
