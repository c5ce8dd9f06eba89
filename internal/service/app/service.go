package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/archive"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
)

// CreateInput holds the attributes of a new app.
type CreateInput struct {
	Key       string
	Name      string
	ParentKey string
}

// UpdateInput replaces key, name and parent of an app. Empty Key or Name keep the
// current value; an empty ParentKey turns the app into a project.
type UpdateInput struct {
	Key       string
	Name      string
	ParentKey string
}

// Service maintains the app forest.
type Service struct {
	store    repository.Store
	counters archive.Counters
	logger   *slog.Logger
	now      func() time.Time
}

// New returns an app service.
func New(store repository.Store, counters archive.Counters, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Service{
		store:    store,
		counters: counters,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// NormalizeKey trims and lower-cases an app key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func validateKey(key string) error {
	if key == "" {
		return domain.InvalidArgument("app key is required")
	}
	if !keyPattern.MatchString(key) {
		return domain.InvalidArgument("app key %q may only contain letters, digits, '.', '_' and '-'", key)
	}
	return nil
}

// Create registers a new app, optionally as a component of parentKey.
func (s Service) Create(ctx context.Context, in CreateInput) (*domain.App, error) {
	key := NormalizeKey(in.Key)
	if err := validateKey(key); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.InvalidArgument("app name is required")
	}
	parentKey := NormalizeKey(in.ParentKey)
	if parentKey == key {
		return nil, &domain.Error{Kind: domain.KindCyclicParenting, Entity: domain.EntityApp, Keys: []string{key}}
	}

	app := &domain.App{Key: key, Name: name, CreatedAt: s.now()}
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		taken, err := s.store.AppKeyExists(ctx, key)
		if err != nil {
			return err
		}
		if taken {
			return domain.DuplicateKey(domain.EntityApp, key)
		}
		if parentKey != "" {
			parent, err := s.GetLive(ctx, parentKey)
			if err != nil {
				return err
			}
			app.ParentID = &parent.ID
		}
		if err := s.store.CreateApp(ctx, app); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return domain.DuplicateKey(domain.EntityApp, key)
			}
			return fmt.Errorf("create app: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("app created", "app_key", app.Key, "parent_key", parentKey)
	return app, nil
}

// Update changes key, name and parent of the live app key.
func (s Service) Update(ctx context.Context, key string, in UpdateInput) (*domain.App, error) {
	var app *domain.App
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		app, err = s.GetLive(ctx, key)
		if err != nil {
			return err
		}
		newKey := app.Key
		if k := NormalizeKey(in.Key); k != "" {
			if err := validateKey(k); err != nil {
				return err
			}
			newKey = k
		}
		if newKey != app.Key {
			taken, err := s.store.AppKeyExists(ctx, newKey)
			if err != nil {
				return err
			}
			if taken {
				return domain.DuplicateKey(domain.EntityApp, newKey)
			}
		}

		var parentID *int64
		if parentKey := NormalizeKey(in.ParentKey); parentKey != "" {
			parent, err := s.GetLive(ctx, parentKey)
			if err != nil {
				return err
			}
			cyclic, err := s.wouldCycle(ctx, app.ID, parent.ID)
			if err != nil {
				return err
			}
			if cyclic {
				return &domain.Error{Kind: domain.KindCyclicParenting, Entity: domain.EntityApp, Keys: []string{app.Key, parent.Key}}
			}
			parentID = &parent.ID
		}

		app.Key = newKey
		if name := strings.TrimSpace(in.Name); name != "" {
			app.Name = name
		}
		app.ParentID = parentID
		if err := s.store.UpdateApp(ctx, app); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return domain.DuplicateKey(domain.EntityApp, newKey)
			}
			return fmt.Errorf("update app: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("app updated", "app_key", app.Key, "previous_key", NormalizeKey(key))
	return app, nil
}

// Archive soft deletes key and its components. Each archived node is renamed to
// "{key} (archive #{n})" so the key can be reused. Archiving an archived app is a no-op.
func (s Service) Archive(ctx context.Context, key string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		app, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		return s.archiveTree(ctx, *app)
	})
}

func (s Service) archiveTree(ctx context.Context, app domain.App) error {
	components, err := s.store.ListComponents(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("list components: %w", err)
	}
	for _, component := range components {
		if err := s.archiveTree(ctx, component); err != nil {
			return err
		}
	}
	if app.IsArchived() {
		return nil
	}

	original := app.Key
	for {
		n, err := s.counters.Next(ctx, original)
		if err != nil {
			return fmt.Errorf("archive counter: %w", err)
		}
		candidate := archive.ArchivedKey(original, n)
		taken, err := s.store.AppKeyExists(ctx, candidate)
		if err != nil {
			return err
		}
		if !taken {
			app.Key = candidate
			break
		}
	}
	archivedAt := s.now()
	app.ArchivedAt = &archivedAt
	if err := s.store.UpdateApp(ctx, &app); err != nil {
		return fmt.Errorf("archive app: %w", err)
	}
	s.logger.Info("app archived", "app_key", original, "archived_key", app.Key)
	return nil
}

// Delete archives key when hard is false. Otherwise it removes key and its whole
// subtree with their versions and environments, components first. Nothing is removed
// when any node of the subtree has deployments.
func (s Service) Delete(ctx context.Context, key string, hard bool) error {
	if !hard {
		return s.Archive(ctx, key)
	}
	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		app, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		subtree, err := s.Subtree(ctx, *app)
		if err != nil {
			return err
		}
		var blocked []string
		for _, node := range subtree {
			deployed, err := s.hasDeployments(ctx, node)
			if err != nil {
				return err
			}
			if deployed {
				blocked = append(blocked, node.Key)
			}
		}
		if len(blocked) > 0 {
			return domain.HasDeployments(domain.EntityApp, blocked...)
		}
		return s.deleteTree(ctx, *app)
	})
}

func (s Service) deleteTree(ctx context.Context, app domain.App) error {
	components, err := s.store.ListComponents(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("list components: %w", err)
	}
	for _, component := range components {
		if err := s.deleteTree(ctx, component); err != nil {
			return err
		}
	}
	versions, err := s.store.ListVersionsByApp(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}
	for _, v := range versions {
		if err := s.store.DeleteVersion(ctx, v.ID); err != nil {
			return fmt.Errorf("delete version %s: %w", v.Name, err)
		}
	}
	envs, err := s.store.ListEnvironmentsByApp(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("list environments: %w", err)
	}
	for _, env := range envs {
		if err := s.store.DeleteEnvironment(ctx, env.ID); err != nil {
			return fmt.Errorf("delete environment %s: %w", env.Name, err)
		}
	}
	if err := s.store.DeleteApp(ctx, app.ID); err != nil {
		return fmt.Errorf("delete app %s: %w", app.Key, err)
	}
	s.logger.Info("app deleted", "app_key", app.Key)
	return nil
}

// hasDeployments reports whether any version of app, or any environment it owns, is
// referenced by the ledger.
func (s Service) hasDeployments(ctx context.Context, app domain.App) (bool, error) {
	_, err := s.store.GetLatestDeploymentForApp(ctx, app.ID)
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, repository.ErrNotFound):
		return false, err
	}
	envs, err := s.store.ListEnvironmentsByApp(ctx, app.ID)
	if err != nil {
		return false, err
	}
	for _, env := range envs {
		deployments, err := s.store.ListDeploymentsByEnvironment(ctx, env.ID)
		if err != nil {
			return false, err
		}
		if len(deployments) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Get returns the app stored under key, archived apps included.
func (s Service) Get(ctx context.Context, key string) (*domain.App, error) {
	key = NormalizeKey(key)
	if key == "" {
		return nil, domain.InvalidArgument("app key is required")
	}
	app, err := s.store.GetAppByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotManaged(domain.EntityApp, key)
		}
		return nil, fmt.Errorf("get app: %w", err)
	}
	return app, nil
}

// GetLive returns the non-archived app stored under key.
func (s Service) GetLive(ctx context.Context, key string) (*domain.App, error) {
	app, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if app.IsArchived() {
		return nil, domain.NotManaged(domain.EntityApp, app.Key)
	}
	return app, nil
}

// List returns every app in creation order.
func (s Service) List(ctx context.Context) ([]domain.App, error) {
	return s.store.ListApps(ctx)
}

// Components returns the direct components of app.
func (s Service) Components(ctx context.Context, app domain.App) ([]domain.App, error) {
	return s.store.ListComponents(ctx, app.ID)
}

// Parent returns the parent of app, or nil for a project.
func (s Service) Parent(ctx context.Context, app domain.App) (*domain.App, error) {
	if app.ParentID == nil {
		return nil, nil
	}
	return s.store.GetAppByID(ctx, *app.ParentID)
}

// Root returns the project app belongs to.
func (s Service) Root(ctx context.Context, app domain.App) (*domain.App, error) {
	current := app
	for current.ParentID != nil {
		parent, err := s.store.GetAppByID(ctx, *current.ParentID)
		if err != nil {
			return nil, fmt.Errorf("resolve parent of %s: %w", current.Key, err)
		}
		current = *parent
	}
	return &current, nil
}

// Subtree returns app followed by its transitive components, pre-order.
func (s Service) Subtree(ctx context.Context, app domain.App) ([]domain.App, error) {
	nodes := []domain.App{app}
	components, err := s.store.ListComponents(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	for _, component := range components {
		below, err := s.Subtree(ctx, component)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, below...)
	}
	return nodes, nil
}

// IsWithin reports whether target is project itself or one of its transitive components.
func (s Service) IsWithin(ctx context.Context, target, project domain.App) (bool, error) {
	current := target
	for {
		if current.ID == project.ID {
			return true, nil
		}
		if current.ParentID == nil {
			return false, nil
		}
		parent, err := s.store.GetAppByID(ctx, *current.ParentID)
		if err != nil {
			return false, fmt.Errorf("resolve parent of %s: %w", current.Key, err)
		}
		current = *parent
	}
}

// wouldCycle reports whether giving appID the parent parentID closes a cycle.
func (s Service) wouldCycle(ctx context.Context, appID, parentID int64) (bool, error) {
	return HasCycle(appID, func(id int64) (int64, bool, error) {
		if id == appID {
			return parentID, true, nil
		}
		app, err := s.store.GetAppByID(ctx, id)
		if err != nil {
			return 0, false, err
		}
		if app.ParentID == nil {
			return 0, false, nil
		}
		return *app.ParentID, true, nil
	})
}
