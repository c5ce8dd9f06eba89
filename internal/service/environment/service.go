package environment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/app"
)

// Service manages the environments shared by a project and its components.
type Service struct {
	store  repository.Store
	apps   app.Service
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an environment service.
func New(store repository.Store, apps app.Service, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Service{store: store, apps: apps, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// RenameInput identifies an environment and its new name. A non-empty NewAppKey moves
// the environment to the project of that app, which is refused once deployments
// reference it.
type RenameInput struct {
	AppKey    string
	Name      string
	NewName   string
	NewAppKey string
}

var errNameRequired = domain.InvalidArgument("environment name is required")

// Create adds name to the project owning appKey.
func (s Service) Create(ctx context.Context, appKey, name string) (*domain.Environment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errNameRequired
	}
	var env *domain.Environment
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		root, err := s.liveRoot(ctx, appKey)
		if err != nil {
			return err
		}
		env = &domain.Environment{AppID: root.ID, Name: name, CreatedAt: s.now()}
		if err := s.store.CreateEnvironment(ctx, env); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return domain.DuplicateKey(domain.EntityEnvironment, root.Key, name)
			}
			return fmt.Errorf("create environment: %w", err)
		}
		s.logger.Info("environment created", "app_key", root.Key, "environment", name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// Rename changes the name of an environment and optionally moves it to another project.
func (s Service) Rename(ctx context.Context, in RenameInput) (*domain.Environment, error) {
	newName := strings.TrimSpace(in.NewName)
	var env *domain.Environment
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		env, err = s.Find(ctx, in.AppKey, in.Name)
		if err != nil {
			return err
		}
		if newName == "" {
			newName = env.Name
		}
		owner, err := s.store.GetAppByID(ctx, env.AppID)
		if err != nil {
			return fmt.Errorf("resolve environment owner: %w", err)
		}
		if strings.TrimSpace(in.NewAppKey) != "" {
			target, err := s.liveRoot(ctx, in.NewAppKey)
			if err != nil {
				return err
			}
			if target.ID != owner.ID {
				deployments, err := s.store.ListDeploymentsByEnvironment(ctx, env.ID)
				if err != nil {
					return fmt.Errorf("list deployments: %w", err)
				}
				// Ledger rows pair the old project's versions with this environment.
				if len(deployments) > 0 {
					refusal := domain.HasDeployments(domain.EntityEnvironment, owner.Key, env.Name)
					refusal.Detail = "cannot move to project " + target.Key
					return refusal
				}
			}
			owner = target
		}
		previous := env.Name
		env.Name = newName
		env.AppID = owner.ID
		if err := s.store.UpdateEnvironment(ctx, env); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return domain.DuplicateKey(domain.EntityEnvironment, owner.Key, newName)
			}
			return fmt.Errorf("update environment: %w", err)
		}
		s.logger.Info("environment renamed", "app_key", owner.Key, "environment", newName, "previous_name", previous)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// Delete removes an environment. Without hard it refuses while deployments reference
// the environment; with hard those deployments are removed first.
func (s Service) Delete(ctx context.Context, appKey, name string, hard bool) error {
	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		env, err := s.Find(ctx, appKey, name)
		if err != nil {
			return err
		}
		deployments, err := s.store.ListDeploymentsByEnvironment(ctx, env.ID)
		if err != nil {
			return fmt.Errorf("list deployments: %w", err)
		}
		if len(deployments) > 0 && !hard {
			return domain.HasDeployments(domain.EntityEnvironment, app.NormalizeKey(appKey), env.Name)
		}
		for _, d := range deployments {
			if err := s.store.DeleteDeployment(ctx, d.ID); err != nil {
				return fmt.Errorf("delete deployment: %w", err)
			}
		}
		if err := s.store.DeleteEnvironment(ctx, env.ID); err != nil {
			return fmt.Errorf("delete environment: %w", err)
		}
		s.logger.Info("environment deleted", "app_key", app.NormalizeKey(appKey), "environment", env.Name, "deployments_removed", len(deployments))
		return nil
	})
}

// Find resolves name among the environments of the project owning appKey.
func (s Service) Find(ctx context.Context, appKey, name string) (*domain.Environment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errNameRequired
	}
	root, err := s.root(ctx, appKey)
	if err != nil {
		return nil, err
	}
	env, err := s.store.GetEnvironment(ctx, root.ID, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotManaged(domain.EntityEnvironment, root.Key, name)
		}
		return nil, fmt.Errorf("get environment: %w", err)
	}
	return env, nil
}

// List returns the environments of the project owning appKey in creation order.
func (s Service) List(ctx context.Context, appKey string) ([]domain.Environment, error) {
	root, err := s.root(ctx, appKey)
	if err != nil {
		return nil, err
	}
	return s.store.ListEnvironmentsByApp(ctx, root.ID)
}

func (s Service) root(ctx context.Context, appKey string) (*domain.App, error) {
	a, err := s.apps.Get(ctx, appKey)
	if err != nil {
		return nil, err
	}
	return s.apps.Root(ctx, *a)
}

func (s Service) liveRoot(ctx context.Context, appKey string) (*domain.App, error) {
	a, err := s.apps.GetLive(ctx, appKey)
	if err != nil {
		return nil, err
	}
	return s.apps.Root(ctx, *a)
}
