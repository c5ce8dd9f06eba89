package version

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

// Service manages the versions of each app.
type Service struct {
	store  repository.Store
	apps   app.Service
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a version service.
func New(store repository.Store, apps app.Service, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Service{store: store, apps: apps, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

var errNameRequired = domain.InvalidArgument("version name is required")

// GetOrCreate returns version name of the live app appKey, creating it when missing.
func (s Service) GetOrCreate(ctx context.Context, appKey, name string) (*domain.Version, error) {
	a, err := s.apps.GetLive(ctx, appKey)
	if err != nil {
		return nil, err
	}
	return s.Ensure(ctx, *a, name)
}

// Ensure returns version name of a, creating it with the next id when missing. An
// existing version is returned unchanged.
func (s Service) Ensure(ctx context.Context, a domain.App, name string) (*domain.Version, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errNameRequired
	}
	existing, err := s.store.GetVersion(ctx, a.ID, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get version: %w", err)
	}

	created := &domain.Version{AppID: a.ID, Name: name, CreatedAt: s.now()}
	if err := s.store.CreateVersion(ctx, created); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("create version: %w", err)
		}
		// created concurrently
		existing, err := s.store.GetVersion(ctx, a.ID, name)
		if err != nil {
			return nil, fmt.Errorf("get version: %w", err)
		}
		return existing, nil
	}
	s.logger.Info("version created", "app_key", a.Key, "version", name, "version_id", created.ID)
	return created, nil
}

// Get resolves version name of appKey, archived apps included.
func (s Service) Get(ctx context.Context, appKey, name string) (*domain.Version, error) {
	a, err := s.apps.Get(ctx, appKey)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, *a, name)
}

func (s Service) find(ctx context.Context, a domain.App, name string) (*domain.Version, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errNameRequired
	}
	v, err := s.store.GetVersion(ctx, a.ID, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotManaged(domain.EntityVersion, a.Key, name)
		}
		return nil, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// List returns the versions of appKey in creation order.
func (s Service) List(ctx context.Context, appKey string) ([]domain.Version, error) {
	a, err := s.apps.Get(ctx, appKey)
	if err != nil {
		return nil, err
	}
	return s.store.ListVersionsByApp(ctx, a.ID)
}

// UpdateDescription replaces the description of a version. It is the only mutable field.
func (s Service) UpdateDescription(ctx context.Context, appKey, name, description string) (*domain.Version, error) {
	var v *domain.Version
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.Get(ctx, appKey, name)
		if err != nil {
			return err
		}
		v.Description = strings.TrimSpace(description)
		if err := s.store.UpdateVersion(ctx, v); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("version updated", "app_key", app.NormalizeKey(appKey), "version", v.Name)
	return v, nil
}

// Delete removes a version. Without force it refuses while the version is deployed;
// with force its deployments are removed first.
func (s Service) Delete(ctx context.Context, appKey, name string, force bool) error {
	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		v, err := s.Get(ctx, appKey, name)
		if err != nil {
			return err
		}
		deployments, err := s.store.ListDeploymentsByVersion(ctx, v.ID)
		if err != nil {
			return fmt.Errorf("list deployments: %w", err)
		}
		if len(deployments) > 0 && !force {
			return domain.HasDeployments(domain.EntityVersion, app.NormalizeKey(appKey), v.Name)
		}
		for _, d := range deployments {
			if err := s.store.DeleteDeployment(ctx, d.ID); err != nil {
				return fmt.Errorf("delete deployment: %w", err)
			}
		}
		if err := s.store.DeleteVersion(ctx, v.ID); err != nil {
			return fmt.Errorf("delete version: %w", err)
		}
		s.logger.Info("version deleted", "app_key", app.NormalizeKey(appKey), "version", v.Name, "deployments_removed", len(deployments))
		return nil
	})
}
