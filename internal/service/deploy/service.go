package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
)

// Service owns the deployment ledger.
type Service struct {
	deployments repository.DeploymentRepository
	tx          repository.Transactor
	logger      *slog.Logger
}

// New returns a deployment ledger service.
func New(deployments repository.DeploymentRepository, tx repository.Transactor, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Service{deployments: deployments, tx: tx, logger: logger}
}

// RecordInput describes a deployment to append.
type RecordInput struct {
	Environment     domain.Environment
	Version         domain.Version
	TicketReference string
	ReleaseID       string
	DeployedAt      time.Time
}

func (in RecordInput) deployment() *domain.Deployment {
	at := in.DeployedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &domain.Deployment{
		EnvironmentID:   in.Environment.ID,
		VersionID:       in.Version.ID,
		ReleaseID:       in.ReleaseID,
		TicketReference: in.TicketReference,
		DeployedAt:      at,
	}
}

// Record appends a deployment. It fails with a deployment DuplicateKey error when the
// version is already recorded for the environment.
func (s Service) Record(ctx context.Context, in RecordInput) (*domain.Deployment, error) {
	d := in.deployment()
	if err := s.deployments.CreateDeployment(ctx, d); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.DuplicateKey(domain.EntityDeployment, in.Environment.Name, in.Version.Name)
		}
		return nil, fmt.Errorf("record deployment: %w", err)
	}
	s.logger.Info("deployment recorded",
		"deployment_id", d.ID,
		"environment", in.Environment.Name,
		"version", in.Version.Name,
		"release_id", d.ReleaseID,
	)
	return d, nil
}

// Supersede replaces any recorded deployment of the version to the environment with a
// fresh row, so the new record carries a new id, date and ticket and becomes the
// latest deployment of its app.
func (s Service) Supersede(ctx context.Context, in RecordInput) (*domain.Deployment, error) {
	var recorded *domain.Deployment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.Find(ctx, in.Environment.ID, in.Version.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := s.deployments.DeleteDeployment(ctx, existing.ID); err != nil {
				return fmt.Errorf("remove superseded deployment: %w", err)
			}
			s.logger.Info("deployment superseded", "deployment_id", existing.ID, "environment", in.Environment.Name, "version", in.Version.Name)
		}
		recorded, err = s.Record(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// Find returns the deployment of versionID to environmentID, or nil when there is none.
func (s Service) Find(ctx context.Context, environmentID, versionID int64) (*domain.Deployment, error) {
	d, err := s.deployments.GetDeployment(ctx, environmentID, versionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get deployment: %w", err)
	}
	return d, nil
}

// LatestForApp returns the most recently recorded deployment of any version of appID
// in any environment, or nil when the app was never deployed.
func (s Service) LatestForApp(ctx context.Context, appID int64) (*domain.Deployment, error) {
	d, err := s.deployments.GetLatestDeploymentForApp(ctx, appID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest deployment: %w", err)
	}
	return d, nil
}

// List returns the whole ledger, newest first.
func (s Service) List(ctx context.Context) ([]domain.Deployment, error) {
	return s.deployments.ListDeployments(ctx)
}

// ListByRelease returns the deployments recorded by one release call.
func (s Service) ListByRelease(ctx context.Context, releaseID string) ([]domain.Deployment, error) {
	return s.deployments.ListDeploymentsByRelease(ctx, releaseID)
}

// Delete removes one deployment.
func (s Service) Delete(ctx context.Context, d domain.Deployment) error {
	if err := s.deployments.DeleteDeployment(ctx, d.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotManaged(domain.EntityDeployment, fmt.Sprint(d.ID))
		}
		return fmt.Errorf("delete deployment: %w", err)
	}
	s.logger.Info("deployment deleted", "deployment_id", d.ID)
	return nil
}
