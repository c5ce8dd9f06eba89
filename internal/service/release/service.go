package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/app"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/deploy"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/environment"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/version"
)

// Service records releases and answers the read queries built on the ledger.
type Service struct {
	store    repository.Store
	apps     app.Service
	envs     environment.Service
	versions version.Service
	ledger   deploy.Service
	logger   *slog.Logger
	events   Publisher
	now      func() time.Time
	newID    func() string
}

// Publisher receives an Event for every release call that committed at least
// one deployment.
type Publisher interface {
	Publish(projectKey string, ev Event)
}

// Event describes the outcome of a release call.
type Event struct {
	Type        string                  `json:"type"`
	ReleaseID   string                  `json:"release_id"`
	Project     string                  `json:"project"`
	Environment string                  `json:"environment"`
	Force       bool                    `json:"force"`
	Deployments []domain.DeploymentView `json:"deployments"`
	Error       string                  `json:"error,omitempty"`
}

// EventRelease is the Type of events emitted by Release.
const EventRelease = "release"

// New constructs a release service.
func New(store repository.Store, apps app.Service, envs environment.Service, versions version.Service, ledger deploy.Service, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Service{
		store:    store,
		apps:     apps,
		envs:     envs,
		versions: versions,
		ledger:   ledger,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// WithPublisher returns a copy of s that reports releases to p.
func (s Service) WithPublisher(p Publisher) Service {
	s.events = p
	return s
}

// Target is one app of a release and the version to record for it.
type Target struct {
	AppKey  string
	Version string
}

// Input describes a release call. Targets are processed in order.
type Input struct {
	ProjectKey      string
	EnvironmentName string
	Targets         []Target
	TicketReference string
	Force           bool
}

// Result lists the deployments committed by a release call.
type Result struct {
	ReleaseID   string                  `json:"release_id"`
	Deployments []domain.DeploymentView `json:"deployments"`
}

// Release records one deployment per target. Every target commits in its own
// transaction; the call stops at the first failing target and returns the
// deployments committed before it together with the error.
func (s Service) Release(ctx context.Context, in Input) (Result, error) {
	result := Result{ReleaseID: s.newID(), Deployments: []domain.DeploymentView{}}
	if err := validate(in); err != nil {
		return result, err
	}
	at := s.now()
	for _, target := range in.Targets {
		view, err := s.releaseTarget(ctx, in, target, result.ReleaseID, at)
		if err != nil {
			s.logger.Warn("release rejected",
				"project", app.NormalizeKey(in.ProjectKey),
				"environment", in.EnvironmentName,
				"app_key", app.NormalizeKey(target.AppKey),
				"version", target.Version,
				"release_id", result.ReleaseID,
				"error", err,
			)
			s.publish(ctx, in, result, err)
			return result, err
		}
		result.Deployments = append(result.Deployments, *view)
	}
	s.logger.Info("release recorded",
		"project", app.NormalizeKey(in.ProjectKey),
		"environment", in.EnvironmentName,
		"release_id", result.ReleaseID,
		"deployments", len(result.Deployments),
		"force", in.Force,
	)
	s.publish(ctx, in, result, nil)
	return result, nil
}

func (s Service) publish(ctx context.Context, in Input, result Result, cause error) {
	if s.events == nil || len(result.Deployments) == 0 {
		return
	}
	project, err := s.apps.GetLive(ctx, in.ProjectKey)
	if err == nil {
		project, err = s.apps.Root(ctx, *project)
	}
	if err != nil {
		s.logger.Warn("release event skipped", "release_id", result.ReleaseID, "error", err)
		return
	}
	ev := Event{
		Type:        EventRelease,
		ReleaseID:   result.ReleaseID,
		Project:     project.Key,
		Environment: result.Deployments[0].EnvironmentName,
		Force:       in.Force,
		Deployments: result.Deployments,
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	s.events.Publish(project.Key, ev)
}

func validate(in Input) error {
	if len(in.Targets) == 0 {
		return domain.InvalidArgument("a release needs at least one app version")
	}
	seen := make(map[string]struct{}, len(in.Targets))
	for _, t := range in.Targets {
		key := app.NormalizeKey(t.AppKey)
		if key == "" {
			return domain.InvalidArgument("app key is required")
		}
		if strings.TrimSpace(t.Version) == "" {
			return domain.InvalidArgument("version of %s is required", key)
		}
		if _, dup := seen[key]; dup {
			return domain.InvalidArgument("app %s listed twice", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (s Service) releaseTarget(ctx context.Context, in Input, target Target, releaseID string, at time.Time) (*domain.DeploymentView, error) {
	var view *domain.DeploymentView
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		project, err := s.apps.GetLive(ctx, in.ProjectKey)
		if err != nil {
			return err
		}
		env, err := s.envs.Find(ctx, project.Key, in.EnvironmentName)
		if err != nil {
			return err
		}
		targetApp, err := s.apps.GetLive(ctx, target.AppKey)
		if err != nil {
			return err
		}
		within, err := s.apps.IsWithin(ctx, *targetApp, *project)
		if err != nil {
			return err
		}
		if !within {
			return &domain.Error{Kind: domain.KindNoSuchComponent, Entity: domain.EntityApp, Keys: []string{project.Key, targetApp.Key}}
		}
		v, err := s.versions.Ensure(ctx, *targetApp, target.Version)
		if err != nil {
			return err
		}

		candidate := deploy.RecordInput{
			Environment:     *env,
			Version:         *v,
			TicketReference: strings.TrimSpace(in.TicketReference),
			ReleaseID:       releaseID,
			DeployedAt:      at,
		}
		var recorded *domain.Deployment
		if in.Force {
			recorded, err = s.ledger.Supersede(ctx, candidate)
		} else {
			recorded, err = s.checkedRecord(ctx, *targetApp, candidate)
		}
		if err != nil {
			return err
		}
		view = &domain.DeploymentView{
			ID:              recorded.ID,
			AppKey:          targetApp.Key,
			AppName:         targetApp.Name,
			EnvironmentName: env.Name,
			VersionName:     v.Name,
			VersionID:       v.ID,
			ReleaseID:       recorded.ReleaseID,
			TicketReference: recorded.TicketReference,
			DeployedAt:      recorded.DeployedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// checkedRecord applies the rollback and redeploy checks before recording.
func (s Service) checkedRecord(ctx context.Context, target domain.App, candidate deploy.RecordInput) (*domain.Deployment, error) {
	candidateRef := &domain.DeploymentRef{
		AppKey:          target.Key,
		EnvironmentName: candidate.Environment.Name,
		VersionName:     candidate.Version.Name,
		VersionID:       candidate.Version.ID,
		DeployedAt:      candidate.DeployedAt,
		TicketReference: candidate.TicketReference,
	}

	latest, err := s.ledger.LatestForApp(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.VersionID > candidate.Version.ID {
		existing, err := s.ref(ctx, target, *latest)
		if err != nil {
			return nil, err
		}
		return nil, &domain.Error{
			Kind:      domain.KindVersionRollback,
			Entity:    domain.EntityVersion,
			Keys:      []string{target.Key, candidate.Version.Name},
			Existing:  existing,
			Candidate: candidateRef,
		}
	}

	existing, err := s.ledger.Find(ctx, candidate.Environment.ID, candidate.Version.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		recorded, err := s.ledger.Record(ctx, candidate)
		if err == nil {
			return recorded, nil
		}
		if !errors.Is(err, domain.ErrDuplicateKey) {
			return nil, err
		}
		// recorded concurrently
		existing, err = s.ledger.Find(ctx, candidate.Environment.ID, candidate.Version.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("deployment of %s %s to %s vanished after conflict", target.Key, candidate.Version.Name, candidate.Environment.Name)
		}
	}
	ref, err := s.ref(ctx, target, *existing)
	if err != nil {
		return nil, err
	}
	return nil, &domain.Error{
		Kind:      domain.KindVersionRedeploy,
		Entity:    domain.EntityVersion,
		Keys:      []string{target.Key, candidate.Version.Name},
		Existing:  ref,
		Candidate: candidateRef,
	}
}

func (s Service) ref(ctx context.Context, target domain.App, d domain.Deployment) (*domain.DeploymentRef, error) {
	env, err := s.store.GetEnvironmentByID(ctx, d.EnvironmentID)
	if err != nil {
		return nil, fmt.Errorf("resolve environment %d: %w", d.EnvironmentID, err)
	}
	v, err := s.store.GetVersionByID(ctx, d.VersionID)
	if err != nil {
		return nil, fmt.Errorf("resolve version %d: %w", d.VersionID, err)
	}
	return &domain.DeploymentRef{
		AppKey:          target.Key,
		EnvironmentName: env.Name,
		VersionName:     v.Name,
		VersionID:       v.ID,
		DeployedAt:      d.DeployedAt,
		TicketReference: d.TicketReference,
	}, nil
}
