package release

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/archive"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository/memory"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/app"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/deploy"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/environment"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/version"
)

type fixture struct {
	store repository.Store
	apps  app.Service
	envs  environment.Service
	svc   Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := memory.New()
	require.NoError(t, err)
	return newFixtureOn(store, store)
}

func newFixtureOn(store repository.Store, counters archive.Counters) fixture {
	apps := app.New(store, counters, nil)
	envs := environment.New(store, apps, nil)
	versions := version.New(store, apps, nil)
	ledger := deploy.New(store, store, nil)
	svc := New(store, apps, envs, versions, ledger, nil)
	svc.now = steppingClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return fixture{store: store, apps: apps, envs: envs, svc: svc}
}

// steppingClock advances one minute per call and is safe for concurrent use.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	clock := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}
}

func (f fixture) seedProject(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.apps.Create(ctx, app.CreateInput{Key: "dd", Name: "Deployment Dashboard"})
	require.NoError(t, err)
	_, err = f.apps.Create(ctx, app.CreateInput{Key: "dd-fe", Name: "Frontend", ParentKey: "dd"})
	require.NoError(t, err)
	_, err = f.envs.Create(ctx, "dd", "test")
	require.NoError(t, err)
}

func (f fixture) release(ctx context.Context, force bool, targets ...Target) (Result, error) {
	return f.svc.Release(ctx, Input{ProjectKey: "dd", EnvironmentName: "test", Targets: targets, Force: force})
}

func TestReleaseScenario(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t)
	ctx := context.Background()

	res, err := f.release(ctx, false, Target{AppKey: "dd", Version: "1-0"})
	require.NoError(t, err)
	require.Len(t, res.Deployments, 1)
	assert.Equal(t, "dd", res.Deployments[0].AppKey)
	assert.Equal(t, "1-0", res.Deployments[0].VersionName)
	assert.NotEmpty(t, res.ReleaseID)

	versions, err := f.store.ListVersionsByApp(ctx, mustApp(t, f, "dd").ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	_, err = f.release(ctx, false, Target{AppKey: "dd", Version: "1-0"})
	require.ErrorIs(t, err, domain.ErrVersionRedeploy)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	require.NotNil(t, derr.Existing)
	assert.Equal(t, "test", derr.Existing.EnvironmentName)
	assert.Equal(t, "1-0", derr.Existing.VersionName)
	assert.True(t, derr.Forceable())

	_, err = f.release(ctx, false, Target{AppKey: "dd", Version: "2-0"})
	require.NoError(t, err)

	_, err = f.release(ctx, false, Target{AppKey: "dd", Version: "1-0"})
	require.ErrorIs(t, err, domain.ErrVersionRollback)
	require.ErrorAs(t, err, &derr)
	require.NotNil(t, derr.Existing)
	require.NotNil(t, derr.Candidate)
	assert.Equal(t, "2-0", derr.Existing.VersionName)
	assert.Equal(t, "1-0", derr.Candidate.VersionName)

	_, err = f.apps.Update(ctx, "dd", app.UpdateInput{ParentKey: "dd-fe"})
	assert.ErrorIs(t, err, domain.ErrCyclicParenting)
}

func TestForceSupersedesDeployment(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t)
	ctx := context.Background()

	first, err := f.release(ctx, false, Target{AppKey: "dd", Version: "1-0"})
	require.NoError(t, err)
	_, err = f.release(ctx, false, Target{AppKey: "dd", Version: "2-0"})
	require.NoError(t, err)

	forced, err := f.svc.Release(ctx, Input{
		ProjectKey:      "dd",
		EnvironmentName: "test",
		Targets:         []Target{{AppKey: "dd", Version: "1-0"}},
		TicketReference: "JIRA-7",
		Force:           true,
	})
	require.NoError(t, err)
	require.Len(t, forced.Deployments, 1)
	got := forced.Deployments[0]
	assert.Greater(t, got.ID, first.Deployments[0].ID)
	assert.Equal(t, "JIRA-7", got.TicketReference)
	assert.Equal(t, forced.ReleaseID, got.ReleaseID)
	assert.True(t, got.DeployedAt.After(first.Deployments[0].DeployedAt))

	all, err := f.svc.ListDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, got.ID, all[0].ID)
	assert.Equal(t, "1-0", all[0].VersionName)

	// 2-0 is no longer a rollback but is still recorded for test
	_, err = f.release(ctx, false, Target{AppKey: "dd", Version: "2-0"})
	assert.ErrorIs(t, err, domain.ErrVersionRedeploy)
}

func TestReleaseStopsAtFirstFailureAndKeepsEarlierEntries(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t)
	ctx := context.Background()

	_, err := f.release(ctx, false, Target{AppKey: "dd-fe", Version: "1-0"})
	require.NoError(t, err)

	res, err := f.release(ctx, false,
		Target{AppKey: "dd", Version: "1-0"},
		Target{AppKey: "dd-fe", Version: "1-0"},
		Target{AppKey: "dd", Version: "9-9"},
	)
	require.ErrorIs(t, err, domain.ErrVersionRedeploy)
	require.Len(t, res.Deployments, 1)
	assert.Equal(t, "dd", res.Deployments[0].AppKey)

	all, err := f.svc.ListDeployments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReleaseResolutionFailures(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t)
	ctx := context.Background()
	_, err := f.apps.Create(ctx, app.CreateInput{Key: "other", Name: "Other"})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   Input
		want error
	}{
		{
			name: "unknown project",
			in:   Input{ProjectKey: "nope", EnvironmentName: "test", Targets: []Target{{AppKey: "dd", Version: "1"}}},
			want: domain.ErrNotManaged,
		},
		{
			name: "unknown environment",
			in:   Input{ProjectKey: "dd", EnvironmentName: "prod", Targets: []Target{{AppKey: "dd", Version: "1"}}},
			want: domain.ErrNotManaged,
		},
		{
			name: "unknown target",
			in:   Input{ProjectKey: "dd", EnvironmentName: "test", Targets: []Target{{AppKey: "ghost", Version: "1"}}},
			want: domain.ErrNotManaged,
		},
		{
			name: "target outside project",
			in:   Input{ProjectKey: "dd", EnvironmentName: "test", Targets: []Target{{AppKey: "other", Version: "1"}}},
			want: domain.ErrNoSuchComponent,
		},
		{
			name: "no targets",
			in:   Input{ProjectKey: "dd", EnvironmentName: "test"},
			want: domain.ErrInvalidArgument,
		},
		{
			name: "target listed twice",
			in:   Input{ProjectKey: "dd", EnvironmentName: "test", Targets: []Target{{AppKey: "dd", Version: "1"}, {AppKey: "DD", Version: "2"}}},
			want: domain.ErrInvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.Release(ctx, tt.in)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, res.Deployments)
		})
	}

	_, err = f.svc.Release(ctx, Input{ProjectKey: "dd", EnvironmentName: "test", Targets: []Target{{AppKey: "other", Version: "1"}}})
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, []string{"dd", "other"}, derr.Keys)
}

func TestComponentSharesProjectEnvironment(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t)
	ctx := context.Background()
	_, err := f.apps.Create(ctx, app.CreateInput{Key: "dd-fe-lib", Name: "Lib", ParentKey: "dd-fe"})
	require.NoError(t, err)

	res, err := f.release(ctx, false,
		Target{AppKey: "dd-fe", Version: "3.1"},
		Target{AppKey: "dd-fe-lib", Version: "0.9"},
	)
	require.NoError(t, err)
	require.Len(t, res.Deployments, 2)
	assert.Equal(t, res.ReleaseID, res.Deployments[1].ReleaseID)
	assert.Equal(t, "test", res.Deployments[1].EnvironmentName)

	// rollback is tracked per app, so a fresh app is unaffected by its siblings
	_, err = f.release(ctx, false, Target{AppKey: "dd", Version: "0.1"})
	assert.NoError(t, err)
}

func TestArchivedProjectCannotRelease(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t)
	ctx := context.Background()
	require.NoError(t, f.apps.Archive(ctx, "dd"))

	_, err := f.release(ctx, false, Target{AppKey: "dd", Version: "1-0"})
	assert.ErrorIs(t, err, domain.ErrNotManaged)
}

func mustApp(t *testing.T, f fixture, key string) *domain.App {
	t.Helper()
	a, err := f.apps.Get(context.Background(), key)
	require.NoError(t, err)
	return a
}
