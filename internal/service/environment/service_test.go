package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository/memory"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/app"
)

type fixture struct {
	store *memory.Store
	apps  app.Service
	svc   Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := memory.New()
	require.NoError(t, err)
	apps := app.New(store, store, nil)
	ctx := context.Background()
	_, err = apps.Create(ctx, app.CreateInput{Key: "dd", Name: "Deployment Dashboard"})
	require.NoError(t, err)
	_, err = apps.Create(ctx, app.CreateInput{Key: "dd-fe", Name: "Frontend", ParentKey: "dd"})
	require.NoError(t, err)
	return fixture{store: store, apps: apps, svc: New(store, apps, nil)}
}

func TestCreateAttachesToProjectRoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env, err := f.svc.Create(ctx, "dd-fe", " test ")
	require.NoError(t, err)
	assert.Equal(t, "test", env.Name)

	root, err := f.apps.Get(ctx, "dd")
	require.NoError(t, err)
	assert.Equal(t, root.ID, env.AppID)

	_, err = f.svc.Create(ctx, "dd", "test")
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	_, err = f.svc.Create(ctx, "missing", "test")
	assert.ErrorIs(t, err, domain.ErrNotManaged)

	_, err = f.svc.Create(ctx, "dd", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestListIsSharedAndOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"test", "prod", "dev"} {
		_, err := f.svc.Create(ctx, "dd", name)
		require.NoError(t, err)
	}

	envs, err := f.svc.List(ctx, "dd-fe")
	require.NoError(t, err)
	names := make([]string, 0, len(envs))
	for _, env := range envs {
		names = append(names, env.Name)
	}
	assert.Equal(t, []string{"test", "prod", "dev"}, names)
}

func TestRename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, "dd", "test")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "dd", "prod")
	require.NoError(t, err)

	_, err = f.svc.Rename(ctx, RenameInput{AppKey: "dd", Name: "test", NewName: "prod"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	renamed, err := f.svc.Rename(ctx, RenameInput{AppKey: "dd", Name: "test", NewName: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "staging", renamed.Name)

	_, err = f.svc.Find(ctx, "dd", "test")
	assert.ErrorIs(t, err, domain.ErrNotManaged)

	_, err = f.apps.Create(ctx, app.CreateInput{Key: "other", Name: "Other"})
	require.NoError(t, err)
	moved, err := f.svc.Rename(ctx, RenameInput{AppKey: "dd", Name: "staging", NewAppKey: "other"})
	require.NoError(t, err)
	assert.Equal(t, "staging", moved.Name)
	_, err = f.svc.Find(ctx, "other", "staging")
	assert.NoError(t, err)
}

func TestDeleteRespectsDeployments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, err := f.svc.Create(ctx, "dd", "test")
	require.NoError(t, err)
	fe, err := f.apps.Get(ctx, "dd-fe")
	require.NoError(t, err)
	version := &domain.Version{AppID: fe.ID, Name: "1-0"}
	require.NoError(t, f.store.CreateVersion(ctx, version))
	require.NoError(t, f.store.CreateDeployment(ctx, &domain.Deployment{EnvironmentID: env.ID, VersionID: version.ID}))

	err = f.svc.Delete(ctx, "dd", "test", false)
	assert.ErrorIs(t, err, domain.ErrHasDeployments)
	_, err = f.svc.Find(ctx, "dd", "test")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "dd", "test", true))
	_, err = f.svc.Find(ctx, "dd", "test")
	assert.ErrorIs(t, err, domain.ErrNotManaged)
	deployments, err := f.store.ListDeploymentsByVersion(ctx, version.ID)
	require.NoError(t, err)
	assert.Empty(t, deployments)
}

func TestRenameRefusesMoveWithDeployments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, err := f.svc.Create(ctx, "dd", "test")
	require.NoError(t, err)
	_, err = f.apps.Create(ctx, app.CreateInput{Key: "other", Name: "Other"})
	require.NoError(t, err)
	dd, err := f.apps.Get(ctx, "dd")
	require.NoError(t, err)
	version := &domain.Version{AppID: dd.ID, Name: "1-0"}
	require.NoError(t, f.store.CreateVersion(ctx, version))
	require.NoError(t, f.store.CreateDeployment(ctx, &domain.Deployment{EnvironmentID: env.ID, VersionID: version.ID}))

	_, err = f.svc.Rename(ctx, RenameInput{AppKey: "dd", Name: "test", NewAppKey: "other"})
	require.ErrorIs(t, err, domain.ErrHasDeployments)
	assert.Contains(t, err.Error(), "cannot move to project other")

	_, err = f.svc.Find(ctx, "dd", "test")
	require.NoError(t, err)
	envs, err := f.svc.List(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, envs)

	renamed, err := f.svc.Rename(ctx, RenameInput{AppKey: "dd", Name: "test", NewName: "qa", NewAppKey: "dd-fe"})
	require.NoError(t, err)
	assert.Equal(t, "qa", renamed.Name)
	assert.Equal(t, dd.ID, renamed.AppID)
}
