package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/archive"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository/memory"
)

func newService(t *testing.T) (Service, *memory.Store) {
	t.Helper()
	store, err := memory.New()
	require.NoError(t, err)
	return New(store, store, nil), store
}

func mustCreate(t *testing.T, svc Service, key, parent string) *domain.App {
	t.Helper()
	app, err := svc.Create(context.Background(), CreateInput{Key: key, Name: key + " app", ParentKey: parent})
	require.NoError(t, err)
	return app
}

func deploy(t *testing.T, store *memory.Store, project, app *domain.App) {
	t.Helper()
	ctx := context.Background()
	env := &domain.Environment{AppID: project.ID, Name: "test-" + app.Key}
	require.NoError(t, store.CreateEnvironment(ctx, env))
	version := &domain.Version{AppID: app.ID, Name: "1-0"}
	require.NoError(t, store.CreateVersion(ctx, version))
	require.NoError(t, store.CreateDeployment(ctx, &domain.Deployment{EnvironmentID: env.ID, VersionID: version.ID}))
}

func TestCreateNormalizesKey(t *testing.T) {
	svc, _ := newService(t)
	app := mustCreate(t, svc, "  DD ", "")
	assert.Equal(t, "dd", app.Key)
	assert.True(t, app.IsProject())

	component := mustCreate(t, svc, "dd-fe", "DD")
	require.NotNil(t, component.ParentID)
	assert.Equal(t, app.ID, *component.ParentID)
}

func TestCreateFailures(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	mustCreate(t, svc, "dd", "")

	_, err := svc.Create(ctx, CreateInput{Key: "dd", Name: "again"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	_, err = svc.Create(ctx, CreateInput{Key: "x", Name: "x", ParentKey: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotManaged)

	_, err = svc.Create(ctx, CreateInput{Key: "self", Name: "self", ParentKey: "SELF"})
	assert.ErrorIs(t, err, domain.ErrCyclicParenting)

	_, err = svc.Create(ctx, CreateInput{Key: "bad key", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Create(ctx, CreateInput{Key: "dd (archive #1)", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Create(ctx, CreateInput{Key: "noname", Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestUpdateRejectsCycles(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	mustCreate(t, svc, "dd", "")
	mustCreate(t, svc, "dd-fe", "dd")
	mustCreate(t, svc, "dd-fe-widget", "dd-fe")

	_, err := svc.Update(ctx, "dd", UpdateInput{ParentKey: "dd-fe-widget"})
	assert.ErrorIs(t, err, domain.ErrCyclicParenting)

	_, err = svc.Update(ctx, "dd", UpdateInput{ParentKey: "dd"})
	assert.ErrorIs(t, err, domain.ErrCyclicParenting)

	root, err := svc.Get(ctx, "dd")
	require.NoError(t, err)
	assert.Nil(t, root.ParentID)
}

func TestUpdateRenamesAndReparents(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	mustCreate(t, svc, "dd", "")
	mustCreate(t, svc, "other", "")
	mustCreate(t, svc, "dd-fe", "dd")

	_, err := svc.Update(ctx, "dd-fe", UpdateInput{Key: "other"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	updated, err := svc.Update(ctx, "dd-fe", UpdateInput{Key: "web", Name: "Web", ParentKey: "other"})
	require.NoError(t, err)
	assert.Equal(t, "web", updated.Key)
	assert.Equal(t, "Web", updated.Name)

	other, err := svc.Get(ctx, "other")
	require.NoError(t, err)
	components, err := svc.Components(ctx, *other)
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, "web", components[0].Key)

	detached, err := svc.Update(ctx, "web", UpdateInput{})
	require.NoError(t, err)
	assert.True(t, detached.IsProject())
	assert.Equal(t, "Web", detached.Name)
}

func TestArchiveFreesKeyWithMonotonicSuffix(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	for n := 1; n <= 3; n++ {
		mustCreate(t, svc, "dd", "")
		require.NoError(t, svc.Delete(ctx, "dd", false))

		archived, err := svc.Get(ctx, archive.ArchivedKey("dd", n))
		require.NoError(t, err)
		assert.True(t, archived.IsArchived())
	}

	_, err := svc.GetLive(ctx, "dd (archive #1)")
	assert.ErrorIs(t, err, domain.ErrNotManaged)
	_, err = svc.Get(ctx, "dd")
	assert.ErrorIs(t, err, domain.ErrNotManaged)
}

func TestArchiveIsIdempotentAndCoversComponents(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	mustCreate(t, svc, "dd", "")
	mustCreate(t, svc, "dd-fe", "dd")

	require.NoError(t, svc.Archive(ctx, "dd"))
	require.NoError(t, svc.Archive(ctx, "dd (archive #1)"))

	fe, err := svc.Get(ctx, "dd-fe (archive #1)")
	require.NoError(t, err)
	assert.True(t, fe.IsArchived())
	_, err = svc.Get(ctx, "dd (archive #2)")
	assert.ErrorIs(t, err, domain.ErrNotManaged)

	mustCreate(t, svc, "dd-fe", "")
}

func TestArchiveSkipsTakenSuffix(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	mustCreate(t, svc, "dd", "")
	require.NoError(t, svc.Archive(ctx, "dd"))
	require.NoError(t, store.Reset(ctx))

	mustCreate(t, svc, "dd", "")
	require.NoError(t, svc.Archive(ctx, "dd"))

	_, err := svc.Get(ctx, "dd (archive #2)")
	assert.NoError(t, err)
}

func TestHardDeleteCascades(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	project := mustCreate(t, svc, "dd", "")
	mustCreate(t, svc, "dd-fe", "dd")
	mustCreate(t, svc, "dd-fe-widget", "dd-fe")
	require.NoError(t, store.CreateEnvironment(ctx, &domain.Environment{AppID: project.ID, Name: "test"}))
	require.NoError(t, store.CreateVersion(ctx, &domain.Version{AppID: project.ID, Name: "1-0"}))

	require.NoError(t, svc.Delete(ctx, "dd", true))

	apps, err := store.ListApps(ctx)
	require.NoError(t, err)
	assert.Empty(t, apps)
	_, err = store.GetEnvironment(ctx, project.ID, "test")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestHardDeleteWithDeploymentsRemovesNothing(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	project := mustCreate(t, svc, "dd", "")
	mustCreate(t, svc, "dd-fe", "dd")
	widget := mustCreate(t, svc, "dd-fe-widget", "dd-fe")
	deploy(t, store, project, widget)

	err := svc.Delete(ctx, "dd", true)
	require.ErrorIs(t, err, domain.ErrHasDeployments)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, []string{"dd", "dd-fe-widget"}, derr.Keys)

	apps, err := store.ListApps(ctx)
	require.NoError(t, err)
	assert.Len(t, apps, 3)
}

func TestIsWithinAndRoot(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	project := mustCreate(t, svc, "dd", "")
	mustCreate(t, svc, "dd-fe", "dd")
	widget := mustCreate(t, svc, "dd-fe-widget", "dd-fe")
	stranger := mustCreate(t, svc, "other", "")

	within, err := svc.IsWithin(ctx, *widget, *project)
	require.NoError(t, err)
	assert.True(t, within)

	within, err = svc.IsWithin(ctx, *stranger, *project)
	require.NoError(t, err)
	assert.False(t, within)

	root, err := svc.Root(ctx, *widget)
	require.NoError(t, err)
	assert.Equal(t, project.ID, root.ID)
}
