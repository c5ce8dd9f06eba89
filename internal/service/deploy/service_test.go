package deploy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository/memory"
)

type ledgerFixture struct {
	store *memory.Store
	svc   Service
	app   *domain.App
	env   domain.Environment
	v1    domain.Version
	v2    domain.Version
}

func newLedgerFixture(t *testing.T) ledgerFixture {
	t.Helper()
	ctx := context.Background()
	store, err := memory.New()
	require.NoError(t, err)
	app := &domain.App{Key: "dd", Name: "dd"}
	require.NoError(t, store.CreateApp(ctx, app))
	env := &domain.Environment{AppID: app.ID, Name: "test"}
	require.NoError(t, store.CreateEnvironment(ctx, env))
	v1 := &domain.Version{AppID: app.ID, Name: "1-0"}
	require.NoError(t, store.CreateVersion(ctx, v1))
	v2 := &domain.Version{AppID: app.ID, Name: "2-0"}
	require.NoError(t, store.CreateVersion(ctx, v2))
	return ledgerFixture{store: store, svc: New(store, store, nil), app: app, env: *env, v1: *v1, v2: *v2}
}

func TestRecordRejectsDuplicatePair(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	d, err := f.svc.Record(ctx, RecordInput{Environment: f.env, Version: f.v1, TicketReference: "JIRA-1"})
	require.NoError(t, err)
	assert.False(t, d.DeployedAt.IsZero())

	_, err = f.svc.Record(ctx, RecordInput{Environment: f.env, Version: f.v1})
	require.ErrorIs(t, err, domain.ErrDuplicateKey)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.EntityDeployment, derr.Entity)
	assert.Equal(t, []string{"test", "1-0"}, derr.Keys)
}

func TestLatestForApp(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	latest, err := f.svc.LatestForApp(ctx, f.app.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = f.svc.Record(ctx, RecordInput{Environment: f.env, Version: f.v2})
	require.NoError(t, err)
	second, err := f.svc.Record(ctx, RecordInput{Environment: f.env, Version: f.v1})
	require.NoError(t, err)

	latest, err = f.svc.LatestForApp(ctx, f.app.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
}

func TestSupersedeReplacesRow(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	old, err := f.svc.Record(ctx, RecordInput{Environment: f.env, Version: f.v1, TicketReference: "OLD-1"})
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, RecordInput{Environment: f.env, Version: f.v2})
	require.NoError(t, err)

	later := time.Now().UTC().Add(time.Hour)
	forced, err := f.svc.Supersede(ctx, RecordInput{Environment: f.env, Version: f.v1, TicketReference: "NEW-1", DeployedAt: later})
	require.NoError(t, err)
	assert.Greater(t, forced.ID, old.ID)
	assert.Equal(t, "NEW-1", forced.TicketReference)

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	latest, err := f.svc.LatestForApp(ctx, f.app.ID)
	require.NoError(t, err)
	assert.Equal(t, forced.ID, latest.ID)
}

func TestDeleteUnknownDeployment(t *testing.T) {
	f := newLedgerFixture(t)
	err := f.svc.Delete(context.Background(), domain.Deployment{ID: 42})
	assert.ErrorIs(t, err, domain.ErrNotManaged)
}

type failingDeploymentRepo struct {
	repository.DeploymentRepository
	err error
}

func (r failingDeploymentRepo) CreateDeployment(context.Context, *domain.Deployment) error {
	return r.err
}

func (r failingDeploymentRepo) GetLatestDeploymentForApp(context.Context, int64) (*domain.Deployment, error) {
	return nil, r.err
}

func TestInfrastructureErrorsAreWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	svc := New(failingDeploymentRepo{err: boom}, nil, nil)

	_, err := svc.Record(context.Background(), RecordInput{})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrDuplicateKey)

	_, err = svc.LatestForApp(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}
