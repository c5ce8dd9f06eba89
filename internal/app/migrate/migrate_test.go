package migrate

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/db/migrations"
)

func TestNewRejectsMissingPool(t *testing.T) {
	_, err := New(nil, "", nil)
	assert.EqualError(t, err, "nil pool provided")
}

func TestNewValidatesMigrationsDir(t *testing.T) {
	pool := &pgxpool.Pool{}

	_, err := New(pool, filepath.Join(t.TempDir(), "missing"), nil)
	assert.ErrorContains(t, err, "locate migrations dir")

	runner, err := New(pool, t.TempDir(), nil)
	require.NoError(t, err)
	assert.NotNil(t, runner.fsys)

	runner, err = New(pool, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "embedded", runner.source)
}

func TestEmbeddedMigrationsArePresent(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"00001_create_apps.sql",
		"00002_create_environments_versions.sql",
		"00003_create_deployments.sql",
	}, files)
}
