package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesByKind(t *testing.T) {
	err := fmt.Errorf("release: %w", NotManaged(EntityEnvironment, "dd", "prod"))

	assert.ErrorIs(t, err, ErrNotManaged)
	assert.NotErrorIs(t, err, ErrDuplicateKey)

	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, EntityEnvironment, derr.Entity)
	assert.Equal(t, []string{"dd", "prod"}, derr.Keys)
	assert.Equal(t, "environment dd, prod is not managed", derr.Error())
}

func TestConflictMessagesNameTheDeployment(t *testing.T) {
	at := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	redeploy := &Error{
		Kind:     KindVersionRedeploy,
		Existing: &DeploymentRef{AppKey: "dd", EnvironmentName: "test", VersionName: "1-0", DeployedAt: at},
	}
	assert.Equal(t, "version 1-0 of dd was already deployed to test at 2024-03-01T10:00:00Z", redeploy.Error())
	assert.True(t, redeploy.Forceable())

	rollback := &Error{
		Kind:      KindVersionRollback,
		Existing:  &DeploymentRef{AppKey: "dd", EnvironmentName: "test", VersionName: "2-0", DeployedAt: at},
		Candidate: &DeploymentRef{AppKey: "dd", EnvironmentName: "test", VersionName: "1-0"},
	}
	assert.Contains(t, rollback.Error(), "would roll back newer version 2-0")
	assert.True(t, errors.Is(rollback, ErrVersionRollback))

	assert.False(t, HasDeployments(EntityApp, "dd").Forceable())
}

func TestInvalidArgumentDetail(t *testing.T) {
	err := InvalidArgument("key %q is empty", "")
	assert.Equal(t, `invalid argument: key "" is empty`, err.Error())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
