package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpx "github.com/Deployment-Dashboard/Deployment-Dashboard/internal/http"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/repository/memory"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/app"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/deploy"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/environment"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/release"
	versionsvc "github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/version"
	apiclient "github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/api/client"
)

func startAPI(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	store, err := memory.New()
	require.NoError(t, err)
	apps := app.New(store, store, nil)
	envs := environment.New(store, apps, nil)
	versions := versionsvc.New(store, apps, nil)
	releases := release.New(store, apps, envs, versions, deploy.New(store, store, nil), nil)
	router := httpx.NewRouter(nil, httpx.Services{Apps: apps, Envs: envs, Versions: versions, Releases: releases}, httpx.Options{})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		router.Close()
	})
	return srv.URL
}

func execute(t *testing.T, base string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out, "test")
	root.SetArgs(append([]string{"--api", base, "--retries", "0"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReleaseThroughCLI(t *testing.T) {
	base := startAPI(t)

	_, err := execute(t, base, "apps", "create", "dd", "--name", "Deployment Dashboard")
	require.NoError(t, err)
	_, err = execute(t, base, "apps", "create", "dd-fe", "--name", "Frontend", "--parent", "dd")
	require.NoError(t, err)
	out, err := execute(t, base, "envs", "create", "dd", "test")
	require.NoError(t, err)
	assert.Contains(t, out, "environment created: dd/test")

	out, err = execute(t, base, "release", "dd", "test", "dd=1.0.0", "dd-fe=1.0.2", "--ticket", "DD-42")
	require.NoError(t, err)
	assert.Contains(t, out, "release ")
	assert.Contains(t, out, "dd-fe")
	assert.Contains(t, out, "DD-42")

	_, err = execute(t, base, "release", "dd", "test", "dd=1.0.0")
	var apiErr apiclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Forceable())

	out, err = execute(t, base, "release", "dd", "test", "dd-fe=1.0.3", "dd=1.0.0")
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, out, "recorded before the failure")
	assert.Contains(t, out, "1.0.3")

	_, err = execute(t, base, "release", "dd", "test", "dd=1.0.0", "--force")
	require.NoError(t, err)

	out, err = execute(t, base, "deployments", "list", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1.0.0")
	assert.NotContains(t, out, "1.0.2")

	out, err = execute(t, base, "apps", "overview")
	require.NoError(t, err)
	assert.Contains(t, out, "dd@1.0.0")

	out, err = execute(t, base, "apps", "show", "dd")
	require.NoError(t, err)
	assert.Contains(t, out, `"key": "dd"`)
}

func TestAppAndEnvironmentCommands(t *testing.T) {
	base := startAPI(t)

	_, err := execute(t, base, "apps", "create", "shop")
	require.NoError(t, err)
	_, err = execute(t, base, "envs", "create", "shop", "stage")
	require.NoError(t, err)

	out, err := execute(t, base, "envs", "rename", "shop", "stage", "staging")
	require.NoError(t, err)
	assert.Contains(t, out, "environment updated: staging")

	out, err = execute(t, base, "envs", "list", "shop")
	require.NoError(t, err)
	assert.Contains(t, out, "staging")

	out, err = execute(t, base, "apps", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "shop")

	out, err = execute(t, base, "apps", "delete", "shop")
	require.NoError(t, err)
	assert.Contains(t, out, "app archived: shop")

	out, err = execute(t, base, "apps", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "shop")
}

func TestUpdateRequiresAField(t *testing.T) {
	_, err := execute(t, "http://127.0.0.1:1", "apps", "update", "dd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")
}

func TestParseTargets(t *testing.T) {
	targets, err := parseTargets([]string{"dd=1.0", "dd-fe = 2.0"})
	require.NoError(t, err)
	assert.Equal(t, []apiclient.AppVersion{{AppKey: "dd", Version: "1.0"}, {AppKey: "dd-fe", Version: "2.0"}}, targets)

	for _, bad := range []string{"dd", "=1.0", "dd="} {
		_, err := parseTargets([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestConfigFileSetsBaseURL(t *testing.T) {
	base := startAPI(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_base_url: "+base+"\nretries: 0\n"), 0o600))

	var out bytes.Buffer
	root := newRootCmd(&out, "test")
	root.SetArgs([]string{"--config", path, "apps", "list"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "KEY")
}

func TestMissingConfigFileFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	root := newRootCmd(&out, "test")
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "apps", "list"})
	require.Error(t, root.ExecuteContext(context.Background()))
}
