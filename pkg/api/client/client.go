package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client provides typed access to the deployment dashboard API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default retrying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// transientStatuses are retried for every method.
var transientStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// NewRetryingHTTPClient returns an http.Client that retries connection errors and
// transient statuses with backoff. logger may be nil.
func NewRetryingHTTPClient(retries int, logger *slog.Logger) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = nil
	if logger != nil {
		rc.Logger = logger
	}
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return slices.Contains(transientStatuses, resp.StatusCode), nil
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc.StandardClient()
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: NewRetryingHTTPClient(3, nil),
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// Conflict describes the recorded deployment a release collided with.
type Conflict struct {
	AppKey      string    `json:"app_key"`
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
	VersionID   int64     `json:"version_id"`
	DeployedAt  time.Time `json:"deployed_at"`
	Ticket      string    `json:"ticket,omitempty"`
}

// APIError represents an error response from the API.
type APIError struct {
	Status   int
	Kind     string
	Message  string
	ForceURL string
	Conflict *Conflict
	// Committed lists the release entries recorded before the failure.
	Committed []Deployment
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// Forceable reports whether retrying the release with force would record it.
func (e APIError) Forceable() bool {
	return e.ForceURL != ""
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return extractError(resp.StatusCode, resp.Body)
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(status int, body io.Reader) APIError {
	apiErr := APIError{Status: status}
	if body == nil {
		return apiErr
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Error     string       `json:"error"`
		Details   string       `json:"details"`
		ForceURL  string       `json:"force_url"`
		Conflict  *Conflict    `json:"conflict"`
		Committed []Deployment `json:"committed"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Kind = payload.Error
	apiErr.Message = strings.TrimSpace(payload.Details)
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(payload.Error)
	}
	apiErr.ForceURL = payload.ForceURL
	apiErr.Conflict = payload.Conflict
	apiErr.Committed = payload.Committed
	return apiErr
}

func appPath(key string, rest ...string) string {
	parts := []string{"/api/apps", url.PathEscape(strings.TrimSpace(key))}
	for _, r := range rest {
		parts = append(parts, url.PathEscape(r))
	}
	return strings.Join(parts, "/")
}

func withForce(path string, force bool) string {
	if !force {
		return path
	}
	return path + "?force=" + strconv.FormatBool(force)
}

// VersionDeployment is the evidence of a version in one environment.
type VersionDeployment struct {
	DeployedAt time.Time `json:"deployed_at"`
	Ticket     string    `json:"ticket,omitempty"`
}

// Version lists where a version was deployed, keyed by environment.
type Version struct {
	Name        string                       `json:"name"`
	Description string                       `json:"description,omitempty"`
	CreatedAt   time.Time                    `json:"created_at"`
	Deployments map[string]VersionDeployment `json:"deployments"`
}

// Component names a direct component of an app.
type Component struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// App is the detail view of an app and its components.
type App struct {
	Key          string               `json:"key"`
	Name         string               `json:"name"`
	Parent       string               `json:"parent,omitempty"`
	ArchivedAt   *time.Time           `json:"archived_at,omitempty"`
	Environments []string             `json:"environments"`
	Components   []Component          `json:"components"`
	Versions     map[string][]Version `json:"versions"`
}

// AppInput creates or updates an app. Empty fields keep their value on update,
// except Parent which detaches the app when empty.
type AppInput struct {
	Key    string `json:"key,omitempty"`
	Name   string `json:"name,omitempty"`
	Parent string `json:"parent,omitempty"`
}

// CreateApp registers an app.
func (c *Client) CreateApp(ctx context.Context, input AppInput) (App, error) {
	var app App
	if err := c.do(ctx, http.MethodPost, "/api/apps", input, &app); err != nil {
		return App{}, err
	}
	return app, nil
}

// UpdateApp changes key, name or parent of an app.
func (c *Client) UpdateApp(ctx context.Context, key string, input AppInput) (App, error) {
	var app App
	if err := c.do(ctx, http.MethodPut, appPath(key), input, &app); err != nil {
		return App{}, err
	}
	return app, nil
}

// DeleteApp archives an app, or removes it with its subtree when force is set.
func (c *Client) DeleteApp(ctx context.Context, key string, force bool) error {
	return c.do(ctx, http.MethodDelete, withForce(appPath(key), force), nil, nil)
}

// GetApp fetches the detail view of an app, archived ones included.
func (c *Client) GetApp(ctx context.Context, key string) (App, error) {
	var app App
	if err := c.do(ctx, http.MethodGet, appPath(key), nil, &app); err != nil {
		return App{}, err
	}
	return app, nil
}

// ListApps returns the detail view of every live project.
func (c *Client) ListApps(ctx context.Context) ([]App, error) {
	var apps []App
	if err := c.do(ctx, http.MethodGet, "/api/apps", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// Deployment is one ledger entry.
type Deployment struct {
	ID          int64     `json:"id"`
	AppKey      string    `json:"app_key"`
	AppName     string    `json:"app_name"`
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
	VersionID   int64     `json:"version_id"`
	ReleaseID   string    `json:"release_id,omitempty"`
	Ticket      string    `json:"ticket,omitempty"`
	DeployedAt  time.Time `json:"deployed_at"`
}

// ProjectOverview summarises the latest release of a project.
type ProjectOverview struct {
	Key          string      `json:"key"`
	Name         string      `json:"name"`
	Latest       *Deployment `json:"latest,omitempty"`
	ReleasedWith []string    `json:"released_with"`
}

// Overview returns the latest release of every live project.
func (c *Client) Overview(ctx context.Context) ([]ProjectOverview, error) {
	var overviews []ProjectOverview
	if err := c.do(ctx, http.MethodGet, "/api/apps-overview", nil, &overviews); err != nil {
		return nil, err
	}
	return overviews, nil
}

// Environment is a deployment target of a project.
type Environment struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ListEnvironments returns the environments shared by the project of appKey.
func (c *Client) ListEnvironments(ctx context.Context, appKey string) ([]Environment, error) {
	var envs []Environment
	if err := c.do(ctx, http.MethodGet, appPath(appKey, "envs"), nil, &envs); err != nil {
		return nil, err
	}
	return envs, nil
}

// CreateEnvironment adds an environment to the project of appKey.
func (c *Client) CreateEnvironment(ctx context.Context, appKey, name string) (Environment, error) {
	var env Environment
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, appPath(appKey, "envs"), body, &env); err != nil {
		return Environment{}, err
	}
	return env, nil
}

// EnvironmentInput renames an environment and optionally moves it to another project.
type EnvironmentInput struct {
	Name   string `json:"name,omitempty"`
	AppKey string `json:"app_key,omitempty"`
}

// UpdateEnvironment renames or moves an environment.
func (c *Client) UpdateEnvironment(ctx context.Context, appKey, name string, input EnvironmentInput) (Environment, error) {
	var env Environment
	if err := c.do(ctx, http.MethodPut, appPath(appKey, "envs", name), input, &env); err != nil {
		return Environment{}, err
	}
	return env, nil
}

// DeleteEnvironment removes an environment; force also removes its deployments.
func (c *Client) DeleteEnvironment(ctx context.Context, appKey, name string, force bool) error {
	return c.do(ctx, http.MethodDelete, withForce(appPath(appKey, "envs", name), force), nil, nil)
}

// AppVersion pairs an app with the version to record for it.
type AppVersion struct {
	AppKey  string
	Version string
}

// ReleaseInput describes a release call. Versions are sent in order.
type ReleaseInput struct {
	Project     string
	Environment string
	Versions    []AppVersion
	Ticket      string
	Force       bool
}

// ReleaseResult lists the deployments recorded by a release.
type ReleaseResult struct {
	ReleaseID   string       `json:"release_id"`
	Deployments []Deployment `json:"deployments"`
}

// Release records the versions to an environment of a project.
func (c *Client) Release(ctx context.Context, input ReleaseInput) (ReleaseResult, error) {
	prefix := "/api"
	if input.Force {
		prefix = "/api/force"
	}
	pairs := make([]string, 0, len(input.Versions)+1)
	for _, v := range input.Versions {
		pairs = append(pairs, url.QueryEscape(v.AppKey)+"="+url.QueryEscape(v.Version))
	}
	if strings.TrimSpace(input.Ticket) != "" {
		pairs = append(pairs, "ticket="+url.QueryEscape(input.Ticket))
	}
	path := prefix + strings.TrimPrefix(appPath(input.Project, "envs", input.Environment, "versions"), "/api") + "?" + strings.Join(pairs, "&")
	var result ReleaseResult
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return ReleaseResult{}, err
	}
	return result, nil
}

// UpdateVersion replaces the description of a version.
func (c *Client) UpdateVersion(ctx context.Context, appKey, version, description string) error {
	body := map[string]string{"description": description}
	return c.do(ctx, http.MethodPut, appPath(appKey, "versions", version), body, nil)
}

// DeleteVersion removes a version; force also removes its deployments.
func (c *Client) DeleteVersion(ctx context.Context, appKey, version string, force bool) error {
	return c.do(ctx, http.MethodDelete, withForce(appPath(appKey, "versions", version), force), nil, nil)
}

// DeleteDeployment removes the deployment of version of appKey to env.
func (c *Client) DeleteDeployment(ctx context.Context, appKey, env, version string) error {
	return c.do(ctx, http.MethodDelete, appPath(appKey, "envs", env, "versions", version, "deployment"), nil, nil)
}

// ListDeployments returns the ledger, newest first.
func (c *Client) ListDeployments(ctx context.Context) ([]Deployment, error) {
	var deployments []Deployment
	if err := c.do(ctx, http.MethodGet, "/api/deployments", nil, &deployments); err != nil {
		return nil, err
	}
	return deployments, nil
}
