// Package vercel implements the daemon's warm channel to the Vercel REST
// API. One shared http.Client with a keep-alive transport amortizes TLS
// setup across local requests; the transport also guarantees that no two
// concurrent requests share a physical connection mid-flight.
package vercel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fast-gateway-protocol/vercel/internal/observability"
	"github.com/fast-gateway-protocol/vercel/internal/protocol"
)

// State is the upstream connection health.
type State int

const (
	StateConnected State = iota
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client owns the authenticated channel to the Vercel API. Construct once
// at daemon start, share across all handlers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	teamID     string
	logger     *zap.Logger
	metrics    *observability.Metrics

	mu    sync.Mutex
	state State
}

// NewClient constructs a Client with sane defaults. The token must be
// non-empty; the lifecycle manager validates that before calling here.
func NewClient(baseURL, token, teamID string, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = "https://api.vercel.com"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.SetUpstreamState(StateConnected.String())
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		teamID:     teamID,
		logger:     logger,
		metrics:    metrics,
	}
}

// State returns the current health state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed {
		c.logger.Info("upstream state changed", zap.String("state", s.String()))
		c.metrics.SetUpstreamState(s.String())
	}
}

// ListProjects returns up to limit projects.
func (c *Client) ListProjects(ctx context.Context, limit int) (*ProjectList, error) {
	q := url.Values{"limit": {fmt.Sprint(limit)}}
	var body projectsResponse
	if err := c.get(ctx, "/v9/projects", q, &body); err != nil {
		return nil, err
	}
	projects := body.Projects
	if len(projects) > limit {
		projects = projects[:limit]
	}
	if projects == nil {
		projects = []Project{}
	}
	return &ProjectList{Projects: projects, Count: len(projects)}, nil
}

// GetProject fetches one project by id or name.
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var body Project
	if err := c.get(ctx, "/v9/projects/"+url.PathEscape(projectID), nil, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// ListDeployments returns up to limit deployments for a project.
func (c *Client) ListDeployments(ctx context.Context, projectID string, limit int) (*DeploymentList, error) {
	q := url.Values{"projectId": {projectID}, "limit": {fmt.Sprint(limit)}}
	var body deploymentsResponse
	if err := c.get(ctx, "/v6/deployments", q, &body); err != nil {
		return nil, err
	}
	deployments := make([]Deployment, 0, len(body.Deployments))
	for _, d := range body.Deployments {
		deployments = append(deployments, d.normalize())
	}
	if len(deployments) > limit {
		deployments = deployments[:limit]
	}
	return &DeploymentList{Deployments: deployments, Count: len(deployments)}, nil
}

// GetDeployment fetches one deployment by id or URL.
func (c *Client) GetDeployment(ctx context.Context, deploymentID string) (*Deployment, error) {
	var body wireDeployment
	if err := c.get(ctx, "/v13/deployments/"+url.PathEscape(deploymentID), nil, &body); err != nil {
		return nil, err
	}
	d := body.normalize()
	return &d, nil
}

// GetLogs fetches up to limit build/runtime log events for a deployment.
func (c *Client) GetLogs(ctx context.Context, deploymentID string, limit int) (*LogList, error) {
	q := url.Values{"limit": {fmt.Sprint(limit)}}
	var body []wireLogEvent
	if err := c.get(ctx, "/v2/deployments/"+url.PathEscape(deploymentID)+"/events", q, &body); err != nil {
		return nil, err
	}
	logs := make([]LogEvent, 0, len(body))
	for _, e := range body {
		logs = append(logs, e.normalize())
	}
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return &LogList{Logs: logs, Count: len(logs)}, nil
}

// GetUser fetches the account behind the configured token.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var body userResponse
	if err := c.get(ctx, "/v2/user", nil, &body); err != nil {
		return nil, err
	}
	u := User{
		ID:       body.User.ID,
		Email:    body.User.Email,
		Name:     body.User.Name,
		Username: body.User.Username,
	}
	if u.ID == "" {
		u.ID = body.User.UID
	}
	return &u, nil
}

// ListDomains fetches the domains attached to a project.
func (c *Client) ListDomains(ctx context.Context, projectID string) (*DomainList, error) {
	var body domainsResponse
	if err := c.get(ctx, "/v9/projects/"+url.PathEscape(projectID)+"/domains", nil, &body); err != nil {
		return nil, err
	}
	domains := body.Domains
	if domains == nil {
		domains = []Domain{}
	}
	return &DomainList{Domains: domains, Count: len(domains)}, nil
}

// Probe attempts one request to the user endpoint, bypassing the
// fail-fast gate, and flips the state back to Connected when the channel
// answers at the HTTP level (any status code counts as reachable).
func (c *Client) Probe(ctx context.Context) error {
	var body userResponse
	err := c.doOnce(ctx, "/v2/user", nil, &body)
	var apiErr *APIError
	if err == nil || errors.As(err, &apiErr) {
		c.setState(StateConnected)
		return err
	}
	c.setState(StateFailed)
	return err
}

// get runs one API call through the health state machine: fail fast while
// Failed, otherwise attempt, retry once on transport failure, and mark
// Failed when the retry also dies.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if c.State() == StateFailed {
		return &APIError{
			Kind:    protocol.KindUpstreamUnavailable,
			Message: "upstream connection failed; waiting for a successful health probe",
		}
	}

	err := c.doOnce(ctx, path, query, out)
	if err == nil {
		c.setState(StateConnected)
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		// HTTP-level failure: the channel itself is healthy.
		c.setState(StateConnected)
		return err
	}
	if ctx.Err() != nil {
		// Caller went away; not a verdict on upstream health.
		return err
	}

	c.setState(StateReconnecting)
	c.metrics.RecordUpstreamRetry()
	c.logger.Warn("upstream transport failure, retrying once",
		zap.String("path", path), zap.Error(err))

	err = c.doOnce(ctx, path, query, out)
	if err == nil {
		c.setState(StateConnected)
		return nil
	}
	if errors.As(err, &apiErr) {
		c.setState(StateConnected)
		return err
	}

	c.setState(StateFailed)
	return &APIError{
		Kind:    protocol.KindUpstreamUnavailable,
		Message: fmt.Sprintf("vercel api unreachable: %v", err),
	}
}

// doOnce performs a single GET. HTTP-level failures come back as *APIError;
// anything else is a transport failure.
func (c *Client) doOnce(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	if c.teamID != "" {
		q.Set("teamId", c.teamID)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 8192))
		return statusError(res.StatusCode, body, res.Header.Get("Retry-After"))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &APIError{Kind: protocol.KindInternal, Message: fmt.Sprintf("decode response: %v", err), StatusCode: res.StatusCode}
	}
	return nil
}
