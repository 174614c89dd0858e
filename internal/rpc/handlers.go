package rpc

import (
	"context"

	"github.com/fast-gateway-protocol/vercel/internal/vercel"
)

// Default limits applied when the caller omits the optional limit param.
const (
	defaultProjectLimit    = 20
	defaultDeploymentLimit = 20
	defaultLogLimit        = 100
)

// API is the slice of the upstream client the handlers depend on.
type API interface {
	ListProjects(ctx context.Context, limit int) (*vercel.ProjectList, error)
	GetProject(ctx context.Context, projectID string) (*vercel.Project, error)
	ListDeployments(ctx context.Context, projectID string, limit int) (*vercel.DeploymentList, error)
	GetDeployment(ctx context.Context, deploymentID string) (*vercel.Deployment, error)
	GetLogs(ctx context.Context, deploymentID string, limit int) (*vercel.LogList, error)
	GetUser(ctx context.Context) (*vercel.User, error)
	ListDomains(ctx context.Context, projectID string) (*vercel.DomainList, error)
	State() vercel.State
	Probe(ctx context.Context) error
}

// HealthStatus is the health method's result payload.
type HealthStatus struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Version  string `json:"version"`
	Upstream string `json:"upstream"`
}

// NewVercelRegistry builds the immutable method table. Handlers are pure
// orchestration: validated params in, one upstream call, result out.
func NewVercelRegistry(api API, service, version string) *Registry {
	r := NewRegistry()

	r.Register(MethodSpec{
		Name:           "list_projects",
		OptionalParams: map[string]any{"limit": defaultProjectLimit},
		Handler: func(ctx context.Context, p Params) (any, error) {
			limit, err := p.Int("limit", defaultProjectLimit)
			if err != nil {
				return nil, err
			}
			return api.ListProjects(ctx, limit)
		},
	})

	r.Register(MethodSpec{
		Name:           "get_project",
		RequiredParams: []string{"project_id"},
		Handler: func(ctx context.Context, p Params) (any, error) {
			projectID, err := p.String("project_id")
			if err != nil {
				return nil, err
			}
			return api.GetProject(ctx, projectID)
		},
	})

	r.Register(MethodSpec{
		Name:           "list_deployments",
		RequiredParams: []string{"project_id"},
		OptionalParams: map[string]any{"limit": defaultDeploymentLimit},
		Handler: func(ctx context.Context, p Params) (any, error) {
			projectID, err := p.String("project_id")
			if err != nil {
				return nil, err
			}
			limit, err := p.Int("limit", defaultDeploymentLimit)
			if err != nil {
				return nil, err
			}
			return api.ListDeployments(ctx, projectID, limit)
		},
	})

	r.Register(MethodSpec{
		Name:           "get_deployment",
		RequiredParams: []string{"deployment_id"},
		Handler: func(ctx context.Context, p Params) (any, error) {
			deploymentID, err := p.String("deployment_id")
			if err != nil {
				return nil, err
			}
			return api.GetDeployment(ctx, deploymentID)
		},
	})

	r.Register(MethodSpec{
		Name:           "get_logs",
		RequiredParams: []string{"deployment_id"},
		OptionalParams: map[string]any{"limit": defaultLogLimit},
		Handler: func(ctx context.Context, p Params) (any, error) {
			deploymentID, err := p.String("deployment_id")
			if err != nil {
				return nil, err
			}
			limit, err := p.Int("limit", defaultLogLimit)
			if err != nil {
				return nil, err
			}
			return api.GetLogs(ctx, deploymentID, limit)
		},
	})

	r.Register(MethodSpec{
		Name: "get_user",
		Handler: func(ctx context.Context, p Params) (any, error) {
			return api.GetUser(ctx)
		},
	})

	r.Register(MethodSpec{
		Name:           "list_domains",
		RequiredParams: []string{"project_id"},
		Handler: func(ctx context.Context, p Params) (any, error) {
			projectID, err := p.String("project_id")
			if err != nil {
				return nil, err
			}
			return api.ListDomains(ctx, projectID)
		},
	})

	r.Register(MethodSpec{
		Name: "health",
		Handler: func(ctx context.Context, p Params) (any, error) {
			// A failed upstream gets one probe here so a recovered API
			// flips the daemon back to connected without a restart.
			if api.State() == vercel.StateFailed {
				_ = api.Probe(ctx)
			}
			return &HealthStatus{
				Status:   "ok",
				Service:  service,
				Version:  version,
				Upstream: api.State().String(),
			}, nil
		},
	})

	return r
}
