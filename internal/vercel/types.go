package vercel

// Project is the normalized shape of a Vercel project.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Framework string `json:"framework,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// ProjectList is the list_projects result payload.
type ProjectList struct {
	Projects []Project `json:"projects"`
	Count    int       `json:"count"`
}

// Deployment is the normalized shape of a deployment, whichever endpoint
// it came from (the list and detail endpoints disagree on field names).
type Deployment struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	State   string            `json:"state"`
	Created int64             `json:"created,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// DeploymentList is the list_deployments result payload.
type DeploymentList struct {
	Deployments []Deployment `json:"deployments"`
	Count       int          `json:"count"`
}

// LogEvent is one build/runtime log line for a deployment.
type LogEvent struct {
	Level   string `json:"level"`
	Created int64  `json:"created,omitempty"`
	Message string `json:"message"`
}

// LogList is the get_logs result payload.
type LogList struct {
	Logs  []LogEvent `json:"logs"`
	Count int        `json:"count"`
}

// User is the authenticated account behind the configured token.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

// Domain is one domain attached to a project.
type Domain struct {
	Name      string `json:"name"`
	Verified  bool   `json:"verified"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// DomainList is the list_domains result payload.
type DomainList struct {
	Domains []Domain `json:"domains"`
	Count   int      `json:"count"`
}

// Wire shapes returned by the Vercel REST API.

type projectsResponse struct {
	Projects []Project `json:"projects"`
}

type deploymentsResponse struct {
	Deployments []wireDeployment `json:"deployments"`
}

// wireDeployment covers both the v6 list shape (uid/state/created) and the
// v13 detail shape (id/readyState/createdAt).
type wireDeployment struct {
	ID         string            `json:"id"`
	UID        string            `json:"uid"`
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	State      string            `json:"state"`
	ReadyState string            `json:"readyState"`
	Created    int64             `json:"created"`
	CreatedAt  int64             `json:"createdAt"`
	Meta       map[string]string `json:"meta"`
}

func (w wireDeployment) normalize() Deployment {
	d := Deployment{
		ID:      w.ID,
		Name:    w.Name,
		URL:     w.URL,
		State:   w.State,
		Created: w.Created,
		Meta:    w.Meta,
	}
	if d.ID == "" {
		d.ID = w.UID
	}
	if d.State == "" {
		d.State = w.ReadyState
	}
	if d.Created == 0 {
		d.Created = w.CreatedAt
	}
	return d
}

type wireLogEvent struct {
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Text    string `json:"text"`
	Payload struct {
		Text string `json:"text"`
	} `json:"payload"`
}

func (w wireLogEvent) normalize() LogEvent {
	msg := w.Text
	if msg == "" {
		msg = w.Payload.Text
	}
	level := "info"
	if w.Type == "stderr" || w.Type == "error" || w.Type == "fatal" {
		level = "error"
	}
	return LogEvent{Level: level, Created: w.Created, Message: msg}
}

type userResponse struct {
	User struct {
		ID       string `json:"id"`
		UID      string `json:"uid"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"user"`
}

type domainsResponse struct {
	Domains []Domain `json:"domains"`
}
