package domain

import "time"

// ComponentRef names a direct component of an app.
type ComponentRef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// DeploymentStamp is the per-environment evidence shown for a version.
type DeploymentStamp struct {
	DeployedAt      time.Time `json:"deployed_at"`
	TicketReference string    `json:"ticket,omitempty"`
}

// VersionDetail lists where a version was deployed, keyed by environment name.
type VersionDetail struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	Deployments map[string]DeploymentStamp `json:"deployments"`
}

// AppDetail is the read model of one app and its subtree.
type AppDetail struct {
	Key          string         `json:"key"`
	Name         string         `json:"name"`
	ParentKey    string         `json:"parent,omitempty"`
	ArchivedAt   *time.Time     `json:"archived_at,omitempty"`
	Environments []string       `json:"environments"`
	Components   []ComponentRef `json:"components"`
	// Versions maps the app key and each component key to its versions, newest first.
	Versions map[string][]VersionDetail `json:"versions"`
}

// ProjectOverview summarises the latest release of a project.
type ProjectOverview struct {
	Key          string          `json:"key"`
	Name         string          `json:"name"`
	Latest       *DeploymentView `json:"latest,omitempty"`
	ReleasedWith []string        `json:"released_with"`
}
