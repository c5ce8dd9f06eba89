package domain

import "time"

// Deployment records that a version was deployed to an environment.
type Deployment struct {
	ID              int64
	EnvironmentID   int64
	VersionID       int64
	ReleaseID       string
	TicketReference string
	DeployedAt      time.Time
}

// DeploymentView is a deployment joined with the names of the entities it references.
type DeploymentView struct {
	ID              int64     `json:"id"`
	AppKey          string    `json:"app_key"`
	AppName         string    `json:"app_name"`
	EnvironmentName string    `json:"environment"`
	VersionName     string    `json:"version"`
	VersionID       int64     `json:"version_id"`
	ReleaseID       string    `json:"release_id,omitempty"`
	TicketReference string    `json:"ticket,omitempty"`
	DeployedAt      time.Time `json:"deployed_at"`
}
