package domain

import "time"

// App is a node in a forest of application trees. An App without a parent is a project.
type App struct {
	ID         int64
	Key        string
	Name       string
	ParentID   *int64
	ArchivedAt *time.Time
	CreatedAt  time.Time
}

// IsProject reports whether the app is a tree root.
func (a App) IsProject() bool {
	return a.ParentID == nil
}

// IsArchived reports whether the app was soft deleted.
func (a App) IsArchived() bool {
	return a.ArchivedAt != nil
}
