package domain

import "time"

// Environment is a named deployment target owned by a project root.
type Environment struct {
	ID        int64
	AppID     int64
	Name      string
	CreatedAt time.Time
}
