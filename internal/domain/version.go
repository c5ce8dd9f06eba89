package domain

import "time"

// Version is a named build artifact of exactly one app. ID grows with creation order.
type Version struct {
	ID          int64
	AppID       int64
	Name        string
	Description string
	CreatedAt   time.Time
}
