package models

import "time"

// Task is a to-do record owned by a single user. The datastore is the source
// of truth; the gateway only holds tasks in memory for the span of one request.
type Task struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}
