// Package projects manages practicum directions. A project owns a stage
// pipeline that its events move through; its direction leader manages
// both.
package projects

import "time"

// Project is one practicum direction.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	LeaderID    int64     `json:"leader_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
