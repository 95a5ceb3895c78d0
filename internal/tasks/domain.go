// Package tasks manages the kanban task records that move through an
// event's stage pipeline. Tasks are the usual automation target: robots
// relocate them and triggers read their fields.
package tasks

import (
	"time"

	"github.com/meetpoint/meetpoint/internal/resource"
)

// Task is one kanban card bound to an event.
type Task struct {
	ID          int64      `json:"id"`
	EventID     int64      `json:"event_id"`
	StageID     int64      `json:"stage_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssigneeID  int64      `json:"assignee_id,omitempty"`
	Priority    int        `json:"priority"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Ref returns the task's resource reference.
func (t Task) Ref() resource.Ref {
	return resource.Ref{Kind: resource.KindTask, ID: t.ID}
}
