// Package events manages practicum events. An event belongs to a project
// and moves through the project's stage pipeline; it also owns a pipeline
// of its own that its tasks move through.
package events

import (
	"time"

	"github.com/meetpoint/meetpoint/internal/resource"
)

// Event is one practicum event record.
type Event struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	StageID     int64      `json:"stage_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Ref returns the event's resource reference.
func (e Event) Ref() resource.Ref {
	return resource.Ref{Kind: resource.KindEvent, ID: e.ID}
}
