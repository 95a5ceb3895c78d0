// Package pipeline maintains the ordered stages of a workflow. Positions
// are dense: after any insert, move or delete the stages of a workflow
// occupy exactly 1..N.
package pipeline

import (
	"time"

	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// Color is the board color of a stage.
type Color string

const (
	ColorGray   Color = "gray"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
)

// Valid reports whether c is a known color.
func (c Color) Valid() bool {
	switch c {
	case ColorGray, ColorGreen, ColorYellow, ColorRed:
		return true
	}
	return false
}

// Stage is a named, positioned step in a workflow's pipeline.
type Stage struct {
	ID        int64        `json:"id"`
	Workflow  resource.Ref `json:"workflow"`
	Name      string       `json:"name"`
	Position  int          `json:"position"`
	Color     Color        `json:"color"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// CheckDense verifies that stages, ordered as returned by the store, occupy
// positions 1..N with no duplicates or gaps. A violation is fatal: the
// enclosing transaction must roll back.
func CheckDense(stages []Stage) error {
	for i, s := range stages {
		if s.Position != i+1 {
			return shared.Consistencyf("stage positions not dense: want %d at index %d, got %d", i+1, i, s.Position)
		}
	}
	return nil
}

func validateWorkflow(workflow resource.Ref) error {
	if err := workflow.Validate(); err != nil {
		return err
	}
	switch workflow.Kind {
	case resource.KindEvent, resource.KindProject:
		return nil
	}
	return shared.Validationf("kind %q cannot own a pipeline", workflow.Kind)
}
