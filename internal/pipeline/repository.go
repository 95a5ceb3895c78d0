package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetpoint/meetpoint/internal/platform/db"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// Repository provides PostgreSQL backed persistence for stages.
// Table layout: stages(id, workflow_kind, workflow_id, name, position,
// color, created_at, updated_at) unique on (workflow_kind, workflow_id,
// position).
//
// Every shift runs in the same RepeatableRead transaction as the mutation
// that caused it, and the transaction re-reads the scope and verifies
// density before commit. Bulk shifts go through shiftRange, which parks
// the affected rows at negated positions first: the unique index checks
// per row, so a single-statement shift would collide with rows it has not
// reached yet.
type Repository struct {
	conn db.Conn
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{conn: pool}
}

// shiftRange moves the workflow's stages with positions in [from, to] by
// delta, in two statements so no intermediate state violates the unique
// position index. to = 0 means unbounded.
func shiftRange(ctx context.Context, tx pgx.Tx, workflow resource.Ref, from, to, delta int) error {
	var err error
	if to == 0 {
		_, err = tx.Exec(ctx, `
			UPDATE stages SET position = -position
			WHERE workflow_kind = $1 AND workflow_id = $2 AND position >= $3
		`, string(workflow.Kind), workflow.ID, from)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE stages SET position = -position
			WHERE workflow_kind = $1 AND workflow_id = $2 AND position BETWEEN $3 AND $4
		`, string(workflow.Kind), workflow.ID, from, to)
	}
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE stages SET position = -position + $3, updated_at = NOW()
		WHERE workflow_kind = $1 AND workflow_id = $2 AND position < 0
	`, string(workflow.Kind), workflow.ID, delta)
	return err
}

// List returns the stages of a workflow ordered by position.
func (r *Repository) List(ctx context.Context, workflow resource.Ref) ([]Stage, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, workflow_kind, workflow_id, name, position, color, created_at, updated_at
		FROM stages
		WHERE workflow_kind = $1 AND workflow_id = $2
		ORDER BY position
	`, string(workflow.Kind), workflow.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStages(rows)
}

// Get fetches one stage by id.
func (r *Repository) Get(ctx context.Context, id int64) (Stage, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, workflow_kind, workflow_id, name, position, color, created_at, updated_at
		FROM stages WHERE id = $1
	`, id)
	s, err := scanStage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stage{}, fmt.Errorf("%w: stage %d", shared.ErrNotFound, id)
		}
		return Stage{}, err
	}
	return s, nil
}

// Insert writes a stage at the given position, shifting existing stages at
// or above it up by one first. Position 0 appends.
func (r *Repository) Insert(ctx context.Context, workflow resource.Ref, name string, color Color, position int) (Stage, error) {
	var created Stage
	err := db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM stages WHERE workflow_kind = $1 AND workflow_id = $2
		`, string(workflow.Kind), workflow.ID).Scan(&count); err != nil {
			return err
		}
		if position == 0 {
			position = count + 1
		}
		if position < 1 || position > count+1 {
			return shared.Validationf("position %d out of range 1..%d", position, count+1)
		}

		if err := shiftRange(ctx, tx, workflow, position, 0, 1); err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO stages (workflow_kind, workflow_id, name, position, color)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, workflow_kind, workflow_id, name, position, color, created_at, updated_at
		`, string(workflow.Kind), workflow.ID, name, position, string(color))
		var err error
		created, err = scanStage(row)
		if err != nil {
			return err
		}
		return verifyDense(ctx, tx, workflow)
	})
	if err != nil {
		return Stage{}, err
	}
	return created, nil
}

// Move shifts the closed interval between the old and new position by one
// and writes the moved stage at its new position, all in one transaction.
func (r *Repository) Move(ctx context.Context, stageID int64, newPosition int) error {
	return db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		var (
			workflowKind string
			workflowID   int64
			oldPosition  int
		)
		err := tx.QueryRow(ctx, `
			SELECT workflow_kind, workflow_id, position FROM stages WHERE id = $1 FOR UPDATE
		`, stageID).Scan(&workflowKind, &workflowID, &oldPosition)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: stage %d", shared.ErrNotFound, stageID)
			}
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM stages WHERE workflow_kind = $1 AND workflow_id = $2
		`, workflowKind, workflowID).Scan(&count); err != nil {
			return err
		}
		if newPosition < 1 || newPosition > count {
			return shared.Validationf("position %d out of range 1..%d", newPosition, count)
		}
		if newPosition == oldPosition {
			return nil
		}

		// Park the moved row outside the dense range so the interval shift
		// never collides with the uniqueness constraint.
		if _, err := tx.Exec(ctx, `
			UPDATE stages SET position = 0, updated_at = NOW() WHERE id = $1
		`, stageID); err != nil {
			return err
		}

		workflow := resource.Ref{Kind: resource.Kind(workflowKind), ID: workflowID}
		if newPosition > oldPosition {
			err = shiftRange(ctx, tx, workflow, oldPosition+1, newPosition, -1)
		} else {
			err = shiftRange(ctx, tx, workflow, newPosition, oldPosition-1, 1)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE stages SET position = $2, updated_at = NOW() WHERE id = $1
		`, stageID, newPosition); err != nil {
			return err
		}
		return verifyDense(ctx, tx, workflow)
	})
}

// Delete removes the stage, its bound actions, and closes the gap.
func (r *Repository) Delete(ctx context.Context, stageID int64) error {
	return db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		var (
			workflowKind string
			workflowID   int64
			position     int
		)
		err := tx.QueryRow(ctx, `
			SELECT workflow_kind, workflow_id, position FROM stages WHERE id = $1 FOR UPDATE
		`, stageID).Scan(&workflowKind, &workflowID, &position)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: stage %d", shared.ErrNotFound, stageID)
			}
			return err
		}

		// Bound actions are owned by the stage.
		if _, err := tx.Exec(ctx, `DELETE FROM bound_actions WHERE stage_id = $1`, stageID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM stages WHERE id = $1`, stageID); err != nil {
			return err
		}
		workflow := resource.Ref{Kind: resource.Kind(workflowKind), ID: workflowID}
		if err := shiftRange(ctx, tx, workflow, position+1, 0, -1); err != nil {
			return err
		}
		return verifyDense(ctx, tx, workflow)
	})
}

// DeleteByWorkflow removes a workflow's whole pipeline (record cascade).
func (r *Repository) DeleteByWorkflow(ctx context.Context, tx pgx.Tx, workflow resource.Ref) error {
	if _, err := tx.Exec(ctx, `
		DELETE FROM bound_actions WHERE stage_id IN (
			SELECT id FROM stages WHERE workflow_kind = $1 AND workflow_id = $2
		)
	`, string(workflow.Kind), workflow.ID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		DELETE FROM stages WHERE workflow_kind = $1 AND workflow_id = $2
	`, string(workflow.Kind), workflow.ID)
	return err
}

func verifyDense(ctx context.Context, tx pgx.Tx, workflow resource.Ref) error {
	rows, err := tx.Query(ctx, `
		SELECT position FROM stages
		WHERE workflow_kind = $1 AND workflow_id = $2
		ORDER BY position
	`, string(workflow.Kind), workflow.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	want := 1
	for rows.Next() {
		var got int
		if err := rows.Scan(&got); err != nil {
			return err
		}
		if got != want {
			return shared.Consistencyf("workflow %s: want position %d, got %d", workflow, want, got)
		}
		want++
	}
	return rows.Err()
}

func collectStages(rows pgx.Rows) ([]Stage, error) {
	var stages []Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

func scanStage(row pgx.Row) (Stage, error) {
	var (
		s            Stage
		workflowKind string
		color        string
	)
	if err := row.Scan(&s.ID, &workflowKind, &s.Workflow.ID, &s.Name, &s.Position, &color, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Stage{}, err
	}
	s.Workflow.Kind = resource.Kind(workflowKind)
	s.Color = Color(color)
	return s, nil
}
