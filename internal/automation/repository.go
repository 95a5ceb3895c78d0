package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetpoint/meetpoint/internal/platform/db"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// Repository provides PostgreSQL backed persistence for bound actions.
// Table layout: bound_actions(id, stage_id, position, action_kind, config
// JSONB, created_at, updated_at) unique on (stage_id, position). The
// positional algorithm mirrors the stage table, scoped per stage: bulk
// shifts park rows at negated positions first, so the unique index never
// sees two rows collide mid-statement.
type Repository struct {
	conn db.Conn
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{conn: pool}
}

// shiftActionRange moves the stage's actions with positions in [from, to]
// by delta, in two statements. to = 0 means unbounded.
func shiftActionRange(ctx context.Context, tx pgx.Tx, stageID int64, from, to, delta int) error {
	var err error
	if to == 0 {
		_, err = tx.Exec(ctx, `
			UPDATE bound_actions SET position = -position
			WHERE stage_id = $1 AND position >= $2
		`, stageID, from)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE bound_actions SET position = -position
			WHERE stage_id = $1 AND position BETWEEN $2 AND $3
		`, stageID, from, to)
	}
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE bound_actions SET position = -position + $2, updated_at = NOW()
		WHERE stage_id = $1 AND position < 0
	`, stageID, delta)
	return err
}

// List returns the stage's actions ordered by position.
func (r *Repository) List(ctx context.Context, stageID int64) ([]BoundAction, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, stage_id, position, action_kind, config, created_at, updated_at
		FROM bound_actions
		WHERE stage_id = $1
		ORDER BY position
	`, stageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []BoundAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// Get fetches one bound action by id.
func (r *Repository) Get(ctx context.Context, id int64) (BoundAction, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, stage_id, position, action_kind, config, created_at, updated_at
		FROM bound_actions WHERE id = $1
	`, id)
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BoundAction{}, fmt.Errorf("%w: bound action %d", shared.ErrNotFound, id)
		}
		return BoundAction{}, err
	}
	return a, nil
}

// Insert writes a bound action at the given position, shifting later
// actions up. Position 0 appends.
func (r *Repository) Insert(ctx context.Context, stageID int64, kindKey string, config Config, position int) (BoundAction, error) {
	var created BoundAction
	err := db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM bound_actions WHERE stage_id = $1
		`, stageID).Scan(&count); err != nil {
			return err
		}
		if position == 0 {
			position = count + 1
		}
		if position < 1 || position > count+1 {
			return shared.Validationf("position %d out of range 1..%d", position, count+1)
		}

		if err := shiftActionRange(ctx, tx, stageID, position, 0, 1); err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO bound_actions (stage_id, position, action_kind, config)
			VALUES ($1, $2, $3, $4)
			RETURNING id, stage_id, position, action_kind, config, created_at, updated_at
		`, stageID, position, kindKey, config)
		var err error
		created, err = scanAction(row)
		if err != nil {
			return err
		}
		return verifyDenseActions(ctx, tx, stageID)
	})
	if err != nil {
		return BoundAction{}, err
	}
	return created, nil
}

// Move relocates a bound action within its stage.
func (r *Repository) Move(ctx context.Context, actionID int64, newPosition int) error {
	return db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		var (
			stageID     int64
			oldPosition int
		)
		err := tx.QueryRow(ctx, `
			SELECT stage_id, position FROM bound_actions WHERE id = $1 FOR UPDATE
		`, actionID).Scan(&stageID, &oldPosition)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: bound action %d", shared.ErrNotFound, actionID)
			}
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM bound_actions WHERE stage_id = $1
		`, stageID).Scan(&count); err != nil {
			return err
		}
		if newPosition < 1 || newPosition > count {
			return shared.Validationf("position %d out of range 1..%d", newPosition, count)
		}
		if newPosition == oldPosition {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE bound_actions SET position = 0, updated_at = NOW() WHERE id = $1
		`, actionID); err != nil {
			return err
		}

		if newPosition > oldPosition {
			err = shiftActionRange(ctx, tx, stageID, oldPosition+1, newPosition, -1)
		} else {
			err = shiftActionRange(ctx, tx, stageID, newPosition, oldPosition-1, 1)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE bound_actions SET position = $2, updated_at = NOW() WHERE id = $1
		`, actionID, newPosition); err != nil {
			return err
		}
		return verifyDenseActions(ctx, tx, stageID)
	})
}

// UpdateConfig replaces the action's configuration in place. Position and
// kind are immutable; reordering goes through Move.
func (r *Repository) UpdateConfig(ctx context.Context, actionID int64, config Config) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE bound_actions SET config = $2, updated_at = NOW() WHERE id = $1
	`, actionID, config)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bound action %d", shared.ErrNotFound, actionID)
	}
	return nil
}

// Delete removes the action and closes the gap.
func (r *Repository) Delete(ctx context.Context, actionID int64) error {
	return db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		var (
			stageID  int64
			position int
		)
		err := tx.QueryRow(ctx, `
			SELECT stage_id, position FROM bound_actions WHERE id = $1 FOR UPDATE
		`, actionID).Scan(&stageID, &position)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: bound action %d", shared.ErrNotFound, actionID)
			}
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM bound_actions WHERE id = $1`, actionID); err != nil {
			return err
		}
		if err := shiftActionRange(ctx, tx, stageID, position+1, 0, -1); err != nil {
			return err
		}
		return verifyDenseActions(ctx, tx, stageID)
	})
}

// ListStagesWithKind returns the distinct stage ids that have at least one
// bound action of the given kind. Used by the worker's expiration scan.
func (r *Repository) ListStagesWithKind(ctx context.Context, kindKey string) ([]int64, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT DISTINCT stage_id FROM bound_actions WHERE action_kind = $1
	`, kindKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func verifyDenseActions(ctx context.Context, tx pgx.Tx, stageID int64) error {
	rows, err := tx.Query(ctx, `
		SELECT position FROM bound_actions WHERE stage_id = $1 ORDER BY position
	`, stageID)
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
			return shared.Consistencyf("stage %d: want action position %d, got %d", stageID, want, got)
		}
		want++
	}
	return rows.Err()
}

func scanAction(row pgx.Row) (BoundAction, error) {
	var a BoundAction
	if err := row.Scan(&a.ID, &a.StageID, &a.Position, &a.KindKey, &a.Config, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return BoundAction{}, err
	}
	return a, nil
}
