package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// Repository provides PostgreSQL backed persistence for tasks. Table:
// tasks(id, event_id, stage_id NULL, title, description, assignee_id
// NULL, priority, due_at NULL, created_at, updated_at).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `id, event_id, COALESCE(stage_id, 0), title, description, COALESCE(assignee_id, 0), priority, due_at, created_at, updated_at`

// ListByEvent returns the event's tasks ordered by priority then id.
func (r *Repository) ListByEvent(ctx context.Context, eventID int64) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE event_id = $1 ORDER BY priority DESC, id
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListByStage returns the tasks currently sitting in a stage.
func (r *Repository) ListByStage(ctx context.Context, stageID int64) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE stage_id = $1 ORDER BY id
	`, stageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListRefsByStage returns the references of a stage's tasks, for the
// expiration scan.
func (r *Repository) ListRefsByStage(ctx context.Context, stageID int64) ([]resource.Ref, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tasks WHERE stage_id = $1 ORDER BY id`, stageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []resource.Ref
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		refs = append(refs, resource.Ref{Kind: resource.KindTask, ID: id})
	}
	return refs, rows.Err()
}

// Get fetches one task by id.
func (r *Repository) Get(ctx context.Context, id int64) (Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, fmt.Errorf("%w: task %d", shared.ErrNotFound, id)
		}
		return Task{}, err
	}
	return t, nil
}

// Exists reports whether the task id resolves, for the resource registry.
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&found)
	return found, err
}

// Insert creates a task.
func (r *Repository) Insert(ctx context.Context, t Task) (Task, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (event_id, stage_id, title, description, assignee_id, priority, due_at)
		VALUES ($1, NULLIF($2, 0), $3, $4, NULLIF($5, 0), $6, $7)
		RETURNING `+taskColumns+`
	`, t.EventID, t.StageID, t.Title, t.Description, t.AssigneeID, t.Priority, t.DueAt)
	return scanTask(row)
}

// Update rewrites the mutable task fields.
func (r *Repository) Update(ctx context.Context, t Task) (Task, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE tasks SET title = $2, description = $3, assignee_id = NULLIF($4, 0),
			priority = $5, due_at = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+taskColumns+`
	`, t.ID, t.Title, t.Description, t.AssigneeID, t.Priority, t.DueAt)
	updated, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, fmt.Errorf("%w: task %d", shared.ErrNotFound, t.ID)
		}
		return Task{}, err
	}
	return updated, nil
}

// SetStage moves the task to a stage of its event's pipeline.
func (r *Repository) SetStage(ctx context.Context, id, stageID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET stage_id = NULLIF($2, 0), updated_at = NOW() WHERE id = $1
	`, id, stageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: task %d", shared.ErrNotFound, id)
	}
	return nil
}

// Field reads a named task attribute for trigger evaluation.
func (r *Repository) Field(ctx context.Context, id int64, name string) (any, error) {
	switch name {
	case "title", "description":
	case "due_at", "created_at", "updated_at":
	case "event_id", "stage_id", "assignee_id", "priority":
	default:
		return nil, shared.Validationf("task has no field %q", name)
	}
	var value any
	err := r.pool.QueryRow(ctx, `SELECT `+name+` FROM tasks WHERE id = $1`, id).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: task %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return value, nil
}

// Delete removes one task.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: task %d", shared.ErrNotFound, id)
	}
	return nil
}

// DeleteByEvent removes every task of an event inside the event-deletion
// transaction.
func (r *Repository) DeleteByEvent(ctx context.Context, tx pgx.Tx, eventID int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM tasks WHERE event_id = $1`, eventID)
	return err
}

func collectTasks(rows pgx.Rows) ([]Task, error) {
	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.EventID, &t.StageID, &t.Title, &t.Description,
		&t.AssigneeID, &t.Priority, &t.DueAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	return t, nil
}
