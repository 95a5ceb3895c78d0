package events

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

// Repository provides PostgreSQL backed persistence for events. Table:
// events(id, project_id, stage_id NULL, title, description, location,
// starts_at NULL, ends_at NULL, created_by, created_at, updated_at).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, project_id, COALESCE(stage_id, 0), title, description, location, starts_at, ends_at, created_by, created_at, updated_at`

// ListByProject returns the project's events, newest first.
func (r *Repository) ListByProject(ctx context.Context, projectID int64) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE project_id = $1 ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListByStage returns the events currently sitting in a stage.
func (r *Repository) ListByStage(ctx context.Context, stageID int64) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE stage_id = $1 ORDER BY id
	`, stageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListRefsByStage returns the references of a stage's events, for the
// expiration scan.
func (r *Repository) ListRefsByStage(ctx context.Context, stageID int64) ([]resource.Ref, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM events WHERE stage_id = $1 ORDER BY id`, stageID)
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
		refs = append(refs, resource.Ref{Kind: resource.KindEvent, ID: id})
	}
	return refs, rows.Err()
}

// Get fetches one event by id.
func (r *Repository) Get(ctx context.Context, id int64) (Event, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, fmt.Errorf("%w: event %d", shared.ErrNotFound, id)
		}
		return Event{}, err
	}
	return e, nil
}

// Exists reports whether the event id resolves, for the resource registry.
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&found)
	return found, err
}

// Insert creates an event.
func (r *Repository) Insert(ctx context.Context, e Event) (Event, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO events (project_id, title, description, location, starts_at, ends_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+eventColumns+`
	`, e.ProjectID, e.Title, e.Description, e.Location, e.StartsAt, e.EndsAt, e.CreatedBy)
	return scanEvent(row)
}

// Update rewrites the mutable event fields.
func (r *Repository) Update(ctx context.Context, e Event) (Event, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE events SET title = $2, description = $3, location = $4,
			starts_at = $5, ends_at = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+eventColumns+`
	`, e.ID, e.Title, e.Description, e.Location, e.StartsAt, e.EndsAt)
	updated, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, fmt.Errorf("%w: event %d", shared.ErrNotFound, e.ID)
		}
		return Event{}, err
	}
	return updated, nil
}

// SetStage moves the event to a stage of its project's pipeline.
func (r *Repository) SetStage(ctx context.Context, id, stageID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE events SET stage_id = NULLIF($2, 0), updated_at = NOW() WHERE id = $1
	`, id, stageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: event %d", shared.ErrNotFound, id)
	}
	return nil
}

// Field reads a named event attribute for trigger evaluation.
func (r *Repository) Field(ctx context.Context, id int64, name string) (any, error) {
	switch name {
	case "title", "description", "location":
	case "starts_at", "ends_at", "created_at", "updated_at":
	case "project_id", "stage_id", "created_by":
	default:
		return nil, shared.Validationf("event has no field %q", name)
	}
	var value any
	err := r.pool.QueryRow(ctx, `SELECT `+name+` FROM events WHERE id = $1`, id).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: event %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return value, nil
}

// Delete removes the event and runs the cascade inside the same
// transaction.
func (r *Repository) Delete(ctx context.Context, id int64, cascade func(ctx context.Context, tx pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: event %d", shared.ErrNotFound, id)
		}
		if cascade != nil {
			return cascade(ctx, tx)
		}
		return nil
	})
}

func collectEvents(rows pgx.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.ProjectID, &e.StageID, &e.Title, &e.Description, &e.Location,
		&e.StartsAt, &e.EndsAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Event{}, err
	}
	return e, nil
}
