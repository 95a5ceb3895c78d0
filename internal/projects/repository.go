package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetpoint/meetpoint/internal/platform/db"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// Repository provides PostgreSQL backed persistence for projects. Table:
// projects(id, name, description, leader_id, created_at, updated_at).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all projects ordered by name.
func (r *Repository) List(ctx context.Context) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, leader_id, created_at, updated_at
		FROM projects ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Get fetches one project by id.
func (r *Repository) Get(ctx context.Context, id int64) (Project, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, leader_id, created_at, updated_at
		FROM projects WHERE id = $1
	`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, fmt.Errorf("%w: project %d", shared.ErrNotFound, id)
		}
		return Project{}, err
	}
	return p, nil
}

// Exists reports whether the project id resolves, for the resource registry.
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, id).Scan(&found)
	return found, err
}

// Insert creates a project.
func (r *Repository) Insert(ctx context.Context, name, description string, leaderID int64) (Project, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO projects (name, description, leader_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, description, leader_id, created_at, updated_at
	`, name, description, leaderID)
	return scanProject(row)
}

// Update rewrites the mutable project fields.
func (r *Repository) Update(ctx context.Context, id int64, name, description string) (Project, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE projects SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, leader_id, created_at, updated_at
	`, id, name, description)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, fmt.Errorf("%w: project %d", shared.ErrNotFound, id)
		}
		return Project{}, err
	}
	return p, nil
}

// Delete removes the project and runs the cascade inside the same
// transaction.
func (r *Repository) Delete(ctx context.Context, id int64, cascade func(ctx context.Context, tx pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: project %d", shared.ErrNotFound, id)
		}
		if cascade != nil {
			return cascade(ctx, tx)
		}
		return nil
	})
}

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.LeaderID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Project{}, err
	}
	return p, nil
}
