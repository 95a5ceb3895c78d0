package authz

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetpoint/meetpoint/internal/resource"
)

const uniqueViolation = "23505"

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository provides PostgreSQL backed persistence for role assignments.
// Table layout: roles(id, principal_id, role_kind, resource_kind NULLABLE,
// resource_id NULLABLE, created_at) with a UNIQUE NULLS NOT DISTINCT index
// on the assignment tuple, so two global grants of the same role conflict
// despite the NULL resource columns. Insert additionally guards with a
// nil-safe existence check, so idempotence holds even against an index
// that treats NULLs as distinct.
type Repository struct {
	db dbtx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// WithTx returns a repository bound to the given transaction, so cascade
// revokes run atomically with the record deletion that caused them.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

func refColumns(ref *resource.Ref) (any, any) {
	if ref == nil {
		return nil, nil
	}
	return string(ref.Kind), ref.ID
}

// Insert persists an assignment. Re-inserting an existing tuple is a no-op;
// the bool result reports whether a row was created.
func (r *Repository) Insert(ctx context.Context, principalID int64, role RoleKind, ref *resource.Ref) (bool, error) {
	kind, id := refColumns(ref)
	tag, err := r.db.Exec(ctx, `
		INSERT INTO roles (principal_id, role_kind, resource_kind, resource_id)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM roles
			WHERE principal_id = $1 AND role_kind = $2
			  AND resource_kind IS NOT DISTINCT FROM $3
			  AND resource_id IS NOT DISTINCT FROM $4
		)
		ON CONFLICT DO NOTHING
	`, principalID, string(role), kind, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the assignment for the exact tuple. Returns the number of
// rows removed.
func (r *Repository) Delete(ctx context.Context, principalID int64, role RoleKind, ref *resource.Ref) (int64, error) {
	kind, id := refColumns(ref)
	tag, err := r.db.Exec(ctx, `
		DELETE FROM roles
		WHERE principal_id = $1 AND role_kind = $2
		  AND resource_kind IS NOT DISTINCT FROM $3
		  AND resource_id IS NOT DISTINCT FROM $4
	`, principalID, string(role), kind, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Exists answers the capability query for the exact tuple. A nil ref
// matches only global assignments.
func (r *Repository) Exists(ctx context.Context, principalID int64, role RoleKind, ref *resource.Ref) (bool, error) {
	kind, id := refColumns(ref)
	var found bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM roles
			WHERE principal_id = $1 AND role_kind = $2
			  AND resource_kind IS NOT DISTINCT FROM $3
			  AND resource_id IS NOT DISTINCT FROM $4
		)
	`, principalID, string(role), kind, id).Scan(&found)
	if err != nil {
		return false, err
	}
	return found, nil
}

// ListByPrincipal returns every assignment held by the principal.
func (r *Repository) ListByPrincipal(ctx context.Context, principalID int64) ([]Assignment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, principal_id, role_kind, resource_kind, resource_id, created_at
		FROM roles
		WHERE principal_id = $1
		ORDER BY role_kind, resource_kind NULLS FIRST, resource_id
	`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// DeleteByResource removes every assignment scoped to the given record.
// Called from record-deletion transactions via WithTx.
func (r *Repository) DeleteByResource(ctx context.Context, ref resource.Ref) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM roles WHERE resource_kind = $1 AND resource_id = $2
	`, string(ref.Kind), ref.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var (
		a            Assignment
		role         string
		resourceKind *string
		resourceID   *int64
	)
	if err := row.Scan(&a.ID, &a.PrincipalID, &role, &resourceKind, &resourceID, &a.CreatedAt); err != nil {
		return Assignment{}, err
	}
	a.Role = RoleKind(role)
	if resourceKind != nil && resourceID != nil {
		a.Resource = &resource.Ref{Kind: resource.Kind(*resourceKind), ID: *resourceID}
	}
	return a, nil
}
