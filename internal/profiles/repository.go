package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetpoint/meetpoint/internal/platform/db"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// Repository provides PostgreSQL backed persistence for profiles. Table:
// profiles(id, account_id unique, full_name, phone, about, created_at,
// updated_at).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches one profile by id.
func (r *Repository) Get(ctx context.Context, id int64) (Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, account_id, full_name, phone, about, created_at, updated_at
		FROM profiles WHERE id = $1
	`, id)
	return scanProfile(row, id)
}

// GetByAccount fetches the profile bound to an account.
func (r *Repository) GetByAccount(ctx context.Context, accountID int64) (Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, account_id, full_name, phone, about, created_at, updated_at
		FROM profiles WHERE account_id = $1
	`, accountID)
	return scanProfile(row, accountID)
}

// Exists reports whether the profile id resolves, for the resource registry.
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`, id).Scan(&found)
	return found, err
}

// Onboard creates the profile and runs the grant callback inside the same
// transaction, so a failed default grant rolls the profile back too.
func (r *Repository) Onboard(ctx context.Context, accountID int64, fullName string, grant func(ctx context.Context, tx pgx.Tx) error) (Profile, error) {
	var created Profile
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO profiles (account_id, full_name)
			VALUES ($1, $2)
			RETURNING id, account_id, full_name, phone, about, created_at, updated_at
		`, accountID, fullName)
		var err error
		created, err = scanProfile(row, accountID)
		if err != nil {
			return err
		}
		if grant != nil {
			return grant(ctx, tx)
		}
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	return created, nil
}

// Update rewrites the mutable profile fields.
func (r *Repository) Update(ctx context.Context, id int64, fullName, phone, about string) (Profile, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE profiles SET full_name = $2, phone = $3, about = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING id, account_id, full_name, phone, about, created_at, updated_at
	`, id, fullName, phone, about)
	return scanProfile(row, id)
}

// Delete removes the profile and runs the cascade inside the same
// transaction.
func (r *Repository) Delete(ctx context.Context, id int64, cascade func(ctx context.Context, tx pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: profile %d", shared.ErrNotFound, id)
		}
		if cascade != nil {
			return cascade(ctx, tx)
		}
		return nil
	})
}

func scanProfile(row pgx.Row, ident int64) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.AccountID, &p.FullName, &p.Phone, &p.About, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, fmt.Errorf("%w: profile %d", shared.ErrNotFound, ident)
		}
		return Profile{}, err
	}
	return p, nil
}
