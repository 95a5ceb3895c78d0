package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetpoint/meetpoint/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id int64) (Account, error)
	Create(ctx context.Context, email, passwordHash, fullName string, superuser bool) (Account, error)
	CreateSession(ctx context.Context, id string, accountID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL. Tables:
// accounts(id, email unique, password_hash, full_name, superuser,
// is_active, created_at, updated_at) and sessions(id, account_id,
// created_at, expires_at, ip, ua) kept for auditing; the live session
// state is in redis.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, full_name, superuser, is_active, created_at, updated_at
		FROM accounts WHERE email = $1
	`, email)
	return scanAccount(row, email)
}

// FindByID fetches an account by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, full_name, superuser, is_active, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id)
	return scanAccount(row, fmt.Sprintf("%d", id))
}

// Create inserts a new active account. A duplicate email is a validation
// error, not a consistency fault.
func (r *PGRepository) Create(ctx context.Context, email, passwordHash, fullName string, superuser bool) (Account, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, full_name, superuser, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, email, password_hash, full_name, superuser, is_active, created_at, updated_at
	`, email, passwordHash, fullName, superuser)
	account, err := scanAccount(row, email)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, shared.Validationf("email %s already registered", email)
		}
		return Account{}, err
	}
	return account, nil
}

// CreateSession persists a login session record for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, accountID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, account_id, created_at, expires_at, ip, ua)
		VALUES ($1, $2, NOW(), $3, NULLIF($4, ''), NULLIF($5, ''))
	`, id, accountID, expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func scanAccount(row pgx.Row, ident string) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FullName, &a.SuperUser, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: account %s", shared.ErrNotFound, ident)
		}
		return Account{}, err
	}
	return a, nil
}

var _ Repository = (*PGRepository)(nil)
