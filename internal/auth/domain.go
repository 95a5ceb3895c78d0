// Package auth implements credential checks and session lifecycle. It
// resolves who is calling; what they may do is the authz package's job.
package auth

import "time"

// Account represents a login-capable user account.
type Account struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	SuperUser    bool      `json:"superuser"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
