// Package profiles manages participant profile records. A profile is
// created during onboarding together with the account's default role
// grants; deleting one cascades its scoped role assignments.
package profiles

import "time"

// Profile is the participant-facing record attached to an account.
type Profile struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone,omitempty"`
	About     string    `json:"about,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
