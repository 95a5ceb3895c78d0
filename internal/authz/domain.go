// Package authz implements role assignments and the capability query the
// rest of the application composes into permission checks.
package authz

import (
	"time"

	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// RoleKind enumerates the grantable roles. The set is closed.
type RoleKind string

const (
	RoleAdmin           RoleKind = "admin"
	RoleOrganizer       RoleKind = "organizer"
	RoleDirectionLeader RoleKind = "direction_leader"
	RoleCurator         RoleKind = "curator"
	RoleParticipant     RoleKind = "participant"
)

// Valid reports whether k is a known role kind.
func (k RoleKind) Valid() bool {
	switch k {
	case RoleAdmin, RoleOrganizer, RoleDirectionLeader, RoleCurator, RoleParticipant:
		return true
	}
	return false
}

// requiresResource reports whether the role must be scoped to a record.
func (k RoleKind) requiresResource() bool {
	switch k {
	case RoleOrganizer, RoleDirectionLeader, RoleCurator:
		return true
	}
	return false
}

// Assignment grants a role kind to a principal, optionally scoped to a
// resource. Assignments are never mutated in place; role changes are
// revoke + grant.
type Assignment struct {
	ID          int64         `json:"id"`
	PrincipalID int64         `json:"principal_id"`
	Role        RoleKind      `json:"role"`
	Resource    *resource.Ref `json:"resource,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ValidateGrant checks the assignment shape before persistence:
// admin must be global, organizer/direction_leader/curator must be scoped,
// participant may be either.
func ValidateGrant(principalID int64, role RoleKind, ref *resource.Ref) error {
	if principalID <= 0 {
		return shared.Validationf("principal id must be positive")
	}
	if !role.Valid() {
		return shared.Validationf("unknown role kind %q", role)
	}
	if role == RoleAdmin && ref != nil {
		return shared.Validationf("role %q must not be scoped to a resource", role)
	}
	if role.requiresResource() && ref == nil {
		return shared.Validationf("role %q requires a resource reference", role)
	}
	if ref != nil {
		if err := ref.Validate(); err != nil {
			return err
		}
	}
	return nil
}
