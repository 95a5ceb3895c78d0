package authz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// RepositoryPort defines data access methods for role assignments.
type RepositoryPort interface {
	Insert(ctx context.Context, principalID int64, role RoleKind, ref *resource.Ref) (bool, error)
	Delete(ctx context.Context, principalID int64, role RoleKind, ref *resource.Ref) (int64, error)
	Exists(ctx context.Context, principalID int64, role RoleKind, ref *resource.Ref) (bool, error)
	ListByPrincipal(ctx context.Context, principalID int64) ([]Assignment, error)
	DeleteByResource(ctx context.Context, ref resource.Ref) (int64, error)
}

// Auditor records role mutations. Satisfied by shared.AuditLogger.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates role management and capability queries.
type Service struct {
	repo     RepositoryPort
	registry *resource.Registry
	audit    Auditor
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, registry *resource.Registry, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, registry: registry, audit: audit, logger: logger}
}

// Grant assigns a role to a principal. Granting an already-held tuple is
// idempotent. A scoped grant requires the referenced record to exist.
func (s *Service) Grant(ctx context.Context, actorID, principalID int64, role RoleKind, ref *resource.Ref) error {
	if err := ValidateGrant(principalID, role, ref); err != nil {
		return err
	}
	if ref != nil {
		exists, err := s.registry.Exists(ctx, *ref)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: resource %s", shared.ErrNotFound, ref)
		}
	}
	created, err := s.repo.Insert(ctx, principalID, role, ref)
	if err != nil {
		return fmt.Errorf("authz: grant: %w", err)
	}
	if created {
		s.recordAudit(ctx, actorID, "role.grant", principalID, role, ref)
	}
	return nil
}

// Revoke removes the assignment for the exact tuple. Revoking a tuple the
// principal does not hold returns ErrNotFound.
func (s *Service) Revoke(ctx context.Context, actorID, principalID int64, role RoleKind, ref *resource.Ref) error {
	if err := ValidateGrant(principalID, role, ref); err != nil {
		return err
	}
	removed, err := s.repo.Delete(ctx, principalID, role, ref)
	if err != nil {
		return fmt.Errorf("authz: revoke: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: assignment", shared.ErrNotFound)
	}
	s.recordAudit(ctx, actorID, "role.revoke", principalID, role, ref)
	return nil
}

// HasRole answers whether the principal holds the role over the resource.
// The check is pure set membership: a nil ref matches only global
// assignments, a non-nil ref matches only assignments with the exact same
// kind and id, and admin does not satisfy scoped checks implicitly.
// Absence of the principal or resource is a negative answer, not an error.
func (s *Service) HasRole(ctx context.Context, principalID int64, role RoleKind, ref *resource.Ref) (bool, error) {
	if !role.Valid() {
		return false, shared.Validationf("unknown role kind %q", role)
	}
	if ref != nil {
		if err := ref.Validate(); err != nil {
			return false, err
		}
	}
	return s.repo.Exists(ctx, principalID, role, ref)
}

// CanManage is the admin-or-scoped-role composition used by the CRUD layer:
// the admin bypass is an explicit, separate check, never inferred by HasRole.
func (s *Service) CanManage(ctx context.Context, principalID int64, role RoleKind, ref resource.Ref) (bool, error) {
	admin, err := s.HasRole(ctx, principalID, RoleAdmin, nil)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	return s.HasRole(ctx, principalID, role, &ref)
}

// ListRoles returns every assignment held by the principal.
func (s *Service) ListRoles(ctx context.Context, principalID int64) ([]Assignment, error) {
	if principalID <= 0 {
		return nil, shared.Validationf("principal id must be positive")
	}
	return s.repo.ListByPrincipal(ctx, principalID)
}

// OnboardDefaults grants the roles a fresh principal starts with:
// participant for everyone, admin for superusers. The repository is passed
// in so the grants run inside the caller's onboarding transaction, through
// a tx-bound repository.
func (s *Service) OnboardDefaults(ctx context.Context, repo RepositoryPort, principalID int64, superuser bool) error {
	if _, err := repo.Insert(ctx, principalID, RoleParticipant, nil); err != nil {
		return fmt.Errorf("authz: onboard participant: %w", err)
	}
	if superuser {
		if _, err := repo.Insert(ctx, principalID, RoleAdmin, nil); err != nil {
			return fmt.Errorf("authz: onboard admin: %w", err)
		}
	}
	return nil
}

// RevokeAllForResource drops every assignment scoped to the record. Record
// modules call this inside their deletion transaction through a tx-bound
// repository.
func (s *Service) RevokeAllForResource(ctx context.Context, repo RepositoryPort, ref resource.Ref) error {
	removed, err := repo.DeleteByResource(ctx, ref)
	if err != nil {
		return fmt.Errorf("authz: cascade revoke: %w", err)
	}
	if removed > 0 && s.logger != nil {
		s.logger.Info("cascade revoked roles", slog.String("resource", ref.String()), slog.Int64("count", removed))
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, principalID int64, role RoleKind, ref *resource.Ref) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{"role": string(role)}
	if ref != nil {
		meta["resource"] = ref.String()
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role_assignment",
		EntityID: fmt.Sprintf("%d", principalID),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
