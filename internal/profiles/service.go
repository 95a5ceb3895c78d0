package profiles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/meetpoint/meetpoint/internal/authz"
	"github.com/meetpoint/meetpoint/internal/resource"
	"github.com/meetpoint/meetpoint/internal/shared"
)

// RepositoryPort defines data access methods for profiles.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Profile, error)
	GetByAccount(ctx context.Context, accountID int64) (Profile, error)
	Onboard(ctx context.Context, accountID int64, fullName string, grant func(ctx context.Context, tx pgx.Tx) error) (Profile, error)
	Update(ctx context.Context, id int64, fullName, phone, about string) (Profile, error)
	Delete(ctx context.Context, id int64, cascade func(ctx context.Context, tx pgx.Tx) error) error
}

// Service handles profile business logic.
type Service struct {
	repo      RepositoryPort
	authz     *authz.Service
	authzRepo *authz.Repository
	audit     *shared.AuditLogger
	logger    *slog.Logger

	grantDefaults func(ctx context.Context, tx pgx.Tx, accountID int64, superuser bool) error
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, authzService *authz.Service, authzRepo *authz.Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	s := &Service{repo: repo, authz: authzService, authzRepo: authzRepo, audit: audit, logger: logger}
	s.grantDefaults = func(ctx context.Context, tx pgx.Tx, accountID int64, superuser bool) error {
		return authzService.OnboardDefaults(ctx, authzRepo.WithTx(tx), accountID, superuser)
	}
	return s
}

// Onboard provisions a fresh account: its profile plus the default role
// grants, participant for everyone and admin for superusers. Profile and
// grants commit or roll back as one unit.
func (s *Service) Onboard(ctx context.Context, accountID int64, fullName string, superuser bool) error {
	profile, err := s.repo.Onboard(ctx, accountID, fullName, func(ctx context.Context, tx pgx.Tx) error {
		return s.grantDefaults(ctx, tx, accountID, superuser)
	})
	if err != nil {
		return fmt.Errorf("profiles: onboard account %d: %w", accountID, err)
	}
	if s.logger != nil {
		s.logger.Info("profile onboarded", slog.Int64("account_id", accountID), slog.Int64("profile_id", profile.ID))
	}
	return nil
}

// Get fetches one profile.
func (s *Service) Get(ctx context.Context, id int64) (Profile, error) {
	return s.repo.Get(ctx, id)
}

// GetByAccount fetches the caller's own profile.
func (s *Service) GetByAccount(ctx context.Context, accountID int64) (Profile, error) {
	return s.repo.GetByAccount(ctx, accountID)
}

// Update rewrites the profile. Owners edit their own record; anyone else
// needs a curator role over this profile or the global admin role.
func (s *Service) Update(ctx context.Context, principalID, id int64, fullName, phone, about string) (Profile, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return Profile{}, shared.Validationf("full name required")
	}
	profile, err := s.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if profile.AccountID != principalID {
		ref := resource.Ref{Kind: resource.KindProfile, ID: id}
		ok, err := s.authz.CanManage(ctx, principalID, authz.RoleCurator, ref)
		if err != nil {
			return Profile{}, err
		}
		if !ok {
			return Profile{}, fmt.Errorf("%w: no curator role over %s", shared.ErrForbidden, ref)
		}
	}
	updated, err := s.repo.Update(ctx, id, fullName, strings.TrimSpace(phone), strings.TrimSpace(about))
	if err != nil {
		return Profile{}, err
	}
	s.recordAudit(ctx, principalID, "profile.update", updated)
	return updated, nil
}

// Delete removes the profile and revokes every role scoped to it inside
// one transaction. Admin only.
func (s *Service) Delete(ctx context.Context, principalID, id int64) error {
	ok, err := s.authz.HasRole(ctx, principalID, authz.RoleAdmin, nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: admin role required", shared.ErrForbidden)
	}
	ref := resource.Ref{Kind: resource.KindProfile, ID: id}
	err = s.repo.Delete(ctx, id, func(ctx context.Context, tx pgx.Tx) error {
		return s.authz.RevokeAllForResource(ctx, s.authzRepo.WithTx(tx), ref)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, principalID, "profile.delete", Profile{ID: id})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, profile Profile) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "profile",
		EntityID: fmt.Sprintf("%d", profile.ID),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
