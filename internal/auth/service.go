package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meetpoint/meetpoint/internal/shared"
)

// Onboarder provisions what a fresh account needs beyond the credential
// row: the profile record and the default role grants.
type Onboarder interface {
	Onboard(ctx context.Context, accountID int64, fullName string, superuser bool) error
}

// Service wraps authentication business rules.
type Service struct {
	repo      Repository
	onboarder Onboarder
	logger    *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, onboarder Onboarder, logger *slog.Logger) *Service {
	return &Service{repo: repo, onboarder: onboarder, logger: logger}
}

// Authenticate validates email/password credentials. Every failure path
// reports the same error so callers cannot probe for registered emails.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	account, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return Account{}, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return Account{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, shared.ErrInvalidCredentials
	}
	return account, nil
}

// Register creates an account and provisions its profile and default roles.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Account{}, shared.Validationf("email required")
	}
	if len(password) < 8 {
		return Account{}, shared.Validationf("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("auth: hash password: %w", err)
	}

	account, err := s.repo.Create(ctx, email, string(hash), strings.TrimSpace(fullName), false)
	if err != nil {
		return Account{}, err
	}
	if s.onboarder != nil {
		if err := s.onboarder.Onboard(ctx, account.ID, account.FullName, account.SuperUser); err != nil {
			return Account{}, fmt.Errorf("auth: onboard account %d: %w", account.ID, err)
		}
	}
	if s.logger != nil {
		s.logger.Info("account registered", slog.Int64("account_id", account.ID))
	}
	return account, nil
}

// AccountByID resolves the account bound to a session.
func (s *Service) AccountByID(ctx context.Context, id int64) (Account, error) {
	return s.repo.FindByID(ctx, id)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, accountID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, accountID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
