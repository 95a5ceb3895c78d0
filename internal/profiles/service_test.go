package profiles

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetpoint/meetpoint/internal/shared"
)

type memProfileRepo struct {
	profiles map[int64]Profile
	nextID   int64
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: map[int64]Profile{}, nextID: 1}
}

func (m *memProfileRepo) Get(ctx context.Context, id int64) (Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: profile %d", shared.ErrNotFound, id)
	}
	return p, nil
}

func (m *memProfileRepo) GetByAccount(ctx context.Context, accountID int64) (Profile, error) {
	for _, p := range m.profiles {
		if p.AccountID == accountID {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: account %d", shared.ErrNotFound, accountID)
}

// Onboard persists the profile only when the grant callback succeeds,
// matching the transactional contract of the real repository.
func (m *memProfileRepo) Onboard(ctx context.Context, accountID int64, fullName string, grant func(ctx context.Context, tx pgx.Tx) error) (Profile, error) {
	p := Profile{ID: m.nextID, AccountID: accountID, FullName: fullName}
	if grant != nil {
		if err := grant(ctx, nil); err != nil {
			return Profile{}, err
		}
	}
	m.nextID++
	m.profiles[p.ID] = p
	return p, nil
}

func (m *memProfileRepo) Update(ctx context.Context, id int64, fullName, phone, about string) (Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: profile %d", shared.ErrNotFound, id)
	}
	p.FullName, p.Phone, p.About = fullName, phone, about
	m.profiles[id] = p
	return p, nil
}

func (m *memProfileRepo) Delete(ctx context.Context, id int64, cascade func(ctx context.Context, tx pgx.Tx) error) error {
	if _, ok := m.profiles[id]; !ok {
		return fmt.Errorf("%w: profile %d", shared.ErrNotFound, id)
	}
	delete(m.profiles, id)
	return nil
}

type grantRecord struct {
	accountID int64
	superuser bool
}

func TestOnboardGrantsInsideTransaction(t *testing.T) {
	repo := newMemProfileRepo()
	svc := NewService(repo, nil, nil, nil, nil)

	var grants []grantRecord
	svc.grantDefaults = func(ctx context.Context, tx pgx.Tx, accountID int64, superuser bool) error {
		grants = append(grants, grantRecord{accountID, superuser})
		return nil
	}

	require.NoError(t, svc.Onboard(context.Background(), 42, "Ada", true))

	assert.Equal(t, []grantRecord{{42, true}}, grants)
	assert.Len(t, repo.profiles, 1)
}

func TestOnboardGrantFailureLeavesNoProfile(t *testing.T) {
	repo := newMemProfileRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	svc.grantDefaults = func(ctx context.Context, tx pgx.Tx, accountID int64, superuser bool) error {
		return errors.New("roles table unavailable")
	}

	err := svc.Onboard(context.Background(), 42, "Ada", false)
	require.Error(t, err)
	assert.Empty(t, repo.profiles)
}
