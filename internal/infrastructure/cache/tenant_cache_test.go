package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

func (m *MockTenantRepository) FindBySlug(ctx context.Context, slug string) (*identity.Tenant, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

func (m *MockTenantRepository) FindActive(ctx context.Context) ([]identity.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]identity.Tenant), args.Error(1)
}

func (m *MockTenantRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	args := m.Called(ctx, slug)
	return args.Bool(0), args.Error(1)
}

func (m *MockTenantRepository) Save(ctx context.Context, tenant *identity.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func setupTenantCache(t *testing.T) (*miniredis.Miniredis, *MockTenantRepository, *TenantCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := new(MockTenantRepository)
	return mr, repo, NewTenantCache(repo, client, time.Minute, nil)
}

func newCachedTenant(t *testing.T) *identity.Tenant {
	t.Helper()
	tn, err := identity.NewTenant("Acme Corp", "")
	require.NoError(t, err)
	tn.Settings.MergeServicesWithRent = true
	return tn
}

func TestTenantCache_ReadThrough(t *testing.T) {
	mr, repo, cache := setupTenantCache(t)
	ctx := context.Background()
	tn := newCachedTenant(t)
	repo.On("FindByID", mock.Anything, tn.ID).Return(tn, nil).Once()

	first, err := cache.FindByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", first.Slug)

	second, err := cache.FindByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tn.ID, second.ID)
	assert.True(t, second.Settings.MergeServicesWithRent)

	// the id lookup also filled the slug key
	bySlug, err := cache.FindBySlug(ctx, "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, tn.ID, bySlug.ID)

	assert.True(t, mr.Exists("tenant:id:"+tn.ID.String()))
	assert.Equal(t, time.Minute, mr.TTL("tenant:slug:acme-corp"))
	repo.AssertExpectations(t)
}

func TestTenantCache_MissesAreNotCached(t *testing.T) {
	mr, repo, cache := setupTenantCache(t)
	ctx := context.Background()
	id := uuid.New()
	repo.On("FindByID", mock.Anything, id).Return(nil, shared.NotFound("Tenant not found")).Twice()

	_, err := cache.FindByID(ctx, id)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = cache.FindByID(ctx, id)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.Empty(t, mr.Keys())
	repo.AssertExpectations(t)
}

func TestTenantCache_SaveInvalidates(t *testing.T) {
	mr, repo, cache := setupTenantCache(t)
	ctx := context.Background()
	tn := newCachedTenant(t)
	repo.On("FindBySlug", mock.Anything, "acme-corp").Return(tn, nil).Once()
	repo.On("Save", mock.Anything, tn).Return(nil).Once()

	_, err := cache.FindBySlug(ctx, "acme-corp")
	require.NoError(t, err)
	require.Len(t, mr.Keys(), 2)

	require.NoError(t, cache.Save(ctx, tn))
	assert.Empty(t, mr.Keys())
	repo.AssertExpectations(t)
}

func TestTenantCache_CorruptEntryFallsThrough(t *testing.T) {
	mr, repo, cache := setupTenantCache(t)
	ctx := context.Background()
	tn := newCachedTenant(t)
	require.NoError(t, mr.Set("tenant:id:"+tn.ID.String(), "{not json"))
	repo.On("FindByID", mock.Anything, tn.ID).Return(tn, nil).Once()

	found, err := cache.FindByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tn.ID, found.ID)
	repo.AssertExpectations(t)
}

func TestTenantCache_RedisDownFallsThrough(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	repo := new(MockTenantRepository)
	cache := NewTenantCache(repo, client, time.Minute, nil)
	ctx := context.Background()
	tn := newCachedTenant(t)
	repo.On("FindByID", mock.Anything, tn.ID).Return(tn, nil).Once()

	found, err := cache.FindByID(ctx, tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tn.ID, found.ID)
	repo.AssertExpectations(t)
}

func TestTenantCache_NilClientPassesThrough(t *testing.T) {
	repo := new(MockTenantRepository)
	cache := NewTenantCache(repo, nil, 0, nil)
	tn := newCachedTenant(t)
	repo.On("FindByID", mock.Anything, tn.ID).Return(tn, nil).Twice()
	repo.On("Save", mock.Anything, tn).Return(nil).Once()

	ctx := context.Background()
	_, err := cache.FindByID(ctx, tn.ID)
	require.NoError(t, err)
	_, err = cache.FindByID(ctx, tn.ID)
	require.NoError(t, err)
	require.NoError(t, cache.Save(ctx, tn))
	repo.AssertExpectations(t)
}
