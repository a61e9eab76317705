package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTenantTTL is used when NewTenantCache gets a non-positive ttl
const DefaultTenantTTL = 5 * time.Minute

const tenantKeyPrefix = "tenant:"

// TenantCache is a read-through Redis cache in front of the tenant registry.
// Lookups by id and slug are cached; every Save invalidates both keys. Redis
// failures are logged and the lookup falls through to the registry. Misses are
// not cached, so a freshly provisioned tenant resolves at once. A nil client
// turns the cache into a pass-through.
type TenantCache struct {
	next   identity.TenantRepository
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewTenantCache wraps next with a cache on client
func NewTenantCache(next identity.TenantRepository, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *TenantCache {
	if ttl <= 0 {
		ttl = DefaultTenantTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantCache{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.Named("tenant_cache"),
	}
}

func idKey(id uuid.UUID) string {
	return tenantKeyPrefix + "id:" + id.String()
}

func slugKey(slug string) string {
	return tenantKeyPrefix + "slug:" + slug
}

// FindByID returns the tenant with id, from cache when possible
func (c *TenantCache) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	return c.readThrough(ctx, idKey(id), func() (*identity.Tenant, error) {
		return c.next.FindByID(ctx, id)
	})
}

// FindBySlug returns the tenant with slug, from cache when possible
func (c *TenantCache) FindBySlug(ctx context.Context, slug string) (*identity.Tenant, error) {
	return c.readThrough(ctx, slugKey(identity.NormalizeSlug(slug)), func() (*identity.Tenant, error) {
		return c.next.FindBySlug(ctx, slug)
	})
}

// FindActive is not cached
func (c *TenantCache) FindActive(ctx context.Context) ([]identity.Tenant, error) {
	return c.next.FindActive(ctx)
}

// ExistsBySlug is not cached
func (c *TenantCache) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	return c.next.ExistsBySlug(ctx, slug)
}

// Save stores the tenant and drops its cached entries
func (c *TenantCache) Save(ctx context.Context, tenant *identity.Tenant) error {
	if err := c.next.Save(ctx, tenant); err != nil {
		return err
	}
	c.Invalidate(ctx, tenant)
	return nil
}

// Invalidate drops the cached entries of tenant
func (c *TenantCache) Invalidate(ctx context.Context, tenant *identity.Tenant) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, idKey(tenant.ID), slugKey(tenant.Slug)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate cached tenant",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err),
		)
	}
}

func (c *TenantCache) readThrough(ctx context.Context, key string, load func() (*identity.Tenant, error)) (*identity.Tenant, error) {
	if c.client == nil {
		return load()
	}

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t identity.Tenant
		if jerr := json.Unmarshal(data, &t); jerr == nil {
			return &t, nil
		}
		c.logger.Warn("Dropping corrupt tenant cache entry", zap.String("key", key))
		_ = c.client.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Tenant cache unavailable, reading registry", zap.String("key", key), zap.Error(err))
	}

	t, err := load()
	if err != nil {
		return nil, err
	}
	c.store(ctx, t)
	return t, nil
}

func (c *TenantCache) store(ctx context.Context, t *identity.Tenant) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	pipe := c.client.Pipeline()
	pipe.Set(ctx, idKey(t.ID), data, c.ttl)
	pipe.Set(ctx, slugKey(t.Slug), data, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Failed to cache tenant", zap.String("tenant_id", t.ID.String()), zap.Error(err))
	}
}

var _ identity.TenantRepository = (*TenantCache)(nil)
