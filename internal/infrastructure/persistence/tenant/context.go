package tenant

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Context is the per-operation view of "which database, and its connection".
// Build one per request or job; it resolves the database id at most once.
type Context struct {
	caller   Caller
	resolver *Resolver
	pool     *Pool

	mu         sync.Mutex
	override   string
	databaseID string
	resolved   bool
}

// NewContext creates a tenant context for caller
func NewContext(caller Caller, resolver *Resolver, pool *Pool) *Context {
	return &Context{
		caller:   caller,
		resolver: resolver,
		pool:     pool,
	}
}

// Caller returns the identity the operation runs on behalf of
func (c *Context) Caller() Caller {
	return c.caller
}

// SetOverride pins the operation to databaseID, replacing any earlier resolution.
// Used while provisioning a tenant that callers cannot resolve yet.
func (c *Context) SetOverride(databaseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.override = databaseID
	c.databaseID = databaseID
	c.resolved = databaseID != ""
}

// DatabaseID returns the database id of the operation, resolving it on first use
func (c *Context) DatabaseID(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.resolved {
		c.databaseID = c.resolver.Resolve(ctx, c.caller, c.override)
		c.resolved = true
	}
	return c.databaseID
}

// DB returns the connection of the operation's database, bound to ctx
func (c *Context) DB(ctx context.Context) (*gorm.DB, error) {
	db, err := c.pool.Acquire(ctx, c.DatabaseID(ctx))
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}

// ControlDB returns the connection of the control database, bound to ctx
func (c *Context) ControlDB(ctx context.Context) (*gorm.DB, error) {
	db, err := c.pool.Acquire(ctx, c.resolver.ControlDatabaseID())
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}

type contextKey struct{}

// WithContext attaches tc to ctx
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext returns the tenant context attached to ctx
func FromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(contextKey{}).(*Context)
	return tc, ok && tc != nil
}

// DB returns the connection of the tenant context attached to ctx
func DB(ctx context.Context) (*gorm.DB, error) {
	tc, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoContext
	}
	return tc.DB(ctx)
}
