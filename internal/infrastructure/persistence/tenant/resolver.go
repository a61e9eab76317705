package tenant

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Registry looks tenants up in the control database
type Registry interface {
	FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*identity.Tenant, error)
}

// Caller is the identity an operation runs on behalf of
type Caller struct {
	Role      string
	TenantID  string
	RequestID string
}

// Resolver maps callers to database ids. It never fails: when the tenant cannot
// be determined it degrades to the control database and logs a warning.
type Resolver struct {
	registry  Registry
	controlID string
	logger    *zap.Logger
}

// NewResolver creates a resolver. controlDatabaseID is usually ControlDatabaseID(cfg).
func NewResolver(registry Registry, controlDatabaseID string, log *zap.Logger) *Resolver {
	if controlDatabaseID == "" {
		controlDatabaseID = DefaultControlDatabaseID
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		registry:  registry,
		controlID: controlDatabaseID,
		logger:    log.Named("tenant_resolver"),
	}
}

// ControlDatabaseID returns the id of the control database
func (r *Resolver) ControlDatabaseID() string {
	return r.controlID
}

// Resolve returns the database id for caller. Precedence: a non-empty override,
// then the control database for platform administrators, then the caller's tenant.
func (r *Resolver) Resolve(ctx context.Context, caller Caller, override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	if identity.IsPlatformAdmin(caller.Role) {
		return r.controlID
	}

	tenantID := strings.TrimSpace(caller.TenantID)
	if tenantID == "" {
		r.degrade(ctx, caller, "caller has no tenant id", nil)
		return r.controlID
	}

	t, err := r.lookup(ctx, tenantID)
	if err != nil {
		r.degrade(ctx, caller, "tenant lookup failed", err)
		return r.controlID
	}
	return t.DatabaseName()
}

// lookup finds the tenant by id, or by slug when the id is not a UUID
func (r *Resolver) lookup(ctx context.Context, tenantID string) (*identity.Tenant, error) {
	if r.registry == nil {
		return nil, errors.New("tenant registry is not configured")
	}
	if id, ok := identity.ParseTenantID(tenantID); ok {
		return r.registry.FindByID(ctx, id)
	}
	return r.registry.FindBySlug(ctx, tenantID)
}

func (r *Resolver) degrade(ctx context.Context, caller Caller, reason string, err error) {
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("caller_role", caller.Role),
		zap.String("caller_tenant_id", caller.TenantID),
		zap.String("control_database_id", r.controlID),
	}
	if caller.RequestID != "" {
		fields = append(fields, zap.String("request_id", caller.RequestID))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.With(ctx, r.logger).Warn("Falling back to control database", fields...)
}
