package identity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"github.com/leasehold/backend/internal/infrastructure/persistence/tenant"
	"go.uber.org/zap"
)

// maxSlugSuffix bounds the search for a free slug
const maxSlugSuffix = 1000

// systemDatabases are created by postgres itself and never hold tenant data
var systemDatabases = []string{"postgres", "template0", "template1"}

// DatabaseProvisioner creates and migrates tenant databases
type DatabaseProvisioner interface {
	CreateDatabase(ctx context.Context, name string) error

	// MigrateTenant migrates the database of the tenant context carried by ctx
	MigrateTenant(ctx context.Context) error
}

// DatabaseScope returns a context whose database operations run against databaseID
type DatabaseScope func(ctx context.Context, t *identity.Tenant, databaseID string) context.Context

// OverrideScope builds a system tenant context pinned to the database being
// provisioned, which the resolver cannot find yet.
func OverrideScope(resolver *tenant.Resolver, pool *tenant.Pool) DatabaseScope {
	return func(ctx context.Context, t *identity.Tenant, databaseID string) context.Context {
		tc := tenant.NewContext(tenant.Caller{Role: identity.RoleSystem, TenantID: t.ID.String()}, resolver, pool)
		tc.SetOverride(databaseID)
		return tenant.WithContext(ctx, tc)
	}
}

// ProvisioningService onboards tenants and manages their registry entries
type ProvisioningService struct {
	tenantRepo  identity.TenantRepository
	provisioner DatabaseProvisioner
	scope       DatabaseScope
	reserved    map[string]struct{}
	logger      *zap.Logger
}

// NewProvisioningService creates a new ProvisioningService. The control
// database id and the postgres system databases are never handed out as slugs.
func NewProvisioningService(
	tenantRepo identity.TenantRepository,
	provisioner DatabaseProvisioner,
	scope DatabaseScope,
	controlDatabaseID string,
	logger *zap.Logger,
) *ProvisioningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scope == nil {
		scope = func(ctx context.Context, _ *identity.Tenant, _ string) context.Context { return ctx }
	}
	reserved := make(map[string]struct{}, len(systemDatabases)+1)
	for _, name := range systemDatabases {
		reserved[name] = struct{}{}
	}
	if id := identity.NormalizeSlug(controlDatabaseID); id != "" {
		reserved[id] = struct{}{}
	}
	return &ProvisioningService{
		tenantRepo:  tenantRepo,
		provisioner: provisioner,
		scope:       scope,
		reserved:    reserved,
		logger:      logger.Named("provisioning_service"),
	}
}

// Provision registers a tenant under a free slug, creates its database,
// migrates the tenant schema and marks setup completed. When the database
// step fails the tenant stays registered with setup incomplete and
// ResumeSetup can finish it.
func (s *ProvisioningService) Provision(ctx context.Context, input ProvisionTenantInput) (*TenantDTO, error) {
	base := input.Slug
	if base == "" {
		base = input.Name
	}
	base = identity.TruncateSlug(identity.NormalizeSlug(base), identity.MaxSlugLength)
	if base == "" {
		return nil, shared.InvalidInput("Tenant name must contain at least one letter or digit")
	}

	slug, err := s.freeSlug(ctx, base)
	if err != nil {
		return nil, err
	}

	t, err := identity.NewTenant(input.Name, slug)
	if err != nil {
		return nil, err
	}
	t.Settings.MergeServicesWithRent = input.MergeServicesWithRent
	if err := s.tenantRepo.Save(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("Tenant registered",
		zap.String("tenant_id", t.ID.String()),
		zap.String("slug", t.Slug),
	)

	if err := s.setup(ctx, t); err != nil {
		return nil, err
	}
	return toTenantDTO(t), nil
}

// ResumeSetup finishes provisioning of a tenant whose setup did not complete
func (s *ProvisioningService) ResumeSetup(ctx context.Context, id uuid.UUID) (*TenantDTO, error) {
	t, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.SetupCompleted {
		return nil, shared.InvalidState("Tenant setup is already completed")
	}
	if err := s.setup(ctx, t); err != nil {
		return nil, err
	}
	return toTenantDTO(t), nil
}

func (s *ProvisioningService) setup(ctx context.Context, t *identity.Tenant) error {
	databaseID := t.DatabaseName()
	if s.isReserved(databaseID) {
		return shared.InvalidState(fmt.Sprintf("Tenant database %q is reserved", databaseID))
	}
	log := logger.With(ctx, s.logger).With(
		zap.String("tenant_id", t.ID.String()),
		zap.String("database_id", databaseID),
	)

	if err := s.provisioner.CreateDatabase(ctx, databaseID); err != nil {
		log.Error("Failed to create tenant database", zap.Error(err))
		return fmt.Errorf("create database %s: %w", databaseID, err)
	}
	if err := s.provisioner.MigrateTenant(s.scope(ctx, t, databaseID)); err != nil {
		log.Error("Failed to migrate tenant database", zap.Error(err))
		return fmt.Errorf("migrate database %s: %w", databaseID, err)
	}

	t.CompleteSetup()
	if err := s.tenantRepo.Save(ctx, t); err != nil {
		return err
	}
	log.Info("Tenant provisioned")
	return nil
}

// freeSlug returns base, or base-2, base-3, ... whichever is neither reserved nor taken yet
func (s *ProvisioningService) freeSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for n := 2; n <= maxSlugSuffix; n++ {
		if s.isReserved(candidate) {
			candidate = base + "-" + strconv.Itoa(n)
			continue
		}
		exists, err := s.tenantRepo.ExistsBySlug(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
	return "", shared.AlreadyExists(fmt.Sprintf("No free slug for %q", base))
}

// GetTenant retrieves a tenant by ID
func (s *ProvisioningService) GetTenant(ctx context.Context, id uuid.UUID) (*TenantDTO, error) {
	t, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toTenantDTO(t), nil
}

// ListActive returns the active tenants ordered by slug
func (s *ProvisioningService) ListActive(ctx context.Context) ([]TenantDTO, error) {
	tenants, err := s.tenantRepo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	dtos := make([]TenantDTO, len(tenants))
	for i := range tenants {
		dtos[i] = *toTenantDTO(&tenants[i])
	}
	return dtos, nil
}

// Rename changes a tenant's display name. Its slug and database are unchanged.
func (s *ProvisioningService) Rename(ctx context.Context, id uuid.UUID, name string) (*TenantDTO, error) {
	return s.mutate(ctx, id, "Tenant renamed", func(t *identity.Tenant) error {
		return t.Rename(name)
	})
}

// Deactivate soft-deactivates a tenant; its database is kept
func (s *ProvisioningService) Deactivate(ctx context.Context, id uuid.UUID) (*TenantDTO, error) {
	return s.mutate(ctx, id, "Tenant deactivated", func(t *identity.Tenant) error {
		return t.Deactivate()
	})
}

// Activate re-activates a tenant
func (s *ProvisioningService) Activate(ctx context.Context, id uuid.UUID) (*TenantDTO, error) {
	return s.mutate(ctx, id, "Tenant activated", func(t *identity.Tenant) error {
		return t.Activate()
	})
}

// UpdateSettings replaces a tenant's billing preferences
func (s *ProvisioningService) UpdateSettings(ctx context.Context, input UpdateSettingsInput) (*TenantDTO, error) {
	return s.mutate(ctx, input.ID, "Tenant settings updated", func(t *identity.Tenant) error {
		t.UpdateSettings(identity.TenantSettings{MergeServicesWithRent: input.MergeServicesWithRent})
		return nil
	})
}

func (s *ProvisioningService) mutate(ctx context.Context, id uuid.UUID, msg string, change func(*identity.Tenant) error) (*TenantDTO, error) {
	t, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := change(t); err != nil {
		return nil, err
	}
	if err := s.tenantRepo.Save(ctx, t); err != nil {
		return nil, err
	}
	logger.With(ctx, s.logger).Info(msg, zap.String("tenant_id", id.String()))
	return toTenantDTO(t), nil
}

func (s *ProvisioningService) isReserved(databaseID string) bool {
	_, ok := s.reserved[databaseID]
	return ok
}
