package identity

import (
	"context"

	"github.com/google/uuid"
)

// TenantRepository defines the interface for tenant persistence in the control database
type TenantRepository interface {
	// FindByID finds a tenant by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// FindBySlug finds a tenant by its unique database slug
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)

	// FindActive finds all active tenants
	FindActive(ctx context.Context) ([]Tenant, error)

	// ExistsBySlug checks if a tenant with the given slug exists
	ExistsBySlug(ctx context.Context, slug string) (bool, error)

	// Save creates or updates a tenant
	Save(ctx context.Context, tenant *Tenant) error
}
