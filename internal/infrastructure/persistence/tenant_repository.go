package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/leasehold/backend/internal/infrastructure/persistence/models"
)

// GormTenantRepository implements identity.TenantRepository on the control database
type GormTenantRepository struct {
	db DBProvider
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db DBProvider) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// FindByID finds a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var model models.TenantModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Tenant not found")
	}
	return model.ToDomain(), nil
}

// FindBySlug finds a tenant by its database slug
func (r *GormTenantRepository) FindBySlug(ctx context.Context, slug string) (*identity.Tenant, error) {
	slug = identity.NormalizeSlug(slug)
	if slug == "" {
		return nil, shared.NotFound("Tenant not found")
	}
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var model models.TenantModel
	if err := db.Where("slug = ?", slug).First(&model).Error; err != nil {
		return nil, notFound(err, "Tenant not found")
	}
	return model.ToDomain(), nil
}

// FindActive returns all active tenants ordered by slug
func (r *GormTenantRepository) FindActive(ctx context.Context) ([]identity.Tenant, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var tenantModels []models.TenantModel
	if err := db.Where("active = ?", true).Order("slug ASC").Find(&tenantModels).Error; err != nil {
		return nil, err
	}
	tenants := make([]identity.Tenant, len(tenantModels))
	for i := range tenantModels {
		tenants[i] = *tenantModels[i].ToDomain()
	}
	return tenants, nil
}

// ExistsBySlug checks if a tenant already uses slug
func (r *GormTenantRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.Model(&models.TenantModel{}).Where("slug = ?", identity.NormalizeSlug(slug)).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or updates a tenant. A slug already taken by another tenant is ALREADY_EXISTS.
func (r *GormTenantRepository) Save(ctx context.Context, tenant *identity.Tenant) error {
	db, err := r.db.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.Save(models.TenantModelFromDomain(tenant)).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.AlreadyExists("Tenant slug " + tenant.Slug + " is already taken")
		}
		if isValueTooLong(err) {
			return shared.InvalidInput("Tenant name or slug is too long")
		}
		return err
	}
	return nil
}
