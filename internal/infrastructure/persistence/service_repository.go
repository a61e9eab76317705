package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/infrastructure/persistence/models"
)

// GormServiceRepository implements billing.ServiceRepository
type GormServiceRepository struct {
	db DBProvider
}

// NewGormServiceRepository creates a new GormServiceRepository
func NewGormServiceRepository(db DBProvider) *GormServiceRepository {
	return &GormServiceRepository{db: db}
}

// FindByID finds a service by its ID
func (r *GormServiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Service, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var model models.ServiceModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Service not found")
	}
	return model.ToDomain(), nil
}

// FindActiveFixed returns active fixed-fee services ordered by name
func (r *GormServiceRepository) FindActiveFixed(ctx context.Context) ([]billing.Service, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var serviceModels []models.ServiceModel
	err = db.Where("type = ? AND active = ?", billing.ServiceTypeFixed, true).
		Order("name ASC").
		Find(&serviceModels).Error
	if err != nil {
		return nil, err
	}
	services := make([]billing.Service, len(serviceModels))
	for i := range serviceModels {
		services[i] = *serviceModels[i].ToDomain()
	}
	return services, nil
}

// Save creates or updates a service
func (r *GormServiceRepository) Save(ctx context.Context, service *billing.Service) error {
	db, err := r.db.DB(ctx)
	if err != nil {
		return err
	}
	return db.Save(models.ServiceModelFromDomain(service)).Error
}
