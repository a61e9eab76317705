package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/infrastructure/persistence/models"
)

// GormContractRepository implements billing.ContractRepository
type GormContractRepository struct {
	db DBProvider
}

// NewGormContractRepository creates a new GormContractRepository
func NewGormContractRepository(db DBProvider) *GormContractRepository {
	return &GormContractRepository{db: db}
}

// FindByID finds a contract by its ID
func (r *GormContractRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Contract, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var model models.ContractModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Contract not found")
	}
	return model.ToDomain(), nil
}

// FindActiveIntersecting returns active contracts in force during [start, end)
func (r *GormContractRepository) FindActiveIntersecting(ctx context.Context, start, end time.Time) ([]billing.Contract, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var contractModels []models.ContractModel
	err = db.Where("active = ? AND start_date < ? AND end_date > ?", true, billing.DateOnly(end), billing.DateOnly(start)).
		Order("start_date ASC, id ASC").
		Find(&contractModels).Error
	if err != nil {
		return nil, err
	}
	return toContracts(contractModels), nil
}

// FindActiveByUnit returns the active contracts of a unit
func (r *GormContractRepository) FindActiveByUnit(ctx context.Context, unitID uuid.UUID) ([]billing.Contract, error) {
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var contractModels []models.ContractModel
	if err := db.Where("unit_id = ? AND active = ?", unitID, true).Order("start_date ASC").Find(&contractModels).Error; err != nil {
		return nil, err
	}
	return toContracts(contractModels), nil
}

// Save creates or updates a contract
func (r *GormContractRepository) Save(ctx context.Context, contract *billing.Contract) error {
	db, err := r.db.DB(ctx)
	if err != nil {
		return err
	}
	return db.Save(models.ContractModelFromDomain(contract)).Error
}

func toContracts(contractModels []models.ContractModel) []billing.Contract {
	contracts := make([]billing.Contract, len(contractModels))
	for i := range contractModels {
		contracts[i] = *contractModels[i].ToDomain()
	}
	return contracts
}
