package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields for all models
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// AggregateModel adds the optimistic-locking version
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// FromDomainAggregateRoot populates AggregateModel from a domain aggregate root
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.ID = a.ID
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
	m.Version = a.Version
}

// ToDomainAggregateRoot returns the domain aggregate root fields
func (m *AggregateModel) ToDomainAggregateRoot() shared.BaseAggregateRoot {
	return shared.BaseAggregateRoot{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Version: m.Version,
	}
}

// ControlModels returns the models stored in the control database
func ControlModels() []any {
	return []any{&TenantModel{}}
}

// TenantModels returns the models stored in every tenant database
func TenantModels() []any {
	return []any{
		&ContractModel{},
		&ServiceModel{},
		&InvoiceModel{},
		&InvoiceLineModel{},
		&MeterModel{},
		&MeterReadingModel{},
	}
}
