package models

import (
	"github.com/leasehold/backend/internal/domain/identity"
)

// TenantModel is the persistence model of a registered tenant
type TenantModel struct {
	AggregateModel
	Name                  string `gorm:"type:varchar(200);not null"`
	Slug                  string `gorm:"type:varchar(63);not null;uniqueIndex"`
	Active                bool   `gorm:"not null;index"`
	SetupCompleted        bool   `gorm:"not null;default:false"`
	MergeServicesWithRent bool   `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

// ToDomain converts the model to a domain Tenant
func (m *TenantModel) ToDomain() *identity.Tenant {
	return &identity.Tenant{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Name:              m.Name,
		Slug:              m.Slug,
		Active:            m.Active,
		SetupCompleted:    m.SetupCompleted,
		Settings: identity.TenantSettings{
			MergeServicesWithRent: m.MergeServicesWithRent,
		},
	}
}

// TenantModelFromDomain creates a model from a domain Tenant
func TenantModelFromDomain(t *identity.Tenant) *TenantModel {
	m := &TenantModel{
		Name:                  t.Name,
		Slug:                  t.Slug,
		Active:                t.Active,
		SetupCompleted:        t.SetupCompleted,
		MergeServicesWithRent: t.Settings.MergeServicesWithRent,
	}
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	return m
}
