package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// ContractModel is the persistence model of a lease contract
type ContractModel struct {
	AggregateModel
	UnitID     uuid.UUID        `gorm:"type:uuid;not null;index"`
	CustomerID uuid.UUID        `gorm:"type:uuid;not null;index"`
	RentType   billing.RentType `gorm:"type:varchar(20);not null"`
	BaseRent   decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	StartDate  time.Time        `gorm:"type:date;not null;index"`
	EndDate    time.Time        `gorm:"type:date;not null;index"`
	Active     bool             `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ContractModel) TableName() string {
	return "contracts"
}

// ToDomain converts the model to a domain Contract
func (m *ContractModel) ToDomain() *billing.Contract {
	return &billing.Contract{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		UnitID:            m.UnitID,
		CustomerID:        m.CustomerID,
		RentType:          m.RentType,
		BaseRent:          m.BaseRent,
		StartDate:         billing.DateOnly(m.StartDate),
		EndDate:           billing.DateOnly(m.EndDate),
		Active:            m.Active,
	}
}

// ContractModelFromDomain creates a model from a domain Contract
func ContractModelFromDomain(c *billing.Contract) *ContractModel {
	m := &ContractModel{
		UnitID:     c.UnitID,
		CustomerID: c.CustomerID,
		RentType:   c.RentType,
		BaseRent:   c.BaseRent,
		StartDate:  c.StartDate,
		EndDate:    c.EndDate,
		Active:     c.Active,
	}
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	return m
}

// ServiceModel is the persistence model of a billable service
type ServiceModel struct {
	AggregateModel
	Name         string              `gorm:"type:varchar(200);not null"`
	Type         billing.ServiceType `gorm:"type:varchar(20);not null;index"`
	DefaultPrice decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	Active       bool                `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ServiceModel) TableName() string {
	return "services"
}

// ToDomain converts the model to a domain Service
func (m *ServiceModel) ToDomain() *billing.Service {
	return &billing.Service{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Name:              m.Name,
		Type:              m.Type,
		DefaultPrice:      m.DefaultPrice,
		Active:            m.Active,
	}
}

// ServiceModelFromDomain creates a model from a domain Service
func ServiceModelFromDomain(s *billing.Service) *ServiceModel {
	m := &ServiceModel{
		Name:         s.Name,
		Type:         s.Type,
		DefaultPrice: s.DefaultPrice,
		Active:       s.Active,
	}
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	return m
}

// InvoiceModel is the persistence model of an invoice.
// One invoice per (contract, period start) and globally unique numbers are enforced by indexes.
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber string                `gorm:"type:varchar(32);not null;uniqueIndex"`
	ContractID    uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_invoices_contract_period"`
	PeriodStart   time.Time             `gorm:"type:date;not null;uniqueIndex:idx_invoices_contract_period"`
	PeriodEnd     time.Time             `gorm:"type:date;not null"`
	IssueDate     time.Time             `gorm:"type:date;not null;index"`
	DueDate       time.Time             `gorm:"type:date;not null;index"`
	Status        billing.InvoiceStatus `gorm:"type:varchar(20);not null;default:'draft';index"`
	TotalAmount   decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	PaidAmount    decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Notes         string                `gorm:"type:text"`
	PaidAt        *time.Time
	CancelledAt   *time.Time
	CancelReason  string             `gorm:"type:varchar(500)"`
	Lines         []InvoiceLineModel `gorm:"foreignKey:InvoiceID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the model and its loaded lines to a domain Invoice
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	inv := &billing.Invoice{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		InvoiceNumber:     m.InvoiceNumber,
		ContractID:        m.ContractID,
		PeriodStart:       billing.DateOnly(m.PeriodStart),
		PeriodEnd:         billing.DateOnly(m.PeriodEnd),
		IssueDate:         billing.DateOnly(m.IssueDate),
		DueDate:           billing.DateOnly(m.DueDate),
		Status:            m.Status,
		TotalAmount:       m.TotalAmount,
		PaidAmount:        m.PaidAmount,
		Notes:             m.Notes,
		PaidAt:            m.PaidAt,
		CancelledAt:       m.CancelledAt,
		CancelReason:      m.CancelReason,
		Lines:             make([]billing.InvoiceLine, 0, len(m.Lines)),
	}
	for i := range m.Lines {
		inv.Lines = append(inv.Lines, m.Lines[i].ToDomain())
	}
	return inv
}

// InvoiceModelFromDomain creates a model, lines included, from a domain Invoice
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		InvoiceNumber: inv.InvoiceNumber,
		ContractID:    inv.ContractID,
		PeriodStart:   inv.PeriodStart,
		PeriodEnd:     inv.PeriodEnd,
		IssueDate:     inv.IssueDate,
		DueDate:       inv.DueDate,
		Status:        inv.Status,
		TotalAmount:   inv.TotalAmount,
		PaidAmount:    inv.PaidAmount,
		Notes:         inv.Notes,
		PaidAt:        inv.PaidAt,
		CancelledAt:   inv.CancelledAt,
		CancelReason:  inv.CancelReason,
		Lines:         make([]InvoiceLineModel, 0, len(inv.Lines)),
	}
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	for _, line := range inv.Lines {
		m.Lines = append(m.Lines, *InvoiceLineModelFromDomain(line))
	}
	return m
}

// InvoiceLineModel is the persistence model of an invoice line
type InvoiceLineModel struct {
	ID          uuid.UUID        `gorm:"type:uuid;primary_key"`
	InvoiceID   uuid.UUID        `gorm:"type:uuid;not null;index"`
	Type        billing.LineType `gorm:"type:varchar(20);not null"`
	ServiceID   *uuid.UUID       `gorm:"type:uuid"`
	Description string           `gorm:"type:varchar(500);not null"`
	Quantity    decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	UnitPrice   decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	Amount      decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	Position    int              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceLineModel) TableName() string {
	return "invoice_lines"
}

// ToDomain converts the model to a domain InvoiceLine
func (m *InvoiceLineModel) ToDomain() billing.InvoiceLine {
	return billing.InvoiceLine{
		ID:          m.ID,
		InvoiceID:   m.InvoiceID,
		Type:        m.Type,
		ServiceID:   m.ServiceID,
		Description: m.Description,
		Quantity:    m.Quantity,
		UnitPrice:   m.UnitPrice,
		Amount:      m.Amount,
		Position:    m.Position,
	}
}

// InvoiceLineModelFromDomain creates a model from a domain InvoiceLine
func InvoiceLineModelFromDomain(l billing.InvoiceLine) *InvoiceLineModel {
	return &InvoiceLineModel{
		ID:          l.ID,
		InvoiceID:   l.InvoiceID,
		Type:        l.Type,
		ServiceID:   l.ServiceID,
		Description: l.Description,
		Quantity:    l.Quantity,
		UnitPrice:   l.UnitPrice,
		Amount:      l.Amount,
		Position:    l.Position,
	}
}

// MeterModel is the persistence model of a utility meter
type MeterModel struct {
	AggregateModel
	Code       string             `gorm:"type:varchar(50);not null;uniqueIndex"`
	Scope      billing.MeterScope `gorm:"type:varchar(20);not null;index:idx_meters_building_scope"`
	BuildingID uuid.UUID          `gorm:"type:uuid;not null;index:idx_meters_building_scope"`
	UnitID     *uuid.UUID         `gorm:"type:uuid;index"`
	ServiceID  uuid.UUID          `gorm:"type:uuid;not null;index"`
	Active     bool               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MeterModel) TableName() string {
	return "meters"
}

// ToDomain converts the model to a domain Meter
func (m *MeterModel) ToDomain() *billing.Meter {
	return &billing.Meter{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Code:              m.Code,
		Scope:             m.Scope,
		BuildingID:        m.BuildingID,
		UnitID:            m.UnitID,
		ServiceID:         m.ServiceID,
		Active:            m.Active,
	}
}

// MeterModelFromDomain creates a model from a domain Meter
func MeterModelFromDomain(mt *billing.Meter) *MeterModel {
	m := &MeterModel{
		Code:       mt.Code,
		Scope:      mt.Scope,
		BuildingID: mt.BuildingID,
		UnitID:     mt.UnitID,
		ServiceID:  mt.ServiceID,
		Active:     mt.Active,
	}
	m.FromDomainAggregateRoot(mt.BaseAggregateRoot)
	return m
}

// MeterReadingModel is the persistence model of a meter reading.
// A meter has at most one reading per date.
type MeterReadingModel struct {
	BaseModel
	MeterID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_meter_readings_meter_date"`
	ReadingDate time.Time       `gorm:"type:date;not null;uniqueIndex:idx_meter_readings_meter_date;index"`
	Current     decimal.Decimal `gorm:"column:current_value;type:decimal(18,4);not null"`
	Previous    decimal.Decimal `gorm:"column:previous_value;type:decimal(18,4);not null"`
	Consumption decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (MeterReadingModel) TableName() string {
	return "meter_readings"
}

// ToDomain converts the model to a domain MeterReading
func (m *MeterReadingModel) ToDomain() *billing.MeterReading {
	return &billing.MeterReading{
		ID:          m.ID,
		MeterID:     m.MeterID,
		ReadingDate: billing.DateOnly(m.ReadingDate),
		Current:     m.Current,
		Previous:    m.Previous,
		Consumption: m.Consumption,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// MeterReadingModelFromDomain creates a model from a domain MeterReading
func MeterReadingModelFromDomain(r *billing.MeterReading) *MeterReadingModel {
	return &MeterReadingModel{
		BaseModel: BaseModel{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		MeterID:     r.MeterID,
		ReadingDate: r.ReadingDate,
		Current:     r.Current,
		Previous:    r.Previous,
		Consumption: r.Consumption,
	}
}
